// Package inference is the HTTP adapter for the remote crop recommendation and
// plant disease detection service.
package inference

// CropQuery holds the soil and climate parameters sent for a crop recommendation.
// JSON keys match the service contract.
type CropQuery struct {
	N           float64 `json:"N"`           // nitrogen, kg/ha
	P           float64 `json:"P"`           // phosphorus, kg/ha
	K           float64 `json:"K"`           // potassium, kg/ha
	Temperature float64 `json:"temperature"` // °C
	Humidity    float64 `json:"humidity"`    // %
	Ph          float64 `json:"ph"`
	Rainfall    float64 `json:"rainfall"` // mm
}

// CropResult is the service's recommendation, with the parameters it used.
type CropResult struct {
	RecommendedCrop string    `json:"recommended_crop"`
	Confidence      float64   `json:"confidence"` // percentage
	InputParameters CropQuery `json:"input_parameters"`
}

// DiseasePrediction is one (label, confidence) pair.
type DiseasePrediction struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
}

// DiseaseResult is the detected disease and the ranked top predictions, in service order.
type DiseaseResult struct {
	Disease        string              `json:"disease"`
	Confidence     float64             `json:"confidence"`
	TopPredictions []DiseasePrediction `json:"top_predictions"`
}

// ImageFile is an image selected for disease detection.
type ImageFile struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

// HealthStatus is the service's root endpoint response. Fields the service
// does not send are left empty.
type HealthStatus struct {
	Status  string            `json:"status,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"` // all top-level string fields
}

// Healthy reports whether the service described itself as up.
func (h *HealthStatus) Healthy() bool {
	if h == nil {
		return false
	}
	switch h.Status {
	case "", "ok", "OK", "healthy", "running", "up":
		return true
	default:
		return false
	}
}
