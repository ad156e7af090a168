// Package history loads and records past crop and disease predictions.
package history

import (
	"bytes"
	"encoding/json"
	"time"
)

const (
	// DefaultLimit is how many records per collection the history page shows.
	DefaultLimit = 20

	// TableCropPredictions and TableDiseasePredictions are the collection names
	// in every backend.
	TableCropPredictions    = "crop_predictions"
	TableDiseasePredictions = "disease_predictions"
)

// RecordID is a backend-assigned identifier. Backends use integer or uuid
// keys; both decode to their text form.
type RecordID string

// UnmarshalJSON accepts a JSON string or number.
func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = RecordID(n.String())
	return nil
}

// CropPredictionRecord is one stored crop recommendation.
type CropPredictionRecord struct {
	ID              RecordID  `json:"id,omitempty"`
	UserID          string    `json:"user_id,omitempty"`
	Nitrogen        float64   `json:"nitrogen"`
	Phosphorus      float64   `json:"phosphorus"`
	Potassium       float64   `json:"potassium"`
	Temperature     float64   `json:"temperature"`
	Humidity        float64   `json:"humidity"`
	Ph              float64   `json:"ph"`
	Rainfall        float64   `json:"rainfall"`
	RecommendedCrop string    `json:"recommended_crop"`
	Confidence      float64   `json:"confidence"`
	CreatedAt       time.Time `json:"created_at,omitzero"`
}

// TopPrediction is one ranked (disease, confidence) pair as stored.
type TopPrediction struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
}

// DiseasePredictionRecord is one stored disease detection.
type DiseasePredictionRecord struct {
	ID              RecordID        `json:"id,omitempty"`
	UserID          string          `json:"user_id,omitempty"`
	DetectedDisease string          `json:"detected_disease"`
	Confidence      float64         `json:"confidence"`
	TopPredictions  []TopPrediction `json:"top_predictions"`
	CreatedAt       time.Time       `json:"created_at,omitzero"`
}
