package inference

import "context"

// Service endpoints, relative to the base URL
const (
	PathRecommendCrop = "/api/recommend-crop"
	PathDetectDisease = "/api/detect-disease"
	PathCrops         = "/api/crops"
	PathDiseases      = "/api/diseases"
	PathHealth        = "/"

	// multipartFileField is the form field carrying the image
	multipartFileField = "file"
)

// Adapter is the typed boundary to the inference service. All operations are
// single-shot; every failure is a network-category *errors.EnhancedError.
type Adapter interface {
	RecommendCrop(ctx context.Context, query CropQuery) (*CropResult, error)
	DetectDisease(ctx context.Context, image ImageFile) (*DiseaseResult, error)
	ListCrops(ctx context.Context) ([]string, error)
	ListDiseases(ctx context.Context) ([]string, error)
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}
