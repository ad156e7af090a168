package metrics

// Status label values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Inference operations
const (
	OpRecommendCrop = "recommend_crop"
	OpDetectDisease = "detect_disease"
	OpListCrops     = "list_crops"
	OpListDiseases  = "list_diseases"
	OpHealthCheck   = "health_check"
)

// History operations
const (
	OpRecentCrops    = "recent_crop_predictions"
	OpRecentDiseases = "recent_disease_predictions"
	OpSaveCrop       = "save_crop_prediction"
	OpSaveDisease    = "save_disease_prediction"
)

// Submission outcomes recorded by the web flows
const (
	OutcomeSucceeded        = "succeeded"
	OutcomeValidationFailed = "validation_failed"
	OutcomeNetworkFailed    = "network_failed"
	OutcomeRejectedInFlight = "rejected_in_flight"
)

// durationBuckets cover fast catalog lookups up to slow cold-start inference calls
var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
