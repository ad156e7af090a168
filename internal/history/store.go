package history

import "context"

// Store reads the most recent predictions, newest first.
type Store interface {
	RecentCropPredictions(ctx context.Context, limit int) ([]CropPredictionRecord, error)
	RecentDiseasePredictions(ctx context.Context, limit int) ([]DiseasePredictionRecord, error)
}

// Recorder persists new predictions. Backends that are read-only do not
// implement it.
type Recorder interface {
	SaveCropPrediction(ctx context.Context, record *CropPredictionRecord) error
	SaveDiseasePrediction(ctx context.Context, record *DiseasePredictionRecord) error
}

// Backend is a store that can also be closed. Every datastore backend
// satisfies it.
type Backend interface {
	Store
	Name() string
	Close() error
}
