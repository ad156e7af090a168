package history

import (
	"context"
	"time"

	"github.com/agrilens/agrilens-go/internal/inference"
	"github.com/agrilens/agrilens-go/internal/logger"
	"github.com/agrilens/agrilens-go/internal/observability/metrics"
)

// NewCropRecord builds the stored form of a crop recommendation.
func NewCropRecord(userID string, query inference.CropQuery, result *inference.CropResult) *CropPredictionRecord {
	return &CropPredictionRecord{
		UserID:          userID,
		Nitrogen:        query.N,
		Phosphorus:      query.P,
		Potassium:       query.K,
		Temperature:     query.Temperature,
		Humidity:        query.Humidity,
		Ph:              query.Ph,
		Rainfall:        query.Rainfall,
		RecommendedCrop: result.RecommendedCrop,
		Confidence:      result.Confidence,
	}
}

// NewDiseaseRecord builds the stored form of a disease detection.
func NewDiseaseRecord(userID string, result *inference.DiseaseResult) *DiseasePredictionRecord {
	top := make([]TopPrediction, 0, len(result.TopPredictions))
	for _, p := range result.TopPredictions {
		top = append(top, TopPrediction{Disease: p.Disease, Confidence: p.Confidence})
	}
	return &DiseasePredictionRecord{
		UserID:          userID,
		DetectedDisease: result.Disease,
		Confidence:      result.Confidence,
		TopPredictions:  top,
	}
}

// Saver writes successful predictions to a Recorder. Failures are logged and
// never returned: a prediction is not failed because it could not be stored.
// A nil *Saver or one without a recorder does nothing.
type Saver struct {
	recorder Recorder
	userID   string
	metrics  metrics.Recorder
	log      logger.Logger
}

// NewSaver returns a saver for recorder tagging rows with userID.
func NewSaver(recorder Recorder, userID string, m metrics.Recorder, log logger.Logger) *Saver {
	if m == nil {
		m = metrics.NopRecorder{}
	}
	if log == nil {
		log = logger.Global().Module("history")
	}
	return &Saver{recorder: recorder, userID: userID, metrics: m, log: log}
}

// Enabled reports whether predictions are being recorded.
func (s *Saver) Enabled() bool {
	return s != nil && s.recorder != nil
}

// SaveCrop records a crop recommendation.
func (s *Saver) SaveCrop(ctx context.Context, query inference.CropQuery, result *inference.CropResult) {
	if !s.Enabled() || result == nil {
		return
	}
	s.save(ctx, metrics.OpSaveCrop, func(ctx context.Context) error {
		return s.recorder.SaveCropPrediction(ctx, NewCropRecord(s.userID, query, result))
	})
}

// SaveDisease records a disease detection.
func (s *Saver) SaveDisease(ctx context.Context, result *inference.DiseaseResult) {
	if !s.Enabled() || result == nil {
		return
	}
	s.save(ctx, metrics.OpSaveDisease, func(ctx context.Context) error {
		return s.recorder.SaveDiseasePrediction(ctx, NewDiseaseRecord(s.userID, result))
	})
}

func (s *Saver) save(ctx context.Context, op string, fn func(context.Context) error) {
	start := time.Now()
	err := fn(ctx)
	s.metrics.RecordDuration(op, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordOperation(op, metrics.StatusError)
		s.metrics.RecordError(op, errorType(err))
		s.log.Warn("failed to record prediction",
			logger.String("operation", op),
			logger.Error(err))
		return
	}
	s.metrics.RecordOperation(op, metrics.StatusSuccess)
}
