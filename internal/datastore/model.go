// Package datastore implements the prediction history backends: GORM over
// SQLite or MySQL, Postgres via sqlx, the Supabase REST API, and a no-op store.
package datastore

import (
	"fmt"
	"time"

	"github.com/agrilens/agrilens-go/internal/history"
)

// CropPrediction is the GORM model of a stored crop recommendation.
type CropPrediction struct {
	ID              uint      `gorm:"primaryKey"`
	UserID          string    `gorm:"size:64;index"`
	Nitrogen        float64   `gorm:"not null"`
	Phosphorus      float64   `gorm:"not null"`
	Potassium       float64   `gorm:"not null"`
	Temperature     float64   `gorm:"not null"`
	Humidity        float64   `gorm:"not null"`
	Ph              float64   `gorm:"not null"`
	Rainfall        float64   `gorm:"not null"`
	RecommendedCrop string    `gorm:"size:100;not null"`
	Confidence      float64   `gorm:"not null"`
	CreatedAt       time.Time `gorm:"index"`
}

// TableName pins the table to the shared collection name.
func (CropPrediction) TableName() string { return history.TableCropPredictions }

// DiseasePrediction is the GORM model of a stored disease detection. Top
// predictions are kept as JSON text.
type DiseasePrediction struct {
	ID              uint                    `gorm:"primaryKey"`
	UserID          string                  `gorm:"size:64;index"`
	DetectedDisease string                  `gorm:"size:200;not null"`
	Confidence      float64                 `gorm:"not null"`
	TopPredictions  []history.TopPrediction `gorm:"serializer:json;type:text"`
	CreatedAt       time.Time               `gorm:"index"`
}

// TableName pins the table to the shared collection name.
func (DiseasePrediction) TableName() string { return history.TableDiseasePredictions }

func (m *CropPrediction) toRecord() history.CropPredictionRecord {
	return history.CropPredictionRecord{
		ID:              recordID(m.ID),
		UserID:          m.UserID,
		Nitrogen:        m.Nitrogen,
		Phosphorus:      m.Phosphorus,
		Potassium:       m.Potassium,
		Temperature:     m.Temperature,
		Humidity:        m.Humidity,
		Ph:              m.Ph,
		Rainfall:        m.Rainfall,
		RecommendedCrop: m.RecommendedCrop,
		Confidence:      m.Confidence,
		CreatedAt:       m.CreatedAt,
	}
}

func cropModel(r *history.CropPredictionRecord) *CropPrediction {
	return &CropPrediction{
		UserID:          r.UserID,
		Nitrogen:        r.Nitrogen,
		Phosphorus:      r.Phosphorus,
		Potassium:       r.Potassium,
		Temperature:     r.Temperature,
		Humidity:        r.Humidity,
		Ph:              r.Ph,
		Rainfall:        r.Rainfall,
		RecommendedCrop: r.RecommendedCrop,
		Confidence:      r.Confidence,
		CreatedAt:       r.CreatedAt,
	}
}

func (m *DiseasePrediction) toRecord() history.DiseasePredictionRecord {
	return history.DiseasePredictionRecord{
		ID:              recordID(m.ID),
		UserID:          m.UserID,
		DetectedDisease: m.DetectedDisease,
		Confidence:      m.Confidence,
		TopPredictions:  m.TopPredictions,
		CreatedAt:       m.CreatedAt,
	}
}

func diseaseModel(r *history.DiseasePredictionRecord) *DiseasePrediction {
	return &DiseasePrediction{
		UserID:          r.UserID,
		DetectedDisease: r.DetectedDisease,
		Confidence:      r.Confidence,
		TopPredictions:  r.TopPredictions,
		CreatedAt:       r.CreatedAt,
	}
}

func recordID(id uint) history.RecordID {
	return history.RecordID(fmt.Sprint(id))
}
