package datastore

import (
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/history"
	"github.com/agrilens/agrilens-go/internal/logger"
)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func openTestSQLite(t *testing.T) *GormStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "history.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGormStore_NewestTwentyOfTwentyFive(t *testing.T) {
	t.Parallel()

	store := openTestSQLite(t)
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	// Insert out of order so the result order comes from created_at.
	for _, i := range []int{3, 0, 24, 1, 2, 23, 4, 22, 5, 21, 6, 20, 7, 19, 8, 18, 9, 17, 10, 16, 11, 15, 12, 14, 13} {
		record := &history.CropPredictionRecord{
			UserID:          "farm-1",
			Nitrogen:        float64(i),
			RecommendedCrop: fmt.Sprintf("crop-%02d", i),
			Confidence:      50,
			CreatedAt:       base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.SaveCropPrediction(t.Context(), record))
		require.NotEmpty(t, record.ID)
	}

	records, err := store.RecentCropPredictions(t.Context(), history.DefaultLimit)
	require.NoError(t, err)
	require.Len(t, records, 20)
	assert.Equal(t, "crop-24", records[0].RecommendedCrop)
	assert.Equal(t, "crop-05", records[19].RecommendedCrop)
	for i := 1; i < len(records); i++ {
		assert.True(t, records[i-1].CreatedAt.After(records[i].CreatedAt))
	}
	assert.Equal(t, "farm-1", records[0].UserID)
	assert.InDelta(t, 24.0, records[0].Nitrogen, 0)
}

func TestGormStore_DiseaseTopPredictionsRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestSQLite(t)
	top := []history.TopPrediction{
		{Disease: "Tomato___Late_blight", Confidence: 91.2},
		{Disease: "Tomato___Early_blight", Confidence: 6.1},
		{Disease: "Tomato___healthy", Confidence: 1.4},
	}
	record := &history.DiseasePredictionRecord{
		DetectedDisease: "Tomato___Late_blight",
		Confidence:      91.2,
		TopPredictions:  top,
	}
	require.NoError(t, store.SaveDiseasePrediction(t.Context(), record))
	assert.False(t, record.CreatedAt.IsZero(), "timestamp assigned on insert")

	records, err := store.RecentDiseasePredictions(t.Context(), 20)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
	assert.Equal(t, top, records[0].TopPredictions)
}

func TestGormStore_EmptyTables(t *testing.T) {
	t.Parallel()

	store := openTestSQLite(t)
	crops, err := store.RecentCropPredictions(t.Context(), 20)
	require.NoError(t, err)
	assert.Empty(t, crops)

	diseases, err := store.RecentDiseasePredictions(t.Context(), 20)
	require.NoError(t, err)
	assert.Empty(t, diseases)
	assert.Equal(t, conf.BackendSQLite, store.Name())
}

func TestGormStore_QueryAfterCloseIsDatabaseError(t *testing.T) {
	t.Parallel()

	store, err := OpenSQLite(filepath.Join(t.TempDir(), "closed.db"), quietLogger())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.RecentCropPredictions(t.Context(), 20)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := OpenSQLite("", quietLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestNew_Backends(t *testing.T) {
	t.Parallel()

	t.Run("none", func(t *testing.T) {
		b, err := New(t.Context(), &conf.HistorySettings{Backend: conf.BackendNone}, nil, quietLogger())
		require.NoError(t, err)
		assert.Equal(t, conf.BackendNone, b.Name())
		assert.Nil(t, RecorderOf(b))

		crops, err := b.RecentCropPredictions(t.Context(), 20)
		require.NoError(t, err)
		assert.Empty(t, crops)
	})

	t.Run("sqlite", func(t *testing.T) {
		settings := &conf.HistorySettings{Backend: conf.BackendSQLite}
		settings.SQLite.Path = filepath.Join(t.TempDir(), "h.db")

		b, err := New(t.Context(), settings, nil, quietLogger())
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close() })
		assert.NotNil(t, RecorderOf(b))
	})

	t.Run("unknown", func(t *testing.T) {
		b, err := New(t.Context(), &conf.HistorySettings{Backend: "mongodb"}, nil, quietLogger())
		require.Error(t, err)
		assert.Nil(t, b)
	})

	t.Run("supabase without key", func(t *testing.T) {
		settings := &conf.HistorySettings{Backend: conf.BackendSupabase}
		settings.Supabase.URL = "https://project.supabase.co"

		b, err := New(t.Context(), settings, nil, quietLogger())
		require.Error(t, err)
		assert.Nil(t, b)
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		_, err := New(t.Context(), &conf.HistorySettings{Backend: conf.BackendPostgres}, nil, quietLogger())
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	})
}
