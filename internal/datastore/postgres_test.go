package datastore

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiseaseRow_ToRecord(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	row := diseaseRow{
		ID:              "5",
		UserID:          sql.NullString{String: "u", Valid: true},
		DetectedDisease: "Apple___Black_rot",
		Confidence:      77.7,
		TopPredictions:  []byte(`[{"disease":"Apple___Black_rot","confidence":77.7},{"disease":"Apple___healthy","confidence":20}]`),
		CreatedAt:       created,
	}

	record, err := row.toRecord()
	require.NoError(t, err)
	assert.Equal(t, "u", record.UserID)
	require.Len(t, record.TopPredictions, 2)
	assert.Equal(t, "Apple___healthy", record.TopPredictions[1].Disease)
	assert.Equal(t, created, record.CreatedAt)
}

func TestDiseaseRow_ToRecordTolerance(t *testing.T) {
	t.Parallel()

	for _, raw := range [][]byte{nil, []byte("null")} {
		record, err := (&diseaseRow{ID: "1", TopPredictions: raw}).toRecord()
		require.NoError(t, err)
		assert.Empty(t, record.TopPredictions)
		assert.Empty(t, record.UserID)
	}

	record, err := (&diseaseRow{ID: "2", DetectedDisease: "x", TopPredictions: []byte("{")}).toRecord()
	require.Error(t, err)
	assert.Equal(t, "x", record.DetectedDisease, "row is kept even when the breakdown is malformed")
}

func TestCropRow_ToRecord(t *testing.T) {
	t.Parallel()

	row := cropRow{ID: "9", Nitrogen: 90, Rainfall: 202.93, RecommendedCrop: "rice", Confidence: 97.5}
	record := row.toRecord()
	assert.Equal(t, "rice", record.RecommendedCrop)
	assert.Empty(t, record.UserID)
	assert.InDelta(t, 202.93, record.Rainfall, 0)
}

func TestNullableString(t *testing.T) {
	t.Parallel()

	assert.False(t, nullableString("").Valid)
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, nullableString("x"))
}
