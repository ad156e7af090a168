package datastore

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/history"
	"github.com/agrilens/agrilens-go/internal/httpclient"
)

const supabaseTestURL = "https://project.supabase.test"

func newTestSupabase(t *testing.T, settings conf.SupabaseSettings) (*SupabaseStore, *httpmock.MockTransport) {
	t.Helper()
	if settings.URL == "" {
		settings.URL = supabaseTestURL + "/"
	}
	hc := httpclient.New(&httpclient.Config{DefaultTimeout: 2 * time.Second})
	mt := httpmock.NewMockTransport()
	hc.HTTPClient().Transport = mt

	store, err := NewSupabaseStore(settings, hc, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mt
}

func recentQuery() map[string]string {
	return map[string]string{"select": "*", "order": "created_at.desc", "limit": "20"}
}

func TestSupabase_RecentCropPredictions(t *testing.T) {
	t.Parallel()

	store, mt := newTestSupabase(t, conf.SupabaseSettings{AnonKey: "anon-key", ServiceKey: "service-key"})

	mt.RegisterResponderWithQuery(http.MethodGet, supabaseTestURL+"/rest/v1/crop_predictions", recentQuery(),
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "anon-key", req.Header.Get("apikey"))
			assert.Equal(t, "Bearer anon-key", req.Header.Get("Authorization"))
			return httpmock.NewStringResponse(http.StatusOK, `[
				{"id": 7, "user_id": "u1", "nitrogen": 90, "phosphorus": 42, "potassium": 43,
				 "temperature": 20.87, "humidity": 82, "ph": 6.5, "rainfall": 202.93,
				 "recommended_crop": "rice", "confidence": 97.5,
				 "created_at": "2025-06-01T14:05:00.123456+00:00"},
				{"id": "a7c1", "nitrogen": 10, "phosphorus": 20, "potassium": 30,
				 "temperature": 25, "humidity": 60, "ph": 7, "rainfall": 80,
				 "recommended_crop": "maize", "confidence": 80.1,
				 "created_at": "2025-05-30T09:00:00+00:00"}
			]`), nil
		})

	records, err := store.RecentCropPredictions(t.Context(), 20)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, history.RecordID("7"), records[0].ID)
	assert.Equal(t, "rice", records[0].RecommendedCrop)
	assert.InDelta(t, 202.93, records[0].Rainfall, 1e-9)
	assert.Equal(t, 14, records[0].CreatedAt.Hour())
	assert.Equal(t, history.RecordID("a7c1"), records[1].ID)
	assert.Empty(t, records[1].UserID)
}

func TestSupabase_RecentDiseasePredictions(t *testing.T) {
	t.Parallel()

	store, mt := newTestSupabase(t, conf.SupabaseSettings{AnonKey: "anon-key"})
	mt.RegisterResponderWithQuery(http.MethodGet, supabaseTestURL+"/rest/v1/disease_predictions", recentQuery(),
		httpmock.NewStringResponder(http.StatusOK, `[{"id": 1, "detected_disease": "Corn_(maize)___Common_rust_",
			"confidence": 99.1, "created_at": "2025-06-01T10:00:00Z",
			"top_predictions": [{"disease": "Corn_(maize)___Common_rust_", "confidence": 99.1}]}]`))

	records, err := store.RecentDiseasePredictions(t.Context(), 20)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Corn_(maize)___Common_rust_", records[0].DetectedDisease)
	require.Len(t, records[0].TopPredictions, 1)
}

func TestSupabase_ErrorIsDatabaseCategory(t *testing.T) {
	t.Parallel()

	store, mt := newTestSupabase(t, conf.SupabaseSettings{AnonKey: "anon-key"})
	mt.RegisterResponder(http.MethodGet, supabaseTestURL+"/rest/v1/disease_predictions",
		httpmock.NewStringResponder(http.StatusNotFound,
			`{"code":"42P01","message":"relation \"public.disease_predictions\" does not exist"}`))

	_, err := store.RecentDiseasePredictions(t.Context(), 20)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
	assert.Contains(t, err.Error(), "42P01")
	assert.Contains(t, err.Error(), "does not exist")
}

func TestSupabase_SaveUsesServiceKey(t *testing.T) {
	t.Parallel()

	store, mt := newTestSupabase(t, conf.SupabaseSettings{AnonKey: "anon-key", ServiceKey: "service-key"})
	mt.RegisterResponder(http.MethodPost, supabaseTestURL+"/rest/v1/crop_predictions",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "service-key", req.Header.Get("apikey"))
			assert.Equal(t, "Bearer service-key", req.Header.Get("Authorization"))
			assert.Equal(t, "return=representation", req.Header.Get("Prefer"))

			var rows []map[string]any
			if err := json.NewDecoder(req.Body).Decode(&rows); err != nil || len(rows) != 1 {
				return httpmock.NewStringResponse(http.StatusBadRequest, `{"message":"bad body"}`), nil
			}
			row := rows[0]
			assert.Equal(t, "farm-9", row["user_id"])
			assert.Equal(t, "rice", row["recommended_crop"])
			assert.NotContains(t, row, "id")
			assert.NotContains(t, row, "created_at")

			row["id"] = 101
			row["created_at"] = "2025-06-02T08:00:00Z"
			return httpmock.NewJsonResponse(http.StatusCreated, []any{row})
		})

	record := &history.CropPredictionRecord{UserID: "farm-9", RecommendedCrop: "rice", Confidence: 97.5}
	require.NoError(t, store.SaveCropPrediction(t.Context(), record))
	assert.Equal(t, history.RecordID("101"), record.ID)
	assert.Equal(t, 2025, record.CreatedAt.Year())
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestSupabase_SaveDiseaseFailure(t *testing.T) {
	t.Parallel()

	store, mt := newTestSupabase(t, conf.SupabaseSettings{AnonKey: "anon-key"})
	mt.RegisterResponder(http.MethodPost, supabaseTestURL+"/rest/v1/disease_predictions",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"message":"new row violates row-level security policy"}`))

	err := store.SaveDiseasePrediction(t.Context(), &history.DiseasePredictionRecord{DetectedDisease: "x"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
	assert.Contains(t, err.Error(), "row-level security")
}

func TestNewSupabaseStore_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewSupabaseStore(conf.SupabaseSettings{AnonKey: "k"}, nil, quietLogger())
	require.Error(t, err)

	_, err = NewSupabaseStore(conf.SupabaseSettings{URL: supabaseTestURL}, nil, quietLogger())
	require.Error(t, err)

	store, err := NewSupabaseStore(conf.SupabaseSettings{URL: supabaseTestURL, ServiceKey: "svc"}, nil, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "svc", store.readKey, "service key is used for reads when no anon key is set")
	require.NoError(t, store.Close())
}

func TestPostgrestMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "boom (code 500)", postgrestMessage([]byte(`{"message":"boom","code":"500"}`)))
	assert.Equal(t, "plain failure", postgrestMessage([]byte(" plain failure ")))
}
