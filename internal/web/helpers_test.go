package web

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/history"
	"github.com/agrilens/agrilens-go/internal/inference"
	"github.com/agrilens/agrilens-go/internal/logger"
	"github.com/agrilens/agrilens-go/internal/observability"
)

// mockAdapter is a testify mock of the inference service.
type mockAdapter struct {
	mock.Mock
}

var _ inference.Adapter = (*mockAdapter)(nil)

func (m *mockAdapter) RecommendCrop(ctx context.Context, query inference.CropQuery) (*inference.CropResult, error) {
	args := m.Called(ctx, query)
	res, _ := args.Get(0).(*inference.CropResult)
	return res, args.Error(1)
}

func (m *mockAdapter) DetectDisease(ctx context.Context, image inference.ImageFile) (*inference.DiseaseResult, error) {
	args := m.Called(ctx, image)
	res, _ := args.Get(0).(*inference.DiseaseResult)
	return res, args.Error(1)
}

func (m *mockAdapter) ListCrops(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]string)
	return res, args.Error(1)
}

func (m *mockAdapter) ListDiseases(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]string)
	return res, args.Error(1)
}

func (m *mockAdapter) HealthCheck(ctx context.Context) (*inference.HealthStatus, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*inference.HealthStatus)
	return res, args.Error(1)
}

// mockStore is a testify mock history store that also records predictions.
type mockStore struct {
	mock.Mock
}

var (
	_ history.Store    = (*mockStore)(nil)
	_ history.Recorder = (*mockStore)(nil)
)

func (m *mockStore) RecentCropPredictions(ctx context.Context, limit int) ([]history.CropPredictionRecord, error) {
	args := m.Called(ctx, limit)
	res, _ := args.Get(0).([]history.CropPredictionRecord)
	return res, args.Error(1)
}

func (m *mockStore) RecentDiseasePredictions(ctx context.Context, limit int) ([]history.DiseasePredictionRecord, error) {
	args := m.Called(ctx, limit)
	res, _ := args.Get(0).([]history.DiseasePredictionRecord)
	return res, args.Error(1)
}

func (m *mockStore) SaveCropPrediction(ctx context.Context, record *history.CropPredictionRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *mockStore) SaveDiseasePrediction(ctx context.Context, record *history.DiseasePredictionRecord) error {
	return m.Called(ctx, record).Error(0)
}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Main.Name = "AgriLens"
	s.WebServer.Port = "0"
	s.WebServer.SessionTTL = time.Minute
	s.WebServer.MaxUploadBytes = conf.DefaultMaxUploadBytes
	s.Metrics.Enabled = true
	s.Metrics.Path = "/metrics"
	return s
}

type serverOptions struct {
	saver   bool
	metrics bool
}

// newTestServer wires a server around the given mocks.
func newTestServer(t *testing.T, adapter *mockAdapter, store *mockStore, opts serverOptions) *Server {
	t.Helper()

	log := quietLogger()
	deps := Dependencies{
		Adapter: adapter,
		Loader:  history.NewLoader(store, history.WithLogger(log)),
		Logger:  log,
	}
	if opts.saver {
		deps.Saver = history.NewSaver(store, "tester", nil, log)
	}
	if opts.metrics {
		m, err := observability.NewMetrics()
		require.NoError(t, err)
		deps.Metrics = m
	}

	s, err := New(testSettings(), deps)
	require.NoError(t, err)
	t.Cleanup(func() { s.Sessions().Close() })
	return s
}

// do serves req and returns the recorder.
func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func formRequest(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// uploadRequest builds a multipart request with one file part. An empty
// contentType omits the part's Content-Type header.
func uploadRequest(t *testing.T, path, filename, contentType string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// withSession copies the session cookie from a previous response.
func withSession(req *http.Request, prev *httptest.ResponseRecorder) *http.Request {
	for _, c := range prev.Result().Cookies() {
		if c.Name == SessionCookieName {
			req.AddCookie(c)
		}
	}
	return req
}

func riceForm() url.Values {
	return url.Values{
		"N":           {"90"},
		"P":           {"42"},
		"K":           {"43"},
		"temperature": {"20.87"},
		"humidity":    {"82"},
		"ph":          {"6.5"},
		"rainfall":    {"202.93"},
	}
}

func riceQuery() inference.CropQuery {
	return inference.CropQuery{N: 90, P: 42, K: 43, Temperature: 20.87, Humidity: 82, Ph: 6.5, Rainfall: 202.93}
}

func riceResult() *inference.CropResult {
	return &inference.CropResult{RecommendedCrop: "rice", Confidence: 97.5, InputParameters: riceQuery()}
}

// pngBytes is a PNG signature followed by padding, enough for content sniffing.
func pngBytes(size int) []byte {
	data := make([]byte, size)
	copy(data, "\x89PNG\r\n\x1a\n")
	return data
}
