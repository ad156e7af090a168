package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/history"
	"github.com/agrilens/agrilens-go/internal/httpclient"
	"github.com/agrilens/agrilens-go/internal/logger"
)

const (
	restPath        = "/rest/v1/"
	maxRESTResponse = 4 << 20
)

// SupabaseStore talks to the Supabase PostgREST API.
type SupabaseStore struct {
	baseURL  string
	readKey  string
	writeKey string
	http     *httpclient.Client
	log      logger.Logger
}

var (
	_ history.Backend  = (*SupabaseStore)(nil)
	_ history.Recorder = (*SupabaseStore)(nil)
)

// NewSupabaseStore returns a store for the project at settings.URL. Reads use
// the anon key; inserts use the service key when one is configured.
func NewSupabaseStore(settings conf.SupabaseSettings, hc *httpclient.Client, log logger.Logger) (*SupabaseStore, error) {
	base := strings.TrimRight(strings.TrimSpace(settings.URL), "/")
	if base == "" {
		return nil, configError("supabase url is empty")
	}
	readKey := settings.AnonKey
	if readKey == "" {
		readKey = settings.ServiceKey
	}
	if readKey == "" {
		return nil, configError("supabase requires an anon or service key")
	}
	writeKey := settings.ServiceKey
	if writeKey == "" {
		writeKey = settings.AnonKey
	}

	if hc == nil {
		hc = httpclient.New(nil)
	}
	if log == nil {
		log = logger.Global().Module("datastore")
	}
	return &SupabaseStore{
		baseURL:  base,
		readKey:  readKey,
		writeKey: writeKey,
		http:     hc,
		log:      log.With(logger.String("backend", conf.BackendSupabase)),
	}, nil
}

// Name returns the backend name.
func (s *SupabaseStore) Name() string {
	return conf.BackendSupabase
}

// HTTPClient returns the underlying HTTP client.
func (s *SupabaseStore) HTTPClient() *httpclient.Client {
	return s.http
}

// RecentCropPredictions returns up to limit crop records, newest first.
func (s *SupabaseStore) RecentCropPredictions(ctx context.Context, limit int) ([]history.CropPredictionRecord, error) {
	var records []history.CropPredictionRecord
	if err := s.selectRecent(ctx, history.TableCropPredictions, limit, &records); err != nil {
		return nil, dbError(err, conf.BackendSupabase, "recent_crops")
	}
	return records, nil
}

// RecentDiseasePredictions returns up to limit disease records, newest first.
func (s *SupabaseStore) RecentDiseasePredictions(ctx context.Context, limit int) ([]history.DiseasePredictionRecord, error) {
	var records []history.DiseasePredictionRecord
	if err := s.selectRecent(ctx, history.TableDiseasePredictions, limit, &records); err != nil {
		return nil, dbError(err, conf.BackendSupabase, "recent_diseases")
	}
	return records, nil
}

// SaveCropPrediction inserts record and fills in its ID and timestamp.
func (s *SupabaseStore) SaveCropPrediction(ctx context.Context, record *history.CropPredictionRecord) error {
	var inserted []history.CropPredictionRecord
	if err := s.insert(ctx, history.TableCropPredictions, record, &inserted); err != nil {
		return dbError(err, conf.BackendSupabase, "save_crop")
	}
	if len(inserted) > 0 {
		record.ID = inserted[0].ID
		record.CreatedAt = inserted[0].CreatedAt
	}
	return nil
}

// SaveDiseasePrediction inserts record and fills in its ID and timestamp.
func (s *SupabaseStore) SaveDiseasePrediction(ctx context.Context, record *history.DiseasePredictionRecord) error {
	var inserted []history.DiseasePredictionRecord
	if err := s.insert(ctx, history.TableDiseasePredictions, record, &inserted); err != nil {
		return dbError(err, conf.BackendSupabase, "save_disease")
	}
	if len(inserted) > 0 {
		record.ID = inserted[0].ID
		record.CreatedAt = inserted[0].CreatedAt
	}
	return nil
}

// Close releases idle connections.
func (s *SupabaseStore) Close() error {
	s.http.Close()
	return nil
}

func (s *SupabaseStore) tableURL(table string, query url.Values) string {
	u := s.baseURL + restPath + table
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (s *SupabaseStore) authHeaders(key string) map[string]string {
	return map[string]string{
		"apikey":        key,
		"Authorization": "Bearer " + key,
		"Accept":        "application/json",
	}
}

func (s *SupabaseStore) selectRecent(ctx context.Context, table string, limit int, dest any) error {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("order", "created_at.desc")
	query.Set("limit", strconv.Itoa(limit))

	resp, err := s.http.GetWithHeaders(ctx, s.tableURL(table, query), s.authHeaders(s.readKey))
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	return s.decode(resp, table, dest)
}

func (s *SupabaseStore) insert(ctx context.Context, table string, record, dest any) error {
	body, err := json.Marshal([]any{record})
	if err != nil {
		return fmt.Errorf("encode %s row: %w", table, err)
	}

	headers := s.authHeaders(s.writeKey)
	headers["Prefer"] = "return=representation"

	resp, err := s.http.PostWithHeaders(ctx, s.tableURL(table, nil), "application/json", body, headers)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return s.decode(resp, table, dest)
}

func (s *SupabaseStore) decode(resp *http.Response, table string, dest any) error {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.log.Debug("failed to close response body", logger.Error(err))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRESTResponse))
	if err != nil {
		return fmt.Errorf("read %s response: %w", table, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("supabase %s returned %d: %s", table, resp.StatusCode, postgrestMessage(body))
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s rows: %w", table, err)
	}
	return nil
}

// postgrestMessage extracts the message of a PostgREST error body.
func postgrestMessage(body []byte) string {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return msg
	}
	msg, _ := obj.GetString("message")
	if code, err := obj.GetString("code"); err == nil && code != "" {
		msg = fmt.Sprintf("%s (code %s)", msg, code)
	}
	return msg
}
