package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/history"
	"github.com/agrilens/agrilens-go/internal/logger"
)

const (
	selectRecentCrops = `
		SELECT id, user_id, nitrogen, phosphorus, potassium, temperature,
			humidity, ph, rainfall, recommended_crop, confidence, created_at
		FROM crop_predictions
		ORDER BY created_at DESC
		LIMIT $1`

	selectRecentDiseases = `
		SELECT id, user_id, detected_disease, confidence, top_predictions, created_at
		FROM disease_predictions
		ORDER BY created_at DESC
		LIMIT $1`

	insertCrop = `
		INSERT INTO crop_predictions (
			user_id, nitrogen, phosphorus, potassium, temperature,
			humidity, ph, rainfall, recommended_crop, confidence
		) VALUES (
			:user_id, :nitrogen, :phosphorus, :potassium, :temperature,
			:humidity, :ph, :rainfall, :recommended_crop, :confidence
		)
		RETURNING id, created_at`

	insertDisease = `
		INSERT INTO disease_predictions (
			user_id, detected_disease, confidence, top_predictions
		) VALUES (
			:user_id, :detected_disease, :confidence, :top_predictions
		)
		RETURNING id, created_at`
)

// cropRow is the Postgres row shape of crop_predictions.
type cropRow struct {
	ID              string         `db:"id"`
	UserID          sql.NullString `db:"user_id"`
	Nitrogen        float64        `db:"nitrogen"`
	Phosphorus      float64        `db:"phosphorus"`
	Potassium       float64        `db:"potassium"`
	Temperature     float64        `db:"temperature"`
	Humidity        float64        `db:"humidity"`
	Ph              float64        `db:"ph"`
	Rainfall        float64        `db:"rainfall"`
	RecommendedCrop string         `db:"recommended_crop"`
	Confidence      float64        `db:"confidence"`
	CreatedAt       time.Time      `db:"created_at"`
}

// diseaseRow is the Postgres row shape of disease_predictions. Top
// predictions are jsonb.
type diseaseRow struct {
	ID              string         `db:"id"`
	UserID          sql.NullString `db:"user_id"`
	DetectedDisease string         `db:"detected_disease"`
	Confidence      float64        `db:"confidence"`
	TopPredictions  []byte         `db:"top_predictions"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r *cropRow) toRecord() history.CropPredictionRecord {
	return history.CropPredictionRecord{
		ID:              history.RecordID(r.ID),
		UserID:          r.UserID.String,
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

func (r *diseaseRow) toRecord() (history.DiseasePredictionRecord, error) {
	record := history.DiseasePredictionRecord{
		ID:              history.RecordID(r.ID),
		UserID:          r.UserID.String,
		DetectedDisease: r.DetectedDisease,
		Confidence:      r.Confidence,
		CreatedAt:       r.CreatedAt,
	}
	if len(r.TopPredictions) > 0 && string(r.TopPredictions) != "null" {
		if err := json.Unmarshal(r.TopPredictions, &record.TopPredictions); err != nil {
			return record, fmt.Errorf("decode top_predictions of %s: %w", r.ID, err)
		}
	}
	return record, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// PostgresStore reads and writes the Supabase Postgres tables directly.
type PostgresStore struct {
	db  *sqlx.DB
	log logger.Logger
}

var (
	_ history.Backend  = (*PostgresStore)(nil)
	_ history.Recorder = (*PostgresStore)(nil)
)

// OpenPostgres connects to dsn and verifies the connection. The tables are
// expected to exist.
func OpenPostgres(ctx context.Context, dsn string, log logger.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, configError("postgres dsn is empty")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to connect to postgres: %w", err), conf.BackendPostgres, "open")
	}
	return NewPostgresStore(db, log), nil
}

// NewPostgresStore wraps an open connection.
func NewPostgresStore(db *sqlx.DB, log logger.Logger) *PostgresStore {
	if log == nil {
		log = logger.Global().Module("datastore")
	}
	return &PostgresStore{db: db, log: log.With(logger.String("backend", conf.BackendPostgres))}
}

// Name returns the backend name.
func (s *PostgresStore) Name() string {
	return conf.BackendPostgres
}

// RecentCropPredictions returns up to limit crop records, newest first.
func (s *PostgresStore) RecentCropPredictions(ctx context.Context, limit int) ([]history.CropPredictionRecord, error) {
	var rows []cropRow
	if err := s.db.SelectContext(ctx, &rows, selectRecentCrops, limit); err != nil {
		return nil, dbError(fmt.Errorf("query %s: %w", history.TableCropPredictions, err), conf.BackendPostgres, "recent_crops")
	}

	records := make([]history.CropPredictionRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toRecord())
	}
	return records, nil
}

// RecentDiseasePredictions returns up to limit disease records, newest first.
func (s *PostgresStore) RecentDiseasePredictions(ctx context.Context, limit int) ([]history.DiseasePredictionRecord, error) {
	var rows []diseaseRow
	if err := s.db.SelectContext(ctx, &rows, selectRecentDiseases, limit); err != nil {
		return nil, dbError(fmt.Errorf("query %s: %w", history.TableDiseasePredictions, err), conf.BackendPostgres, "recent_diseases")
	}

	records := make([]history.DiseasePredictionRecord, 0, len(rows))
	for i := range rows {
		record, err := rows[i].toRecord()
		if err != nil {
			// Keep the row; the list is still useful without its breakdown.
			s.log.Warn("skipping malformed top predictions", logger.Error(err))
		}
		records = append(records, record)
	}
	return records, nil
}

// SaveCropPrediction inserts record and fills in its ID and timestamp.
func (s *PostgresStore) SaveCropPrediction(ctx context.Context, record *history.CropPredictionRecord) error {
	row := cropRow{
		UserID:          nullableString(record.UserID),
		Nitrogen:        record.Nitrogen,
		Phosphorus:      record.Phosphorus,
		Potassium:       record.Potassium,
		Temperature:     record.Temperature,
		Humidity:        record.Humidity,
		Ph:              record.Ph,
		Rainfall:        record.Rainfall,
		RecommendedCrop: record.RecommendedCrop,
		Confidence:      record.Confidence,
	}
	if err := s.insertReturning(ctx, insertCrop, &row, &row.ID, &row.CreatedAt); err != nil {
		return dbError(fmt.Errorf("insert %s: %w", history.TableCropPredictions, err), conf.BackendPostgres, "save_crop")
	}
	record.ID = history.RecordID(row.ID)
	record.CreatedAt = row.CreatedAt
	return nil
}

// SaveDiseasePrediction inserts record and fills in its ID and timestamp.
func (s *PostgresStore) SaveDiseasePrediction(ctx context.Context, record *history.DiseasePredictionRecord) error {
	top, err := json.Marshal(record.TopPredictions)
	if err != nil {
		return dbError(fmt.Errorf("encode top_predictions: %w", err), conf.BackendPostgres, "save_disease")
	}
	// jsonb is bound as text; lib/pq would send []byte as bytea
	args := map[string]any{
		"user_id":          nullableString(record.UserID),
		"detected_disease": record.DetectedDisease,
		"confidence":       record.Confidence,
		"top_predictions":  string(top),
	}
	var row diseaseRow
	if err := s.insertReturning(ctx, insertDisease, args, &row.ID, &row.CreatedAt); err != nil {
		return dbError(fmt.Errorf("insert %s: %w", history.TableDiseasePredictions, err), conf.BackendPostgres, "save_disease")
	}
	record.ID = history.RecordID(row.ID)
	record.CreatedAt = row.CreatedAt
	return nil
}

func (s *PostgresStore) insertReturning(ctx context.Context, query string, arg any, dest ...any) error {
	stmt, err := s.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			s.log.Debug("failed to close statement", logger.Error(closeErr))
		}
	}()
	return stmt.QueryRowxContext(ctx, arg).Scan(dest...)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil {
		return dbError(err, conf.BackendPostgres, "close")
	}
	return nil
}
