package datastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/history"
	"github.com/agrilens/agrilens-go/internal/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// GormStore keeps prediction history in a SQL database through GORM.
type GormStore struct {
	db   *gorm.DB
	name string
	log  logger.Logger
}

var (
	_ history.Backend  = (*GormStore)(nil)
	_ history.Recorder = (*GormStore)(nil)
)

// OpenSQLite opens (creating if needed) a SQLite database at path and
// migrates the prediction tables.
func OpenSQLite(path string, log logger.Logger) (*GormStore, error) {
	if path == "" {
		return nil, configError("sqlite path is empty")
	}
	if !isMemoryDSN(path) {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, dbError(fmt.Errorf("create sqlite directory: %w", err), conf.BackendSQLite, "open")
			}
		}
	}
	return openGorm(conf.BackendSQLite, sqlite.Open(path), path, log)
}

// OpenMySQL connects to MySQL and migrates the prediction tables.
func OpenMySQL(settings conf.MySQLSettings, log logger.Logger) (*GormStore, error) {
	port := settings.Port
	if port == "" {
		port = "3306"
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		settings.Username, settings.Password, settings.Host, port, settings.Database)
	return openGorm(conf.BackendMySQL, mysql.Open(dsn), settings.Host+":"+port+"/"+settings.Database, log)
}

func openGorm(name string, dialector gorm.Dialector, target string, log logger.Logger) (*GormStore, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}
	log = log.With(logger.String("backend", name))

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log.Module("gorm"), slowQueryThreshold),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to open %s database: %w", name, err), name, "open")
	}

	if err := db.AutoMigrate(&CropPrediction{}, &DiseasePrediction{}); err != nil {
		closeGorm(db)
		return nil, dbError(fmt.Errorf("failed to migrate %s schema: %w", name, err), name, "migrate")
	}

	log.Info("history datastore opened", logger.String("target", target))
	return &GormStore{db: db, name: name, log: log}, nil
}

// Name returns the backend name.
func (s *GormStore) Name() string {
	return s.name
}

// DB exposes the underlying handle.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// RecentCropPredictions returns up to limit crop records, newest first.
func (s *GormStore) RecentCropPredictions(ctx context.Context, limit int) ([]history.CropPredictionRecord, error) {
	var rows []CropPrediction
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, dbError(fmt.Errorf("query %s: %w", history.TableCropPredictions, err), s.name, "recent_crops")
	}

	records := make([]history.CropPredictionRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toRecord())
	}
	return records, nil
}

// RecentDiseasePredictions returns up to limit disease records, newest first.
func (s *GormStore) RecentDiseasePredictions(ctx context.Context, limit int) ([]history.DiseasePredictionRecord, error) {
	var rows []DiseasePrediction
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, dbError(fmt.Errorf("query %s: %w", history.TableDiseasePredictions, err), s.name, "recent_diseases")
	}

	records := make([]history.DiseasePredictionRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toRecord())
	}
	return records, nil
}

// SaveCropPrediction inserts record and fills in its ID and timestamp.
func (s *GormStore) SaveCropPrediction(ctx context.Context, record *history.CropPredictionRecord) error {
	row := cropModel(record)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return dbError(fmt.Errorf("insert %s: %w", history.TableCropPredictions, err), s.name, "save_crop")
	}
	record.ID = recordID(row.ID)
	record.CreatedAt = row.CreatedAt
	return nil
}

// SaveDiseasePrediction inserts record and fills in its ID and timestamp.
func (s *GormStore) SaveDiseasePrediction(ctx context.Context, record *history.DiseasePredictionRecord) error {
	row := diseaseModel(record)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return dbError(fmt.Errorf("insert %s: %w", history.TableDiseasePredictions, err), s.name, "save_disease")
	}
	record.ID = recordID(row.ID)
	record.CreatedAt = row.CreatedAt
	return nil
}

// Close closes the database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return dbError(fmt.Errorf("retrieve generic DB object: %w", err), s.name, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(fmt.Errorf("close %s database: %w", s.name, err), s.name, "close")
	}
	s.log.Debug("history datastore closed")
	return nil
}

func closeGorm(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func isMemoryDSN(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file:")
}
