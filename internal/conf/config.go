// Package conf provides configuration management for AgriLens.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/logger"
)

// Settings contains all configuration options for AgriLens.
type Settings struct {
	Debug bool `yaml:"debug"`

	Main struct {
		Name string `yaml:"name"` // application name shown in the page title
	} `yaml:"main"`

	Logging logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`

	WebServer WebServerSettings `yaml:"webserver"`
	Inference InferenceSettings `yaml:"inference"`
	History   HistorySettings   `yaml:"history"`
	Metrics   MetricsSettings   `yaml:"metrics"`
	Sentry    SentrySettings    `yaml:"sentry"`
}

// WebServerSettings contains settings for the HTTP server and user sessions.
type WebServerSettings struct {
	Host           string        `yaml:"host"`
	Port           string        `yaml:"port"`
	SessionTTL     time.Duration `yaml:"sessionttl"`     // idle time before a session's forms are discarded
	SessionSecret  string        `yaml:"sessionsecret"`  // signs the session cookie, random per process when empty
	MaxUploadBytes int64         `yaml:"maxuploadbytes"` // request body limit for image uploads
	ReadTimeout    time.Duration `yaml:"readtimeout"`
	WriteTimeout   time.Duration `yaml:"writetimeout"`
}

// InferenceSettings contains settings for the remote inference service.
type InferenceSettings struct {
	BaseURL         string        `yaml:"baseurl"`
	Timeout         time.Duration `yaml:"timeout"`         // per-request timeout, 0 sets no client deadline
	CatalogCacheTTL time.Duration `yaml:"catalogcachettl"` // 0 disables caching of crop and disease label lists
	RateLimit       float64       `yaml:"ratelimit"`       // outbound requests per second, 0 is unlimited
	RateBurst       int           `yaml:"rateburst"`
}

// HistorySettings contains settings for the prediction history datastore.
type HistorySettings struct {
	Backend  string           `yaml:"backend"` // auto, sqlite, mysql, postgres, supabase or none
	Limit    int              `yaml:"limit"`   // rows fetched per collection
	Record   bool             `yaml:"record"`  // persist successful predictions
	UserID   string           `yaml:"userid"`  // user id stored with recorded predictions
	SQLite   SQLiteSettings   `yaml:"sqlite"`
	MySQL    MySQLSettings    `yaml:"mysql"`
	Postgres PostgresSettings `yaml:"postgres"`
	Supabase SupabaseSettings `yaml:"supabase"`
}

// SQLiteSettings contains settings for the SQLite backend.
type SQLiteSettings struct {
	Path string `yaml:"path"`
}

// MySQLSettings contains settings for the MySQL backend.
type MySQLSettings struct {
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"passwordfile"` // read instead of Password when set
	Database     string `yaml:"database"`
}

// PostgresSettings contains settings for a direct Postgres connection.
type PostgresSettings struct {
	DSN     string `yaml:"dsn"`
	DSNFile string `yaml:"dsnfile"`
}

// SupabaseSettings contains settings for the Supabase REST backend.
type SupabaseSettings struct {
	URL        string `yaml:"url"`
	AnonKey    string `yaml:"anonkey"`
	ServiceKey string `yaml:"servicekey"` // used for inserts when set, falls back to AnonKey

	AnonKeyFile    string `yaml:"anonkeyfile"`
	ServiceKeyFile string `yaml:"servicekeyfile"`
}

// MetricsSettings controls the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SentrySettings controls error reporting.
type SentrySettings struct {
	Enabled     bool    `yaml:"enabled"`
	DSN         string  `yaml:"dsn"`
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"samplerate"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the .env file, the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_settings").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults, binds environment variables and reads the configuration file.
// A missing configuration file is not an error; defaults and environment apply.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	for _, path := range GetDefaultConfigPaths() {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			GetLogger().Debug("no config file found, using defaults and environment")
			return nil
		}
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileParsing).
			Context("operation", "read_config").
			Build()
	}

	GetLogger().Info("loaded config file", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml, in order.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "agrilens"))
	}
	return append(paths, "/etc/agrilens")
}

// GetSettings returns the settings loaded by the last successful Load
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetLogger returns the logger for the configuration module.
func GetLogger() logger.Logger {
	return logger.Global().Module("conf")
}
