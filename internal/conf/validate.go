// conf/validate.go

package conf

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agrilens/agrilens-go/internal/secrets"
)

// History backends
const (
	BackendAuto     = "auto"
	BackendSQLite   = "sqlite"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
	BackendNone     = "none"
)

var (
	validBackends  = []string{BackendAuto, BackendSQLite, BackendMySQL, BackendPostgres, BackendSupabase, BackendNone}
	validLogLevels = []string{"trace", "debug", "info", "warn", "error"}
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct. It also resolves the
// "auto" history backend: supabase when a Supabase URL is configured, sqlite otherwise.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateInferenceSettings(&settings.Inference); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := resolveHistorySecrets(&settings.History); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateHistorySettings(&settings.History); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateLoggingLevel(settings.Logging.DefaultLevel); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "Sentry DSN is required when Sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateWebServerSettings(settings *WebServerSettings) error {
	port, err := strconv.Atoi(settings.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("WebServer port must be a number between 1 and 65535, got %q", settings.Port)
	}

	if settings.SessionTTL <= 0 {
		return fmt.Errorf("WebServer session TTL must be positive, got %s", settings.SessionTTL)
	}

	// Uploads up to the 5 MiB image limit must reach the upload form so it can report "too large" itself
	if settings.MaxUploadBytes < 5*1024*1024 {
		return fmt.Errorf("WebServer max upload bytes must be at least 5 MiB, got %d", settings.MaxUploadBytes)
	}

	return nil
}

func validateInferenceSettings(settings *InferenceSettings) error {
	if err := validateHTTPURL(settings.BaseURL); err != nil {
		return fmt.Errorf("inference base URL: %w", err)
	}
	settings.BaseURL = strings.TrimRight(strings.TrimSpace(settings.BaseURL), "/")

	if settings.Timeout < 0 {
		return fmt.Errorf("inference timeout must not be negative, got %s", settings.Timeout)
	}
	if settings.CatalogCacheTTL < 0 {
		return fmt.Errorf("inference catalog cache TTL must not be negative, got %s", settings.CatalogCacheTTL)
	}
	if settings.RateLimit < 0 {
		return fmt.Errorf("inference rate limit must not be negative, got %g", settings.RateLimit)
	}
	if settings.RateLimit > 0 && settings.RateBurst < 1 {
		return fmt.Errorf("inference rate burst must be at least 1 when rate limiting, got %d", settings.RateBurst)
	}

	return nil
}

func validateHistorySettings(settings *HistorySettings) error {
	settings.Backend = strings.ToLower(strings.TrimSpace(settings.Backend))
	if settings.Backend == "" || settings.Backend == BackendAuto {
		settings.Backend = BackendSQLite
		if settings.Supabase.URL != "" {
			settings.Backend = BackendSupabase
		}
	}

	if settings.Limit < 1 || settings.Limit > 1000 {
		return fmt.Errorf("history limit must be between 1 and 1000, got %d", settings.Limit)
	}

	switch settings.Backend {
	case BackendSQLite:
		if settings.SQLite.Path == "" {
			return fmt.Errorf("history sqlite path is required")
		}
	case BackendMySQL:
		if settings.MySQL.Host == "" || settings.MySQL.Database == "" {
			return fmt.Errorf("history mysql host and database are required")
		}
	case BackendPostgres:
		if settings.Postgres.DSN == "" {
			return fmt.Errorf("history postgres dsn is required")
		}
	case BackendSupabase:
		if err := validateHTTPURL(settings.Supabase.URL); err != nil {
			return fmt.Errorf("supabase URL: %w", err)
		}
		if settings.Supabase.AnonKey == "" && settings.Supabase.ServiceKey == "" {
			return fmt.Errorf("supabase anon key or service key is required")
		}
	case BackendNone:
		if settings.Record {
			return fmt.Errorf("history recording requires a history backend")
		}
	default:
		return fmt.Errorf("history backend must be one of %s, got %q", strings.Join(validBackends, ", "), settings.Backend)
	}

	return nil
}

// resolveHistorySecrets replaces datastore credentials with the contents of
// their *File settings, or expands ${VAR} references in them.
func resolveHistorySecrets(settings *HistorySettings) error {
	targets := []struct {
		name  string
		file  string
		value *string
	}{
		{"mysql password", settings.MySQL.PasswordFile, &settings.MySQL.Password},
		{"postgres dsn", settings.Postgres.DSNFile, &settings.Postgres.DSN},
		{"supabase anon key", settings.Supabase.AnonKeyFile, &settings.Supabase.AnonKey},
		{"supabase service key", settings.Supabase.ServiceKeyFile, &settings.Supabase.ServiceKey},
	}
	for _, t := range targets {
		resolved, err := secrets.Resolve(t.file, *t.value)
		if err != nil {
			return fmt.Errorf("history %s: %w", t.name, err)
		}
		*t.value = resolved
	}
	return nil
}

func validateLoggingLevel(level string) error {
	if level == "" {
		return nil
	}
	return validateEnvLogLevel(level)
}
