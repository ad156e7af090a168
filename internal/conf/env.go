// env.go - environment variable configuration and validation for AgriLens
package conf

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agrilens/agrilens-go/internal/errors"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "AGRILENS_DEBUG", validateEnvBool},
		{"logging.default_level", "AGRILENS_LOG_LEVEL", validateEnvLogLevel},

		{"webserver.host", "AGRILENS_HOST", nil},
		{"webserver.port", "AGRILENS_PORT", validateEnvPort},
		{"webserver.sessionttl", "AGRILENS_SESSION_TTL", validateEnvDuration},
		{"webserver.sessionsecret", "AGRILENS_SESSION_SECRET", nil},

		{"inference.baseurl", "AGRILENS_INFERENCE_URL", validateEnvURL},
		{"inference.timeout", "AGRILENS_INFERENCE_TIMEOUT", validateEnvDuration},
		{"inference.catalogcachettl", "AGRILENS_CATALOG_CACHE_TTL", validateEnvDuration},
		{"inference.ratelimit", "AGRILENS_INFERENCE_RATE_LIMIT", nil},
		{"inference.rateburst", "AGRILENS_INFERENCE_RATE_BURST", nil},

		{"history.backend", "AGRILENS_HISTORY_BACKEND", validateEnvBackend},
		{"history.record", "AGRILENS_HISTORY_RECORD", validateEnvBool},
		{"history.userid", "AGRILENS_HISTORY_USER_ID", nil},
		{"history.sqlite.path", "AGRILENS_SQLITE_PATH", nil},
		{"history.mysql.host", "AGRILENS_MYSQL_HOST", nil},
		{"history.mysql.port", "AGRILENS_MYSQL_PORT", validateEnvPort},
		{"history.mysql.username", "AGRILENS_MYSQL_USERNAME", nil},
		{"history.mysql.password", "AGRILENS_MYSQL_PASSWORD", nil},
		{"history.mysql.passwordfile", "AGRILENS_MYSQL_PASSWORD_FILE", nil},
		{"history.mysql.database", "AGRILENS_MYSQL_DATABASE", nil},
		{"history.postgres.dsn", "AGRILENS_POSTGRES_DSN", nil},
		{"history.postgres.dsnfile", "AGRILENS_POSTGRES_DSN_FILE", nil},

		// Supabase variables keep the names used by the hosted deployment
		{"history.supabase.url", "SUPABASE_URL", validateEnvURL},
		{"history.supabase.anonkey", "SUPABASE_ANON_KEY", nil},
		{"history.supabase.servicekey", "SUPABASE_SERVICE_KEY", nil},
		{"history.supabase.anonkeyfile", "SUPABASE_ANON_KEY_FILE", nil},
		{"history.supabase.servicekeyfile", "SUPABASE_SERVICE_KEY_FILE", nil},

		{"metrics.enabled", "AGRILENS_METRICS_ENABLED", validateEnvBool},
		{"sentry.enabled", "AGRILENS_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "SENTRY_DSN", nil},
		{"sentry.environment", "AGRILENS_ENVIRONMENT", nil},
	}
}

// loadDotEnv loads variables from a .env file without overriding the real environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileIO).
			Context("operation", "stat_dotenv").
			Build()
	}

	if err := godotenv.Load(path); err != nil {
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileParsing).
			Context("operation", "load_dotenv").
			Build()
	}
	return nil
}

// bindEnvVars sets up environment variable bindings with validation
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value: %v", binding.EnvVar, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return errors.Newf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - ")).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("duration must not be negative, got %s", d)
	}
	return nil
}

func validateEnvURL(value string) error {
	return validateHTTPURL(value)
}

func validateEnvBackend(value string) error {
	if !slices.Contains(validBackends, value) {
		return fmt.Errorf("must be one of: %s", strings.Join(validBackends, ", "))
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	if !slices.Contains(validLogLevels, strings.ToLower(value)) {
		return fmt.Errorf("must be one of: %s", strings.Join(validLogLevels, ", "))
	}
	return nil
}

// validateHTTPURL checks that value is an absolute http(s) URL with a host
func validateHTTPURL(value string) error {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host: %q", value)
	}
	return nil
}
