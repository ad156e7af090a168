package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with the packages that consume them.
const (
	DefaultInferenceBaseURL = "https://web-production-26984.up.railway.app"
	DefaultHistoryLimit     = 20
	DefaultSessionTTL       = 30 * time.Minute
	DefaultMaxUploadBytes   = 6 * 1024 * 1024
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "AgriLens")

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/agrilens.log")
	viper.SetDefault("logging.file_output.level", "info")
	viper.SetDefault("logging.file_output.max_size", 50)
	viper.SetDefault("logging.file_output.max_age", 30)
	viper.SetDefault("logging.file_output.max_rotated_files", 5)
	viper.SetDefault("logging.file_output.compress", false)

	viper.SetDefault("webserver.host", "")
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.sessionttl", DefaultSessionTTL)
	viper.SetDefault("webserver.sessionsecret", "")
	viper.SetDefault("webserver.maxuploadbytes", DefaultMaxUploadBytes)
	viper.SetDefault("webserver.readtimeout", 30*time.Second)
	viper.SetDefault("webserver.writetimeout", 90*time.Second)

	viper.SetDefault("inference.baseurl", DefaultInferenceBaseURL)
	viper.SetDefault("inference.timeout", time.Duration(0))
	viper.SetDefault("inference.catalogcachettl", time.Duration(0))
	viper.SetDefault("inference.ratelimit", 0.0)
	viper.SetDefault("inference.rateburst", 1)

	viper.SetDefault("history.backend", BackendAuto)
	viper.SetDefault("history.limit", DefaultHistoryLimit)
	viper.SetDefault("history.record", false)
	viper.SetDefault("history.userid", "anonymous")
	viper.SetDefault("history.sqlite.path", "agrilens.db")
	viper.SetDefault("history.mysql.host", "localhost")
	viper.SetDefault("history.mysql.port", "3306")
	viper.SetDefault("history.mysql.database", "agrilens")
	viper.SetDefault("history.postgres.dsn", "")
	viper.SetDefault("history.supabase.url", "")
	viper.SetDefault("history.supabase.anonkey", "")
	viper.SetDefault("history.supabase.servicekey", "")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.samplerate", 1.0)
}
