package conf

import (
	"gopkg.in/yaml.v3"
)

const maskedSecret = "********"

// MarshalMaskedYAML renders settings as YAML with credentials masked, for "config show".
func (s *Settings) MarshalMaskedYAML() ([]byte, error) {
	masked := *s
	masked.WebServer.SessionSecret = maskIfSet(s.WebServer.SessionSecret)
	masked.History.MySQL.Password = maskIfSet(s.History.MySQL.Password)
	masked.History.Postgres.DSN = maskIfSet(s.History.Postgres.DSN)
	masked.History.Supabase.AnonKey = maskIfSet(s.History.Supabase.AnonKey)
	masked.History.Supabase.ServiceKey = maskIfSet(s.History.Supabase.ServiceKey)
	masked.Sentry.DSN = maskIfSet(s.Sentry.DSN)

	return yaml.Marshal(&masked)
}

func maskIfSet(value string) string {
	if value == "" {
		return ""
	}
	return maskedSecret
}
