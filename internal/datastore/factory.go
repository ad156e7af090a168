package datastore

import (
	"context"

	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/history"
	"github.com/agrilens/agrilens-go/internal/httpclient"
	"github.com/agrilens/agrilens-go/internal/logger"
)

// New opens the backend selected by settings.Backend. Settings are expected
// to be validated, so "auto" has already been resolved. hc is only used by
// the supabase backend and may be nil.
func New(ctx context.Context, settings *conf.HistorySettings, hc *httpclient.Client, log logger.Logger) (history.Backend, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}

	switch settings.Backend {
	case conf.BackendSQLite:
		return backend(OpenSQLite(settings.SQLite.Path, log))
	case conf.BackendMySQL:
		return backend(OpenMySQL(settings.MySQL, log))
	case conf.BackendPostgres:
		return backend(OpenPostgres(ctx, settings.Postgres.DSN, log))
	case conf.BackendSupabase:
		return backend(NewSupabaseStore(settings.Supabase, hc, log))
	case conf.BackendNone:
		log.Info("prediction history disabled")
		return NoneStore{}, nil
	default:
		return nil, configError("unknown history backend %q", settings.Backend)
	}
}

// backend avoids returning a typed nil inside a non-nil interface
func backend[T history.Backend](b T, err error) (history.Backend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}

// RecorderOf returns b as a Recorder, or nil when the backend is read-only.
func RecorderOf(b history.Backend) history.Recorder {
	if r, ok := b.(history.Recorder); ok {
		return r
	}
	return nil
}
