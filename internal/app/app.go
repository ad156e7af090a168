// Package app wires configuration, logging, telemetry, the inference client,
// the history datastore and the web server into a running AgriLens process.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/agrilens/agrilens-go/internal/buildinfo"
	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/datastore"
	"github.com/agrilens/agrilens-go/internal/history"
	"github.com/agrilens/agrilens-go/internal/httpclient"
	"github.com/agrilens/agrilens-go/internal/inference"
	"github.com/agrilens/agrilens-go/internal/logger"
	"github.com/agrilens/agrilens-go/internal/observability"
	"github.com/agrilens/agrilens-go/internal/observability/metrics"
	"github.com/agrilens/agrilens-go/internal/telemetry"
	"github.com/agrilens/agrilens-go/internal/web"
)

const sentryFlushTimeout = 2 * time.Second

// InitLogging installs the global logger from settings. debug forces the
// default level to debug.
func InitLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
	}
	cl, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, fmt.Errorf("error initializing logger: %w", err)
	}
	logger.SetGlobal(cl)
	return cl, nil
}

// NewInferenceClient builds the inference adapter from settings. m may be nil.
func NewInferenceClient(settings *conf.Settings, m *observability.Metrics, log logger.Logger) (*inference.Client, error) {
	opts := []inference.Option{inference.WithLogger(log)}
	if m != nil {
		opts = append(opts, inference.WithMetrics(m.Inference))
	}
	return inference.NewClient(inference.Config{
		BaseURL:         settings.Inference.BaseURL,
		Timeout:         settings.Inference.Timeout,
		CatalogCacheTTL: settings.Inference.CatalogCacheTTL,
		RateLimit:       settings.Inference.RateLimit,
		RateBurst:       settings.Inference.RateBurst,
	}, opts...)
}

// OpenHistory opens the configured history backend.
func OpenHistory(ctx context.Context, settings *conf.Settings, log logger.Logger) (history.Backend, error) {
	hc := httpclient.New(&httpclient.Config{DefaultTimeout: 15 * time.Second})
	if log != nil {
		hc.SetAfterResponseHook(func(req *http.Request, resp *http.Response, err error) {
			logDatastoreResponse(log, req, resp, err)
		})
	}
	return datastore.New(ctx, &settings.History, hc, log)
}

// NewHistoryLoader returns a loader over store using the configured limit.
func NewHistoryLoader(store history.Store, settings *conf.Settings, m *observability.Metrics, log logger.Logger) *history.Loader {
	opts := []history.LoaderOption{
		history.WithLimit(settings.History.Limit),
		history.WithLogger(log),
	}
	if m != nil {
		opts = append(opts, history.WithMetrics(m.History))
	}
	return history.NewLoader(store, opts...)
}

// NewSaver returns the prediction recorder, or nil when recording is off or
// the backend is read-only.
func NewSaver(backend history.Backend, settings *conf.Settings, m *observability.Metrics, log logger.Logger) *history.Saver {
	if !settings.History.Record {
		return nil
	}
	recorder := datastore.RecorderOf(backend)
	if recorder == nil {
		log.Warn("history backend does not support recording predictions",
			logger.String("backend", backend.Name()))
		return nil
	}
	var rec metrics.Recorder
	if m != nil {
		rec = m.History
	}
	return history.NewSaver(recorder, settings.History.UserID, rec, log)
}

// Serve runs the web application until ctx is canceled.
func Serve(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	log := logger.Global().Module("main")
	log.Info("starting AgriLens",
		logger.String("version", build.Version()),
		logger.String("build_date", build.BuildDate()))

	enabled, err := telemetry.InitSentry(&settings.Sentry, build.Release())
	if err != nil {
		return err
	}
	if enabled {
		defer telemetry.Flush(sentryFlushTimeout)
	}

	var m *observability.Metrics
	if settings.Metrics.Enabled {
		if m, err = observability.NewMetrics(); err != nil {
			return fmt.Errorf("error initializing metrics: %w", err)
		}
	}

	client, err := NewInferenceClient(settings, m, logger.Global().Module("inference"))
	if err != nil {
		return err
	}
	defer client.Close()

	datastoreLog := logger.Global().Module("datastore")
	backend, err := OpenHistory(ctx, settings, datastoreLog)
	if err != nil {
		return err
	}
	defer closeBackend(backend, log)
	log.Info("history backend opened", logger.String("backend", backend.Name()))

	historyLog := logger.Global().Module("history")
	server, err := web.New(settings, web.Dependencies{
		Adapter: client,
		Loader:  NewHistoryLoader(backend, settings, m, historyLog),
		Saver:   NewSaver(backend, settings, m, historyLog),
		Metrics: m,
		Logger:  logger.Global().Module("web"),
	})
	if err != nil {
		return err
	}

	return server.Start(ctx)
}

func logDatastoreResponse(log logger.Logger, req *http.Request, resp *http.Response, err error) {
	fields := []logger.Field{
		logger.String("method", req.Method),
		logger.String("path", req.URL.Path),
	}
	if err != nil {
		log.Debug("datastore request failed", append(fields, logger.Error(err))...)
		return
	}
	log.Debug("datastore request", append(fields, logger.Int("status", resp.StatusCode))...)
}

func closeBackend(backend history.Backend, log logger.Logger) {
	if err := backend.Close(); err != nil {
		log.Error("failed to close history backend", logger.Error(err))
	}
}
