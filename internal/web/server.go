// Package web serves the AgriLens pages: the crop recommendation form, the
// disease detection upload, the prediction history and a home page with the
// inference service status.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/history"
	"github.com/agrilens/agrilens-go/internal/inference"
	"github.com/agrilens/agrilens-go/internal/logger"
	"github.com/agrilens/agrilens-go/internal/observability"
)

// healthCheckTimeout bounds the home page's call to the inference service.
const healthCheckTimeout = 5 * time.Second

// Dependencies are the collaborators a Server needs. Adapter and Loader are
// required; the rest may be nil.
type Dependencies struct {
	Adapter inference.Adapter
	Loader  *history.Loader
	Saver   *history.Saver
	Metrics *observability.Metrics
	Logger  logger.Logger
}

// Server encapsulates the Echo server and the per-session form state.
type Server struct {
	Echo     *echo.Echo
	Settings *conf.Settings

	adapter  inference.Adapter
	loader   *history.Loader
	saver    *history.Saver
	metrics  *observability.Metrics
	sessions *SessionStore
	log      logger.Logger
}

// New initializes the server: templates, middleware and routes.
func New(settings *conf.Settings, deps Dependencies) (*Server, error) {
	if deps.Adapter == nil || deps.Loader == nil {
		return nil, errors.Newf("web server requires an inference adapter and a history loader").
			Component("web").
			Category(errors.CategoryConfiguration).
			Build()
	}

	log := deps.Logger
	if log == nil {
		log = logger.Global().Module("web")
	}

	s := &Server{
		Echo:     echo.New(),
		Settings: settings,
		adapter:  deps.Adapter,
		loader:   deps.Loader,
		saver:    deps.Saver,
		metrics:  deps.Metrics,
		log:      log,
	}
	s.sessions = NewSessionStore(settings.WebServer.SessionTTL, settings.WebServer.SessionSecret, s.newSession)
	if s.metrics != nil {
		s.sessions.OnCountChange(s.metrics.HTTP.SetActiveSessions)
	}

	s.Echo.HideBanner = true
	s.Echo.HidePort = true

	renderer, err := newTemplateRenderer(s.log, s.metrics)
	if err != nil {
		return nil, err
	}
	s.Echo.Renderer = renderer
	s.Echo.HTTPErrorHandler = s.handleHTTPError

	s.configureMiddleware()
	s.initRoutes()
	return s, nil
}

// Sessions returns the session store.
func (s *Server) Sessions() *SessionStore {
	return s.sessions
}

// Address is the host:port the server listens on.
func (s *Server) Address() string {
	return net.JoinHostPort(s.Settings.WebServer.Host, s.Settings.WebServer.Port)
}

// Start serves HTTP until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.Address(),
		ReadTimeout:  s.Settings.WebServer.ReadTimeout,
		WriteTimeout: s.Settings.WebServer.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server started", logger.String("address", srv.Addr))
		if err := s.Echo.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return errors.New(err).
			Component("web").
			Category(errors.CategoryNetwork).
			Context("operation", "listen").
			Context("address", srv.Addr).
			Build()
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops the HTTP server and releases the session store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	err := s.Echo.Shutdown(ctx)
	s.sessions.Close()
	if err != nil {
		return errors.New(err).
			Component("web").
			Category(errors.CategorySystem).
			Context("operation", "shutdown").
			Build()
	}
	return nil
}

// handleHTTPError renders the error page for errors returned by handlers.
func (s *Server) handleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "An unexpected error occurred"

	var echoErr *echo.HTTPError
	var enhancedErr *errors.EnhancedError
	switch {
	case errors.As(err, &echoErr):
		code = echoErr.Code
		if m, ok := echoErr.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	case errors.As(err, &enhancedErr):
		code = statusForCategory(enhancedErr.Category)
	}

	if code >= http.StatusInternalServerError {
		s.log.Error("request failed",
			logger.String("method", c.Request().Method),
			logger.String("path", c.Path()),
			logger.Int("status", code),
			logger.Error(err))
	}

	data := errorPage{
		pageData: s.page("Error", ""),
		Code:     code,
		Message:  message,
	}
	if renderErr := c.Render(code, "error", data); renderErr != nil {
		_ = c.String(code, message)
	}
}

func statusForCategory(category errors.ErrorCategory) int {
	switch category {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryNetwork, errors.CategoryDatabase:
		return http.StatusBadGateway
	case errors.CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
