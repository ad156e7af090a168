package web

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// configureMiddleware sets up middleware for the server.
func (s *Server) configureMiddleware() {
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(requestIDMiddleware)
	if s.metrics != nil {
		s.Echo.Use(s.metricsMiddleware)
	}
	s.Echo.Use(s.requestLogger())
}

// uploadBodyLimit caps multipart uploads just above the image size limit so
// oversized images reach the upload form and get its message.
func (s *Server) uploadBodyLimit() echo.MiddlewareFunc {
	limit := s.Settings.WebServer.MaxUploadBytes
	if limit <= 0 {
		limit = conf.DefaultMaxUploadBytes
	}
	return middleware.BodyLimit(strconv.FormatInt(limit, 10) + "B")
}

func requestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()[:8]
			c.Request().Header.Set(requestIDHeader, id)
		}
		c.Response().Header().Set(requestIDHeader, id)
		return next(c)
	}
}

// requestLogger logs one line per request at a level chosen by status.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	httpLogger := s.log.Module("request")

	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:          true,
		LogStatus:       true,
		LogLatency:      true,
		LogRemoteIP:     true,
		LogMethod:       true,
		LogError:        true,
		LogResponseSize: true,
		HandleError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("request_id", c.Request().Header.Get(requestIDHeader)),
				logger.String("remote_ip", v.RemoteIP),
				logger.String("method", v.Method),
				logger.String("uri", logger.RedactSensitiveData(v.URI)),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
			}
			if v.ResponseSize > 0 {
				fields = append(fields, logger.Int64("resp_size", v.ResponseSize))
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}

			message := fmt.Sprintf("%s %s %d", v.Method, v.URI, v.Status)
			switch {
			case v.Status >= 500:
				httpLogger.Error(message, fields...)
			case v.Status >= 400:
				httpLogger.Warn(message, fields...)
			default:
				httpLogger.Debug(message, fields...)
			}
			return nil
		},
	})
}

// metricsMiddleware records request count, latency and response size by route.
func (s *Server) metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		s.metrics.HTTP.RecordHTTPRequest(
			c.Request().Method,
			path,
			c.Response().Status,
			time.Since(start).Seconds(),
			c.Response().Size,
		)
		return nil
	}
}
