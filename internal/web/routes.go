package web

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Route paths.
const (
	PathHome          = "/"
	PathCrop          = "/crop-recommendation"
	PathDisease       = "/disease-detection"
	PathDiseaseSelect = "/disease-detection/select"
	PathDiseaseReset  = "/disease-detection/reset"
	PathHistory       = "/history"
	PathHealthz       = "/healthz"
)

// initRoutes registers page, form and health routes.
func (s *Server) initRoutes() {
	s.Echo.GET(PathHome, s.homeHandler)

	s.Echo.GET(PathCrop, s.cropPageHandler)
	s.Echo.POST(PathCrop, s.cropSubmitHandler)

	limit := s.uploadBodyLimit()
	s.Echo.GET(PathDisease, s.diseasePageHandler)
	s.Echo.POST(PathDiseaseSelect, s.diseaseSelectHandler, limit)
	s.Echo.POST(PathDisease, s.diseaseSubmitHandler, limit)
	s.Echo.POST(PathDiseaseReset, s.diseaseResetHandler)

	s.Echo.GET(PathHistory, s.historyHandler)

	s.Echo.GET(PathHealthz, s.healthzHandler)

	if s.metrics != nil && s.Settings.Metrics.Enabled {
		path := s.Settings.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.Echo.GET(path, echo.WrapHandler(s.metrics.Handler()))
	}
}

func (s *Server) healthzHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}
