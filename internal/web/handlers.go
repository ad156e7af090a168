package web

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/flow"
	"github.com/agrilens/agrilens-go/internal/inference"
	"github.com/agrilens/agrilens-go/internal/logger"
)

const uploadField = "file"

// newSession builds the forms for a new browser session.
func (s *Server) newSession(id string) *Session {
	opts := []flow.LifecycleOption{flow.WithLogger(s.log.Module("flow"))}
	if s.metrics != nil {
		opts = append(opts, flow.WithObserver(s.metrics.HTTP))
	}
	return &Session{
		ID:     id,
		Crop:   flow.NewCropForm(s.adapter, opts...),
		Upload: flow.NewUploadForm(s.adapter, flow.WithLifecycle(opts...)),
	}
}

// submitStatus maps a submission outcome to the status of the rendered page.
func submitStatus(err error) int {
	var fe *flow.Error
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, flow.ErrSubmissionInFlight):
		return http.StatusConflict
	case errors.As(err, &fe) && fe.IsValidation():
		return http.StatusUnprocessableEntity
	case errors.As(err, &fe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) homeHandler(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	data := homePage{pageData: s.page("Home", "home")}
	status, err := s.adapter.HealthCheck(ctx)
	switch {
	case err != nil:
		s.log.Warn("inference service health check failed", logger.Error(err))
	case status.Healthy():
		data.ServiceOnline = true
		data.ServiceMessage = status.Message
	default:
		data.ServiceMessage = status.Message
	}
	return c.Render(http.StatusOK, "home", data)
}

func (s *Server) cropPageHandler(c echo.Context) error {
	sess := s.sessions.Get(c)
	return c.Render(http.StatusOK, "crop", newCropPage(s.page("Crop Recommendation", "crop"), sess.Crop.View()))
}

func (s *Server) cropSubmitHandler(c echo.Context) error {
	sess := s.sessions.Get(c)

	params, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form data")
	}
	for _, spec := range flow.CropFields {
		if values, ok := params[string(spec.Field)]; ok && len(values) > 0 {
			if err := sess.Crop.FieldEdited(spec.Field, strings.TrimSpace(values[0])); err != nil {
				return err
			}
		}
	}

	submitErr := sess.Crop.Submit(c.Request().Context())
	view := sess.Crop.View()

	if submitErr == nil && view.Result != nil && s.saver.Enabled() {
		s.saver.SaveCrop(context.WithoutCancel(c.Request().Context()), view.Query, view.Result)
	}

	return c.Render(submitStatus(submitErr), "crop", newCropPage(s.page("Crop Recommendation", "crop"), view))
}

func (s *Server) diseasePageHandler(c echo.Context) error {
	sess := s.sessions.Get(c)
	return c.Render(http.StatusOK, "disease", newDiseasePage(s.page("Disease Detection", "disease"), sess.Upload.View()))
}

// diseaseSelectHandler validates the posted image and waits for its preview.
func (s *Server) diseaseSelectHandler(c echo.Context) error {
	sess := s.sessions.Get(c)

	file, present, err := readUpload(c)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if present {
		if selErr := sess.Upload.Select(file); selErr != nil {
			status = submitStatus(selErr)
		} else if _, err := sess.Upload.AwaitPreview(c.Request().Context()); err != nil {
			s.log.Debug("preview not ready", logger.Error(err))
		}
	}
	return c.Render(status, "disease", newDiseasePage(s.page("Disease Detection", "disease"), sess.Upload.View()))
}

// diseaseSubmitHandler submits the current selection, selecting a posted
// file first when one is attached.
func (s *Server) diseaseSubmitHandler(c echo.Context) error {
	sess := s.sessions.Get(c)

	file, present, err := readUpload(c)
	if err != nil {
		return err
	}

	var submitErr error
	if present {
		submitErr = sess.Upload.Select(file)
	}
	if submitErr == nil {
		submitErr = sess.Upload.Submit(c.Request().Context())
	}
	if _, err := sess.Upload.AwaitPreview(c.Request().Context()); err != nil {
		s.log.Debug("preview not ready", logger.Error(err))
	}
	view := sess.Upload.View()

	if submitErr == nil && view.Result != nil && s.saver.Enabled() {
		s.saver.SaveDisease(context.WithoutCancel(c.Request().Context()), view.Result)
	}

	return c.Render(submitStatus(submitErr), "disease", newDiseasePage(s.page("Disease Detection", "disease"), view))
}

func (s *Server) diseaseResetHandler(c echo.Context) error {
	s.sessions.Get(c).Upload.Reset()
	return c.Redirect(http.StatusSeeOther, PathDisease)
}

func (s *Server) historyHandler(c echo.Context) error {
	tab := c.QueryParam("tab")
	if tab != "disease" {
		tab = "crop"
	}
	view := s.loader.Load(c.Request().Context())
	return c.Render(http.StatusOK, "history", historyPage{
		pageData: s.page("Prediction History", "history"),
		View:     view,
		Tab:      tab,
	})
}

// readUpload reads the multipart image field. present is false when the
// request carries no file.
func readUpload(c echo.Context) (file inference.ImageFile, present bool, err error) {
	fh, err := c.FormFile(uploadField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return inference.ImageFile{}, false, nil
		}
		return inference.ImageFile{}, false, echo.NewHTTPError(http.StatusBadRequest, "invalid upload")
	}
	if fh.Filename == "" && fh.Size == 0 {
		return inference.ImageFile{}, false, nil
	}

	data, err := readPart(fh)
	if err != nil {
		return inference.ImageFile{}, false, errors.New(err).
			Component("web").
			Category(errors.CategoryFileIO).
			FileContext(fh.Filename, fh.Size).
			Context("operation", "read_upload").
			Build()
	}

	return inference.ImageFile{
		Name:        fh.Filename,
		ContentType: uploadContentType(fh, data),
		Size:        fh.Size,
		Data:        data,
	}, true, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

// uploadContentType trusts the part's declared type, sniffing the bytes only
// when the browser sent none or a generic one.
func uploadContentType(fh *multipart.FileHeader, data []byte) string {
	ct := fh.Header.Get(echo.HeaderContentType)
	if ct == "" || ct == echo.MIMEOctetStream {
		ct = http.DetectContentType(data)
	}
	return ct
}
