package web

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/logger"
	"github.com/agrilens/agrilens-go/internal/observability"
)

//go:embed templates/*.html
var templatesFS embed.FS

// DateLayout is how stored timestamps are shown.
const DateLayout = "Jan 2, 2006, 03:04 PM"

// TemplateRenderer is a custom HTML template renderer for Echo framework.
type TemplateRenderer struct {
	templates *template.Template
	metrics   *observability.Metrics
	log       logger.Logger
}

func newTemplateRenderer(log logger.Logger, m *observability.Metrics) (*TemplateRenderer, error) {
	tmpl, err := template.New("").Funcs(templateFunctions()).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, errors.New(err).
			Component("web").
			Category(errors.CategoryFileParsing).
			Context("operation", "parse_templates").
			Build()
	}
	return &TemplateRenderer{templates: tmpl, metrics: m, log: log}, nil
}

// Render executes the named template into a buffer first so a failing
// template never leaves a half-written page.
func (t *TemplateRenderer) Render(w io.Writer, name string, data any, c echo.Context) error {
	var buf bytes.Buffer
	if err := t.templates.ExecuteTemplate(&buf, name, data); err != nil {
		t.log.Error("error executing template",
			logger.String("template", name),
			logger.Error(err))
		if t.metrics != nil {
			t.metrics.HTTP.RecordTemplateRenderError(name)
		}
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func templateFunctions() template.FuncMap {
	return template.FuncMap{
		"cropName":    cropName,
		"diseaseName": diseaseName,
		"percent":     percent,
		"number":      number,
		"date":        formatDate,
	}
}

// cropName title-cases a crop label: "kidney_beans" becomes "Kidney Beans".
func cropName(label string) string {
	// Casers keep state, so one per call.
	return cases.Title(language.English).String(strings.ReplaceAll(label, "_", " "))
}

// diseaseName shows a class label with underscores as spaces.
func diseaseName(label string) string {
	return strings.ReplaceAll(label, "_", " ")
}

// percent renders a confidence the service already expressed in percent.
func percent(v float64) string {
	return number(v) + "%"
}

// number renders v with the fewest digits that round-trip.
func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(DateLayout)
}
