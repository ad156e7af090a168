package telemetry

import (
	"regexp"

	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/logger"
)

// skippedCategories are expected outcomes, not faults worth reporting
var skippedCategories = map[string]bool{
	string(errors.CategoryValidation):   true,
	string(errors.CategoryCancellation): true,
}

// filteringReporter forwards enhanced errors to Sentry except for user
// input mistakes and cancellations.
type filteringReporter struct {
	inner errors.TelemetryReporter
}

func (r *filteringReporter) IsEnabled() bool {
	return r.inner.IsEnabled()
}

func (r *filteringReporter) ReportError(ee *errors.EnhancedError) {
	if skippedCategories[ee.GetCategory()] {
		return
	}
	r.inner.ReportError(ee)
}

// InitializeErrorIntegration installs the Sentry reporter and the privacy
// scrubber in the error package.
func InitializeErrorIntegration(enabled bool) {
	errors.SetTelemetryReporter(&filteringReporter{inner: errors.NewSentryReporter(enabled)})
	errors.SetPrivacyScrubber(ScrubMessage)
}

var urlQueryRegex = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)

// ScrubMessage removes credentials, tokens and URL query strings from message.
func ScrubMessage(message string) string {
	message = urlQueryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	return logger.RedactSensitiveData(message)
}
