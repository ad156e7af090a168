// Package metrics provides Prometheus metrics for AgriLens components.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on this abstraction so tests can pass nil or a fake.
type Recorder interface {
	// RecordOperation records an operation (e.g. "recommend_crop") with its status ("success", "error").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its type (e.g. "network", "validation").
	RecordError(operation, errorType string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(string, string) {}
func (NopRecorder) RecordDuration(string, float64) {}
func (NopRecorder) RecordError(string, string)     {}
