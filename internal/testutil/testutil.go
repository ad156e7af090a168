// Package testutil holds fixtures and helpers shared by AgriLens tests.
package testutil

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agrilens/agrilens-go/internal/inference"
	"github.com/agrilens/agrilens-go/internal/logger"
)

// DefaultTestTimeout bounds waits on asynchronous work in tests.
const DefaultTestTimeout = 2 * time.Second

// WaitForChannel waits for a signal on ch or fails the test after timeout.
func WaitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
}

// QuietLogger discards everything below error.
func QuietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

// RiceQuery is the reference crop query: it yields "rice".
func RiceQuery() inference.CropQuery {
	return inference.CropQuery{N: 90, P: 42, K: 43, Temperature: 20.87, Humidity: 82, Ph: 6.5, Rainfall: 202.93}
}

// RiceResult is the service's answer to RiceQuery.
func RiceResult() *inference.CropResult {
	return &inference.CropResult{RecommendedCrop: "rice", Confidence: 97.5, InputParameters: RiceQuery()}
}
