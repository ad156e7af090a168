package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilens/agrilens-go/internal/conf"
	"github.com/agrilens/agrilens-go/internal/logger"
	"github.com/agrilens/agrilens-go/internal/observability"
	"github.com/agrilens/agrilens-go/internal/testutil"
)

func quietLogger() logger.Logger {
	return testutil.QuietLogger()
}

func memorySettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.History.Backend = conf.BackendSQLite
	s.History.SQLite.Path = "file:" + t.Name() + "?mode=memory&cache=shared"
	s.History.Limit = 3
	s.History.Record = true
	s.History.UserID = "cli"
	s.Inference.BaseURL = "http://inference.test"
	return s
}

func TestOpenHistoryRecordsAndLoads(t *testing.T) {
	t.Parallel()

	settings := memorySettings(t)
	backend, err := OpenHistory(context.Background(), settings, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	saver := NewSaver(backend, settings, m, quietLogger())
	require.True(t, saver.Enabled())

	result := testutil.RiceResult()
	for range 4 {
		saver.SaveCrop(context.Background(), result.InputParameters, result)
	}

	view := NewHistoryLoader(backend, settings, m, quietLogger()).Load(context.Background())
	require.NoError(t, view.CropErr)
	require.NoError(t, view.DiseaseErr)
	assert.Len(t, view.Crops, 3)
	assert.Equal(t, "rice", view.Crops[0].RecommendedCrop)
	assert.Equal(t, "cli", view.Crops[0].UserID)
	assert.Empty(t, view.Diseases)
}

func TestNewSaverDisabled(t *testing.T) {
	t.Parallel()

	settings := memorySettings(t)
	settings.History.Record = false
	backend, err := OpenHistory(context.Background(), settings, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	assert.Nil(t, NewSaver(backend, settings, nil, quietLogger()))
}

func TestNewSaverReadOnlyBackend(t *testing.T) {
	t.Parallel()

	settings := memorySettings(t)
	settings.History.Backend = conf.BackendNone
	backend, err := OpenHistory(context.Background(), settings, quietLogger())
	require.NoError(t, err)

	saver := NewSaver(backend, settings, nil, quietLogger())
	assert.Nil(t, saver)
	assert.False(t, saver.Enabled())

	view := NewHistoryLoader(backend, settings, nil, quietLogger()).Load(context.Background())
	assert.False(t, view.Failed())
	assert.Zero(t, view.Total())
}

func TestNewInferenceClient(t *testing.T) {
	t.Parallel()

	settings := memorySettings(t)
	client, err := NewInferenceClient(settings, nil, quietLogger())
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "http://inference.test", client.BaseURL())

	settings.Inference.BaseURL = ""
	_, err = NewInferenceClient(settings, nil, quietLogger())
	assert.Error(t, err)
}

func TestInitLoggingDebugOverride(t *testing.T) {
	prev := logger.Global()
	t.Cleanup(func() { logger.SetGlobal(prev) })

	settings := &conf.Settings{Debug: true}
	settings.Logging = logger.LoggingConfig{
		DefaultLevel: "info",
		Console:      &logger.ConsoleOutput{Enabled: false, Level: "info"},
	}

	cl, err := InitLogging(settings)
	require.NoError(t, err)
	assert.Same(t, cl, logger.Global())
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	assert.Equal(t, "info", settings.Logging.Console.Level)
}
