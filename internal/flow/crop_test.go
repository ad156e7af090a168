package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/inference"
)

func fillCropForm(t *testing.T, f *CropForm, values map[Field]string) {
	t.Helper()
	for field, v := range values {
		require.NoError(t, f.FieldEdited(field, v))
	}
}

func riceValues() map[Field]string {
	return map[Field]string{
		FieldNitrogen:    "90",
		FieldPhosphorus:  "42",
		FieldPotassium:   "43",
		FieldTemperature: "20.87",
		FieldHumidity:    "82",
		FieldPh:          "6.5",
		FieldRainfall:    "202.93",
	}
}

func TestCropForm_RiceScenario(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{cropResult: riceResult()}
	f := NewCropForm(adapter, WithLogger(quietLogger()))
	fillCropForm(t, f, riceValues())
	assert.Equal(t, CropEditing, f.State())

	require.NoError(t, f.Submit(t.Context()))

	view := f.View()
	assert.Equal(t, CropSucceeded, view.State)
	require.NotNil(t, view.Result)
	assert.Equal(t, "rice", view.Result.RecommendedCrop)
	assert.InDelta(t, 97.5, view.Result.Confidence, 1e-9)
	assert.Empty(t, view.Message)
	assert.Equal(t, int32(1), adapter.cropCalls.Load())
}

func TestCropForm_ViewPairsResultWithSubmittedQuery(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		cropResult: riceResult(),
		started:    make(chan struct{}, 1),
		gate:       make(chan struct{}),
	}
	f := NewCropForm(adapter, WithLogger(quietLogger()))
	fillCropForm(t, f, riceValues())

	done := make(chan error, 1)
	go func() { done <- f.Submit(context.Background()) }()
	waitStarted(t, adapter.started)

	// Edits made while the call runs belong to the next submission.
	require.NoError(t, f.FieldEdited(FieldNitrogen, "10"))
	close(adapter.gate)
	require.NoError(t, <-done)

	view := f.View()
	require.NotNil(t, view.Result)
	assert.InDelta(t, 90, view.Query.N, 1e-9)
	assert.Equal(t, "10", view.Values[FieldNitrogen])
}

func TestCropState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "validating", CropValidating.String())
	assert.Equal(t, "unknown", CropState(-1).String())
}

func TestCropForm_FieldEditedReturnsToEditing(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{cropErr: errors.NewStd("boom")}
	f := NewCropForm(adapter, WithLogger(quietLogger()))
	fillCropForm(t, f, riceValues())

	err := f.Submit(t.Context())
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindNetwork, fe.Kind)
	assert.Equal(t, CropFailed, f.State())
	assert.Equal(t, CropFailureMessage, f.View().Message)

	require.NoError(t, f.FieldEdited(FieldPh, "7"))
	assert.Equal(t, CropEditing, f.State())
	assert.Equal(t, "7", f.Values()[FieldPh])
}

func TestCropForm_UnknownField(t *testing.T) {
	t.Parallel()

	f := NewCropForm(&fakeAdapter{}, WithLogger(quietLogger()))
	err := f.FieldEdited("magnesium", "3")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestCropForm_InvalidInputNeverCallsAdapter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		field  Field
		value  string
		reason string
	}{
		{"empty", FieldNitrogen, "", "Nitrogen (N) is required"},
		{"whitespace", FieldPotassium, "   ", "Potassium (K) is required"},
		{"not a number", FieldHumidity, "wet", "Humidity must be a number"},
		{"NaN", FieldPh, "NaN", "Soil pH must be a number"},
		{"infinity", FieldRainfall, "+Inf", "Rainfall must be a number"},
		{"below range", FieldTemperature, "-10.5", "Temperature must be between -10 and 60"},
		{"above range", FieldPh, "14.01", "Soil pH must be between 0 and 14"},
		{"above range N", FieldNitrogen, "201", "Nitrogen (N) must be between 0 and 200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			adapter := &fakeAdapter{cropResult: riceResult()}
			f := NewCropForm(adapter, WithLogger(quietLogger()))
			fillCropForm(t, f, riceValues())
			require.NoError(t, f.FieldEdited(tt.field, tt.value))

			err := f.Submit(t.Context())
			var fe *Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, KindValidation, fe.Kind)
			assert.Equal(t, tt.reason, fe.Reason)

			view := f.View()
			assert.Equal(t, CropFailed, view.State)
			assert.Equal(t, tt.reason, view.Message)
			assert.Nil(t, view.Result)
			assert.Zero(t, adapter.cropCalls.Load())
		})
	}
}

func TestParseCropQuery(t *testing.T) {
	t.Parallel()

	values := riceValues()
	values[FieldTemperature] = "20." // in-progress editing text still parses
	values[FieldHumidity] = " 82 "

	q, verr := ParseCropQuery(values)
	require.Nil(t, verr)
	assert.Equal(t, inference.CropQuery{N: 90, P: 42, K: 43, Temperature: 20, Humidity: 82, Ph: 6.5, Rainfall: 202.93}, q)

	values[FieldRainfall] = "500"
	values[FieldTemperature] = "-10"
	_, verr = ParseCropQuery(values)
	assert.Nil(t, verr, "range bounds are inclusive")
}

func TestParseCropQuery_FirstFailingFieldWins(t *testing.T) {
	t.Parallel()

	_, verr := ParseCropQuery(map[Field]string{FieldRainfall: "x"})
	require.NotNil(t, verr)
	assert.Equal(t, "Nitrogen (N) is required", verr.Reason)
}

func TestCropForm_ConcurrentSubmitCallsAdapterOnce(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		cropResult: riceResult(),
		started:    make(chan struct{}, 1),
		gate:       make(chan struct{}),
	}
	f := NewCropForm(adapter, WithLogger(quietLogger()))
	fillCropForm(t, f, riceValues())

	done := make(chan error, 1)
	go func() { done <- f.Submit(context.Background()) }()
	waitStarted(t, adapter.started)
	assert.Equal(t, CropSubmitting, f.State())

	assert.ErrorIs(t, f.Submit(t.Context()), ErrSubmissionInFlight)
	assert.Equal(t, CropSubmitting, f.State())

	close(adapter.gate)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), adapter.cropCalls.Load())
	assert.Equal(t, CropSucceeded, f.State())
}

func TestCropForm_CanceledContextIsNetworkFailure(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{gate: make(chan struct{})}
	f := NewCropForm(adapter, WithLogger(quietLogger()))
	fillCropForm(t, f, riceValues())

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := f.Submit(ctx)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindNetwork, fe.Kind)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.lc.InFlight())
}

func TestLookupField(t *testing.T) {
	t.Parallel()

	spec, ok := LookupField("ph")
	require.True(t, ok)
	assert.Equal(t, "Soil pH", spec.Label)
	assert.InDelta(t, 14.0, spec.Max, 0)

	_, ok = LookupField("PH")
	assert.False(t, ok)
}
