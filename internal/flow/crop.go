package flow

import (
	"context"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/inference"
)

// CropFlowName labels crop submissions in logs and metrics.
const CropFlowName = "crop"

// Field names a crop form input. Values match the inference JSON keys.
type Field string

const (
	FieldNitrogen    Field = "N"
	FieldPhosphorus  Field = "P"
	FieldPotassium   Field = "K"
	FieldTemperature Field = "temperature"
	FieldHumidity    Field = "humidity"
	FieldPh          Field = "ph"
	FieldRainfall    Field = "rainfall"
)

// FieldSpec describes one crop form input and its accepted range.
type FieldSpec struct {
	Field       Field
	Label       string
	Unit        string
	Min         float64
	Max         float64
	Step        string
	Placeholder string
}

// CropFields lists the inputs in display and validation order.
var CropFields = []FieldSpec{
	{Field: FieldNitrogen, Label: "Nitrogen (N)", Unit: "kg/ha", Min: 0, Max: 200, Step: "any", Placeholder: "e.g. 90"},
	{Field: FieldPhosphorus, Label: "Phosphorus (P)", Unit: "kg/ha", Min: 0, Max: 200, Step: "any", Placeholder: "e.g. 42"},
	{Field: FieldPotassium, Label: "Potassium (K)", Unit: "kg/ha", Min: 0, Max: 200, Step: "any", Placeholder: "e.g. 43"},
	{Field: FieldTemperature, Label: "Temperature", Unit: "°C", Min: -10, Max: 60, Step: "0.01", Placeholder: "e.g. 20.87"},
	{Field: FieldHumidity, Label: "Humidity", Unit: "%", Min: 0, Max: 100, Step: "0.01", Placeholder: "e.g. 82"},
	{Field: FieldPh, Label: "Soil pH", Unit: "", Min: 0, Max: 14, Step: "0.01", Placeholder: "e.g. 6.5"},
	{Field: FieldRainfall, Label: "Rainfall", Unit: "mm", Min: 0, Max: 500, Step: "0.01", Placeholder: "e.g. 202.93"},
}

var cropFieldIndex = func() map[Field]FieldSpec {
	m := make(map[Field]FieldSpec, len(CropFields))
	for _, spec := range CropFields {
		m[spec.Field] = spec
	}
	return m
}()

// LookupField returns the spec for name.
func LookupField(name string) (FieldSpec, bool) {
	spec, ok := cropFieldIndex[Field(name)]
	return spec, ok
}

// CropState is the crop form's position.
type CropState int

const (
	CropEditing CropState = iota
	CropValidating
	CropSubmitting
	CropSucceeded
	CropFailed
)

func (s CropState) String() string {
	switch s {
	case CropEditing:
		return "editing"
	case CropValidating:
		return "validating"
	case CropSubmitting:
		return "submitting"
	case CropSucceeded:
		return "succeeded"
	case CropFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CropView is what the crop page renders.
type CropView struct {
	State   CropState
	Values  map[Field]string
	Query   inference.CropQuery // the submitted query behind Result
	Result  *inference.CropResult
	Err     *Error
	Message string
}

// CropForm is one session's crop recommendation form. Field values are kept
// as raw text and only parsed on submit.
type CropForm struct {
	lc *Lifecycle[inference.CropQuery, *inference.CropResult]

	mu         sync.Mutex
	values     map[Field]string
	validating bool
	edited     bool
}

// NewCropForm returns an empty form submitting through adapter.
func NewCropForm(adapter inference.Adapter, opts ...LifecycleOption) *CropForm {
	return &CropForm{
		lc:     NewLifecycle(CropFlowName, adapter.RecommendCrop, opts...),
		values: make(map[Field]string, len(CropFields)),
	}
}

// FieldEdited stores the raw text for field and moves the form to Editing.
// The last outcome stays visible until the next submit.
func (f *CropForm) FieldEdited(field Field, value string) error {
	if _, ok := cropFieldIndex[field]; !ok {
		return errors.Newf("unknown crop field %q", field).
			Component("flow").
			Category(errors.CategoryValidation).
			Build()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[field] = value
	f.edited = true
	return nil
}

// Values returns a copy of the raw field text.
func (f *CropForm) Values() map[Field]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.values)
}

// State returns the current state.
func (f *CropForm) State() CropState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked(f.lc.Snapshot())
}

func (f *CropForm) stateLocked(snap Snapshot[inference.CropQuery, *inference.CropResult]) CropState {
	switch {
	case snap.Status == StatusSubmitting:
		return CropSubmitting
	case f.validating:
		return CropValidating
	case f.edited:
		return CropEditing
	case snap.Status == StatusSucceeded:
		return CropSucceeded
	case snap.Status == StatusFailed:
		return CropFailed
	default:
		return CropEditing
	}
}

// Submit validates the fields and, when they parse, calls the adapter. Invalid
// input fails with a validation *Error and no call. A submit while another is
// running returns ErrSubmissionInFlight.
func (f *CropForm) Submit(ctx context.Context) error {
	f.mu.Lock()
	f.validating = true
	values := maps.Clone(f.values)
	f.mu.Unlock()

	query, verr := ParseCropQuery(values)

	f.mu.Lock()
	f.validating = false
	f.edited = false
	f.mu.Unlock()

	if verr != nil {
		return f.lc.Reject(verr)
	}
	return f.lc.Submit(ctx, query)
}

// View returns a consistent snapshot for rendering.
func (f *CropForm) View() CropView {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := f.lc.Snapshot()
	view := CropView{
		State:  f.stateLocked(snap),
		Values: maps.Clone(f.values),
		Err:    snap.Err,
	}
	if snap.HasResult {
		view.Query = snap.Query
		view.Result = snap.Result
	}
	view.Message = snap.Err.UserMessage(CropFailureMessage)
	return view
}

// ParseCropQuery parses raw field text into a query. The first empty,
// non-numeric, non-finite or out-of-range field, in CropFields order, fails
// the parse.
func ParseCropQuery(values map[Field]string) (inference.CropQuery, *Error) {
	var query inference.CropQuery
	for _, spec := range CropFields {
		v, verr := parseField(spec, values[spec.Field])
		if verr != nil {
			return inference.CropQuery{}, verr
		}
		switch spec.Field {
		case FieldNitrogen:
			query.N = v
		case FieldPhosphorus:
			query.P = v
		case FieldPotassium:
			query.K = v
		case FieldTemperature:
			query.Temperature = v
		case FieldHumidity:
			query.Humidity = v
		case FieldPh:
			query.Ph = v
		case FieldRainfall:
			query.Rainfall = v
		}
	}
	return query, nil
}

func parseField(spec FieldSpec, raw string) (float64, *Error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, Validation(spec.Label + " is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, Validation(spec.Label + " must be a number")
	}
	if v < spec.Min || v > spec.Max {
		return 0, Validation(fmt.Sprintf("%s must be between %g and %g", spec.Label, spec.Min, spec.Max))
	}
	return v, nil
}
