package history

import (
	"context"
	"sync"
	"time"

	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/logger"
	"github.com/agrilens/agrilens-go/internal/observability/metrics"
)

// LoadFailedMessage is the banner shown when a collection could not be loaded.
const LoadFailedMessage = "Some predictions could not be loaded."

// RowsRecorder is implemented by metrics recorders that track result sizes.
type RowsRecorder interface {
	SetRowsReturned(operation string, rows int)
}

// View is one history page load. A collection whose query failed is empty
// and its error is set.
type View struct {
	Crops      []CropPredictionRecord
	Diseases   []DiseasePredictionRecord
	CropErr    error
	DiseaseErr error
}

// Total is the number of records shown across both collections.
func (v *View) Total() int {
	return len(v.Crops) + len(v.Diseases)
}

// Failed reports whether either collection failed to load.
func (v *View) Failed() bool {
	return v.CropErr != nil || v.DiseaseErr != nil
}

// Banner returns the user-facing failure banner, or "" when both loaded.
func (v *View) Banner() string {
	if v.Failed() {
		return LoadFailedMessage
	}
	return ""
}

// Loader fetches both collections for the history page.
type Loader struct {
	store   Store
	limit   int
	metrics metrics.Recorder
	log     logger.Logger
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithLimit overrides DefaultLimit.
func WithLimit(limit int) LoaderOption {
	return func(l *Loader) {
		if limit > 0 {
			l.limit = limit
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(r metrics.Recorder) LoaderOption {
	return func(l *Loader) {
		if r != nil {
			l.metrics = r
		}
	}
}

// WithLogger sets the loader's logger.
func WithLogger(log logger.Logger) LoaderOption {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLoader returns a loader reading from store.
func NewLoader(store Store, opts ...LoaderOption) *Loader {
	l := &Loader{
		store:   store,
		limit:   DefaultLimit,
		metrics: metrics.NopRecorder{},
		log:     logger.Global().Module("history"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the per-collection record limit.
func (l *Loader) Limit() int {
	return l.limit
}

// Load runs both queries concurrently. Each failure is independent: it is
// logged, recorded in the View, and leaves only its own collection empty.
func (l *Loader) Load(ctx context.Context) *View {
	view := &View{}
	var wg sync.WaitGroup

	wg.Go(func() {
		records, err := query(ctx, l, metrics.OpRecentCrops, l.store.RecentCropPredictions)
		view.Crops, view.CropErr = records, err
	})
	wg.Go(func() {
		records, err := query(ctx, l, metrics.OpRecentDiseases, l.store.RecentDiseasePredictions)
		view.Diseases, view.DiseaseErr = records, err
	})
	wg.Wait()

	return view
}

func query[T any](ctx context.Context, l *Loader, op string, fetch func(context.Context, int) ([]T, error)) ([]T, error) {
	start := time.Now()
	records, err := fetch(ctx, l.limit)
	duration := time.Since(start)
	l.metrics.RecordDuration(op, duration.Seconds())

	if err != nil {
		l.metrics.RecordOperation(op, metrics.StatusError)
		l.metrics.RecordError(op, errorType(err))
		l.log.Error("failed to load prediction history",
			logger.String("operation", op),
			logger.Duration("duration", duration),
			logger.Error(err))
		return nil, err
	}

	// Backends are asked for at most limit rows; enforce it anyway.
	if len(records) > l.limit {
		records = records[:l.limit]
	}

	l.metrics.RecordOperation(op, metrics.StatusSuccess)
	if r, ok := l.metrics.(RowsRecorder); ok {
		r.SetRowsReturned(op, len(records))
	}
	l.log.Debug("loaded prediction history",
		logger.String("operation", op),
		logger.Int("rows", len(records)),
		logger.Duration("duration", duration))
	return records, nil
}

func errorType(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "unknown"
}
