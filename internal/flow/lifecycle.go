// Package flow holds the per-session form state machines: the crop
// recommendation form, the disease image upload and the request lifecycle
// they share. Nothing here knows about HTTP.
package flow

import (
	"context"
	"sync"
	"time"

	"github.com/agrilens/agrilens-go/internal/logger"
	"github.com/agrilens/agrilens-go/internal/observability/metrics"
)

// Status is the lifecycle position of a form's submission.
type Status int

const (
	StatusIdle Status = iota
	StatusSubmitting
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSubmitting:
		return "submitting"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SubmissionObserver receives one outcome per submit attempt.
type SubmissionObserver interface {
	RecordSubmission(flow, outcome string)
}

// CallFunc performs the remote call for a query.
type CallFunc[Q, R any] func(ctx context.Context, query Q) (R, error)

// Snapshot is a consistent copy of a lifecycle's state. Query is the query
// that produced Result and is only meaningful when HasResult is set.
type Snapshot[Q, R any] struct {
	Status    Status
	Query     Q
	Result    R
	HasResult bool
	Err       *Error
}

// Lifecycle runs submissions for one form instance: at most one call in
// flight, prior result and error cleared on start, full replacement on finish.
type Lifecycle[Q, R any] struct {
	name     string
	call     CallFunc[Q, R]
	observer SubmissionObserver
	log      logger.Logger

	mu         sync.Mutex
	status     Status
	inFlight   bool
	generation uint64 // bumped by Reset and Supersede; a call started under an older generation is discarded
	query      Q
	result     R
	hasResult  bool
	err        *Error
}

// LifecycleOption customizes a Lifecycle.
type LifecycleOption func(*lifecycleOptions)

type lifecycleOptions struct {
	observer SubmissionObserver
	log      logger.Logger
}

// WithObserver reports submission outcomes to o.
func WithObserver(o SubmissionObserver) LifecycleOption {
	return func(opts *lifecycleOptions) { opts.observer = o }
}

// WithLogger sets the lifecycle's logger.
func WithLogger(l logger.Logger) LifecycleOption {
	return func(opts *lifecycleOptions) { opts.log = l }
}

// NewLifecycle returns an idle lifecycle named name that submits through call.
func NewLifecycle[Q, R any](name string, call CallFunc[Q, R], opts ...LifecycleOption) *Lifecycle[Q, R] {
	o := lifecycleOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Global().Module("flow")
	}
	return &Lifecycle[Q, R]{
		name:     name,
		call:     call,
		observer: o.observer,
		log:      o.log.With(logger.String("flow", name)),
	}
}

// Submit performs one submission. It returns ErrSubmissionInFlight without
// calling out when another submission is running, the *Error on failure,
// and nil on success. The call runs without holding the lock.
func (l *Lifecycle[Q, R]) Submit(ctx context.Context, query Q) error {
	l.mu.Lock()
	if l.inFlight {
		l.mu.Unlock()
		l.observe(metrics.OutcomeRejectedInFlight)
		return ErrSubmissionInFlight
	}
	l.inFlight = true
	l.status = StatusSubmitting
	l.clearLocked()
	gen := l.generation
	l.mu.Unlock()

	start := time.Now()
	result, err := l.call(ctx, query)
	elapsed := time.Since(start)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight = false

	if gen != l.generation {
		l.log.Debug("discarding result of superseded submission", logger.Duration("duration", elapsed))
		if err != nil {
			return asFlowError(err)
		}
		return nil
	}

	if err != nil {
		fe := asFlowError(err)
		l.status = StatusFailed
		l.err = fe
		if fe.IsValidation() {
			l.observe(metrics.OutcomeValidationFailed)
		} else {
			l.observe(metrics.OutcomeNetworkFailed)
		}
		l.log.Warn("submission failed",
			logger.String("kind", fe.Kind.String()),
			logger.Duration("duration", elapsed),
			logger.Error(err))
		return fe
	}

	l.status = StatusSucceeded
	l.query = query
	l.result = result
	l.hasResult = true
	l.observe(metrics.OutcomeSucceeded)
	l.log.Info("submission succeeded", logger.Duration("duration", elapsed))
	return nil
}

// Reject records a locally detected failure without calling out. A running
// submission wins: the rejection is dropped and ErrSubmissionInFlight returned.
func (l *Lifecycle[Q, R]) Reject(fe *Error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight {
		l.observe(metrics.OutcomeRejectedInFlight)
		return ErrSubmissionInFlight
	}
	l.clearLocked()
	l.status = StatusFailed
	l.err = fe
	l.observe(metrics.OutcomeValidationFailed)
	return fe
}

// Reset returns to idle with no result or error. A submission still running
// keeps the in-flight slot, but its outcome is discarded.
func (l *Lifecycle[Q, R]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	l.clearLocked()
	l.status = StatusIdle
}

// Supersede is Reset for a form whose input was replaced: the outcome is
// dropped and a submission still running is discarded when it completes.
func (l *Lifecycle[Q, R]) Supersede() {
	l.Reset()
}

// InFlight reports whether a call is running.
func (l *Lifecycle[Q, R]) InFlight() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// Snapshot returns the current state.
func (l *Lifecycle[Q, R]) Snapshot() Snapshot[Q, R] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot[Q, R]{
		Status:    l.status,
		Query:     l.query,
		Result:    l.result,
		HasResult: l.hasResult,
		Err:       l.err,
	}
}

func (l *Lifecycle[Q, R]) clearLocked() {
	var (
		zeroQ Q
		zero  R
	)
	l.query = zeroQ
	l.result = zero
	l.hasResult = false
	l.err = nil
}

func (l *Lifecycle[Q, R]) observe(outcome string) {
	if l.observer != nil {
		l.observer.RecordSubmission(l.name, outcome)
	}
}
