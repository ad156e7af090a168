package flow

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"

	"github.com/agrilens/agrilens-go/internal/inference"
)

const (
	// DiseaseFlowName labels disease submissions in logs and metrics.
	DiseaseFlowName = "disease"

	// MaxImageBytes is the largest accepted image, 5 MiB.
	MaxImageBytes = 5 * 1024 * 1024
)

// UploadState is the upload form's position.
type UploadState int

const (
	UploadEmpty UploadState = iota
	UploadSelected
	UploadSubmitting
	UploadSucceeded
	UploadFailed
)

func (s UploadState) String() string {
	switch s {
	case UploadEmpty:
		return "empty"
	case UploadSelected:
		return "selected"
	case UploadSubmitting:
		return "submitting"
	case UploadSucceeded:
		return "succeeded"
	case UploadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PreviewFunc renders a preview URL for an accepted image.
type PreviewFunc func(inference.ImageFile) string

// DataURL encodes the image as a data: URL.
func DataURL(file inference.ImageFile) string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(file.ContentType) + base64.StdEncoding.EncodedLen(len(file.Data)))
	b.WriteString("data:")
	b.WriteString(file.ContentType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(file.Data))
	return b.String()
}

// UploadView is what the disease page renders.
type UploadView struct {
	State   UploadState
	File    *inference.ImageFile // Data omitted
	Preview string
	Result  *inference.DiseaseResult
	Err     *Error
	Message string
}

// UploadForm is one session's disease image upload.
type UploadForm struct {
	lc      *Lifecycle[inference.ImageFile, *inference.DiseaseResult]
	preview PreviewFunc
	lcOpts  []LifecycleOption

	mu           sync.Mutex
	file         *inference.ImageFile
	previewURL   string
	previewToken uint64
	previewDone  chan struct{}
	selectErr    *Error
	previews     sync.WaitGroup
}

// UploadOption customizes an UploadForm.
type UploadOption func(*UploadForm)

// WithPreviewFunc replaces the preview generator.
func WithPreviewFunc(fn PreviewFunc) UploadOption {
	return func(f *UploadForm) { f.preview = fn }
}

// WithLifecycle passes options to the form's submission lifecycle.
func WithLifecycle(opts ...LifecycleOption) UploadOption {
	return func(f *UploadForm) { f.lcOpts = append(f.lcOpts, opts...) }
}

// NewUploadForm returns an empty upload form submitting through adapter.
func NewUploadForm(adapter inference.Adapter, opts ...UploadOption) *UploadForm {
	f := &UploadForm{
		preview:     DataURL,
		previewDone: closedChan(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.lc = NewLifecycle(DiseaseFlowName, adapter.DetectDisease, f.lcOpts...)
	return f
}

// ValidateImage checks the content type, then the size. The first failing
// check wins.
func ValidateImage(file inference.ImageFile) *Error {
	if !strings.HasPrefix(file.ContentType, "image/") {
		return Validation(ReasonNotAnImage)
	}
	if file.Size > MaxImageBytes || int64(len(file.Data)) > MaxImageBytes {
		return Validation(ReasonTooLarge)
	}
	return nil
}

// Select validates file and, if accepted, makes it the current selection,
// clears the last outcome and starts preview generation. A submission of the
// previous file still running is discarded when it completes. A rejected file
// leaves the previous selection, preview and result untouched; only the
// error changes.
func (f *UploadForm) Select(file inference.ImageFile) error {
	if verr := ValidateImage(file); verr != nil {
		f.mu.Lock()
		f.selectErr = verr
		f.mu.Unlock()
		return verr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.file = &file
	f.selectErr = nil
	f.previewURL = ""
	f.lc.Supersede()

	f.previewToken++
	token := f.previewToken
	done := make(chan struct{})
	f.previewDone = done

	f.previews.Go(func() {
		defer close(done)
		url := f.preview(file)

		f.mu.Lock()
		defer f.mu.Unlock()
		if token == f.previewToken {
			f.previewURL = url
		}
	})
	return nil
}

// AwaitPreview blocks until the preview of the current selection is ready,
// then returns it. It returns "" when nothing is selected.
func (f *UploadForm) AwaitPreview(ctx context.Context) (string, error) {
	f.mu.Lock()
	done := f.previewDone
	f.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.previewURL, nil
}

// Submit sends the selected file. Without a selection it fails with a
// validation *Error and no call.
func (f *UploadForm) Submit(ctx context.Context) error {
	f.mu.Lock()
	file := f.file
	f.selectErr = nil
	f.mu.Unlock()

	if file == nil {
		return f.lc.Reject(Validation(ReasonNoFileSelected))
	}
	return f.lc.Submit(ctx, *file)
}

// Reset clears file, preview, result and error in one step. A preview or
// submission still running is discarded when it completes.
func (f *UploadForm) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.file = nil
	f.previewURL = ""
	f.previewToken++
	f.previewDone = closedChan()
	f.selectErr = nil
	f.lc.Reset()
}

// State returns the current state.
func (f *UploadForm) State() UploadState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked(f.lc.Snapshot())
}

func (f *UploadForm) stateLocked(snap Snapshot[inference.ImageFile, *inference.DiseaseResult]) UploadState {
	switch snap.Status {
	case StatusSubmitting:
		return UploadSubmitting
	case StatusSucceeded:
		return UploadSucceeded
	case StatusFailed:
		return UploadFailed
	}
	if f.file != nil {
		return UploadSelected
	}
	return UploadEmpty
}

// View returns a consistent snapshot for rendering.
func (f *UploadForm) View() UploadView {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := f.lc.Snapshot()
	view := UploadView{
		State:   f.stateLocked(snap),
		Preview: f.previewURL,
		Err:     snap.Err,
	}
	if f.file != nil {
		meta := *f.file
		meta.Data = nil
		view.File = &meta
	}
	if snap.HasResult {
		view.Result = snap.Result
	}
	if f.selectErr != nil {
		view.Err = f.selectErr
	}
	view.Message = view.Err.UserMessage(DiseaseFailureMessage)
	return view
}

// Wait blocks until all preview goroutines have returned.
func (f *UploadForm) Wait() {
	f.previews.Wait()
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
