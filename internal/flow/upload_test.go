package flow

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/inference"
)

func jpeg(name string, size int) inference.ImageFile {
	data := make([]byte, size)
	copy(data, []byte{0xff, 0xd8, 0xff})
	return inference.ImageFile{Name: name, ContentType: "image/jpeg", Size: int64(size), Data: data}
}

func blightResult() *inference.DiseaseResult {
	return &inference.DiseaseResult{
		Disease:    "Tomato___Late_blight",
		Confidence: 91.2,
		TopPredictions: []inference.DiseasePrediction{
			{Disease: "Tomato___Late_blight", Confidence: 91.2},
			{Disease: "Tomato___healthy", Confidence: 2.1},
			{Disease: "Tomato___Early_blight", Confidence: 6.1},
		},
	}
}

func newTestUploadForm(adapter *fakeAdapter, opts ...UploadOption) *UploadForm {
	return NewUploadForm(adapter, append([]UploadOption{WithLifecycle(WithLogger(quietLogger()))}, opts...)...)
}

func awaitPreview(t *testing.T, f *UploadForm) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	url, err := f.AwaitPreview(ctx)
	require.NoError(t, err)
	return url
}

func TestUploadForm_SelectAndSubmit(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{diseaseResult: blightResult()}
	f := newTestUploadForm(adapter)
	assert.Equal(t, UploadEmpty, f.State())

	file := jpeg("leaf.jpg", 16)
	require.NoError(t, f.Select(file))
	assert.Equal(t, UploadSelected, f.State())

	preview := awaitPreview(t, f)
	assert.True(t, strings.HasPrefix(preview, "data:image/jpeg;base64,/9j/"), preview)

	require.NoError(t, f.Submit(t.Context()))

	view := f.View()
	assert.Equal(t, UploadSucceeded, view.State)
	require.NotNil(t, view.Result)
	assert.Equal(t, blightResult().TopPredictions, view.Result.TopPredictions, "server order is kept")
	require.NotNil(t, view.File)
	assert.Equal(t, "leaf.jpg", view.File.Name)
	assert.Nil(t, view.File.Data)
	assert.Equal(t, preview, view.Preview)
	assert.Equal(t, int32(1), adapter.diseaseCalls.Load())
	f.Wait()
}

func TestUploadForm_TooLargeJPEG(t *testing.T) {
	t.Parallel()

	previews := 0
	adapter := &fakeAdapter{diseaseResult: blightResult()}
	f := newTestUploadForm(adapter, WithPreviewFunc(func(file inference.ImageFile) string {
		previews++
		return DataURL(file)
	}))

	err := f.Select(jpeg("big.jpg", 6*1024*1024))
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindValidation, fe.Kind)
	assert.Equal(t, ReasonTooLarge, fe.Reason)

	view := f.View()
	assert.Equal(t, UploadEmpty, view.State)
	assert.Empty(t, view.Preview)
	assert.Equal(t, "File size must be less than 5MB", view.Message)

	assert.Empty(t, awaitPreview(t, f))
	f.Wait()
	assert.Zero(t, previews)
	assert.Zero(t, adapter.diseaseCalls.Load())
}

func TestValidateImage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		file   inference.ImageFile
		reason string
	}{
		{"jpeg ok", jpeg("a.jpg", 10), ""},
		{"exactly 5 MiB", jpeg("a.jpg", MaxImageBytes), ""},
		{"one byte over", jpeg("a.jpg", MaxImageBytes+1), ReasonTooLarge},
		{"pdf", inference.ImageFile{Name: "a.pdf", ContentType: "application/pdf", Size: 10}, ReasonNotAnImage},
		{"missing type", inference.ImageFile{Name: "a", Size: 10}, ReasonNotAnImage},
		{"large pdf reports type first", inference.ImageFile{Name: "a.pdf", ContentType: "application/pdf", Size: 6 << 20}, ReasonNotAnImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateImage(tt.file)
			if tt.reason == "" {
				assert.Nil(t, verr)
				return
			}
			require.NotNil(t, verr)
			assert.Equal(t, tt.reason, verr.Reason)
		})
	}
}

func TestUploadForm_InvalidReselectKeepsPriorSelection(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{diseaseResult: blightResult()}
	f := newTestUploadForm(adapter)

	require.NoError(t, f.Select(jpeg("leaf.jpg", 32)))
	preview := awaitPreview(t, f)
	require.NoError(t, f.Submit(t.Context()))

	err := f.Select(inference.ImageFile{Name: "notes.txt", ContentType: "text/plain", Size: 5, Data: []byte("hello")})
	require.Error(t, err)

	view := f.View()
	require.NotNil(t, view.File)
	assert.Equal(t, "leaf.jpg", view.File.Name)
	assert.Equal(t, preview, view.Preview)
	assert.NotNil(t, view.Result, "prior result stays")
	assert.Equal(t, "Please select a valid image file", view.Message)
	assert.Equal(t, UploadSucceeded, view.State)
	f.Wait()
}

func TestUploadForm_SubmitWithoutFile(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{diseaseResult: blightResult()}
	f := newTestUploadForm(adapter)

	err := f.Submit(t.Context())
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ReasonNoFileSelected, fe.Reason)
	assert.Equal(t, "Please select an image first", f.View().Message)
	assert.Zero(t, adapter.diseaseCalls.Load())
}

func TestUploadForm_NetworkFailureMessage(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{diseaseErr: errors.NetworkError(errors.NewStd("503"), "http://x", 0)}
	f := newTestUploadForm(adapter)
	require.NoError(t, f.Select(jpeg("leaf.jpg", 8)))

	require.Error(t, f.Submit(t.Context()))
	view := f.View()
	assert.Equal(t, UploadFailed, view.State)
	assert.Equal(t, DiseaseFailureMessage, view.Message)
	assert.NotNil(t, view.File, "file stays selected for a retry")
	f.Wait()
}

func TestUploadForm_ResetIsAtomic(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{diseaseResult: blightResult()}
	f := newTestUploadForm(adapter)

	states := map[string]func(){
		"empty":    func() {},
		"selected": func() { require.NoError(t, f.Select(jpeg("a.jpg", 8))) },
		"succeeded": func() {
			require.NoError(t, f.Select(jpeg("a.jpg", 8)))
			awaitPreview(t, f)
			require.NoError(t, f.Submit(t.Context()))
		},
		"failed": func() { _ = f.Select(inference.ImageFile{ContentType: "text/plain"}); _ = f.Submit(t.Context()) },
	}

	for name, setup := range states {
		setup()
		f.Reset()

		view := f.View()
		assert.Equal(t, UploadEmpty, view.State, name)
		assert.Nil(t, view.File, name)
		assert.Empty(t, view.Preview, name)
		assert.Nil(t, view.Result, name)
		assert.Nil(t, view.Err, name)
		assert.Empty(t, view.Message, name)
	}
	f.Wait()
}

func TestUploadForm_ResetObservedAllOrNothing(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{diseaseResult: blightResult()}
	f := newTestUploadForm(adapter)
	require.NoError(t, f.Select(jpeg("a.jpg", 8)))
	awaitPreview(t, f)
	require.NoError(t, f.Submit(t.Context()))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Go(func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			v := f.View()
			cleared := v.File == nil && v.Preview == "" && v.Result == nil && v.Err == nil
			populated := v.File != nil && v.Preview != "" && v.Result != nil
			assert.True(t, cleared || populated, "partial reset observed: %+v", v)
		}
	})

	f.Reset()
	close(stop)
	wg.Wait()
	f.Wait()
}

func TestUploadForm_StalePreviewDiscarded(t *testing.T) {
	t.Parallel()

	gates := map[string]chan struct{}{
		"first.jpg":  make(chan struct{}),
		"second.jpg": make(chan struct{}),
	}
	f := newTestUploadForm(&fakeAdapter{}, WithPreviewFunc(func(file inference.ImageFile) string {
		<-gates[file.Name]
		return "preview:" + file.Name
	}))

	require.NoError(t, f.Select(jpeg("first.jpg", 8)))
	require.NoError(t, f.Select(jpeg("second.jpg", 8)))

	// Newer preview lands first, then the stale one.
	close(gates["second.jpg"])
	assert.Equal(t, "preview:second.jpg", awaitPreview(t, f))
	close(gates["first.jpg"])
	f.Wait()

	assert.Equal(t, "preview:second.jpg", f.View().Preview)
}

func TestUploadForm_PreviewAfterResetDiscarded(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	f := newTestUploadForm(&fakeAdapter{}, WithPreviewFunc(func(file inference.ImageFile) string {
		<-gate
		return "preview:" + file.Name
	}))

	require.NoError(t, f.Select(jpeg("leaf.jpg", 8)))
	f.Reset()
	close(gate)
	f.Wait()

	view := f.View()
	assert.Empty(t, view.Preview)
	assert.Equal(t, UploadEmpty, view.State)
}

func TestUploadForm_AwaitPreviewHonorsContext(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	f := newTestUploadForm(&fakeAdapter{}, WithPreviewFunc(func(inference.ImageFile) string {
		<-gate
		return "late"
	}))
	require.NoError(t, f.Select(jpeg("leaf.jpg", 8)))

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, err := f.AwaitPreview(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate)
	f.Wait()
}

func TestUploadForm_ResetDuringSubmitDiscardsResult(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		diseaseResult: blightResult(),
		started:       make(chan struct{}, 1),
		gate:          make(chan struct{}),
	}
	f := newTestUploadForm(adapter)
	require.NoError(t, f.Select(jpeg("leaf.jpg", 8)))

	done := make(chan error, 1)
	go func() { done <- f.Submit(context.Background()) }()
	waitStarted(t, adapter.started)
	assert.Equal(t, UploadSubmitting, f.State())

	f.Reset()
	assert.Equal(t, UploadEmpty, f.State())

	close(adapter.gate)
	require.NoError(t, <-done)
	assert.Equal(t, UploadEmpty, f.State())
	assert.Nil(t, f.View().Result)
	f.Wait()
}

func TestUploadForm_ReselectDuringSubmitDiscardsResult(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		diseaseResult: blightResult(),
		started:       make(chan struct{}, 1),
		gate:          make(chan struct{}),
	}
	f := newTestUploadForm(adapter)
	require.NoError(t, f.Select(jpeg("old.jpg", 8)))

	done := make(chan error, 1)
	go func() { done <- f.Submit(context.Background()) }()
	waitStarted(t, adapter.started)

	require.NoError(t, f.Select(jpeg("new.jpg", 8)))
	assert.Equal(t, UploadSelected, f.State())

	close(adapter.gate)
	require.NoError(t, <-done)

	view := f.View()
	assert.Equal(t, UploadSelected, view.State)
	require.NotNil(t, view.File)
	assert.Equal(t, "new.jpg", view.File.Name)
	assert.Nil(t, view.Result)
	f.Wait()
}

func TestUploadState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "submitting", UploadSubmitting.String())
	assert.Equal(t, "unknown", UploadState(42).String())
}

func TestDataURL(t *testing.T) {
	t.Parallel()

	got := DataURL(inference.ImageFile{ContentType: "image/png", Data: []byte("abc")})
	assert.Equal(t, "data:image/png;base64,YWJj", got)
}
