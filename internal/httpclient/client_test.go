package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		client := New(nil)
		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.Equal(t, defaultUserAgent, client.userAgent)
	})

	t.Run("custom config", func(t *testing.T) {
		cfg := Config{
			DefaultTimeout: 5 * time.Second,
			UserAgent:      "TestAgent/1.0",
			Headers:        map[string]string{"apikey": "k"},
		}
		client := New(&cfg)

		assert.Equal(t, 5*time.Second, client.defaultTimeout)
		assert.Equal(t, "TestAgent/1.0", client.userAgent)
		assert.Equal(t, "k", client.Headers().Get("apikey"))
	})

	t.Run("zero values use defaults", func(t *testing.T) {
		cfg := Config{}
		client := New(&cfg)

		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.NotEmpty(t, client.userAgent)
	})

	t.Run("no timeout disables deadlines", func(t *testing.T) {
		cfg := Config{DefaultTimeout: NoTimeout, ResponseHeaderTimeout: NoTimeout}
		client := New(&cfg)

		assert.Zero(t, client.defaultTimeout)
		transport, ok := client.HTTPClient().Transport.(*http.Transport)
		require.True(t, ok)
		assert.Zero(t, transport.ResponseHeaderTimeout)
		assert.Equal(t, defaultTLSHandshakeTimeout, transport.TLSHandshakeTimeout)
	})
}

func TestDo_NoTimeoutLeavesContextWithoutDeadline(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClient(t, &Config{DefaultTimeout: NoTimeout})
	var hasDeadline atomic.Bool
	client.SetBeforeRequestHook(func(req *http.Request) {
		_, ok := req.Context().Deadline()
		hasDeadline.Store(ok)
	})

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer closeResponseBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, hasDeadline.Load())
}

func TestDo_BodyReadableAfterReturn(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	cfg := Config{DefaultTimeout: 2 * time.Second}
	client := newTestClient(t, &cfg)

	// context.Background has no deadline, so the client applies its own timeout
	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer closeResponseBody(t, resp)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"healthy"}`, string(body))
}

func TestDo_HeadersInjected(t *testing.T) {
	var gotUA, gotKey, gotAuth string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})

	cfg := Config{
		UserAgent: "AgriLens/test",
		Headers:   map[string]string{"apikey": "anon", "Authorization": "Bearer anon"},
	}
	client := newTestClient(t, &cfg)

	resp, err := client.GetWithHeaders(t.Context(), server.URL, map[string]string{"Authorization": "Bearer service"})
	require.NoError(t, err)
	closeResponseBody(t, resp)

	assert.Equal(t, "AgriLens/test", gotUA)
	assert.Equal(t, "anon", gotKey)
	assert.Equal(t, "Bearer service", gotAuth, "per-request header wins over default")
}

func TestDo_ContextCancellation(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClient(t, nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	resp, err := client.Get(ctx, server.URL)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_DefaultTimeout(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})

	cfg := Config{DefaultTimeout: 50 * time.Millisecond}
	client := newTestClient(t, &cfg)

	_, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPost_BodyTypes(t *testing.T) {
	client := newTestClient(t, nil)
	httpmock.ActivateNonDefault(client.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	var gotContentType string
	var gotBody map[string]any
	httpmock.RegisterResponder(http.MethodPost, "https://inference.test/api/recommend-crop",
		func(req *http.Request) (*http.Response, error) {
			gotContentType = req.Header.Get("Content-Type")
			if err := json.NewDecoder(req.Body).Decode(&gotBody); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{}`), nil
		})

	resp, err := client.Post(t.Context(), "https://inference.test/api/recommend-crop", "", map[string]float64{"N": 90})
	require.NoError(t, err)
	closeResponseBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", gotContentType)
	assert.InDelta(t, 90.0, gotBody["N"], 0)

	resp, err = client.Post(t.Context(), "https://inference.test/api/recommend-crop", "text/plain", `{"N": 1}`)
	require.NoError(t, err)
	closeResponseBody(t, resp)
	assert.Equal(t, "text/plain", gotContentType)
}

func TestHooks(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	client := newTestClient(t, nil)

	var before, after atomic.Int32
	var lastStatus atomic.Int32
	client.SetBeforeRequestHook(func(*http.Request) { before.Add(1) })
	client.SetAfterResponseHook(func(_ *http.Request, resp *http.Response, err error) {
		after.Add(1)
		if err == nil {
			lastStatus.Store(int32(resp.StatusCode))
		}
	})

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err)
	closeResponseBody(t, resp)

	assert.Equal(t, int32(1), before.Load())
	assert.Equal(t, int32(1), after.Load())
	assert.Equal(t, int32(http.StatusTeapot), lastStatus.Load())
}

func TestDo_NilRequest(t *testing.T) {
	client := newTestClient(t, nil)
	_, err := client.Do(t.Context(), nil)
	require.Error(t, err)
}
