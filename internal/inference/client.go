package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/httpclient"
	"github.com/agrilens/agrilens-go/internal/logger"
	"github.com/agrilens/agrilens-go/internal/observability/metrics"
)

const (
	// maxResponseBytes bounds how much of a response body is read
	maxResponseBytes = 1 << 20

	cacheKeyCrops    = "catalog:crops"
	cacheKeyDiseases = "catalog:diseases"
)

// Config configures the inference client.
type Config struct {
	// BaseURL of the inference service, without trailing slash
	BaseURL string
	// Timeout per call. Zero sets no client deadline; the caller's context
	// and the transport decide.
	Timeout time.Duration
	// CatalogCacheTTL caches ListCrops/ListDiseases. Zero disables caching.
	CatalogCacheTTL time.Duration
	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit float64
	// RateBurst is the limiter bucket size, at least 1.
	RateBurst int
}

// CatalogCacheRecorder is implemented by metrics recorders that track catalog
// cache effectiveness.
type CatalogCacheRecorder interface {
	RecordCatalogCache(catalog string, hit bool)
}

// Client talks to the inference service over HTTP. Safe for concurrent use.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *httpclient.Client
	cache   *cache.Cache
	catalog singleflight.Group // collapses concurrent catalog fetches per key
	limiter *rate.Limiter
	metrics metrics.Recorder
	log     logger.Logger
}

var _ Adapter = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient substitutes the shared HTTP client.
func WithHTTPClient(hc *httpclient.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithLogger sets the logger used by the client.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates an inference client for cfg.BaseURL.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.Newf("inference base URL is empty").
			Component("inference").
			Category(errors.CategoryConfiguration).
			Build()
	}

	c := &Client{
		baseURL: base,
		timeout: cfg.Timeout,
		metrics: metrics.NopRecorder{},
		log:     logger.Global().Module("inference"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.New(httpConfig(cfg.Timeout))
	}
	if cfg.CatalogCacheTTL > 0 {
		c.cache = cache.New(cfg.CatalogCacheTTL, 2*cfg.CatalogCacheTTL)
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}

	c.log.Info("inference client initialized",
		logger.String("base_url", base),
		logger.Duration("timeout", cfg.Timeout),
		logger.Duration("catalog_cache_ttl", cfg.CatalogCacheTTL),
		logger.Float64("rate_limit", cfg.RateLimit))
	return c, nil
}

// httpConfig maps the per-call timeout onto the shared client. Zero leaves
// both the request deadline and the response header wait unbounded.
func httpConfig(timeout time.Duration) *httpclient.Config {
	if timeout == 0 {
		return &httpclient.Config{
			DefaultTimeout:        httpclient.NoTimeout,
			ResponseHeaderTimeout: httpclient.NoTimeout,
		}
	}
	return &httpclient.Config{DefaultTimeout: timeout}
}

// BaseURL returns the normalized service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *httpclient.Client {
	return c.http
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.Close()
}

// RecommendCrop posts the query as JSON and decodes the recommendation.
func (c *Client) RecommendCrop(ctx context.Context, query CropQuery) (*CropResult, error) {
	const op = metrics.OpRecommendCrop
	start := time.Now()

	payload, err := json.Marshal(query)
	if err != nil {
		return nil, c.fail(op, PathRecommendCrop, 0, fmt.Errorf("encode crop query: %w", err), start)
	}

	body, err := c.do(ctx, op, http.MethodPost, PathRecommendCrop, "application/json", payload, start)
	if err != nil {
		return nil, err
	}

	var result CropResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, c.fail(op, PathRecommendCrop, http.StatusOK, fmt.Errorf("decode crop recommendation: %w", err), start)
	}
	if result.RecommendedCrop == "" {
		return nil, c.fail(op, PathRecommendCrop, http.StatusOK, fmt.Errorf("response has no recommended_crop"), start)
	}

	c.succeed(op, start)
	return &result, nil
}

// DetectDisease uploads the image as multipart/form-data under the "file" field.
func (c *Client) DetectDisease(ctx context.Context, image ImageFile) (*DiseaseResult, error) {
	const op = metrics.OpDetectDisease
	start := time.Now()

	payload, contentType, err := encodeImage(image)
	if err != nil {
		return nil, c.fail(op, PathDetectDisease, 0, err, start)
	}

	body, err := c.do(ctx, op, http.MethodPost, PathDetectDisease, contentType, payload, start)
	if err != nil {
		return nil, err
	}

	var result DiseaseResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, c.fail(op, PathDetectDisease, http.StatusOK, fmt.Errorf("decode disease detection: %w", err), start)
	}
	if result.Disease == "" {
		return nil, c.fail(op, PathDetectDisease, http.StatusOK, fmt.Errorf("response has no disease"), start)
	}

	c.log.Debug("disease detected",
		logger.String("file", image.Name),
		logger.Int64("size", image.Size),
		logger.String("disease", result.Disease),
		logger.Float64("confidence", result.Confidence))
	c.succeed(op, start)
	return &result, nil
}

// ListCrops returns the crop labels the model knows about.
func (c *Client) ListCrops(ctx context.Context) ([]string, error) {
	return c.listLabels(ctx, metrics.OpListCrops, PathCrops, cacheKeyCrops, "crops")
}

// ListDiseases returns the disease labels the model knows about.
func (c *Client) ListDiseases(ctx context.Context) ([]string, error) {
	return c.listLabels(ctx, metrics.OpListDiseases, PathDiseases, cacheKeyDiseases, "diseases")
}

// HealthCheck fetches the service's self-description from the root endpoint.
func (c *Client) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	const op = metrics.OpHealthCheck
	start := time.Now()

	body, err := c.do(ctx, op, http.MethodGet, PathHealth, "", nil, start)
	if err != nil {
		return nil, err
	}

	status, err := parseHealth(body)
	if err != nil {
		return nil, c.fail(op, PathHealth, http.StatusOK, err, start)
	}

	c.succeed(op, start)
	return status, nil
}

func (c *Client) listLabels(ctx context.Context, op, path, cacheKey, field string) ([]string, error) {
	if c.cache != nil {
		if cached, found := c.cache.Get(cacheKey); found {
			c.recordCache(field, true)
			labels := cached.([]string)
			return append([]string(nil), labels...), nil
		}
		c.recordCache(field, false)
	}

	v, err, shared := c.catalog.Do(cacheKey, func() (any, error) {
		start := time.Now()
		body, err := c.do(ctx, op, http.MethodGet, path, "", nil, start)
		if err != nil {
			return nil, err
		}

		labels, err := parseLabels(body, field)
		if err != nil {
			return nil, c.fail(op, path, http.StatusOK, err, start)
		}

		if c.cache != nil {
			c.cache.SetDefault(cacheKey, labels)
		}
		c.succeed(op, start)
		return labels, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug("joined in-flight catalog fetch", logger.String("catalog", field))
	}
	return append([]string(nil), v.([]string)...), nil
}

// do issues the request, checks the status and returns the body.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, payload []byte, start time.Time) ([]byte, error) {
	url := c.baseURL + path

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.fail(op, path, 0, fmt.Errorf("rate limit wait: %w", err), start)
		}
	}

	var (
		resp *http.Response
		err  error
	)
	switch method {
	case http.MethodPost:
		resp, err = c.http.Post(ctx, url, contentType, payload)
	default:
		resp, err = c.http.Get(ctx, url)
	}
	if err != nil {
		return nil, c.fail(op, path, 0, err, start)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.Debug("failed to close response body", logger.Error(closeErr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.fail(op, path, resp.StatusCode, fmt.Errorf("read response: %w", err), start)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt := bodyExcerpt(body)
		msg := fmt.Sprintf("inference service returned %d", resp.StatusCode)
		if excerpt != "" {
			msg += ": " + excerpt
		}
		return nil, c.fail(op, path, resp.StatusCode, errors.NewStd(msg), start)
	}

	return body, nil
}

// fail builds a network-category error for op and records it.
func (c *Client) fail(op, path string, statusCode int, cause error, start time.Time) error {
	duration := time.Since(start)

	errorType := "transport"
	switch {
	case errors.Is(cause, context.Canceled):
		errorType = "canceled"
	case errors.Is(cause, context.DeadlineExceeded):
		errorType = "timeout"
	case statusCode >= 300:
		errorType = fmt.Sprintf("http_%d", statusCode)
	case statusCode != 0:
		errorType = "decode"
	}

	c.metrics.RecordOperation(op, metrics.StatusError)
	c.metrics.RecordDuration(op, duration.Seconds())
	c.metrics.RecordError(op, errorType)

	builder := errors.New(cause).
		Component("inference").
		Category(errors.CategoryNetwork).
		NetworkContext(c.baseURL+path, c.timeout).
		Timing(op, duration).
		Context("operation", op).
		Context("error_type", errorType)
	if statusCode != 0 {
		builder = builder.Context("status_code", statusCode)
	}
	enhanced := builder.Build()

	c.log.Warn("inference request failed",
		logger.String("operation", op),
		logger.String("path", path),
		logger.Int("status_code", statusCode),
		logger.String("error_type", errorType),
		logger.Duration("duration", duration),
		logger.Error(cause))
	return enhanced
}

func (c *Client) succeed(op string, start time.Time) {
	c.metrics.RecordOperation(op, metrics.StatusSuccess)
	c.metrics.RecordDuration(op, time.Since(start).Seconds())
}

func (c *Client) recordCache(catalog string, hit bool) {
	if r, ok := c.metrics.(CatalogCacheRecorder); ok {
		r.RecordCatalogCache(catalog, hit)
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeImage builds a multipart body with the image under the "file" field,
// preserving its filename and content type.
func encodeImage(image ImageFile) (payload []byte, contentType string, err error) {
	if len(image.Data) == 0 {
		return nil, "", fmt.Errorf("image %q is empty", image.Name)
	}

	name := image.Name
	if name == "" {
		name = "upload"
	}
	ct := image.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, multipartFileField, quoteEscaper.Replace(name)))
	h.Set("Content-Type", ct)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(image.Data); err != nil {
		return nil, "", fmt.Errorf("write image data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}
