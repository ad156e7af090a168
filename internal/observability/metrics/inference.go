package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// InferenceMetrics contains Prometheus metrics for calls to the inference service
type InferenceMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	catalogCache    *prometheus.CounterVec
}

// NewInferenceMetrics creates and registers inference metrics
func NewInferenceMetrics(registry prometheus.Registerer) (*InferenceMetrics, error) {
	m := &InferenceMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agrilens_inference_requests_total",
				Help: "Total number of requests to the inference service",
			},
			[]string{"operation", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agrilens_inference_request_duration_seconds",
				Help:    "Duration of requests to the inference service",
				Buckets: durationBuckets,
			},
			[]string{"operation"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agrilens_inference_errors_total",
				Help: "Total number of failed inference requests by error type",
			},
			[]string{"operation", "error_type"},
		),
		catalogCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agrilens_inference_catalog_cache_total",
				Help: "Catalog label list lookups served from or missing the cache",
			},
			[]string{"catalog", "result"},
		),
	}

	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *InferenceMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requestsTotal, m.requestDuration, m.errorsTotal, m.catalogCache}
}

// Describe implements the Collector interface
func (m *InferenceMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *InferenceMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

func (m *InferenceMetrics) RecordOperation(operation, status string) {
	m.requestsTotal.WithLabelValues(operation, status).Inc()
}

func (m *InferenceMetrics) RecordDuration(operation string, seconds float64) {
	m.requestDuration.WithLabelValues(operation).Observe(seconds)
}

func (m *InferenceMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordCatalogCache records a catalog cache lookup
func (m *InferenceMetrics) RecordCatalogCache(catalog string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.catalogCache.WithLabelValues(catalog, result).Inc()
}
