package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// HistoryMetrics contains Prometheus metrics for prediction history queries and inserts
type HistoryMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	rowsReturned      *prometheus.GaugeVec
}

// NewHistoryMetrics creates and registers history metrics
func NewHistoryMetrics(registry prometheus.Registerer) (*HistoryMetrics, error) {
	m := &HistoryMetrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agrilens_history_operations_total",
				Help: "Total number of history datastore operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agrilens_history_operation_duration_seconds",
				Help:    "Duration of history datastore operations",
				Buckets: durationBuckets,
			},
			[]string{"operation"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agrilens_history_errors_total",
				Help: "Total number of failed history operations by error type",
			},
			[]string{"operation", "error_type"},
		),
		rowsReturned: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agrilens_history_rows_returned",
				Help: "Rows returned by the latest query per collection",
			},
			[]string{"operation"},
		),
	}

	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *HistoryMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.operationsTotal, m.operationDuration, m.errorsTotal, m.rowsReturned}
}

// Describe implements the Collector interface
func (m *HistoryMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *HistoryMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

func (m *HistoryMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

func (m *HistoryMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

func (m *HistoryMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetRowsReturned records the row count of the latest query for an operation
func (m *HistoryMetrics) SetRowsReturned(operation string, rows int) {
	m.rowsReturned.WithLabelValues(operation).Set(float64(rows))
}

// RowsReturned returns the last recorded row count for an operation
func (m *HistoryMetrics) RowsReturned(operation string) float64 {
	metric := &dto.Metric{}
	if err := m.rowsReturned.WithLabelValues(operation).Write(metric); err != nil {
		return 0
	}
	if metric.Gauge != nil && metric.Gauge.Value != nil {
		return *metric.Gauge.Value
	}
	return 0
}
