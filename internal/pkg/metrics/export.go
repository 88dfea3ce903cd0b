package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExportMetrics tracks reassembled documents.
type ExportMetrics struct {
	DocumentsTotal *prometheus.CounterVec
	Fragments      *prometheus.HistogramVec
	DocumentBytes  *prometheus.HistogramVec
	Duration       *prometheus.HistogramVec
	CacheTotal     *prometheus.CounterVec
}

// NewExportMetrics registers the export collectors on reg.
func NewExportMetrics(reg prometheus.Registerer, namespace string) *ExportMetrics {
	m := &ExportMetrics{
		DocumentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_documents_total",
			Help:      "Reassembled documents by dialect and JSON validity",
		}, []string{"dialect", "valid"}),
		Fragments: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_fragments",
			Help:      "Fragments per reassembled document",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"dialect"}),
		DocumentBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_document_bytes",
			Help:      "Size of reassembled documents in bytes",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"dialect"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Query plus reassembly duration in seconds",
			Buckets:   latencyBuckets,
		}, []string{"dialect", "status"}),
		CacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_cache_total",
			Help:      "Export cache lookups by result",
		}, []string{"result"}),
	}
	reg.MustRegister(m.DocumentsTotal, m.Fragments, m.DocumentBytes, m.Duration, m.CacheTotal)
	return m
}

// ObserveDocument records one finished reassembly.
func (m *ExportMetrics) ObserveDocument(dialect string, fragments, bytes int, valid bool) {
	v := "false"
	if valid {
		v = "true"
	}
	m.DocumentsTotal.WithLabelValues(dialect, v).Inc()
	m.Fragments.WithLabelValues(dialect).Observe(float64(fragments))
	m.DocumentBytes.WithLabelValues(dialect).Observe(float64(bytes))
}

// ObserveDuration records an export attempt that started at start.
func (m *ExportMetrics) ObserveDuration(dialect, status string, start time.Time) {
	m.Duration.WithLabelValues(dialect, status).Observe(time.Since(start).Seconds())
}

// CacheResult counts a cache hit, miss or error.
func (m *ExportMetrics) CacheResult(result string) {
	m.CacheTotal.WithLabelValues(result).Inc()
}
