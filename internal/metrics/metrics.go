// Package metrics defines Prometheus instrumentation for the encode/rank pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	PreprocessSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "umekomi",
			Name:      "preprocess_seconds",
			Help:      "Minibatch preprocessing duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"modality"},
	)

	EncodeSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "umekomi",
			Name:      "encode_seconds",
			Help:      "Minibatch model inference duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"modality"},
	)

	DocumentsEncodedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "umekomi",
			Name:      "documents_encoded_total",
			Help:      "Total documents that received an embedding",
		},
		[]string{"modality"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "umekomi",
			Name:      "requests_total",
			Help:      "Total encode/rank operations",
		},
		[]string{"operation", "status"},
	)

	TextCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "umekomi",
			Name:      "text_cache_total",
			Help:      "Text embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var registered bool

// Register registers pipeline metrics with the default registry. Must be
// called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(PreprocessSeconds)
	prometheus.MustRegister(EncodeSeconds)
	prometheus.MustRegister(DocumentsEncodedTotal)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(TextCacheTotal)
	registered = true
}
