package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdfassembler"

var (
	sourcesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_processed_total",
			Help:      "Total sources processed by kind and result (ok, placeholder)",
		},
		[]string{"kind", "result"},
	)

	extractLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extract_duration_seconds",
			Help:      "Duration of page extraction by source kind",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	placeholderPages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placeholder_pages_total",
			Help:      "Total placeholder pages substituted for failed sources",
		},
	)

	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total assembly runs by final state",
		},
		[]string{"state"},
	)

	runLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of assembly runs",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	outputBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "output_bytes",
			Help:      "Size of serialized output documents",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 8),
		},
	)

	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Total queue jobs processed by result (success, retry, dlq, cancelled)",
		},
		[]string{"result"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Queue depth gauges for stream, delayed and dlq",
		},
		[]string{"type"},
	)

	initOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(sourcesProcessed, extractLatency, placeholderPages, runs, runLatency, outputBytes, jobsProcessed, queueDepth)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveExtract(kind, result string, dur time.Duration) {
	sourcesProcessed.WithLabelValues(kind, result).Inc()
	extractLatency.WithLabelValues(kind).Observe(dur.Seconds())
}

func IncPlaceholder() { placeholderPages.Inc() }

func ObserveRun(state string, dur time.Duration) {
	runs.WithLabelValues(state).Inc()
	runLatency.Observe(dur.Seconds())
}

func ObserveOutput(n int) { outputBytes.Observe(float64(n)) }

func IncJob(result string) { jobsProcessed.WithLabelValues(result).Inc() }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }
