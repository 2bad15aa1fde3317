package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics, exported on /metrics.
var (
	linesForwardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_lines_total",
			Help: "Number of non-blank lines forwarded to the normalizer",
		},
	)

	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_records_total",
			Help: "Number of normalized records produced, by variant",
		},
		[]string{"variant"}, // "parsed" or "parse_error"
	)

	filesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_files_total",
			Help: "Number of files processed, by outcome",
		},
		[]string{"outcome"}, // "success" or "failure"
	)

	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_batches_total",
			Help: "Number of batches processed, by outcome",
		},
		[]string{"outcome"},
	)

	fileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_file_duration_seconds",
			Help:    "Wall-clock time spent processing one file",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	bulkInsertDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_bulk_insert_duration_seconds",
			Help:    "Duration of the bulk insert call for one batch",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)
)

func observeRecord(parseError bool) {
	variant := "parsed"
	if parseError {
		variant = "parse_error"
	}
	recordsTotal.WithLabelValues(variant).Inc()
}

func observeFile(success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	filesTotal.WithLabelValues(outcome).Inc()
	fileDuration.Observe(d.Seconds())
}

// ObserveBatch records a finished batch for the given terminal status.
func ObserveBatch(status string) {
	batchesTotal.WithLabelValues(status).Inc()
}
