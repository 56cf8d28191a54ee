// Package telemetry exposes the engine's prometheus metrics and otel
// tracing setup as package-level registries, the same pattern the
// teacher repo's internal/metrics uses for its dispatcher/sink metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FilesDiscovered counts catalogue hits per dataset.
	FilesDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "databridge_files_discovered_total",
			Help: "Total number of files discovered by the catalogue.",
		},
		[]string{"dataset"},
	)

	// FilesProcessed counts files that completed a phase (acquisition or
	// ingestion) with a given outcome.
	FilesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "databridge_files_processed_total",
			Help: "Total number of files processed per phase and outcome.",
		},
		[]string{"phase", "outcome"},
	)

	// RecordsMutated counts per-dataset document mutations by change type.
	RecordsMutated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "databridge_records_mutated_total",
			Help: "Total number of dataset document mutations.",
		},
		[]string{"dataset", "change_type"},
	)

	// RowsSkipped counts rows dropped for an unrecognized change_type.
	RowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "databridge_rows_skipped_total",
			Help: "Total number of rows skipped due to an invalid change_type.",
		},
		[]string{"dataset"},
	)

	// IngestionRowsPerMinute reports the current EMA throughput of the
	// file being ingested.
	IngestionRowsPerMinute = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "databridge_ingestion_rows_per_minute",
		Help: "Exponential moving average of ingestion throughput for the current file.",
	})

	// ImportDuration records the wall-clock duration of a finished
	// import, labelled by its final status (completed or failed).
	ImportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "databridge_import_duration_seconds",
			Help:    "Duration of a full orchestrator run.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)
