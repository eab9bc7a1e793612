package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record status label values
const (
	StatusConverted = "converted"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

var (
	// Conversion metrics
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctidoc_records_total",
			Help: "Total number of records processed",
		},
		[]string{"category", "status"},
	)

	RecordErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctidoc_record_errors_total",
			Help: "Total number of records skipped because of an error",
		},
		[]string{"condition"},
	)

	RenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ctidoc_render_duration_seconds",
			Help:    "Duration of record conversion (resolve, classify, render) in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Output metrics
	ChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ctidoc_chunks_total",
			Help: "Total number of chunks emitted",
		},
	)

	FilesWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ctidoc_files_written_total",
			Help: "Total number of markdown files written",
		},
	)

	// Sink metrics
	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctidoc_sink_errors_total",
			Help: "Total number of sink publish errors",
		},
		[]string{"sink"},
	)
)
