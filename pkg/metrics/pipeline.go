package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics tracks compilation-pipeline stage durations and
// source-download outcomes.
type PipelineMetrics struct {
	StageDuration     *prometheus.HistogramVec
	StageItems        *prometheus.HistogramVec
	DownloadsTotal    *prometheus.CounterVec
	DownloadDuration  *prometheus.HistogramVec
	TransformApplied  *prometheus.CounterVec
	CompilationsTotal *prometheus.CounterVec
}

func NewPipelineMetrics(namespace string) *PipelineMetrics {
	return &PipelineMetrics{
		StageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of each compilation pipeline stage",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		StageItems: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_output_rules",
				Help:      "Number of rules output by a pipeline stage",
				Buckets:   []float64{0, 10, 100, 1000, 10000, 100000, 1000000},
			},
			[]string{"stage"},
		),
		DownloadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "downloader",
				Name:      "requests_total",
				Help:      "Total source download attempts by outcome",
			},
			[]string{"source", "outcome"},
		),
		DownloadDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "downloader",
				Name:      "request_duration_seconds",
				Help:      "Duration of source download requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		TransformApplied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "transform_applications_total",
				Help:      "Total times a named transformation was applied",
			},
			[]string{"transform"},
		),
		CompilationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "compilations_total",
				Help:      "Total compile operations by outcome",
			},
			[]string{"outcome"},
		),
	}
}
