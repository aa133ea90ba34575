package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkflowMetrics tracks durable-workflow step outcomes and rate-limit
// decisions.
type WorkflowMetrics struct {
	StepsTotal        *prometheus.CounterVec
	StepDuration      *prometheus.HistogramVec
	InstancesActive   prometheus.Gauge
	RateLimitDecision *prometheus.CounterVec
	SourceHealth      *prometheus.GaugeVec
}

func NewWorkflowMetrics(namespace string) *WorkflowMetrics {
	return &WorkflowMetrics{
		StepsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "steps_total",
				Help:      "Total workflow step executions by workflow type, step, and outcome",
			},
			[]string{"workflow_type", "step", "outcome"},
		),
		StepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "step_duration_seconds",
				Help:      "Duration of workflow step executions",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"workflow_type", "step"},
		),
		InstancesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "instances_active",
				Help:      "Number of currently running workflow instances",
			},
		),
		RateLimitDecision: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Total rate limit decisions by outcome",
			},
			[]string{"outcome"},
		),
		SourceHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "source",
				Name:      "health_status",
				Help:      "Current source health classification (0=healthy,1=degraded,2=unhealthy)",
			},
			[]string{"source"},
		),
	}
}
