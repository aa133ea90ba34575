// Package metrics provides centralized metrics management for the filter
// list compiler.
//
// This package implements a unified taxonomy for Prometheus metrics:
//   - Cache metrics: result-cache and snapshot-store hits, misses, evictions
//   - Pipeline metrics: per-stage duration, download outcomes, transform counts
//   - Workflow metrics: durable workflow step outcomes, rate-limit decisions
//
// All metrics follow the naming convention:
// adblock_compiler_<category>_<metric_name>_<unit>
//
// Example:
//
//	registry := metrics.DefaultRegistry()
//	registry.Cache().HitsTotal.WithLabelValues("l1").Inc()
//	registry.Workflow().InstancesActive.Set(3)
package metrics

import (
	"sync"
)

// MetricCategory represents the category of a metric.
type MetricCategory string

const (
	CategoryCache    MetricCategory = "cache"
	CategoryPipeline MetricCategory = "pipeline"
	CategoryWorkflow MetricCategory = "workflow"
)

// MetricsRegistry is the central registry for all Prometheus metrics.
// Provides organized access to metrics by category (Cache, Pipeline,
// Workflow).
//
// Thread-safe: All Prometheus metrics are thread-safe by design.
// Singleton: Use DefaultRegistry() to get the global instance.
type MetricsRegistry struct {
	namespace string

	cache    *CacheMetrics
	pipeline *PipelineMetrics
	workflow *WorkflowMetrics

	cacheOnce    sync.Once
	pipelineOnce sync.Once
	workflowOnce sync.Once
}

var (
	defaultRegistry     *MetricsRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the global singleton MetricsRegistry.
func DefaultRegistry() *MetricsRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewMetricsRegistry("adblock_compiler")
	})
	return defaultRegistry
}

// NewMetricsRegistry creates a new MetricsRegistry with the specified
// namespace. For most use cases, use DefaultRegistry() instead.
func NewMetricsRegistry(namespace string) *MetricsRegistry {
	if namespace == "" {
		namespace = "adblock_compiler"
	}
	return &MetricsRegistry{namespace: namespace}
}

// Cache returns the Cache metrics manager. Lazy-initialized on first access.
func (r *MetricsRegistry) Cache() *CacheMetrics {
	r.cacheOnce.Do(func() {
		r.cache = NewCacheMetrics(r.namespace)
	})
	return r.cache
}

// Pipeline returns the Pipeline metrics manager. Lazy-initialized on first
// access.
func (r *MetricsRegistry) Pipeline() *PipelineMetrics {
	r.pipelineOnce.Do(func() {
		r.pipeline = NewPipelineMetrics(r.namespace)
	})
	return r.pipeline
}

// Workflow returns the Workflow metrics manager. Lazy-initialized on first
// access.
func (r *MetricsRegistry) Workflow() *WorkflowMetrics {
	r.workflowOnce.Do(func() {
		r.workflow = NewWorkflowMetrics(r.namespace)
	})
	return r.workflow
}

// Namespace returns the configured namespace for this registry.
func (r *MetricsRegistry) Namespace() string {
	return r.namespace
}
