package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vitaliisemenov/adblock-compiler/internal/cachingdownloader"
	"github.com/vitaliisemenov/adblock-compiler/internal/coalescer"
	"github.com/vitaliisemenov/adblock-compiler/internal/diagnostics"
	"github.com/vitaliisemenov/adblock-compiler/internal/model"
	"github.com/vitaliisemenov/adblock-compiler/internal/pipeline"
	"github.com/vitaliisemenov/adblock-compiler/internal/resultcache"
	"github.com/vitaliisemenov/adblock-compiler/internal/snapshot"
)

// Workflow type names, recorded as Instance.WorkflowType.
const (
	TypeCompilation    = "compilation"
	TypeBatch          = "batch"
	TypeCacheWarming   = "cache_warming"
	TypeHealthMonitor  = "health_monitoring"
)

// defaultStepRetries is the retry contract shared by every step in the
// built-in workflow types unless a step has a reason to differ.
var defaultStepRetries = RetryPolicy{Limit: 2, Delay: time.Second, Backoff: BackoffExponential}

// Coordinator wires the durable Engine to the components a workflow
// actually exercises: compilation, result caching, and source health
// tracking.
type Coordinator struct {
	engine    *Engine
	pipeline  *pipeline.Engine
	cache     *resultcache.Cache
	coalescer *coalescer.Coalescer
	tracker   *snapshot.Tracker
	downloader *cachingdownloader.Downloader
}

// NewCoordinator constructs a Coordinator. cache, coalescer, and tracker
// may be nil for deployments that don't need result caching, in-flight
// coalescing, or health tracking respectively.
func NewCoordinator(engine *Engine, pipe *pipeline.Engine, cache *resultcache.Cache, co *coalescer.Coalescer, tracker *snapshot.Tracker, downloader *cachingdownloader.Downloader) *Coordinator {
	return &Coordinator{engine: engine, pipeline: pipe, cache: cache, coalescer: co, tracker: tracker, downloader: downloader}
}

// CompilationParams is the durable parameter record for a Compilation
// workflow instance.
type CompilationParams struct {
	Configuration *model.Configuration   `json:"configuration"`
	Prefetched    map[string][]byte      `json:"prefetched,omitempty"`
}

// Compile runs a single-configuration compilation as the four named,
// independently durable steps named: `validate`, `compile-sources`,
// `cache-result`, `update-metrics`. Each step's output is checkpointed
// separately, so a crash between two steps resumes at the first
// unfinished one: a `compile-sources` step that already recorded its
// output is replayed (no refetch, no retransform) while `cache-result`
// and `update-metrics` — not yet recorded — run fresh.
func (c *Coordinator) Compile(ctx context.Context, instanceID string, params CompilationParams) (*model.Result, error) {
	steps := []Step{
		{
			Name:    "validate",
			Retries: RetryPolicy{Limit: 0},
			Timeout: 5 * time.Second,
			Run: func(ctx context.Context) (interface{}, error) {
				if err := params.Configuration.Validate(); err != nil {
					return nil, err
				}
				return true, nil
			},
		},
		{
			Name:    "compile-sources",
			Retries: defaultStepRetries,
			Timeout: 2 * time.Minute,
			Run: func(ctx context.Context) (interface{}, error) {
				return c.compileSources(ctx, params)
			},
		},
		{
			Name:    "cache-result",
			Retries: RetryPolicy{Limit: 1, Delay: time.Second, Backoff: BackoffConstant},
			Timeout: 10 * time.Second,
			Run: func(ctx context.Context) (interface{}, error) {
				result, err := c.loadStepResult(ctx, instanceID, "compile-sources")
				if err != nil {
					return nil, err
				}
				return c.cacheResult(ctx, params, result)
			},
		},
		{
			Name:    "update-metrics",
			Retries: RetryPolicy{Limit: 1, Delay: time.Second, Backoff: BackoffConstant},
			Timeout: 10 * time.Second,
			Run: func(ctx context.Context) (interface{}, error) {
				result, err := c.loadStepResult(ctx, instanceID, "cache-result")
				if err != nil {
					return nil, err
				}
				return c.updateMetrics(result), nil
			},
		},
	}

	inst, err := c.engine.Start(ctx, instanceID, TypeCompilation, params, steps)
	if err != nil {
		return nil, err
	}
	record := inst.StepByName("update-metrics")
	if record == nil || !record.Succeeded() {
		return nil, model.NewWorkflowError("update-metrics", fmt.Errorf("compilation workflow %s terminated without a result", instanceID))
	}
	return decodeResult(record.Output)
}

// loadStepResult reloads instanceID's durable record and decodes the
// named step's recorded output as a *model.Result. Reloading from the
// engine rather than closing over a local variable is what makes a later
// step correct regardless of whether the earlier step ran in this
// process (not yet persisted at closure-definition time) or was replayed
// from a prior run.
func (c *Coordinator) loadStepResult(ctx context.Context, instanceID, stepName string) (*model.Result, error) {
	inst, err := c.engine.LoadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, model.NewWorkflowError(stepName, fmt.Errorf("instance %s has no durable record", instanceID))
	}
	record := inst.StepByName(stepName)
	if record == nil || !record.Succeeded() {
		return nil, model.NewWorkflowError(stepName, fmt.Errorf("step %q has no recorded output yet", stepName))
	}
	return decodeResult(record.Output)
}

// compileSources resolves params' sources through the pipeline, coalescing
// concurrent requests for the same fingerprint, but never writes the
// result to the result cache — that is cache-result's job, kept as its
// own step so a crash after a successful compile-sources never forces a
// refetch on resume.
func (c *Coordinator) compileSources(ctx context.Context, params CompilationParams) (*model.Result, error) {
	fingerprint, err := resultcache.Fingerprint(params.Configuration)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, fingerprint); ok {
			clone := *cached
			clone.FromCache = true
			return &clone, nil
		}
	}

	run := func() (*model.Result, error) {
		dctx := diagnostics.New(ctx, nil)
		return c.pipeline.Compile(dctx, params.Configuration, params.Prefetched)
	}

	// Coalescing assumes an identical fingerprint implies identical work;
	// that does not hold when the caller supplies its own source bodies,
	// since two callers with the same configuration may prefetch
	// different content.
	if c.coalescer == nil || len(params.Prefetched) > 0 {
		return run()
	}
	result, _, err := c.coalescer.Do(fingerprint, run)
	return result, err
}

// cacheResult persists result under params' fingerprint and attaches the
// previous cached version for diffing. A result already served from the
// cache (compile-sources found a hit) is not eligible for a fresh write.
func (c *Coordinator) cacheResult(ctx context.Context, params CompilationParams, result *model.Result) (*model.Result, error) {
	if result.FromCache || c.cache == nil {
		return result, nil
	}

	fingerprint, err := resultcache.Fingerprint(params.Configuration)
	if err != nil {
		return nil, err
	}

	previous, err := c.cache.Put(ctx, fingerprint, result)
	if err != nil {
		return nil, err
	}
	if previous != nil {
		result.PreviousVersion = previous.ToSummary()
	}
	return result, nil
}

// updateMetrics finalizes result.Metrics' total duration to cover the
// full workflow — compile plus the cache write cache-result just did —
// rather than only the pipeline's own compile time.
func (c *Coordinator) updateMetrics(result *model.Result) *model.Result {
	if result.Metrics != nil && !result.CompiledAt.IsZero() {
		result.Metrics.TotalDuration = time.Since(result.CompiledAt) + result.Metrics.TotalDuration
	}
	return result
}

// compileAndCache runs compile-sources and cache-result as one
// in-process call for the Batch workflow, whose per-configuration step
// contract only requires one durable checkpoint per item, not the finer
// four-step breakdown a single Compilation workflow instance gets.
func (c *Coordinator) compileAndCache(ctx context.Context, params CompilationParams) (*model.Result, error) {
	result, err := c.compileSources(ctx, params)
	if err != nil {
		return nil, err
	}
	return c.cacheResult(ctx, params, result)
}

// decodeResult accepts output either as the live *model.Result a step
// just produced in-process, or as the map[string]interface{} shape
// json.Unmarshal leaves it in after LoadInstance reloads a step record
// from storage.
func decodeResult(output interface{}) (*model.Result, error) {
	if result, ok := output.(*model.Result); ok {
		return result, nil
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return nil, model.NewWorkflowError("compile", fmt.Errorf("unexpected step output type %T: %w", output, err))
	}
	var result model.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, model.NewWorkflowError("compile", fmt.Errorf("unexpected step output type %T: %w", output, err))
	}
	return &result, nil
}

// BatchParams is the durable parameter record for a Batch workflow
// instance: many configurations compiled in sequence, one durable step
// per configuration so a crash mid-batch resumes at the first
// unfinished entry rather than restarting the whole batch.
type BatchParams struct {
	Configurations []*model.Configuration `json:"configurations"`
}

// Batch runs CompilationParams for each configuration in sequence as one
// step per configuration, keyed by the configuration's Name so a resume
// skips configurations already compiled successfully.
func (c *Coordinator) Batch(ctx context.Context, instanceID string, params BatchParams) ([]*model.Result, error) {
	steps := make([]Step, 0, len(params.Configurations))
	for _, cfg := range params.Configurations {
		cfg := cfg
		steps = append(steps, Step{
			Name:    "compile:" + cfg.Name,
			Retries: defaultStepRetries,
			Timeout: 2 * time.Minute,
			Run: func(ctx context.Context) (interface{}, error) {
				return c.compileAndCache(ctx, CompilationParams{Configuration: cfg})
			},
		})
	}

	inst, err := c.engine.Start(ctx, instanceID, TypeBatch, params, steps)
	if err != nil {
		return nil, err
	}

	results := make([]*model.Result, 0, len(params.Configurations))
	for _, cfg := range params.Configurations {
		record := inst.StepByName("compile:" + cfg.Name)
		if record == nil || !record.Succeeded() {
			return results, model.NewWorkflowError("compile:"+cfg.Name, fmt.Errorf("configuration %q did not complete", cfg.Name))
		}
		result, err := decodeResult(record.Output)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// CacheWarmingParams names the sources to pre-fetch into the caching
// downloader and snapshot tracker without compiling any configuration.
type CacheWarmingParams struct {
	Sources []model.SourceDescriptor `json:"sources"`
}

// WarmCache pre-fetches every named source through the caching
// downloader, one step per source, so a subsequent compilation finds a
// warm cache instead of paying the origin round trip inline.
func (c *Coordinator) WarmCache(ctx context.Context, instanceID string, params CacheWarmingParams) error {
	steps := make([]Step, 0, len(params.Sources))
	for _, src := range params.Sources {
		src := src
		steps = append(steps, Step{
			Name:    "warm:" + src.Name,
			Retries: defaultStepRetries,
			Timeout: 30 * time.Second,
			Run: func(ctx context.Context) (interface{}, error) {
				return c.downloader.Fetch(ctx, src.Name, src.Location)
			},
		})
	}

	_, err := c.engine.Start(ctx, instanceID, TypeCacheWarming, params, steps)
	return err
}

// HealthMonitoringParams names the sources whose rolling health record
// should be refreshed by issuing a lightweight probe fetch.
type HealthMonitoringParams struct {
	Sources []model.SourceDescriptor `json:"sources"`
}

// MonitorHealth issues one probe fetch per named source, one step each,
// relying on the caching downloader's own snapshot/health recording as
// its side effect; the step's recorded output is only whether the probe
// succeeded.
func (c *Coordinator) MonitorHealth(ctx context.Context, instanceID string, params HealthMonitoringParams) (*model.Instance, error) {
	steps := make([]Step, 0, len(params.Sources))
	for _, src := range params.Sources {
		src := src
		steps = append(steps, Step{
			Name:    "probe:" + src.Name,
			Retries: RetryPolicy{Limit: 1, Delay: 500 * time.Millisecond, Backoff: BackoffConstant},
			Timeout: 15 * time.Second,
			Run: func(ctx context.Context) (interface{}, error) {
				_, err := c.downloader.Fetch(ctx, src.Name, src.Location)
				return err == nil, err
			},
		})
	}

	return c.engine.Start(ctx, instanceID, TypeHealthMonitor, params, steps)
}
