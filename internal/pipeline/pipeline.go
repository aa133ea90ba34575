// Package pipeline orchestrates one compilation: resolving sources with
// bounded parallelism, applying per-source and global filters and
// transformations in order, merging, and producing a compilation result
// with per-stage metrics.
package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vitaliisemenov/adblock-compiler/internal/cachingdownloader"
	"github.com/vitaliisemenov/adblock-compiler/internal/diagnostics"
	"github.com/vitaliisemenov/adblock-compiler/internal/model"
	"github.com/vitaliisemenov/adblock-compiler/internal/transform"
	"github.com/vitaliisemenov/adblock-compiler/internal/wildcard"
	"github.com/vitaliisemenov/adblock-compiler/pkg/metrics"
)

// defaultParallelism is the number of sources resolved concurrently when a
// configuration doesn't override it.
const defaultParallelism = 3

// Engine compiles configurations into results.
type Engine struct {
	downloader   *cachingdownloader.Downloader
	registry     *transform.Registry
	parallelism  int
	logger       *slog.Logger
	metrics      *metrics.PipelineMetrics
}

// New constructs an Engine. parallelism of 0 uses the default of 3
// concurrent source resolutions.
func New(downloader *cachingdownloader.Downloader, registry *transform.Registry, parallelism int, logger *slog.Logger, m *metrics.PipelineMetrics) *Engine {
	if registry == nil {
		registry = transform.NewRegistry()
	}
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{downloader: downloader, registry: registry, parallelism: parallelism, logger: logger, metrics: m}
}

// sourceOutcome is one source's resolved, filtered, transformed rule list
// or the error that prevented it.
type sourceOutcome struct {
	name  string
	rules []string
	err   error
}

// Compile runs the full algorithm against cfg: resolve sources, per-source
// filter/transform, merge in declared order, global filter/transform,
// metrics, result. prefetched maps a source name to its raw content body,
// bypassing the cache and downloader entirely for that source.
func (e *Engine) Compile(dctx *diagnostics.Context, cfg *model.Configuration, prefetched map[string][]byte) (*model.Result, error) {
	start := time.Now()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stageStart := time.Now()
	outcomes, err := e.resolveSources(dctx, cfg, prefetched)
	e.recordStage("resolve_sources", stageStart, len(cfg.Sources))
	if err != nil {
		return nil, err
	}

	select {
	case <-dctx.Done():
		return &model.Result{Cancelled: true, CancelReason: dctx.Err().Error(), CompiledAt: time.Now()}, nil
	default:
	}

	var sourceErrors []model.SourceErr
	perSource := make(map[string][]string, len(outcomes))

	for _, src := range cfg.Sources {
		outcome := outcomes[src.Name]
		if outcome.err != nil {
			sourceErrors = append(sourceErrors, model.SourceErr{SourceName: src.Name, Message: outcome.err.Error()})
			if src.Strict {
				return nil, model.NewSourceError(src.Name, outcome.err)
			}
			perSource[src.Name] = nil
			continue
		}
		perSource[src.Name] = e.applySource(dctx, src, outcome.rules)
	}

	if len(sourceErrors) == len(cfg.Sources) && len(prefetched) == 0 {
		return nil, model.NewConfigurationError("all sources failed: %d errors", len(sourceErrors))
	}

	stageStart = time.Now()
	merged := make([]string, 0)
	for _, src := range cfg.Sources {
		merged = append(merged, perSource[src.Name]...)
	}
	e.recordStage("merge", stageStart, len(merged))

	stageStart = time.Now()
	final, err := e.applyGlobal(cfg, merged)
	e.recordStage("global_filter_transform", stageStart, len(final))
	if err != nil {
		return nil, err
	}

	result := &model.Result{
		Rules:        final,
		RuleCount:    len(final),
		CompiledAt:   time.Now(),
		SourceErrors: sourceErrors,
		Metrics: &model.Metrics{
			TotalDuration: time.Since(start),
		},
	}
	if e.metrics != nil {
		e.metrics.CompilationsTotal.WithLabelValues(outcomeLabel(len(sourceErrors) > 0)).Inc()
	}
	return result, nil
}

func outcomeLabel(degraded bool) string {
	if degraded {
		return "degraded"
	}
	return "success"
}

// resolveSources fetches every source concurrently, bounded by
// e.parallelism, using prefetched content when available.
func (e *Engine) resolveSources(dctx *diagnostics.Context, cfg *model.Configuration, prefetched map[string][]byte) (map[string]sourceOutcome, error) {
	results := make(map[string]sourceOutcome, len(cfg.Sources))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(e.parallelism)

	for _, src := range cfg.Sources {
		src := src
		g.Go(func() error {
			outcome := e.resolveOne(dctx, src, prefetched)
			mu.Lock()
			results[src.Name] = outcome
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) resolveOne(dctx *diagnostics.Context, src model.SourceDescriptor, prefetched map[string][]byte) sourceOutcome {
	startID := dctx.Emit(model.CategoryDownload, model.SeverityInfo, model.VariantOperationStart, "source:"+src.Name, nil)
	child := dctx.Child(startID)

	if body, ok := prefetched[src.Name]; ok {
		child.Emit(model.CategoryDownload, model.SeverityInfo, model.VariantOperationComplete, "source:"+src.Name, map[string]interface{}{"from_prefetched": true})
		return sourceOutcome{name: src.Name, rules: splitLines(body)}
	}

	if e.downloader == nil {
		err := model.NewSourceError(src.Name, model.NewConfigurationError("no downloader configured and no prefetched content for source %q", src.Name))
		child.EmitError(model.CategoryDownload, "source:"+src.Name, err)
		return sourceOutcome{name: src.Name, err: err}
	}

	res, err := e.downloader.Fetch(dctx.Ctx(), src.Name, src.Location)
	if err != nil {
		child.EmitError(model.CategoryDownload, "source:"+src.Name, err)
		return sourceOutcome{name: src.Name, err: err}
	}
	child.Emit(model.CategoryDownload, model.SeverityInfo, model.VariantOperationComplete, "source:"+src.Name, map[string]interface{}{
		"from_cache": res.FromCache,
		"degraded":   res.Degraded,
		"rule_count": res.RuleCount,
	})
	return sourceOutcome{name: src.Name, rules: splitLines(res.Content)}
}

// applySource applies inclusion/exclusion wildcards then the per-source
// transformation list, in that order, emitting start/complete diagnostics
// carrying pre- and post-counts.
func (e *Engine) applySource(dctx *diagnostics.Context, src model.SourceDescriptor, rules []string) []string {
	startID := dctx.Emit(model.CategoryTransform, model.SeverityInfo, model.VariantOperationStart, "source:"+src.Name, map[string]interface{}{"input_count": len(rules)})
	child := dctx.Child(startID)

	filtered := rules
	if filter, err := wildcard.CompileFilter(src.Inclusions, src.Exclusions); err == nil {
		filtered = filter.Apply(rules)
	}

	names := toTransformNames(src.Transformations)
	outcome, err := e.registry.Apply(names, filtered)
	if err != nil {
		child.EmitError(model.CategoryTransform, "source:"+src.Name, err)
		return filtered
	}
	e.recordTransforms(names)

	child.Emit(model.CategoryTransform, model.SeverityInfo, model.VariantOperationComplete, "source:"+src.Name, map[string]interface{}{
		"input_count":  len(rules),
		"output_count": len(outcome.Rules),
	})
	return outcome.Rules
}

func (e *Engine) applyGlobal(cfg *model.Configuration, rules []string) ([]string, error) {
	filtered := rules
	if filter, err := wildcard.CompileFilter(cfg.Inclusions, cfg.Exclusions); err == nil {
		filtered = filter.Apply(rules)
	}

	names := toTransformNames(cfg.Transformations)
	outcome, err := e.registry.Apply(names, filtered)
	if err != nil {
		return nil, err
	}
	e.recordTransforms(names)
	return outcome.Rules, nil
}

func toTransformNames(raw []string) []transform.Name {
	out := make([]transform.Name, 0, len(raw))
	for _, r := range raw {
		out = append(out, transform.Name(r))
	}
	return out
}

func (e *Engine) recordStage(stage string, start time.Time, outputCount int) {
	if e.metrics == nil {
		return
	}
	e.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	e.metrics.StageItems.WithLabelValues(stage).Observe(float64(outputCount))
}

func (e *Engine) recordTransforms(names []transform.Name) {
	if e.metrics == nil {
		return
	}
	for _, n := range names {
		e.metrics.TransformApplied.WithLabelValues(string(n)).Inc()
	}
}

func splitLines(content []byte) []string {
	lines := []string{}
	start := 0
	for i, b := range content {
		if b == '\n' {
			lines = append(lines, string(content[start:i]))
			start = i + 1
		}
	}
	if start < len(content) {
		lines = append(lines, string(content[start:]))
	}
	return lines
}
