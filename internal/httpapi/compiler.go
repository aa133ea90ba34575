package httpapi

import (
	"context"

	"github.com/vitaliisemenov/adblock-compiler/internal/diagnostics"
	"github.com/vitaliisemenov/adblock-compiler/internal/model"
	"github.com/vitaliisemenov/adblock-compiler/internal/resultcache"
)

// compileOutcome carries a compile's result plus the cache/coalescing
// provenance the sync and streaming handlers surface as response headers.
type compileOutcome struct {
	result       *model.Result
	cacheHit     bool
	deduplicated bool
}

// runCompile resolves req against the result cache and in-flight
// coalescer, falling through to the pipeline on a miss. It duplicates
// workflow.Coordinator's cache-then-coalesce shape rather than calling
// through it, because this path needs to report cache/dedup provenance
// for response headers and accepts a live diagnostics.Collector for
// streaming — both of which the durable workflow step (which must stay
// replay-safe and collector-less) cannot expose.
func (s *Server) runCompile(ctx context.Context, req CompileRequest, collector diagnostics.Collector) (compileOutcome, error) {
	if err := req.Configuration.Validate(); err != nil {
		return compileOutcome{}, err
	}

	fingerprint, err := resultcache.Fingerprint(req.Configuration)
	if err != nil {
		return compileOutcome{}, err
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, fingerprint); ok {
			clone := *cached
			clone.FromCache = true
			return compileOutcome{result: &clone, cacheHit: true}, nil
		}
	}

	run := func() (*model.Result, error) {
		dctx := diagnostics.New(ctx, collector)
		result, err := s.pipeline.Compile(dctx, req.Configuration, req.PreFetchedContent)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if previous, putErr := s.cache.Put(ctx, fingerprint, result); putErr == nil {
				result.PreviousVersion = previous.ToSummary()
			}
		}
		return result, nil
	}

	if s.coalescer == nil {
		result, err := run()
		if err != nil {
			return compileOutcome{}, err
		}
		return compileOutcome{result: result}, nil
	}

	result, shared, err := s.coalescer.Do(fingerprint, run)
	if err != nil {
		return compileOutcome{}, err
	}
	return compileOutcome{result: result, deduplicated: shared}, nil
}
