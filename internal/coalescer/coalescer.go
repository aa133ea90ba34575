// Package coalescer implements an in-flight request coalescer: a
// process-local mapping from cache-fingerprint to the in-flight
// compilation task, so concurrent identical requests share one execution.
// Built on golang.org/x/sync/singleflight, whose Group is exactly this
// primitive, used directly rather than hand-rolled.
package coalescer

import (
	"golang.org/x/sync/singleflight"

	"github.com/vitaliisemenov/adblock-compiler/internal/model"
)

// Coalescer deduplicates concurrent compilations sharing a fingerprint.
type Coalescer struct {
	group singleflight.Group
}

// New constructs a Coalescer.
func New() *Coalescer {
	return &Coalescer{}
}

// Do runs fn for fingerprint, or waits for and returns the result of an
// already in-flight call for the same fingerprint. The shared bool result
// reports whether this caller's result came from a concurrent in-flight
// call rather than its own execution.
func (c *Coalescer) Do(fingerprint string, fn func() (*model.Result, error)) (*model.Result, bool, error) {
	v, shared, err := c.group.Do(fingerprint, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*model.Result), shared, nil
}

// Forget removes fingerprint from the in-flight map without waiting for
// its result, used when a caller needs to force the next request for this
// fingerprint to execute fresh rather than join a stale in-flight call.
func (c *Coalescer) Forget(fingerprint string) {
	c.group.Forget(fingerprint)
}
