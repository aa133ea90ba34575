// Package ratelimit implements a per-client fixed-window request counter
// backed by the shared kv.Store, so the limit holds across replicas
// rather than per-process as a token bucket would.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vitaliisemenov/adblock-compiler/internal/kv"
	"github.com/vitaliisemenov/adblock-compiler/internal/model"
	"github.com/vitaliisemenov/adblock-compiler/pkg/metrics"
)

const keyPrefix = "ratelimit:"

// Config controls the fixed window's size and request budget.
type Config struct {
	Limit  int
	Window time.Duration
}

// DefaultConfig allows 10 requests per 60 second window, a coarser
// shared-store window than an in-process token bucket would use.
func DefaultConfig() Config {
	return Config{Limit: 10, Window: time.Minute}
}

// windowCounter is the persisted state for one client's current window.
type windowCounter struct {
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"count"`
}

// Limiter enforces Config against a shared kv.Store, one counter key per
// client ID. A local token bucket guards the store round trip: a client
// already well past its budget is rejected in-process, without a Get/Set
// against the shared store.
type Limiter struct {
	store   kv.Store
	cfg     Config
	metrics *metrics.WorkflowMetrics
	burst   *localBurstGuard
}

// New constructs a Limiter. cfg's zero value falls back to DefaultConfig.
func New(store kv.Store, cfg Config, m *metrics.WorkflowMetrics) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultConfig().Limit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	return &Limiter{store: store, cfg: cfg, metrics: m, burst: newLocalBurstGuard(cfg)}
}

// localBurstGuard is a per-process token bucket, one per client ID, sized
// to the same limit and window as the shared fixed window. It rejects a
// client already spending faster than its budget without consulting the
// store, and is purely an optimization: the kv-backed fixed window below
// remains the source of truth across replicas.
type localBurstGuard struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

func newLocalBurstGuard(cfg Config) *localBurstGuard {
	return &localBurstGuard{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Limit(float64(cfg.Limit) / cfg.Window.Seconds()),
		burst:    cfg.Limit,
	}
}

func (g *localBurstGuard) allow(clientID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	limiter, ok := g.limiters[clientID]
	if !ok {
		limiter = rate.NewLimiter(g.every, g.burst)
		g.limiters[clientID] = limiter
	}
	return limiter.Allow()
}

// Decision reports whether a request is allowed and, when it is not, how
// long the caller should wait before retrying.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

func clientKey(clientID string) string {
	return keyPrefix + clientID
}

// Allow consults and advances clientID's fixed window, returning whether
// this request fits the budget. A client with no prior window starts a
// fresh one. The window's counter key expires 10 seconds after the
// window closes, so a quiet client's state doesn't linger in the store.
func (l *Limiter) Allow(ctx context.Context, clientID string) (Decision, error) {
	now := time.Now()

	if !l.burst.allow(clientID) {
		l.record("rejected_local")
		return Decision{Allowed: false, Remaining: 0, RetryAfter: time.Second, ResetAt: now.Add(time.Second)}, nil
	}

	key := clientKey(clientID)

	counter, err := l.load(ctx, key)
	if err != nil {
		return Decision{}, err
	}

	if counter == nil || now.Sub(counter.WindowStart) >= l.cfg.Window {
		counter = &windowCounter{WindowStart: now, Count: 0}
	}

	resetAt := counter.WindowStart.Add(l.cfg.Window)

	if counter.Count >= l.cfg.Limit {
		l.record("rejected")
		return Decision{Allowed: false, Remaining: 0, RetryAfter: resetAt.Sub(now), ResetAt: resetAt}, nil
	}

	counter.Count++
	if err := l.save(ctx, key, counter, resetAt.Sub(now)+10*time.Second); err != nil {
		return Decision{}, err
	}

	l.record("allowed")
	return Decision{Allowed: true, Remaining: l.cfg.Limit - counter.Count, ResetAt: resetAt}, nil
}

func (l *Limiter) load(ctx context.Context, key string) (*windowCounter, error) {
	data, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, model.NewStorageError("ratelimit.load", err, false)
	}
	if !ok {
		return nil, nil
	}
	var counter windowCounter
	if err := json.Unmarshal(data, &counter); err != nil {
		return nil, model.NewStorageError("ratelimit.load:unmarshal", err, false)
	}
	return &counter, nil
}

func (l *Limiter) save(ctx context.Context, key string, counter *windowCounter, ttl time.Duration) error {
	data, err := json.Marshal(counter)
	if err != nil {
		return model.NewStorageError("ratelimit.save:marshal", err, false)
	}
	if err := l.store.Set(ctx, key, data, ttl); err != nil {
		return model.NewStorageError("ratelimit.save:set", err, false)
	}
	return nil
}

func (l *Limiter) record(outcome string) {
	if l.metrics == nil {
		return
	}
	l.metrics.RateLimitDecision.WithLabelValues(outcome).Inc()
}

// RetryAfterHeader formats d as the integer-second value expected by an
// HTTP Retry-After header.
func RetryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("%d", seconds)
}
