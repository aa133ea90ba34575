package kv

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
	hasTTL    bool
}

func (e memoryEntry) expired(now time.Time) bool {
	return e.hasTTL && now.After(e.expiresAt)
}

// MemoryStore is the in-process Store backend (the "lite" deployment
// profile): a bounded LRU of entries, each carrying its own expiry, over
// opaque byte values. Eviction uses github.com/hashicorp/golang-lru/v2
// rather than a hand-rolled scan for the oldest access time.
type MemoryStore struct {
	mu    sync.RWMutex
	cache *lru.Cache[string, memoryEntry]
}

// NewMemoryStore creates a MemoryStore bounded to maxEntries. A maxEntries
// of 0 falls back to a sensible default so a zero-value config doesn't
// silently create an unusable zero-capacity cache.
func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	c, err := lru.New[string, memoryEntry](maxEntries)
	if err != nil {
		return nil, NewError("failed to create in-memory store", "CONFIG_ERROR").withCause(err)
	}
	return &MemoryStore{cache: c}, nil
}

func (e *Error) withCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if entry.expired(time.Now()) {
		s.cache.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.hasTTL = true
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.cache.Add(key, entry)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(key)
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache.Peek(key)
	if !ok || entry.expired(time.Now()) {
		return 0, ErrNotFound
	}
	if !entry.hasTTL {
		return -1, nil
	}
	return time.Until(entry.expiresAt), nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache.Peek(key)
	if !ok || entry.expired(time.Now()) {
		return ErrNotFound
	}
	entry.hasTTL = true
	entry.expiresAt = time.Now().Add(ttl)
	s.cache.Add(key, entry)
	return nil
}

func (s *MemoryStore) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	keys := make([]string, 0, s.cache.Len())
	for _, k := range s.cache.Keys() {
		entry, ok := s.cache.Peek(k)
		if ok && !entry.expired(now) {
			keys = append(keys, k)
		}
	}
	return sortedPrefixMatch(keys, prefix), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error        { return nil }
func (s *MemoryStore) HealthCheck(ctx context.Context) error { return nil }

func (s *MemoryStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
