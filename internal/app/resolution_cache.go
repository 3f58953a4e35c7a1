package app

import (
	"context"
	"sync"

	"github.com/example/leasehold/internal/core/escalation"
)

// ResolutionCache memoizes policy lookups for the duration of one run.
// It is created inside each run and discarded afterwards, so policy or
// subscription changes are picked up by the next run.
//
// Concurrent callers asking for the same key share one lookup. Failed
// lookups are not cached; the next ticket retries them.
type ResolutionCache struct {
	orgPlans memo[string]     // orgID -> planID ("" when the org has no plan)
	planIDs  memo[string]     // planName -> planID ("" when the name is unknown)
	tiers    memo[scopeTiers] // scope -> stored tiers
}

// scopeTiers is the cached outcome of reading one scope. A malformed policy
// is cached as err so every ticket in the run reports it without re-reading.
type scopeTiers struct {
	tiers []escalation.Tier
	err   error
}

// NewResolutionCache creates an empty per-run cache.
func NewResolutionCache() *ResolutionCache {
	return &ResolutionCache{}
}

// memo is a mutex-guarded map whose misses are filled once per key.
type memo[V any] struct {
	mu      sync.Mutex
	entries map[string]*memoEntry[V]
}

type memoEntry[V any] struct {
	ready chan struct{}
	value V
	err   error
}

// get returns the cached value for key, calling fill on a miss. The mutex is
// never held while fill runs.
func (m *memo[V]) get(ctx context.Context, key string, fill func() (V, error)) (V, error) {
	m.mu.Lock()
	if m.entries == nil {
		m.entries = make(map[string]*memoEntry[V])
	}
	if entry, ok := m.entries[key]; ok {
		m.mu.Unlock()
		select {
		case <-entry.ready:
			return entry.value, entry.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
	entry := &memoEntry[V]{ready: make(chan struct{})}
	m.entries[key] = entry
	m.mu.Unlock()

	entry.value, entry.err = fill()
	if entry.err != nil {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
	}
	close(entry.ready)
	return entry.value, entry.err
}

// size reports the number of settled or in-flight keys.
func (m *memo[V]) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
