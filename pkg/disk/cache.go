package disk

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moverwatch/moverwatch/pkg/types"
)

// DefaultCacheTTL bounds how stale a cached sample may be.
const DefaultCacheTTL = 30 * time.Second

// CachedSampler memoizes samples keyed by the (sorted paths, sorted
// exclusions) tuple. Entries past the TTL are evicted lazily on lookup.
// Within the TTL, identical calls return the identical sample.
type CachedSampler struct {
	inner Sampler
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	sample   types.DiskSample
	storedAt time.Time
}

// NewCachedSampler wraps a sampler with a TTL cache. A zero or negative ttl
// uses DefaultCacheTTL.
func NewCachedSampler(inner Sampler, ttl time.Duration) *CachedSampler {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSampler{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Sample returns the cached sample when fresh, otherwise delegates and
// stores the result.
func (c *CachedSampler) Sample(ctx context.Context, paths, exclusions []string) types.DiskSample {
	key := cacheKey(paths, exclusions)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if c.now().Sub(e.storedAt) < c.ttl {
			c.mu.Unlock()
			return e.sample
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	// The walk runs outside the lock; concurrent misses may walk twice,
	// which is harmless and avoids serializing traversals.
	sample := c.inner.Sample(ctx, paths, exclusions)

	c.mu.Lock()
	c.entries[key] = cacheEntry{sample: sample, storedAt: c.now()}
	c.mu.Unlock()

	return sample
}

// Invalidate drops every cached entry. Used when the orchestrator
// re-baselines.
func (c *CachedSampler) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func cacheKey(paths, exclusions []string) string {
	p := append([]string(nil), paths...)
	e := append([]string(nil), exclusions...)
	sort.Strings(p)
	sort.Strings(e)
	return strings.Join(p, "\x00") + "\x01" + strings.Join(e, "\x00")
}
