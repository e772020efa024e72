package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"maps"
	"sync"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/gzhole/textgate/internal/signal"
)

// Cache stores successful judgements by key. Implementations must return a
// miss, never a stale entry, once an entry is older than their TTL.
type Cache interface {
	Get(ctx context.Context, key string) (signal.Verdict, bool, error)
	Set(ctx context.Context, key string, v signal.Verdict) error
}

type cacheKeyInput struct {
	Content        string `json:"content"`
	IncludeContext bool   `json:"include_context"`
	Context        string `json:"context"`
}

// CacheKey is the sha256 of the RFC 8785 canonical JSON of the inputs. It is
// a pure function of its arguments.
func CacheKey(content string, includeContext bool, contextText string) string {
	raw, _ := json.Marshal(cacheKeyInput{
		Content:        content,
		IncludeContext: includeContext,
		Context:        contextText,
	})
	if canonical, err := jcs.Transform(raw); err == nil {
		raw = canonical
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	verdict  signal.Verdict
	storedAt time.Time
}

// MemoryCache is an in-process TTL cache. Expired entries are evicted lazily
// on read. The map is mutex-guarded; concurrent misses on one key may both
// reach the judge.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) { c.now = now }
}

// NewMemoryCache returns an empty cache. A non-positive ttl never expires.
func NewMemoryCache(ttl time.Duration, opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) (signal.Verdict, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return signal.Verdict{}, false, nil
	}
	if c.expired(e) {
		delete(c.entries, key)
		return signal.Verdict{}, false, nil
	}
	return cloneVerdict(e.verdict), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, v signal.Verdict) error {
	c.mu.Lock()
	c.entries[key] = cacheEntry{verdict: cloneVerdict(v), storedAt: c.now()}
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every expired entry and returns how many were removed.
func (c *MemoryCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *MemoryCache) expired(e cacheEntry) bool {
	return c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl
}

// cloneVerdict copies the metadata map so cached entries are never shared.
func cloneVerdict(v signal.Verdict) signal.Verdict {
	if v.Metadata != nil {
		v.Metadata = maps.Clone(v.Metadata)
	}
	return v
}
