package signal

import (
	"context"
	"sync"
	"sync/atomic"
)

// Source is the interface every signal source implements. The aggregator
// holds an ordered slice of Sources and never branches on the concrete type.
type Source interface {
	// Name is a stable snake_case identifier (e.g. "harm_pattern").
	Name() string

	// Version is a semantic version bumped when detection behavior changes.
	Version() string

	// Initialize acquires lazy resources. Calling it more than once is a no-op.
	Initialize(ctx context.Context) error

	// Shutdown releases resources held by the source.
	Shutdown(ctx context.Context) error

	// Evaluate inspects the request. It must not panic for structurally valid
	// input and returns a negative verdict when nothing is detected.
	Evaluate(ctx context.Context, req Request) Verdict

	Stats() Stats
	ResetStats()
}

// BatchEvaluator is implemented by sources that can evaluate several
// requests more efficiently than one at a time.
type BatchEvaluator interface {
	EvaluateBatch(ctx context.Context, reqs []Request) []Verdict
}

// EvaluateBatch evaluates reqs with src, using its BatchEvaluator when it has
// one and falling back to sequential evaluation otherwise. Output order
// matches input order.
func EvaluateBatch(ctx context.Context, src Source, reqs []Request) []Verdict {
	if b, ok := src.(BatchEvaluator); ok {
		return b.EvaluateBatch(ctx, reqs)
	}
	out := make([]Verdict, len(reqs))
	for i, r := range reqs {
		out[i] = src.Evaluate(ctx, r)
	}
	return out
}

// Stats are per-source counters since construction or the last reset.
type Stats struct {
	Calls       int64 `json:"calls"`
	Detections  int64 `json:"detections"`
	Errors      int64 `json:"errors"`
	CacheHits   int64 `json:"cache_hits,omitempty"`
	CacheMisses int64 `json:"cache_misses,omitempty"`
}

// Counters implements Stats/ResetStats for embedding in sources. Safe for
// concurrent use.
type Counters struct {
	calls       atomic.Int64
	detections  atomic.Int64
	errors      atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// Observe records one evaluation and its outcome.
func (c *Counters) Observe(v Verdict) {
	c.calls.Add(1)
	if v.Detected {
		c.detections.Add(1)
	}
}

func (c *Counters) RecordError()     { c.errors.Add(1) }
func (c *Counters) RecordCacheHit()  { c.cacheHits.Add(1) }
func (c *Counters) RecordCacheMiss() { c.cacheMisses.Add(1) }

func (c *Counters) Stats() Stats {
	return Stats{
		Calls:       c.calls.Load(),
		Detections:  c.detections.Load(),
		Errors:      c.errors.Load(),
		CacheHits:   c.cacheHits.Load(),
		CacheMisses: c.cacheMisses.Load(),
	}
}

func (c *Counters) ResetStats() {
	c.calls.Store(0)
	c.detections.Store(0)
	c.errors.Store(0)
	c.cacheHits.Store(0)
	c.cacheMisses.Store(0)
}

// InitOnce runs an initializer at most once until it succeeds. A failed
// attempt is retried on the next call.
type InitOnce struct {
	mu   sync.Mutex
	done bool
}

// Do calls fn unless a previous call already succeeded.
func (o *InitOnce) Do(fn func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	o.done = true
	return nil
}

// Reset marks the initializer as not yet run, so the next Do runs fn again.
func (o *InitOnce) Reset() {
	o.mu.Lock()
	o.done = false
	o.mu.Unlock()
}
