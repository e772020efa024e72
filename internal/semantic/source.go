package semantic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gzhole/textgate/internal/metrics"
	"github.com/gzhole/textgate/internal/signal"
)

// Name is the stable source identifier.
const Name = "semantic"

// Version is bumped when the prompt or parsing changes.
const Version = "1.0.0"

// Config controls the semantic source.
type Config struct {
	Source                  signal.SourceConfig
	Provider                ProviderConfig
	Timeout                 time.Duration
	FailClosed              bool
	CacheEnabled            bool
	CacheTTL                time.Duration
	IncludePriorTurnContext bool
	MaxConcurrency          int
}

// DefaultConfig returns the semantic defaults: fail closed, one hour cache.
func DefaultConfig() Config {
	return Config{
		Source:         signal.DefaultSourceConfig(),
		Provider:       ProviderConfig{Provider: ProviderOpenAI, Model: "gpt-4o-mini"},
		Timeout:        30 * time.Second,
		FailClosed:     true,
		CacheEnabled:   true,
		CacheTTL:       time.Hour,
		MaxConcurrency: 4,
	}
}

// Validate rejects configuration that cannot work at call time.
func (c Config) Validate() error {
	if err := c.Source.Validate(Name); err != nil {
		return err
	}
	if err := c.Provider.Validate(); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return signal.NewConfigError(Name, "timeout", "must be positive, got %s", c.Timeout)
	}
	if c.CacheEnabled && c.CacheTTL <= 0 {
		return signal.NewConfigError(Name, "cache_ttl", "must be positive when the cache is enabled, got %s", c.CacheTTL)
	}
	if c.MaxConcurrency < 1 {
		return signal.NewConfigError(Name, "max_concurrency", "must be at least 1, got %d", c.MaxConcurrency)
	}
	return nil
}

// Option customizes a Source.
type Option func(*Source)

// WithJudge injects the judge instead of building one from the provider config.
func WithJudge(j Judge) Option {
	return func(s *Source) { s.judge = j }
}

// WithCache replaces the default in-memory cache.
func WithCache(c Cache) Option {
	return func(s *Source) { s.cache = c }
}

// WithHTTPClient sets the client used by the built-in providers.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// WithMetrics records cache and error metrics.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Source) { s.metrics = r }
}

// Source delegates gate evaluation to an external judge.
type Source struct {
	signal.Counters

	cfg        Config
	policy     FailurePolicy
	parser     *Parser
	judge      Judge
	cache      Cache
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Recorder
	once       signal.InitOnce
}

// New validates cfg and builds the source. The judge itself is created
// lazily by Initialize unless one is injected.
func New(cfg Config, opts ...Option) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	parser, err := NewParser()
	if err != nil {
		return nil, err
	}
	s := &Source{
		cfg:    cfg,
		policy: PolicyFor(cfg.FailClosed),
		parser: parser,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("source", Name)
	if s.cache == nil && cfg.CacheEnabled {
		s.cache = NewMemoryCache(cfg.CacheTTL)
	}
	return s, nil
}

func (s *Source) Name() string    { return Name }
func (s *Source) Version() string { return Version }

// Policy returns the active failure policy.
func (s *Source) Policy() FailurePolicy { return s.policy }

// Initialize builds the provider client if none was injected. It is safe to
// call repeatedly; a failed attempt is retried on the next call.
func (s *Source) Initialize(ctx context.Context) error {
	return s.once.Do(func() error {
		if s.judge != nil {
			return nil
		}
		j, err := NewJudge(s.cfg.Provider, s.httpClient)
		if err != nil {
			return fmt.Errorf("build judge: %w", err)
		}
		s.judge = j
		s.logger.Debug("semantic judge ready", "provider", s.cfg.Provider.Provider, "model", s.cfg.Provider.Model)
		return nil
	})
}

// Shutdown closes the cache when it holds external resources.
func (s *Source) Shutdown(ctx context.Context) error {
	s.once.Reset()
	if c, ok := s.cache.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Evaluate consults the cache, then the judge. Failures never escape: the
// failure policy decides the verdict.
func (s *Source) Evaluate(ctx context.Context, req signal.Request) signal.Verdict {
	v := s.evaluate(ctx, req)
	s.Observe(v)
	return v
}

// EvaluateBatch evaluates up to MaxConcurrency requests in parallel. Output
// order matches input order.
func (s *Source) EvaluateBatch(ctx context.Context, reqs []signal.Request) []signal.Verdict {
	out := make([]signal.Verdict, len(reqs))
	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					out[i] = s.fail(fmt.Errorf("evaluation panicked: %v", r))
					s.Observe(out[i])
				}
			}()
			out[i] = s.Evaluate(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Source) evaluate(ctx context.Context, req signal.Request) signal.Verdict {
	if req.Blank() {
		return signal.Negative(Name, Version, "empty text")
	}

	contextText := ""
	if s.cfg.IncludePriorTurnContext && len(req.PriorTurns) > 0 {
		contextText = req.PriorTurns[len(req.PriorTurns)-1].Content
	}
	key := CacheKey(req.Text, s.cfg.IncludePriorTurnContext, contextText)

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("semantic cache read failed", "error", err)
		}
		if ok {
			s.RecordCacheHit()
			s.metrics.ObserveCache(true)
			cached = cloneVerdict(cached)
			if cached.Metadata == nil {
				cached.Metadata = map[string]any{}
			}
			cached.Metadata["cache_hit"] = true
			return cached
		}
		s.RecordCacheMiss()
		s.metrics.ObserveCache(false)
	}

	if err := s.Initialize(ctx); err != nil {
		return s.fail(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	raw, err := s.complete(callCtx, BuildPrompt(req.Text, contextText, s.cfg.IncludePriorTurnContext))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("judge timed out after %s: %w", s.cfg.Timeout, err)
		}
		return s.fail(err)
	}

	j, err := s.parser.Parse(raw)
	if err != nil {
		return s.fail(err)
	}

	v := j.Verdict(Name, Version)
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, v); err != nil {
			s.logger.Warn("semantic cache write failed", "error", err)
		}
	}
	return v
}

// complete calls the judge, turning a panic into an error so it goes
// through the failure policy like any other judge failure.
func (s *Source) complete(ctx context.Context, p Prompt) (raw string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("judge panicked: %v", r)
		}
	}()
	return s.judge.Complete(ctx, p)
}

func (s *Source) fail(err error) signal.Verdict {
	s.RecordError()
	s.metrics.ObserveError(Name)
	s.logger.Warn("semantic judge failed", "error", err, "policy", s.policy.Name())
	return s.policy.Apply(Name, Version, err)
}
