// Package aggregator runs the configured signal sources in pipeline order and
// reduces their verdicts to one. It is the only type callers construct.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gzhole/textgate/internal/config"
	"github.com/gzhole/textgate/internal/escalation"
	"github.com/gzhole/textgate/internal/metrics"
	"github.com/gzhole/textgate/internal/pattern"
	"github.com/gzhole/textgate/internal/semantic"
	"github.com/gzhole/textgate/internal/signal"
)

const (
	Name    = "aggregator"
	Version = "1.0.0"
)

// stage is one enabled source and the config the aggregator filters it with.
type stage struct {
	src signal.Source
	cfg signal.SourceConfig
}

// Aggregator is safe for concurrent use once constructed.
type Aggregator struct {
	stages   []stage
	logger   *slog.Logger
	metrics  *metrics.Recorder
	registry *prometheus.Registry
}

type options struct {
	logger  *slog.Logger
	metrics *metrics.Recorder
	judge   semantic.Judge
	cache   semantic.Cache
	extra   []stage
}

// Option customizes New.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records evaluations on r instead of a private registry.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}

// WithJudge replaces the semantic source's provider client.
func WithJudge(j semantic.Judge) Option {
	return func(o *options) { o.judge = j }
}

// WithCache replaces the semantic source's configured cache backend.
func WithCache(c semantic.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithSource appends a source after the configured pipeline. It is filtered
// with cfg like any built-in source.
func WithSource(src signal.Source, cfg signal.SourceConfig) Option {
	return func(o *options) { o.extra = append(o.extra, stage{src: src, cfg: cfg}) }
}

// New validates cfg and builds every enabled source in pipeline order.
func New(cfg config.Config, opts ...Option) (*Aggregator, error) {
	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	a := &Aggregator{logger: o.logger, metrics: o.metrics}
	if a.metrics == nil && cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.metrics = metrics.NewRecorder(a.registry)
	}

	for _, name := range cfg.Pipeline {
		st, ok, err := a.build(&cfg, name, o)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", name, err)
		}
		if !ok {
			a.logger.Debug("source disabled", "source", name)
			continue
		}
		a.stages = append(a.stages, st)
	}
	for _, st := range o.extra {
		if err := st.cfg.Validate(st.src.Name()); err != nil {
			return nil, err
		}
		if st.cfg.Enabled {
			a.stages = append(a.stages, st)
		}
	}
	return a, nil
}

func (a *Aggregator) build(cfg *config.Config, name string, o options) (stage, bool, error) {
	switch name {
	case escalation.Name:
		ec, err := cfg.EscalationSettings()
		if err != nil || !ec.Source.Enabled {
			return stage{}, false, err
		}
		src, err := escalation.New(ec, a.logger)
		if err != nil {
			return stage{}, false, err
		}
		return stage{src: src, cfg: ec.Source}, true, nil

	case semantic.Name:
		if !cfg.Semantic.Enabled {
			return stage{}, false, nil
		}
		sc, err := cfg.SemanticSettings()
		if err != nil {
			return stage{}, false, err
		}
		semOpts := []semantic.Option{semantic.WithLogger(a.logger), semantic.WithMetrics(a.metrics)}
		if o.judge != nil {
			semOpts = append(semOpts, semantic.WithJudge(o.judge))
		}
		cache := o.cache
		if cache == nil && sc.CacheEnabled && cfg.Semantic.CacheBackend == config.CacheRedis {
			rc, err := semantic.DialRedis(context.Background(), cfg.Semantic.RedisAddr, sc.CacheTTL)
			if err != nil {
				return stage{}, false, err
			}
			cache = rc
		}
		if cache != nil && sc.CacheEnabled {
			semOpts = append(semOpts, semantic.WithCache(cache))
		}
		src, err := semantic.New(sc, semOpts...)
		if err != nil {
			return stage{}, false, err
		}
		return stage{src: src, cfg: sc.Source}, true, nil
	}

	table, ok := pattern.Builtin(name)
	if !ok {
		return stage{}, false, signal.NewConfigError(Name, "pipeline", "unknown source %q", name)
	}
	pc, _ := cfg.Sources.Get(name)
	sc, err := pc.Signal(name)
	if err != nil || !sc.Enabled {
		return stage{}, false, err
	}
	src, err := pattern.New(table, sc, a.logger)
	if err != nil {
		return stage{}, false, err
	}
	return stage{src: src, cfg: sc}, true, nil
}

// SourceNames lists the enabled sources in evaluation order.
func (a *Aggregator) SourceNames() []string {
	names := make([]string, len(a.stages))
	for i, st := range a.stages {
		names[i] = st.src.Name()
	}
	return names
}

// Gatherer exposes the private metrics registry created when metrics are
// enabled in config. It is nil otherwise.
func (a *Aggregator) Gatherer() prometheus.Gatherer {
	if a.registry == nil {
		return nil
	}
	return a.registry
}

// Initialize initializes every source, stopping at the first failure.
func (a *Aggregator) Initialize(ctx context.Context) error {
	for _, st := range a.stages {
		if err := st.src.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize %s: %w", st.src.Name(), err)
		}
	}
	return nil
}

// Shutdown shuts down every source and joins their errors.
func (a *Aggregator) Shutdown(ctx context.Context) error {
	var errs []error
	for _, st := range a.stages {
		if err := st.src.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", st.src.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns per-source counters keyed by source name.
func (a *Aggregator) Stats() map[string]signal.Stats {
	out := make(map[string]signal.Stats, len(a.stages))
	for _, st := range a.stages {
		out[st.src.Name()] = st.src.Stats()
	}
	return out
}

func (a *Aggregator) ResetStats() {
	for _, st := range a.stages {
		st.src.ResetStats()
	}
}

// ValidateText is the primary call shape: text plus optional history,
// caller context and per-source rule overrides.
func (a *Aggregator) ValidateText(ctx context.Context, text string, priorTurns []signal.Turn, callerContext map[string]string, overrides map[string]map[string]any) signal.Verdict {
	return a.Validate(ctx, signal.Request{
		Text:          text,
		PriorTurns:    priorTurns,
		Context:       callerContext,
		RuleOverrides: overrides,
	})
}

// Validate runs every enabled source and returns the strongest positive
// verdict, or a negative one. It never returns an error: malformed requests
// yield a negative verdict naming the problem.
func (a *Aggregator) Validate(ctx context.Context, req signal.Request) signal.Verdict {
	log := a.logger.With("request_id", uuid.NewString())
	if v, done := a.precheck(req, log); done {
		return v
	}

	cands := make([]candidate, 0, len(a.stages))
	for i, st := range a.stages {
		start := time.Now()
		v := a.evaluate(ctx, st, req, log)
		a.metrics.ObserveEvaluation(st.src.Name(), v, time.Since(start))
		if c, ok := a.accept(i, st, v, log); ok {
			cands = append(cands, c)
		}
	}
	return a.finish(cands, log)
}

// ValidateBatch validates each request and returns verdicts in input order.
// Each source sees the whole batch at once, so sources with a batch path
// (the semantic judge) can work in parallel; results equal calling Validate
// per request.
func (a *Aggregator) ValidateBatch(ctx context.Context, reqs []signal.Request) []signal.Verdict {
	out := make([]signal.Verdict, len(reqs))
	logs := make([]*slog.Logger, len(reqs))
	var live []int
	for i, req := range reqs {
		logs[i] = a.logger.With("request_id", uuid.NewString(), "batch_index", i)
		if v, done := a.precheck(req, logs[i]); done {
			out[i] = v
			continue
		}
		live = append(live, i)
	}
	if len(live) == 0 {
		return out
	}

	batch := make([]signal.Request, len(live))
	batchLogs := make([]*slog.Logger, len(live))
	for j, i := range live {
		batch[j] = reqs[i]
		batchLogs[j] = logs[i]
	}

	cands := make([][]candidate, len(live))
	for si, st := range a.stages {
		start := time.Now()
		verdicts := a.evaluateBatch(ctx, st, batch, batchLogs)
		per := time.Since(start) / time.Duration(len(batch))
		for j, v := range verdicts {
			a.metrics.ObserveEvaluation(st.src.Name(), v, per)
			if c, ok := a.accept(si, st, v, batchLogs[j]); ok {
				cands[j] = append(cands[j], c)
			}
		}
	}
	for j, i := range live {
		out[i] = a.finish(cands[j], batchLogs[j])
	}
	return out
}

func (a *Aggregator) precheck(req signal.Request, log *slog.Logger) (signal.Verdict, bool) {
	if err := req.Validate(); err != nil {
		log.Debug("invalid request", "error", err)
		return signal.Negative(Name, Version, "invalid request: "+err.Error()), true
	}
	if req.Blank() {
		log.Debug("empty text")
		return signal.Negative(Name, Version, "empty text"), true
	}
	return signal.Verdict{}, false
}

// accept applies the source's threshold and category filter.
func (a *Aggregator) accept(order int, st stage, v signal.Verdict, log *slog.Logger) (candidate, bool) {
	if !v.Detected {
		return candidate{}, false
	}
	if v.Confidence < st.cfg.ConfidenceThreshold {
		log.Debug("verdict below threshold", "source", v.Source, "confidence", v.Confidence, "threshold", st.cfg.ConfidenceThreshold)
		return candidate{}, false
	}
	if !st.cfg.Allows(v.Category) {
		log.Debug("verdict category filtered", "source", v.Source, "category", v.Category)
		return candidate{}, false
	}
	return candidate{order: order, verdict: v}, true
}

func (a *Aggregator) finish(cands []candidate, log *slog.Logger) signal.Verdict {
	v, ok := combine(cands)
	if !ok {
		v = signal.Negative(Name, Version, "no violation detected")
	} else {
		log.Info("violation detected",
			"source", v.Source,
			"category", v.Category,
			"gate", v.Gate(),
			"confidence", v.Confidence,
			"evidence", v.Evidence,
		)
	}
	a.metrics.ObserveVerdict(v)
	return v
}

// evaluate shields the pipeline from a misbehaving source.
func (a *Aggregator) evaluate(ctx context.Context, st stage, req signal.Request, log *slog.Logger) (v signal.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("source panicked", "source", st.src.Name(), "panic", fmt.Sprint(r))
			a.metrics.ObserveError(st.src.Name())
			v = signal.Negative(st.src.Name(), st.src.Version(), "source failed")
		}
	}()
	return st.src.Evaluate(ctx, req)
}

func (a *Aggregator) evaluateBatch(ctx context.Context, st stage, reqs []signal.Request, logs []*slog.Logger) []signal.Verdict {
	if _, ok := st.src.(signal.BatchEvaluator); !ok {
		return a.evaluateEach(ctx, st, reqs, logs)
	}

	out, ok := a.tryBatch(ctx, st, reqs)
	if !ok {
		return a.evaluateEach(ctx, st, reqs, logs)
	}
	if len(out) != len(reqs) {
		a.logger.Error("source returned wrong batch size", "source", st.src.Name(), "want", len(reqs), "got", len(out))
		fixed := make([]signal.Verdict, len(reqs))
		for i := range fixed {
			if i < len(out) {
				fixed[i] = out[i]
			} else {
				fixed[i] = signal.Negative(st.src.Name(), st.src.Version(), "source failed")
			}
		}
		out = fixed
	}
	return out
}

func (a *Aggregator) evaluateEach(ctx context.Context, st stage, reqs []signal.Request, logs []*slog.Logger) []signal.Verdict {
	out := make([]signal.Verdict, len(reqs))
	for i, req := range reqs {
		out[i] = a.evaluate(ctx, st, req, logs[i])
	}
	return out
}

// tryBatch reports false when the batch call panicked; the caller then
// evaluates the requests one at a time.
func (a *Aggregator) tryBatch(ctx context.Context, st stage, reqs []signal.Request) (out []signal.Verdict, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("source panicked", "source", st.src.Name(), "batch", len(reqs), "panic", fmt.Sprint(r))
			a.metrics.ObserveError(st.src.Name())
			out, ok = nil, false
		}
	}()
	return signal.EvaluateBatch(ctx, st.src, reqs), true
}
