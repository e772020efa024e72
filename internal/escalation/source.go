package escalation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gzhole/textgate/internal/signal"
)

// Version is bumped when scoring behavior changes.
const Version = "1.2.0"

// Source scores a conversation window for escalation. It holds no per-call
// state and is safe for concurrent use; the caller re-supplies history on
// every call.
type Source struct {
	signal.Counters

	cfg    Config
	lex    *lexicon
	logger *slog.Logger
	once   signal.InitOnce
}

// New validates cfg and builds the source. Unbalanced weights are accepted
// with a warning.
func New(cfg Config, logger *slog.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("source", Name)
	if !cfg.WeightsBalanced() {
		logger.Warn("escalation weights do not sum to 1.0",
			"sum", cfg.Weights.Sum(),
			"topic", cfg.Weights.Topic,
			"intensity", cfg.Weights.Intensity,
			"reference", cfg.Weights.Reference,
			"persistence", cfg.Weights.Persistence)
	}
	return &Source{cfg: cfg, lex: newLexicon(), logger: logger}, nil
}

func (s *Source) Name() string    { return Name }
func (s *Source) Version() string { return Version }

func (s *Source) Initialize(ctx context.Context) error {
	return s.once.Do(func() error { return nil })
}

func (s *Source) Shutdown(ctx context.Context) error {
	s.once.Reset()
	return nil
}

// Evaluate scores the request's window and fires when the combined score
// reaches the threshold.
func (s *Source) Evaluate(ctx context.Context, req signal.Request) signal.Verdict {
	v := s.evaluate(req)
	s.Observe(v)
	return v
}

// Score exposes the raw breakdown for a request without building a verdict.
func (s *Source) Score(req signal.Request) Result {
	cfg := s.cfg.withRules(s.cfg.Source.EffectiveRules(req, Name))
	return s.score(req, cfg)
}

func (s *Source) score(req signal.Request, cfg Config) Result {
	full := buildWindow(s.lex, req)
	w := full.recent(s.lex, cfg.WindowSize)
	if len(w.users) >= cfg.MinTurns {
		return scoreMulti(s.lex, w, full, cfg)
	}
	return scoreSingle(s.lex, w, cfg)
}

func (s *Source) evaluate(req signal.Request) signal.Verdict {
	if req.Blank() {
		return signal.Negative(Name, Version, "empty text")
	}

	cfg := s.cfg.withRules(s.cfg.Source.EffectiveRules(req, Name))
	res := s.score(req, cfg)
	meta := metadata(res, cfg)

	if res.Score < cfg.Threshold {
		v := signal.Negative(Name, Version, fmt.Sprintf("no escalation (%s score %.2f below %.2f)", res.Mode, res.Score, cfg.Threshold))
		v.Metadata = meta
		return v
	}
	if !res.Grounded {
		v := signal.Negative(Name, Version, fmt.Sprintf("no escalation (%s score %.2f without harmful vocabulary)", res.Mode, res.Score))
		v.Metadata = meta
		return v
	}

	s.logger.Debug("escalation detected", "mode", res.Mode, "score", res.Score, "user_turns", res.UserTurns)
	return signal.Positive(Name, Version, signal.CategoryEscalation, res.Score,
		describe(res), signal.Excerpt(req.Text, 160), meta)
}

func describe(res Result) string {
	if res.Mode == ModeSingleTurn {
		return "Single message references earlier output at elevated intensity"
	}
	if res.Refusal && res.Persistence > 0 {
		return fmt.Sprintf("Conversation escalates across %d user turns and persists after a refusal", res.UserTurns)
	}
	return fmt.Sprintf("Conversation escalates across %d user turns", res.UserTurns)
}

func metadata(res Result, cfg Config) map[string]any {
	return map[string]any{
		"mode":             string(res.Mode),
		"topic_drift":      res.Topic,
		"intensity":        res.Intensity,
		"reference":        res.Reference,
		"persistence":      res.Persistence,
		"tiers":            res.Tiers,
		"user_turns":       res.UserTurns,
		"refusal_detected": res.Refusal,
		"grounded":         res.Grounded,
		"base":             res.Base,
		"boost":            res.Boost,
		"score":            res.Score,
		"threshold":        cfg.Threshold,
		"min_turns":        cfg.MinTurns,
	}
}
