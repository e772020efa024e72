package pattern

import (
	"context"
	"log/slog"
	"math"

	"github.com/gzhole/textgate/internal/normalize"
	"github.com/gzhole/textgate/internal/signal"
)

// Rule override keys and their defaults.
const (
	RuleMatchIncrement  = "match_increment"
	RuleComplianceBoost = "compliance_boost"
	RuleCeiling         = "ceiling"
	RuleDisabledRules   = "disabled_rules"

	DefaultMatchIncrement  = 0.05
	DefaultComplianceBoost = 0.10
	DefaultCeiling         = 0.95

	evidenceLimit = 160
)

// Source is a stateless pattern matcher over one compiled table. It is safe
// for concurrent use.
type Source struct {
	signal.Counters

	name       string
	version    string
	rules      []compiledRule
	compliance []string
	cfg        signal.SourceConfig
	logger     *slog.Logger
	once       signal.InitOnce
}

// New compiles the table and returns a source. A bad regex, out-of-range base
// confidence or unknown category is rejected here.
func New(t Table, cfg signal.SourceConfig, logger *slog.Logger) (*Source, error) {
	if err := cfg.Validate(t.Name); err != nil {
		return nil, err
	}
	rules, compliance, err := compile(t)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	version := t.Version
	if version == "" {
		version = "1.0.0"
	}
	return &Source{
		name:       t.Name,
		version:    version,
		rules:      rules,
		compliance: compliance,
		cfg:        cfg,
		logger:     logger.With("source", t.Name),
	}, nil
}

func (s *Source) Name() string    { return s.name }
func (s *Source) Version() string { return s.version }

// Initialize is a no-op; tables are compiled in New.
func (s *Source) Initialize(ctx context.Context) error {
	return s.once.Do(func() error {
		s.logger.Debug("pattern source ready", "rules", len(s.rules))
		return nil
	})
}

func (s *Source) Shutdown(ctx context.Context) error {
	s.once.Reset()
	return nil
}

// Evaluate scans the folded text once per rule and builds a verdict.
func (s *Source) Evaluate(ctx context.Context, req signal.Request) signal.Verdict {
	v := s.evaluate(req)
	s.Observe(v)
	return v
}

type match struct {
	rule     compiledRule
	evidence string
}

func (s *Source) evaluate(req signal.Request) signal.Verdict {
	if req.Blank() {
		return signal.Negative(s.name, s.version, "empty text")
	}

	rules := s.cfg.EffectiveRules(req, s.name)
	increment := signal.RuleFloat(rules, RuleMatchIncrement, DefaultMatchIncrement)
	boost := signal.RuleFloat(rules, RuleComplianceBoost, DefaultComplianceBoost)
	ceiling := signal.RuleFloat(rules, RuleCeiling, DefaultCeiling)
	disabled := make(map[string]bool)
	for _, id := range signal.RuleStrings(rules, RuleDisabledRules) {
		disabled[id] = true
	}

	folded := normalize.Fold(req.Text)

	var matches []match
	var categories []signal.Category
	seenCategory := make(map[signal.Category]bool)
	for _, r := range s.rules {
		if disabled[r.ID] || !s.cfg.Allows(r.Category) {
			continue
		}
		loc, ok := r.firstMatch(folded.Text)
		if !ok {
			continue
		}
		matches = append(matches, match{
			rule:     r,
			evidence: signal.Excerpt(folded.Span(req.Text, loc[0], loc[1]), evidenceLimit),
		})
		if !seenCategory[r.Category] {
			seenCategory[r.Category] = true
			categories = append(categories, r.Category)
		}
	}

	indicator, complied := containsAny(folded.Text, s.compliance)

	if len(matches) == 0 {
		v := signal.Negative(s.name, s.version, "no pattern matched")
		if complied {
			// Compliance language alone is not a detection.
			v.Metadata = map[string]any{"compliance_indicator": indicator}
		}
		return v
	}

	primary := matches[0]
	confidence := primary.rule.Base + increment*float64(len(categories))
	if complied {
		confidence += boost
	}
	confidence = math.Min(confidence, ceiling)

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.rule.ID
	}
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}

	meta := map[string]any{
		"categories": names,
		"rule_ids":   ids,
	}
	if complied {
		meta["compliance_indicator"] = indicator
	}
	if folded.Obfuscated() {
		meta["invisible_chars"] = folded.Hidden
		meta["homoglyphs"] = folded.Homoglyphs
	}

	return signal.Positive(s.name, s.version, primary.rule.Category, confidence,
		primary.rule.Description, primary.evidence, meta)
}
