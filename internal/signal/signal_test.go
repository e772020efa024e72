package signal

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestCategoryGate_Total(t *testing.T) {
	for cat := range categoryGates {
		if cat == CategoryNone {
			if cat.Gate() != GateNone {
				t.Errorf("none should map to no gate, got %q", cat.Gate())
			}
			continue
		}
		found := false
		for _, g := range Gates {
			if cat.Gate() == g {
				found = true
			}
		}
		if !found {
			t.Errorf("category %q maps to %q, not one of the four gates", cat, cat.Gate())
		}
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Weapons ")
	if err != nil || c != CategoryWeapons {
		t.Fatalf("expected weapons, got %q (%v)", c, err)
	}
	if _, err := ParseCategory("telepathy"); err == nil {
		t.Error("expected error for unknown category")
	}
	if _, err := ParseCategory("none"); err == nil {
		t.Error("none is not a configurable category")
	}
}

func TestCategoryForGate(t *testing.T) {
	tests := map[Gate]Category{
		GateTruth:   CategoryTruth,
		GateHarm:    CategoryHarm,
		GateScope:   CategoryScope,
		GatePurpose: CategoryPurpose,
		GateNone:    CategoryNone,
	}
	for g, want := range tests {
		if got := CategoryForGate(g); got != want {
			t.Errorf("CategoryForGate(%q) = %q, want %q", g, got, want)
		}
		if g != GateNone && want.Gate() != g {
			t.Errorf("round trip failed for %q", g)
		}
	}
}

func TestRequestValidate(t *testing.T) {
	ok := Request{Text: "hi", PriorTurns: []Turn{{Role: RoleUser, Content: "a"}, {Role: RoleAssistant, Content: "b"}}}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := Request{Text: "hi", PriorTurns: []Turn{{Role: "moderator", Content: "a"}}}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown role")
	}

	invalid := Request{Text: string([]byte{0xff, 0xfe})}
	if err := invalid.Validate(); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestPositive_ClampsConfidence(t *testing.T) {
	for _, c := range []float64{-1, 0, 0.4, 1, 7, math.NaN()} {
		v := Positive("s", "1.0.0", CategoryFraud, c, "d", "", nil)
		if v.Confidence < 0 || v.Confidence > 1 {
			t.Errorf("confidence %v escaped [0,1]: %v", c, v.Confidence)
		}
	}
}

func TestNegative(t *testing.T) {
	v := Negative("s", "1.0.0", "nothing")
	if v.Detected || v.Confidence != 0 || v.Category != CategoryNone || v.Gate() != GateNone {
		t.Errorf("unexpected negative verdict: %+v", v)
	}
}

func TestSourceConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SourceConfig
		wantErr bool
	}{
		{"default", DefaultSourceConfig(), false},
		{"threshold above one", SourceConfig{ConfidenceThreshold: 1.5}, true},
		{"negative threshold", SourceConfig{ConfidenceThreshold: -0.1}, true},
		{"unknown category", SourceConfig{Categories: []Category{"nope"}}, true},
		{"known category", SourceConfig{Categories: []Category{CategoryFraud}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate("test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSourceConfig_Allows(t *testing.T) {
	all := SourceConfig{}
	if !all.Allows(CategoryFraud) {
		t.Error("empty filter should allow everything")
	}
	only := SourceConfig{Categories: []Category{CategoryWeapons}}
	if only.Allows(CategoryFraud) || !only.Allows(CategoryWeapons) {
		t.Error("filter did not restrict categories")
	}
}

func TestEffectiveRules_OverrideWins(t *testing.T) {
	cfg := SourceConfig{Rules: map[string]any{"ceiling": 0.9, "keep": true}}
	req := Request{RuleOverrides: map[string]map[string]any{
		"harm_pattern": {"ceiling": 0.8},
	}}

	merged := cfg.EffectiveRules(req, "harm_pattern")
	if RuleFloat(merged, "ceiling", 0) != 0.8 {
		t.Errorf("override should win, got %v", merged["ceiling"])
	}
	if !RuleBool(merged, "keep", false) {
		t.Error("configured rule lost during merge")
	}
	if RuleFloat(cfg.Rules, "ceiling", 0) != 0.9 {
		t.Error("merge mutated configured rules")
	}

	other := cfg.EffectiveRules(req, "escalation")
	if RuleFloat(other, "ceiling", 0) != 0.9 {
		t.Error("override leaked into another source")
	}
}

func TestRuleHelpers(t *testing.T) {
	rules := map[string]any{
		"i":    3,
		"f":    0.25,
		"s":    "0.5",
		"list": []any{"a", 1, "b"},
		"b":    "true",
	}
	if RuleInt(rules, "i", 0) != 3 {
		t.Error("RuleInt")
	}
	if RuleFloat(rules, "f", 0) != 0.25 || RuleFloat(rules, "s", 0) != 0.5 {
		t.Error("RuleFloat")
	}
	if RuleFloat(rules, "missing", 0.7) != 0.7 {
		t.Error("RuleFloat default")
	}
	if got := RuleStrings(rules, "list"); len(got) != 2 || got[1] != "b" {
		t.Errorf("RuleStrings = %v", got)
	}
	if !RuleBool(rules, "b", false) {
		t.Error("RuleBool")
	}
}

type countingSource struct {
	Counters
	calls int
}

func (s *countingSource) Name() string { return "counting" }
func (s *countingSource) Version() string { return "0.0.1" }
func (s *countingSource) Initialize(ctx context.Context) error { return nil }
func (s *countingSource) Shutdown(ctx context.Context) error { return nil }
func (s *countingSource) Evaluate(ctx context.Context, req Request) Verdict {
	s.calls++
	v := Negative(s.Name(), s.Version(), req.Text)
	s.Observe(v)
	return v
}

func TestEvaluateBatch_SequentialFallback(t *testing.T) {
	src := &countingSource{}
	reqs := []Request{{Text: "a"}, {Text: "b"}, {Text: "c"}}
	out := EvaluateBatch(context.Background(), src, reqs)
	if len(out) != 3 || src.calls != 3 {
		t.Fatalf("expected 3 evaluations, got %d verdicts / %d calls", len(out), src.calls)
	}
	for i, v := range out {
		if v.Description != reqs[i].Text {
			t.Errorf("order not preserved at %d: %q", i, v.Description)
		}
	}
	if src.Stats().Calls != 3 {
		t.Errorf("expected 3 calls recorded, got %d", src.Stats().Calls)
	}
	src.ResetStats()
	if src.Stats().Calls != 0 {
		t.Error("ResetStats did not clear counters")
	}
}

func TestInitOnce_RetriesAfterFailure(t *testing.T) {
	var once InitOnce
	runs := 0
	fail := errors.New("boom")

	if err := once.Do(func() error { runs++; return fail }); err != fail {
		t.Fatalf("expected failure, got %v", err)
	}
	if err := once.Do(func() error { runs++; return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = once.Do(func() error { runs++; return nil })
	if runs != 2 {
		t.Errorf("expected 2 runs, got %d", runs)
	}
}

func TestExcerpt(t *testing.T) {
	if Excerpt("  short  ", 10) != "short" {
		t.Error("short strings are returned trimmed")
	}
	if got := Excerpt("abcdefghij", 4); got != "abcd..." {
		t.Errorf("Excerpt = %q", got)
	}
}
