// Package pattern implements the table-driven pattern signal sources. Each
// source scans folded text against an ordered table of category rules and
// reports the first matching category with a confidence derived from how many
// categories matched and whether compliance language is present.
package pattern

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gzhole/textgate/internal/signal"
)

// Rule is one category entry in a pattern table.
type Rule struct {
	ID          string
	Category    signal.Category
	Base        float64
	Description string
	// Patterns are matched against lower-cased, whitespace-collapsed text.
	Patterns []string
}

// Table is the full definition of a pattern source.
type Table struct {
	Name    string
	Version string
	Rules   []Rule
	// Compliance lists substrings suggesting the text already complies with a
	// harmful ask. They only ever boost a structural match.
	Compliance []string
}

type compiledRule struct {
	Rule
	patterns []*regexp.Regexp
}

// compile validates and compiles a table. Errors name the offending rule.
func compile(t Table) ([]compiledRule, []string, error) {
	if t.Name == "" {
		return nil, nil, signal.NewConfigError("pattern", "name", "table has no name")
	}
	if len(t.Rules) == 0 {
		return nil, nil, signal.NewConfigError(t.Name, "rules", "table has no rules")
	}

	seen := make(map[string]bool, len(t.Rules))
	rules := make([]compiledRule, 0, len(t.Rules))
	for _, r := range t.Rules {
		if r.ID == "" {
			return nil, nil, signal.NewConfigError(t.Name, "rules", "rule without id")
		}
		if seen[r.ID] {
			return nil, nil, signal.NewConfigError(t.Name, "rules", "duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true

		if !r.Category.Valid() || r.Category == signal.CategoryNone {
			return nil, nil, signal.NewConfigError(t.Name, r.ID, "unknown category %q", r.Category)
		}
		if r.Base < 0 || r.Base > 1 {
			return nil, nil, signal.NewConfigError(t.Name, r.ID, "base confidence must be within [0,1], got %v", r.Base)
		}
		if len(r.Patterns) == 0 {
			return nil, nil, signal.NewConfigError(t.Name, r.ID, "rule has no patterns")
		}

		cr := compiledRule{Rule: r, patterns: make([]*regexp.Regexp, 0, len(r.Patterns))}
		for _, p := range r.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: rule %s: %w", t.Name, r.ID, &signal.ConfigError{
					Component: t.Name,
					Field:     r.ID,
					Reason:    err.Error(),
				})
			}
			cr.patterns = append(cr.patterns, re)
		}
		rules = append(rules, cr)
	}

	compliance := make([]string, 0, len(t.Compliance))
	for _, c := range t.Compliance {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			compliance = append(compliance, c)
		}
	}
	return rules, compliance, nil
}

// firstMatch returns the location of the first pattern that matches s.
func (r compiledRule) firstMatch(s string) ([]int, bool) {
	for _, re := range r.patterns {
		if loc := re.FindStringIndex(s); loc != nil {
			return loc, true
		}
	}
	return nil, false
}

func containsAny(s string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return p, true
		}
	}
	return "", false
}
