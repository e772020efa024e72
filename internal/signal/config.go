package signal

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalidConfig is wrapped by every construction-time configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError describes a rejected configuration value.
type ConfigError struct {
	Component string
	Field     string
	Reason    string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Component, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// NewConfigError is a shorthand for building a *ConfigError.
func NewConfigError(component, field, format string, args ...any) error {
	return &ConfigError{Component: component, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// SourceConfig holds the toggles every source shares. It is read-only after
// construction.
type SourceConfig struct {
	Enabled             bool
	ConfidenceThreshold float64
	// Categories restricts which categories the source may report. Empty
	// means all categories.
	Categories []Category
	Rules      map[string]any
}

// DefaultSourceConfig returns an enabled config with a 0.5 threshold.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{Enabled: true, ConfidenceThreshold: 0.5}
}

// Validate rejects out-of-range thresholds and unknown categories.
func (c SourceConfig) Validate(component string) error {
	if math.IsNaN(c.ConfidenceThreshold) || c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return NewConfigError(component, "confidence_threshold", "must be within [0,1], got %v", c.ConfidenceThreshold)
	}
	for _, cat := range c.Categories {
		if !cat.Valid() || cat == CategoryNone {
			return NewConfigError(component, "categories", "unknown category %q", cat)
		}
	}
	return nil
}

// Allows reports whether category passes the category filter.
func (c SourceConfig) Allows(category Category) bool {
	if len(c.Categories) == 0 {
		return true
	}
	for _, allowed := range c.Categories {
		if allowed == category {
			return true
		}
	}
	return false
}

// EffectiveRules merges the call-time overrides for source name over the
// configured rules. Override values win.
func (c SourceConfig) EffectiveRules(req Request, name string) map[string]any {
	return MergeRules(c.Rules, req.RuleOverrides[name])
}

// MergeRules returns a new map with overrides applied over base.
func MergeRules(base, overrides map[string]any) map[string]any {
	if len(overrides) == 0 {
		return base
	}
	out := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// RuleFloat reads a numeric rule. YAML and JSON decoders hand numbers over as
// int, int64, float64 or string depending on the source, so all are accepted.
func RuleFloat(rules map[string]any, key string, def float64) float64 {
	v, ok := rules[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return def
}

// RuleInt reads an integer rule.
func RuleInt(rules map[string]any, key string, def int) int {
	if _, ok := rules[key]; !ok {
		return def
	}
	return int(RuleFloat(rules, key, float64(def)))
}

// RuleBool reads a boolean rule.
func RuleBool(rules map[string]any, key string, def bool) bool {
	switch b := rules[key].(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	return def
}

// RuleStrings reads a list-of-strings rule.
func RuleStrings(rules map[string]any, key string) []string {
	switch l := rules[key].(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{l}
	}
	return nil
}
