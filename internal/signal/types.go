// Package signal defines the contract shared by every signal source and the
// aggregator: the request and verdict shapes, the closed category set with its
// gate mapping, and the Source interface.
package signal

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Gate is one of the four safety dimensions a verdict maps onto.
type Gate string

const (
	GateNone    Gate = ""
	GateTruth   Gate = "truth"
	GateHarm    Gate = "harm"
	GateScope   Gate = "scope"
	GatePurpose Gate = "purpose"
)

// Gates lists the four gates in evaluation order.
var Gates = []Gate{GateTruth, GateHarm, GateScope, GatePurpose}

// Category is the closed set of violation labels a source may emit.
type Category string

const (
	CategoryNone Category = "none"

	// truth
	CategoryDeception      Category = "deception"
	CategoryMisinformation Category = "misinformation"
	CategoryImpersonation  Category = "impersonation"
	CategoryTruth          Category = "truth_violation"

	// harm
	CategoryViolence          Category = "violence"
	CategoryWeapons           Category = "weapons"
	CategoryHazardous         Category = "hazardous_materials"
	CategoryFraud             Category = "fraud"
	CategoryCyberIntrusion    Category = "cyber_intrusion"
	CategoryPhysicalSafety    Category = "physical_safety"
	CategorySelfHarm          Category = "self_harm"
	CategoryEscalation        Category = "escalation"
	CategoryHarm              Category = "harm_violation"
	CategoryValidationFailure Category = "validation_error"

	// scope
	CategoryJailbreak           Category = "jailbreak"
	CategoryInstructionOverride Category = "instruction_override"
	CategoryPromptExtraction    Category = "prompt_extraction"
	CategoryPersonaOverride     Category = "persona_override"
	CategoryScope               Category = "scope_violation"

	// purpose
	CategorySelfPreservation  Category = "self_preservation"
	CategoryPurposelessAction Category = "purposeless_action"
	CategoryPurpose           Category = "purpose_violation"
)

var categoryGates = map[Category]Gate{
	CategoryNone: GateNone,

	CategoryDeception:      GateTruth,
	CategoryMisinformation: GateTruth,
	CategoryImpersonation:  GateTruth,
	CategoryTruth:          GateTruth,

	CategoryViolence:          GateHarm,
	CategoryWeapons:           GateHarm,
	CategoryHazardous:         GateHarm,
	CategoryFraud:             GateHarm,
	CategoryCyberIntrusion:    GateHarm,
	CategoryPhysicalSafety:    GateHarm,
	CategorySelfHarm:          GateHarm,
	CategoryEscalation:        GateHarm,
	CategoryHarm:              GateHarm,
	CategoryValidationFailure: GateHarm,

	CategoryJailbreak:           GateScope,
	CategoryInstructionOverride: GateScope,
	CategoryPromptExtraction:    GateScope,
	CategoryPersonaOverride:     GateScope,
	CategoryScope:               GateScope,

	CategorySelfPreservation:  GatePurpose,
	CategoryPurposelessAction: GatePurpose,
	CategoryPurpose:           GatePurpose,
}

// Gate returns the gate this category belongs to. Every enumerated category
// has one; CategoryNone and unknown values map to GateNone.
func (c Category) Gate() Gate {
	return categoryGates[c]
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	_, ok := categoryGates[c]
	return ok
}

// ParseCategory resolves a configured category name.
func ParseCategory(name string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(name)))
	if !c.Valid() || c == CategoryNone {
		return "", fmt.Errorf("unknown category %q", name)
	}
	return c, nil
}

// CategoryForGate returns the generic category used when only the violated
// gate is known (e.g. from the semantic judge).
func CategoryForGate(g Gate) Category {
	switch g {
	case GateTruth:
		return CategoryTruth
	case GateHarm:
		return CategoryHarm
	case GateScope:
		return CategoryScope
	case GatePurpose:
		return CategoryPurpose
	default:
		return CategoryNone
	}
}

// Role tags who authored a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one prior message in a conversation.
type Turn struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Request is the input to every source. Nothing in the engine writes to a
// Request after it is constructed.
type Request struct {
	Text       string
	PriorTurns []Turn
	Context    map[string]string

	// RuleOverrides are keyed by source name and merged over that source's
	// configured rules for this call only.
	RuleOverrides map[string]map[string]any
}

// Validate reports structural problems with the request. An invalid request
// is answered with a negative verdict, never an error.
func (r Request) Validate() error {
	if !utf8.ValidString(r.Text) {
		return fmt.Errorf("text is not valid UTF-8")
	}
	for i, t := range r.PriorTurns {
		switch t.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return fmt.Errorf("prior turn %d has unknown role %q", i, t.Role)
		}
	}
	return nil
}

// Blank reports whether the request text is empty or whitespace only.
func (r Request) Blank() bool {
	return strings.TrimSpace(r.Text) == ""
}

// Verdict is the unit of output from a source or the aggregator. Verdicts are
// built fresh per call and not modified afterwards.
type Verdict struct {
	Detected    bool           `json:"detected"`
	Source      string         `json:"source"`
	Version     string         `json:"version"`
	Confidence  float64        `json:"confidence"`
	Category    Category       `json:"category"`
	Description string         `json:"description"`
	Evidence    string         `json:"evidence,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Gate returns the gate the verdict's category maps onto.
func (v Verdict) Gate() Gate {
	return v.Category.Gate()
}

// Negative builds a "nothing detected" verdict with zero confidence.
func Negative(source, version, description string) Verdict {
	return Verdict{
		Source:      source,
		Version:     version,
		Category:    CategoryNone,
		Description: description,
	}
}

// Positive builds a detection verdict. Confidence is clamped to [0,1].
func Positive(source, version string, category Category, confidence float64, description, evidence string, metadata map[string]any) Verdict {
	return Verdict{
		Detected:    true,
		Source:      source,
		Version:     version,
		Confidence:  Clamp01(confidence),
		Category:    category,
		Description: description,
		Evidence:    evidence,
		Metadata:    metadata,
	}
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Excerpt trims s to at most limit runes around a match for use as evidence.
func Excerpt(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
