package semantic

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"github.com/gzhole/textgate/internal/signal"
)

// ErrUnparsable is wrapped by every judge-response parsing failure.
var ErrUnparsable = errors.New("unparsable judge response")

const judgementSchema = `{
  "type": "object",
  "required": ["truth_passes", "harm_passes", "scope_passes", "purpose_passes", "risk_level"],
  "properties": {
    "truth_passes":   {"type": "boolean"},
    "harm_passes":    {"type": "boolean"},
    "scope_passes":   {"type": "boolean"},
    "purpose_passes": {"type": "boolean"},
    "violated_gate":  {"type": ["string", "null"]},
    "reasoning":      {"type": "string"},
    "risk_level":     {"type": "string", "enum": ["none", "low", "medium", "high", "critical"]}
  }
}`

// Risk levels reported by the judge.
const (
	RiskNone     = "none"
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// RiskConfidence maps a risk level to a verdict confidence.
func RiskConfidence(level string) float64 {
	switch strings.ToLower(level) {
	case RiskCritical:
		return 0.95
	case RiskHigh:
		return 0.85
	case RiskMedium:
		return 0.70
	default:
		return 0.55
	}
}

// Judgement is the decoded gate-by-gate answer from the judge.
type Judgement struct {
	TruthPasses   bool    `json:"truth_passes"`
	HarmPasses    bool    `json:"harm_passes"`
	ScopePasses   bool    `json:"scope_passes"`
	PurposePasses bool    `json:"purpose_passes"`
	ViolatedGate  *string `json:"violated_gate"`
	Reasoning     string  `json:"reasoning"`
	RiskLevel     string  `json:"risk_level"`
}

// Passed reports whether every gate passed.
func (j Judgement) Passed() bool {
	return j.TruthPasses && j.HarmPasses && j.ScopePasses && j.PurposePasses
}

// Gate returns the violated gate: the declared one when it names a failed
// gate, else the first failed gate in order, else GateNone.
func (j Judgement) Gate() signal.Gate {
	failed := map[signal.Gate]bool{
		signal.GateTruth:   !j.TruthPasses,
		signal.GateHarm:    !j.HarmPasses,
		signal.GateScope:   !j.ScopePasses,
		signal.GatePurpose: !j.PurposePasses,
	}
	if j.ViolatedGate != nil {
		if g := signal.Gate(strings.ToLower(strings.TrimSpace(*j.ViolatedGate))); failed[g] {
			return g
		}
	}
	for _, g := range signal.Gates {
		if failed[g] {
			return g
		}
	}
	return signal.GateNone
}

// Verdict converts the judgement to a verdict for the named source.
func (j Judgement) Verdict(source, version string) signal.Verdict {
	meta := map[string]any{
		"truth_passes":   j.TruthPasses,
		"harm_passes":    j.HarmPasses,
		"scope_passes":   j.ScopePasses,
		"purpose_passes": j.PurposePasses,
		"risk_level":     j.RiskLevel,
		"reasoning":      j.Reasoning,
	}
	if j.Passed() {
		v := signal.Negative(source, version, "judge passed all gates")
		v.Metadata = meta
		return v
	}
	gate := j.Gate()
	meta["gate"] = string(gate)
	desc := fmt.Sprintf("judge reports %s gate violation", gate)
	if j.Reasoning != "" {
		desc += ": " + j.Reasoning
	}
	return signal.Positive(source, version, signal.CategoryForGate(gate), RiskConfidence(j.RiskLevel), desc, "", meta)
}

// Parser validates judge replies against the judgement schema.
type Parser struct {
	schema *jsonschema.Schema
}

// NewParser compiles the judgement schema.
func NewParser() (*Parser, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(judgementSchema))
	if err != nil {
		return nil, fmt.Errorf("compile judgement schema: %w", err)
	}
	return &Parser{schema: schema}, nil
}

// Parse extracts the JSON object from raw (fenced or bare), validates it and
// decodes it.
func (p *Parser) Parse(raw string) (Judgement, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return Judgement{}, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	result := p.schema.ValidateJSON([]byte(payload))
	if !result.IsValid() {
		return Judgement{}, fmt.Errorf("%w: schema validation failed: %v", ErrUnparsable, result.Errors)
	}
	var j Judgement
	if err := json.Unmarshal([]byte(payload), &j); err != nil {
		return Judgement{}, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	return j, nil
}

// codeBlockPattern matches markdown code blocks with an optional language tag.
var codeBlockPattern = regexp.MustCompile("(?s)```(\\w*)\\s*\\n(.+?)\\n?```")

// extractJSON finds the judgement object in a model reply. Fenced blocks
// tagged json (or untagged) win over bare objects.
func extractJSON(raw string) (string, error) {
	for _, m := range codeBlockPattern.FindAllStringSubmatch(raw, -1) {
		lang := strings.ToLower(m[1])
		content := strings.TrimSpace(m[2])
		if lang != "" && lang != "json" {
			continue
		}
		if strings.HasPrefix(content, "{") && json.Valid([]byte(content)) {
			return content, nil
		}
	}

	start := strings.Index(raw, "{")
	if start < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}
	if obj := matchingBrace(raw[start:]); obj != "" && json.Valid([]byte(obj)) {
		return obj, nil
	}
	return "", fmt.Errorf("no valid JSON object in response")
}

// matchingBrace returns the prefix of s up to the brace closing s[0],
// skipping braces inside strings.
func matchingBrace(s string) string {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
