package semantic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhole/textgate/internal/signal"
)

const passingReply = `{"truth_passes": true, "harm_passes": true, "scope_passes": true, "purpose_passes": true,
 "violated_gate": "none", "reasoning": "benign", "risk_level": "low"}`

const harmReply = `{"truth_passes": true, "harm_passes": false, "scope_passes": true, "purpose_passes": true,
 "violated_gate": "harm", "reasoning": "explains weapon assembly", "risk_level": "high"}`

func TestParser_Formats(t *testing.T) {
	p, err := NewParser()
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
	}{
		{"bare", harmReply},
		{"fenced json", "Here is my assessment:\n```json\n" + harmReply + "\n```\n"},
		{"fenced untagged", "```\n" + harmReply + "\n```"},
		{"prose around object", "Sure. " + harmReply + " Let me know if you need more."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := p.Parse(tt.raw)
			require.NoError(t, err)
			assert.False(t, j.HarmPasses)
			assert.Equal(t, signal.GateHarm, j.Gate())
			assert.Equal(t, "high", j.RiskLevel)
		})
	}
}

func TestParser_Rejects(t *testing.T) {
	p, err := NewParser()
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"no json":        "I cannot evaluate this.",
		"missing fields": `{"truth_passes": true}`,
		"wrong type":     `{"truth_passes": "yes", "harm_passes": true, "scope_passes": true, "purpose_passes": true, "risk_level": "low"}`,
		"bad risk":       `{"truth_passes": true, "harm_passes": true, "scope_passes": true, "purpose_passes": true, "risk_level": "apocalyptic"}`,
		"truncated":      `{"truth_passes": true, "harm_passes": `,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := p.Parse(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnparsable), "got %v", err)
		})
	}
}

func TestParser_NullViolatedGate(t *testing.T) {
	p, err := NewParser()
	require.NoError(t, err)
	j, err := p.Parse(`{"truth_passes": true, "harm_passes": true, "scope_passes": false, "purpose_passes": true, "violated_gate": null, "risk_level": "medium"}`)
	require.NoError(t, err)
	assert.Equal(t, signal.GateScope, j.Gate())
}

func TestJudgement_GateFallsBackToFirstFailed(t *testing.T) {
	wrong := "truth"
	j := Judgement{TruthPasses: true, HarmPasses: true, ScopePasses: false, PurposePasses: false, ViolatedGate: &wrong}
	assert.Equal(t, signal.GateScope, j.Gate(), "declared gate that passed is ignored")

	purpose := "PURPOSE"
	j.ViolatedGate = &purpose
	assert.Equal(t, signal.GatePurpose, j.Gate())
}

func TestJudgement_Verdict(t *testing.T) {
	p, err := NewParser()
	require.NoError(t, err)

	pass, err := p.Parse(passingReply)
	require.NoError(t, err)
	v := pass.Verdict(Name, Version)
	assert.False(t, v.Detected)
	assert.Zero(t, v.Confidence)

	fail, err := p.Parse(harmReply)
	require.NoError(t, err)
	v = fail.Verdict(Name, Version)
	assert.True(t, v.Detected)
	assert.Equal(t, signal.CategoryHarm, v.Category)
	assert.InDelta(t, 0.85, v.Confidence, 1e-9)
	assert.Contains(t, v.Description, "explains weapon assembly")
}

func TestRiskConfidence(t *testing.T) {
	assert.Equal(t, 0.95, RiskConfidence("critical"))
	assert.Equal(t, 0.85, RiskConfidence("HIGH"))
	assert.Equal(t, 0.70, RiskConfidence("medium"))
	assert.Equal(t, 0.55, RiskConfidence("low"))
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("current text", "earlier turn", true)
	assert.Contains(t, p.User, "earlier turn")
	assert.Contains(t, p.User, "current text")
	assert.Contains(t, p.System, "risk_level")

	p = BuildPrompt("current text", "earlier turn", false)
	assert.NotContains(t, p.User, "earlier turn")
}
