package aggregator

import (
	"maps"

	"github.com/gzhole/textgate/internal/signal"
)

// Metadata keys added to the aggregated verdict.
const (
	MetaGate             = "gate"
	MetaTriggeredSources = "triggered_sources"
)

// candidate is a positive verdict that passed its source's threshold and
// category filter, tagged with the source's pipeline position.
type candidate struct {
	order   int
	verdict signal.Verdict
}

// combine picks the highest-confidence candidate. On equal confidence the
// source that runs earlier in the pipeline wins. The result is a copy with
// the failed gate and every triggered source recorded in its metadata.
func combine(cands []candidate) (signal.Verdict, bool) {
	if len(cands) == 0 {
		return signal.Verdict{}, false
	}

	best := cands[0]
	triggered := make([]string, 0, len(cands))
	for _, c := range cands {
		triggered = append(triggered, c.verdict.Source)
		if c.verdict.Confidence > best.verdict.Confidence ||
			(c.verdict.Confidence == best.verdict.Confidence && c.order < best.order) {
			best = c
		}
	}

	out := best.verdict
	out.Metadata = maps.Clone(best.verdict.Metadata)
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	out.Metadata[MetaGate] = string(out.Gate())
	out.Metadata[MetaTriggeredSources] = triggered
	return out, true
}
