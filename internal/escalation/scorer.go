package escalation

import (
	"math"

	"github.com/gzhole/textgate/internal/normalize"
	"github.com/gzhole/textgate/internal/signal"
)

// Mode names the branch the scorer took.
type Mode string

const (
	ModeMultiTurn  Mode = "multi_turn"
	ModeSingleTurn Mode = "single_turn"
)

// Scores are the four sub-scores, each in [0,1].
type Scores struct {
	Topic       float64
	Intensity   float64
	Reference   float64
	Persistence float64
}

func (s Scores) all() []float64 {
	return []float64{s.Topic, s.Intensity, s.Reference, s.Persistence}
}

// Result is the full scoring breakdown for one window.
type Result struct {
	Mode Mode
	Scores
	Tiers     []int
	UserTurns int
	Refusal   bool

	// Grounded reports that the conversation carries harmful vocabulary:
	// topic drift, intensity or persistence in the multi-turn branch, a
	// tier 2 or 3 keyword in the single-turn branch. Reference phrasing on
	// its own never fires.
	Grounded bool
	Base     float64
	Boost    float64
	Score    float64
}

type turn struct {
	role signal.Role
	text string
	tier int
}

// window is the folded conversation slice the scorer works on. users holds
// the indexes of user turns in order.
type window struct {
	turns []turn
	users []int
}

func (w *window) push(t turn) {
	if t.role == signal.RoleUser {
		w.users = append(w.users, len(w.turns))
	}
	w.turns = append(w.turns, t)
}

// buildWindow folds the whole supplied conversation and appends the current
// text as the newest user turn.
func buildWindow(lx *lexicon, req signal.Request) window {
	w := window{turns: make([]turn, 0, len(req.PriorTurns)+1)}
	add := func(role signal.Role, content string) {
		t := turn{role: role, text: normalize.Text(content)}
		if role == signal.RoleUser {
			t.tier = lx.tier(t.text)
		}
		w.push(t)
	}
	for _, t := range req.PriorTurns {
		add(t.Role, t.Content)
	}
	add(signal.RoleUser, req.Text)
	return w
}

// recent keeps the last size turns, the current text included. When the
// first refusal and the request it answered fall outside, they stay pinned
// at the front so repeated retries cannot push them out.
func (w window) recent(lx *lexicon, size int) window {
	if len(w.turns) <= size {
		return w
	}
	var pinned []int
	if asked, refused := w.firstRefusal(lx); refused >= 0 {
		if asked >= 0 {
			pinned = append(pinned, asked)
		}
		pinned = append(pinned, refused)
	}
	start := len(w.turns) - size
	if len(pinned) > 0 && pinned[len(pinned)-1] < start+len(pinned) && size > len(pinned) {
		start += len(pinned)
	} else {
		pinned = nil
	}

	out := window{turns: make([]turn, 0, size)}
	for _, i := range pinned {
		out.push(w.turns[i])
	}
	for _, t := range w.turns[start:] {
		out.push(t)
	}
	return out
}

// firstRefusal returns the index of the first assistant refusal and of the
// user turn before it, or -1 for either when absent.
func (w window) firstRefusal(lx *lexicon) (asked, refused int) {
	asked = -1
	for i, t := range w.turns {
		switch {
		case t.role == signal.RoleUser:
			asked = i
		case t.role == signal.RoleAssistant && lx.refusal(t.text):
			return asked, i
		}
	}
	return -1, -1
}

func (w window) tiers() []int {
	out := make([]int, len(w.users))
	for i, idx := range w.users {
		out[i] = w.turns[idx].tier
	}
	return out
}

// scoreMulti runs the multi-turn branch over the recent window w.
// Persistence is measured over the full conversation.
func scoreMulti(lx *lexicon, w, full window, cfg Config) Result {
	res := Result{
		Mode:      ModeMultiTurn,
		Tiers:     w.tiers(),
		UserTurns: len(w.users),
	}
	res.Topic = topicDrift(lx, w)
	res.Intensity = intensity(res.Tiers)
	res.Reference = referenceScore(distinctReferences(lx, w))
	res.Persistence, res.Refusal = persistence(lx, full)
	res.Grounded = res.Topic > 0 || res.Intensity > 0 || res.Persistence > 0

	wt := cfg.Weights
	res.Base = res.Topic*wt.Topic + res.Intensity*wt.Intensity +
		res.Reference*wt.Reference + res.Persistence*wt.Persistence
	res.Boost = boost(res.Scores, cfg.Boosts)
	res.Score = signal.Clamp01(res.Base + res.Boost)
	return res
}

// scoreSingle runs the single-message fallback: reference phrasing plus the
// intensity tier of the current text, capped at the single-turn ceiling.
// Procedural wording raises the tier but cannot ground a detection alone.
func scoreSingle(lx *lexicon, w window, cfg Config) Result {
	current := w.turns[len(w.turns)-1]
	res := Result{
		Mode:      ModeSingleTurn,
		Tiers:     w.tiers(),
		UserTurns: len(w.users),
	}
	res.Reference = referenceScore(len(lx.referenceHits(current.text)))
	res.Intensity = float64(current.tier) / 3
	res.Grounded = lx.vocabularyTier(current.text) >= 2
	res.Base = 0.5*res.Reference + 0.5*res.Intensity
	res.Score = signal.Clamp01(math.Min(res.Base, cfg.SingleTurnCeiling))
	return res
}

// topicDrift is the largest shift toward the sensitive and dangerous buckets
// between the first user turn and any later one. Dangerous shifts count
// double.
func topicDrift(lx *lexicon, w window) float64 {
	if len(w.users) < 2 {
		return 0
	}
	first := lx.fingerprint(w.turns[w.users[0]].text)
	drift := 0.0
	for _, idx := range w.users[1:] {
		fp := lx.fingerprint(w.turns[idx].text)
		d := (fp[bucketDangerous] - first[bucketDangerous]) +
			0.5*(fp[bucketSensitive]-first[bucketSensitive])
		drift = math.Max(drift, d)
	}
	return signal.Clamp01(drift)
}

// intensity rewards rising tiers, a jump from tier <=1 to >=2, sustained
// high tiers and reaching tier 3. Each term only grows as turns are added.
func intensity(tiers []int) float64 {
	if len(tiers) == 0 {
		return 0
	}
	increases, high := 0, 0
	jump, top := false, false
	for i, t := range tiers {
		if t >= 2 {
			high++
		}
		if t == 3 {
			top = true
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if t > prev {
			increases++
		}
		if prev <= 1 && t >= 2 {
			jump = true
		}
	}

	score := 0.3 * math.Min(1, float64(increases)/2)
	if jump {
		score += 0.4
	}
	if high >= 2 {
		score += 0.2
	}
	if top {
		score += 0.1
	}
	return signal.Clamp01(score)
}

// distinctReferences counts distinct reference patterns across user turns
// that have something earlier in the window to refer to.
func distinctReferences(lx *lexicon, w window) int {
	seen := make(map[int]bool)
	for _, idx := range w.users {
		if idx == 0 {
			continue
		}
		for _, h := range lx.referenceHits(w.turns[idx].text) {
			seen[h] = true
		}
	}
	return len(seen)
}

func referenceScore(hits int) float64 {
	switch {
	case hits <= 0:
		return 0
	case hits == 1:
		return 0.5
	case hits == 2:
		return 0.75
	default:
		return 1
	}
}

// persistence finds the first assistant refusal and counts later user turns
// at or above the intensity of the request that was refused. Each further
// attempt closes 40% of the remaining gap to 1.
func persistence(lx *lexicon, w window) (float64, bool) {
	asked, refusedAt := w.firstRefusal(lx)
	if refusedAt < 0 {
		return 0, false
	}
	refusedTier := 0
	if asked >= 0 {
		refusedTier = w.turns[asked].tier
	}

	floor := max(refusedTier, 1)
	attempts := 0
	for _, idx := range w.users {
		if idx > refusedAt && w.turns[idx].tier >= floor {
			attempts++
		}
	}
	return signal.Clamp01(1 - math.Pow(0.6, float64(attempts))), true
}

func boost(s Scores, b Boosts) float64 {
	total := 0.0
	strongest := 0.0
	for _, v := range s.all() {
		strongest = math.Max(strongest, v)
		if v >= b.PerSignalMin {
			total += b.PerSignal
		}
	}
	total += stepped(strongest, b.Strongest)
	total += stepped(s.Persistence, b.Persistence)
	return total
}

// stepped returns Add of the first step whose Min is <= v.
func stepped(v float64, steps []Step) float64 {
	for _, st := range steps {
		if v >= st.Min {
			return st.Add
		}
	}
	return 0
}
