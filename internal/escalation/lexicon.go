package escalation

import (
	"regexp"
	"strings"
)

// Topic buckets used for the drift fingerprint.
const (
	bucketBenign = iota
	bucketSensitive
	bucketDangerous
	numBuckets
)

// lexicon holds the compiled keyword sets and phrase patterns. It is built
// once per Source and read-only afterwards.
type lexicon struct {
	buckets    [numBuckets]*regexp.Regexp
	tiers      [4]*regexp.Regexp // index 0 unused
	procedural *regexp.Regexp
	references []*regexp.Regexp
	refusals   []string
}

var (
	benignTerms = []string{
		"study", "studying", "class", "homework", "learn", "school", "science",
		"chemistry", "biology", "history", "curious", "project", "teacher",
		"textbook", "exam", "hobby", "recipe", "garden",
	}
	sensitiveTerms = []string{
		"synthes", "precursor", "chemical", "toxic", "poison", "drug", "weapon",
		"explosive", "virus", "pathogen", "hack", "exploit", "dose", "reagent",
		"ammunition", "firearm", "lock pick", "surveillance", "password",
	}
	dangerousTerms = []string{
		"nerve agent", "weaponiz", "lethal", "detonat", "untraceable",
		"mass casualt", "bioweapon", "without getting caught", "undetect",
		"kill", "murder", "bomb", "sarin", "ricin", "anthrax", "ransomware",
		"maximum damage", "most damage",
	}

	tierTerms = [4][]string{
		1: {
			"chemistry", "chemical", "reaction", "toxic", "poison", "weapon",
			"explosive", "drug", "virus", "hack", "lock", "security", "medication",
			"dangerous",
		},
		2: {
			"synthes", "precursor", "reagent", "reaction conditions", "purif",
			"bypass security", "bypass the", "disable the alarm", "source code for",
			"exact dosage",
		},
		3: {
			"weaponiz", "lethal", "untraceable", "without getting caught",
			"mass casualt", "detonat", "maximum damage", "most damage",
			"bypass detection", "undetect", "nerve agent", "kill",
		},
	}

	// proceduralTerms raise a turn to tier 2 only alongside sensitive or
	// dangerous vocabulary.
	proceduralTerms = []string{
		"step by step", "step-by-step", "exact amount", "exact quantit",
		"quantities", "temperature", "yield", "concentrat", "extract",
		"ingredients", "in detail", "instructions",
	}

	referencePatterns = []string{
		`\bnow\s+(give|write|show|tell|make|list|explain)\b`,
		`\bin\s+(more|greater|full|exact|precise)?\s*detail\b`,
		`\bbased\s+on\s+(that|this|what\s+you|your)\b`,
		`\b(continue|go\s+on|keep\s+going|carry\s+on)\b`,
		`\b(that|those|the|these)\s+(\w+\s+)?(steps|process|method|recipe|procedure|instructions)\b`,
		`\byou\s+(said|mentioned|wrote|described|explained)\b`,
		`\b(expand|elaborate)\s+on\b`,
		`\b(the\s+)?(previous|last|above|earlier)\s+(answer|response|message|reply)\b`,
		`\b(more\s+specific|be\s+specific|specifics)\b`,
		`\b(what\s+about|and\s+then)\b`,
	}

	refusalPhrases = []string{
		"i can't help", "i cannot help", "i can't assist", "i cannot assist",
		"i'm not able to", "i am not able to", "i won't", "i will not",
		"i am unable", "i'm unable", "i'm sorry, but", "i cannot provide",
		"i can't provide", "against my guidelines", "i must decline",
		"not something i can help", "i'd rather not",
	}
)

func newLexicon() *lexicon {
	lx := &lexicon{
		buckets: [numBuckets]*regexp.Regexp{
			bucketBenign:    keywordRegexp(benignTerms),
			bucketSensitive: keywordRegexp(sensitiveTerms),
			bucketDangerous: keywordRegexp(dangerousTerms),
		},
		procedural: keywordRegexp(proceduralTerms),
		refusals:   refusalPhrases,
	}
	for tier := 1; tier <= 3; tier++ {
		lx.tiers[tier] = keywordRegexp(tierTerms[tier])
	}
	for _, p := range referencePatterns {
		lx.references = append(lx.references, regexp.MustCompile(p))
	}
	return lx
}

// keywordRegexp matches any term at a word start. Terms may be stems.
func keywordRegexp(terms []string) *regexp.Regexp {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)`)
}

// fingerprint is the share of keyword hits falling in each bucket. Text
// with no hits counts as fully benign.
func (lx *lexicon) fingerprint(text string) [numBuckets]float64 {
	var counts [numBuckets]float64
	total := 0.0
	for b, re := range lx.buckets {
		n := float64(len(re.FindAllStringIndex(text, -1)))
		counts[b] = n
		total += n
	}
	if total == 0 {
		return [numBuckets]float64{bucketBenign: 1}
	}
	for b := range counts {
		counts[b] /= total
	}
	return counts
}

// tier returns the highest intensity tier (0-3) reached by text.
func (lx *lexicon) tier(text string) int {
	switch {
	case lx.tiers[3].MatchString(text):
		return 3
	case lx.tiers[2].MatchString(text):
		return 2
	case lx.procedural.MatchString(text) &&
		(lx.buckets[bucketSensitive].MatchString(text) || lx.buckets[bucketDangerous].MatchString(text)):
		return 2
	case lx.tiers[1].MatchString(text):
		return 1
	}
	return 0
}

// vocabularyTier is tier without the procedural rule: only the tiered
// keyword sets count.
func (lx *lexicon) vocabularyTier(text string) int {
	for tier := 3; tier >= 1; tier-- {
		if lx.tiers[tier].MatchString(text) {
			return tier
		}
	}
	return 0
}

// referenceHits returns the indexes of reference patterns matching text.
func (lx *lexicon) referenceHits(text string) []int {
	var hits []int
	for i, re := range lx.references {
		if re.MatchString(text) {
			hits = append(hits, i)
		}
	}
	return hits
}

func (lx *lexicon) refusal(text string) bool {
	for _, p := range lx.refusals {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
