// Package normalize folds text into the form the pattern tables are written
// against: invisible characters removed, confusable letters mapped to Latin,
// lower-cased, whitespace collapsed.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Result is the folded text plus counts of what was rewritten on the way.
type Result struct {
	Text string

	// Hidden counts zero-width, bidi, tag and control characters dropped.
	Hidden int
	// Homoglyphs counts Cyrillic/Greek letters mapped to their Latin twin.
	Homoglyphs int
	// Invalid counts undecodable bytes dropped.
	Invalid int

	// starts and ends hold, for each byte of Text, the byte range of the
	// input rune it was written for.
	starts []int
	ends   []int
}

// Span maps the byte range [lo,hi) of Text back onto src, the string that
// was folded, so a match can be reported as the caller wrote it. Anything
// hidden inside the range is kept. It returns "" for an empty or
// out-of-range span.
func (r Result) Span(src string, lo, hi int) string {
	if lo < 0 || hi > len(r.starts) || lo >= hi {
		return ""
	}
	from, to := r.starts[lo], r.ends[hi-1]
	if to > len(src) || from > to {
		return ""
	}
	return src[from:to]
}

// Obfuscated reports whether folding had to undo anything suspicious.
func (r Result) Obfuscated() bool {
	return r.Hidden > 0 || r.Homoglyphs > 0 || r.Invalid > 0
}

// Fold normalizes s for matching. Output is deterministic for a given input.
func Fold(s string) Result {
	var res Result
	var b strings.Builder
	b.Grow(len(s))
	res.starts = make([]int, 0, len(s))
	res.ends = make([]int, 0, len(s))
	mark := func(from, to int) {
		for b.Len() > len(res.starts) {
			res.starts = append(res.starts, from)
			res.ends = append(res.ends, to)
		}
	}

	space := false
	spaceFrom, spaceTo := 0, 0
	for i := 0; i < len(s); {
		start := i
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size

		if r == utf8.RuneError && size == 1 {
			res.Invalid++
			continue
		}
		if isHidden(r) {
			res.Hidden++
			continue
		}
		if latin, ok := homoglyphs[r]; ok {
			res.Homoglyphs++
			r = latin
		} else if ascii, ok := punctuation[r]; ok {
			r = ascii
		}
		if unicode.IsSpace(r) {
			if !space {
				spaceFrom, spaceTo = start, i
			}
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
			mark(spaceFrom, spaceTo)
		}
		space = false
		b.WriteRune(unicode.ToLower(r))
		mark(start, i)
	}

	res.Text = b.String()
	return res
}

// Text is shorthand for Fold(s).Text.
func Text(s string) string {
	return Fold(s).Text
}

func isHidden(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u2060', '\u180E', '\u200E', '\u200F',
		'\u00AD', // soft hyphen
		'\u202A', '\u202B', '\u202C', '\u202D', '\u202E',
		'\u2066', '\u2067', '\u2068', '\u2069':
		return true
	}
	if r >= 0xE0001 && r <= 0xE007F {
		return true
	}
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return r <= 0x1F || r == 0x7F || (r >= 0x80 && r <= 0x9F)
}

// homoglyphs maps Cyrillic and Greek letters that render like Latin ones.
var homoglyphs = map[rune]rune{
	'а': 'a', 'А': 'a',
	'В': 'b',
	'с': 'c', 'С': 'c',
	'е': 'e', 'Е': 'e',
	'Н': 'h',
	'і': 'i', 'І': 'i',
	'К': 'k',
	'М': 'm',
	'о': 'o', 'О': 'o',
	'р': 'p', 'Р': 'p',
	'Т': 't',
	'х': 'x', 'Х': 'x',
	'у': 'y', 'У': 'y',

	'Α': 'a', 'Β': 'b', 'Ε': 'e', 'Η': 'h', 'Ι': 'i', 'Κ': 'k', 'Μ': 'm',
	'Ν': 'n', 'Ο': 'o', 'ο': 'o', 'Ρ': 'p', 'Τ': 't', 'Χ': 'x', 'Υ': 'y', 'Ζ': 'z',
}

// punctuation maps typographic variants to ASCII so patterns can be written
// with plain quotes and dashes. Not counted as obfuscation.
var punctuation = map[rune]rune{
	'‘': '\'', '’': '\'', '‛': '\'', '′': '\'',
	'“': '"', '”': '"', '„': '"',
	'‐': '-', '‑': '-', '‒': '-', '–': '-', '—': '-',
}
