// Package textnorm normalizes message text before pattern matching. The
// pipeline neutralizes the common evasion tricks (homoglyph substitution,
// leet-speak, character padding, zero-width joiners) so that one stored
// pattern matches the whole family of obfuscated spellings.
//
// The step order is fixed and versioned by NormVersion: lowercase, then
// confusable folding, then collapse of repeated punctuation and whitespace,
// then zero-width stripping. Normalized pattern text stored in configuration
// is only comparable to message text normalized by the same version.
package textnorm

import (
	"strings"
	"unicode"
)

// NormVersion identifies the normalization algorithm. Bump it whenever the
// pipeline or the confusable table changes, so stored normalized pattern
// text can be recomputed.
const NormVersion = 1

// confusables maps visually-confusable and leet-speak runes to their ASCII
// skeleton. Cyrillic and Greek lookalikes cover the substitutions seen in
// the wild; the digit and symbol entries fold leet-speak spellings.
var confusables = map[rune]rune{
	// Cyrillic lookalikes.
	'а': 'a', 'в': 'b', 'е': 'e', 'ё': 'e', 'з': 'e', 'и': 'u',
	'к': 'k', 'м': 'm', 'н': 'h', 'о': 'o', 'р': 'p', 'с': 'c',
	'т': 't', 'у': 'y', 'х': 'x', 'ь': 'b', 'і': 'i', 'ѕ': 's', 'ј': 'j',
	// Greek lookalikes.
	'α': 'a', 'β': 'b', 'ε': 'e', 'ι': 'i', 'κ': 'k', 'ν': 'v',
	'ο': 'o', 'ρ': 'p', 'τ': 't', 'υ': 'u', 'χ': 'x',
	// Leet-speak digits and symbols.
	'0': 'o', '1': 'i', '3': 'e', '4': 'a', '5': 's', '7': 't',
	'$': 's', '@': 'a', '€': 'e', '£': 'l',
	// Fullwidth ASCII block.
	'ａ': 'a', 'ｂ': 'b', 'ｃ': 'c', 'ｄ': 'd', 'ｅ': 'e', 'ｆ': 'f',
	'ｇ': 'g', 'ｈ': 'h', 'ｉ': 'i', 'ｊ': 'j', 'ｋ': 'k', 'ｌ': 'l',
	'ｍ': 'm', 'ｎ': 'n', 'ｏ': 'o', 'ｐ': 'p', 'ｑ': 'q', 'ｒ': 'r',
	'ｓ': 's', 'ｔ': 't', 'ｕ': 'u', 'ｖ': 'v', 'ｗ': 'w', 'ｘ': 'x',
	'ｙ': 'y', 'ｚ': 'z',
}

// zeroWidth is the set of invisible code points stripped at the end of the
// pipeline.
var zeroWidth = map[rune]bool{
	'\u200b': true, // zero width space
	'\u200c': true, // zero width non-joiner
	'\u200d': true, // zero width joiner
	'\u2060': true, // word joiner
	'\ufeff': true, // BOM
	'\u00ad': true, // soft hyphen
}

// Normalize runs the full pipeline on s. It is deterministic: equal inputs
// always produce equal outputs for a given NormVersion.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = foldConfusables(s)
	s = collapseRepeats(s)
	s = stripZeroWidth(s)
	return strings.TrimSpace(s)
}

// foldConfusables replaces every confusable rune with its ASCII skeleton.
func foldConfusables(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if folded, ok := confusables[r]; ok {
			b.WriteRune(folded)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// collapseRepeats squeezes whitespace runs to a single space and runs of
// the same punctuation or symbol rune to a single occurrence. Letter runs
// are left alone: "coool" is the pattern author's problem, "!!!!" is not.
func collapseRepeats(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prev := rune(-1)
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteRune(' ')
				inSpace = true
			}
			prev = rune(-1)
			continue
		}
		inSpace = false
		if r == prev && (unicode.IsPunct(r) || unicode.IsSymbol(r)) {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// stripZeroWidth removes invisible code points.
func stripZeroWidth(s string) string {
	if !strings.ContainsFunc(s, func(r rune) bool { return zeroWidth[r] }) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if zeroWidth[r] {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Tokens splits normalized text into word tokens for boundary-sensitive
// matching. Tokens are delimited by anything that is not a letter or digit.
func Tokens(normalized string) []string {
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Cache memoizes Normalize for the duration of one event's evaluation, so
// several detectors inspecting the same text pay for normalization once.
// It is not safe for concurrent use and must not outlive the event.
type Cache struct {
	entries map[string]string
}

// NewCache returns an empty per-event normalization cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]string, 2)}
}

// Normalize returns the cached normalization of raw, computing it on first
// use.
func (c *Cache) Normalize(raw string) string {
	if n, ok := c.entries[raw]; ok {
		return n
	}
	n := Normalize(raw)
	c.entries[raw] = n
	return n
}
