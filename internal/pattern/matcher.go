package pattern

import (
	"strings"

	"github.com/groupwarden/warden/internal/textnorm"
)

// Hit is one pattern match and the score it contributes.
type Hit struct {
	PatternID int64
	Section   string
	Weight    int
}

// Match evaluates every active pattern against text and returns all hits.
// Matching is deliberately not short-circuited: the system scores
// cumulatively, so every matching pattern contributes its weight.
//
// Empty normalized text (pure-media messages) yields an empty hit list.
// cache may be nil, in which case text is normalized directly.
func Match(text string, patterns []*Pattern, cache *textnorm.Cache) []Hit {
	var normalized string
	if cache != nil {
		normalized = cache.Normalize(text)
	} else {
		normalized = textnorm.Normalize(text)
	}
	if normalized == "" {
		return nil
	}

	var tokens map[string]bool // built lazily, only word patterns need it

	var hits []Hit
	for _, p := range patterns {
		if !p.Active {
			continue
		}
		matched := false
		switch p.Kind {
		case KindWord:
			if tokens == nil {
				tokens = tokenSet(normalized)
			}
			matched = matchWord(p.Normalized, normalized, tokens)
		case KindPhrase:
			matched = strings.Contains(normalized, p.Normalized)
		case KindRegex:
			matched = p.re != nil && p.re.MatchString(normalized)
		}
		if matched {
			hits = append(hits, Hit{PatternID: p.ID, Section: p.Section, Weight: p.Weight})
		}
	}
	return hits
}

// matchWord matches a word pattern on token boundaries. Single-token
// patterns use the token set; multi-token patterns fall back to a
// boundary-checked substring scan over the joined token stream.
func matchWord(want, normalized string, tokens map[string]bool) bool {
	if !strings.ContainsRune(want, ' ') {
		return tokens[want]
	}
	joined := " " + strings.Join(textnorm.Tokens(normalized), " ") + " "
	return strings.Contains(joined, " "+want+" ")
}

func tokenSet(normalized string) map[string]bool {
	toks := textnorm.Tokens(normalized)
	set := make(map[string]bool, len(toks))
	for _, tok := range toks {
		set[tok] = true
	}
	return set
}

// TotalWeight sums the score contributions of hits.
func TotalWeight(hits []Hit) int {
	total := 0
	for _, h := range hits {
		total += h.Weight
	}
	return total
}
