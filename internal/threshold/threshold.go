// Package threshold maps an accumulated spam score onto the configured
// action band. Bands may overlap; resolution is deterministic even for
// ambiguous configurations, by priority then by tightest range.
package threshold

import (
	"fmt"
	"sort"

	"github.com/groupwarden/warden/internal/decision"
)

// Band maps a score range onto an action. MaxScore zero means the band is
// unbounded above. MuteMinutes only applies to restrict actions; zero
// leaves the duration to the executor's offense ladder.
type Band struct {
	ID          int64
	ChatID      int64
	Scope       string
	MinScore    int
	MaxScore    int
	Action      decision.Action
	MuteMinutes int
	Enabled     bool
	Priority    int
}

// Contains reports whether score falls inside the band's range.
func (b Band) Contains(score int) bool {
	if score < b.MinScore {
		return false
	}
	return b.MaxScore == 0 || score <= b.MaxScore
}

// Validate rejects malformed band ranges at configuration-write time.
func Validate(b Band) error {
	if b.MinScore < 0 {
		return fmt.Errorf("threshold: negative min score %d", b.MinScore)
	}
	if b.MaxScore != 0 && b.MaxScore < b.MinScore {
		return fmt.Errorf("threshold: max score %d below min score %d", b.MaxScore, b.MinScore)
	}
	if !b.Action.Valid() {
		return fmt.Errorf("threshold: invalid action %q", b.Action)
	}
	return nil
}

// Resolve picks the band for score: among enabled bands whose range
// contains the score, the one with the lowest priority value wins, ties
// broken by the highest min score (the tightest band). Returns nil when no
// band matches — a normal case for low scores, the caller falls back to
// the scope's default action.
func Resolve(score int, bands []Band) *Band {
	var matches []Band
	for _, b := range bands {
		if b.Enabled && b.Contains(score) {
			matches = append(matches, b)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority < matches[j].Priority
		}
		return matches[i].MinScore > matches[j].MinScore
	})
	return &matches[0]
}
