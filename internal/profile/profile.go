// Package profile implements the profile-change heuristics: members whose
// display name or bio carries links or scored patterns, and accounts that
// rename themselves right after joining, are auto-muted at the lowest
// detector precedence.
package profile

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/groupwarden/warden/internal/decision"
	"github.com/groupwarden/warden/internal/event"
	"github.com/groupwarden/warden/internal/pattern"
	"github.com/groupwarden/warden/internal/textnorm"
)

// nameLinkPattern catches links smuggled into display names and bios. It
// is broader than the message-link classifier on purpose: names have no
// legitimate reason to carry any URL-shaped content.
var nameLinkPattern = regexp.MustCompile(`(?i)(https?://|www\.|t\.me/|\S+\.(com|net|org|io|xyz|ru|cn)\b)`)

// Settings configures the profile monitor.
type Settings struct {
	Enabled bool
	// MuteMinutes is the auto-mute duration; zero defers to the
	// executor's offense ladder.
	MuteMinutes int
	// RenameGrace flags accounts that change their name within this
	// duration of joining. Zero disables the rename check.
	RenameGrace time.Duration
	// ScoreThreshold is the minimum pattern score in the name/bio to
	// trigger; zero disables pattern scoring of profiles.
	ScoreThreshold int
}

// Check inspects a profile-edit event and returns the auto-mute candidate,
// or nil when the profile looks ordinary. patterns is the chat's scoring
// pattern set, reused here so pattern-worthy text in a name counts the
// same as it would in a message.
func Check(ev *event.Event, s Settings, patterns []*pattern.Pattern) *decision.Decision {
	if !s.Enabled || ev.Type != event.TypeProfileEdit || ev.Profile == nil {
		return nil
	}

	tag, reason := suspicion(ev, s, patterns)
	if tag == "" {
		return nil
	}
	return &decision.Decision{
		Action:      decision.ActionRestrict,
		MuteMinutes: s.MuteMinutes,
		Reason:      reason,
		TriggeredBy: "profile:" + tag,
		IsSpam:      true,
		Source:      decision.SourceProfile,
	}
}

func suspicion(ev *event.Event, s Settings, patterns []*pattern.Pattern) (tag, reason string) {
	p := ev.Profile

	if nameLinkPattern.MatchString(p.NewName) {
		return "name_link", fmt.Sprintf("link in name %q", p.NewName)
	}
	if nameLinkPattern.MatchString(p.Bio) {
		return "bio_link", "link in bio"
	}

	if s.ScoreThreshold > 0 && len(patterns) > 0 {
		cache := textnorm.NewCache()
		score := pattern.TotalWeight(pattern.Match(p.NewName, patterns, cache)) +
			pattern.TotalWeight(pattern.Match(p.Bio, patterns, cache))
		if score >= s.ScoreThreshold {
			return "scored_text", fmt.Sprintf("profile text scored %d", score)
		}
	}

	if s.RenameGrace > 0 && p.JoinedAt > 0 && p.OldName != "" && !strings.EqualFold(p.OldName, p.NewName) {
		sinceJoin := ev.Time().Sub(time.Unix(p.JoinedAt, 0))
		if sinceJoin >= 0 && sinceJoin <= s.RenameGrace {
			return "quick_rename", fmt.Sprintf("renamed %s after joining", sinceJoin.Round(time.Second))
		}
	}
	return "", ""
}
