// Package decision defines the moderation action vocabulary and the resolver
// that merges candidate decisions from independent detectors into the single
// final Decision emitted for one event.
package decision

import "fmt"

// Action is the closed set of moderation actions a detector may request.
// Detectors only ever produce these values; the mapping to platform API
// calls happens at the action executor boundary.
type Action string

const (
	ActionOff      Action = "off"
	ActionWarn     Action = "warn"
	ActionDelete   Action = "delete"
	ActionRestrict Action = "restrict"
	ActionKick     Action = "kick"
	ActionBan      Action = "ban"
)

// severity orders actions for tie-breaking between candidates in the same
// precedence tier: ban > kick > restrict > delete > warn > off.
var severity = map[Action]int{
	ActionOff:      0,
	ActionWarn:     1,
	ActionDelete:   2,
	ActionRestrict: 3,
	ActionKick:     4,
	ActionBan:      5,
}

// Severity returns the action's rank in the severity order. Unknown actions
// rank below off so a corrupt value can never win a merge.
func (a Action) Severity() int {
	if s, ok := severity[a]; ok {
		return s
	}
	return -1
}

// Valid reports whether a is one of the known action values.
func (a Action) Valid() bool {
	_, ok := severity[a]
	return ok
}

// ParseAction converts a stored string into an Action, rejecting unknown
// values. Configuration writes go through this so the detection path never
// sees an invalid action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return ActionOff, fmt.Errorf("decision: unknown action %q", s)
	}
	return a, nil
}

// Source identifies which detector tier produced a candidate decision.
// Lower values take precedence when multiple detectors fire on one event.
type Source int

const (
	// SourceExemption is an explicit administrator exemption. It always
	// wins and suppresses every other candidate.
	SourceExemption Source = iota
	// SourceImageHash is a perceptual-hash match against banned images.
	SourceImageHash
	// SourceRule is a static link/forward/quote rule violation.
	SourceRule
	// SourceThreshold is an accumulated-score threshold band.
	SourceThreshold
	// SourceFlood covers flood, raid and mass-event window counters.
	SourceFlood
	// SourceProfile is the profile-change heuristic auto-mute.
	SourceProfile
)

// String returns the detector tier name used in reasons and metrics labels.
func (s Source) String() string {
	switch s {
	case SourceExemption:
		return "exemption"
	case SourceImageHash:
		return "imagehash"
	case SourceRule:
		return "rule"
	case SourceThreshold:
		return "threshold"
	case SourceFlood:
		return "flood"
	case SourceProfile:
		return "profile"
	}
	return "unknown"
}

// Decision is the resolved outcome for one event. It is an immutable value
// produced fresh per evaluation and never persisted as entity state.
//
// MuteMinutes is only meaningful for ActionRestrict; zero means the
// detector sets no duration of its own and the executor's offense
// ladder picks one.
type Decision struct {
	Action        Action `json:"action"`
	DeleteMessage bool   `json:"delete_message"`
	MuteMinutes   int    `json:"mute_minutes"`
	Reason        string `json:"reason"`
	TriggeredBy   string `json:"triggered_by"`
	IsSpam        bool   `json:"is_spam"`
	Source        Source `json:"-"`
}

// None is the not-spam decision returned when no detector fired.
func None() Decision {
	return Decision{Action: ActionOff}
}
