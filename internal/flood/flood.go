// Package flood implements the rate-driven detectors: message flood, mass
// join (raid), join/exit churn, mass invite and mass reaction. Each
// detector records the event on its own window counter and fires when the
// in-window count crosses its configured threshold.
//
// Re-trigger policy: a detector fires once per window. The counter store's
// latch makes a window that stays over threshold punish on the crossing
// event only, instead of on every subsequent event.
package flood

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/groupwarden/warden/internal/decision"
	"github.com/groupwarden/warden/internal/event"
	"github.com/groupwarden/warden/internal/window"
)

// Settings configures one rate detector.
type Settings struct {
	Enabled       bool
	Window        time.Duration
	Threshold     int
	Action        decision.Action
	MuteMinutes   int
	DeleteMessage bool
}

// Config holds the per-chat settings for every rate detector.
type Config struct {
	MessageFlood    Settings // messages per user
	MassJoin        Settings // joins per chat
	JoinExitChurn   Settings // join/exit flaps per user
	MassInvite      Settings // members invited per user
	ReactionUser    Settings // reactions per user
	ReactionMessage Settings // reactions per message
}

// CounterStore is the sliding-window counter dependency. *window.Counters
// implements it; tests substitute an in-memory fake.
type CounterStore interface {
	Record(ctx context.Context, key window.Key, member string, now time.Time, w time.Duration) (int, error)
	FireOnce(ctx context.Context, key window.Key, w time.Duration) (bool, error)
}

// Detector runs the rate checks for one event.
type Detector struct {
	counters CounterStore
}

// NewDetector creates a Detector backed by the given counter store.
func NewDetector(counters CounterStore) *Detector {
	return &Detector{counters: counters}
}

// Check records the event on every applicable counter and returns the
// candidate decisions for counters that crossed their threshold this
// window. Counter store failures fail open: the affected detector simply
// contributes nothing for this event.
func (d *Detector) Check(ctx context.Context, ev *event.Event, cfg Config) []decision.Decision {
	var out []decision.Decision

	add := func(name string, s Settings, key window.Key) {
		if !s.Enabled || s.Threshold <= 0 {
			return
		}
		count, err := d.counters.Record(ctx, key, ev.ID, ev.Time(), s.Window)
		if err != nil {
			log.Printf("[flood] %s counter error chat=%d: %v (failing open)", name, ev.ChatID, err)
			return
		}
		if count < s.Threshold {
			return
		}
		first, err := d.counters.FireOnce(ctx, key, s.Window)
		if err != nil {
			log.Printf("[flood] %s latch error chat=%d: %v (failing open)", name, ev.ChatID, err)
			return
		}
		if !first {
			return
		}
		out = append(out, decision.Decision{
			Action:        s.Action,
			DeleteMessage: s.DeleteMessage,
			MuteMinutes:   s.MuteMinutes,
			Reason:        fmt.Sprintf("%s: %d events in %s", name, count, s.Window),
			TriggeredBy:   "flood:" + name,
			IsSpam:        true,
			Source:        decision.SourceFlood,
		})
	}

	switch ev.Type {
	case event.TypeMessage:
		add("message_flood", cfg.MessageFlood,
			window.Key{Type: window.CounterMessage, ChatID: ev.ChatID, SubjectID: ev.UserID})

	case event.TypeMemberJoin:
		add("mass_join", cfg.MassJoin,
			window.Key{Type: window.CounterJoin, ChatID: ev.ChatID})
		add("join_exit_churn", cfg.JoinExitChurn,
			window.Key{Type: window.CounterChurn, ChatID: ev.ChatID, SubjectID: ev.UserID})
		if ev.Member != nil && ev.Member.InvitedBy != 0 {
			d.recordInvites(ctx, ev, cfg.MassInvite, &out)
		}

	case event.TypeMemberExit:
		add("join_exit_churn", cfg.JoinExitChurn,
			window.Key{Type: window.CounterChurn, ChatID: ev.ChatID, SubjectID: ev.UserID})

	case event.TypeReaction:
		if ev.Reaction == nil || ev.Reaction.Removed {
			return out
		}
		add("mass_reaction_user", cfg.ReactionUser,
			window.Key{Type: window.CounterReactionUser, ChatID: ev.ChatID, SubjectID: ev.UserID})
		add("mass_reaction_message", cfg.ReactionMessage,
			window.Key{Type: window.CounterReactionMessage, ChatID: ev.ChatID, SubjectID: ev.Reaction.MessageID})
	}

	return out
}

// recordInvites counts invited members against the inviting user, one
// counter entry per invited member so bulk invites weigh their full size.
func (d *Detector) recordInvites(ctx context.Context, ev *event.Event, s Settings, out *[]decision.Decision) {
	if !s.Enabled || s.Threshold <= 0 {
		return
	}
	key := window.Key{Type: window.CounterInvite, ChatID: ev.ChatID, SubjectID: ev.Member.InvitedBy}
	added := ev.Member.Added
	if added <= 0 {
		added = 1
	}
	var count int
	var err error
	for i := 0; i < added; i++ {
		count, err = d.counters.Record(ctx, key, fmt.Sprintf("%s:%d", ev.ID, i), ev.Time(), s.Window)
		if err != nil {
			log.Printf("[flood] mass_invite counter error chat=%d: %v (failing open)", ev.ChatID, err)
			return
		}
	}
	if count < s.Threshold {
		return
	}
	first, err := d.counters.FireOnce(ctx, key, s.Window)
	if err != nil || !first {
		if err != nil {
			log.Printf("[flood] mass_invite latch error chat=%d: %v (failing open)", ev.ChatID, err)
		}
		return
	}
	*out = append(*out, decision.Decision{
		Action:      s.Action,
		MuteMinutes: s.MuteMinutes,
		Reason:      fmt.Sprintf("mass_invite: %d invites in %s", count, s.Window),
		TriggeredBy: "flood:mass_invite",
		IsSpam:      true,
		Source:      decision.SourceFlood,
	})
}
