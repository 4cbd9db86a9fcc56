package action

import (
	"context"
	"log"
	"time"

	"github.com/goccy/go-json"

	"github.com/groupwarden/warden/internal/decision"
	"github.com/groupwarden/warden/internal/event"
)

// NoticeTTL is how long a warn notice stays visible before the executor
// asks the adapter to clean it up.
const NoticeTTL = 30 * time.Second

// Publisher delivers enforcement payloads to the platform adapter.
// messaging.Client implements it.
type Publisher interface {
	PublishDecision(chatID int64, data []byte) error
	PublishAudit(data []byte) error
}

// Enforcement is the payload published for the platform adapter. It
// carries everything the adapter needs to act without another lookup.
type Enforcement struct {
	EventID      string          `json:"event_id"`
	ChatID       int64           `json:"chat_id"`
	UserID       int64           `json:"user_id"`
	MessageID    int64           `json:"message_id,omitempty"`
	Action       decision.Action `json:"action"`
	DeleteMsg    bool            `json:"delete_message"`
	MuteMinutes  int             `json:"mute_minutes,omitempty"`
	Reason       string          `json:"reason"`
	TriggeredBy  string          `json:"triggered_by,omitempty"`
	OffenseCount int             `json:"offense_count,omitempty"`
	// CleanupAfter, when set on a warn, tells the adapter to remove its
	// notice after this many seconds.
	CleanupAfter int `json:"cleanup_after_seconds,omitempty"`
}

// Executor turns resolved decisions into published enforcement payloads,
// journal entries and restriction records. The engine calls Execute at most
// once per event.
type Executor struct {
	publisher    Publisher
	journal      *Journal
	restrictions *RestrictionStore
	buffer       *ContextBuffer
}

// NewExecutor wires an executor. journal, restrictions and buffer may be
// nil in reduced deployments; the corresponding steps are skipped.
func NewExecutor(publisher Publisher, journal *Journal, restrictions *RestrictionStore, buffer *ContextBuffer) *Executor {
	return &Executor{
		publisher:    publisher,
		journal:      journal,
		restrictions: restrictions,
		buffer:       buffer,
	}
}

// Observe feeds a clean message into the context buffer so later journal
// entries can snapshot the surrounding conversation.
func (e *Executor) Observe(ev *event.Event) {
	if e.buffer == nil || ev.Type != event.TypeMessage {
		return
	}
	e.buffer.Add(ev.ChatID, ContextMessage{
		UserID:    ev.UserID,
		MessageID: ev.MessageID,
		Text:      ev.Text,
		Ts:        ev.Timestamp,
	})
}

// Execute enforces a resolved decision: it updates the offense counter and
// restriction record, publishes the enforcement payload for the platform
// adapter, and writes the journal entry.
//
// Publishing is the one step that can fail the call; journal and
// restriction bookkeeping are best-effort and only logged, so an audit
// storage blip never blocks enforcement.
func (e *Executor) Execute(ctx context.Context, ev *event.Event, d decision.Decision) error {
	if d.Action == decision.ActionOff {
		return nil
	}

	enf := Enforcement{
		EventID:     ev.ID,
		ChatID:      ev.ChatID,
		UserID:      ev.UserID,
		MessageID:   ev.MessageID,
		Action:      d.Action,
		DeleteMsg:   d.DeleteMessage,
		MuteMinutes: d.MuteMinutes,
		Reason:      d.Reason,
		TriggeredBy: d.TriggeredBy,
	}

	if e.restrictions != nil {
		escalated, offErr := e.restrictions.RecordOffense(ctx, ev.ChatID, ev.UserID)
		if offErr != nil {
			log.Printf("[action] offense counter chat=%d user=%d: %v", ev.ChatID, ev.UserID, offErr)
		}
		if count, err := e.restrictions.OffenseCount(ctx, ev.ChatID, ev.UserID); err == nil {
			enf.OffenseCount = count
		}

		switch d.Action {
		case decision.ActionRestrict:
			dur := time.Duration(d.MuteMinutes) * time.Minute
			if d.MuteMinutes == 0 && offErr == nil {
				// No explicit duration on the decision: the offense
				// ladder decides (15m, 1h, 24h).
				dur = escalated
				enf.MuteMinutes = int(escalated.Minutes())
			}
			if err := e.restrictions.Restrict(ctx, ev.ChatID, ev.UserID, dur, d.Reason); err != nil {
				log.Printf("[action] restriction record chat=%d user=%d: %v", ev.ChatID, ev.UserID, err)
			}
		case decision.ActionBan:
			// Permanent record so the adapter can enforce on rejoin.
			if err := e.restrictions.Restrict(ctx, ev.ChatID, ev.UserID, 0, d.Reason); err != nil {
				log.Printf("[action] ban record chat=%d user=%d: %v", ev.ChatID, ev.UserID, err)
			}
		}
	}

	if d.Action == decision.ActionWarn {
		enf.CleanupAfter = int(NoticeTTL.Seconds())
	}

	payload, err := json.Marshal(enf)
	if err != nil {
		return err
	}
	if err := e.publisher.PublishDecision(ev.ChatID, payload); err != nil {
		return err
	}

	if e.journal != nil {
		var recent []ContextMessage
		if e.buffer != nil {
			recent = e.buffer.Recent(ev.ChatID)
		}
		if err := e.journal.Record(ctx, ev, d, recent); err != nil {
			log.Printf("[action] journal chat=%d user=%d: %v", ev.ChatID, ev.UserID, err)
		}
	}

	// Audit copy is fire-and-forget; consumers may not be running.
	if err := e.publisher.PublishAudit(payload); err != nil {
		log.Printf("[action] audit publish: %v", err)
	}

	log.Printf("[action] enforced chat=%d user=%d action=%s source=%s reason=%q",
		ev.ChatID, ev.UserID, d.Action, d.Source, d.Reason)
	return nil
}
