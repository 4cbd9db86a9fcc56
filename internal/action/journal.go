package action

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/groupwarden/warden/internal/decision"
	"github.com/groupwarden/warden/internal/event"
)

// Journal persists an audit record for every enforced decision in
// PostgreSQL, including a snapshot of the recent chat context for
// moderator review.
type Journal struct {
	db *sql.DB
}

// NewJournal creates a journal backed by the given database handle.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Entry is one journal record as read back for review.
type Entry struct {
	ID          string
	ChatID      int64
	UserID      int64
	MessageID   int64
	EventType   string
	Action      string
	Source      string
	Reason      string
	TriggeredBy string
	Deleted     bool
	MuteMinutes int
	Context     []ContextMessage
	CreatedAt   time.Time
}

// Record inserts a journal entry for an enforced decision. Context
// messages are marshalled to JSONB.
func (j *Journal) Record(ctx context.Context, ev *event.Event, d decision.Decision, recent []ContextMessage) error {
	var contextJSON []byte
	if len(recent) > 0 {
		var err error
		contextJSON, err = json.Marshal(recent)
		if err != nil {
			return fmt.Errorf("action: marshal context: %w", err)
		}
	}

	const query = `
		INSERT INTO moderation_journal
			(id, chat_id, user_id, message_id, event_type, action, source,
			 reason, triggered_by, deleted, mute_minutes, context)
		VALUES ($1, $2, $3, NULLIF($4, 0), $5, $6, $7, $8, NULLIF($9, ''), $10, NULLIF($11, 0), $12)`

	_, err := j.db.ExecContext(ctx, query,
		uuid.NewString(),
		ev.ChatID,
		ev.UserID,
		ev.MessageID,
		string(ev.Type),
		string(d.Action),
		d.Source.String(),
		d.Reason,
		d.TriggeredBy,
		d.DeleteMessage,
		d.MuteMinutes,
		contextJSON,
	)
	if err != nil {
		return fmt.Errorf("action: journal insert: %w", err)
	}
	return nil
}

// RecentEntries returns the latest journal entries for a chat, newest
// first, for the administrative review surface.
func (j *Journal) RecentEntries(ctx context.Context, chatID int64, limit int) ([]Entry, error) {
	const query = `
		SELECT id, chat_id, user_id, COALESCE(message_id, 0), event_type,
		       action, source, reason, COALESCE(triggered_by, ''), deleted,
		       COALESCE(mute_minutes, 0), COALESCE(context, 'null'), created_at
		FROM moderation_journal
		WHERE chat_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := j.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("action: journal query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var contextJSON []byte
		if err := rows.Scan(&e.ID, &e.ChatID, &e.UserID, &e.MessageID,
			&e.EventType, &e.Action, &e.Source, &e.Reason, &e.TriggeredBy,
			&e.Deleted, &e.MuteMinutes, &contextJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("action: journal scan: %w", err)
		}
		if err := json.Unmarshal(contextJSON, &e.Context); err != nil {
			return nil, fmt.Errorf("action: unmarshal context: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
