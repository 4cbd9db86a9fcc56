// Package event defines the inbound platform event consumed by the
// moderation engine and the delivery-dedup store that makes at-least-once
// delivery safe for the stateful detectors.
package event

import (
	"strconv"
	"time"
)

// Type classifies an inbound event.
type Type string

const (
	TypeMessage     Type = "message"
	TypeMemberJoin  Type = "member_join"
	TypeMemberExit  Type = "member_exit"
	TypeReaction    Type = "reaction"
	TypeProfileEdit Type = "profile_edit"
)

// EntityKind identifies what kind of entity a forward or quote points at.
type EntityKind string

const (
	EntityChannel EntityKind = "channel"
	EntityGroup   EntityKind = "group"
	EntityBot     EntityKind = "bot"
	EntityUser    EntityKind = "user"
)

// EntityRef identifies the origin of a forwarded or quoted message.
type EntityRef struct {
	Kind     EntityKind `json:"kind"`
	ID       int64      `json:"id"`
	Username string     `json:"username,omitempty"`
	Title    string     `json:"title,omitempty"`
}

// Ident returns the identifier used for whitelist comparison: the username
// when present, otherwise the numeric id.
func (e *EntityRef) Ident() string {
	if e.Username != "" {
		return e.Username
	}
	return strconv.FormatInt(e.ID, 10)
}

// ImageRef carries the precomputed perceptual fingerprint of an attached
// image. The platform adapter downloads the file and fingerprints it before
// handing the event to the engine; the engine itself never does I/O on
// media.
type ImageRef struct {
	FileID string `json:"file_id"`
	PHash  uint64 `json:"phash"`
	DHash  uint64 `json:"dhash"`
}

// MemberChange describes a join/exit/invite membership event.
type MemberChange struct {
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status,omitempty"`
	// InvitedBy is the inviting user's id when the member was added by
	// someone else, zero for organic joins.
	InvitedBy int64 `json:"invited_by,omitempty"`
	// Added is the number of members added by this event (bulk invites
	// arrive as one event).
	Added int `json:"added,omitempty"`
}

// Reaction describes a reaction added to or removed from a message.
type Reaction struct {
	MessageID int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
	Removed   bool   `json:"removed,omitempty"`
}

// ProfileChange describes an edit to a member's visible profile.
type ProfileChange struct {
	OldName  string `json:"old_name,omitempty"`
	NewName  string `json:"new_name"`
	Bio      string `json:"bio,omitempty"`
	JoinedAt int64  `json:"joined_at,omitempty"` // unix seconds, 0 if unknown
}

// Event is one inbound platform event. ID is the transport's stable event
// id, used to deduplicate retried deliveries before any stateful detector
// runs.
type Event struct {
	ID        string `json:"event_id"`
	Type      Type   `json:"type"`
	ChatID    int64  `json:"chat_id"`
	UserID    int64  `json:"user_id"`
	MessageID int64  `json:"message_id,omitempty"`
	Timestamp int64  `json:"ts"` // unix seconds

	Text        string         `json:"text,omitempty"`
	ForwardFrom *EntityRef     `json:"forward_from,omitempty"`
	ReplyTo     *EntityRef     `json:"reply_to,omitempty"`
	Image       *ImageRef      `json:"image,omitempty"`
	Member      *MemberChange  `json:"member,omitempty"`
	Reaction    *Reaction      `json:"reaction,omitempty"`
	Profile     *ProfileChange `json:"profile,omitempty"`
}

// Time returns the event timestamp as time.Time.
func (e *Event) Time() time.Time {
	return time.Unix(e.Timestamp, 0)
}
