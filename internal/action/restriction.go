// Package action executes resolved moderation decisions: it publishes them
// for the platform adapter, records a journal entry, and tracks per-user
// restriction state and offense counters in Redis.
//
// Restriction records are stored as simple key-value pairs with TTL-based
// expiry:
//
//	Key:   restrict:<chat_id>:<user_id>
//	Value: <reason>
//	TTL:   restriction duration
package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// RestrictPrefix is the Redis key prefix for restriction records.
	RestrictPrefix = "restrict:"

	// OffensesPrefix is the Redis key prefix for per-user offense
	// counters used for escalation.
	OffensesPrefix = "offenses:"

	// Escalating restriction durations by offense count.
	Restrict15Min = 15 * time.Minute // 1st offense
	Restrict1Hour = 1 * time.Hour    // 2nd offense
	Restrict24Hour = 24 * time.Hour  // 3rd+ offense

	// OffensesTTL is how long the offense counter lives in Redis. After
	// 24h without new offenses the counter resets to zero.
	OffensesTTL = 24 * time.Hour
)

// RestrictionStore manages restriction records in Redis.
type RestrictionStore struct {
	client *redis.Client
}

// NewRestrictionStore creates a restriction store using the provided Redis
// client.
func NewRestrictionStore(client *redis.Client) *RestrictionStore {
	return &RestrictionStore{client: client}
}

func restrictKey(chatID, userID int64) string {
	return fmt.Sprintf("%s%d:%d", RestrictPrefix, chatID, userID)
}

func offensesKey(chatID, userID int64) string {
	return fmt.Sprintf("%s%d:%d", OffensesPrefix, chatID, userID)
}

// IsRestricted checks if a user is currently restricted in a chat.
// Returns (restricted, remainingSeconds, reason, error). Redis errors are
// returned so callers can decide how to handle them (the engine's policy
// is fail-open).
func (s *RestrictionStore) IsRestricted(ctx context.Context, chatID, userID int64) (bool, int, string, error) {
	key := restrictKey(chatID, userID)

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, 0, "", nil
	}
	if err != nil {
		return false, 0, "", err
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		// The record exists but the TTL read failed. Report restricted
		// with 0 remaining rather than swallowing the restriction.
		return true, 0, reason, nil
	}

	remaining := 0
	if ttl > 0 {
		remaining = int(ttl.Seconds())
	}
	return true, remaining, reason, nil
}

// Restrict records a restriction for a user with the given duration and
// reason. A zero duration stores the record without expiry (permanent
// restriction, lifted only explicitly).
func (s *RestrictionStore) Restrict(ctx context.Context, chatID, userID int64, duration time.Duration, reason string) error {
	key := restrictKey(chatID, userID)
	return s.client.Set(ctx, key, reason, duration).Err()
}

// Lift removes a user's restriction record immediately.
func (s *RestrictionStore) Lift(ctx context.Context, chatID, userID int64) error {
	key := restrictKey(chatID, userID)
	return s.client.Del(ctx, key).Err()
}

// escalationDuration returns the restriction duration for a given offense
// count.
func escalationDuration(offenseCount int) time.Duration {
	switch {
	case offenseCount <= 1:
		return Restrict15Min
	case offenseCount == 2:
		return Restrict1Hour
	default:
		return Restrict24Hour
	}
}

// OffenseCount returns the current offense counter for a user. Returns 0
// if the key does not exist (no offenses recorded or counter expired).
func (s *RestrictionStore) OffenseCount(ctx context.Context, chatID, userID int64) (int, error) {
	key := offensesKey(chatID, userID)
	val, err := s.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// RecordOffense increments the offense counter for a user and returns the
// restriction duration the current count escalates to:
//
//	1st offense  -> 15 minutes
//	2nd offense  -> 1 hour
//	3rd+ offense -> 24 hours
//
// The counter has a 24h TTL set on first increment, so it naturally
// expires if there is no new activity. Callers use the returned duration
// when a decision carries no explicit duration of its own.
func (s *RestrictionStore) RecordOffense(ctx context.Context, chatID, userID int64) (time.Duration, error) {
	key := offensesKey(chatID, userID)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("action: offense incr: %w", err)
	}

	// Set TTL only on first increment so the window doesn't slide.
	if count == 1 {
		if err := s.client.Expire(ctx, key, OffensesTTL).Err(); err != nil {
			return 0, fmt.Errorf("action: offense expire: %w", err)
		}
	}

	return escalationDuration(int(count)), nil
}
