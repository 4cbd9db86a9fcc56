// Package window implements generic sliding-window event counters in Redis.
// Flood, raid and mass-event detectors record events and compare the
// resulting in-window count against their thresholds; the counter itself
// only reports counts, never actions.
//
// Each counter is a sorted set of event timestamps:
//
//	Key:    win:<type>:<chat_id>:<subject_id>
//	Member: event id (uniqueness guard for retried recordings)
//	Score:  event time in unix milliseconds
//
// Recording appends, prunes members older than the window and counts the
// remainder in one Lua script, so concurrent recordings on the same key
// serialize in Redis.
package window

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// CounterPrefix is the Redis key prefix for window counters.
	CounterPrefix = "win:"
	// LatchPrefix is the Redis key prefix for once-per-window fire
	// latches.
	LatchPrefix = "winfired:"
)

// CounterType namespaces counters so detectors sharing a chat/user never
// contaminate each other's counts.
type CounterType string

const (
	CounterMessage         CounterType = "msg"
	CounterJoin            CounterType = "join"
	CounterChurn           CounterType = "churn"
	CounterInvite          CounterType = "invite"
	CounterReactionUser    CounterType = "reactu"
	CounterReactionMessage CounterType = "reactm"
)

// recordLua appends one event, prunes everything older than the window and
// returns the in-window count. ARGV: now_ms, member, cutoff_ms, ttl_ms.
const recordLua = `
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[3])
local n = redis.call('ZCARD', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return n
`

// Key identifies one counter. SubjectID is the user id for per-user
// counters, the message id for per-message counters, and zero for chat-wide
// counters.
type Key struct {
	Type      CounterType
	ChatID    int64
	SubjectID int64
}

func (k Key) redisKey() string {
	return fmt.Sprintf("%s%s:%d:%d", CounterPrefix, k.Type, k.ChatID, k.SubjectID)
}

func (k Key) latchKey() string {
	return fmt.Sprintf("%s%s:%d:%d", LatchPrefix, k.Type, k.ChatID, k.SubjectID)
}

// Counters is the Redis-backed sliding-window counter store.
type Counters struct {
	client       *redis.Client
	recordScript *redis.Script
}

// NewCounters creates a Counters store using the provided Redis client.
func NewCounters(client *redis.Client) *Counters {
	return &Counters{
		client:       client,
		recordScript: redis.NewScript(recordLua),
	}
}

// Record appends an event at now, prunes entries older than now - window
// and returns the count of events remaining in the window. member must be
// unique per event (the transport event id); re-recording the same member
// is idempotent on the set.
func (c *Counters) Record(ctx context.Context, key Key, member string, now time.Time, window time.Duration) (int, error) {
	nowMs := now.UnixMilli()
	cutoff := nowMs - window.Milliseconds()
	count, err := c.recordScript.Run(ctx, c.client,
		[]string{key.redisKey()}, nowMs, member, cutoff, window.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("window: record: %w", err)
	}
	return count, nil
}

// Count returns the number of events currently inside the window without
// recording anything.
func (c *Counters) Count(ctx context.Context, key Key, now time.Time, window time.Duration) (int, error) {
	cutoff := now.UnixMilli() - window.Milliseconds()
	n, err := c.client.ZCount(ctx, key.redisKey(),
		fmt.Sprintf("(%d", cutoff), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("window: count: %w", err)
	}
	return int(n), nil
}

// FireOnce reports whether the caller is the first to fire for this key
// within the window. Detectors use it as their re-trigger policy: a window
// that stays over threshold across many events punishes once per window,
// not once per event.
func (c *Counters) FireOnce(ctx context.Context, key Key, window time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key.latchKey(), 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("window: fire latch: %w", err)
	}
	return ok, nil
}
