// Package score maintains the per-(chat,user,scope) rolling spam score in
// Redis. Each contributing match adds its weight and re-extends the entry's
// TTL, so sustained low-level abuse keeps accumulating instead of resetting
// at window boundaries.
//
// Key layout:
//
//	Key:   score:<chat_id>:<user_id>:<scope>
//	Value: integer score
//	TTL:   the scope's accumulation window, refreshed on every add
package score

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScorePrefix is the Redis key prefix for accumulator entries.
const ScorePrefix = "score:"

// addLua atomically adds a weight and refreshes the TTL, returning the new
// total. Running it as one script makes concurrent adds to the same key
// serialize in Redis: no increment is ever lost to a read-modify-write
// race in caller code.
const addLua = `
local total = redis.call('INCRBY', KEYS[1], ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return total
`

// Key identifies one accumulator entry.
type Key struct {
	ChatID int64
	UserID int64
	// Scope is the configuration namespace the score belongs to: empty
	// for the chat-wide accumulator, a section name otherwise.
	Scope string
}

func (k Key) redisKey() string {
	scope := k.Scope
	if scope == "" {
		scope = "_chat"
	}
	return fmt.Sprintf("%s%d:%d:%s", ScorePrefix, k.ChatID, k.UserID, scope)
}

// Accumulator is the Redis-backed rolling score store.
type Accumulator struct {
	client    *redis.Client
	addScript *redis.Script
}

// NewAccumulator creates an Accumulator using the provided Redis client.
func NewAccumulator(client *redis.Client) *Accumulator {
	return &Accumulator{
		client:    client,
		addScript: redis.NewScript(addLua),
	}
}

// Add adds weight to the key's score and slides the expiry window to
// now + window, returning the new total. An expired or absent key starts
// fresh at weight.
func (a *Accumulator) Add(ctx context.Context, key Key, weight int, window time.Duration) (int, error) {
	total, err := a.addScript.Run(ctx, a.client,
		[]string{key.redisKey()}, weight, window.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("score: add: %w", err)
	}
	return total, nil
}

// Get returns the key's current score, or zero when the entry is absent or
// expired.
func (a *Accumulator) Get(ctx context.Context, key Key) (int, error) {
	total, err := a.client.Get(ctx, key.redisKey()).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("score: get: %w", err)
	}
	return total, nil
}

// Reset deletes the key's accumulated score. Called after an action fires
// on the accumulated total, so the same total cannot re-trigger on the
// very next message.
func (a *Accumulator) Reset(ctx context.Context, key Key) error {
	if err := a.client.Del(ctx, key.redisKey()).Err(); err != nil {
		return fmt.Errorf("score: reset: %w", err)
	}
	return nil
}
