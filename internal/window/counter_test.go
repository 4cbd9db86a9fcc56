package window

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestCounters connects to a local Redis and cleans test keys. Tests
// that call this helper are skipped when Redis is unavailable.
func newTestCounters(t *testing.T) *Counters {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	cleanup := func() {
		for _, prefix := range []string{CounterPrefix + "*:8888:*", LatchPrefix + "*:8888:*"} {
			iter := client.Scan(ctx, 0, prefix, 100).Iterator()
			for iter.Next(ctx) {
				client.Del(ctx, iter.Val())
			}
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		client.Close()
	})
	return NewCounters(client)
}

func TestRecord_CountsWithinWindow(t *testing.T) {
	c := newTestCounters(t)
	ctx := context.Background()
	key := Key{Type: CounterJoin, ChatID: 8888}
	now := time.Now()

	// Scenario: 11 joins within 45 seconds of a 60s window.
	var count int
	var err error
	for i := 0; i < 11; i++ {
		at := now.Add(time.Duration(i*4) * time.Second)
		count, err = c.Record(ctx, key, fmt.Sprintf("ev-%d", i), at, time.Minute)
		if err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}
	if count != 11 {
		t.Errorf("count = %d, want 11", count)
	}
}

// TestRecord_PrunesExpired covers window expiry: an event at t does not
// count once now passes t + window, but still counts just before.
func TestRecord_PrunesExpired(t *testing.T) {
	c := newTestCounters(t)
	ctx := context.Background()
	key := Key{Type: CounterMessage, ChatID: 8888, SubjectID: 1}
	window := 10 * time.Second
	base := time.Now()

	if _, err := c.Record(ctx, key, "old", base, window); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	// Just inside the window: both events count.
	count, err := c.Record(ctx, key, "fresh", base.Add(window-time.Second), window)
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if count != 2 {
		t.Errorf("count just inside window = %d, want 2", count)
	}

	// Just past the first event's window: only the later events remain.
	count, err = c.Record(ctx, key, "later", base.Add(window+time.Second), window)
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if count != 2 {
		t.Errorf("count after expiry = %d, want 2 (old event pruned)", count)
	}
}

func TestRecord_DuplicateMemberIdempotent(t *testing.T) {
	c := newTestCounters(t)
	ctx := context.Background()
	key := Key{Type: CounterMessage, ChatID: 8888, SubjectID: 2}
	now := time.Now()

	if _, err := c.Record(ctx, key, "same-event", now, time.Minute); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	count, err := c.Record(ctx, key, "same-event", now.Add(time.Second), time.Minute)
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if count != 1 {
		t.Errorf("count after duplicate member = %d, want 1", count)
	}
}

func TestCount_WithoutRecording(t *testing.T) {
	c := newTestCounters(t)
	ctx := context.Background()
	key := Key{Type: CounterInvite, ChatID: 8888, SubjectID: 3}
	now := time.Now()

	for i := 0; i < 3; i++ {
		if _, err := c.Record(ctx, key, fmt.Sprintf("inv-%d", i), now, time.Minute); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}
	count, err := c.Count(ctx, key, now, time.Minute)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 3 {
		t.Errorf("Count = %d, want 3", count)
	}
}

func TestCounterTypeIsolation(t *testing.T) {
	c := newTestCounters(t)
	ctx := context.Background()
	now := time.Now()

	joins := Key{Type: CounterJoin, ChatID: 8888, SubjectID: 4}
	invites := Key{Type: CounterInvite, ChatID: 8888, SubjectID: 4}

	if _, err := c.Record(ctx, joins, "j1", now, time.Minute); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	count, err := c.Record(ctx, invites, "i1", now, time.Minute)
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if count != 1 {
		t.Errorf("invite count = %d, want 1 (join events must not leak in)", count)
	}
}

func TestFireOnce(t *testing.T) {
	c := newTestCounters(t)
	ctx := context.Background()
	key := Key{Type: CounterJoin, ChatID: 8888, SubjectID: 5}

	first, err := c.FireOnce(ctx, key, 2*time.Second)
	if err != nil {
		t.Fatalf("FireOnce() error: %v", err)
	}
	if !first {
		t.Error("first FireOnce should report true")
	}
	again, err := c.FireOnce(ctx, key, 2*time.Second)
	if err != nil {
		t.Fatalf("FireOnce() error: %v", err)
	}
	if again {
		t.Error("second FireOnce within the window should report false")
	}
}
