package event

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// newTestDedup creates a DedupStore against a local Redis instance. Tests
// using it are skipped when Redis is not available.
func newTestDedup(t *testing.T) *DedupStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	d := NewDedupStore(client)
	d.ttl = 5 * time.Second
	return d
}

func TestFirstDelivery(t *testing.T) {
	d := newTestDedup(t)
	ctx := context.Background()
	id := "test_" + uuid.NewString()

	if !d.FirstDelivery(ctx, id) {
		t.Fatal("first delivery reported as duplicate")
	}
	if d.FirstDelivery(ctx, id) {
		t.Error("second delivery reported as first")
	}
	if d.FirstDelivery(ctx, id) {
		t.Error("third delivery reported as first")
	}
}

func TestFirstDelivery_DistinctIDs(t *testing.T) {
	d := newTestDedup(t)
	ctx := context.Background()

	a := "test_" + uuid.NewString()
	b := "test_" + uuid.NewString()
	if !d.FirstDelivery(ctx, a) || !d.FirstDelivery(ctx, b) {
		t.Error("distinct event ids must both be first deliveries")
	}
}

func TestEntityRefIdent(t *testing.T) {
	withName := &EntityRef{Kind: EntityChannel, ID: 42, Username: "spamchan"}
	if got := withName.Ident(); got != "spamchan" {
		t.Errorf("Ident() = %q, want spamchan", got)
	}
	numeric := &EntityRef{Kind: EntityUser, ID: -100123}
	if got := numeric.Ident(); got != "-100123" {
		t.Errorf("Ident() = %q, want -100123", got)
	}
}
