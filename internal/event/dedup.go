package event

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DedupPrefix is the Redis key prefix for delivery-dedup markers.
	DedupPrefix = "dedup:"

	// DedupTTL is how long a processed event id is remembered. Retried
	// deliveries arrive within seconds; an hour is generous.
	DedupTTL = 1 * time.Hour
)

// DedupStore remembers which event ids have already been processed, so a
// retried at-least-once delivery does not run the stateful detectors twice.
type DedupStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupStore creates a DedupStore with the default TTL.
func NewDedupStore(client *redis.Client) *DedupStore {
	return &DedupStore{client: client, ttl: DedupTTL}
}

// FirstDelivery atomically marks eventID as seen and reports whether this
// call was the first to do so. On Redis errors it fails open (reports first
// delivery) so a store outage degrades to possible double-counting rather
// than dropped moderation.
func (d *DedupStore) FirstDelivery(ctx context.Context, eventID string) bool {
	ok, err := d.client.SetNX(ctx, DedupPrefix+eventID, 1, d.ttl).Result()
	if err != nil {
		log.Printf("[dedup] redis SETNX error event=%s: %v (failing open)", eventID, err)
		return true
	}
	return ok
}
