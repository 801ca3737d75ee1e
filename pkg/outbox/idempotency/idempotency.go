// Package idempotency remembers which outbox events a relay already handed to
// the broker, so a row that is fetched again after a crash between the broker
// ack and the database commit is not delivered twice.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bistrodesk/orderflow/pkg/redis"
)

// Guard claims event ids in Redis with SETNX and a TTL. Keys follow
// `of:idempotency:evt:relayed:<relay>:<event_id>`.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Claim reports true when the caller is the first to relay eventID. A false
// result means an earlier attempt already delivered it.
func (g *Guard) Claim(ctx context.Context, relay string, eventID uuid.UUID) (bool, error) {
	key, err := g.key(relay, eventID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
}

// Forget drops a claim whose delivery failed so the next attempt may retry.
func (g *Guard) Forget(ctx context.Context, relay string, eventID uuid.UUID) error {
	key, err := g.key(relay, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(relay string, eventID uuid.UUID) (string, error) {
	if relay == "" {
		return "", errors.New("relay name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(fmt.Sprintf("evt:relayed:%s", relay), eventID.String()), nil
}
