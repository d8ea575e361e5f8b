// Package store provides the durable keyed mirrors of order state the
// matching engine writes through. The layout follows one hash per status
// and pair: "PENDING:ORDER:BTC-KRW" maps tracking identity to a flat
// JSON snapshot, so recovery and external inspection are single point
// lookups. The store carries no ordering; that lives in the book.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"coin-engine/src/engine"
)

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func ordersKey(status engine.Status, pairKey string) string {
	return fmt.Sprintf("%s:ORDER:%s", status, pairKey)
}

// Upsert writes the order snapshot under the hash of its current status.
// Last write wins; decimals are serialized as strings so precision
// survives the round trip.
func (s *RedisStore) Upsert(ctx context.Context, pairKey string, order *engine.Order) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, ordersKey(order.Status, pairKey), order.TrackingID, payload).Err()
}

// Delete clears a pending slot. Completed snapshots are history and are
// never deleted by the core.
func (s *RedisStore) Delete(ctx context.Context, pairKey, trackingID string) error {
	return s.rdb.HDel(ctx, ordersKey(engine.StatusPending, pairKey), trackingID).Err()
}

// Get looks the identity up in the pending hash first, then completed.
// A missing order is (nil, nil).
func (s *RedisStore) Get(ctx context.Context, pairKey, trackingID string) (*engine.Order, error) {
	for _, status := range []engine.Status{engine.StatusPending, engine.StatusCompleted} {
		raw, err := s.rdb.HGet(ctx, ordersKey(status, pairKey), trackingID).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var order engine.Order
		if err := json.Unmarshal([]byte(raw), &order); err != nil {
			return nil, err
		}
		return &order, nil
	}
	return nil, nil
}

// ScanPending returns every resting snapshot of a pair, for the recovery
// replay at startup. Order is unspecified; the caller sorts by priority.
func (s *RedisStore) ScanPending(ctx context.Context, pairKey string) ([]*engine.Order, error) {
	entries, err := s.rdb.HGetAll(ctx, ordersKey(engine.StatusPending, pairKey)).Result()
	if err != nil {
		return nil, err
	}

	orders := make([]*engine.Order, 0, len(entries))
	for trackingID, raw := range entries {
		var order engine.Order
		if err := json.Unmarshal([]byte(raw), &order); err != nil {
			return nil, fmt.Errorf("corrupt pending snapshot %s/%s: %w", pairKey, trackingID, err)
		}
		orders = append(orders, &order)
	}
	return orders, nil
}
