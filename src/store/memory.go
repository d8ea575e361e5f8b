package store

import (
	"context"
	"sync"

	"coin-engine/src/engine"
)

// MemoryStore is the in-process OrderStore used by tests and local runs
// without Redis. Same keyspace semantics as RedisStore: a pending map
// and an append-only completed map per pair.
type MemoryStore struct {
	mu        sync.RWMutex
	pending   map[string]map[string]*engine.Order
	completed map[string]map[string]*engine.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending:   make(map[string]map[string]*engine.Order),
		completed: make(map[string]map[string]*engine.Order),
	}
}

func (s *MemoryStore) bucket(status engine.Status, pairKey string) map[string]*engine.Order {
	byStatus := s.pending
	if status == engine.StatusCompleted {
		byStatus = s.completed
	}
	bucket, ok := byStatus[pairKey]
	if !ok {
		bucket = make(map[string]*engine.Order)
		byStatus[pairKey] = bucket
	}
	return bucket
}

func (s *MemoryStore) Upsert(_ context.Context, pairKey string, order *engine.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *order
	s.bucket(order.Status, pairKey)[order.TrackingID] = &snapshot
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, pairKey, trackingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bucket(engine.StatusPending, pairKey), trackingID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, pairKey, trackingID string) (*engine.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if order, ok := s.pending[pairKey][trackingID]; ok {
		snapshot := *order
		return &snapshot, nil
	}
	if order, ok := s.completed[pairKey][trackingID]; ok {
		snapshot := *order
		return &snapshot, nil
	}
	return nil, nil
}

func (s *MemoryStore) ScanPending(_ context.Context, pairKey string) ([]*engine.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders := make([]*engine.Order, 0, len(s.pending[pairKey]))
	for _, order := range s.pending[pairKey] {
		snapshot := *order
		orders = append(orders, &snapshot)
	}
	return orders, nil
}

// PendingCount reports the size of a pair's pending mirror; tests use it
// to check queue/store consistency.
func (s *MemoryStore) PendingCount(pairKey string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending[pairKey])
}
