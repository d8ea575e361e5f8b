package events

import (
	"context"
	"sync"

	"coin-engine/src/engine"
)

// CaptureEmitter records every published batch in memory; tests assert
// on batch boundaries and within-pair ordering.
type CaptureEmitter struct {
	mu           sync.Mutex
	MatchBatches map[string][][]*engine.Order
	TapeBatches  map[string][][]engine.PriceVolume
}

func NewCaptureEmitter() *CaptureEmitter {
	return &CaptureEmitter{
		MatchBatches: make(map[string][][]*engine.Order),
		TapeBatches:  make(map[string][][]engine.PriceVolume),
	}
}

func (e *CaptureEmitter) PublishMatches(_ context.Context, pairKey string, fills []*engine.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	batch := make([]*engine.Order, len(fills))
	copy(batch, fills)
	e.MatchBatches[pairKey] = append(e.MatchBatches[pairKey], batch)
	return nil
}

func (e *CaptureEmitter) PublishPriceVolumes(_ context.Context, pairKey string, samples []engine.PriceVolume) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	batch := make([]engine.PriceVolume, len(samples))
	copy(batch, samples)
	e.TapeBatches[pairKey] = append(e.TapeBatches[pairKey], batch)
	return nil
}

// NopEmitter drops everything; used when no broker is configured.
type NopEmitter struct{}

func (NopEmitter) PublishMatches(context.Context, string, []*engine.Order) error {
	return nil
}

func (NopEmitter) PublishPriceVolumes(context.Context, string, []engine.PriceVolume) error {
	return nil
}
