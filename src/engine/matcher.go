package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"coin-engine/src/numeric"
)

// OrderStore is the durable point-lookup mirror of queue state. All
// ordering logic lives in the book; the store only has to honor
// last-write-wins upserts keyed by (pairKey, trackingId).
type OrderStore interface {
	Upsert(ctx context.Context, pairKey string, order *Order) error
	Delete(ctx context.Context, pairKey, trackingID string) error
	Get(ctx context.Context, pairKey, trackingID string) (*Order, error)
}

// Emitter publishes the fills and trade-tape samples accumulated during
// one matching invocation, keyed by pair. Publishing is best-effort: by
// the time it runs, queue and store state are already committed.
type Emitter interface {
	PublishMatches(ctx context.Context, pairKey string, fills []*Order) error
	PublishPriceVolumes(ctx context.Context, pairKey string, samples []PriceVolume) error
}

// Matcher runs the continuous double auction: one book per pair, lazily
// created, each matched under its own exclusive section so different
// pairs proceed fully in parallel.
type Matcher struct {
	books map[string]*OrderBook
	mu    sync.RWMutex

	store   OrderStore
	emitter Emitter
}

func NewMatcher(store OrderStore, emitter Emitter) *Matcher {
	return &Matcher{
		books:   make(map[string]*OrderBook),
		store:   store,
		emitter: emitter,
	}
}

// Book returns the pair's order book, creating it on first use.
func (m *Matcher) Book(pairKey string) *OrderBook {
	m.mu.RLock()
	if book, ok := m.books[pairKey]; ok {
		m.mu.RUnlock()
		return book
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// edge case: double-check after acquiring write lock
	if book, ok := m.books[pairKey]; ok {
		return book
	}
	book := NewOrderBook(pairKey)
	m.books[pairKey] = book
	return book
}

// lookupBook returns the pair's book if one exists, without allocating.
// Read paths use it so arbitrary pair keys never grow the book map.
func (m *Matcher) lookupBook(pairKey string) *OrderBook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.books[pairKey]
}

// MatchResult is what one invocation produced: every Completed fragment
// in fill order, one price/volume sample per match step, and the fate of
// the incoming order.
type MatchResult struct {
	TrackingID        string
	Fills             []*Order
	PriceVolumes      []PriceVolume
	Rested            bool
	RemainingQuantity decimal.Decimal
}

// Process matches one incoming order against its pair's book. It holds
// the pair-exclusive section for the whole loop, store writes included:
// a reader taking a snapshot between invocations never sees a resting
// order without its store mirror.
func (m *Matcher) Process(ctx context.Context, order *Order) (*MatchResult, error) {
	if err := validateIncoming(order); err != nil {
		return nil, err
	}

	if order.TrackingID == "" {
		order.TrackingID = MintTrackingID(order.MemberID)
	}
	order.Status = StatusPending
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	order.Price = numeric.Normalize(order.Price)
	order.Quantity = numeric.Normalize(order.Quantity)

	book := m.Book(order.PairKey())
	book.mu.Lock()
	defer book.mu.Unlock()

	result := &MatchResult{TrackingID: order.TrackingID}

	for order.Status == StatusPending {
		maker := book.peekOppositeLocked(order.Side)
		if maker == nil || !order.Quantity.IsPositive() || !crosses(order, maker) {
			break
		}
		if err := m.matchStep(ctx, book, order, maker, false, result); err != nil {
			// Fills from earlier steps are already committed to the
			// store; publish them even though the order itself aborts,
			// and hand the partial result back as the retry handle.
			m.emit(ctx, book.PairKey, result)
			return result, err
		}
	}

	if order.Status == StatusPending && order.Quantity.IsPositive() {
		if err := m.store.Upsert(ctx, book.PairKey, order); err != nil {
			m.emit(ctx, book.PairKey, result)
			return result, storeErr("upsert", book.PairKey, order.TrackingID, err)
		}
		if err := book.addRestingLocked(order); err != nil {
			m.emit(ctx, book.PairKey, result)
			return result, err
		}
		result.Rested = true
	}
	if order.Status == StatusCompleted {
		result.RemainingQuantity = decimal.Zero
	} else {
		result.RemainingQuantity = order.Quantity
	}

	m.emit(ctx, book.PairKey, result)
	return result, nil
}

// canMatch from the eligibility test: buy aggressors cross at or above
// the resting price, sell aggressors at or below.
func crosses(taker, maker *Order) bool {
	if taker.Side == SideBuy {
		return taker.Price.Cmp(maker.Price) >= 0
	}
	return taker.Price.Cmp(maker.Price) <= 0
}

func validateIncoming(order *Order) error {
	if _, _, err := SplitPairKey(order.PairKey()); err != nil {
		return err
	}
	if !order.Price.IsPositive() {
		return ErrNonPositivePrice
	}
	if !order.Quantity.IsPositive() {
		return ErrNonPositiveQuantity
	}
	return nil
}

// matchStep executes one fill between the aggressor and the opposite
// queue's head. The remaining-quantity sign classifies the step; the
// execution price is always the maker's, never the aggressor's. Store
// writes happen before the corresponding queue mutation so a store
// failure leaves nothing half-committed as far as readers can tell.
//
// takerResting is set by the reconciliation sweep, where the aggressor
// also owns a pending store slot that has to be cleared when it fills.
func (m *Matcher) matchStep(ctx context.Context, book *OrderBook, taker, maker *Order, takerResting bool, result *MatchResult) error {
	remaining := numeric.Sub(taker.Quantity, maker.Quantity)
	executionPrice := maker.Price
	now := time.Now()

	switch remaining.Sign() {
	case 0:
		// Exact match: both sides fill completely under their current
		// identities; no remainder means no re-mint.
		filled := maker.Quantity
		taker.complete(executionPrice, now, maker.TrackingID)
		maker.complete(executionPrice, now, taker.TrackingID)

		if takerResting {
			if err := m.store.Delete(ctx, book.PairKey, taker.TrackingID); err != nil {
				return storeErr("delete", book.PairKey, taker.TrackingID, err)
			}
		}
		if err := m.store.Upsert(ctx, book.PairKey, taker); err != nil {
			return storeErr("upsert", book.PairKey, taker.TrackingID, err)
		}
		if err := m.store.Delete(ctx, book.PairKey, maker.TrackingID); err != nil {
			return storeErr("delete", book.PairKey, maker.TrackingID, err)
		}
		if err := m.store.Upsert(ctx, book.PairKey, maker); err != nil {
			return storeErr("upsert", book.PairKey, maker.TrackingID, err)
		}

		book.removeRestingLocked(maker)
		result.Fills = append(result.Fills, taker, maker)
		result.PriceVolumes = append(result.PriceVolumes, PriceVolume{Price: executionPrice, Volume: filled, MatchedAt: now})

	case 1:
		// Oversize: the maker fills completely; the aggressor's filled
		// slice is persisted as a re-minted fragment while the original
		// identity carries the remainder onward through the loop.
		filled := maker.Quantity
		frag := taker.fragment(filled, executionPrice, now, maker.TrackingID)
		maker.complete(executionPrice, now, frag.TrackingID)

		if err := m.store.Delete(ctx, book.PairKey, maker.TrackingID); err != nil {
			return storeErr("delete", book.PairKey, maker.TrackingID, err)
		}
		if err := m.store.Upsert(ctx, book.PairKey, maker); err != nil {
			return storeErr("upsert", book.PairKey, maker.TrackingID, err)
		}
		if err := m.store.Upsert(ctx, book.PairKey, frag); err != nil {
			return storeErr("upsert", book.PairKey, frag.TrackingID, err)
		}

		book.removeRestingLocked(maker)
		taker.Quantity = remaining
		result.Fills = append(result.Fills, frag, maker)
		result.PriceVolumes = append(result.PriceVolumes, PriceVolume{Price: executionPrice, Volume: filled, MatchedAt: now})

	case -1:
		// Undersize: the aggressor fills completely; the maker's filled
		// slice is re-minted and the maker keeps living at the head of
		// its queue with the reduced quantity under its original
		// identity.
		filled := taker.Quantity
		frag := maker.fragment(filled, executionPrice, now, taker.TrackingID)
		taker.complete(executionPrice, now, frag.TrackingID)

		if takerResting {
			if err := m.store.Delete(ctx, book.PairKey, taker.TrackingID); err != nil {
				return storeErr("delete", book.PairKey, taker.TrackingID, err)
			}
		}
		if err := m.store.Upsert(ctx, book.PairKey, taker); err != nil {
			return storeErr("upsert", book.PairKey, taker.TrackingID, err)
		}
		if err := m.store.Upsert(ctx, book.PairKey, frag); err != nil {
			return storeErr("upsert", book.PairKey, frag.TrackingID, err)
		}

		maker.Quantity = remaining.Neg()
		if err := m.store.Upsert(ctx, book.PairKey, maker); err != nil {
			return storeErr("upsert", book.PairKey, maker.TrackingID, err)
		}

		book.reduceRestingLocked(maker, filled)
		result.Fills = append(result.Fills, taker, frag)
		result.PriceVolumes = append(result.PriceVolumes, PriceVolume{Price: executionPrice, Volume: filled, MatchedAt: now})
	}

	return nil
}

// SweepPair is the reconciliation pass over one pair's book: as long as
// the best bid and best ask cross, match them with the same step logic
// the continuous path uses. The younger head plays the aggressor, so
// execution stays at the older (resting-first) order's price. On a
// non-crossed book this is a no-op, which makes the pass idempotent.
func (m *Matcher) SweepPair(ctx context.Context, pairKey string) (*MatchResult, error) {
	book := m.Book(pairKey)
	book.mu.Lock()
	defer book.mu.Unlock()

	result := &MatchResult{}

	for {
		bestBid := book.bestLocked(SideBuy)
		bestAsk := book.bestLocked(SideSell)
		if bestBid == nil || bestAsk == nil || bestBid.Price.Cmp(bestAsk.Price) < 0 {
			break
		}

		taker := bestBid
		if bestAsk.CreatedAt.After(bestBid.CreatedAt) {
			taker = bestAsk
		}
		book.removeRestingLocked(taker)

		for taker.Status == StatusPending && taker.Quantity.IsPositive() {
			maker := book.peekOppositeLocked(taker.Side)
			if maker == nil || !crosses(taker, maker) {
				break
			}
			if err := m.matchStep(ctx, book, taker, maker, true, result); err != nil {
				// The taker's pending mirror slot is still live; put it
				// back in the queue so queue and mirror stay convergent,
				// and publish whatever already committed.
				if taker.Status == StatusPending && taker.Quantity.IsPositive() {
					_ = book.addRestingLocked(taker)
				}
				m.emit(ctx, pairKey, result)
				return result, err
			}
		}

		if taker.Status == StatusPending && taker.Quantity.IsPositive() {
			if err := m.store.Upsert(ctx, pairKey, taker); err != nil {
				_ = book.addRestingLocked(taker)
				m.emit(ctx, pairKey, result)
				return result, storeErr("upsert", pairKey, taker.TrackingID, err)
			}
			if err := book.addRestingLocked(taker); err != nil {
				m.emit(ctx, pairKey, result)
				return result, err
			}
		}
	}

	m.emit(ctx, pairKey, result)
	return result, nil
}

// Cancel removes a resting order from queue, ladder and pending store
// slot. It is the entry point the external cancellation capability calls
// into; it takes the same pair-exclusive section as matching.
func (m *Matcher) Cancel(ctx context.Context, pairKey, trackingID string) (*Order, error) {
	book := m.lookupBook(pairKey)
	if book == nil {
		return nil, ErrOrderNotFound
	}
	book.mu.Lock()
	defer book.mu.Unlock()

	order, ok := book.byTracking[trackingID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if err := m.store.Delete(ctx, pairKey, trackingID); err != nil {
		return nil, storeErr("delete", pairKey, trackingID, err)
	}
	book.removeRestingLocked(order)
	return order, nil
}

// Restore rebuilds one pair's book from recovered pending snapshots,
// oldest first so FIFO within each price level matches original arrival
// order. Non-pending or non-positive records are skipped.
func (m *Matcher) Restore(pairKey string, orders []*Order) int {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})

	book := m.Book(pairKey)
	book.mu.Lock()
	defer book.mu.Unlock()

	restored := 0
	for _, order := range orders {
		if order.Status != StatusPending || !order.Quantity.IsPositive() || !order.Price.IsPositive() {
			continue
		}
		if err := book.addRestingLocked(order); err == nil {
			restored++
		}
	}
	return restored
}

// Depth snapshots the pair's ladder for external display. An unknown
// pair yields empty depth.
func (m *Matcher) Depth(pairKey string, limit int) (bids, asks []DepthLevel) {
	book := m.lookupBook(pairKey)
	if book == nil {
		return nil, nil
	}
	return book.Depth(limit)
}

func (m *Matcher) emit(ctx context.Context, pairKey string, result *MatchResult) {
	if len(result.Fills) > 0 {
		if err := m.emitter.PublishMatches(ctx, pairKey, result.Fills); err != nil {
			log.Warn().Err(err).Str("pair", pairKey).Int("fills", len(result.Fills)).Msg("Match list publish failed")
		}
	}
	if len(result.PriceVolumes) > 0 {
		if err := m.emitter.PublishPriceVolumes(ctx, pairKey, result.PriceVolumes); err != nil {
			log.Warn().Err(err).Str("pair", pairKey).Int("samples", len(result.PriceVolumes)).Msg("Price volume publish failed")
		}
	}
}
