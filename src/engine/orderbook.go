package engine

import (
	"sync"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

// priceLevel is one rung of the depth ladder: every resting order at one
// price in FIFO arrival order, plus the running aggregate quantity. The
// aggregate is maintained incrementally on every insert, fill and
// removal, never recomputed from the orders.
type priceLevel struct {
	price  decimal.Decimal
	orders []*Order
	total  decimal.Decimal
}

// bidItem orders levels best-first for the buy side: highest price wins.
type bidItem struct {
	level *priceLevel
}

func (b *bidItem) Less(than btree.Item) bool {
	return b.level.price.GreaterThan(than.(*bidItem).level.price)
}

// askItem orders levels best-first for the sell side: lowest price wins.
type askItem struct {
	level *priceLevel
}

func (a *askItem) Less(than btree.Item) bool {
	return a.level.price.LessThan(than.(*askItem).level.price)
}

// OrderBook holds one pair's two priority queues and their depth ladder.
//
// mu is the pair-exclusive section from the concurrency contract: the
// matcher holds it for the full duration of one order's match loop,
// including store mirror writes, so queue and store are never observably
// divergent. Exported mutators take it themselves; locked variants exist
// for the matcher which already holds it.
type OrderBook struct {
	PairKey string

	bids       *btree.BTree
	asks       *btree.BTree
	byTracking map[string]*Order

	mu sync.RWMutex
}

func NewOrderBook(pairKey string) *OrderBook {
	return &OrderBook{
		PairKey:    pairKey,
		bids:       btree.New(32),
		asks:       btree.New(32),
		byTracking: make(map[string]*Order),
	}
}

func (ob *OrderBook) probe(side Side, price decimal.Decimal) btree.Item {
	if side == SideBuy {
		return &bidItem{level: &priceLevel{price: price}}
	}
	return &askItem{level: &priceLevel{price: price}}
}

func (ob *OrderBook) tree(side Side) *btree.BTree {
	if side == SideBuy {
		return ob.bids
	}
	return ob.asks
}

func levelOf(item btree.Item) *priceLevel {
	switch it := item.(type) {
	case *bidItem:
		return it.level
	case *askItem:
		return it.level
	}
	return nil
}

func (ob *OrderBook) levelFor(side Side, price decimal.Decimal) *priceLevel {
	item := ob.tree(side).Get(ob.probe(side, price))
	if item == nil {
		return nil
	}
	return levelOf(item)
}

// AddResting inserts a Pending order into its side's queue and raises the
// depth ladder at its price. The queue append keeps strict FIFO within
// the level.
func (ob *OrderBook) AddResting(order *Order) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.addRestingLocked(order)
}

func (ob *OrderBook) addRestingLocked(order *Order) error {
	if !order.Quantity.IsPositive() {
		return ErrNonPositiveQuantity
	}

	level := ob.levelFor(order.Side, order.Price)
	if level == nil {
		level = &priceLevel{price: order.Price}
		if order.Side == SideBuy {
			ob.bids.ReplaceOrInsert(&bidItem{level: level})
		} else {
			ob.asks.ReplaceOrInsert(&askItem{level: level})
		}
	}

	level.orders = append(level.orders, order)
	level.total = level.total.Add(order.Quantity)
	ob.byTracking[order.TrackingID] = order
	return nil
}

// RemoveResting removes an order from its queue by identity and lowers
// the depth ladder by its quantity, dropping the level once empty.
func (ob *OrderBook) RemoveResting(order *Order) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.removeRestingLocked(order)
}

func (ob *OrderBook) removeRestingLocked(order *Order) bool {
	level := ob.levelFor(order.Side, order.Price)
	if level == nil {
		return false
	}

	found := false
	for i, o := range level.orders {
		if o.TrackingID == order.TrackingID {
			level.orders = append(level.orders[:i], level.orders[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return false
	}

	level.total = level.total.Sub(order.Quantity)
	if len(level.orders) == 0 {
		ob.tree(order.Side).Delete(ob.probe(order.Side, order.Price))
	}
	delete(ob.byTracking, order.TrackingID)
	return true
}

// reduceRestingLocked records a partial fill of a resting order: the
// order keeps its queue slot (FIFO position is preserved) while the
// ladder aggregate drops by the filled amount. The caller has already
// reduced order.Quantity.
func (ob *OrderBook) reduceRestingLocked(order *Order, filled decimal.Decimal) {
	level := ob.levelFor(order.Side, order.Price)
	if level != nil {
		level.total = level.total.Sub(filled)
	}
}

// peekOppositeLocked returns the highest-priority resting order on the
// side opposite to side, or nil.
func (ob *OrderBook) peekOppositeLocked(side Side) *Order {
	return ob.bestLocked(side.Opposite())
}

func (ob *OrderBook) bestLocked(side Side) *Order {
	item := ob.tree(side).Min()
	if item == nil {
		return nil
	}
	level := levelOf(item)
	if len(level.orders) == 0 {
		return nil
	}
	return level.orders[0]
}

// Get looks up a resting order by tracking identity.
func (ob *OrderBook) Get(trackingID string) (*Order, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	order, ok := ob.byTracking[trackingID]
	return order, ok
}

// DepthLevel is one read-only rung of the depth ladder.
type DepthLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Depth snapshots up to limit ladder rungs per side, best price first.
// The snapshot is a copy; readers never touch book state.
func (ob *OrderBook) Depth(limit int) (bids, asks []DepthLevel) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	bids = make([]DepthLevel, 0, limit)
	asks = make([]DepthLevel, 0, limit)

	ob.bids.Ascend(func(item btree.Item) bool {
		if len(bids) >= limit {
			return false
		}
		level := levelOf(item)
		bids = append(bids, DepthLevel{Price: level.price, Quantity: level.total})
		return true
	})

	ob.asks.Ascend(func(item btree.Item) bool {
		if len(asks) >= limit {
			return false
		}
		level := levelOf(item)
		asks = append(asks, DepthLevel{Price: level.price, Quantity: level.total})
		return true
	})

	return bids, asks
}
