package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"coin-engine/src/numeric"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

// Order is the unit being matched. TrackingID is the mutable storage
// identity: when a filled fragment has to be persisted while a remainder
// keeps living under the original identity, the fragment gets a freshly
// minted TrackingID and the remainder keeps the old one.
//
// Quantity is the remaining unfilled amount on a Pending order; on a
// Completed fragment it is the amount that fragment filled.
type Order struct {
	TrackingID     string           `json:"trackingId"`
	DurableID      *int64           `json:"durableId,omitempty"`
	Coin           string           `json:"coin"`
	Market         string           `json:"market"`
	Side           Side             `json:"side"`
	Price          decimal.Decimal  `json:"price"`
	Quantity       decimal.Decimal  `json:"quantity"`
	Status         Status           `json:"status"`
	CreatedAt      time.Time        `json:"createdAt"`
	MatchedAt      *time.Time       `json:"matchedAt,omitempty"`
	ExecutionPrice *decimal.Decimal `json:"executionPrice,omitempty"`
	MatchChain     string           `json:"matchChain,omitempty"`
	MemberID       int64            `json:"memberId"`
	Fee            decimal.Decimal  `json:"fee"`
}

// NewOrder builds a Pending order with a freshly minted tracking identity.
func NewOrder(memberID int64, coin, market string, side Side, price, quantity, fee decimal.Decimal) *Order {
	return &Order{
		TrackingID: MintTrackingID(memberID),
		Coin:       coin,
		Market:     market,
		Side:       side,
		Price:      numeric.Normalize(price),
		Quantity:   numeric.Normalize(quantity),
		Status:     StatusPending,
		CreatedAt:  time.Now(),
		MemberID:   memberID,
		Fee:        fee,
	}
}

// MintTrackingID creates a new opaque storage identity. No ordering
// semantics are attached to it.
func MintTrackingID(memberID int64) string {
	return fmt.Sprintf("%d_%s", memberID, uuid.NewString())
}

// PairKey identifies the book an order belongs to, e.g. "BTC-KRW".
func (o *Order) PairKey() string {
	return o.Coin + "-" + o.Market
}

// SplitPairKey breaks a composite pair key into its coin and market
// symbols.
func SplitPairKey(key string) (coin, market string, err error) {
	parts := strings.Split(key, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedPair, key)
	}
	return parts[0], parts[1], nil
}

// complete marks o filled in place at the maker's price. chainWith is the
// counterpart's tracking identity as it exists at fill time.
func (o *Order) complete(executionPrice decimal.Decimal, at time.Time, chainWith string) {
	o.Status = StatusCompleted
	o.MatchedAt = &at
	o.ExecutionPrice = &executionPrice
	o.MatchChain = o.TrackingID + "|" + chainWith
}

// fragment clones o into a Completed slice of it: qty of the original
// order filled at executionPrice, persisted under a newly minted tracking
// identity so the remainder's storage slot is not overwritten.
func (o *Order) fragment(qty, executionPrice decimal.Decimal, at time.Time, chainWith string) *Order {
	frag := *o
	frag.TrackingID = MintTrackingID(o.MemberID)
	frag.DurableID = nil
	frag.Quantity = qty
	frag.complete(executionPrice, at, chainWith)
	return &frag
}

// PriceVolume is one trade-tape sample: the executed price and quantity
// of a single match step.
type PriceVolume struct {
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	MatchedAt time.Time       `json:"matchedAt"`
}
