package engine

import (
	"errors"
	"fmt"
)

// Validation failures are rejected before any book or store mutation.
var (
	ErrNonPositiveQuantity = errors.New("order quantity must be positive")
	ErrNonPositivePrice    = errors.New("order price must be positive")
	ErrMalformedPair       = errors.New("malformed pair key")
	ErrOrderNotFound       = errors.New("order not found")
)

// StoreError reports a failed write or read on the order store mirror.
// It is fatal to the order being processed: the queue mutation the write
// was backing is not treated as committed, and the failure is surfaced
// rather than swallowed, because a silent divergence would break the
// queue/store consistency invariant.
type StoreError struct {
	Op         string
	PairKey    string
	TrackingID string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("order store %s failed for %s/%s: %v", e.Op, e.PairKey, e.TrackingID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op, pairKey, trackingID string, err error) *StoreError {
	return &StoreError{Op: op, PairKey: pairKey, TrackingID: trackingID, Err: err}
}
