package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")

	ErrConstraintNotFound  = errors.New("constraint not found")
	ErrInvalidConstraint   = errors.New("invalid constraint")
	ErrInsufficientHistory = errors.New("insufficient price history: at least 2 points required")
	ErrInvalidDateRange    = errors.New("invalid date range")
	ErrInvalidInput        = errors.New("invalid input")

	// ErrLockUnavailable means another evaluation pass holds the lock; the tick is skipped.
	ErrLockUnavailable = errors.New("evaluation lock unavailable")

	// ErrNothingToSell is returned for SELL/PROFIT triggers on a flat position.
	ErrNothingToSell = errors.New("no position to sell")

	// ErrNegativePosition guards the ledger against overselling.
	ErrNegativePosition = errors.New("trade would leave a negative position")
)

// Price feed failure classes.
var (
	ErrRateLimited     = errors.New("price feed rate limited")
	ErrInvalidSymbol   = errors.New("invalid symbol")
	ErrPriceTimeout    = errors.New("price feed timeout")
	ErrFeedUnavailable = errors.New("price feed unavailable")
)

// PriceFeedKind classifies a PriceFeedError.
type PriceFeedKind string

const (
	FeedRateLimited   PriceFeedKind = "RATE_LIMITED"
	FeedInvalidSymbol PriceFeedKind = "INVALID_SYMBOL"
	FeedTimeout       PriceFeedKind = "TIMEOUT"
	FeedUnavailable   PriceFeedKind = "UNAVAILABLE"
)

// PriceFeedError is returned by PriceFeed implementations.
type PriceFeedError struct {
	Kind   PriceFeedKind
	Symbol string
	Err    error
}

func (e *PriceFeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("price feed %s for %s: %v", e.Kind, e.Symbol, e.Err)
	}
	return fmt.Sprintf("price feed %s for %s", e.Kind, e.Symbol)
}

func (e *PriceFeedError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the kind sentinels.
func (e *PriceFeedError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == FeedRateLimited
	case ErrInvalidSymbol:
		return e.Kind == FeedInvalidSymbol
	case ErrPriceTimeout:
		return e.Kind == FeedTimeout
	case ErrFeedUnavailable:
		return e.Kind == FeedUnavailable
	}
	return false
}

// NewPriceFeedError builds a PriceFeedError.
func NewPriceFeedError(kind PriceFeedKind, symbol string, err error) *PriceFeedError {
	return &PriceFeedError{Kind: kind, Symbol: symbol, Err: err}
}
