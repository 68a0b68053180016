package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConstraintRepository reads the flat constraint records the CRUD layer maintains.
type ConstraintRepository interface {
	// Save creates or replaces a constraint
	Save(ctx context.Context, constraint *Constraint) error

	// GetByID returns ErrConstraintNotFound when missing
	GetByID(ctx context.Context, id uuid.UUID) (*Constraint, error)

	// GetActive retrieves all active constraints
	GetActive(ctx context.Context) ([]*Constraint, error)

	// GetByOwnerAndSymbol retrieves an owner's constraints for one symbol
	GetByOwnerAndSymbol(ctx context.Context, ownerID uuid.UUID, symbol string) ([]*Constraint, error)

	// CountActive counts active constraints
	CountActive(ctx context.Context) (int, error)
}

// PositionMutation transforms the current position (zero-valued when new) in
// place. ctx carries the repository's transaction, if any, so writes made with
// it commit or roll back together with the position.
type PositionMutation func(ctx context.Context, position *Position) error

// PositionRepository persists per-owner, per-symbol positions.
type PositionRepository interface {
	// GetByOwnerAndSymbol returns ErrNotFound when the owner never held the symbol
	GetByOwnerAndSymbol(ctx context.Context, ownerID uuid.UUID, symbol string) (*Position, error)

	// Apply atomically reads, mutates and writes one position
	Apply(ctx context.Context, ownerID uuid.UUID, symbol string, mutate PositionMutation) (*Position, error)

	// GetOpenPositions retrieves all positions with quantity > 0
	GetOpenPositions(ctx context.Context) ([]*Position, error)

	// UpdateCurrentPrices sets current_price on every open position of the given symbols
	UpdateCurrentPrices(ctx context.Context, prices map[string]float64, at time.Time) (int, error)
}

// TradeRepository is the append-only trade history sink.
type TradeRepository interface {
	// Save appends a trade record
	Save(ctx context.Context, trade *TradeRecord) error

	// GetByOwner retrieves the most recent trades of an owner
	GetByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*TradeRecord, error)
}

// PriceHistoryRepository caches historical series fetched from the price provider.
type PriceHistoryRepository interface {
	// InsertBulk stores points for a symbol, ignoring dates already stored
	InsertBulk(ctx context.Context, symbol string, points []PricePoint) error

	// GetRange returns stored points in [start, end], ordered by date
	GetRange(ctx context.Context, symbol string, start, end time.Time) ([]PricePoint, error)
}

// PriceBaselineStore remembers the last seen price per symbol between ticks.
type PriceBaselineStore interface {
	// Get returns found=false when no unexpired baseline exists
	Get(ctx context.Context, symbol string) (price float64, found bool, err error)

	// Set stores price as the baseline, expiring after ttl of inactivity
	Set(ctx context.Context, symbol string, price float64, ttl time.Duration) error
}

// EvaluationLock is a named, TTL-bounded mutual exclusion primitive shared by
// every process running the evaluator.
type EvaluationLock interface {
	// TryAcquire never blocks; it reports whether the caller now holds the lease
	TryAcquire(ctx context.Context, lease time.Duration) (bool, error)

	// Release gives up the caller's lease; releasing a lease that expired is not an error
	Release(ctx context.Context) error
}
