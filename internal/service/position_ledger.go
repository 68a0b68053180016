package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stocktrigger/internal/domain"
)

// quantityEpsilon absorbs float residue when a sell closes a position
const quantityEpsilon = 1e-9

// PositionLedger owns quantity and average cost accounting. Trades on the same
// (owner, symbol) are serialised in process here and across processes by the
// repository's Apply.
type PositionLedger struct {
	positions domain.PositionRepository
	locks     *keyedMutex
	now       func() time.Time
}

// NewPositionLedger creates a new PositionLedger
func NewPositionLedger(positions domain.PositionRepository) *PositionLedger {
	return &PositionLedger{
		positions: positions,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// TradeJournal records the trade behind a position change. It runs inside the
// change with the quantity actually traded; an error discards the change.
type TradeJournal func(ctx context.Context, quantity float64) error

// ApplyTrade adds signedQty (negative for sells) at price. Buys re-weight the
// average cost, sells leave it unchanged, and a flat position resets it to 0.
// journal may be nil.
func (l *PositionLedger) ApplyTrade(ctx context.Context, ownerID uuid.UUID, symbol string, signedQty, price float64, journal TradeJournal) (*domain.Position, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if signedQty == 0 || math.IsNaN(signedQty) || math.IsInf(signedQty, 0) {
		return nil, fmt.Errorf("%w: quantity must be non-zero, got %v", domain.ErrInvalidInput, signedQty)
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, fmt.Errorf("%w: price must be positive, got %v", domain.ErrInvalidInput, price)
	}

	unlock := l.locks.lock(ownerID.String() + "/" + symbol)
	defer unlock()

	return l.positions.Apply(ctx, ownerID, symbol, func(ctx context.Context, p *domain.Position) error {
		newQty := p.Quantity + signedQty
		if newQty < -quantityEpsilon {
			return fmt.Errorf("%w: holding %v, selling %v", domain.ErrNegativePosition, p.Quantity, -signedQty)
		}

		switch {
		case newQty <= quantityEpsilon:
			newQty = 0
			p.AverageCost = 0
		case signedQty > 0:
			p.AverageCost = (p.Quantity*p.AverageCost + signedQty*price) / newQty
		}

		p.Quantity = newQty
		p.LastUpdated = l.now()
		return journal.record(ctx, math.Abs(signedQty))
	})
}

// Sell removes up to maxQty shares at price, never more than are held. It returns
// domain.ErrNothingToSell when the position is flat or missing. journal may be nil.
func (l *PositionLedger) Sell(ctx context.Context, ownerID uuid.UUID, symbol string, maxQty, price float64, journal TradeJournal) (*domain.Position, float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if maxQty <= 0 || math.IsNaN(maxQty) || math.IsInf(maxQty, 0) {
		return nil, 0, fmt.Errorf("%w: sell quantity must be positive, got %v", domain.ErrInvalidInput, maxQty)
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, 0, fmt.Errorf("%w: price must be positive, got %v", domain.ErrInvalidInput, price)
	}

	unlock := l.locks.lock(ownerID.String() + "/" + symbol)
	defer unlock()

	var sold float64
	position, err := l.positions.Apply(ctx, ownerID, symbol, func(ctx context.Context, p *domain.Position) error {
		if p.Quantity <= quantityEpsilon {
			return domain.ErrNothingToSell
		}

		sold = math.Min(maxQty, p.Quantity)
		p.Quantity -= sold
		if p.Quantity <= quantityEpsilon {
			p.Quantity = 0
			p.AverageCost = 0
		}
		p.LastUpdated = l.now()
		return journal.record(ctx, sold)
	})
	if err != nil {
		return nil, 0, err
	}
	return position, sold, nil
}

func (j TradeJournal) record(ctx context.Context, quantity float64) error {
	if j == nil {
		return nil
	}
	return j(ctx, quantity)
}

// Position returns the owner's position or domain.ErrNotFound
func (l *PositionLedger) Position(ctx context.Context, ownerID uuid.UUID, symbol string) (*domain.Position, error) {
	return l.positions.GetByOwnerAndSymbol(ctx, ownerID, strings.ToUpper(symbol))
}

// RefreshPrices stores the latest price on every open position of each symbol
func (l *PositionLedger) RefreshPrices(ctx context.Context, prices map[string]float64) (int, error) {
	return l.positions.UpdateCurrentPrices(ctx, prices, l.now())
}

// keyedMutex hands out one mutex per key and forgets it when unused
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
