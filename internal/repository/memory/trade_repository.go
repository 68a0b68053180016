package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"stocktrigger/internal/domain"
)

// TradeRepository is an append-only in-memory trade history.
type TradeRepository struct {
	mu     sync.RWMutex
	trades []*domain.TradeRecord
}

// NewTradeRepository creates an empty in-memory trade history.
func NewTradeRepository() *TradeRepository {
	return &TradeRepository{}
}

// Save appends a trade record.
func (r *TradeRepository) Save(_ context.Context, t *domain.TradeRecord) error {
	if t == nil || t.ID == uuid.Nil {
		return domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copy := *t
	r.trades = append(r.trades, &copy)
	return nil
}

// GetByOwner retrieves the most recent trades of an owner, newest first.
func (r *TradeRepository) GetByOwner(_ context.Context, ownerID uuid.UUID, limit int) ([]*domain.TradeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.TradeRecord
	for i := len(r.trades) - 1; i >= 0; i-- {
		if r.trades[i].OwnerID != ownerID {
			continue
		}
		copy := *r.trades[i]
		result = append(result, &copy)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// All returns every stored trade in insertion order.
func (r *TradeRepository) All() []domain.TradeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.TradeRecord, len(r.trades))
	for i, t := range r.trades {
		result[i] = *t
	}
	return result
}

var _ domain.TradeRepository = (*TradeRepository)(nil)
