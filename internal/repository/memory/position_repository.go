package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stocktrigger/internal/domain"
)

type positionKey struct {
	ownerID uuid.UUID
	symbol  string
}

// PositionRepository is an in-memory implementation of domain.PositionRepository.
// Apply runs under the store's write lock, so mutations are atomic.
type PositionRepository struct {
	mu   sync.RWMutex
	data map[positionKey]*domain.Position
}

// NewPositionRepository creates an empty in-memory position repository.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{
		data: make(map[positionKey]*domain.Position),
	}
}

// GetByOwnerAndSymbol returns ErrNotFound when the owner never held the symbol.
func (r *PositionRepository) GetByOwnerAndSymbol(_ context.Context, ownerID uuid.UUID, symbol string) (*domain.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.data[positionKey{ownerID, strings.ToUpper(symbol)}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePosition(p), nil
}

// Apply atomically reads, mutates and writes one position.
// The stored position is left untouched when mutate fails.
func (r *PositionRepository) Apply(ctx context.Context, ownerID uuid.UUID, symbol string, mutate domain.PositionMutation) (*domain.Position, error) {
	key := positionKey{ownerID, strings.ToUpper(symbol)}

	r.mu.Lock()
	defer r.mu.Unlock()

	working := &domain.Position{OwnerID: ownerID, Symbol: key.symbol}
	if existing, ok := r.data[key]; ok {
		working = clonePosition(existing)
	}

	if err := mutate(ctx, working); err != nil {
		return nil, err
	}

	r.data[key] = clonePosition(working)
	return working, nil
}

// GetOpenPositions retrieves all positions with quantity > 0.
func (r *PositionRepository) GetOpenPositions(_ context.Context) ([]*domain.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Position
	for _, p := range r.data {
		if p.Quantity > 0 {
			result = append(result, clonePosition(p))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Symbol != result[j].Symbol {
			return result[i].Symbol < result[j].Symbol
		}
		return result[i].OwnerID.String() < result[j].OwnerID.String()
	})
	return result, nil
}

// UpdateCurrentPrices sets the current price on every open position of the given symbols.
func (r *PositionRepository) UpdateCurrentPrices(_ context.Context, prices map[string]float64, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	updated := 0
	for key, p := range r.data {
		price, ok := prices[key.symbol]
		if !ok || p.Quantity <= 0 {
			continue
		}
		px := price
		p.CurrentPrice = &px
		p.LastUpdated = at
		updated++
	}
	return updated, nil
}

func clonePosition(p *domain.Position) *domain.Position {
	copy := *p
	if p.CurrentPrice != nil {
		px := *p.CurrentPrice
		copy.CurrentPrice = &px
	}
	return &copy
}

var _ domain.PositionRepository = (*PositionRepository)(nil)
