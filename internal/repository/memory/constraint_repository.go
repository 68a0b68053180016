package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"stocktrigger/internal/domain"
)

// ConstraintRepository is an in-memory implementation of domain.ConstraintRepository.
type ConstraintRepository struct {
	mu   sync.RWMutex
	data map[uuid.UUID]*domain.Constraint
}

// NewConstraintRepository creates an empty in-memory constraint repository.
func NewConstraintRepository() *ConstraintRepository {
	return &ConstraintRepository{
		data: make(map[uuid.UUID]*domain.Constraint),
	}
}

// Save creates or replaces a constraint.
func (r *ConstraintRepository) Save(_ context.Context, c *domain.Constraint) error {
	if c == nil || c.ID == uuid.Nil {
		return domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copy := *c
	r.data[c.ID] = &copy
	return nil
}

// GetByID returns ErrConstraintNotFound when missing.
func (r *ConstraintRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Constraint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.data[id]
	if !ok {
		return nil, domain.ErrConstraintNotFound
	}
	copy := *c
	return &copy, nil
}

// GetActive retrieves all active constraints ordered by creation time.
func (r *ConstraintRepository) GetActive(_ context.Context) ([]*domain.Constraint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Constraint
	for _, c := range r.data {
		if c.IsActive {
			copy := *c
			result = append(result, &copy)
		}
	}
	sortConstraints(result)
	return result, nil
}

// GetByOwnerAndSymbol retrieves an owner's constraints for one symbol.
func (r *ConstraintRepository) GetByOwnerAndSymbol(_ context.Context, ownerID uuid.UUID, symbol string) ([]*domain.Constraint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Constraint
	for _, c := range r.data {
		if c.OwnerID == ownerID && strings.EqualFold(c.Symbol, symbol) {
			copy := *c
			result = append(result, &copy)
		}
	}
	sortConstraints(result)
	return result, nil
}

// CountActive counts active constraints.
func (r *ConstraintRepository) CountActive(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.data {
		if c.IsActive {
			n++
		}
	}
	return n, nil
}

func sortConstraints(cs []*domain.Constraint) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.Before(cs[j].CreatedAt)
		}
		return cs[i].ID.String() < cs[j].ID.String()
	})
}

var _ domain.ConstraintRepository = (*ConstraintRepository)(nil)
