package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stocktrigger/internal/domain"
)

const constraintColumns = `
	id, owner_id, symbol, buy_trigger_percent, sell_trigger_percent,
	profit_trigger_percent, buy_amount, sell_amount, is_active,
	created_at, updated_at`

// ConstraintRepositoryImpl implements the ConstraintRepository interface
type ConstraintRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewConstraintRepository creates a new ConstraintRepository
func NewConstraintRepository(db *pgxpool.Pool) domain.ConstraintRepository {
	return &ConstraintRepositoryImpl{db: db}
}

// Save creates or replaces a constraint
func (r *ConstraintRepositoryImpl) Save(ctx context.Context, c *domain.Constraint) error {
	query := `
		INSERT INTO constraints (` + constraintColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			buy_trigger_percent = EXCLUDED.buy_trigger_percent,
			sell_trigger_percent = EXCLUDED.sell_trigger_percent,
			profit_trigger_percent = EXCLUDED.profit_trigger_percent,
			buy_amount = EXCLUDED.buy_amount,
			sell_amount = EXCLUDED.sell_amount,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Exec(ctx, query,
		c.ID,
		c.OwnerID,
		c.Symbol,
		c.BuyTriggerPercent,
		c.SellTriggerPercent,
		c.ProfitTriggerPercent,
		c.BuyAmount,
		c.SellAmount,
		c.IsActive,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save constraint: %w", err)
	}

	return nil
}

// GetByID retrieves a constraint by ID
func (r *ConstraintRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.Constraint, error) {
	query := `SELECT ` + constraintColumns + ` FROM constraints WHERE id = $1`

	c, err := scanConstraint(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConstraintNotFound
		}
		return nil, fmt.Errorf("failed to get constraint by ID: %w", err)
	}

	return c, nil
}

// GetActive retrieves all active constraints
func (r *ConstraintRepositoryImpl) GetActive(ctx context.Context) ([]*domain.Constraint, error) {
	query := `
		SELECT ` + constraintColumns + `
		FROM constraints
		WHERE is_active = TRUE
		ORDER BY created_at ASC, id ASC
	`

	return r.queryConstraints(ctx, query)
}

// GetByOwnerAndSymbol retrieves an owner's constraints for one symbol
func (r *ConstraintRepositoryImpl) GetByOwnerAndSymbol(ctx context.Context, ownerID uuid.UUID, symbol string) ([]*domain.Constraint, error) {
	query := `
		SELECT ` + constraintColumns + `
		FROM constraints
		WHERE owner_id = $1 AND symbol = $2
		ORDER BY created_at ASC, id ASC
	`

	return r.queryConstraints(ctx, query, ownerID, strings.ToUpper(symbol))
}

// CountActive counts active constraints
func (r *ConstraintRepositoryImpl) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM constraints WHERE is_active = TRUE`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active constraints: %w", err)
	}
	return count, nil
}

func (r *ConstraintRepositoryImpl) queryConstraints(ctx context.Context, query string, args ...any) ([]*domain.Constraint, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query constraints: %w", err)
	}
	defer rows.Close()

	var constraints []*domain.Constraint
	for rows.Next() {
		c, err := scanConstraint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan constraint: %w", err)
		}
		constraints = append(constraints, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating constraints: %w", err)
	}

	return constraints, nil
}

func scanConstraint(row pgx.Row) (*domain.Constraint, error) {
	c := &domain.Constraint{}
	err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.Symbol,
		&c.BuyTriggerPercent,
		&c.SellTriggerPercent,
		&c.ProfitTriggerPercent,
		&c.BuyAmount,
		&c.SellAmount,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}
