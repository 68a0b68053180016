package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stocktrigger/internal/domain"
	"stocktrigger/pkg/db"
)

// PositionRepositoryImpl implements the PositionRepository interface
type PositionRepositoryImpl struct {
	tx *db.TxManager
}

// NewPositionRepository creates a new PositionRepository
func NewPositionRepository(tx *db.TxManager) domain.PositionRepository {
	return &PositionRepositoryImpl{tx: tx}
}

// GetByOwnerAndSymbol retrieves one position
func (r *PositionRepositoryImpl) GetByOwnerAndSymbol(ctx context.Context, ownerID uuid.UUID, symbol string) (*domain.Position, error) {
	query := `
		SELECT owner_id, symbol, quantity, average_cost, current_price, last_updated
		FROM positions
		WHERE owner_id = $1 AND symbol = $2
	`

	position, err := scanPosition(r.tx.Conn().QueryRow(ctx, query, ownerID, strings.ToUpper(symbol)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	return position, nil
}

// Apply locks the position row for the duration of mutate so concurrent trades
// on the same (owner, symbol) serialize across processes
func (r *PositionRepositoryImpl) Apply(ctx context.Context, ownerID uuid.UUID, symbol string, mutate domain.PositionMutation) (*domain.Position, error) {
	symbol = strings.ToUpper(symbol)
	var result *domain.Position

	err := r.tx.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO positions (owner_id, symbol, quantity, average_cost, last_updated)
			VALUES ($1, $2, 0, 0, NOW())
			ON CONFLICT (owner_id, symbol) DO NOTHING
		`, ownerID, symbol)
		if err != nil {
			return fmt.Errorf("failed to ensure position row: %w", err)
		}

		position, err := scanPosition(tx.QueryRow(ctx, `
			SELECT owner_id, symbol, quantity, average_cost, current_price, last_updated
			FROM positions
			WHERE owner_id = $1 AND symbol = $2
			FOR UPDATE
		`, ownerID, symbol))
		if err != nil {
			return fmt.Errorf("failed to lock position: %w", err)
		}

		if err := mutate(ctx, position); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE positions
			SET quantity = $1,
			    average_cost = $2,
			    current_price = $3,
			    last_updated = $4
			WHERE owner_id = $5 AND symbol = $6
		`,
			position.Quantity,
			position.AverageCost,
			position.CurrentPrice,
			position.LastUpdated,
			ownerID,
			symbol,
		)
		if err != nil {
			return fmt.Errorf("failed to update position: %w", err)
		}

		result = position
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetOpenPositions retrieves all positions with quantity > 0
func (r *PositionRepositoryImpl) GetOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	query := `
		SELECT owner_id, symbol, quantity, average_cost, current_price, last_updated
		FROM positions
		WHERE quantity > 0
		ORDER BY symbol ASC, owner_id ASC
	`

	rows, err := r.tx.Conn().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, position)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// UpdateCurrentPrices sets current_price for every open position of each symbol
func (r *PositionRepositoryImpl) UpdateCurrentPrices(ctx context.Context, prices map[string]float64, at time.Time) (int, error) {
	if len(prices) == 0 {
		return 0, nil
	}

	symbols := make([]string, 0, len(prices))
	values := make([]float64, 0, len(prices))
	for symbol, price := range prices {
		symbols = append(symbols, symbol)
		values = append(values, price)
	}

	tag, err := r.tx.Conn().Exec(ctx, `
		UPDATE positions AS p
		SET current_price = u.price,
		    last_updated = $3
		FROM UNNEST($1::text[], $2::double precision[]) AS u(symbol, price)
		WHERE p.symbol = u.symbol AND p.quantity > 0
	`, symbols, values, at)
	if err != nil {
		return 0, fmt.Errorf("failed to update current prices: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	p := &domain.Position{}
	err := row.Scan(
		&p.OwnerID,
		&p.Symbol,
		&p.Quantity,
		&p.AverageCost,
		&p.CurrentPrice,
		&p.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
