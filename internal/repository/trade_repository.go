package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"stocktrigger/internal/domain"
	"stocktrigger/pkg/db"
)

// TradeRepositoryImpl implements the TradeRepository interface
type TradeRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewTradeRepository creates a new TradeRepository
func NewTradeRepository(db *pgxpool.Pool) domain.TradeRepository {
	return &TradeRepositoryImpl{db: db}
}

// Save appends a trade to trade_history, inside the caller's transaction when
// ctx carries one
func (r *TradeRepositoryImpl) Save(ctx context.Context, trade *domain.TradeRecord) error {
	query := `
		INSERT INTO trade_history (
			id, owner_id, constraint_id, symbol, side, reason,
			quantity, price, trigger_price, executed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := db.QuerierFrom(ctx, r.db).Exec(ctx, query,
		trade.ID,
		trade.OwnerID,
		trade.ConstraintID,
		trade.Symbol,
		string(trade.Side),
		string(trade.Reason),
		trade.Quantity,
		trade.Price,
		trade.TriggerPrice,
		trade.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}

	return nil
}

// GetByOwner retrieves the most recent trades of an owner
func (r *TradeRepositoryImpl) GetByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.TradeRecord, error) {
	query := `
		SELECT id, owner_id, constraint_id, symbol, side, reason,
		       quantity, price, trigger_price, executed_at
		FROM trade_history
		WHERE owner_id = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades by owner: %w", err)
	}
	defer rows.Close()

	var trades []*domain.TradeRecord
	for rows.Next() {
		t := &domain.TradeRecord{}
		var side, reason string
		err := rows.Scan(
			&t.ID,
			&t.OwnerID,
			&t.ConstraintID,
			&t.Symbol,
			&side,
			&reason,
			&t.Quantity,
			&t.Price,
			&t.TriggerPrice,
			&t.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = domain.TradeSide(side)
		t.Reason = domain.TradeReason(reason)
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}
