package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stocktrigger/internal/domain"
)

// PriceBaselineStoreImpl keeps per-symbol baselines in price_baselines so that
// every process instance evaluates against the same previous price
type PriceBaselineStoreImpl struct {
	db *pgxpool.Pool
}

// NewPriceBaselineStore creates a new PriceBaselineStore
func NewPriceBaselineStore(db *pgxpool.Pool) domain.PriceBaselineStore {
	return &PriceBaselineStoreImpl{db: db}
}

// Get returns the baseline for symbol. Expired rows read as absent and are purged.
func (s *PriceBaselineStoreImpl) Get(ctx context.Context, symbol string) (float64, bool, error) {
	symbol = strings.ToUpper(symbol)

	var price float64
	var expiresAt time.Time
	err := s.db.QueryRow(ctx, `
		SELECT price, expires_at FROM price_baselines WHERE symbol = $1
	`, symbol).Scan(&price, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get price baseline: %w", err)
	}

	if !time.Now().Before(expiresAt) {
		if _, err := s.db.Exec(ctx, `
			DELETE FROM price_baselines WHERE symbol = $1 AND expires_at <= NOW()
		`, symbol); err != nil {
			return 0, false, fmt.Errorf("failed to purge expired baseline: %w", err)
		}
		return 0, false, nil
	}

	return price, true, nil
}

// Set upserts the baseline and pushes its expiry ttl into the future
func (s *PriceBaselineStoreImpl) Set(ctx context.Context, symbol string, price float64, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO price_baselines (symbol, price, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol) DO UPDATE SET
			price = EXCLUDED.price,
			expires_at = EXCLUDED.expires_at
	`, strings.ToUpper(symbol), price, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to set price baseline: %w", err)
	}
	return nil
}
