package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktrigger/internal/domain"
	"stocktrigger/internal/repository/memory"
)

func TestPositionLedger_WeightedAverageCost(t *testing.T) {
	ledger := NewPositionLedger(memory.NewPositionRepository())
	ctx := context.Background()
	owner := uuid.New()

	_, err := ledger.ApplyTrade(ctx, owner, "AAPL", 10, 100, nil)
	require.NoError(t, err)
	p, err := ledger.ApplyTrade(ctx, owner, "aapl", 10, 120, nil)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", p.Symbol)
	assert.InDelta(t, 20, p.Quantity, 1e-9)
	assert.InDelta(t, 110, p.AverageCost, 1e-9)

	p, err = ledger.ApplyTrade(ctx, owner, "AAPL", -5, 130, nil)
	require.NoError(t, err)
	assert.InDelta(t, 15, p.Quantity, 1e-9)
	assert.InDelta(t, 110, p.AverageCost, 1e-9, "sells leave the average cost unchanged")
}

func TestPositionLedger_ClosingResetsAverageCost(t *testing.T) {
	ledger := NewPositionLedger(memory.NewPositionRepository())
	ctx := context.Background()
	owner := uuid.New()

	_, err := ledger.ApplyTrade(ctx, owner, "AAPL", 0.1, 100, nil)
	require.NoError(t, err)
	_, err = ledger.ApplyTrade(ctx, owner, "AAPL", 0.2, 100, nil)
	require.NoError(t, err)

	// 0.1+0.2-0.3 leaves float residue that must snap to zero
	p, err := ledger.ApplyTrade(ctx, owner, "AAPL", -0.3, 105, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Quantity)
	assert.Equal(t, 0.0, p.AverageCost)
}

func TestPositionLedger_RejectsOversell(t *testing.T) {
	repo := memory.NewPositionRepository()
	ledger := NewPositionLedger(repo)
	ctx := context.Background()
	owner := uuid.New()

	_, err := ledger.ApplyTrade(ctx, owner, "AAPL", 5, 100, nil)
	require.NoError(t, err)

	_, err = ledger.ApplyTrade(ctx, owner, "AAPL", -6, 100, nil)
	assert.ErrorIs(t, err, domain.ErrNegativePosition)

	p, err := repo.GetByOwnerAndSymbol(ctx, owner, "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 5, p.Quantity, 1e-9)
}

func TestPositionLedger_RejectsInvalidInput(t *testing.T) {
	ledger := NewPositionLedger(memory.NewPositionRepository())
	ctx := context.Background()
	owner := uuid.New()

	_, err := ledger.ApplyTrade(ctx, owner, "AAPL", 0, 100, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = ledger.ApplyTrade(ctx, owner, "AAPL", 1, 0, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = ledger.ApplyTrade(ctx, owner, " ", 1, 10, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPositionLedger_SellCapsAtHeldQuantity(t *testing.T) {
	ledger := NewPositionLedger(memory.NewPositionRepository())
	ctx := context.Background()
	owner := uuid.New()

	_, err := ledger.ApplyTrade(ctx, owner, "AAPL", 4, 100, nil)
	require.NoError(t, err)

	p, sold, err := ledger.Sell(ctx, owner, "AAPL", 10, 110, nil)
	require.NoError(t, err)
	assert.InDelta(t, 4, sold, 1e-9)
	assert.Equal(t, 0.0, p.Quantity)
	assert.Equal(t, 0.0, p.AverageCost)

	_, _, err = ledger.Sell(ctx, owner, "AAPL", 1, 110, nil)
	assert.ErrorIs(t, err, domain.ErrNothingToSell)
}

func TestPositionLedger_SellWithoutPosition(t *testing.T) {
	repo := memory.NewPositionRepository()
	ledger := NewPositionLedger(repo)
	ctx := context.Background()
	owner := uuid.New()

	_, _, err := ledger.Sell(ctx, owner, "TSLA", 1, 200, nil)
	assert.ErrorIs(t, err, domain.ErrNothingToSell)

	_, err = repo.GetByOwnerAndSymbol(ctx, owner, "TSLA")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPositionLedger_ConcurrentTradesAreSerialised(t *testing.T) {
	ledger := NewPositionLedger(memory.NewPositionRepository())
	ctx := context.Background()
	owner := uuid.New()

	_, err := ledger.ApplyTrade(ctx, owner, "AAPL", 50, 100, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var totalSold float64
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, sold, err := ledger.Sell(ctx, owner, "AAPL", 1, 100, nil)
			if err == nil {
				mu.Lock()
				totalSold += sold
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	p, err := ledger.Position(ctx, owner, "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 50, totalSold, 1e-9)
	assert.Equal(t, 0.0, p.Quantity)
}

func TestPositionLedger_RefreshPricesTouchesOpenPositionsOnly(t *testing.T) {
	ledger := NewPositionLedger(memory.NewPositionRepository())
	ctx := context.Background()
	owner := uuid.New()

	_, err := ledger.ApplyTrade(ctx, owner, "AAPL", 1, 100, nil)
	require.NoError(t, err)
	_, err = ledger.ApplyTrade(ctx, owner, "MSFT", 1, 100, nil)
	require.NoError(t, err)
	_, err = ledger.ApplyTrade(ctx, owner, "MSFT", -1, 100, nil)
	require.NoError(t, err)

	updated, err := ledger.RefreshPrices(ctx, map[string]float64{"AAPL": 101, "MSFT": 300})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	p, err := ledger.Position(ctx, owner, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, p.CurrentPrice)
	assert.Equal(t, 101.0, *p.CurrentPrice)
}
