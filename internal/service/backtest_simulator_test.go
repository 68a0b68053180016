package service

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktrigger/internal/domain"
)

var seriesStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func backtestConstraint(sellAmount float64, profit *float64) *domain.Constraint {
	c := testConstraint("AAPL", -5, 5, profit)
	c.BuyAmount = 1000
	c.SellAmount = sellAmount
	return c
}

func TestBacktestSimulator_BuyThenSell(t *testing.T) {
	sim := NewBacktestSimulator()
	c := backtestConstraint(500, nil)

	result, err := sim.Run(c, dailySeries(seriesStart, 100, 94, 103), 10000)
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	buy, sell := result.Trades[0], result.Trades[1]

	assert.Equal(t, domain.SideBuy, buy.Side)
	assert.Equal(t, 10.0, buy.Quantity)
	assert.Equal(t, 94.0, buy.Price)
	assert.Equal(t, 9060.0, buy.CashAfter)

	assert.Equal(t, domain.SideSell, sell.Side)
	assert.Equal(t, domain.ReasonPriceRise, sell.Reason)
	assert.Equal(t, 4.0, sell.Quantity)
	assert.Equal(t, 9472.0, sell.CashAfter)
	assert.Equal(t, 6.0, sell.SharesAfter)

	assert.Equal(t, 2, result.TotalTrades)
	assert.Equal(t, 1, result.SuccessfulTrades)
	assert.InDelta(t, 10090, result.FinalValue, 1e-9)
	assert.InDelta(t, 90, result.TotalReturn, 1e-9)
	assert.InDelta(t, 0.9, result.TotalReturnPercent, 1e-9)
	assert.Equal(t, 0.0, result.MaxDrawdown)

	// a single daily return has no deviation
	assert.Equal(t, 0.0, result.SharpeRatio)

	require.Len(t, result.EquityCurve, 2)
	assert.Equal(t, seriesStart.AddDate(0, 0, 1), result.EquityCurve[0].Date)
	assert.InDelta(t, 10000, result.EquityCurve[0].Value, 1e-9)
}

func TestBacktestSimulator_ProfitTargetClosesPosition(t *testing.T) {
	sim := NewBacktestSimulator()
	c := backtestConstraint(500, ptr(10.0))
	c.SellTriggerPercent = 50

	result, err := sim.Run(c, dailySeries(seriesStart, 100, 94, 100, 104), 10000)
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	profit := result.Trades[1]
	assert.Equal(t, domain.ReasonProfitTarget, profit.Reason)
	assert.Equal(t, 10.0, profit.Quantity)
	assert.Equal(t, 104.0, profit.Price)
	assert.Equal(t, 0.0, profit.SharesAfter)
	assert.InDelta(t, 10100, result.FinalValue, 1e-9)
	assert.Equal(t, 1, result.SuccessfulTrades)
}

func TestBacktestSimulator_SkipsBuyWithoutCash(t *testing.T) {
	sim := NewBacktestSimulator()
	c := backtestConstraint(500, nil)

	result, err := sim.Run(c, dailySeries(seriesStart, 100, 90), 500)
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.Equal(t, 500.0, result.FinalValue)
}

func TestBacktestSimulator_MaxDrawdown(t *testing.T) {
	sim := NewBacktestSimulator()
	c := backtestConstraint(500, nil)
	c.SellTriggerPercent = 50

	result, err := sim.Run(c, dailySeries(seriesStart, 100, 90, 80), 10000)
	require.NoError(t, err)

	// 11 @ 90 then 12 @ 80 leaves 8050 cash + 23 shares at 80
	assert.InDelta(t, 9890, result.FinalValue, 1e-9)
	assert.InDelta(t, 1.1, result.MaxDrawdown, 1e-9)
	assert.GreaterOrEqual(t, result.MaxDrawdown, 0.0)
	assert.LessOrEqual(t, result.MaxDrawdown, 100.0)
}

func TestBacktestSimulator_FlatSeriesHasZeroSharpe(t *testing.T) {
	sim := NewBacktestSimulator()
	c := backtestConstraint(500, nil)

	result, err := sim.Run(c, dailySeries(seriesStart, 100, 100, 100, 100, 100), 10000)
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.SharpeRatio)
	assert.Equal(t, 0.0, result.MaxDrawdown)
	assert.Equal(t, 0, result.TotalTrades)
}

func TestBacktestSimulator_IsDeterministic(t *testing.T) {
	sim := NewBacktestSimulator()
	c := backtestConstraint(500, ptr(8.0))
	series := dailySeries(seriesStart, 100, 94, 103, 97, 90, 99, 108, 101, 95, 112)

	first, err := sim.Run(c, series, 25000)
	require.NoError(t, err)
	second, err := sim.Run(c, series, 25000)
	require.NoError(t, err)

	a, err := sonic.Marshal(first)
	require.NoError(t, err)
	b, err := sonic.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestBacktestSimulator_RejectsBadInput(t *testing.T) {
	sim := NewBacktestSimulator()
	c := backtestConstraint(500, nil)

	_, err := sim.Run(c, dailySeries(seriesStart, 100), 10000)
	assert.ErrorIs(t, err, domain.ErrInsufficientHistory)

	_, err = sim.Run(c, dailySeries(seriesStart, 100, 101), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = sim.Run(c, dailySeries(seriesStart, 100, -1), 1000)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSharpeRatio(t *testing.T) {
	assert.Equal(t, 0.0, sharpeRatio([]float64{100}))
	assert.Equal(t, 0.0, sharpeRatio([]float64{100, 101}))
	assert.Equal(t, 0.0, sharpeRatio([]float64{100, 100, 100}))
	assert.Greater(t, sharpeRatio([]float64{100, 101, 103, 104}), 0.0)
	assert.Less(t, sharpeRatio([]float64{100, 99, 97, 96}), 0.0)
}

func TestCountSuccessfulSells(t *testing.T) {
	trades := []domain.BacktestTrade{
		{Side: domain.SideBuy, Quantity: 10, Price: 100},
		{Side: domain.SideBuy, Quantity: 10, Price: 80},
		{Side: domain.SideSell, Quantity: 10, Price: 95}, // above the 90 average
		{Side: domain.SideSell, Quantity: 10, Price: 85}, // below the unchanged 90 average
		{Side: domain.SideSell, Quantity: 5, Price: 200}, // nothing held
	}
	assert.Equal(t, 1, countSuccessfulSells(trades))
}
