package domain

import (
	"time"

	"github.com/google/uuid"
)

// PricePoint is one point of a historical close-price series.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// BacktestTrade is a simulated fill inside a backtest.
type BacktestTrade struct {
	Date        time.Time   `json:"date"`
	Side        TradeSide   `json:"side"`
	Reason      TradeReason `json:"reason"`
	Quantity    float64     `json:"quantity"`
	Price       float64     `json:"price"`
	Value       float64     `json:"value"`
	CashAfter   float64     `json:"cash_after"`
	SharesAfter float64     `json:"shares_after"`
}

// EquityPoint is the portfolio value after a simulated day.
type EquityPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// BacktestResult summarizes one constraint replayed over a historical series.
type BacktestResult struct {
	ConstraintID       uuid.UUID       `json:"constraint_id"`
	Symbol             string          `json:"symbol"`
	StartDate          time.Time       `json:"start_date"`
	EndDate            time.Time       `json:"end_date"`
	InitialCapital     float64         `json:"initial_capital"`
	FinalValue         float64         `json:"final_value"`
	TotalTrades        int             `json:"total_trades"`
	SuccessfulTrades   int             `json:"successful_trades"`
	TotalReturn        float64         `json:"total_return"`
	TotalReturnPercent float64         `json:"total_return_percent"`
	MaxDrawdown        float64         `json:"max_drawdown"` // percent, 0..100
	SharpeRatio        float64         `json:"sharpe_ratio"`
	Trades             []BacktestTrade `json:"trades"`
	EquityCurve        []EquityPoint   `json:"equity_curve"`
}

// MarketComparison compares a backtest against holding a benchmark symbol.
type MarketComparison struct {
	BenchmarkSymbol        string  `json:"benchmark_symbol"`
	StrategyReturnPercent  float64 `json:"strategy_return_percent"`
	BenchmarkReturnPercent float64 `json:"benchmark_return_percent"`
	Outperformance         float64 `json:"outperformance"`
	StrategyVolatility     float64 `json:"strategy_volatility"`  // annualized, percent
	BenchmarkVolatility    float64 `json:"benchmark_volatility"` // annualized, percent
}
