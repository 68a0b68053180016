package dto

import "stocktrigger/internal/domain"

// BacktestRequest represents the run backtest request
type BacktestRequest struct {
	ConstraintID    string  `json:"constraint_id"`
	StartDate       string  `json:"start_date"` // YYYY-MM-DD
	EndDate         string  `json:"end_date"`   // YYYY-MM-DD
	InitialCapital  float64 `json:"initial_capital"`
	BenchmarkSymbol string  `json:"benchmark_symbol,omitempty"`
}

// BacktestOutput is the backtest result, with the benchmark comparison when requested
type BacktestOutput struct {
	Result     *domain.BacktestResult   `json:"result"`
	Comparison *domain.MarketComparison `json:"comparison,omitempty"`
}
