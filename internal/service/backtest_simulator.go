package service

import (
	"fmt"
	"math"
	"strings"

	"stocktrigger/internal/domain"
)

const (
	tradingDaysPerYear = 252
	annualRiskFreeRate = 0.02
)

// BacktestSimulator replays a constraint over a daily close series. It holds
// no state between runs, so identical inputs give identical results.
type BacktestSimulator struct{}

// NewBacktestSimulator creates a new BacktestSimulator
func NewBacktestSimulator() *BacktestSimulator {
	return &BacktestSimulator{}
}

// Run simulates whole-share trading of c over series starting with initialCapital
// in cash. Each step applies BUY, then SELL, then PROFIT.
func (s *BacktestSimulator) Run(c *domain.Constraint, series []domain.PricePoint, initialCapital float64) (*domain.BacktestResult, error) {
	if len(series) < 2 {
		return nil, domain.ErrInsufficientHistory
	}
	if initialCapital <= 0 || math.IsNaN(initialCapital) || math.IsInf(initialCapital, 0) {
		return nil, fmt.Errorf("%w: initial capital must be positive", domain.ErrInvalidInput)
	}
	for i, p := range series {
		if p.Price <= 0 || math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
			return nil, fmt.Errorf("%w: non-positive price at index %d", domain.ErrInvalidInput, i)
		}
	}

	cash := initialCapital
	shares := 0.0
	boughtCost, boughtShares := 0.0, 0.0
	previous := series[0].Price
	buyThreshold := math.Abs(c.BuyTriggerPercent)
	trades := make([]domain.BacktestTrade, 0)
	equity := make([]domain.EquityPoint, 0, len(series)-1)

	for _, point := range series[1:] {
		current := point.Price
		pctChange := (current - previous) / previous * 100

		if pctChange <= -buyThreshold && cash >= c.BuyAmount {
			qty := math.Floor(c.BuyAmount / current)
			cost := qty * current
			if qty > 0 && cost <= cash {
				cash -= cost
				shares += qty
				boughtCost += cost
				boughtShares += qty
				trades = append(trades, domain.BacktestTrade{
					Date: point.Date, Side: domain.SideBuy, Reason: domain.ReasonPriceDrop,
					Quantity: qty, Price: current, Value: cost, CashAfter: cash, SharesAfter: shares,
				})
			}
		}

		if pctChange >= c.SellTriggerPercent && shares > 0 {
			qty := math.Min(math.Floor(c.SellAmount/current), shares)
			if qty > 0 {
				proceeds := qty * current
				cash += proceeds
				shares -= qty
				trades = append(trades, domain.BacktestTrade{
					Date: point.Date, Side: domain.SideSell, Reason: domain.ReasonPriceRise,
					Quantity: qty, Price: current, Value: proceeds, CashAfter: cash, SharesAfter: shares,
				})
			}
		}

		// the average cost here spans every buy so far, not just the shares still held
		if c.HasProfitTarget() && shares > 0 && boughtShares > 0 {
			avgCost := boughtCost / boughtShares
			if (current-avgCost)/avgCost*100 >= *c.ProfitTriggerPercent {
				qty := shares
				proceeds := qty * current
				cash += proceeds
				shares = 0
				trades = append(trades, domain.BacktestTrade{
					Date: point.Date, Side: domain.SideSell, Reason: domain.ReasonProfitTarget,
					Quantity: qty, Price: current, Value: proceeds, CashAfter: cash, SharesAfter: shares,
				})
			}
		}

		equity = append(equity, domain.EquityPoint{Date: point.Date, Value: cash + shares*current})
		previous = current
	}

	finalValue := equity[len(equity)-1].Value
	totalReturn := finalValue - initialCapital

	return &domain.BacktestResult{
		ConstraintID:       c.ID,
		Symbol:             strings.ToUpper(c.Symbol),
		StartDate:          series[0].Date,
		EndDate:            series[len(series)-1].Date,
		InitialCapital:     initialCapital,
		FinalValue:         finalValue,
		TotalTrades:        len(trades),
		SuccessfulTrades:   countSuccessfulSells(trades),
		TotalReturn:        totalReturn,
		TotalReturnPercent: totalReturn / initialCapital * 100,
		MaxDrawdown:        maxDrawdownPercent(equity, initialCapital),
		SharpeRatio:        sharpeRatio(equityValues(equity)),
		Trades:             trades,
		EquityCurve:        equity,
	}, nil
}

// countSuccessfulSells replays the trade log with a running average cost that
// buys re-weight and sells reduce proportionally, counting sells above it.
func countSuccessfulSells(trades []domain.BacktestTrade) int {
	var held, costBasis float64
	successful := 0

	for _, t := range trades {
		switch t.Side {
		case domain.SideBuy:
			held += t.Quantity
			costBasis += t.Quantity * t.Price
		case domain.SideSell:
			if held <= 0 {
				continue
			}
			avgCost := costBasis / held
			if t.Price > avgCost {
				successful++
			}
			sold := math.Min(t.Quantity, held)
			costBasis -= costBasis * sold / held
			held -= sold
			if held <= 0 {
				held, costBasis = 0, 0
			}
		}
	}

	return successful
}

// maxDrawdownPercent is the largest fall from a running peak, which starts at
// initialCapital, as a percent of that peak.
func maxDrawdownPercent(equity []domain.EquityPoint, initialCapital float64) float64 {
	peak := initialCapital
	maxDD := 0.0

	for _, p := range equity {
		if p.Value > peak {
			peak = p.Value
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Value) / peak; dd > maxDD {
			maxDD = dd
		}
	}

	return math.Min(maxDD*100, 100)
}

// sharpeRatio is the daily Sharpe ratio of values. It is 0 with fewer than two
// returns or no variation.
func sharpeRatio(values []float64) float64 {
	returns := dailyReturns(values)
	if len(returns) < 2 {
		return 0
	}

	mean := computeMean(returns)
	stddev := computeStddev(returns, mean)
	if stddev == 0 || math.IsNaN(stddev) {
		return 0
	}

	return (mean - annualRiskFreeRate/tradingDaysPerYear) / stddev
}

// annualizedVolatility is the sample deviation of daily returns scaled to a
// year, in percent.
func annualizedVolatility(values []float64) float64 {
	returns := dailyReturns(values)
	if len(returns) < 2 {
		return 0
	}
	return computeStddev(returns, computeMean(returns)) * math.Sqrt(tradingDaysPerYear) * 100
}

// dailyReturns are fractional changes between consecutive values
func dailyReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		returns = append(returns, (values[i]-values[i-1])/values[i-1])
	}
	return returns
}

func equityValues(equity []domain.EquityPoint) []float64 {
	values := make([]float64, len(equity))
	for i, p := range equity {
		values[i] = p.Value
	}
	return values
}

func computeMean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// computeStddev uses the sample (n-1) formula
func computeStddev(xs []float64, mean float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}
