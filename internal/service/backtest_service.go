package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"stocktrigger/internal/domain"
	"stocktrigger/internal/metrics"
	"stocktrigger/pkg/logger"
	"stocktrigger/pkg/tracing"
)

// BacktestService loads constraints and history and runs the simulator, with
// a bound on how many backtests hit the price feed at once
type BacktestService struct {
	constraints domain.ConstraintRepository
	feed        domain.PriceFeed
	simulator   *BacktestSimulator
	slots       *semaphore.Weighted
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewBacktestService creates a new BacktestService
func NewBacktestService(constraints domain.ConstraintRepository, feed domain.PriceFeed, maxConcurrent int64, m *metrics.Metrics) *BacktestService {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &BacktestService{
		constraints: constraints,
		feed:        feed,
		simulator:   NewBacktestSimulator(),
		slots:       semaphore.NewWeighted(maxConcurrent),
		metrics:     m,
		now:         time.Now,
	}
}

// RunBacktest replays constraintID over [start, end]
func (s *BacktestService) RunBacktest(ctx context.Context, constraintID uuid.UUID, start, end time.Time, initialCapital float64) (*domain.BacktestResult, error) {
	span, ctx := tracing.StartSpan(ctx, "BacktestService.RunBacktest")
	defer span.Finish()
	span.SetTag("constraint_id", constraintID.String())

	startTime := time.Now()
	result, err := s.runBacktest(ctx, constraintID, start, end, initialCapital)
	s.metrics.BacktestRuns.WithLabelValues(backtestOutcome(err)).Inc()
	s.metrics.BacktestDuration.Observe(time.Since(startTime).Seconds())
	if err != nil {
		span.SetTag("error", true)
		return nil, err
	}
	span.SetTag("trades", result.TotalTrades)
	return result, nil
}

func (s *BacktestService) runBacktest(ctx context.Context, constraintID uuid.UUID, start, end time.Time, initialCapital float64) (*domain.BacktestResult, error) {
	if err := s.validateRange(start, end); err != nil {
		return nil, err
	}
	if initialCapital <= 0 || math.IsNaN(initialCapital) || math.IsInf(initialCapital, 0) {
		return nil, fmt.Errorf("%w: initial capital must be positive", domain.ErrInvalidInput)
	}

	constraint, err := s.constraints.GetByID(ctx, constraintID)
	if err != nil {
		return nil, err
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to wait for backtest slot: %w", err)
	}
	defer s.slots.Release(1)

	series, err := s.feed.GetHistoricalPrices(ctx, constraint.Symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", constraint.Symbol, err)
	}

	result, err := s.simulator.Run(constraint, series, initialCapital)
	if err != nil {
		return nil, err
	}
	result.StartDate = start.UTC()
	result.EndDate = end.UTC()

	logger.Info("[OK] Backtest %s on %s: %d trades, return %.2f%%",
		constraint.ID, constraint.Symbol, result.TotalTrades, result.TotalReturnPercent)

	return result, nil
}

// CompareToMarket compares result with buying and holding benchmarkSymbol over
// the same range
func (s *BacktestService) CompareToMarket(ctx context.Context, result *domain.BacktestResult, benchmarkSymbol string) (*domain.MarketComparison, error) {
	span, ctx := tracing.StartSpan(ctx, "BacktestService.CompareToMarket")
	defer span.Finish()

	if result == nil {
		return nil, fmt.Errorf("%w: backtest result is required", domain.ErrInvalidInput)
	}
	benchmarkSymbol = strings.ToUpper(strings.TrimSpace(benchmarkSymbol))
	if benchmarkSymbol == "" {
		return nil, fmt.Errorf("%w: benchmark symbol is required", domain.ErrInvalidInput)
	}
	span.SetTag("benchmark", benchmarkSymbol)

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to wait for backtest slot: %w", err)
	}
	defer s.slots.Release(1)

	series, err := s.feed.GetHistoricalPrices(ctx, benchmarkSymbol, result.StartDate, result.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch benchmark history for %s: %w", benchmarkSymbol, err)
	}

	return compareToBenchmark(result, benchmarkSymbol, series)
}

// backtestOutcome labels a run: rejected for caller errors, failed otherwise
func backtestOutcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, domain.ErrInvalidDateRange),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInsufficientHistory),
		errors.Is(err, domain.ErrConstraintNotFound):
		return "rejected"
	}
	return "failed"
}

func compareToBenchmark(result *domain.BacktestResult, benchmarkSymbol string, series []domain.PricePoint) (*domain.MarketComparison, error) {
	if len(series) < 2 {
		return nil, domain.ErrInsufficientHistory
	}

	first := series[0].Price
	last := series[len(series)-1].Price
	if first <= 0 {
		return nil, fmt.Errorf("%w: benchmark starts at a non-positive price", domain.ErrInvalidInput)
	}
	benchmarkReturn := (last - first) / first * 100

	benchmarkValues := make([]float64, len(series))
	for i, p := range series {
		benchmarkValues[i] = p.Price
	}

	return &domain.MarketComparison{
		BenchmarkSymbol:        benchmarkSymbol,
		StrategyReturnPercent:  result.TotalReturnPercent,
		BenchmarkReturnPercent: benchmarkReturn,
		Outperformance:         result.TotalReturnPercent - benchmarkReturn,
		StrategyVolatility:     annualizedVolatility(equityValues(result.EquityCurve)),
		BenchmarkVolatility:    annualizedVolatility(benchmarkValues),
	}, nil
}

// validateRange rejects start >= end and an end in the future
func (s *BacktestService) validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", domain.ErrInvalidDateRange)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start %s is not before end %s", domain.ErrInvalidDateRange,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	if end.After(s.now()) {
		return fmt.Errorf("%w: end %s is in the future", domain.ErrInvalidDateRange, end.Format(time.DateOnly))
	}
	return nil
}
