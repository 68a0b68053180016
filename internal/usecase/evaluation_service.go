package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opentracing/opentracing-go"

	"stocktrigger/internal/domain"
	"stocktrigger/internal/metrics"
	"stocktrigger/internal/service"
	"stocktrigger/pkg/logger"
	"stocktrigger/pkg/tracing"
)

const releaseTimeout = 5 * time.Second

// EvaluationService runs evaluation ticks and bulk price refreshes
type EvaluationService struct {
	constraints domain.ConstraintRepository
	positions   domain.PositionRepository
	feed        domain.PriceFeed
	lock        domain.EvaluationLock
	evaluator   *service.TriggerEvaluator
	processor   *service.TriggerProcessor
	ledger      *service.PositionLedger
	metrics     *metrics.Metrics
	lockLease   time.Duration

	running atomic.Bool

	mu      sync.Mutex
	lastRun *domain.EvaluationSummary
	lastAt  *time.Time
}

// NewEvaluationService creates a new EvaluationService
func NewEvaluationService(
	constraints domain.ConstraintRepository,
	positions domain.PositionRepository,
	feed domain.PriceFeed,
	lock domain.EvaluationLock,
	evaluator *service.TriggerEvaluator,
	processor *service.TriggerProcessor,
	ledger *service.PositionLedger,
	m *metrics.Metrics,
	lockLease time.Duration,
) *EvaluationService {
	if lockLease <= 0 {
		lockLease = 30 * time.Second
	}
	return &EvaluationService{
		constraints: constraints,
		positions:   positions,
		feed:        feed,
		lock:        lock,
		evaluator:   evaluator,
		processor:   processor,
		ledger:      ledger,
		metrics:     m,
		lockLease:   lockLease,
	}
}

// RunEvaluation performs one tick under the evaluation lock. When a tick is
// already running here, or another holder has the lock, it returns a skipped
// summary and domain.ErrLockUnavailable.
func (s *EvaluationService) RunEvaluation(ctx context.Context) (*domain.EvaluationSummary, error) {
	span, ctx := tracing.StartSpan(ctx, "EvaluationService.RunEvaluation")
	defer span.Finish()

	// the lease is shared across processes; this flag covers overlapping
	// scheduled and manual runs inside this one
	if !s.running.CompareAndSwap(false, true) {
		return s.skip(span)
	}
	defer s.running.Store(false)

	acquired, err := s.lock.TryAcquire(ctx, s.lockLease)
	if err != nil {
		s.metrics.EvaluationRuns.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to acquire evaluation lock: %w", err)
	}
	if !acquired {
		return s.skip(span)
	}
	defer s.releaseLock(ctx)

	s.metrics.EvaluationRunning.Set(1)
	defer s.metrics.EvaluationRunning.Set(0)

	startTime := time.Now()
	logger.Info("=== Starting Constraint Evaluation ===")

	constraints, err := s.constraints.GetActive(ctx)
	if err != nil {
		s.metrics.EvaluationRuns.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to load active constraints: %w", err)
	}
	s.metrics.ActiveConstraints.Set(float64(len(constraints)))

	events, stats := s.evaluator.Evaluate(ctx, constraints)
	for _, e := range events {
		s.metrics.TriggerEvents.WithLabelValues(string(e.Kind)).Inc()
	}
	s.metrics.FeedFailures.Add(float64(stats.FeedFailures))
	s.metrics.StoreFailures.Add(float64(stats.StoreFailures))

	processed := s.processor.ProcessAll(ctx, events)
	for _, r := range processed.Records {
		s.metrics.TradesExecuted.WithLabelValues(string(r.Side), string(r.Reason)).Inc()
	}
	s.metrics.TradeFailures.Add(float64(processed.Failed))

	elapsed := time.Since(startTime)
	summary := &domain.EvaluationSummary{
		Constraints:   len(constraints),
		Symbols:       stats.Symbols,
		Events:        len(events),
		Trades:        processed.Trades,
		SkippedTrades: processed.Skipped + processed.Dropped,
		Failures:      stats.FeedFailures + stats.StoreFailures + processed.Failed,
		Duration:      elapsed,
	}

	s.metrics.EvaluationRuns.WithLabelValues("completed").Inc()
	s.metrics.EvaluationDuration.Observe(elapsed.Seconds())
	span.SetTag("events", summary.Events)
	span.SetTag("trades", summary.Trades)

	finishedAt := time.Now().UTC()
	s.mu.Lock()
	s.lastRun = summary
	s.lastAt = &finishedAt
	s.mu.Unlock()

	logger.Info("=== Evaluation Complete: %d constraints, %d symbols, %d events, %d trades, %d failures in %.2fs ===",
		summary.Constraints, summary.Symbols, summary.Events, summary.Trades, summary.Failures, elapsed.Seconds())

	return summary, nil
}

func (s *EvaluationService) skip(span opentracing.Span) (*domain.EvaluationSummary, error) {
	s.metrics.EvaluationRuns.WithLabelValues("skipped").Inc()
	span.SetTag("skipped", true)
	return &domain.EvaluationSummary{Skipped: true}, domain.ErrLockUnavailable
}

func (s *EvaluationService) releaseLock(ctx context.Context) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := s.lock.Release(releaseCtx); err != nil {
		logger.Warn("[WARN] Failed to release evaluation lock, it will expire after %s: %v", s.lockLease, err)
	}
}

// RefreshPrices updates current prices on all open positions. It does not take
// the evaluation lock.
func (s *EvaluationService) RefreshPrices(ctx context.Context) (*domain.RefreshSummary, error) {
	span, ctx := tracing.StartSpan(ctx, "EvaluationService.RefreshPrices")
	defer span.Finish()

	startTime := time.Now()

	open, err := s.positions.GetOpenPositions(ctx)
	if err != nil {
		s.metrics.PriceRefreshRuns.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to get open positions: %w", err)
	}

	summary := &domain.RefreshSummary{Positions: len(open)}
	if len(open) == 0 {
		s.metrics.PriceRefreshRuns.WithLabelValues("completed").Inc()
		summary.Duration = time.Since(startTime)
		return summary, nil
	}

	symbolSet := make(map[string]bool)
	for _, p := range open {
		symbolSet[strings.ToUpper(p.Symbol)] = true
	}
	symbols := make([]string, 0, len(symbolSet))
	for symbol := range symbolSet {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	summary.Symbols = len(symbols)

	prices, fetchErr := s.feed.GetCurrentPrices(ctx, symbols)
	if fetchErr != nil {
		logger.Warn("[WARN] Price refresh incomplete: %v", fetchErr)
	}
	for _, symbol := range symbols {
		if _, ok := prices[symbol]; !ok {
			summary.Missing = append(summary.Missing, symbol)
		}
	}
	s.metrics.MissingPriceSymbols.Add(float64(len(summary.Missing)))

	if len(prices) == 0 {
		s.metrics.PriceRefreshRuns.WithLabelValues("failed").Inc()
		if fetchErr == nil {
			fetchErr = domain.ErrFeedUnavailable
		}
		return summary, fmt.Errorf("no prices available for %d symbols: %w", len(symbols), fetchErr)
	}

	updated, err := s.ledger.RefreshPrices(ctx, prices)
	if err != nil {
		s.metrics.PriceRefreshRuns.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("failed to update position prices: %w", err)
	}
	summary.Updated = updated
	summary.Duration = time.Since(startTime)

	s.metrics.PositionsRefreshed.Add(float64(updated))
	s.metrics.PriceRefreshRuns.WithLabelValues("completed").Inc()

	logger.Info("[OK] Refreshed prices for %d positions across %d symbols (%d missing)",
		updated, len(symbols), len(summary.Missing))

	return summary, nil
}

// Status reports whether a tick is running here and how many constraints are active
func (s *EvaluationService) Status(ctx context.Context) (*domain.EvaluationStatus, error) {
	count, err := s.constraints.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count active constraints: %w", err)
	}

	status := &domain.EvaluationStatus{
		IsRunning:             s.running.Load(),
		ActiveConstraintCount: count,
	}

	s.mu.Lock()
	if s.lastRun != nil {
		at := *s.lastAt
		status.LastRunAt = &at
		status.LastRunEvents = s.lastRun.Events
		status.LastRunTrades = s.lastRun.Trades
	}
	s.mu.Unlock()

	return status, nil
}
