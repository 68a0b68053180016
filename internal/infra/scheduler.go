package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"stocktrigger/internal/domain"
	"stocktrigger/pkg/logger"
)

// EvaluationRunner is the work the scheduler drives
type EvaluationRunner interface {
	RunEvaluation(ctx context.Context) (*domain.EvaluationSummary, error)
	RefreshPrices(ctx context.Context) (*domain.RefreshSummary, error)
}

// SchedulerConfig holds the two cadences
type SchedulerConfig struct {
	EvaluationInterval time.Duration
	RefreshInterval    time.Duration
	// JobTimeout bounds one scheduled run; zero means the cadence interval
	JobTimeout time.Duration
}

// Scheduler manages the evaluation and price refresh cadences
type Scheduler struct {
	cron   *cron.Cron
	runner EvaluationRunner
	market domain.MarketHours
	cfg    SchedulerConfig
	now    func() time.Time
}

// NewScheduler creates a new scheduler. Overlapping runs of the same job are
// dropped, never queued.
func NewScheduler(runner EvaluationRunner, market domain.MarketHours, cfg SchedulerConfig) *Scheduler {
	if cfg.EvaluationInterval <= 0 {
		cfg.EvaluationInterval = time.Minute
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Minute
	}

	cronLogger := cron.PrintfLogger(logger.Std())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		runner: runner,
		market: market,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Start registers both jobs and starts the cron scheduler
func (s *Scheduler) Start() error {
	logger.Info("Starting scheduler...")

	evalSpec := fmt.Sprintf("@every %s", s.cfg.EvaluationInterval)
	if _, err := s.cron.AddFunc(evalSpec, s.evaluationJob); err != nil {
		return fmt.Errorf("failed to schedule evaluation: %w", err)
	}

	refreshSpec := fmt.Sprintf("@every %s", s.cfg.RefreshInterval)
	if _, err := s.cron.AddFunc(refreshSpec, s.refreshJob); err != nil {
		return fmt.Errorf("failed to schedule price refresh: %w", err)
	}

	s.cron.Start()
	logger.Info("[OK] Scheduler started: evaluation %s, price refresh %s (market hours only)",
		s.cfg.EvaluationInterval, s.cfg.RefreshInterval)

	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	logger.Info("Stopping scheduler...")
	<-s.cron.Stop().Done()
	logger.Info("[OK] Scheduler stopped")
}

func (s *Scheduler) evaluationJob() {
	if !s.market.IsOpen(s.now()) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout(s.cfg.EvaluationInterval))
	defer cancel()

	if _, err := s.TriggerEvaluationNow(ctx); err != nil && !errors.Is(err, domain.ErrLockUnavailable) {
		logger.Error("[ERR] Scheduled evaluation failed: %v", err)
	}
}

func (s *Scheduler) refreshJob() {
	if !s.market.IsOpen(s.now()) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout(s.cfg.RefreshInterval))
	defer cancel()

	if _, err := s.TriggerPriceRefreshNow(ctx); err != nil {
		logger.Error("[ERR] Scheduled price refresh failed: %v", err)
	}
}

func (s *Scheduler) jobTimeout(interval time.Duration) time.Duration {
	if s.cfg.JobTimeout > 0 {
		return s.cfg.JobTimeout
	}
	return interval
}

// TriggerEvaluationNow runs one evaluation synchronously regardless of schedule
// and market hours. The evaluation lock still applies: a held lock yields a
// skipped summary with domain.ErrLockUnavailable.
func (s *Scheduler) TriggerEvaluationNow(ctx context.Context) (*domain.EvaluationSummary, error) {
	summary, err := s.runner.RunEvaluation(ctx)
	if errors.Is(err, domain.ErrLockUnavailable) {
		logger.Info("Evaluation skipped: another run holds the lock")
	}
	return summary, err
}

// TriggerPriceRefreshNow runs one price refresh synchronously regardless of
// schedule and market hours
func (s *Scheduler) TriggerPriceRefreshNow(ctx context.Context) (*domain.RefreshSummary, error) {
	return s.runner.RefreshPrices(ctx)
}
