package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stocktrigger/internal/domain"
	"stocktrigger/pkg/logger"
)

// EvaluatorConfig configures a TriggerEvaluator
type EvaluatorConfig struct {
	BaselineTTL    time.Duration
	MaxConcurrency int
	Now            func() time.Time
}

// EvaluateStats counts what one Evaluate call saw
type EvaluateStats struct {
	Constraints      int `json:"constraints"`
	Symbols          int `json:"symbols"`
	SkippedBlank     int `json:"skipped_blank"`
	FeedFailures     int `json:"feed_failures"`
	StoreFailures    int `json:"store_failures"`
	ColdStarts       int `json:"cold_starts"`
	Events           int `json:"events"`
	CancelledSymbols int `json:"cancelled_symbols"`
	PositionErrors   int `json:"position_errors"`
}

// TriggerEvaluator turns active constraints plus live prices into trigger events
type TriggerEvaluator struct {
	feed           domain.PriceFeed
	baselines      domain.PriceBaselineStore
	positions      domain.PositionRepository
	baselineTTL    time.Duration
	maxConcurrency int
	now            func() time.Time
}

// NewTriggerEvaluator creates a new TriggerEvaluator
func NewTriggerEvaluator(
	feed domain.PriceFeed,
	baselines domain.PriceBaselineStore,
	positions domain.PositionRepository,
	cfg EvaluatorConfig,
) *TriggerEvaluator {
	if cfg.BaselineTTL <= 0 {
		cfg.BaselineTTL = time.Hour
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TriggerEvaluator{
		feed:           feed,
		baselines:      baselines,
		positions:      positions,
		baselineTTL:    cfg.BaselineTTL,
		maxConcurrency: cfg.MaxConcurrency,
		now:            cfg.Now,
	}
}

type priceResult struct {
	price float64
	err   error
}

// Evaluate computes the trigger events of one tick. Failures are contained per
// symbol; cancellation is checked only between symbols.
func (e *TriggerEvaluator) Evaluate(ctx context.Context, constraints []*domain.Constraint) ([]domain.TriggerEvent, EvaluateStats) {
	stats := EvaluateStats{Constraints: len(constraints)}

	bySymbol := make(map[string][]*domain.Constraint)
	for _, c := range constraints {
		symbol := strings.ToUpper(strings.TrimSpace(c.Symbol))
		if symbol == "" {
			logger.Warn("[WARN] Skipping constraint %s: symbol is empty", c.ID)
			stats.SkippedBlank++
			continue
		}
		bySymbol[symbol] = append(bySymbol[symbol], c)
	}

	symbols := make([]string, 0, len(bySymbol))
	for symbol := range bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	stats.Symbols = len(symbols)

	if len(symbols) == 0 {
		return nil, stats
	}

	prices := e.fetchPrices(ctx, symbols)
	now := e.now()

	var events []domain.TriggerEvent
	for i, symbol := range symbols {
		if ctx.Err() != nil {
			stats.CancelledSymbols = len(symbols) - i
			logger.Warn("[WARN] Evaluation cancelled, %d symbols not evaluated", stats.CancelledSymbols)
			break
		}

		res := prices[symbol]
		if res.err != nil {
			logger.Warn("[WARN] Skipping %s this tick, price fetch failed: %v", symbol, res.err)
			stats.FeedFailures++
			continue
		}

		symbolEvents, cold, err := e.evaluateSymbol(ctx, symbol, res.price, bySymbol[symbol], now, &stats)
		if err != nil {
			logger.Error("[ERR] Skipping %s this tick, baseline store failed: %v", symbol, err)
			stats.StoreFailures++
			continue
		}
		if cold {
			stats.ColdStarts++
			continue
		}
		events = append(events, symbolEvents...)
	}

	stats.Events = len(events)
	return events, stats
}

func (e *TriggerEvaluator) fetchPrices(ctx context.Context, symbols []string) map[string]priceResult {
	results := make(map[string]priceResult, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			price, err := e.feed.GetCurrentPrice(gctx, symbol)
			if err == nil && (price <= 0 || math.IsNaN(price) || math.IsInf(price, 0)) {
				err = domain.NewPriceFeedError(domain.FeedUnavailable, symbol, errors.New("non-positive price"))
			}

			mu.Lock()
			results[symbol] = priceResult{price: price, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// evaluateSymbol advances the baseline for symbol and returns the events of its
// constraints. cold is true when no usable baseline existed.
func (e *TriggerEvaluator) evaluateSymbol(
	ctx context.Context,
	symbol string,
	current float64,
	constraints []*domain.Constraint,
	now time.Time,
	stats *EvaluateStats,
) (events []domain.TriggerEvent, cold bool, err error) {
	previous, found, err := e.baselines.Get(ctx, symbol)
	if err != nil {
		return nil, false, err
	}

	if err := e.baselines.Set(ctx, symbol, current, e.baselineTTL); err != nil {
		if !found {
			return nil, false, err
		}
		logger.Warn("[WARN] Failed to advance baseline for %s: %v", symbol, err)
	}

	if !found || previous <= 0 {
		logger.Debug("Baseline for %s initialised at %.4f", symbol, current)
		return nil, true, nil
	}

	pctChange := (current - previous) / previous * 100

	for _, c := range constraints {
		events = append(events, evaluatePriceRules(c, symbol, previous, current, pctChange, now)...)

		if !c.HasProfitTarget() {
			continue
		}
		position, err := e.positions.GetByOwnerAndSymbol(ctx, c.OwnerID, symbol)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				logger.Warn("[WARN] Position lookup failed for %s/%s: %v", c.OwnerID, symbol, err)
				stats.PositionErrors++
			}
			continue
		}
		if event, ok := evaluateProfitRule(c, symbol, position, current, now); ok {
			events = append(events, event)
		}
	}

	return events, false, nil
}

// evaluatePriceRules applies the BUY and SELL thresholds. Both are inclusive.
func evaluatePriceRules(c *domain.Constraint, symbol string, previous, current, pctChange float64, now time.Time) []domain.TriggerEvent {
	var events []domain.TriggerEvent

	buyThreshold := math.Abs(c.BuyTriggerPercent)
	if pctChange <= -buyThreshold {
		events = append(events, domain.TriggerEvent{
			ConstraintID: c.ID,
			OwnerID:      c.OwnerID,
			Symbol:       symbol,
			Kind:         domain.TriggerBuy,
			CurrentPrice: current,
			TriggerPrice: previous * (1 - buyThreshold/100),
			Amount:       c.BuyAmount,
			Timestamp:    now,
		})
	}

	if pctChange >= c.SellTriggerPercent {
		events = append(events, domain.TriggerEvent{
			ConstraintID: c.ID,
			OwnerID:      c.OwnerID,
			Symbol:       symbol,
			Kind:         domain.TriggerSell,
			CurrentPrice: current,
			TriggerPrice: previous * (1 + c.SellTriggerPercent/100),
			Amount:       c.SellAmount,
			Timestamp:    now,
		})
	}

	return events
}

// evaluateProfitRule fires when the owner's open position has gained at least
// the profit target over its average cost
func evaluateProfitRule(c *domain.Constraint, symbol string, position *domain.Position, current float64, now time.Time) (domain.TriggerEvent, bool) {
	if !position.IsOpen() || position.AverageCost <= 0 {
		return domain.TriggerEvent{}, false
	}

	target := *c.ProfitTriggerPercent
	if position.ProfitPercent(current) < target {
		return domain.TriggerEvent{}, false
	}

	return domain.TriggerEvent{
		ConstraintID: c.ID,
		OwnerID:      c.OwnerID,
		Symbol:       symbol,
		Kind:         domain.TriggerProfit,
		CurrentPrice: current,
		TriggerPrice: position.AverageCost * (1 + target/100),
		Amount:       c.SellAmount,
		Timestamp:    now,
	}, true
}
