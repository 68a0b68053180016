package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stocktrigger/internal/domain"
	"stocktrigger/pkg/logger"
)

// ProcessSummary counts the outcome of one ProcessAll call
type ProcessSummary struct {
	Events  int                   `json:"events"`
	Dropped int                   `json:"dropped"` // removed by sell precedence
	Trades  int                   `json:"trades"`
	Skipped int                   `json:"skipped"` // nothing to sell
	Failed  int                   `json:"failed"`
	Records []*domain.TradeRecord `json:"records,omitempty"`
}

// TriggerProcessor turns trigger events into simulated trades
type TriggerProcessor struct {
	ledger     *PositionLedger
	trades     domain.TradeRepository
	notifier   domain.NotificationService
	precedence domain.SellPrecedence
	now        func() time.Time
}

// NewTriggerProcessor creates a new TriggerProcessor. notifier may be nil.
func NewTriggerProcessor(
	ledger *PositionLedger,
	trades domain.TradeRepository,
	notifier domain.NotificationService,
	precedence domain.SellPrecedence,
) *TriggerProcessor {
	if !precedence.Valid() {
		precedence = domain.PrecedenceProfit
	}
	return &TriggerProcessor{
		ledger:     ledger,
		trades:     trades,
		notifier:   notifier,
		precedence: precedence,
		now:        time.Now,
	}
}

// Process executes one event. SELL and PROFIT on a flat position return
// domain.ErrNothingToSell and leave no trace.
func (p *TriggerProcessor) Process(ctx context.Context, event domain.TriggerEvent) (*domain.TradeRecord, error) {
	if event.CurrentPrice <= 0 {
		return nil, fmt.Errorf("%w: event price must be positive", domain.ErrInvalidInput)
	}
	if event.Amount <= 0 {
		return nil, fmt.Errorf("%w: event amount must be positive", domain.ErrInvalidInput)
	}

	requested := event.Amount / event.CurrentPrice

	constraintID := event.ConstraintID
	record := &domain.TradeRecord{
		ID:           uuid.New(),
		OwnerID:      event.OwnerID,
		ConstraintID: &constraintID,
		Symbol:       event.Symbol,
		Price:        event.CurrentPrice,
		TriggerPrice: event.TriggerPrice,
		ExecutedAt:   p.now().UTC(),
	}

	// the record is saved inside the position change, so a failed save leaves
	// the position untouched
	journal := func(ctx context.Context, quantity float64) error {
		record.Quantity = quantity
		if err := p.trades.Save(ctx, record); err != nil {
			return fmt.Errorf("failed to record trade: %w", err)
		}
		return nil
	}

	switch event.Kind {
	case domain.TriggerBuy:
		record.Side, record.Reason = domain.SideBuy, domain.ReasonPriceDrop
		if _, err := p.ledger.ApplyTrade(ctx, event.OwnerID, event.Symbol, requested, event.CurrentPrice, journal); err != nil {
			return nil, fmt.Errorf("failed to apply buy: %w", err)
		}

	case domain.TriggerSell, domain.TriggerProfit:
		record.Side, record.Reason = domain.SideSell, domain.ReasonPriceRise
		if event.Kind == domain.TriggerProfit {
			record.Reason = domain.ReasonProfitTarget
		}
		if _, _, err := p.ledger.Sell(ctx, event.OwnerID, event.Symbol, requested, event.CurrentPrice, journal); err != nil {
			if errors.Is(err, domain.ErrNothingToSell) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to apply sell: %w", err)
		}

	default:
		return nil, fmt.Errorf("%w: unknown trigger kind %q", domain.ErrInvalidInput, event.Kind)
	}

	p.notify(*record)
	return record, nil
}

// ProcessAll resolves SELL/PROFIT precedence per constraint and processes each
// remaining event independently. Cancellation is checked between events.
func (p *TriggerProcessor) ProcessAll(ctx context.Context, events []domain.TriggerEvent) ProcessSummary {
	resolved := ResolvePrecedence(events, p.precedence)
	summary := ProcessSummary{
		Events:  len(events),
		Dropped: len(events) - len(resolved),
	}

	for _, event := range resolved {
		if ctx.Err() != nil {
			logger.Warn("[WARN] Trigger processing cancelled with events pending")
			break
		}

		record, err := p.Process(ctx, event)
		switch {
		case errors.Is(err, domain.ErrNothingToSell):
			logger.Info("No %s position for owner %s, skipping %s trigger", event.Symbol, event.OwnerID, event.Kind)
			summary.Skipped++
		case err != nil:
			logger.Error("[ERR] %s trigger for %s (constraint %s) failed: %v", event.Kind, event.Symbol, event.ConstraintID, err)
			summary.Failed++
		default:
			logger.Info("[OK] %s %s %.6f @ %.4f (%s)", record.Side, record.Symbol, record.Quantity, record.Price, record.Reason)
			summary.Trades++
			summary.Records = append(summary.Records, record)
		}
	}

	return summary
}

// ResolvePrecedence applies precedence to constraints that fired both SELL and
// PROFIT. Other events keep their order; with PrecedenceBoth the SELL is moved
// ahead of the PROFIT.
func ResolvePrecedence(events []domain.TriggerEvent, precedence domain.SellPrecedence) []domain.TriggerEvent {
	type kinds struct{ sell, profit bool }
	fired := make(map[uuid.UUID]*kinds)
	for _, e := range events {
		k, ok := fired[e.ConstraintID]
		if !ok {
			k = &kinds{}
			fired[e.ConstraintID] = k
		}
		switch e.Kind {
		case domain.TriggerSell:
			k.sell = true
		case domain.TriggerProfit:
			k.profit = true
		}
	}

	out := make([]domain.TriggerEvent, 0, len(events))
	deferred := make(map[uuid.UUID][]domain.TriggerEvent)
	sellSeen := make(map[uuid.UUID]bool)

	for _, e := range events {
		k := fired[e.ConstraintID]
		if !k.sell || !k.profit {
			out = append(out, e)
			continue
		}

		switch precedence {
		case domain.PrecedenceSell:
			if e.Kind != domain.TriggerProfit {
				out = append(out, e)
			}
		case domain.PrecedenceBoth:
			if e.Kind == domain.TriggerProfit && !sellSeen[e.ConstraintID] {
				deferred[e.ConstraintID] = append(deferred[e.ConstraintID], e)
				continue
			}
			out = append(out, e)
			if e.Kind == domain.TriggerSell {
				sellSeen[e.ConstraintID] = true
				out = append(out, deferred[e.ConstraintID]...)
				delete(deferred, e.ConstraintID)
			}
		default:
			if e.Kind != domain.TriggerSell {
				out = append(out, e)
			}
		}
	}

	return out
}

func (p *TriggerProcessor) notify(record domain.TradeRecord) {
	if p.notifier == nil {
		return
	}
	go func() {
		if err := p.notifier.SendTrade(record); err != nil {
			logger.Debug("Trade notification failed: %v", err)
		}
	}()
}
