package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktrigger/internal/domain"
	"stocktrigger/internal/repository/memory"
)

func newProcessorFixture(precedence domain.SellPrecedence) (*TriggerProcessor, *PositionLedger, *memory.TradeRepository, *chanNotifier) {
	ledger := NewPositionLedger(memory.NewPositionRepository())
	trades := memory.NewTradeRepository()
	notifier := &chanNotifier{sent: make(chan domain.TradeRecord, 16)}
	return NewTriggerProcessor(ledger, trades, notifier, precedence), ledger, trades, notifier
}

func triggerEvent(c *domain.Constraint, kind domain.TriggerKind, price, amount float64) domain.TriggerEvent {
	return domain.TriggerEvent{
		ConstraintID: c.ID,
		OwnerID:      c.OwnerID,
		Symbol:       c.Symbol,
		Kind:         kind,
		CurrentPrice: price,
		TriggerPrice: price,
		Amount:       amount,
		Timestamp:    time.Now(),
	}
}

func TestTriggerProcessor_BuyUsesFractionalQuantity(t *testing.T) {
	processor, ledger, trades, notifier := newProcessorFixture(domain.PrecedenceProfit)
	c := testConstraint("AAPL", -5, 10, nil)
	ctx := context.Background()

	record, err := processor.Process(ctx, triggerEvent(c, domain.TriggerBuy, 95, 1000))
	require.NoError(t, err)

	assert.Equal(t, domain.SideBuy, record.Side)
	assert.Equal(t, domain.ReasonPriceDrop, record.Reason)
	assert.InDelta(t, 1000.0/95.0, record.Quantity, 1e-9)
	require.NotNil(t, record.ConstraintID)
	assert.Equal(t, c.ID, *record.ConstraintID)

	p, err := ledger.Position(ctx, c.OwnerID, "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 1000.0/95.0, p.Quantity, 1e-9)
	assert.InDelta(t, 95, p.AverageCost, 1e-9)

	assert.Len(t, trades.All(), 1)

	select {
	case sent := <-notifier.sent:
		assert.Equal(t, record.ID, sent.ID)
	case <-time.After(time.Second):
		t.Fatal("notifier was not called")
	}
}

func TestTriggerProcessor_SellOnFlatPositionLeavesNoTrace(t *testing.T) {
	processor, _, trades, _ := newProcessorFixture(domain.PrecedenceProfit)
	c := testConstraint("AAPL", -5, 10, nil)

	_, err := processor.Process(context.Background(), triggerEvent(c, domain.TriggerSell, 110, 1000))

	assert.ErrorIs(t, err, domain.ErrNothingToSell)
	assert.Empty(t, trades.All())
}

func TestTriggerProcessor_SellIsCappedByHolding(t *testing.T) {
	processor, ledger, _, _ := newProcessorFixture(domain.PrecedenceProfit)
	c := testConstraint("AAPL", -5, 10, nil)
	ctx := context.Background()

	_, err := ledger.ApplyTrade(ctx, c.OwnerID, "AAPL", 2, 100, nil)
	require.NoError(t, err)

	record, err := processor.Process(ctx, triggerEvent(c, domain.TriggerSell, 110, 1000))
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonPriceRise, record.Reason)
	assert.InDelta(t, 2, record.Quantity, 1e-9)
}

type failingTrades struct {
	*memory.TradeRepository
}

func (failingTrades) Save(context.Context, *domain.TradeRecord) error {
	return errors.New("disk full")
}

func TestTriggerProcessor_FailedRecordLeavesPositionUnchanged(t *testing.T) {
	ledger := NewPositionLedger(memory.NewPositionRepository())
	notifier := &chanNotifier{sent: make(chan domain.TradeRecord, 16)}
	processor := NewTriggerProcessor(ledger, failingTrades{memory.NewTradeRepository()}, notifier, domain.PrecedenceProfit)
	c := testConstraint("AAPL", -5, 10, nil)
	ctx := context.Background()

	_, err := ledger.ApplyTrade(ctx, c.OwnerID, "AAPL", 10, 100, nil)
	require.NoError(t, err)

	_, err = processor.Process(ctx, triggerEvent(c, domain.TriggerBuy, 95, 1000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	_, err = processor.Process(ctx, triggerEvent(c, domain.TriggerSell, 110, 550))
	require.Error(t, err)

	p, err := ledger.Position(ctx, c.OwnerID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10.0, p.Quantity)
	assert.Equal(t, 100.0, p.AverageCost)
	assert.Empty(t, notifier.sent)
}

func TestTriggerProcessor_RejectsUnknownKind(t *testing.T) {
	processor, _, _, _ := newProcessorFixture(domain.PrecedenceProfit)
	c := testConstraint("AAPL", -5, 10, nil)

	_, err := processor.Process(context.Background(), triggerEvent(c, "HOLD", 100, 1000))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestResolvePrecedence(t *testing.T) {
	c := testConstraint("AAPL", -5, 10, ptr(5.0))
	other := testConstraint("MSFT", -5, 10, nil)

	sell := triggerEvent(c, domain.TriggerSell, 120, 100)
	profit := triggerEvent(c, domain.TriggerProfit, 120, 100)
	unrelated := triggerEvent(other, domain.TriggerSell, 50, 100)
	events := []domain.TriggerEvent{profit, unrelated, sell}

	kinds := func(es []domain.TriggerEvent) []domain.TriggerKind {
		out := make([]domain.TriggerKind, len(es))
		for i, e := range es {
			out[i] = e.Kind
		}
		return out
	}

	byProfit := ResolvePrecedence(events, domain.PrecedenceProfit)
	assert.Equal(t, []domain.TriggerKind{domain.TriggerProfit, domain.TriggerSell}, kinds(byProfit))
	assert.Equal(t, other.ID, byProfit[1].ConstraintID)

	bySell := ResolvePrecedence(events, domain.PrecedenceSell)
	assert.Equal(t, []domain.TriggerKind{domain.TriggerSell, domain.TriggerSell}, kinds(bySell))
	assert.Equal(t, c.ID, bySell[1].ConstraintID)

	both := ResolvePrecedence(events, domain.PrecedenceBoth)
	require.Len(t, both, 3)
	assert.Equal(t, other.ID, both[0].ConstraintID)
	assert.Equal(t, domain.TriggerSell, both[1].Kind)
	assert.Equal(t, domain.TriggerProfit, both[2].Kind)
}

func TestTriggerProcessor_ProcessAllWithBothPrecedence(t *testing.T) {
	processor, ledger, _, _ := newProcessorFixture(domain.PrecedenceBoth)
	c := testConstraint("AAPL", -5, 10, ptr(20.0))
	ctx := context.Background()

	_, err := ledger.ApplyTrade(ctx, c.OwnerID, "AAPL", 10, 100, nil)
	require.NoError(t, err)

	summary := processor.ProcessAll(ctx, []domain.TriggerEvent{
		triggerEvent(c, domain.TriggerProfit, 150, 1000),
		triggerEvent(c, domain.TriggerSell, 150, 1000),
	})

	assert.Equal(t, 2, summary.Events)
	assert.Equal(t, 0, summary.Dropped)
	assert.Equal(t, 2, summary.Trades)
	require.Len(t, summary.Records, 2)
	assert.Equal(t, domain.ReasonPriceRise, summary.Records[0].Reason)
	assert.InDelta(t, 1000.0/150.0, summary.Records[0].Quantity, 1e-9)
	assert.Equal(t, domain.ReasonProfitTarget, summary.Records[1].Reason)
	assert.InDelta(t, 10-1000.0/150.0, summary.Records[1].Quantity, 1e-9)

	p, err := ledger.Position(ctx, c.OwnerID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Quantity)
}

func TestTriggerProcessor_ProcessAllCountsOutcomes(t *testing.T) {
	processor, ledger, _, _ := newProcessorFixture(domain.PrecedenceProfit)
	held := testConstraint("AAPL", -5, 10, ptr(5.0))
	flat := testConstraint("MSFT", -5, 10, nil)
	ctx := context.Background()

	_, err := ledger.ApplyTrade(ctx, held.OwnerID, "AAPL", 100, 100, nil)
	require.NoError(t, err)

	summary := processor.ProcessAll(ctx, []domain.TriggerEvent{
		triggerEvent(held, domain.TriggerSell, 120, 1200),
		triggerEvent(held, domain.TriggerProfit, 120, 1200),
		triggerEvent(flat, domain.TriggerSell, 50, 100),
		{ConstraintID: uuid.New(), OwnerID: uuid.New(), Symbol: "BAD", Kind: domain.TriggerBuy, CurrentPrice: 0, Amount: 1},
	})

	assert.Equal(t, 4, summary.Events)
	assert.Equal(t, 1, summary.Dropped)
	assert.Equal(t, 1, summary.Trades)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, domain.ReasonProfitTarget, summary.Records[0].Reason)
}

func TestNewTriggerProcessor_InvalidPrecedenceFallsBackToProfit(t *testing.T) {
	processor, _, _, _ := newProcessorFixture("sideways")
	assert.Equal(t, domain.PrecedenceProfit, processor.precedence)
}
