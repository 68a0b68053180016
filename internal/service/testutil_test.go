package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stocktrigger/internal/domain"
)

// fakeFeed serves fixed prices and series. Symbols in errs fail.
type fakeFeed struct {
	mu          sync.Mutex
	prices      map[string]float64
	errs        map[string]error
	history     map[string][]domain.PricePoint
	historyHits int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		prices:  make(map[string]float64),
		errs:    make(map[string]error),
		history: make(map[string][]domain.PricePoint),
	}
}

func (f *fakeFeed) setPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

func (f *fakeFeed) GetCurrentPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	symbol = strings.ToUpper(symbol)
	if err, ok := f.errs[symbol]; ok {
		return 0, err
	}
	price, ok := f.prices[symbol]
	if !ok {
		return 0, domain.NewPriceFeedError(domain.FeedInvalidSymbol, symbol, nil)
	}
	return price, nil
}

func (f *fakeFeed) GetCurrentPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, s := range symbols {
		if p, err := f.GetCurrentPrice(ctx, s); err == nil {
			out[strings.ToUpper(s)] = p
		}
	}
	return out, nil
}

func (f *fakeFeed) GetHistoricalPrices(_ context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.historyHits++
	if err, ok := f.errs[strings.ToUpper(symbol)]; ok {
		return nil, err
	}
	var out []domain.PricePoint
	for _, p := range f.history[strings.ToUpper(symbol)] {
		if !p.Date.Before(start) && !p.Date.After(end) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeFeed) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	_, err := f.GetCurrentPrice(ctx, symbol)
	return err == nil, nil
}

// chanNotifier forwards every trade to a channel
type chanNotifier struct {
	sent chan domain.TradeRecord
}

func (n *chanNotifier) SendTrade(trade domain.TradeRecord) error {
	n.sent <- trade
	return nil
}

func testConstraint(symbol string, buy, sell float64, profit *float64) *domain.Constraint {
	c, err := domain.NewConstraint(domain.ConstraintParams{
		OwnerID:              uuid.New(),
		Symbol:               symbol,
		BuyTriggerPercent:    buy,
		SellTriggerPercent:   sell,
		ProfitTriggerPercent: profit,
		BuyAmount:            1000,
		SellAmount:           1000,
	})
	if err != nil {
		panic(err)
	}
	return c
}

func dailySeries(start time.Time, prices ...float64) []domain.PricePoint {
	out := make([]domain.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = domain.PricePoint{Date: start.AddDate(0, 0, i), Price: p}
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}
