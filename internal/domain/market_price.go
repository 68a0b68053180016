package domain

import (
	"context"
	"time"
)

// PriceFeed supplies current and historical prices per symbol.
// Failures are *PriceFeedError values.
type PriceFeed interface {
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetCurrentPrices(ctx context.Context, symbols []string) (map[string]float64, error)
	GetHistoricalPrices(ctx context.Context, symbol string, start, end time.Time) ([]PricePoint, error)
	ValidateSymbol(ctx context.Context, symbol string) (bool, error)
}

// MarketHours tells whether the exchange is open at t.
type MarketHours interface {
	IsOpen(t time.Time) bool
}

// NotificationService is a best-effort sink for executed trades.
type NotificationService interface {
	SendTrade(trade TradeRecord) error
}
