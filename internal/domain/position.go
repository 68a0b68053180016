package domain

import (
	"time"

	"github.com/google/uuid"
)

// Position is the simulated holding of one owner in one symbol.
// AverageCost is the quantity-weighted mean of the buys still held; it is 0 when
// Quantity is 0.
type Position struct {
	OwnerID      uuid.UUID `json:"owner_id"`
	Symbol       string    `json:"symbol"`
	Quantity     float64   `json:"quantity"`
	AverageCost  float64   `json:"average_cost"`
	CurrentPrice *float64  `json:"current_price,omitempty"`
	LastUpdated  time.Time `json:"last_updated"`
}

// IsOpen reports whether the position holds shares.
func (p *Position) IsOpen() bool {
	return p != nil && p.Quantity > 0
}

// ProfitPercent returns the gain of price over the average cost, in percent.
func (p *Position) ProfitPercent(price float64) float64 {
	if p.AverageCost == 0 {
		return 0
	}
	return (price - p.AverageCost) / p.AverageCost * 100
}

// MarketValue uses the last refreshed price, falling back to cost basis.
func (p *Position) MarketValue() float64 {
	if p.CurrentPrice != nil {
		return p.Quantity * *p.CurrentPrice
	}
	return p.Quantity * p.AverageCost
}

// UnrealizedPnL is zero until a current price has been recorded.
func (p *Position) UnrealizedPnL() float64 {
	if p.CurrentPrice == nil {
		return 0
	}
	return (*p.CurrentPrice - p.AverageCost) * p.Quantity
}
