package dto

import (
	"time"

	"stocktrigger/internal/domain"
)

// PositionOutput represents a position in API responses
type PositionOutput struct {
	Symbol        string   `json:"symbol"`
	Quantity      float64  `json:"quantity"`
	AverageCost   float64  `json:"average_cost"`
	CurrentPrice  *float64 `json:"current_price,omitempty"`
	MarketValue   float64  `json:"market_value"`
	UnrealizedPnL float64  `json:"unrealized_pnl"`
	LastUpdated   string   `json:"last_updated"`
}

// NewPositionOutput converts a domain position
func NewPositionOutput(p *domain.Position) PositionOutput {
	return PositionOutput{
		Symbol:        p.Symbol,
		Quantity:      p.Quantity,
		AverageCost:   p.AverageCost,
		CurrentPrice:  p.CurrentPrice,
		MarketValue:   p.MarketValue(),
		UnrealizedPnL: p.UnrealizedPnL(),
		LastUpdated:   p.LastUpdated.Format(time.RFC3339),
	}
}

// TradeOutput represents a trade history entry in API responses
type TradeOutput struct {
	ID           string  `json:"id"`
	ConstraintID *string `json:"constraint_id,omitempty"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	Reason       string  `json:"reason"`
	Quantity     float64 `json:"quantity"`
	Price        float64 `json:"price"`
	TriggerPrice float64 `json:"trigger_price"`
	Value        float64 `json:"value"`
	ExecutedAt   string  `json:"executed_at"`
}

// NewTradeOutput converts a domain trade record
func NewTradeOutput(t *domain.TradeRecord) TradeOutput {
	out := TradeOutput{
		ID:           t.ID.String(),
		Symbol:       t.Symbol,
		Side:         string(t.Side),
		Reason:       string(t.Reason),
		Quantity:     t.Quantity,
		Price:        t.Price,
		TriggerPrice: t.TriggerPrice,
		Value:        t.Value(),
		ExecutedAt:   t.ExecutedAt.Format(time.RFC3339),
	}
	if t.ConstraintID != nil {
		id := t.ConstraintID.String()
		out.ConstraintID = &id
	}
	return out
}
