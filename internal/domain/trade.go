package domain

import (
	"time"

	"github.com/google/uuid"
)

// TriggerKind identifies which rule of a constraint fired.
type TriggerKind string

const (
	TriggerBuy    TriggerKind = "BUY"
	TriggerSell   TriggerKind = "SELL"
	TriggerProfit TriggerKind = "PROFIT"
)

// TriggerEvent is produced once per qualifying tick per constraint and rule.
type TriggerEvent struct {
	ConstraintID uuid.UUID   `json:"constraint_id"`
	OwnerID      uuid.UUID   `json:"owner_id"`
	Symbol       string      `json:"symbol"`
	Kind         TriggerKind `json:"kind"`
	CurrentPrice float64     `json:"current_price"`
	TriggerPrice float64     `json:"trigger_price"` // theoretical threshold price that fired
	Amount       float64     `json:"amount"`        // currency units requested
	Timestamp    time.Time   `json:"timestamp"`
}

// TradeSide constants
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// TradeReason constants
type TradeReason string

const (
	ReasonPriceDrop    TradeReason = "PRICE_DROP"
	ReasonPriceRise    TradeReason = "PRICE_RISE"
	ReasonProfitTarget TradeReason = "PROFIT_TARGET"
)

// TradeRecord is an append-only audit entry for a simulated trade.
type TradeRecord struct {
	ID           uuid.UUID   `json:"id"`
	OwnerID      uuid.UUID   `json:"owner_id"`
	ConstraintID *uuid.UUID  `json:"constraint_id,omitempty"`
	Symbol       string      `json:"symbol"`
	Side         TradeSide   `json:"side"`
	Reason       TradeReason `json:"reason"`
	Quantity     float64     `json:"quantity"`
	Price        float64     `json:"price"`
	TriggerPrice float64     `json:"trigger_price"`
	ExecutedAt   time.Time   `json:"executed_at"`
}

// Value is the currency amount exchanged.
func (t *TradeRecord) Value() float64 {
	return t.Quantity * t.Price
}

// SellPrecedence decides what happens when SELL and PROFIT fire for the same
// constraint in the same tick.
type SellPrecedence string

const (
	// PrecedenceProfit executes PROFIT and drops SELL.
	PrecedenceProfit SellPrecedence = "profit"
	// PrecedenceSell executes SELL and drops PROFIT.
	PrecedenceSell SellPrecedence = "sell"
	// PrecedenceBoth executes both, SELL first; the second is capped by what is left.
	PrecedenceBoth SellPrecedence = "both"
)

// Valid reports whether p is a known precedence.
func (p SellPrecedence) Valid() bool {
	switch p {
	case PrecedenceProfit, PrecedenceSell, PrecedenceBoth:
		return true
	}
	return false
}
