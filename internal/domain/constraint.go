package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Constraint is a per-symbol automated trading rule: buy on a percentage drop,
// sell on a percentage rise, optionally close at a profit target.
type Constraint struct {
	ID                   uuid.UUID `json:"id"`
	OwnerID              uuid.UUID `json:"owner_id"`
	Symbol               string    `json:"symbol"`
	BuyTriggerPercent    float64   `json:"buy_trigger_percent"`  // negative, e.g. -5 means a 5% drop
	SellTriggerPercent   float64   `json:"sell_trigger_percent"` // positive
	ProfitTriggerPercent *float64  `json:"profit_trigger_percent,omitempty"`
	BuyAmount            float64   `json:"buy_amount"`  // currency units
	SellAmount           float64   `json:"sell_amount"` // currency units
	IsActive             bool      `json:"is_active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ConstraintParams holds the user-supplied fields of a new constraint.
type ConstraintParams struct {
	OwnerID              uuid.UUID
	Symbol               string
	BuyTriggerPercent    float64
	SellTriggerPercent   float64
	ProfitTriggerPercent *float64
	BuyAmount            float64
	SellAmount           float64
}

// NewConstraint creates an active constraint, rejecting invalid thresholds.
func NewConstraint(p ConstraintParams) (*Constraint, error) {
	now := time.Now().UTC()
	c := &Constraint{
		ID:                   uuid.New(),
		OwnerID:              p.OwnerID,
		Symbol:               strings.ToUpper(strings.TrimSpace(p.Symbol)),
		BuyTriggerPercent:    p.BuyTriggerPercent,
		SellTriggerPercent:   p.SellTriggerPercent,
		ProfitTriggerPercent: p.ProfitTriggerPercent,
		BuyAmount:            p.BuyAmount,
		SellAmount:           p.SellAmount,
		IsActive:             true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the threshold and amount invariants.
func (c *Constraint) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidConstraint)
	}
	if c.BuyTriggerPercent >= 0 {
		return fmt.Errorf("%w: buy trigger percent must be negative, got %.4f", ErrInvalidConstraint, c.BuyTriggerPercent)
	}
	if c.SellTriggerPercent <= 0 {
		return fmt.Errorf("%w: sell trigger percent must be positive, got %.4f", ErrInvalidConstraint, c.SellTriggerPercent)
	}
	if c.ProfitTriggerPercent != nil && *c.ProfitTriggerPercent <= 0 {
		return fmt.Errorf("%w: profit trigger percent must be positive, got %.4f", ErrInvalidConstraint, *c.ProfitTriggerPercent)
	}
	if c.BuyAmount <= 0 {
		return fmt.Errorf("%w: buy amount must be positive", ErrInvalidConstraint)
	}
	if c.SellAmount <= 0 {
		return fmt.Errorf("%w: sell amount must be positive", ErrInvalidConstraint)
	}
	return nil
}

// HasProfitTarget reports whether a profit trigger is configured.
func (c *Constraint) HasProfitTarget() bool {
	return c.ProfitTriggerPercent != nil && *c.ProfitTriggerPercent > 0
}
