package http

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"stocktrigger/internal/delivery/http/dto"
	"stocktrigger/internal/domain"
	"stocktrigger/internal/middleware"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 500
)

// PositionReader looks up one owner position
type PositionReader interface {
	Position(ctx context.Context, ownerID uuid.UUID, symbol string) (*domain.Position, error)
}

// ConstraintReader looks up an owner's constraints on one symbol
type ConstraintReader interface {
	GetByOwnerAndSymbol(ctx context.Context, ownerID uuid.UUID, symbol string) ([]*domain.Constraint, error)
}

// UserHandler serves an owner's simulated positions, constraints and trade history
type UserHandler struct {
	positions   PositionReader
	constraints ConstraintReader
	trades      domain.TradeRepository
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(positions PositionReader, constraints ConstraintReader, trades domain.TradeRepository) *UserHandler {
	return &UserHandler{positions: positions, constraints: constraints, trades: trades}
}

// GetPosition returns the caller's position in one symbol
// GET /api/user/positions/:symbol
func (h *UserHandler) GetPosition(c echo.Context) error {
	ownerID, err := h.ownerID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Owner not authenticated")
	}

	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		return BadRequestResponse(c, "Symbol is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	position, err := h.positions.Position(ctx, ownerID, symbol)
	if err != nil {
		return DomainErrorResponse(c, "Failed to get position", err)
	}

	return SuccessResponse(c, dto.NewPositionOutput(position))
}

// GetConstraints returns the caller's constraints on one symbol, active or not
// GET /api/user/constraints/:symbol
func (h *UserHandler) GetConstraints(c echo.Context) error {
	ownerID, err := h.ownerID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Owner not authenticated")
	}

	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		return BadRequestResponse(c, "Symbol is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	constraints, err := h.constraints.GetByOwnerAndSymbol(ctx, ownerID, symbol)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to get constraints", err)
	}
	if constraints == nil {
		constraints = []*domain.Constraint{}
	}

	return SuccessResponse(c, constraints)
}

// GetTrades returns the caller's most recent trades
// GET /api/user/trades?limit=
func (h *UserHandler) GetTrades(c echo.Context) error {
	ownerID, err := h.ownerID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Owner not authenticated")
	}

	limit := defaultTradeLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return BadRequestResponse(c, "limit must be a positive integer")
		}
		limit = min(n, maxTradeLimit)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	trades, err := h.trades.GetByOwner(ctx, ownerID, limit)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to get trades", err)
	}

	output := make([]dto.TradeOutput, 0, len(trades))
	for _, t := range trades {
		output = append(output, dto.NewTradeOutput(t))
	}

	return SuccessResponse(c, output)
}

// ownerID prefers the token owner; admins may pass ?owner_id= instead
func (h *UserHandler) ownerID(c echo.Context) (uuid.UUID, error) {
	if id, err := middleware.GetOwnerID(c); err == nil {
		return id, nil
	}

	role, _ := c.Get("role").(string)
	if role != middleware.RoleAdmin {
		return uuid.Nil, domain.ErrInvalidInput
	}
	return uuid.Parse(c.QueryParam("owner_id"))
}
