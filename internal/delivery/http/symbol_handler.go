package http

import (
	"context"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// SymbolValidator checks symbols against the price provider
type SymbolValidator interface {
	ValidateSymbol(ctx context.Context, symbol string) (bool, error)
}

// SymbolHandler lets clients check a symbol before creating a constraint for it
type SymbolHandler struct {
	validator SymbolValidator
}

// NewSymbolHandler creates a new SymbolHandler
func NewSymbolHandler(validator SymbolValidator) *SymbolHandler {
	return &SymbolHandler{validator: validator}
}

// ValidateSymbol reports whether the provider knows a symbol
// GET /api/symbols/:symbol/validate
func (h *SymbolHandler) ValidateSymbol(c echo.Context) error {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		return BadRequestResponse(c, "Symbol is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	valid, err := h.validator.ValidateSymbol(ctx, symbol)
	if err != nil {
		return DomainErrorResponse(c, "Symbol validation failed", err)
	}

	return SuccessResponse(c, map[string]interface{}{
		"symbol": symbol,
		"valid":  valid,
	})
}
