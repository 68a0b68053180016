package http

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"stocktrigger/internal/domain"
)

// EvaluationTrigger runs evaluation work on demand
type EvaluationTrigger interface {
	TriggerEvaluationNow(ctx context.Context) (*domain.EvaluationSummary, error)
	TriggerPriceRefreshNow(ctx context.Context) (*domain.RefreshSummary, error)
}

// EvaluationStatusProvider reports evaluator state
type EvaluationStatusProvider interface {
	Status(ctx context.Context) (*domain.EvaluationStatus, error)
}

// AdminHandler handles admin-related requests
type AdminHandler struct {
	trigger    EvaluationTrigger
	status     EvaluationStatusProvider
	runTimeout time.Duration
}

// NewAdminHandler creates a new admin handler. runTimeout bounds one manual run.
func NewAdminHandler(trigger EvaluationTrigger, status EvaluationStatusProvider, runTimeout time.Duration) *AdminHandler {
	if runTimeout <= 0 {
		runTimeout = time.Minute
	}
	return &AdminHandler{
		trigger:    trigger,
		status:     status,
		runTimeout: runTimeout,
	}
}

// TriggerEvaluation runs one evaluation tick now
// POST /api/admin/evaluation/trigger
func (h *AdminHandler) TriggerEvaluation(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.runTimeout)
	defer cancel()

	summary, err := h.trigger.TriggerEvaluationNow(ctx)
	if errors.Is(err, domain.ErrLockUnavailable) {
		return ConflictResponse(c, "Evaluation already running", summary)
	}
	if err != nil {
		return InternalServerErrorResponse(c, "Evaluation failed", err)
	}

	return SuccessMessageResponse(c, "Evaluation completed", summary)
}

// RefreshPrices updates current prices on open positions now
// POST /api/admin/prices/refresh
func (h *AdminHandler) RefreshPrices(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.runTimeout)
	defer cancel()

	summary, err := h.trigger.TriggerPriceRefreshNow(ctx)
	if err != nil {
		return DomainErrorResponse(c, "Price refresh failed", err)
	}

	return SuccessMessageResponse(c, "Prices refreshed", summary)
}

// GetEvaluationStatus returns evaluator state
// GET /api/admin/evaluation/status
func (h *AdminHandler) GetEvaluationStatus(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status, err := h.status.Status(ctx)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to get evaluation status", err)
	}

	return SuccessResponse(c, status)
}
