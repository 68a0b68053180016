package http

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"stocktrigger/internal/delivery/http/dto"
	"stocktrigger/internal/domain"
)

// BacktestRunner replays constraints over history
type BacktestRunner interface {
	RunBacktest(ctx context.Context, constraintID uuid.UUID, start, end time.Time, initialCapital float64) (*domain.BacktestResult, error)
	CompareToMarket(ctx context.Context, result *domain.BacktestResult, benchmarkSymbol string) (*domain.MarketComparison, error)
}

// BacktestHandler handles backtest requests
type BacktestHandler struct {
	runner  BacktestRunner
	timeout time.Duration
}

// NewBacktestHandler creates a new BacktestHandler
func NewBacktestHandler(runner BacktestRunner, timeout time.Duration) *BacktestHandler {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &BacktestHandler{runner: runner, timeout: timeout}
}

// RunBacktest replays a constraint and optionally compares it to a benchmark
// POST /api/backtests
func (h *BacktestHandler) RunBacktest(c echo.Context) error {
	var req dto.BacktestRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request body")
	}

	constraintID, err := uuid.Parse(req.ConstraintID)
	if err != nil {
		return BadRequestResponse(c, "Invalid constraint_id")
	}
	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		return BadRequestResponse(c, "Invalid start_date, expected YYYY-MM-DD")
	}
	end, err := time.Parse(time.DateOnly, req.EndDate)
	if err != nil {
		return BadRequestResponse(c, "Invalid end_date, expected YYYY-MM-DD")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	result, err := h.runner.RunBacktest(ctx, constraintID, start, end, req.InitialCapital)
	if err != nil {
		return DomainErrorResponse(c, "Backtest failed", err)
	}

	out := dto.BacktestOutput{Result: result}
	if benchmark := strings.TrimSpace(req.BenchmarkSymbol); benchmark != "" {
		comparison, err := h.runner.CompareToMarket(ctx, result, benchmark)
		if err != nil {
			return DomainErrorResponse(c, "Benchmark comparison failed", err)
		}
		out.Comparison = comparison
	}

	return SuccessResponse(c, out)
}
