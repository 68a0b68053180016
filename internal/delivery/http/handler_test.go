package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktrigger/internal/domain"
	"stocktrigger/internal/middleware"
	"stocktrigger/internal/repository/memory"
)

type stubTrigger struct {
	evalErr    error
	refreshErr error
}

func (s *stubTrigger) TriggerEvaluationNow(context.Context) (*domain.EvaluationSummary, error) {
	if s.evalErr != nil {
		return &domain.EvaluationSummary{Skipped: true}, s.evalErr
	}
	return &domain.EvaluationSummary{Events: 2, Trades: 1}, nil
}

func (s *stubTrigger) TriggerPriceRefreshNow(context.Context) (*domain.RefreshSummary, error) {
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return &domain.RefreshSummary{Updated: 4}, nil
}

func (s *stubTrigger) ValidateSymbol(_ context.Context, symbol string) (bool, error) {
	if symbol == "DOWN" {
		return false, domain.ErrFeedUnavailable
	}
	return symbol == "AAPL", nil
}

func (s *stubTrigger) Status(context.Context) (*domain.EvaluationStatus, error) {
	return &domain.EvaluationStatus{ActiveConstraintCount: 7}, nil
}

type stubRunner struct {
	err       error
	benchmark string
}

func (s *stubRunner) RunBacktest(_ context.Context, id uuid.UUID, start, end time.Time, capital float64) (*domain.BacktestResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.BacktestResult{
		ConstraintID:   id,
		StartDate:      start,
		EndDate:        end,
		InitialCapital: capital,
		FinalValue:     capital * 1.1,
	}, nil
}

func (s *stubRunner) CompareToMarket(_ context.Context, _ *domain.BacktestResult, symbol string) (*domain.MarketComparison, error) {
	s.benchmark = symbol
	return &domain.MarketComparison{BenchmarkSymbol: symbol, Outperformance: 2.5}, nil
}

type stubPositions struct {
	positions map[string]*domain.Position
}

func (s *stubPositions) Position(_ context.Context, _ uuid.UUID, symbol string) (*domain.Position, error) {
	p, ok := s.positions[symbol]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

type apiFixture struct {
	e           *echo.Echo
	auth        *middleware.Authenticator
	trigger     *stubTrigger
	runner      *stubRunner
	constraints *memory.ConstraintRepository
	trades      *memory.TradeRepository
	owner       uuid.UUID
}

func newAPI(t *testing.T, secret string) *apiFixture {
	t.Helper()

	f := &apiFixture{
		e:           echo.New(),
		auth:        middleware.NewAuthenticator(secret),
		trigger:     &stubTrigger{},
		runner:      &stubRunner{},
		constraints: memory.NewConstraintRepository(),
		trades:      memory.NewTradeRepository(),
		owner:       uuid.New(),
	}
	positions := &stubPositions{positions: map[string]*domain.Position{
		"AAPL": {OwnerID: f.owner, Symbol: "AAPL", Quantity: 10, AverageCost: 100},
	}}

	SetupRoutes(f.e, &RouterConfig{
		Auth:            f.auth,
		AdminHandler:    NewAdminHandler(f.trigger, f.trigger, time.Second),
		BacktestHandler: NewBacktestHandler(f.runner, time.Second),
		UserHandler:     NewUserHandler(positions, f.constraints, f.trades),
		SymbolHandler:   NewSymbolHandler(f.trigger),
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body, token string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var resp Response
	_ = sonic.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func (f *apiFixture) token(t *testing.T, role string) string {
	t.Helper()
	token, err := f.auth.GenerateJWT(f.owner, role)
	require.NoError(t, err)
	return token
}

func TestRunBacktest_Validation(t *testing.T) {
	f := newAPI(t, "")
	id := uuid.NewString()

	tests := []struct {
		name string
		body string
	}{
		{name: "bad json", body: `{`},
		{name: "bad id", body: `{"constraint_id":"nope","start_date":"2024-01-01","end_date":"2024-02-01"}`},
		{name: "bad start", body: `{"constraint_id":"` + id + `","start_date":"01/01/2024","end_date":"2024-02-01"}`},
		{name: "bad end", body: `{"constraint_id":"` + id + `","start_date":"2024-01-01","end_date":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := f.do(t, http.MethodPost, "/api/backtests", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRunBacktest_MapsDomainErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: domain.ErrConstraintNotFound, want: http.StatusNotFound},
		{err: domain.ErrInsufficientHistory, want: http.StatusBadRequest},
		{err: domain.ErrInvalidDateRange, want: http.StatusBadRequest},
		{err: domain.NewPriceFeedError(domain.FeedRateLimited, "AAPL", nil), want: http.StatusBadGateway},
		{err: context.DeadlineExceeded, want: http.StatusInternalServerError},
	}

	body := `{"constraint_id":"` + uuid.NewString() + `","start_date":"2024-01-01","end_date":"2024-02-01"}`
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			f := newAPI(t, "")
			f.runner.err = tt.err

			rec, resp := f.do(t, http.MethodPost, "/api/backtests", body, "")
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "error", resp.Status)
		})
	}
}

func TestRunBacktest_WithBenchmark(t *testing.T) {
	f := newAPI(t, "")
	body := `{"constraint_id":"` + uuid.NewString() + `","start_date":"2024-01-01","end_date":"2024-02-01",` +
		`"initial_capital":5000,"benchmark_symbol":" SPY "}`

	rec, resp := f.do(t, http.MethodPost, "/api/backtests", body, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "SPY", f.runner.benchmark)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, data, "comparison")
}

func TestAdmin_TriggerEvaluation(t *testing.T) {
	f := newAPI(t, "")

	rec, resp := f.do(t, http.MethodPost, "/api/admin/evaluation/trigger", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Evaluation completed", resp.Message)

	f.trigger.evalErr = domain.ErrLockUnavailable
	rec, resp = f.do(t, http.MethodPost, "/api/admin/evaluation/trigger", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Evaluation already running", resp.Message)
}

func TestAdmin_RefreshPricesFeedDown(t *testing.T) {
	f := newAPI(t, "")
	f.trigger.refreshErr = domain.ErrFeedUnavailable

	rec, _ := f.do(t, http.MethodPost, "/api/admin/prices/refresh", "", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	f := newAPI(t, "secret")

	rec, _ := f.do(t, http.MethodGet, "/api/admin/evaluation/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/admin/evaluation/status", "", f.token(t, "USER"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp := f.do(t, http.MethodGet, "/api/admin/evaluation/status", "", f.token(t, middleware.RoleAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 7, data["active_constraint_count"])
}

func TestUser_Position(t *testing.T) {
	f := newAPI(t, "secret")
	token := f.token(t, "USER")

	rec, resp := f.do(t, http.MethodGet, "/api/user/positions/aapl", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 10, data["quantity"])
	assert.EqualValues(t, 1000, data["market_value"])

	rec, _ = f.do(t, http.MethodGet, "/api/user/positions/MSFT", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUser_Trades(t *testing.T) {
	f := newAPI(t, "secret")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.trades.Save(ctx, &domain.TradeRecord{
			ID:       uuid.New(),
			OwnerID:  f.owner,
			Symbol:   "AAPL",
			Side:     domain.SideBuy,
			Reason:   domain.ReasonPriceDrop,
			Quantity: 1,
			Price:    float64(100 + i),
		}))
	}
	require.NoError(t, f.trades.Save(ctx, &domain.TradeRecord{ID: uuid.New(), OwnerID: uuid.New(), Symbol: "MSFT"}))
	token := f.token(t, "USER")

	rec, resp := f.do(t, http.MethodGet, "/api/user/trades?limit=2", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	trades, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, trades, 2)
	assert.EqualValues(t, 102, trades[0].(map[string]interface{})["price"])

	rec, _ = f.do(t, http.MethodGet, "/api/user/trades?limit=zero", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUser_AdminMayQueryAnyOwner(t *testing.T) {
	f := newAPI(t, "")

	rec, _ := f.do(t, http.MethodGet, "/api/user/trades", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp := f.do(t, http.MethodGet, "/api/user/trades?owner_id="+f.owner.String(), "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", resp.Status)
}

func TestHealth(t *testing.T) {
	f := newAPI(t, "secret")

	rec, _ := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidateSymbol(t *testing.T) {
	f := newAPI(t, "")

	rec, resp := f.do(t, http.MethodGet, "/api/symbols/aapl/validate", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "AAPL", data["symbol"])
	assert.Equal(t, true, data["valid"])

	rec, resp = f.do(t, http.MethodGet, "/api/symbols/ZZZZ/validate", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, resp.Data.(map[string]interface{})["valid"])

	rec, _ = f.do(t, http.MethodGet, "/api/symbols/DOWN/validate", "", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestUser_Constraints(t *testing.T) {
	f := newAPI(t, "secret")
	ctx := context.Background()
	for _, owner := range []uuid.UUID{f.owner, uuid.New()} {
		c, err := domain.NewConstraint(domain.ConstraintParams{
			OwnerID:            owner,
			Symbol:             "AAPL",
			BuyTriggerPercent:  -5,
			SellTriggerPercent: 10,
			BuyAmount:          1000,
			SellAmount:         500,
		})
		require.NoError(t, err)
		require.NoError(t, f.constraints.Save(ctx, c))
	}
	token := f.token(t, "USER")

	rec, resp := f.do(t, http.MethodGet, "/api/user/constraints/aapl", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	list, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, f.owner.String(), list[0].(map[string]interface{})["owner_id"])

	rec, resp = f.do(t, http.MethodGet, "/api/user/constraints/MSFT", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp.Data)
}
