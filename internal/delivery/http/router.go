package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	custommiddleware "stocktrigger/internal/middleware"
)

// RouterConfig holds all dependencies for routing
type RouterConfig struct {
	Auth            *custommiddleware.Authenticator
	AdminHandler    *AdminHandler
	BacktestHandler *BacktestHandler
	UserHandler     *UserHandler
	SymbolHandler   *SymbolHandler
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(e *echo.Echo, config *RouterConfig) {
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// status is polled by dashboards
			return c.Request().URL.Path == "/api/admin/evaluation/status"
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())

	e.GET("/health", func(c echo.Context) error {
		return SuccessResponse(c, map[string]interface{}{
			"status":    "healthy",
			"service":   "stocktrigger-api",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api := e.Group("/api", config.Auth.Auth)

	api.POST("/backtests", config.BacktestHandler.RunBacktest)
	api.GET("/symbols/:symbol/validate", config.SymbolHandler.ValidateSymbol)

	user := api.Group("/user")
	{
		user.GET("/positions/:symbol", config.UserHandler.GetPosition)
		user.GET("/constraints/:symbol", config.UserHandler.GetConstraints)
		user.GET("/trades", config.UserHandler.GetTrades)
	}

	admin := api.Group("/admin", custommiddleware.Admin)
	{
		admin.POST("/evaluation/trigger", config.AdminHandler.TriggerEvaluation)
		admin.POST("/prices/refresh", config.AdminHandler.RefreshPrices)
		admin.GET("/evaluation/status", config.AdminHandler.GetEvaluationStatus)
	}
}
