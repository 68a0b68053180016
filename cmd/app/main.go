package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"stocktrigger/configs"
	"stocktrigger/internal/adapter/telegram"
	"stocktrigger/internal/database"
	httpdelivery "stocktrigger/internal/delivery/http"
	"stocktrigger/internal/domain"
	"stocktrigger/internal/infra"
	"stocktrigger/internal/metrics"
	custommiddleware "stocktrigger/internal/middleware"
	"stocktrigger/internal/repository"
	chrepo "stocktrigger/internal/repository/clickhouse"
	"stocktrigger/internal/service"
	"stocktrigger/internal/usecase"
	"stocktrigger/pkg/db"
	"stocktrigger/pkg/logger"
	"stocktrigger/pkg/tracing"
)

func main() {
	cfg, err := configs.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Server.Env); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Tracing.JaegerHost != "" {
		_, closeTracer, err := tracing.InitTracer(tracing.Config{
			ServiceName: cfg.Tracing.ServiceName,
			Host:        cfg.Tracing.JaegerHost,
			Port:        cfg.Tracing.JaegerPort,
		})
		if err != nil {
			logger.Warn("[WARN] Tracing disabled: %v", err)
		} else {
			defer closeTracer()
		}
	}

	ctx := context.Background()

	pool, err := infra.NewDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool); err != nil {
		logger.Fatal("Failed to run migrations: %v", err)
	}

	// Repositories
	txManager := db.NewTxManager(pool)
	constraintRepo := repository.NewConstraintRepository(pool)
	positionRepo := repository.NewPositionRepository(txManager)
	tradeRepo := repository.NewTradeRepository(pool)
	baselineStore := repository.NewPriceBaselineStore(pool)
	evaluationLock := repository.NewEvaluationLock(pool, cfg.Engine.LockName)

	// Price feed, with the ClickHouse history cache when configured
	priceService := service.NewMarketPriceService(service.MarketPriceConfig{
		BaseURL:        cfg.PriceFeed.BaseURL,
		RequestsPerSec: cfg.PriceFeed.RequestsPerSec,
		Burst:          cfg.PriceFeed.Burst,
		Timeout:        cfg.PriceFeed.Timeout,
		MaxConcurrency: cfg.PriceFeed.MaxConcurrency,
		MaxRetries:     cfg.PriceFeed.MaxRetries,
	})
	var historyFeed domain.PriceFeed = priceService
	if cfg.ClickHouse.DSN != "" {
		chConn, err := chrepo.NewConn(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			logger.Warn("[WARN] ClickHouse unavailable, backtests fetch history directly: %v", err)
		} else {
			defer chConn.Close()
			if err := database.RunClickHouseMigrations(ctx, chConn); err != nil {
				logger.Fatal("Failed to run ClickHouse migrations: %v", err)
			}
			historyFeed = service.NewCachedHistoryFeed(priceService, chrepo.NewPriceHistoryRepository(chConn))
			logger.Info("[OK] Price history cache enabled")
		}
	}

	notifier, err := telegram.NewNotificationService(cfg.Telegram.Token, cfg.Telegram.ChatID)
	if err != nil {
		logger.Fatal("Failed to init telegram notifier: %v", err)
	}
	if !notifier.Enabled() {
		logger.Info("Telegram notifications disabled")
	}

	engineMetrics := metrics.New(prometheus.DefaultRegisterer)

	// Engine
	ledger := service.NewPositionLedger(positionRepo)
	evaluator := service.NewTriggerEvaluator(priceService, baselineStore, positionRepo, service.EvaluatorConfig{
		BaselineTTL:    cfg.Engine.BaselineTTL,
		MaxConcurrency: cfg.PriceFeed.MaxConcurrency,
	})
	processor := service.NewTriggerProcessor(ledger, tradeRepo, notifier, domain.SellPrecedence(cfg.Engine.SellPrecedence))
	evaluationService := usecase.NewEvaluationService(
		constraintRepo,
		positionRepo,
		priceService,
		evaluationLock,
		evaluator,
		processor,
		ledger,
		engineMetrics,
		cfg.Engine.LockLease,
	)
	backtestService := service.NewBacktestService(constraintRepo, historyFeed, cfg.Backtest.MaxConcurrent, engineMetrics)

	var market domain.MarketHours = service.AlwaysOpen{}
	if !cfg.MarketHours.AlwaysOpen {
		calendar, err := service.NewExchangeCalendar(cfg.MarketHours.Timezone, cfg.MarketHours.Holidays)
		if err != nil {
			logger.Fatal("Failed to build market calendar: %v", err)
		}
		market = calendar
	}

	scheduler := infra.NewScheduler(evaluationService, market, infra.SchedulerConfig{
		EvaluationInterval: cfg.Engine.EvaluationInterval,
		RefreshInterval:    cfg.Engine.RefreshInterval,
	})
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	// API server
	auth := custommiddleware.NewAuthenticator(cfg.Auth.JWTSecret)
	if !auth.Enabled() {
		logger.Warn("[WARN] JWT_SECRET not set, API authentication is disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.Debug = !cfg.IsProduction()
	httpdelivery.SetupRoutes(e, &httpdelivery.RouterConfig{
		Auth:            auth,
		AdminHandler:    httpdelivery.NewAdminHandler(scheduler, evaluationService, cfg.Engine.EvaluationInterval),
		BacktestHandler: httpdelivery.NewBacktestHandler(backtestService, 2*time.Minute),
		UserHandler:     httpdelivery.NewUserHandler(ledger, constraintRepo, tradeRepo),
		SymbolHandler:   httpdelivery.NewSymbolHandler(priceService),
	})

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("API server starting on %s (env %s)", addr, cfg.Server.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start API server: %v", err)
		}
	}()

	// Ops server
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", handleHealth(pool))
	r.Handle("/metrics", metrics.HandlerFor(prometheus.DefaultGatherer))

	opsServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.AdminPort),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Ops server starting on %s", opsServer.Addr)
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start ops server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("[ERR] API server forced to shutdown: %v", err)
	}
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("[ERR] Ops server forced to shutdown: %v", err)
	}

	logger.Info("[OK] Server exited gracefully")
}

func handleHealth(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, dbStatus, code := "healthy", "healthy", http.StatusOK
		if err := pool.Ping(ctx); err != nil {
			status, dbStatus, code = "degraded", "unhealthy", http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		fmt.Fprintf(w, `{"status":%q,"service":"stocktrigger","database":%q,"timestamp":%q}`,
			status, dbStatus, time.Now().Format(time.RFC3339))
	}
}
