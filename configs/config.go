package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"stocktrigger/internal/domain"
)

const configFilePathENV = "CONFIG_FILE"

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	ClickHouse  ClickHouseConfig  `yaml:"clickhouse"`
	PriceFeed   PriceFeedConfig   `yaml:"price_feed"`
	Engine      EngineConfig      `yaml:"engine"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	MarketHours MarketHoursConfig `yaml:"market_hours"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Auth        AuthConfig        `yaml:"auth"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port      string `yaml:"port"`
	AdminPort string `yaml:"admin_port"`
	Env       string `yaml:"env"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

// ClickHouseConfig holds the price history store DSN. Empty disables it.
type ClickHouseConfig struct {
	DSN string `yaml:"dsn"`
}

// PriceFeedConfig holds market data provider settings
type PriceFeedConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	Burst          int           `yaml:"burst"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	MaxRetries     int           `yaml:"max_retries"`
}

// EngineConfig holds trigger engine cadences and leases
type EngineConfig struct {
	EvaluationInterval time.Duration `yaml:"evaluation_interval"`
	RefreshInterval    time.Duration `yaml:"refresh_interval"`
	LockName           string        `yaml:"lock_name"`
	LockLease          time.Duration `yaml:"lock_lease"`
	BaselineTTL        time.Duration `yaml:"baseline_ttl"`
	SellPrecedence     string        `yaml:"sell_precedence"`
}

// BacktestConfig holds backtest limits
type BacktestConfig struct {
	MaxConcurrent int64 `yaml:"max_concurrent"`
}

// MarketHoursConfig holds the exchange calendar
type MarketHoursConfig struct {
	Timezone   string   `yaml:"timezone"`
	Holidays   []string `yaml:"holidays"`
	AlwaysOpen bool     `yaml:"always_open"`
}

// TelegramConfig holds notifier credentials. Empty token disables it.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// AuthConfig holds the admin token secret
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// TracingConfig holds the jaeger agent address. Empty host disables tracing.
type TracingConfig struct {
	ServiceName string `yaml:"service_name"`
	JaegerHost  string `yaml:"jaeger_host"`
	JaegerPort  int    `yaml:"jaeger_port"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      "8080",
			AdminPort: "9090",
			Env:       "development",
		},
		Database: DatabaseConfig{
			MaxConns: 10,
			MinConns: 2,
		},
		PriceFeed: PriceFeedConfig{
			BaseURL:        "https://query1.finance.yahoo.com",
			RequestsPerSec: 5,
			Burst:          5,
			Timeout:        10 * time.Second,
			MaxConcurrency: 8,
			MaxRetries:     3,
		},
		Engine: EngineConfig{
			EvaluationInterval: time.Minute,
			RefreshInterval:    5 * time.Minute,
			LockName:           "constraint-evaluation",
			LockLease:          30 * time.Second,
			BaselineTTL:        time.Hour,
			SellPrecedence:     string(domain.PrecedenceProfit),
		},
		Backtest: BacktestConfig{
			MaxConcurrent: 4,
		},
		MarketHours: MarketHoursConfig{
			Timezone: "America/New_York",
		},
		Tracing: TracingConfig{
			ServiceName: "stocktrigger",
			JaegerPort:  6831,
		},
	}
}

// Load reads .env, then the optional YAML file named by CONFIG_FILE, then
// environment overrides, and validates the result
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv(configFilePathENV); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.AdminPort = getEnv("ADMIN_PORT", cfg.Server.AdminPort)
	cfg.Server.Env = getEnv("GO_ENV", cfg.Server.Env)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConns = int32(intFromEnv("DATABASE_MAX_CONNS", int(cfg.Database.MaxConns)))
	cfg.Database.MinConns = int32(intFromEnv("DATABASE_MIN_CONNS", int(cfg.Database.MinConns)))

	cfg.ClickHouse.DSN = getEnv("CLICKHOUSE_DSN", cfg.ClickHouse.DSN)

	cfg.PriceFeed.BaseURL = getEnv("PRICE_FEED_URL", cfg.PriceFeed.BaseURL)
	cfg.PriceFeed.RequestsPerSec = floatFromEnv("PRICE_FEED_RPS", cfg.PriceFeed.RequestsPerSec)
	cfg.PriceFeed.Burst = intFromEnv("PRICE_FEED_BURST", cfg.PriceFeed.Burst)
	cfg.PriceFeed.Timeout = durationFromEnv("PRICE_FEED_TIMEOUT", cfg.PriceFeed.Timeout)
	cfg.PriceFeed.MaxConcurrency = intFromEnv("PRICE_FEED_MAX_CONCURRENCY", cfg.PriceFeed.MaxConcurrency)
	cfg.PriceFeed.MaxRetries = intFromEnv("PRICE_FEED_MAX_RETRIES", cfg.PriceFeed.MaxRetries)

	cfg.Engine.EvaluationInterval = durationFromEnv("EVALUATION_INTERVAL", cfg.Engine.EvaluationInterval)
	cfg.Engine.RefreshInterval = durationFromEnv("PRICE_REFRESH_INTERVAL", cfg.Engine.RefreshInterval)
	cfg.Engine.LockName = getEnv("EVALUATION_LOCK_NAME", cfg.Engine.LockName)
	cfg.Engine.LockLease = durationFromEnv("EVALUATION_LOCK_LEASE", cfg.Engine.LockLease)
	cfg.Engine.BaselineTTL = durationFromEnv("BASELINE_TTL", cfg.Engine.BaselineTTL)
	cfg.Engine.SellPrecedence = getEnv("SELL_PRECEDENCE", cfg.Engine.SellPrecedence)

	cfg.Backtest.MaxConcurrent = int64(intFromEnv("BACKTEST_MAX_CONCURRENT", int(cfg.Backtest.MaxConcurrent)))

	cfg.MarketHours.Timezone = getEnv("MARKET_TIMEZONE", cfg.MarketHours.Timezone)
	if holidays := os.Getenv("MARKET_HOLIDAYS"); holidays != "" {
		cfg.MarketHours.Holidays = splitList(holidays)
	}
	cfg.MarketHours.AlwaysOpen = boolFromEnv("MARKET_ALWAYS_OPEN", cfg.MarketHours.AlwaysOpen)

	cfg.Telegram.Token = getEnv("TELEGRAM_TOKEN", cfg.Telegram.Token)
	cfg.Telegram.ChatID = int64(intFromEnv("TELEGRAM_CHAT_ID", int(cfg.Telegram.ChatID)))

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)

	cfg.Tracing.JaegerHost = getEnv("JAEGER_HOST", cfg.Tracing.JaegerHost)
	cfg.Tracing.JaegerPort = intFromEnv("JAEGER_PORT", cfg.Tracing.JaegerPort)
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	if c.Engine.EvaluationInterval <= 0 {
		return fmt.Errorf("evaluation interval must be positive, got %s", c.Engine.EvaluationInterval)
	}
	if c.Engine.RefreshInterval <= 0 {
		return fmt.Errorf("price refresh interval must be positive, got %s", c.Engine.RefreshInterval)
	}
	if c.Engine.LockLease <= 0 {
		return fmt.Errorf("evaluation lock lease must be positive, got %s", c.Engine.LockLease)
	}
	if c.Engine.BaselineTTL <= 0 {
		return fmt.Errorf("baseline ttl must be positive, got %s", c.Engine.BaselineTTL)
	}
	if c.Engine.LockName == "" {
		return fmt.Errorf("evaluation lock name is required")
	}
	if !domain.SellPrecedence(c.Engine.SellPrecedence).Valid() {
		return fmt.Errorf("unknown sell precedence %q (want profit, sell or both)", c.Engine.SellPrecedence)
	}
	if c.Backtest.MaxConcurrent < 1 {
		return fmt.Errorf("backtest max concurrent must be at least 1, got %d", c.Backtest.MaxConcurrent)
	}
	if c.PriceFeed.MaxConcurrency < 1 {
		return fmt.Errorf("price feed max concurrency must be at least 1, got %d", c.PriceFeed.MaxConcurrency)
	}
	if c.PriceFeed.RequestsPerSec <= 0 {
		return fmt.Errorf("price feed rate must be positive, got %v", c.PriceFeed.RequestsPerSec)
	}
	if _, err := time.LoadLocation(c.MarketHours.Timezone); err != nil {
		return fmt.Errorf("invalid market timezone %q: %w", c.MarketHours.Timezone, err)
	}
	for _, day := range c.MarketHours.Holidays {
		if _, err := time.Parse(time.DateOnly, day); err != nil {
			return fmt.Errorf("invalid market holiday %q: %w", day, err)
		}
	}
	return nil
}

// IsProduction reports whether GO_ENV is production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
