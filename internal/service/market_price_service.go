package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"stocktrigger/internal/domain"
)

const maxChartBody = 4 << 20

// MarketPriceConfig configures the chart API client
type MarketPriceConfig struct {
	BaseURL        string
	RequestsPerSec float64
	Burst          int
	Timeout        time.Duration
	MaxConcurrency int
	MaxRetries     int
}

// MarketPriceService fetches quotes and daily closes from a Yahoo-style chart API
type MarketPriceService struct {
	httpClient     *http.Client
	baseURL        string
	limiter        *rate.Limiter
	maxConcurrency int
	maxRetries     uint64
}

// NewMarketPriceService creates a new MarketPriceService
func NewMarketPriceService(cfg MarketPriceConfig) *MarketPriceService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}

	return &MarketPriceService{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		limiter:        rate.NewLimiter(limit, cfg.Burst),
		maxConcurrency: cfg.MaxConcurrency,
		maxRetries:     uint64(cfg.MaxRetries),
	}
}

var _ domain.PriceFeed = (*MarketPriceService)(nil)

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// GetCurrentPrice fetches the latest traded price for symbol
func (s *MarketPriceService) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("range", "1d")

	result, err := s.fetchChart(ctx, symbol, params)
	if err != nil {
		return 0, err
	}

	if result.Meta.RegularMarketPrice > 0 {
		return result.Meta.RegularMarketPrice, nil
	}

	points := result.points()
	if len(points) == 0 {
		return 0, domain.NewPriceFeedError(domain.FeedInvalidSymbol, symbol, errors.New("no price in response"))
	}
	return points[len(points)-1].Price, nil
}

// GetCurrentPrices fetches prices for many symbols concurrently. The returned map
// holds every price that could be fetched; the error lists the ones that could not.
func (s *MarketPriceService) GetCurrentPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return prices, nil
	}

	var mu sync.Mutex
	var missing []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)

	for _, symbol := range uniqueSymbols(symbols) {
		symbol := symbol
		g.Go(func() error {
			price, err := s.GetCurrentPrice(gctx, symbol)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				missing = append(missing, symbol)
				return nil
			}
			prices[symbol] = price
			return nil
		})
	}
	_ = g.Wait()

	if len(missing) > 0 {
		sort.Strings(missing)
		return prices, fmt.Errorf("missing prices for symbols: %v", missing)
	}

	return prices, nil
}

// GetHistoricalPrices fetches daily closes in [start, end]
func (s *MarketPriceService) GetHistoricalPrices(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	params.Set("period2", strconv.FormatInt(end.Unix(), 10))

	result, err := s.fetchChart(ctx, symbol, params)
	if err != nil {
		return nil, err
	}

	return result.points(), nil
}

// ValidateSymbol reports whether the provider knows symbol
func (s *MarketPriceService) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	if strings.TrimSpace(symbol) == "" {
		return false, nil
	}

	_, err := s.GetCurrentPrice(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSymbol) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// fetchChart performs one rate-limited chart request, retrying rate limits,
// timeouts and 5xx responses with exponential backoff
func (s *MarketPriceService) fetchChart(ctx context.Context, symbol string, params url.Values) (*chartResult, error) {
	if symbol == "" {
		return nil, domain.NewPriceFeedError(domain.FeedInvalidSymbol, symbol, errors.New("empty symbol"))
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", s.baseURL, url.PathEscape(symbol), params.Encode())

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 250 * time.Millisecond
	expo.MaxInterval = 5 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, s.maxRetries), ctx)

	result, err := backoff.RetryWithData(func() (*chartResult, error) {
		result, err := s.doChartRequest(ctx, symbol, endpoint)
		if err != nil {
			var feedErr *domain.PriceFeedError
			if errors.As(err, &feedErr) && feedErr.Kind == domain.FeedInvalidSymbol {
				return nil, backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return result, nil
	}, policy)
	if err != nil {
		var feedErr *domain.PriceFeedError
		if errors.As(err, &feedErr) {
			return nil, err
		}
		// cancelled while waiting between attempts
		if isTimeout(err) {
			return nil, domain.NewPriceFeedError(domain.FeedTimeout, symbol, err)
		}
		return nil, domain.NewPriceFeedError(domain.FeedUnavailable, symbol, err)
	}
	return result, nil
}

func (s *MarketPriceService) doChartRequest(ctx context.Context, symbol, endpoint string) (*chartResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, domain.NewPriceFeedError(domain.FeedTimeout, symbol, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.NewPriceFeedError(domain.FeedUnavailable, symbol, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, domain.NewPriceFeedError(domain.FeedTimeout, symbol, err)
		}
		return nil, domain.NewPriceFeedError(domain.FeedUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxChartBody))
	if err != nil {
		return nil, domain.NewPriceFeedError(domain.FeedUnavailable, symbol, fmt.Errorf("failed to read response body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewPriceFeedError(domain.FeedRateLimited, symbol, nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.NewPriceFeedError(domain.FeedInvalidSymbol, symbol, nil)
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewPriceFeedError(domain.FeedUnavailable, symbol,
			fmt.Errorf("chart API error: status=%d, body=%s", resp.StatusCode, truncate(string(body), 200)))
	}

	var decoded chartResponse
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		return nil, domain.NewPriceFeedError(domain.FeedUnavailable, symbol, fmt.Errorf("failed to unmarshal response: %w", err))
	}

	if decoded.Chart.Error != nil {
		return nil, domain.NewPriceFeedError(domain.FeedInvalidSymbol, symbol,
			fmt.Errorf("%s: %s", decoded.Chart.Error.Code, decoded.Chart.Error.Description))
	}
	if len(decoded.Chart.Result) == 0 {
		return nil, domain.NewPriceFeedError(domain.FeedInvalidSymbol, symbol, errors.New("empty result"))
	}

	return &decoded.Chart.Result[0], nil
}

// points pairs timestamps with non-null closes, one point per UTC day
func (r *chartResult) points() []domain.PricePoint {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	closes := r.Indicators.Quote[0].Close

	points := make([]domain.PricePoint, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		day := time.Unix(ts, 0).UTC().Truncate(24 * time.Hour)
		if n := len(points); n > 0 && points[n-1].Date.Equal(day) {
			points[n-1].Price = *closes[i]
			continue
		}
		points = append(points, domain.PricePoint{Date: day, Price: *closes[i]})
	}
	return points
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
