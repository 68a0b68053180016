package service

import (
	"context"
	"strings"
	"time"

	"stocktrigger/internal/domain"
	"stocktrigger/pkg/logger"
)

// maxSessionGap is the longest stretch allowed between consecutive stored
// closes: a weekend plus a holiday on either side of it.
const maxSessionGap = 4 * 24 * time.Hour

// CachedHistoryFeed serves historical series from a PriceHistoryRepository and
// falls back to the wrapped feed on a miss, storing what it fetched.
// Live quotes pass straight through.
type CachedHistoryFeed struct {
	domain.PriceFeed
	store domain.PriceHistoryRepository
}

// NewCachedHistoryFeed wraps feed with store
func NewCachedHistoryFeed(feed domain.PriceFeed, store domain.PriceHistoryRepository) *CachedHistoryFeed {
	return &CachedHistoryFeed{PriceFeed: feed, store: store}
}

// GetHistoricalPrices returns stored points when they cover [start, end] without
// holes. Otherwise the whole range is fetched again and merged into the store.
func (f *CachedHistoryFeed) GetHistoricalPrices(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	symbol = strings.ToUpper(symbol)

	stored, err := f.store.GetRange(ctx, symbol, start, end)
	if err != nil {
		logger.Warn("[WARN] Price history read failed for %s, fetching from feed: %v", symbol, err)
	} else if covers(stored, start, end) {
		return stored, nil
	}

	points, err := f.PriceFeed.GetHistoricalPrices(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	if err := f.store.InsertBulk(ctx, symbol, points); err != nil {
		logger.Warn("[WARN] Failed to store price history for %s: %v", symbol, err)
	}

	return points, nil
}

// covers reports whether points reach the first and last weekday of the range
// and have no gap longer than maxSessionGap in between. A holiday on either
// edge counts as a miss.
func covers(points []domain.PricePoint, start, end time.Time) bool {
	if len(points) < 2 {
		return false
	}
	if dateOf(points[0].Date).After(nextWeekday(dateOf(start))) {
		return false
	}
	if dateOf(points[len(points)-1].Date).Before(prevWeekday(dateOf(end))) {
		return false
	}
	for i := 1; i < len(points); i++ {
		if points[i].Date.Sub(points[i-1].Date) > maxSessionGap {
			return false
		}
	}
	return true
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func nextWeekday(d time.Time) time.Time {
	for isWeekend(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func prevWeekday(d time.Time) time.Time {
	for isWeekend(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

func isWeekend(d time.Time) bool {
	return d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
}
