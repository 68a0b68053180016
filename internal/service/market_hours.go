package service

import (
	"fmt"
	"time"

	"stocktrigger/internal/domain"
	"stocktrigger/internal/utils"
)

// Regular session, exchange-local minutes since midnight
const (
	sessionOpenMinute  = 9*60 + 30
	sessionCloseMinute = 16 * 60
)

// ExchangeCalendar is a weekday 09:30-16:00 session in the exchange timezone,
// closed on the configured holidays.
type ExchangeCalendar struct {
	loc      *time.Location
	holidays map[string]bool
}

// NewExchangeCalendar creates a calendar for timezone with holidays given as YYYY-MM-DD
func NewExchangeCalendar(timezone string, holidays []string) (*ExchangeCalendar, error) {
	c := &ExchangeCalendar{
		loc:      utils.LoadLocation(timezone),
		holidays: make(map[string]bool, len(holidays)),
	}
	for _, day := range holidays {
		d, err := time.Parse(time.DateOnly, day)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", day, err)
		}
		c.holidays[d.Format(time.DateOnly)] = true
	}
	return c, nil
}

var _ domain.MarketHours = (*ExchangeCalendar)(nil)

// IsOpen reports whether t falls inside a regular session. The close is exclusive.
func (c *ExchangeCalendar) IsOpen(t time.Time) bool {
	local := t.In(c.loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	if c.holidays[local.Format(time.DateOnly)] {
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	return minute >= sessionOpenMinute && minute < sessionCloseMinute
}

// AlwaysOpen is a MarketHours that never gates.
type AlwaysOpen struct{}

// IsOpen always returns true
func (AlwaysOpen) IsOpen(time.Time) bool { return true }
