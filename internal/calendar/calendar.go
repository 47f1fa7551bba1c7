// Package calendar answers whether the exchange is trading at a given instant.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/config"
	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
)

// Calendar is the trading calendar consumed by the monitor engine
type Calendar interface {
	// IsTradingDay reports whether the exchange trades on t's local date
	IsTradingDay(ctx context.Context, t time.Time) bool

	// IsWithinSession reports whether t falls inside an open session
	IsWithinSession(ctx context.Context, t time.Time) bool

	// TradingDate returns t's date in the exchange time zone (2006-01-02)
	TradingDate(t time.Time) string
}

// Status summarizes the calendar at one instant
type Status struct {
	TradingDate string `json:"trading_date"`
	TradingDay  bool   `json:"trading_day"`
	InSession   bool   `json:"in_session"`
	Phase       Phase  `json:"phase"`
}

// SessionCalendar is a single-exchange calendar: weekdays that are not
// holidays, each split into the configured sessions.
type SessionCalendar struct {
	loc      *time.Location
	sessions []Session
	holidays HolidayProvider
}

// NewSessionCalendar builds a calendar from configuration. holidays may be
// nil, in which case every weekday is a trading day.
func NewSessionCalendar(cfg config.CalendarConfig, holidays HolidayProvider) (*SessionCalendar, error) {
	sessions, err := ParseSessions(cfg.Sessions)
	if err != nil {
		return nil, fmt.Errorf("invalid CALENDAR_SESSIONS: %w", err)
	}
	return &SessionCalendar{
		loc:      LoadLocation(cfg.Timezone),
		sessions: sessions,
		holidays: holidays,
	}, nil
}

// Location returns the exchange time zone
func (c *SessionCalendar) Location() *time.Location {
	return c.loc
}

// Sessions returns the configured trading sessions
func (c *SessionCalendar) Sessions() []Session {
	return append([]Session(nil), c.sessions...)
}

func (c *SessionCalendar) TradingDate(t time.Time) string {
	return t.In(c.loc).Format(DateLayout)
}

func (c *SessionCalendar) IsTradingDay(ctx context.Context, t time.Time) bool {
	local := t.In(c.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		// Make-up working days on weekends remain closed for trading
		return false
	}
	if c.holidays == nil {
		return true
	}

	holidays, err := c.holidays.Holidays(ctx, local.Year())
	if err != nil {
		if !errors.Is(err, ErrHolidaysUnavailable) {
			logger.Debug("Holiday lookup failed, assuming trading day",
				logger.String("date", local.Format(DateLayout)),
				logger.ErrorField(err),
			)
		}
		return true
	}
	if day, ok := holidays[local.Format(DateLayout)]; ok && day.IsOffDay {
		return false
	}
	return true
}

func (c *SessionCalendar) IsWithinSession(ctx context.Context, t time.Time) bool {
	if !c.IsTradingDay(ctx, t) {
		return false
	}
	minute := minuteOfDay(t.In(c.loc))
	for _, s := range c.sessions {
		if s.Contains(minute) {
			return true
		}
	}
	return false
}

// Status reports the calendar state at t
func (c *SessionCalendar) Status(ctx context.Context, t time.Time) Status {
	st := Status{
		TradingDate: c.TradingDate(t),
		TradingDay:  c.IsTradingDay(ctx, t),
		Phase:       PhaseClosed,
	}
	if st.TradingDay {
		st.Phase = phaseOf(c.sessions, minuteOfDay(t.In(c.loc)))
		st.InSession = st.Phase == PhaseOpen
	}
	return st
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
