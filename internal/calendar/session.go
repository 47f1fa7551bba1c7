package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
)

// DateLayout is the format of trading dates
const DateLayout = "2006-01-02"

// Session is one trading window of a day, in minutes since local midnight.
// Start is inclusive and End exclusive.
type Session struct {
	Start int
	End   int
}

// Contains reports whether minute (since midnight) falls inside the session
func (s Session) Contains(minute int) bool {
	return minute >= s.Start && minute < s.End
}

func (s Session) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", s.Start/60, s.Start%60, s.End/60, s.End%60)
}

// ParseSessions parses a comma-separated list of HH:MM-HH:MM windows. Windows
// must be non-empty and in increasing, non-overlapping order.
func ParseSessions(windows string) ([]Session, error) {
	parts := strings.Split(windows, ",")
	sessions := make([]Session, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.Split(part, "-")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("invalid session %q: want HH:MM-HH:MM", part)
		}
		start, err := parseClock(bounds[0])
		if err != nil {
			return nil, fmt.Errorf("invalid session %q: %w", part, err)
		}
		end, err := parseClock(bounds[1])
		if err != nil {
			return nil, fmt.Errorf("invalid session %q: %w", part, err)
		}
		if end <= start {
			return nil, fmt.Errorf("invalid session %q: end must be after start", part)
		}
		if n := len(sessions); n > 0 && start < sessions[n-1].End {
			return nil, fmt.Errorf("invalid session %q: overlaps or precedes %s", part, sessions[n-1])
		}
		sessions = append(sessions, Session{Start: start, End: end})
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no trading sessions in %q", windows)
	}
	return sessions, nil
}

func parseClock(s string) (int, error) {
	hm := strings.Split(strings.TrimSpace(s), ":")
	if len(hm) != 2 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	h, err := strconv.Atoi(hm[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(hm[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// LoadLocation loads the exchange time zone. When tzdata is not available it
// falls back to a fixed UTC+8 zone, which is exact for Asia/Shanghai.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("Time zone unavailable, using fixed UTC+8",
			logger.String("timezone", name),
			logger.ErrorField(err),
		)
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

// Phase describes where an instant falls relative to the day's sessions
type Phase string

const (
	PhasePreOpen Phase = "pre_open"
	PhaseOpen    Phase = "open"
	PhaseBreak   Phase = "break"
	PhaseClosed  Phase = "closed"
)

func phaseOf(sessions []Session, minute int) Phase {
	if minute < sessions[0].Start {
		return PhasePreOpen
	}
	for i, s := range sessions {
		if s.Contains(minute) {
			return PhaseOpen
		}
		if i+1 < len(sessions) && minute >= s.End && minute < sessions[i+1].Start {
			return PhaseBreak
		}
	}
	return PhaseClosed
}
