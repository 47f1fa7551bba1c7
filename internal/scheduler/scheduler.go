// Package scheduler runs the calendar's housekeeping jobs on cron schedules
// evaluated in the exchange time zone.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/calendar"
	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
	"github.com/robfig/cron/v3"
)

const (
	// DefaultPreOpenSchedule warms the current year before the morning open
	DefaultPreOpenSchedule = "15 9 * * 1-5"
	// NextYearSchedule warms the following year once it is likely published
	NextYearSchedule = "0 0 1 12 *"
)

// HolidayPrefetcher loads and caches a year's holiday list
type HolidayPrefetcher interface {
	Holidays(ctx context.Context, year int) (map[string]calendar.Holiday, error)
}

// StatusReporter reports the market state at an instant
type StatusReporter interface {
	Status(ctx context.Context, t time.Time) calendar.Status
}

// Config holds scheduler configuration
type Config struct {
	PreOpenSchedule string
	Location        *time.Location
	JobTimeout      time.Duration
}

// Scheduler wraps a cron instance running the holiday prefetch jobs
type Scheduler struct {
	config   Config
	cron     *cron.Cron
	holidays HolidayPrefetcher
	status   StatusReporter
	now      func() time.Time

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler. status may be nil.
func NewScheduler(config Config, holidays HolidayPrefetcher, status StatusReporter) *Scheduler {
	if config.PreOpenSchedule == "" {
		config.PreOpenSchedule = DefaultPreOpenSchedule
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 30 * time.Second
	}

	cronLogger := zapCronLogger{}
	return &Scheduler{
		config: config,
		cron: cron.New(
			cron.WithLocation(config.Location),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		holidays: holidays,
		status:   status,
		now:      time.Now,
	}
}

// Start registers the jobs and starts the cron loop
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if _, err := s.cron.AddFunc(s.config.PreOpenSchedule, s.PreOpen); err != nil {
		return fmt.Errorf("invalid pre-open schedule %q: %w", s.config.PreOpenSchedule, err)
	}
	if _, err := s.cron.AddFunc(NextYearSchedule, s.PrefetchNextYear); err != nil {
		return fmt.Errorf("invalid next-year schedule: %w", err)
	}

	s.cron.Start()
	s.running = true

	logger.Info("Scheduler started",
		logger.String("pre_open", s.config.PreOpenSchedule),
		logger.String("next_year", NextYearSchedule),
		logger.String("timezone", s.config.Location.String()),
	)
	return nil
}

// Stop stops the cron loop and waits for running jobs
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	logger.Info("Scheduler stopped")
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// PreOpen prefetches the current year's holidays and logs the day's status
func (s *Scheduler) PreOpen() {
	now := s.now().In(s.config.Location)
	s.prefetch(now.Year())

	if s.status == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.config.JobTimeout)
	defer cancel()

	st := s.status.Status(ctx, now)
	logger.Info("Pre-open check",
		logger.String("trading_date", st.TradingDate),
		logger.Bool("trading_day", st.TradingDay),
	)
}

// PrefetchNextYear prefetches the following year's holidays
func (s *Scheduler) PrefetchNextYear() {
	s.prefetch(s.now().In(s.config.Location).Year() + 1)
}

func (s *Scheduler) prefetch(year int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.JobTimeout)
	defer cancel()

	start := time.Now()
	holidays, err := s.holidays.Holidays(ctx, year)
	if err != nil {
		logger.Warn("Holiday prefetch failed",
			logger.Int("year", year),
			logger.ErrorField(err),
		)
		return
	}

	logger.Info("Holiday prefetch complete",
		logger.Int("year", year),
		logger.Int("entries", len(holidays)),
		logger.Duration("duration", time.Since(start)),
	)
}

// zapCronLogger routes cron's own logging into the service logger
type zapCronLogger struct{}

func (zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Get().Sugar().Debugw(msg, keysAndValues...)
}

func (zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Get().Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
