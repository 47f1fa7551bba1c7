// Package engine runs the monitor evaluation cycle and the daily
// suppression state machine on top of the rule evaluator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/calendar"
	"github.com/mohamedkhairy/stock-watchlist/internal/config"
	"github.com/mohamedkhairy/stock-watchlist/internal/models"
	"github.com/mohamedkhairy/stock-watchlist/internal/quote"
	"github.com/mohamedkhairy/stock-watchlist/internal/rules"
	"github.com/mohamedkhairy/stock-watchlist/internal/storage"
	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Config holds engine timeouts and write-back concurrency
type Config struct {
	FetchTimeout       time.Duration // bound on the batch quote fetch
	PersistTimeout     time.Duration // bound on each monitor write-back
	PersistConcurrency int           // parallel write-backs per cycle
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		FetchTimeout:       5 * time.Second,
		PersistTimeout:     3 * time.Second,
		PersistConcurrency: 4,
	}
}

// ConfigFrom maps service configuration onto engine configuration
func ConfigFrom(cfg config.EngineConfig) Config {
	c := DefaultConfig()
	if cfg.FetchTimeout > 0 {
		c.FetchTimeout = cfg.FetchTimeout
	}
	if cfg.PersistTimeout > 0 {
		c.PersistTimeout = cfg.PersistTimeout
	}
	if cfg.PersistConcurrency > 0 {
		c.PersistConcurrency = cfg.PersistConcurrency
	}
	return c
}

// Engine evaluates monitors against live snapshots
type Engine struct {
	config   Config
	calendar calendar.Calendar
	quotes   quote.Source
	store    storage.MonitorStore
	locks    *MonitorLocks
	now      func() time.Time

	// cycleMu serializes RunCycle for direct callers
	cycleMu sync.Mutex
}

// NewEngine creates an engine. locks must be shared with every other writer
// of the store.
func NewEngine(
	config Config,
	cal calendar.Calendar,
	quotes quote.Source,
	store storage.MonitorStore,
	locks *MonitorLocks,
) *Engine {
	if cal == nil {
		panic("calendar cannot be nil")
	}
	if quotes == nil {
		panic("quote source cannot be nil")
	}
	if store == nil {
		panic("store cannot be nil")
	}
	if locks == nil {
		locks = NewMonitorLocks()
	}
	if config.PersistConcurrency <= 0 {
		config.PersistConcurrency = 1
	}

	return &Engine{
		config:   config,
		calendar: cal,
		quotes:   quotes,
		store:    store,
		locks:    locks,
		now:      time.Now,
	}
}

// InSession reports whether the exchange is open now
func (e *Engine) InSession(ctx context.Context) bool {
	return e.calendar.IsWithinSession(ctx, e.now())
}

// Today returns the current trading date
func (e *Engine) Today() string {
	return e.calendar.TradingDate(e.now())
}

// Locks returns the per-monitor locks the engine writes under
func (e *Engine) Locks() *MonitorLocks {
	return e.locks
}

// RunCycle runs one evaluation cycle over monitors, mutating their fired
// state in place, and returns the trigger events in monitor order. Changed
// monitors are written back before it returns. A failed write-back is logged
// and the in-memory fired state and event are kept.
func (e *Engine) RunCycle(ctx context.Context, monitors []*models.Monitor) []models.TriggerEvent {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	now := e.now()
	log := logger.WithContext(ctx)

	if !e.calendar.IsWithinSession(ctx, now) {
		logger.CyclesTotal.WithLabelValues("out_of_session").Inc()
		return nil
	}

	codes := activeCodes(monitors)
	if len(codes) == 0 {
		logger.CyclesTotal.WithLabelValues("idle").Inc()
		return nil
	}

	start := time.Now()
	today := e.calendar.TradingDate(now)

	fetchCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
	snapshots := e.quotes.FetchSnapshots(fetchCtx, codes)
	cancel()

	var events []models.TriggerEvent
	var changed []*models.Monitor
	resets := 0

	for _, m := range monitors {
		if m == nil || !m.IsActive {
			continue
		}
		snap, ok := snapshots[models.NormalizeCode(m.Code)]
		if !ok {
			// Retried next cycle
			continue
		}

		if ApplyDailyReset(m, today) {
			resets++
			changed = append(changed, m)
			continue
		}

		var fired []int
		for i := range m.Rules {
			rule := &m.Rules[i]
			if !rules.Eligible(rule) || !rules.Evaluate(rule, &snap) {
				continue
			}
			rule.HasFired = true
			m.LastResetDate = today
			fired = append(fired, i)
			logger.TriggersTotal.WithLabelValues(string(rule.Kind)).Inc()
		}
		if len(fired) == 0 {
			continue
		}

		changed = append(changed, m)
		state := m.Clone()
		for _, i := range fired {
			events = append(events, models.TriggerEvent{
				Monitor:     *state,
				Rule:        state.Rules[i],
				Snapshot:    snap,
				TriggeredAt: now,
			})
		}
	}

	e.persist(ctx, changed)

	elapsed := time.Since(start)
	logger.CyclesTotal.WithLabelValues("evaluated").Inc()
	logger.CycleDuration.Observe(elapsed.Seconds())
	log.Debug("Cycle evaluated",
		logger.Int("monitors", len(monitors)),
		logger.Int("codes", len(codes)),
		logger.Int("snapshots", len(snapshots)),
		logger.Int("resets", resets),
		logger.Int("events", len(events)),
		logger.Duration("duration", elapsed),
	)

	return events
}

// persist writes changed monitors back concurrently and waits for all of them
func (e *Engine) persist(ctx context.Context, changed []*models.Monitor) {
	if len(changed) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(e.config.PersistConcurrency)

	for _, m := range changed {
		m := m
		g.Go(func() error {
			if err := e.writeBack(ctx, m); err != nil {
				logger.PersistErrorsTotal.Inc()
				logger.WithContext(ctx).Error("Failed to persist monitor state",
					logger.String("monitor_id", m.ID),
					logger.String("code", m.Code),
					logger.ErrorField(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// writeBack merges the cycle's fired flags and reset date into the stored
// copy of m, so concurrent edits to other fields survive.
func (e *Engine) writeBack(ctx context.Context, m *models.Monitor) error {
	unlock := e.locks.Lock(m.ID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, e.config.PersistTimeout)
	defer cancel()

	stored, err := e.store.Get(ctx, m.ID)
	if err != nil {
		if errors.Is(err, models.ErrMonitorNotFound) {
			// Deleted while the cycle ran
			return nil
		}
		return fmt.Errorf("failed to reload monitor: %w", err)
	}

	merged := models.CloneRules(stored.Rules)
	for i := range merged {
		if r := m.Rule(merged[i].ID); r != nil {
			merged[i].HasFired = r.HasFired
		}
	}
	date := m.LastResetDate

	if _, err := e.store.Replace(ctx, m.ID, models.MonitorPatch{
		Rules:         merged,
		LastResetDate: &date,
	}); err != nil {
		return fmt.Errorf("failed to replace monitor: %w", err)
	}
	return nil
}

// ResetRule re-arms one rule without waiting for the daily boundary
func (e *Engine) ResetRule(ctx context.Context, monitorID, ruleID string) (*models.Monitor, error) {
	unlock := e.locks.Lock(monitorID)
	defer unlock()

	m, err := e.store.Get(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	if m.Rule(ruleID) == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrRuleNotFound, ruleID)
	}

	updated := models.CloneRules(m.Rules)
	for i := range updated {
		if updated[i].ID == ruleID {
			updated[i].HasFired = false
		}
	}
	return e.store.Replace(ctx, monitorID, models.MonitorPatch{Rules: updated})
}

// ResetMonitor re-arms every rule of a monitor and stamps today's date
func (e *Engine) ResetMonitor(ctx context.Context, monitorID string) (*models.Monitor, error) {
	unlock := e.locks.Lock(monitorID)
	defer unlock()

	m, err := e.store.Get(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	m.ClearFired()
	today := e.Today()
	return e.store.Replace(ctx, monitorID, models.MonitorPatch{
		Rules:         m.Rules,
		LastResetDate: &today,
	})
}

func activeCodes(monitors []*models.Monitor) []string {
	seen := make(map[string]struct{}, len(monitors))
	codes := make([]string, 0, len(monitors))
	for _, m := range monitors {
		if m == nil || !m.IsActive {
			continue
		}
		code := models.NormalizeCode(m.Code)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}
