package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/models"
	"github.com/mohamedkhairy/stock-watchlist/internal/notify"
	"github.com/mohamedkhairy/stock-watchlist/internal/storage"
	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
)

// PollerConfig holds poll loop configuration
type PollerConfig struct {
	OwnerIDs    []string      // owners to poll; empty means every owner in the store
	LoadTimeout time.Duration // bound on loading monitors each tick
}

// PollerStats holds statistics about the poll loop
type PollerStats struct {
	Ticks         int64
	Cycles        int64 // ticks that reached RunCycle
	CyclesDropped int64 // ticks dropped because a cycle was in flight
	OutOfSession  int64
	LoadErrors    int64
	Events        int64
	LastCycleTime time.Duration
	LastCycleAt   time.Time
}

// Poller drives the engine on an interval and forwards trigger events to the
// notifier. At most one cycle is in flight; overlapping ticks are dropped.
type Poller struct {
	config   PollerConfig
	engine   *Engine
	store    storage.MonitorStore
	notifier notify.Notifier
	interval IntervalSource

	inFlight atomic.Bool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool

	statsMu sync.RWMutex
	stats   PollerStats
}

// NewPoller creates a poller
func NewPoller(
	config PollerConfig,
	engine *Engine,
	store storage.MonitorStore,
	notifier notify.Notifier,
	interval IntervalSource,
) *Poller {
	if engine == nil {
		panic("engine cannot be nil")
	}
	if store == nil {
		panic("store cannot be nil")
	}
	if notifier == nil {
		notifier = notify.Multi{}
	}
	if interval == nil {
		interval = StaticInterval(5 * time.Second)
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = 5 * time.Second
	}

	return &Poller{
		config:   config,
		engine:   engine,
		store:    store,
		notifier: notifier,
		interval: interval,
	}
}

// Start starts the poll loop. The first tick runs immediately.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("poller is already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())

	logger.Info("Starting poller",
		logger.Duration("interval", p.interval.CurrentInterval()),
		logger.Strings("owners", p.config.OwnerIDs),
	)

	p.wg.Add(1)
	go p.run(p.ctx)

	return nil
}

// Stop stops the loop and waits for any in-flight cycle
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	logger.Info("Stopping poller")
	p.cancel()
	p.wg.Wait()
	logger.Info("Poller stopped")
}

// IsRunning returns whether the poll loop is running
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Stats returns a copy of the poller statistics
func (p *Poller) Stats() PollerStats {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()
	return p.stats
}

// TriggerNow runs a cycle immediately in the background. It reports false
// when the poller is stopped or a cycle is already in flight.
func (p *Poller) TriggerNow() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return false
	}
	if !p.acquire() {
		return false
	}

	ctx := p.ctx
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)
		p.cycle(ctx)
	}()
	return true
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	p.Tick(ctx)

	for {
		timer := time.NewTimer(p.interval.CurrentInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one cycle unless another is in flight, in which case the tick is
// dropped. It reports whether the cycle ran.
func (p *Poller) Tick(ctx context.Context) bool {
	if !p.acquire() {
		return false
	}
	defer p.inFlight.Store(false)
	p.cycle(ctx)
	return true
}

func (p *Poller) acquire() bool {
	p.statsMu.Lock()
	p.stats.Ticks++
	p.statsMu.Unlock()

	if p.inFlight.CompareAndSwap(false, true) {
		return true
	}

	p.statsMu.Lock()
	p.stats.CyclesDropped++
	p.statsMu.Unlock()
	logger.CyclesTotal.WithLabelValues("dropped").Inc()
	logger.Debug("Dropping tick, previous cycle still in flight")
	return false
}

func (p *Poller) cycle(ctx context.Context) {
	ctx = logger.WithCycleID(ctx, logger.NewCycleID())

	if !p.engine.InSession(ctx) {
		p.statsMu.Lock()
		p.stats.OutOfSession++
		p.statsMu.Unlock()
		logger.CyclesTotal.WithLabelValues("out_of_session").Inc()
		return
	}

	start := time.Now()
	monitors, err := p.loadMonitors(ctx)
	if err != nil {
		p.statsMu.Lock()
		p.stats.LoadErrors++
		p.statsMu.Unlock()
		logger.WithContext(ctx).Warn("Failed to load monitors", logger.ErrorField(err))
		return
	}

	events := p.engine.RunCycle(ctx, monitors)
	for _, ev := range events {
		p.notifier.Notify(ctx, notify.FromEvent(ev))
	}

	elapsed := time.Since(start)
	p.statsMu.Lock()
	p.stats.Cycles++
	p.stats.Events += int64(len(events))
	p.stats.LastCycleTime = elapsed
	p.stats.LastCycleAt = start
	p.statsMu.Unlock()
}

// loadMonitors loads the monitors of every polled owner. A failing owner is
// skipped; the error is returned only when nothing could be listed.
func (p *Poller) loadMonitors(ctx context.Context) ([]*models.Monitor, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.LoadTimeout)
	defer cancel()

	owners := p.config.OwnerIDs
	if len(owners) == 0 {
		listed, err := p.store.ListOwners(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list owners: %w", err)
		}
		owners = listed
	}

	var monitors []*models.Monitor
	for _, owner := range owners {
		loaded, err := p.store.LoadAll(ctx, owner)
		if err != nil {
			logger.WithContext(ctx).Warn("Failed to load owner monitors",
				logger.String("owner_id", owner),
				logger.ErrorField(err),
			)
			continue
		}
		monitors = append(monitors, loaded...)
	}
	return monitors, nil
}
