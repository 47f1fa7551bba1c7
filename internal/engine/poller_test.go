package engine

import (
	"context"
	"testing"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPoller(cal *fakeCalendar, source *fakeSource, store *spyStore, n *recordingNotifier) *Poller {
	e := newTestEngine(cal, source, store)
	return NewPoller(PollerConfig{LoadTimeout: time.Second}, e, store, n, StaticInterval(10*time.Millisecond))
}

func TestPoller_TickNotifies(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz159509": 1.52})
	n := &recordingNotifier{}
	p := newTestPoller(newFakeCalendar(true), source, store, n)

	insertMonitor(t, store, "sz159509", today, priceRule("r1", models.DirectionAbove, 1.50))

	assert.True(t, p.Tick(context.Background()))
	require.Equal(t, 1, n.count())
	assert.Equal(t, "Price alert", n.got[0].Title)
	assert.Equal(t, "alice", n.got[0].OwnerID)

	// Fired state was persisted, so the reload on the next tick stays quiet
	assert.True(t, p.Tick(context.Background()))
	assert.Equal(t, 1, n.count())

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Cycles)
	assert.Equal(t, int64(1), stats.Events)
}

func TestPoller_OutOfSessionSkipsLoad(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz159509": 1.52})
	p := newTestPoller(newFakeCalendar(false), source, store, &recordingNotifier{})

	insertMonitor(t, store, "sz159509", today, priceRule("r1", models.DirectionAbove, 1.50))

	p.Tick(context.Background())
	assert.Equal(t, int32(0), store.loads.Load())
	assert.Equal(t, 0, source.fetches())
	assert.Equal(t, int64(1), p.Stats().OutOfSession)
}

func TestPoller_LoadErrorSkipsCycle(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(nil)
	p := newTestPoller(newFakeCalendar(true), source, store, &recordingNotifier{})
	p.config.OwnerIDs = []string{"alice"}
	store.loadErr = errStoreDown

	p.Tick(context.Background())
	assert.Equal(t, 0, source.fetches())
	assert.Equal(t, int64(0), p.Stats().Cycles)
}

func TestPoller_ConfiguredOwners(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz159509": 1.52})
	n := &recordingNotifier{}
	p := newTestPoller(newFakeCalendar(true), source, store, n)
	p.config.OwnerIDs = []string{"bob"}

	insertMonitor(t, store, "sz159509", today, priceRule("r1", models.DirectionAbove, 1.50))

	p.Tick(context.Background())
	assert.Equal(t, 0, n.count(), "alice is not polled")
}

func TestPoller_DropsOverlappingTicks(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz159509": 1.52})
	source.block = make(chan struct{})
	p := newTestPoller(newFakeCalendar(true), source, store, &recordingNotifier{})

	insertMonitor(t, store, "sz159509", today, priceRule("r1", models.DirectionAbove, 1.50))

	done := make(chan bool)
	go func() { done <- p.Tick(context.Background()) }()

	require.Eventually(t, func() bool { return source.fetches() == 1 }, time.Second, time.Millisecond)

	assert.False(t, p.Tick(context.Background()), "tick while in flight is dropped")
	close(source.block)
	assert.True(t, <-done)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.CyclesDropped)
	assert.Equal(t, int64(1), stats.Cycles)
	assert.Equal(t, 1, source.fetches())
}

func TestPoller_StartStop(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz159509": 1.52})
	n := &recordingNotifier{}
	p := newTestPoller(newFakeCalendar(true), source, store, n)

	insertMonitor(t, store, "sz159509", today, priceRule("r1", models.DirectionAbove, 1.50))

	require.NoError(t, p.Start())
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(), "second start fails")

	require.Eventually(t, func() bool { return p.Stats().Cycles >= 3 }, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.False(t, p.IsRunning())
	assert.Equal(t, 1, n.count())

	// No further cycles once stopped
	cycles := p.Stats().Cycles
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, cycles, p.Stats().Cycles)

	p.Stop()
}

func TestPoller_TriggerNow(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz159509": 1.52})
	n := &recordingNotifier{}
	e := newTestEngine(newFakeCalendar(true), source, store)
	p := NewPoller(PollerConfig{}, e, store, n, StaticInterval(time.Hour))

	assert.False(t, p.TriggerNow(), "stopped poller ignores triggers")

	insertMonitor(t, store, "sz159509", today, priceRule("r1", models.DirectionAbove, 1.50))
	require.NoError(t, p.Start())
	defer p.Stop()

	// The initial tick fires the rule
	require.Eventually(t, func() bool { return n.count() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return p.TriggerNow() }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return p.Stats().Cycles == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, n.count())
}
