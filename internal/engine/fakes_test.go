package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/models"
	"github.com/mohamedkhairy/stock-watchlist/internal/notify"
	"github.com/mohamedkhairy/stock-watchlist/internal/storage"
	"github.com/stretchr/testify/require"
)

const (
	today     = "2025-01-06"
	yesterday = "2025-01-03"
)

var errStoreDown = errors.New("store down")

// fakeCalendar reports a fixed session state and trading date
type fakeCalendar struct {
	open atomic.Bool
	date string
}

func newFakeCalendar(open bool) *fakeCalendar {
	c := &fakeCalendar{date: today}
	c.open.Store(open)
	return c
}

func (c *fakeCalendar) IsTradingDay(ctx context.Context, t time.Time) bool {
	return true
}

func (c *fakeCalendar) IsWithinSession(ctx context.Context, t time.Time) bool {
	return c.open.Load()
}

func (c *fakeCalendar) TradingDate(t time.Time) string {
	return c.date
}

// fakeSource serves fixed snapshots and records every fetch
type fakeSource struct {
	mu        sync.Mutex
	snapshots map[string]models.Snapshot
	calls     [][]string
	block     chan struct{}
}

func newFakeSource(prices map[string]float64) *fakeSource {
	s := &fakeSource{snapshots: make(map[string]models.Snapshot)}
	for code, price := range prices {
		s.snapshots[code] = models.Snapshot{Code: code, CurrentPrice: price}
	}
	return s
}

func (s *fakeSource) FetchSnapshots(ctx context.Context, codes []string) map[string]models.Snapshot {
	s.mu.Lock()
	s.calls = append(s.calls, append([]string(nil), codes...))
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.Snapshot)
	for _, code := range codes {
		if snap, ok := s.snapshots[code]; ok {
			out[code] = snap
		}
	}
	return out
}

func (s *fakeSource) set(code string, snap models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[code] = snap
}

func (s *fakeSource) fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// spyStore wraps the in-memory store and can fail writes
type spyStore struct {
	*storage.InMemoryMonitorStore
	replaceErr error
	loadErr    error
	loads      atomic.Int32
	replaces   atomic.Int32
	beforeGet  func(id string)
}

func newSpyStore() *spyStore {
	return &spyStore{InMemoryMonitorStore: storage.NewInMemoryMonitorStore()}
}

func (s *spyStore) LoadAll(ctx context.Context, ownerID string) ([]*models.Monitor, error) {
	s.loads.Add(1)
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.InMemoryMonitorStore.LoadAll(ctx, ownerID)
}

func (s *spyStore) Get(ctx context.Context, id string) (*models.Monitor, error) {
	if s.beforeGet != nil {
		s.beforeGet(id)
	}
	return s.InMemoryMonitorStore.Get(ctx, id)
}

func (s *spyStore) Replace(ctx context.Context, id string, patch models.MonitorPatch) (*models.Monitor, error) {
	s.replaces.Add(1)
	if s.replaceErr != nil {
		return nil, s.replaceErr
	}
	return s.InMemoryMonitorStore.Replace(ctx, id, patch)
}

// recordingNotifier captures notifications
type recordingNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func priceRule(id string, direction models.Direction, target float64) models.Rule {
	return models.Rule{
		ID:          id,
		Kind:        models.RuleKindPrice,
		Direction:   direction,
		TargetPrice: models.Float(target),
		IsActive:    true,
	}
}

func insertMonitor(t *testing.T, store storage.MonitorStore, code, lastReset string, rules ...models.Rule) *models.Monitor {
	t.Helper()
	m, err := store.Insert(context.Background(), &models.Monitor{
		OwnerID:       "alice",
		Code:          code,
		Name:          "Test " + code,
		IsActive:      true,
		Rules:         rules,
		LastResetDate: lastReset,
	})
	require.NoError(t, err)
	return m
}

func newTestEngine(cal *fakeCalendar, source *fakeSource, store storage.MonitorStore) *Engine {
	return NewEngine(DefaultConfig(), cal, source, store, NewMonitorLocks())
}
