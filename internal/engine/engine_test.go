package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/mohamedkhairy/stock-watchlist/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCycle_FiresOnce(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz159509": 1.52})
	e := newTestEngine(newFakeCalendar(true), source, store)
	ctx := context.Background()

	m := insertMonitor(t, store, "sz159509", today, priceRule("r1", models.DirectionAbove, 1.50))

	events := e.RunCycle(ctx, []*models.Monitor{m})
	require.Len(t, events, 1)
	assert.Equal(t, "r1", events[0].Rule.ID)
	assert.True(t, events[0].Rule.HasFired)
	assert.Equal(t, 1.52, events[0].Snapshot.CurrentPrice)
	assert.Equal(t, m.ID, events[0].Monitor.ID)
	assert.True(t, m.Rules[0].HasFired)

	stored, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, stored.Rules[0].HasFired)
	assert.Equal(t, today, stored.LastResetDate)

	// Condition still holds, but the rule stays suppressed
	assert.Empty(t, e.RunCycle(ctx, []*models.Monitor{m}))

	// Same result when reloaded from the store
	reloaded, err := store.LoadAll(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, e.RunCycle(ctx, reloaded))
}

func TestRunCycle_ResetConsumesCycle(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz159509": 1.52})
	e := newTestEngine(newFakeCalendar(true), source, store)
	ctx := context.Background()

	m := insertMonitor(t, store, "sz159509", yesterday, priceRule("r1", models.DirectionAbove, 1.50))

	assert.Empty(t, e.RunCycle(ctx, []*models.Monitor{m}), "reset cycle emits nothing")
	assert.Equal(t, today, m.LastResetDate)

	stored, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, today, stored.LastResetDate)

	events := e.RunCycle(ctx, []*models.Monitor{m})
	assert.Len(t, events, 1)
}

func TestRunCycle_ResetClearsYesterdaysFlags(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz159509": 1.52})
	e := newTestEngine(newFakeCalendar(true), source, store)
	ctx := context.Background()

	fired := priceRule("r1", models.DirectionAbove, 1.50)
	fired.HasFired = true
	m := insertMonitor(t, store, "sz159509", yesterday, fired)

	assert.Empty(t, e.RunCycle(ctx, []*models.Monitor{m}))
	assert.False(t, m.Rules[0].HasFired)
	assert.Len(t, e.RunCycle(ctx, []*models.Monitor{m}), 1)
}

func TestRunCycle_LiftedLegacyRecordResetsNextDay(t *testing.T) {
	rec, err := models.DecodeMonitorRecord([]byte(`{
		"id":"m1","code":"159509","name":"ETF","monitorType":"price",
		"targetPrice":1.5,"condition":"above","isActive":true,"notificationSent":true
	}`))
	require.NoError(t, err)
	lifted, err := rec.Migrate(yesterday)
	require.NoError(t, err)
	require.True(t, lifted.Rules[0].HasFired)

	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz159509": 1.52})
	e := newTestEngine(newFakeCalendar(true), source, store)
	ctx := context.Background()

	m := insertMonitor(t, store, lifted.Code, lifted.LastResetDate, lifted.Rules...)

	assert.Empty(t, e.RunCycle(ctx, []*models.Monitor{m}), "first cycle of the day resets")
	assert.False(t, m.Rules[0].HasFired)

	events := e.RunCycle(ctx, []*models.Monitor{m})
	require.Len(t, events, 1)
	assert.Equal(t, models.LegacyRuleID, events[0].Rule.ID)
}

func TestRunCycle_InclusiveBoundary(t *testing.T) {
	tests := []struct {
		name      string
		direction models.Direction
		price     float64
		want      int
	}{
		{"above at threshold", models.DirectionAbove, 10.00, 1},
		{"above just under", models.DirectionAbove, 9.999999, 0},
		{"below at threshold", models.DirectionBelow, 10.00, 1},
		{"below just over", models.DirectionBelow, 10.000001, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newSpyStore()
			source := newFakeSource(map[string]float64{"sz000001": tt.price})
			e := newTestEngine(newFakeCalendar(true), source, store)

			m := insertMonitor(t, store, "sz000001", today, priceRule("r1", tt.direction, 10.00))
			assert.Len(t, e.RunCycle(context.Background(), []*models.Monitor{m}), tt.want)
		})
	}
}

func TestRunCycle_OutOfSession(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz159509": 1.52})
	e := newTestEngine(newFakeCalendar(false), source, store)

	fired := priceRule("r1", models.DirectionAbove, 1.50)
	fired.HasFired = true
	m := insertMonitor(t, store, "sz159509", yesterday, fired)

	assert.Empty(t, e.RunCycle(context.Background(), []*models.Monitor{m}))
	assert.Equal(t, 0, source.fetches())
	assert.Equal(t, int32(0), store.replaces.Load())
	assert.True(t, m.Rules[0].HasFired, "no reset outside the session")
	assert.Equal(t, yesterday, m.LastResetDate)
}

func TestRunCycle_PartialSnapshots(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz000001": 12, "sh600000": 8})
	e := newTestEngine(newFakeCalendar(true), source, store)

	a := insertMonitor(t, store, "sz000001", today, priceRule("r1", models.DirectionAbove, 10))
	b := insertMonitor(t, store, "sh600000", today, priceRule("r1", models.DirectionBelow, 9))
	c := insertMonitor(t, store, "sz000002", today, priceRule("r1", models.DirectionAbove, 1))

	events := e.RunCycle(context.Background(), []*models.Monitor{a, b, c})
	require.Len(t, events, 2)
	assert.Equal(t, a.ID, events[0].Monitor.ID)
	assert.Equal(t, b.ID, events[1].Monitor.ID)
	assert.False(t, c.Rules[0].HasFired)
	assert.Equal(t, []string{"sz000001", "sh600000", "sz000002"}, source.calls[0])
}

func TestRunCycle_SkipsInactive(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz000001": 12, "sz000002": 12})
	e := newTestEngine(newFakeCalendar(true), source, store)
	ctx := context.Background()

	inactiveMonitor := insertMonitor(t, store, "sz000001", today, priceRule("r1", models.DirectionAbove, 10))
	inactiveMonitor.IsActive = false

	off := priceRule("r1", models.DirectionAbove, 10)
	off.IsActive = false
	inactiveRule := insertMonitor(t, store, "sz000002", today, off, priceRule("r2", models.DirectionAbove, 11))

	events := e.RunCycle(ctx, []*models.Monitor{inactiveMonitor, inactiveRule})
	require.Len(t, events, 1)
	assert.Equal(t, "r2", events[0].Rule.ID)
	assert.Equal(t, []string{"sz000002"}, source.calls[0], "inactive monitors are not fetched")

	// Nothing active at all means no fetch
	inactiveRule.IsActive = false
	assert.Empty(t, e.RunCycle(ctx, []*models.Monitor{inactiveMonitor, inactiveRule}))
	assert.Equal(t, 1, source.fetches())
}

func TestRunCycle_MultipleRulesAndKinds(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(nil)
	source.set("sz159509", models.Snapshot{Code: "sz159509", CurrentPrice: 1.52, Premium: 3.1, ChangePercent: -2.5})
	e := newTestEngine(newFakeCalendar(true), source, store)

	m := insertMonitor(t, store, "sz159509", today,
		priceRule("price", models.DirectionAbove, 1.60),
		models.Rule{ID: "premium", Kind: models.RuleKindPremium, Direction: models.DirectionAbove, PremiumThreshold: models.Float(3), IsActive: true},
		models.Rule{ID: "change", Kind: models.RuleKindChangePercent, Direction: models.DirectionBelow, ChangePercentThreshold: models.Float(-2), IsActive: true},
	)

	events := e.RunCycle(context.Background(), []*models.Monitor{m})
	require.Len(t, events, 2)
	assert.Equal(t, "premium", events[0].Rule.ID)
	assert.Equal(t, "change", events[1].Rule.ID)
	assert.True(t, events[0].Monitor.Rules[2].HasFired, "event carries the monitor state after the cycle")
	assert.False(t, m.Rules[0].HasFired)
}

func TestRunCycle_PersistFailureKeepsFiredState(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz159509": 1.52})
	e := newTestEngine(newFakeCalendar(true), source, store)
	ctx := context.Background()

	m := insertMonitor(t, store, "sz159509", today, priceRule("r1", models.DirectionAbove, 1.50))
	store.replaceErr = errStoreDown

	events := e.RunCycle(ctx, []*models.Monitor{m})
	require.Len(t, events, 1, "event is still returned")
	assert.True(t, m.Rules[0].HasFired, "in-memory state is not rolled back")

	stored, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, stored.Rules[0].HasFired)

	// A reload re-fires: delivery is at-least-once
	store.replaceErr = nil
	reloaded, err := store.LoadAll(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, e.RunCycle(ctx, reloaded), 1)
}

func TestRunCycle_PersistMergesConcurrentEdits(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz159509": 1.52})
	e := newTestEngine(newFakeCalendar(true), source, store)
	ctx := context.Background()

	m := insertMonitor(t, store, "sz159509", today,
		priceRule("r1", models.DirectionAbove, 1.50),
		priceRule("r2", models.DirectionAbove, 2.00),
	)

	// A user edit lands after the cycle loaded its copy
	edited := models.CloneRules(m.Rules)
	edited[1].TargetPrice = models.Float(1.80)
	_, err := store.Replace(ctx, m.ID, models.MonitorPatch{Name: models.StringPtr("Renamed"), Rules: edited})
	require.NoError(t, err)

	require.Len(t, e.RunCycle(ctx, []*models.Monitor{m}), 1)

	stored, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, 1.80, *stored.Rules[1].TargetPrice)
	assert.True(t, stored.Rules[0].HasFired)
	assert.False(t, stored.Rules[1].HasFired)
}

func TestRunCycle_MonitorDeletedDuringCycle(t *testing.T) {
	store := newSpyStore()
	source := newFakeSource(map[string]float64{"sz159509": 1.52})
	e := newTestEngine(newFakeCalendar(true), source, store)
	ctx := context.Background()

	m := insertMonitor(t, store, "sz159509", today, priceRule("r1", models.DirectionAbove, 1.50))
	_, err := store.Delete(ctx, m.ID)
	require.NoError(t, err)

	assert.Len(t, e.RunCycle(ctx, []*models.Monitor{m}), 1)
	assert.Equal(t, int32(0), store.replaces.Load())
}

func TestResetRule(t *testing.T) {
	store := newSpyStore()
	e := newTestEngine(newFakeCalendar(true), newFakeSource(nil), store)
	ctx := context.Background()

	r1 := priceRule("r1", models.DirectionAbove, 1.50)
	r1.HasFired = true
	r2 := priceRule("r2", models.DirectionAbove, 2.00)
	r2.HasFired = true
	m := insertMonitor(t, store, "sz159509", today, r1, r2)

	updated, err := e.ResetRule(ctx, m.ID, "r1")
	require.NoError(t, err)
	assert.False(t, updated.Rules[0].HasFired)
	assert.True(t, updated.Rules[1].HasFired)

	_, err = e.ResetRule(ctx, m.ID, "missing")
	assert.True(t, errors.Is(err, models.ErrRuleNotFound), "got %v", err)

	_, err = e.ResetRule(ctx, "missing", "r1")
	assert.True(t, errors.Is(err, models.ErrMonitorNotFound), "got %v", err)
}

func TestResetMonitor(t *testing.T) {
	store := newSpyStore()
	e := newTestEngine(newFakeCalendar(true), newFakeSource(nil), store)
	ctx := context.Background()

	r1 := priceRule("r1", models.DirectionAbove, 1.50)
	r1.HasFired = true
	m := insertMonitor(t, store, "sz159509", yesterday, r1)

	updated, err := e.ResetMonitor(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, updated.Rules[0].HasFired)
	assert.Equal(t, today, updated.LastResetDate)

	_, err = e.ResetMonitor(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrMonitorNotFound), "got %v", err)
}

func TestConfigFrom(t *testing.T) {
	c := ConfigFrom(configWithConcurrency(0))
	assert.Equal(t, DefaultConfig(), c)

	c = ConfigFrom(configWithConcurrency(8))
	assert.Equal(t, 8, c.PersistConcurrency)
}
