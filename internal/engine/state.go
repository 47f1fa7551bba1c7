package engine

import (
	"github.com/mohamedkhairy/stock-watchlist/internal/models"
)

// State is the daily suppression state of a monitor or rule
type State string

const (
	// StateArmed means rules may fire
	StateArmed State = "armed"
	// StateFired means a rule already notified today
	StateFired State = "fired"
	// StateAwaitingReset means a new trading day began and the next cycle
	// will clear the flags
	StateAwaitingReset State = "awaiting_reset"
)

// ApplyDailyReset clears every fired flag and stamps lastResetDate when the
// monitor was last reset on another trading day. It reports whether it
// changed anything; a second call on the same day is a no-op.
func ApplyDailyReset(m *models.Monitor, today string) bool {
	if m.LastResetDate == today {
		return false
	}
	m.ClearFired()
	m.LastResetDate = today
	return true
}

// MonitorState derives the monitor's state for display
func MonitorState(m *models.Monitor, today string) State {
	if m.LastResetDate != today {
		return StateAwaitingReset
	}
	for i := range m.Rules {
		if m.Rules[i].HasFired {
			return StateFired
		}
	}
	return StateArmed
}

// RuleState derives one rule's state for display
func RuleState(m *models.Monitor, r *models.Rule, today string) State {
	if m.LastResetDate != today {
		return StateAwaitingReset
	}
	if r.HasFired {
		return StateFired
	}
	return StateArmed
}
