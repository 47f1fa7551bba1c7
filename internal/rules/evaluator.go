// Package rules decides whether a single monitor rule holds against a quote
// snapshot. It knows nothing about suppression or trading hours.
package rules

import (
	"github.com/mohamedkhairy/stock-watchlist/internal/models"
)

// Evaluate reports whether rule's condition holds for snapshot. Both
// directions are inclusive: a value equal to the threshold triggers. A rule
// without a threshold for its kind, or with an unknown kind or direction,
// never triggers.
func Evaluate(rule *models.Rule, snapshot *models.Snapshot) bool {
	if rule == nil || snapshot == nil {
		return false
	}
	threshold, ok := rule.Threshold()
	if !ok {
		return false
	}
	value, ok := snapshot.Value(rule.Kind)
	if !ok {
		return false
	}
	return Compare(rule.Direction, value, threshold)
}

// Compare applies an inclusive comparison in the given direction
func Compare(direction models.Direction, value, threshold float64) bool {
	switch direction {
	case models.DirectionAbove:
		return value >= threshold
	case models.DirectionBelow:
		return value <= threshold
	default:
		return false
	}
}

// Eligible reports whether a rule takes part in evaluation: it must be active
// and not already fired today.
func Eligible(rule *models.Rule) bool {
	return rule.IsActive && !rule.HasFired
}
