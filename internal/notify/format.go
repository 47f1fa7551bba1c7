package notify

import (
	"fmt"

	"github.com/mohamedkhairy/stock-watchlist/internal/models"
)

// FromEvent builds the notification for a trigger event
func FromEvent(ev models.TriggerEvent) Notification {
	return Notification{
		OwnerID: ev.Monitor.OwnerID,
		Title:   Title(ev.Rule.Kind),
		Body:    Body(ev),
		Event:   ev,
	}
}

// Title returns the notification title for a rule kind
func Title(kind models.RuleKind) string {
	switch kind {
	case models.RuleKindPremium:
		return "Premium alert"
	case models.RuleKindChangePercent:
		return "Change alert"
	default:
		return "Price alert"
	}
}

// Body renders "name(code) current <field> X is above/below target Y".
// Prices use three decimals, percentages two.
func Body(ev models.TriggerEvent) string {
	name := ev.Monitor.Name
	if name == "" {
		name = ev.Snapshot.Name
	}
	threshold, _ := ev.Rule.Threshold()
	value, _ := ev.Snapshot.Value(ev.Rule.Kind)

	return fmt.Sprintf("%s(%s) current %s %s is %s target %s",
		name,
		ev.Monitor.Code,
		fieldLabel(ev.Rule.Kind),
		formatValue(ev.Rule.Kind, value),
		ev.Rule.Direction,
		formatValue(ev.Rule.Kind, threshold),
	)
}

func fieldLabel(kind models.RuleKind) string {
	switch kind {
	case models.RuleKindPremium:
		return "premium"
	case models.RuleKindChangePercent:
		return "change"
	default:
		return "price"
	}
}

func formatValue(kind models.RuleKind, v float64) string {
	if kind == models.RuleKindPrice {
		return fmt.Sprintf("%.3f", v)
	}
	return fmt.Sprintf("%.2f%%", v)
}
