package models

import "time"

// Snapshot is the most recent quote for one instrument. Only CurrentPrice,
// ChangePercent and Premium are evaluated by rules.
type Snapshot struct {
	Code            string  `json:"code"`
	Name            string  `json:"name,omitempty"`
	CurrentPrice    float64 `json:"current_price"`
	Change          float64 `json:"change"`
	ChangePercent   float64 `json:"change_percent"`
	Open            float64 `json:"open"`
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	Volume          float64 `json:"volume"`
	Premium         float64 `json:"premium"` // raw signed feed field
	TimestampMillis int64   `json:"timestamp_ms"`
}

// Value returns the snapshot field a rule of the given kind compares against
func (s *Snapshot) Value(kind RuleKind) (float64, bool) {
	switch kind {
	case RuleKindPrice:
		return s.CurrentPrice, true
	case RuleKindPremium:
		return s.Premium, true
	case RuleKindChangePercent:
		return s.ChangePercent, true
	}
	return 0, false
}

// TriggerEvent is emitted when a rule transitions from armed to fired
type TriggerEvent struct {
	Monitor     Monitor   `json:"monitor"`
	Rule        Rule      `json:"rule"`
	Snapshot    Snapshot  `json:"snapshot"`
	TriggeredAt time.Time `json:"triggered_at"`
}
