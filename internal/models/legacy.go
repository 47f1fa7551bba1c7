package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LegacyRuleID is the id given to the single rule lifted out of a legacy record
const LegacyRuleID = "legacy"

// LegacyMonitor is the pre-multi-rule record shape, with one rule's fields
// stored inline on the monitor.
type LegacyMonitor struct {
	ID                     string
	OwnerID                string
	Code                   string
	Name                   string
	MonitorType            string
	TargetPrice            *float64
	Condition              string
	PremiumThreshold       *float64
	ChangePercentThreshold *float64
	IsActive               *bool
	NotificationSent       bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Lift converts the legacy record into the current shape. A missing monitor
// type is read as a price rule and a missing condition as "above". A record
// that had already notified keeps its rule fired and is stamped with
// firedOn, the trading date the notification belongs to. The stamp must not
// depend on when the record is read, otherwise the daily reset never sees a
// new day.
func (l *LegacyMonitor) Lift(firedOn string) (*Monitor, error) {
	kind := RuleKindPrice
	if strings.TrimSpace(l.MonitorType) != "" {
		k, err := ParseRuleKind(l.MonitorType)
		if err != nil {
			return nil, err
		}
		kind = k
	}
	direction := DirectionAbove
	if strings.TrimSpace(l.Condition) != "" {
		d, err := ParseDirection(l.Condition)
		if err != nil {
			return nil, err
		}
		direction = d
	}

	rule := Rule{
		ID:                     LegacyRuleID,
		Kind:                   kind,
		Direction:              direction,
		TargetPrice:            cloneFloat(l.TargetPrice),
		PremiumThreshold:       cloneFloat(l.PremiumThreshold),
		ChangePercentThreshold: cloneFloat(l.ChangePercentThreshold),
		IsActive:               true,
		HasFired:               l.NotificationSent,
	}

	m := &Monitor{
		ID:        l.ID,
		OwnerID:   l.OwnerID,
		Code:      NormalizeCode(l.Code),
		Name:      strings.TrimSpace(l.Name),
		IsActive:  l.IsActive == nil || *l.IsActive,
		Rules:     []Rule{rule},
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
	if l.NotificationSent {
		m.LastResetDate = firedOn
	}
	return m, nil
}

// MonitorRecord is a persisted or imported monitor in either shape. Exactly
// one of Current and Legacy is set.
type MonitorRecord struct {
	Current *Monitor
	Legacy  *LegacyMonitor
}

// ruleRecord is one rule entry on the wire. Browser exports write camelCase
// keys, "type" for the kind, "condition" for the direction and
// "notificationSent" for the fired flag.
type ruleRecord struct {
	ID                          string   `json:"id"`
	Kind                        string   `json:"kind"`
	Type                        string   `json:"type"`
	Direction                   string   `json:"direction"`
	Condition                   string   `json:"condition"`
	TargetPrice                 *float64 `json:"target_price"`
	TargetPriceCamel            *float64 `json:"targetPrice"`
	PremiumThreshold            *float64 `json:"premium_threshold"`
	PremiumThresholdCamel       *float64 `json:"premiumThreshold"`
	ChangePercentThreshold      *float64 `json:"change_percent_threshold"`
	ChangePercentThresholdCamel *float64 `json:"changePercentThreshold"`
	IsActive                    *bool    `json:"is_active"`
	IsActiveCamel               *bool    `json:"isActive"`
	HasFired                    *bool    `json:"has_fired"`
	NotificationSent            *bool    `json:"notificationSent"`
}

func (r ruleRecord) rule() (Rule, error) {
	kind, err := ParseRuleKind(firstNonEmpty(r.Kind, r.Type))
	if err != nil {
		return Rule{}, err
	}
	direction, err := ParseDirection(firstNonEmpty(r.Direction, r.Condition))
	if err != nil {
		return Rule{}, err
	}
	active := firstBool(r.IsActive, r.IsActiveCamel)
	fired := firstBool(r.HasFired, r.NotificationSent)
	return Rule{
		ID:                     r.ID,
		Kind:                   kind,
		Direction:              direction,
		TargetPrice:            firstFloat(r.TargetPrice, r.TargetPriceCamel),
		PremiumThreshold:       firstFloat(r.PremiumThreshold, r.PremiumThresholdCamel),
		ChangePercentThreshold: firstFloat(r.ChangePercentThreshold, r.ChangePercentThresholdCamel),
		IsActive:               active == nil || *active,
		HasFired:               fired != nil && *fired,
	}, nil
}

// monitorRecord is a monitor on the wire in either shape and either key
// spelling
type monitorRecord struct {
	ID                          string       `json:"id"`
	OwnerID                     string       `json:"owner_id"`
	Code                        string       `json:"code"`
	Name                        string       `json:"name"`
	IsActive                    *bool        `json:"is_active"`
	IsActiveCamel               *bool        `json:"isActive"`
	Rules                       []ruleRecord `json:"rules"`
	Metrics                     []ruleRecord `json:"metrics"`
	LastResetDate               string       `json:"last_reset_date"`
	LastNotificationDate        string       `json:"lastNotificationDate"`
	MonitorType                 string       `json:"monitor_type"`
	MonitorTypeCamel            string       `json:"monitorType"`
	TargetPrice                 *float64     `json:"target_price"`
	TargetPriceCamel            *float64     `json:"targetPrice"`
	Condition                   string       `json:"condition"`
	PremiumThreshold            *float64     `json:"premium_threshold"`
	PremiumThresholdCamel       *float64     `json:"premiumThreshold"`
	ChangePercentThreshold      *float64     `json:"change_percent_threshold"`
	ChangePercentThresholdCamel *float64     `json:"changePercentThreshold"`
	NotificationSent            *bool        `json:"notification_sent"`
	NotificationSentCamel       *bool        `json:"notificationSent"`
	CreatedAt                   time.Time    `json:"created_at"`
	CreatedAtCamel              time.Time    `json:"createdAt"`
	UpdatedAt                   time.Time    `json:"updated_at"`
	UpdatedAtCamel              time.Time    `json:"updatedAt"`
}

func (r *monitorRecord) current() (*Monitor, error) {
	entries := r.Rules
	if len(entries) == 0 {
		entries = r.Metrics
	}
	rules := make([]Rule, 0, len(entries))
	for i, e := range entries {
		rule, err := e.rule()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}

	active := firstBool(r.IsActive, r.IsActiveCamel)
	return &Monitor{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		Code:          r.Code,
		Name:          r.Name,
		IsActive:      active == nil || *active,
		Rules:         rules,
		LastResetDate: firstNonEmpty(r.LastResetDate, datePrefix(r.LastNotificationDate)),
		CreatedAt:     firstTime(r.CreatedAt, r.CreatedAtCamel),
		UpdatedAt:     firstTime(r.UpdatedAt, r.UpdatedAtCamel),
	}, nil
}

func (r *monitorRecord) legacy() *LegacyMonitor {
	sent := firstBool(r.NotificationSent, r.NotificationSentCamel)
	return &LegacyMonitor{
		ID:                     r.ID,
		OwnerID:                r.OwnerID,
		Code:                   r.Code,
		Name:                   r.Name,
		MonitorType:            firstNonEmpty(r.MonitorType, r.MonitorTypeCamel),
		TargetPrice:            firstFloat(r.TargetPrice, r.TargetPriceCamel),
		Condition:              r.Condition,
		PremiumThreshold:       firstFloat(r.PremiumThreshold, r.PremiumThresholdCamel),
		ChangePercentThreshold: firstFloat(r.ChangePercentThreshold, r.ChangePercentThresholdCamel),
		IsActive:               firstBool(r.IsActive, r.IsActiveCamel),
		NotificationSent:       sent != nil && *sent,
		CreatedAt:              firstTime(r.CreatedAt, r.CreatedAtCamel),
		UpdatedAt:              firstTime(r.UpdatedAt, r.UpdatedAtCamel),
	}
}

// DecodeMonitorRecord decodes one JSON record. Records carrying a "rules" or
// "metrics" key are current, anything else is treated as legacy. Both
// snake_case and camelCase keys are accepted.
func DecodeMonitorRecord(data []byte) (MonitorRecord, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return MonitorRecord{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	var rec monitorRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return MonitorRecord{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	_, hasRules := keys["rules"]
	_, hasMetrics := keys["metrics"]
	if hasRules || hasMetrics {
		m, err := rec.current()
		if err != nil {
			return MonitorRecord{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
		}
		return MonitorRecord{Current: m}, nil
	}
	return MonitorRecord{Legacy: rec.legacy()}, nil
}

// IsLegacy reports whether the record needs lifting
func (r MonitorRecord) IsLegacy() bool {
	return r.Legacy != nil
}

// Migrate returns the record as a validated current Monitor. firedOn is the
// trading date stamped on a legacy record that had already notified; current
// records keep their own date. Records that cannot be coerced into a valid
// monitor return an error wrapping ErrMalformedRecord and should be dropped.
func (r MonitorRecord) Migrate(firedOn string) (*Monitor, error) {
	var m *Monitor
	switch {
	case r.Current != nil:
		m = r.Current.Clone()
		m.Code = NormalizeCode(m.Code)
	case r.Legacy != nil:
		lifted, err := r.Legacy.Lift(firedOn)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		m = lifted
	default:
		return nil, fmt.Errorf("%w: empty record", ErrMalformedRecord)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	return m, nil
}

// datePrefix keeps the calendar date of an ISO timestamp or date string
func datePrefix(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < len(time.DateOnly) {
		return ""
	}
	if _, err := time.Parse(time.DateOnly, s[:len(time.DateOnly)]); err != nil {
		return ""
	}
	return s[:len(time.DateOnly)]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstFloat(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return cloneFloat(v)
		}
	}
	return nil
}

func firstBool(values ...*bool) *bool {
	for _, v := range values {
		if v != nil {
			b := *v
			return &b
		}
	}
	return nil
}

func firstTime(values ...time.Time) time.Time {
	for _, v := range values {
		if !v.IsZero() {
			return v
		}
	}
	return time.Time{}
}
