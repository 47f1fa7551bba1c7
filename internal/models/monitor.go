package models

import (
	"fmt"
	"strings"
	"time"
)

// RuleKind selects which snapshot field a rule compares
type RuleKind string

const (
	RuleKindPrice         RuleKind = "price"
	RuleKindPremium       RuleKind = "premium"
	RuleKindChangePercent RuleKind = "change_percent"
)

// Direction is the comparison direction of a rule
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// ParseRuleKind accepts the canonical kind names plus the camelCase spelling
// used by older records ("changePercent").
func ParseRuleKind(s string) (RuleKind, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "price":
		return RuleKindPrice, nil
	case "premium":
		return RuleKindPremium, nil
	case "changepercent":
		return RuleKindChangePercent, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRuleKind, s)
}

// ParseDirection parses "above" or "below", case-insensitively
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionAbove:
		return DirectionAbove, nil
	case DirectionBelow:
		return DirectionBelow, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// Rule is one threshold condition of a monitor. Only the threshold field
// matching Kind is read.
type Rule struct {
	ID                     string    `json:"id"`
	Kind                   RuleKind  `json:"kind"`
	Direction              Direction `json:"direction"`
	TargetPrice            *float64  `json:"target_price,omitempty"`
	PremiumThreshold       *float64  `json:"premium_threshold,omitempty"`
	ChangePercentThreshold *float64  `json:"change_percent_threshold,omitempty"`
	IsActive               bool      `json:"is_active"`
	HasFired               bool      `json:"has_fired"`
}

// Threshold returns the threshold relevant to the rule kind
func (r *Rule) Threshold() (float64, bool) {
	var v *float64
	switch r.Kind {
	case RuleKindPrice:
		v = r.TargetPrice
	case RuleKindPremium:
		v = r.PremiumThreshold
	case RuleKindChangePercent:
		v = r.ChangePercentThreshold
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Validate validates a Rule
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrInvalidRuleID
	}
	switch r.Kind {
	case RuleKindPrice, RuleKindPremium, RuleKindChangePercent:
	default:
		return fmt.Errorf("rule %s: %w: %q", r.ID, ErrInvalidRuleKind, r.Kind)
	}
	if r.Direction != DirectionAbove && r.Direction != DirectionBelow {
		return fmt.Errorf("rule %s: %w: %q", r.ID, ErrInvalidDirection, r.Direction)
	}

	threshold, ok := r.Threshold()
	if !ok {
		return fmt.Errorf("rule %s: %w for kind %s", r.ID, ErrMissingThreshold, r.Kind)
	}
	switch r.Kind {
	case RuleKindPrice, RuleKindPremium:
		if threshold <= 0 {
			return fmt.Errorf("rule %s: %w: %s threshold must be positive, got %v", r.ID, ErrInvalidThreshold, r.Kind, threshold)
		}
	case RuleKindChangePercent:
		if threshold == 0 {
			return fmt.Errorf("rule %s: %w: change percent threshold must be non-zero", r.ID, ErrInvalidThreshold)
		}
	}
	return nil
}

func (r Rule) clone() Rule {
	r.TargetPrice = cloneFloat(r.TargetPrice)
	r.PremiumThreshold = cloneFloat(r.PremiumThreshold)
	r.ChangePercentThreshold = cloneFloat(r.ChangePercentThreshold)
	return r
}

// Monitor is one user's watch configuration for an instrument
type Monitor struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	IsActive      bool      `json:"is_active"`
	Rules         []Rule    `json:"rules"`
	LastResetDate string    `json:"last_reset_date,omitempty"` // trading date, 2006-01-02
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate validates a Monitor and all of its rules
func (m *Monitor) Validate() error {
	if strings.TrimSpace(m.Code) == "" {
		return ErrInvalidCode
	}
	if strings.TrimSpace(m.Name) == "" {
		return ErrInvalidName
	}
	if len(m.Rules) == 0 {
		return ErrNoRules
	}
	seen := make(map[string]bool, len(m.Rules))
	for i := range m.Rules {
		if err := m.Rules[i].Validate(); err != nil {
			return err
		}
		if seen[m.Rules[i].ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateRuleID, m.Rules[i].ID)
		}
		seen[m.Rules[i].ID] = true
	}
	return nil
}

// Rule returns a pointer to the rule with the given id, or nil
func (m *Monitor) Rule(id string) *Rule {
	for i := range m.Rules {
		if m.Rules[i].ID == id {
			return &m.Rules[i]
		}
	}
	return nil
}

// ClearFired re-arms every rule. It reports whether any flag changed.
func (m *Monitor) ClearFired() bool {
	changed := false
	for i := range m.Rules {
		if m.Rules[i].HasFired {
			m.Rules[i].HasFired = false
			changed = true
		}
	}
	return changed
}

// Clone returns a deep copy of the monitor
func (m *Monitor) Clone() *Monitor {
	if m == nil {
		return nil
	}
	c := *m
	c.Rules = CloneRules(m.Rules)
	return &c
}

// CloneRules deep-copies a rule slice, preserving nil
func CloneRules(rules []Rule) []Rule {
	if rules == nil {
		return nil
	}
	out := make([]Rule, len(rules))
	for i := range rules {
		out[i] = rules[i].clone()
	}
	return out
}

// MonitorPatch carries the fields of a partial replace. Nil fields are left
// untouched; a non-nil Rules replaces the whole rule collection.
type MonitorPatch struct {
	Code          *string `json:"code,omitempty"`
	Name          *string `json:"name,omitempty"`
	IsActive      *bool   `json:"is_active,omitempty"`
	Rules         []Rule  `json:"rules,omitempty"`
	LastResetDate *string `json:"last_reset_date,omitempty"`
}

// Apply applies the patch to m and touches UpdatedAt. Switching IsActive
// re-arms every rule of the monitor.
func (p MonitorPatch) Apply(m *Monitor, now time.Time) {
	if p.Code != nil {
		m.Code = NormalizeCode(*p.Code)
	}
	if p.Name != nil {
		m.Name = strings.TrimSpace(*p.Name)
	}
	if p.Rules != nil {
		m.Rules = CloneRules(p.Rules)
	}
	if p.LastResetDate != nil {
		m.LastResetDate = *p.LastResetDate
	}
	if p.IsActive != nil && *p.IsActive != m.IsActive {
		m.IsActive = *p.IsActive
		m.ClearFired()
	}
	m.UpdatedAt = now
}

// Float returns a pointer to v, for building thresholds inline
func Float(v float64) *float64 {
	return &v
}

// Bool returns a pointer to v
func Bool(v bool) *bool {
	return &v
}

// StringPtr returns a pointer to v
func StringPtr(v string) *string {
	return &v
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
