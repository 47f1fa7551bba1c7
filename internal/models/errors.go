package models

import "errors"

var (
	ErrInvalidCode      = errors.New("invalid instrument code")
	ErrInvalidName      = errors.New("invalid monitor name")
	ErrNoRules          = errors.New("monitor must have at least one rule")
	ErrInvalidRuleID    = errors.New("invalid rule ID")
	ErrDuplicateRuleID  = errors.New("duplicate rule ID")
	ErrInvalidRuleKind  = errors.New("invalid rule kind")
	ErrInvalidDirection = errors.New("invalid comparison direction")
	ErrMissingThreshold = errors.New("missing threshold")
	ErrInvalidThreshold = errors.New("invalid threshold")
	ErrMonitorNotFound  = errors.New("monitor not found")
	ErrRuleNotFound     = errors.New("rule not found")
	ErrMalformedRecord  = errors.New("malformed monitor record")
)

// IsValidationError reports whether err is one of the errors returned by
// Monitor.Validate or Rule.Validate.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidCode, ErrInvalidName, ErrNoRules, ErrInvalidRuleID,
		ErrDuplicateRuleID, ErrInvalidRuleKind, ErrInvalidDirection,
		ErrMissingThreshold, ErrInvalidThreshold,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
