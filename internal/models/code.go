package models

import (
	"fmt"
	"strings"
)

// Exchange prefixes carried by normalized instrument codes
const (
	ExchangeShenzhen = "sz"
	ExchangeShanghai = "sh"
)

// NormalizeCode lower-cases code and prefixes it with the Shenzhen exchange
// when it carries no exchange prefix. Codes that already start with sz or sh
// are returned unchanged, so NormalizeCode(NormalizeCode(c)) == NormalizeCode(c).
func NormalizeCode(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	if c == "" {
		return ""
	}
	if HasExchangePrefix(c) {
		return c
	}
	return ExchangeShenzhen + c
}

// HasExchangePrefix reports whether code starts with a known exchange prefix
func HasExchangePrefix(code string) bool {
	return strings.HasPrefix(code, ExchangeShenzhen) || strings.HasPrefix(code, ExchangeShanghai)
}

// MarketID splits a normalized code into the numeric market id used by the
// Eastmoney quote API (0 for Shenzhen, 1 for Shanghai) and the bare digits.
func MarketID(code string) (string, string, error) {
	c := NormalizeCode(code)
	digits := c[min(len(c), 2):]
	if digits == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	switch {
	case strings.HasPrefix(c, ExchangeShanghai):
		return "1", digits, nil
	case strings.HasPrefix(c, ExchangeShenzhen):
		return "0", digits, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidCode, code)
}
