package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Holiday is one entry of the yearly holiday list. IsOffDay is false for
// make-up working days.
type Holiday struct {
	Date     string `json:"date"`
	Name     string `json:"name"`
	IsOffDay bool   `json:"isOffDay"`
}

// HolidayProvider returns the holiday list for a calendar year, keyed by
// 2006-01-02 date.
type HolidayProvider interface {
	Holidays(ctx context.Context, year int) (map[string]Holiday, error)
}

// HTTPHolidayProvider fetches holiday lists from a JSON endpoint whose URL
// contains %d for the year.
type HTTPHolidayProvider struct {
	urlPattern string
	client     *http.Client
}

// NewHTTPHolidayProvider creates a provider with a per-request timeout
func NewHTTPHolidayProvider(urlPattern string, timeout time.Duration) *HTTPHolidayProvider {
	return &HTTPHolidayProvider{
		urlPattern: urlPattern,
		client:     &http.Client{Timeout: timeout},
	}
}

// Holidays fetches the holiday list for year
func (p *HTTPHolidayProvider) Holidays(ctx context.Context, year int) (map[string]Holiday, error) {
	url := fmt.Sprintf(p.urlPattern, year)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build holiday request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch holidays for %d: %w", year, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch holidays for %d: HTTP %d", year, resp.StatusCode)
	}

	var holidays map[string]Holiday
	if err := json.NewDecoder(resp.Body).Decode(&holidays); err != nil {
		return nil, fmt.Errorf("failed to decode holidays for %d: %w", year, err)
	}
	if holidays == nil {
		holidays = make(map[string]Holiday)
	}
	return holidays, nil
}
