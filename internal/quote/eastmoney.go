package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/models"
)

// EastmoneyNameLookup resolves names through the push2.eastmoney.com
// stock/get endpoint
type EastmoneyNameLookup struct {
	baseURL string
	client  *http.Client
}

// NewEastmoneyNameLookup creates a lookup against baseURL, for example
// https://push2.eastmoney.com/api/qt/stock/get
func NewEastmoneyNameLookup(baseURL string, timeout time.Duration) *EastmoneyNameLookup {
	return &EastmoneyNameLookup{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type eastmoneyResponse struct {
	Data *struct {
		Name string `json:"f58"`
	} `json:"data"`
}

func (e *EastmoneyNameLookup) LookupName(ctx context.Context, code string) (string, error) {
	market, digits, err := models.MarketID(code)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("secid", market+"."+digits)
	q.Set("fields", "f58")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build name request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("name request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("name request failed: HTTP %d", resp.StatusCode)
	}

	var body eastmoneyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode name response: %w", err)
	}
	if body.Data == nil || body.Data.Name == "" {
		return "", fmt.Errorf("no name for %s", code)
	}
	return body.Data.Name, nil
}

// FallbackNameLookup tries each lookup in order and returns the first name
type FallbackNameLookup []NameLookup

func (f FallbackNameLookup) LookupName(ctx context.Context, code string) (string, error) {
	var lastErr error
	for _, lookup := range f {
		if lookup == nil {
			continue
		}
		name, err := lookup.LookupName(ctx, code)
		if err == nil {
			return name, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no name lookup configured")
	}
	return "", lastErr
}
