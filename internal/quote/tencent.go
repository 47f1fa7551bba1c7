package quote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/models"
	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
)

// TencentSource fetches snapshots from the qt.gtimg.cn feed
type TencentSource struct {
	baseURL   string
	batchSize int
	client    *http.Client
	now       func() time.Time
}

// NewTencentSource creates a source. baseURL is the feed prefix that codes
// are appended to, for example https://qt.gtimg.cn/q=
func NewTencentSource(baseURL string, batchSize int, timeout time.Duration) *TencentSource {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &TencentSource{
		baseURL:   baseURL,
		batchSize: batchSize,
		client:    &http.Client{Timeout: timeout},
		now:       time.Now,
	}
}

// FetchSnapshots fetches codes in batches. A failed batch only drops its own
// codes. Result keys are the normalized requested codes.
func (s *TencentSource) FetchSnapshots(ctx context.Context, codes []string) map[string]models.Snapshot {
	result := make(map[string]models.Snapshot)
	normalized := dedupe(codes)

	for start := 0; start < len(normalized); start += s.batchSize {
		end := min(start+s.batchSize, len(normalized))
		batch := normalized[start:end]

		snapshots, err := s.fetchBatch(ctx, batch)
		if err != nil {
			logger.QuoteFetchTotal.WithLabelValues("error").Inc()
			logger.Warn("Failed to fetch quote batch",
				logger.Strings("codes", batch),
				logger.ErrorField(err),
			)
			continue
		}
		logger.QuoteFetchTotal.WithLabelValues("success").Inc()

		for _, code := range batch {
			if snap, ok := snapshots[code]; ok {
				result[code] = snap
			}
		}
	}

	if missing := len(normalized) - len(result); missing > 0 {
		logger.Debug("Quote feed returned partial results",
			logger.Int("requested", len(normalized)),
			logger.Int("missing", missing),
		)
	}
	return result
}

func (s *TencentSource) fetchBatch(ctx context.Context, codes []string) (map[string]models.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+strings.Join(codes, ","), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote request failed: HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read quote body: %w", err)
	}
	body, err := DecodeGBK(raw)
	if err != nil {
		return nil, err
	}
	return ParseRecords(body, s.now().UnixMilli()), nil
}

// LookupName returns the feed's display name for code
func (s *TencentSource) LookupName(ctx context.Context, code string) (string, error) {
	c := models.NormalizeCode(code)
	if c == "" {
		return "", models.ErrInvalidCode
	}
	snapshots, err := s.fetchBatch(ctx, []string{c})
	if err != nil {
		return "", err
	}
	snap, ok := snapshots[c]
	if !ok || snap.Name == "" {
		return "", fmt.Errorf("no quote for %s", c)
	}
	return snap.Name, nil
}

func dedupe(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		c := models.NormalizeCode(code)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
