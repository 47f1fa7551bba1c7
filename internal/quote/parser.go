package quote

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mohamedkhairy/stock-watchlist/internal/models"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// Field positions in a Tencent quote record
const (
	fieldName          = 1
	fieldPrice         = 3
	fieldOpen          = 5
	fieldVolume        = 6
	fieldChange        = 31
	fieldChangePercent = 32
	fieldHigh          = 33
	fieldLow           = 34
	fieldPremium       = 77

	minFields = 33
)

// DecodeGBK converts a GBK-encoded feed body to UTF-8
func DecodeGBK(body []byte) (string, error) {
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), simplifiedchinese.GBK.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("failed to decode GBK body: %w", err)
	}
	return string(out), nil
}

// ParseRecords parses a decoded feed body of v_<code>="f0~f1~..."; records.
// Records that are too short or carry no parsable price are skipped. The
// returned map is keyed by the lower-cased code taken from the record name.
func ParseRecords(body string, timestampMillis int64) map[string]models.Snapshot {
	snapshots := make(map[string]models.Snapshot)
	for _, line := range strings.Split(body, ";") {
		code, payload, ok := splitRecord(line)
		if !ok {
			continue
		}
		snap, ok := parseFields(code, strings.Split(payload, "~"))
		if !ok {
			continue
		}
		snap.TimestampMillis = timestampMillis
		snapshots[code] = snap
	}
	return snapshots
}

func splitRecord(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "v_") {
		return "", "", false
	}
	eq := strings.IndexByte(line, '=')
	if eq < 0 {
		return "", "", false
	}
	code := strings.ToLower(strings.TrimSpace(line[2:eq]))
	payload := strings.TrimSpace(line[eq+1:])
	payload = strings.TrimSuffix(strings.TrimPrefix(payload, `"`), `"`)
	if code == "" || payload == "" {
		return "", "", false
	}
	return code, payload, true
}

func parseFields(code string, fields []string) (models.Snapshot, bool) {
	if len(fields) < minFields {
		return models.Snapshot{}, false
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(fields[fieldPrice]), 64)
	if err != nil {
		return models.Snapshot{}, false
	}
	return models.Snapshot{
		Code:          code,
		Name:          strings.TrimSpace(fields[fieldName]),
		CurrentPrice:  price,
		Change:        floatAt(fields, fieldChange),
		ChangePercent: floatAt(fields, fieldChangePercent),
		Open:          floatAt(fields, fieldOpen),
		High:          floatAt(fields, fieldHigh),
		Low:           floatAt(fields, fieldLow),
		Volume:        floatAt(fields, fieldVolume),
		Premium:       floatAt(fields, fieldPremium),
	}, true
}

// floatAt returns the numeric field at i, or 0 when absent or unparsable
func floatAt(fields []string, i int) float64 {
	if i >= len(fields) {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
	if err != nil {
		return 0
	}
	return v
}
