// Package quote fetches live snapshots for A-share and fund instruments.
package quote

import (
	"context"

	"github.com/mohamedkhairy/stock-watchlist/internal/models"
)

// Source fetches the latest snapshots for a set of codes. It is best-effort:
// codes that could not be fetched or parsed are absent from the result and no
// error is returned for the call as a whole.
type Source interface {
	FetchSnapshots(ctx context.Context, codes []string) map[string]models.Snapshot
}

// NameLookup resolves an instrument's display name
type NameLookup interface {
	LookupName(ctx context.Context, code string) (string, error)
}
