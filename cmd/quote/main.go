package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/config"
	"github.com/mohamedkhairy/stock-watchlist/internal/models"
	"github.com/mohamedkhairy/stock-watchlist/internal/quote"
	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
)

// quote fetches snapshots for the codes given on the command line and prints
// them as JSON, e.g. `quote sz159509 sh600000`.
func main() {
	timeout := flag.Duration("timeout", 10*time.Second, "overall fetch timeout")
	withNames := flag.Bool("names", false, "resolve names through the Eastmoney fallback when the feed has none")
	flag.Parse()

	codes := flag.Args()
	if len(codes) == 0 {
		fmt.Fprintln(os.Stderr, "usage: quote [-timeout 10s] [-names] code [code...]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	source := quote.NewTencentSource(cfg.Quote.BaseURL, cfg.Quote.BatchSize, cfg.Quote.Timeout)
	snapshots := source.FetchSnapshots(ctx, codes)

	var names quote.NameLookup
	if *withNames {
		names = quote.NewEastmoneyNameLookup(cfg.Quote.NameLookupURL, cfg.Quote.Timeout)
	}

	out := make([]models.Snapshot, 0, len(codes))
	missing := 0
	for _, code := range codes {
		code = models.NormalizeCode(code)
		snap, ok := snapshots[code]
		if !ok {
			missing++
			logger.Warn("No snapshot returned", logger.String("code", code))
			continue
		}
		if snap.Name == "" && names != nil {
			if name, err := names.LookupName(ctx, code); err == nil {
				snap.Name = name
			}
		}
		out = append(out, snap)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode snapshots: %v\n", err)
		os.Exit(1)
	}
	if missing == len(codes) {
		os.Exit(1)
	}
}
