package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/api"
	"github.com/mohamedkhairy/stock-watchlist/internal/calendar"
	"github.com/mohamedkhairy/stock-watchlist/internal/config"
	"github.com/mohamedkhairy/stock-watchlist/internal/engine"
	"github.com/mohamedkhairy/stock-watchlist/internal/notify"
	"github.com/mohamedkhairy/stock-watchlist/internal/pubsub"
	"github.com/mohamedkhairy/stock-watchlist/internal/quote"
	"github.com/mohamedkhairy/stock-watchlist/internal/scheduler"
	"github.com/mohamedkhairy/stock-watchlist/internal/storage"
	"github.com/mohamedkhairy/stock-watchlist/internal/wsgateway"
	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting watchlist service",
		logger.Int("port", cfg.API.Port),
		logger.String("store", cfg.Engine.StoreType),
		logger.Bool("redis", cfg.Redis.Enabled),
		logger.Duration("active_interval", cfg.Engine.ActiveInterval),
		logger.Duration("idle_interval", cfg.Engine.IdleInterval),
	)

	// Redis backs the holiday cache and the notification stream
	var redisClient storage.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = pubsub.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to initialize Redis client",
				logger.ErrorField(err),
			)
		}
		defer redisClient.Close()
	}

	// Trading calendar
	holidays := calendar.NewCachedHolidayProvider(
		calendar.NewHTTPHolidayProvider(cfg.Calendar.HolidayURL, cfg.Calendar.HolidayTimeout),
		redisClient,
		cfg.Calendar.HolidayCacheTTL,
		cfg.Calendar.HolidayRetry,
	)
	cal, err := calendar.NewSessionCalendar(cfg.Calendar, holidays)
	if err != nil {
		logger.Fatal("Failed to initialize trading calendar",
			logger.ErrorField(err),
		)
	}

	// Monitor store
	var (
		store storage.MonitorStore
		ready api.Readiness
	)
	switch cfg.Engine.StoreType {
	case config.StorePostgres:
		pgStore, err := storage.NewPostgresMonitorStore(cfg.Database, cal.TradingDate)
		if err != nil {
			logger.Fatal("Failed to initialize monitor store",
				logger.ErrorField(err),
			)
		}
		defer pgStore.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = pgStore.EnsureSchema(ctx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to ensure monitor schema",
				logger.ErrorField(err),
			)
		}
		store = pgStore
		ready = pgStore.Ping
	default:
		store = storage.NewInMemoryMonitorStore()
	}
	if redisClient != nil {
		ready = chainReadiness(ready, redisClient.Ping)
	}

	// Quote feed and name lookup
	tencent := quote.NewTencentSource(cfg.Quote.BaseURL, cfg.Quote.BatchSize, cfg.Quote.Timeout)
	names := quote.FallbackNameLookup{
		tencent,
		quote.NewEastmoneyNameLookup(cfg.Quote.NameLookupURL, cfg.Quote.Timeout),
	}

	// WebSocket hub
	auth := wsgateway.NewAuthManager(cfg.API.JWTSecret)
	hub := wsgateway.NewHub(cfg.WSGateway, auth)
	if err := hub.Start(); err != nil {
		logger.Fatal("Failed to start WebSocket hub",
			logger.ErrorField(err),
		)
	}
	defer hub.Stop()

	// Notification fan-out
	notifiers := notify.Multi{notify.LogNotifier{}, hub}
	if redisClient != nil && cfg.Notify.Stream != "" {
		notifiers = append(notifiers, notify.NewStreamNotifier(redisClient, cfg.Notify.Stream, cfg.Notify.Timeout))
	}
	telegram, err := notify.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, cfg.Notify.Timeout)
	if err != nil {
		logger.Fatal("Failed to initialize Telegram notifier",
			logger.ErrorField(err),
		)
	}
	if telegram.Enabled() {
		notifiers = append(notifiers, telegram)
	}
	var notifier notify.Notifier = notifiers
	if redisClient != nil && cfg.Notify.DedupeWindow > 0 {
		notifier = notify.NewDeduplicator(notifiers, redisClient, cfg.Notify.DedupeWindow)
	}

	// Engine and poll loop
	eng := engine.NewEngine(engine.ConfigFrom(cfg.Engine), cal, tencent, store, engine.NewMonitorLocks())
	interval := engine.NewAdaptiveInterval(cfg.Engine.ActiveInterval, cfg.Engine.IdleInterval, cfg.Engine.IdleAfter)
	poller := engine.NewPoller(
		engine.PollerConfig{OwnerIDs: cfg.Engine.OwnerIDs, LoadTimeout: cfg.Engine.LoadTimeout},
		eng,
		store,
		notifier,
		interval,
	)
	if err := poller.Start(); err != nil {
		logger.Fatal("Failed to start poller",
			logger.ErrorField(err),
		)
	}

	// Holiday prefetch jobs
	sched := scheduler.NewScheduler(scheduler.Config{
		PreOpenSchedule: cfg.Calendar.PrefetchSchedule,
		Location:        cal.Location(),
	}, holidays, cal)
	if err := sched.Start(); err != nil {
		logger.Fatal("Failed to start scheduler",
			logger.ErrorField(err),
		)
	}

	// HTTP server
	handler := api.NewRouter(api.RouterConfig{
		Monitors:      api.NewMonitorHandler(store, eng, poller, names),
		Market:        api.NewMarketHandler(cal, tencent, names, cfg.Quote.Indices, interval),
		Hub:           hub,
		Auth:          auth,
		Ready:         ready,
		AllowedOrigin: cfg.API.AllowedOrigin,
		RateLimitRPS:  cfg.API.RateLimitRPS,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down watchlist service")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}

	sched.Stop()
	poller.Stop()

	stats := poller.Stats()
	logger.Info("Watchlist service stopped",
		logger.Int64("cycles", stats.Cycles),
		logger.Int64("events", stats.Events),
	)
}

// chainReadiness requires every non-nil check to pass
func chainReadiness(checks ...api.Readiness) api.Readiness {
	return func(ctx context.Context) error {
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
