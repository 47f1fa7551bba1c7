package logger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics shared across the service. Registered on the default
// registry via promauto and exposed on /metrics.
var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "watchlist_http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_engine_cycles_total",
			Help: "Poll cycles by result (evaluated, out_of_session, idle, dropped)",
		},
		[]string{"result"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "watchlist_engine_cycle_duration_seconds",
			Help:    "Duration of evaluated poll cycles",
			Buckets: prometheus.DefBuckets,
		},
	)

	TriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_engine_triggers_total",
			Help: "Rules that fired, by rule kind",
		},
		[]string{"kind"},
	)

	PersistErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchlist_engine_persist_errors_total",
			Help: "Monitor write-backs that failed after a cycle",
		},
	)

	QuoteFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_quote_fetch_total",
			Help: "Quote batch requests by status",
		},
		[]string{"status"},
	)

	HolidayFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_calendar_holiday_fetch_total",
			Help: "Holiday list fetches by status",
		},
		[]string{"status"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_notifications_total",
			Help: "Notification deliveries by channel and status",
		},
		[]string{"channel", "status"},
	)
)
