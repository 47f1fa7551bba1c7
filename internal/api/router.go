package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/stock-watchlist/internal/wsgateway"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Readiness reports whether a dependency can serve requests
type Readiness func(ctx context.Context) error

// RouterConfig holds everything NewRouter wires together. Hub, Auth and
// Ready may be nil.
type RouterConfig struct {
	Monitors      *MonitorHandler
	Market        *MarketHandler
	Hub           http.Handler
	Auth          *wsgateway.AuthManager
	Ready         Readiness
	AllowedOrigin string
	RateLimitRPS  int
}

// NewRouter builds the HTTP handler for the service
func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.Use(mux.MiddlewareFunc(LoggingMiddleware()))

	// API v1 routes
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(
		mux.MiddlewareFunc(AuthMiddleware(cfg.Auth)),
		mux.MiddlewareFunc(RateLimitMiddleware(cfg.RateLimitRPS)),
	)

	// Monitor endpoints; fixed paths before {id}
	v1.HandleFunc("/monitors", cfg.Monitors.ListMonitors).Methods("GET")
	v1.HandleFunc("/monitors", cfg.Monitors.CreateMonitor).Methods("POST")
	v1.HandleFunc("/monitors/check", cfg.Monitors.CheckNow).Methods("POST")
	v1.HandleFunc("/monitors/export", cfg.Monitors.ExportMonitors).Methods("GET")
	v1.HandleFunc("/monitors/import", cfg.Monitors.ImportMonitors).Methods("POST")
	v1.HandleFunc("/monitors/{id}", cfg.Monitors.GetMonitor).Methods("GET")
	v1.HandleFunc("/monitors/{id}", cfg.Monitors.UpdateMonitor).Methods("PUT")
	v1.HandleFunc("/monitors/{id}", cfg.Monitors.DeleteMonitor).Methods("DELETE")
	v1.HandleFunc("/monitors/{id}/reset", cfg.Monitors.ResetMonitor).Methods("POST")
	v1.HandleFunc("/monitors/{id}/rules/{ruleID}/reset", cfg.Monitors.ResetRule).Methods("POST")

	// Market endpoints
	v1.HandleFunc("/market/status", cfg.Market.GetStatus).Methods("GET")
	v1.HandleFunc("/market/indices", cfg.Market.GetIndices).Methods("GET")
	v1.HandleFunc("/stocks/{code}/name", cfg.Market.GetStockName).Methods("GET")
	v1.HandleFunc("/activity", cfg.Market.RecordActivity).Methods("POST")

	// Health check endpoints
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	router.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	})

	// Metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// WebSocket upgrade
	if cfg.Hub != nil {
		router.Handle("/ws", cfg.Hub)
	}

	middlewares := ChainMiddleware(
		RecoveryMiddleware(),
		CORSMiddleware(cfg.AllowedOrigin),
	)
	return middlewares(router)
}
