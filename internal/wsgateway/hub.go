// Package wsgateway pushes notifications to connected browser clients over
// WebSocket, addressed by owner.
package wsgateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/stock-watchlist/internal/config"
	"github.com/mohamedkhairy/stock-watchlist/internal/notify"
	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
)

// Hub manages WebSocket connections and delivers notifications to the
// connections of the notification's owner. It implements notify.Notifier.
type Hub struct {
	config   config.WSGatewayConfig
	auth     *AuthManager
	registry *ConnectionRegistry
	upgrader websocket.Upgrader

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool

	statsMu sync.RWMutex
	stats   HubStats
}

// HubStats holds statistics about the hub
type HubStats struct {
	ConnectionsTotal     int64
	ConnectionsActive    int64
	ConnectionsRejected  int64
	NotificationsSent    int64
	NotificationsDropped int64
	LastNotificationTime time.Time
}

// NewHub creates a new WebSocket hub
func NewHub(cfg config.WSGatewayConfig, auth *AuthManager) *Hub {
	if auth == nil {
		auth = NewAuthManager("")
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		config:   cfg,
		auth:     auth,
		registry: NewConnectionRegistry(cfg.MaxConnectionsPerOwner),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the stale connection monitor
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	logger.Info("Starting WebSocket hub",
		logger.Int("max_connections", h.config.MaxConnections),
		logger.Int("max_connections_per_owner", h.config.MaxConnectionsPerOwner),
		logger.Duration("ping_interval", h.config.PingInterval),
	)

	h.wg.Add(1)
	go h.monitorConnections()

	return nil
}

// Stop closes every connection and waits for the pumps to exit
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	logger.Info("Stopping WebSocket hub")
	h.cancel()
	for _, conn := range h.registry.Drain() {
		conn.Close()
	}
	h.wg.Wait()
	logger.Info("WebSocket hub stopped")
}

// ServeHTTP authenticates and upgrades a client connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.config.MaxConnections > 0 && h.registry.Count() >= h.config.MaxConnections {
		h.statsMu.Lock()
		h.stats.ConnectionsRejected++
		h.statsMu.Unlock()
		logger.Warn("Max connections reached, rejecting new connection",
			logger.Int("max_connections", h.config.MaxConnections),
		)
		http.Error(w, "Max connections reached", http.StatusServiceUnavailable)
		return
	}

	ownerID, err := h.auth.OwnerFromRequest(r)
	if err != nil {
		logger.Warn("Invalid token, rejecting connection", logger.ErrorField(err))
		http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
		return
	}

	if limit := h.config.MaxConnectionsPerOwner; limit > 0 && h.registry.CountByOwner(ownerID) >= limit {
		h.statsMu.Lock()
		h.stats.ConnectionsRejected++
		h.statsMu.Unlock()
		logger.Warn("Owner connection limit reached, rejecting new connection",
			logger.String("owner_id", ownerID),
			logger.Int("max_connections_per_owner", limit),
		)
		http.Error(w, "Too many connections for owner", http.StatusTooManyRequests)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade connection", logger.ErrorField(err))
		return
	}

	if err := h.Register(NewConnection(uuid.New().String(), ownerID, ws, h.config.SendBuffer)); err != nil {
		logger.Warn("Closing connection over owner limit",
			logger.String("owner_id", ownerID),
			logger.ErrorField(err),
		)
	}
}

// Register registers a connection and starts its pumps. A connection over
// its owner's limit is closed and the error returned.
func (h *Hub) Register(conn *Connection) error {
	if err := h.registry.Add(conn); err != nil {
		h.statsMu.Lock()
		h.stats.ConnectionsRejected++
		h.statsMu.Unlock()
		conn.Close()
		return err
	}

	h.statsMu.Lock()
	h.stats.ConnectionsTotal++
	h.statsMu.Unlock()

	logger.Info("Connection registered",
		logger.String("connection_id", conn.ID),
		logger.String("owner_id", conn.OwnerID),
		logger.Int("total_connections", h.registry.Count()),
	)

	h.wg.Add(2)
	go h.writePump(conn)
	go h.readPump(conn)
	return nil
}

// Unregister removes and closes a connection. Repeated calls are no-ops.
func (h *Hub) Unregister(conn *Connection) {
	if !h.registry.Remove(conn) {
		return
	}
	conn.Close()

	logger.Info("Connection unregistered",
		logger.String("connection_id", conn.ID),
		logger.String("owner_id", conn.OwnerID),
		logger.Int("total_connections", h.registry.Count()),
	)
}

// Notify queues n on every connection of its owner that subscribes to the
// monitor's code. It never blocks; full queues drop the message.
func (h *Hub) Notify(ctx context.Context, n notify.Notification) {
	connections := h.registry.Recipients(n.OwnerID, n.Event.Monitor.Code)
	if len(connections) == 0 {
		return
	}

	msg := ServerMessage{Type: MessageTypeNotification, Data: n}
	sent, dropped := 0, 0
	for _, conn := range connections {
		if conn.SendJSON(msg) {
			sent++
		} else {
			dropped++
		}
	}

	h.statsMu.Lock()
	h.stats.NotificationsSent += int64(sent)
	h.stats.NotificationsDropped += int64(dropped)
	h.stats.LastNotificationTime = time.Now()
	h.statsMu.Unlock()

	if sent > 0 {
		logger.NotificationsTotal.WithLabelValues("websocket", "success").Add(float64(sent))
	}
	if dropped > 0 {
		logger.NotificationsTotal.WithLabelValues("websocket", "dropped").Add(float64(dropped))
		logger.WithContext(ctx).Debug("Dropped notification, send buffer full",
			logger.String("owner_id", n.OwnerID),
			logger.Int("dropped", dropped),
		)
	}
}

// writePump is the only writer of conn.Conn
func (h *Hub) writePump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles client messages and pongs
func (h *Hub) readPump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.UpdateLastPong()
		conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket error",
					logger.ErrorField(err),
					logger.String("connection_id", conn.ID),
				)
			}
			return
		}

		if err := conn.HandleClientMessage(message); err != nil {
			logger.Debug("Failed to handle client message",
				logger.ErrorField(err),
				logger.String("connection_id", conn.ID),
			)
		}
	}
}

// monitorConnections removes connections that stopped answering pings
func (h *Hub) monitorConnections() {
	defer h.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			for _, conn := range h.registry.Stale(now, h.config.ReadTimeout*2) {
				logger.Info("Removing stale connection",
					logger.String("connection_id", conn.ID),
					logger.String("owner_id", conn.OwnerID),
					logger.Duration("idle_time", now.Sub(conn.GetLastPong())),
				)
				h.Unregister(conn)
			}
		}
	}
}

// Stats returns hub statistics
func (h *Hub) Stats() HubStats {
	h.statsMu.RLock()
	defer h.statsMu.RUnlock()
	stats := h.stats
	stats.ConnectionsActive = int64(h.registry.Count())
	return stats
}
