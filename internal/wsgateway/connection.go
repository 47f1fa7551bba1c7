package wsgateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/stock-watchlist/internal/models"
)

// Connection is one client WebSocket. Only the hub's write pump writes to
// Conn; everything else queues onto Send.
type Connection struct {
	ID      string
	OwnerID string
	Conn    *websocket.Conn
	Send    chan []byte

	mu            sync.RWMutex
	subscriptions map[string]bool // normalized code -> subscribed
	lastPong      time.Time
	closed        bool
	createdAt     time.Time
}

// NewConnection creates a connection with a send buffer of the given size
func NewConnection(id, ownerID string, conn *websocket.Conn, sendBuffer int) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	now := time.Now()
	return &Connection{
		ID:            id,
		OwnerID:       ownerID,
		Conn:          conn,
		Send:          make(chan []byte, sendBuffer),
		subscriptions: make(map[string]bool),
		lastPong:      now,
		createdAt:     now,
	}
}

// Subscribe limits notifications to the given codes
func (c *Connection) Subscribe(codes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, code := range codes {
		if n := models.NormalizeCode(code); n != "" {
			c.subscriptions[n] = true
		}
	}
}

// Unsubscribe removes codes from the subscription set
func (c *Connection) Unsubscribe(codes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, code := range codes {
		delete(c.subscriptions, models.NormalizeCode(code))
	}
}

// IsSubscribed checks if the connection is subscribed to a code
func (c *Connection) IsSubscribed(code string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions[models.NormalizeCode(code)]
}

// ShouldReceive reports whether a notification for code is delivered. With
// no subscriptions every code is delivered.
func (c *Connection) ShouldReceive(code string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	return c.subscriptions[models.NormalizeCode(code)]
}

// UpdateLastPong updates the last pong time
func (c *Connection) UpdateLastPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = time.Now()
}

// GetLastPong returns the last pong time
func (c *Connection) GetLastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

// Enqueue queues data without blocking. It reports false when the buffer is
// full or the connection is closed.
func (c *Connection) Enqueue(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// SendJSON marshals v and enqueues it
func (c *Connection) SendJSON(v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return c.Enqueue(data)
}

// SendError queues an error message
func (c *Connection) SendError(code string, message string) bool {
	return c.SendJSON(ServerMessage{Type: MessageTypeError, Code: code, Message: message})
}

// Close closes the send queue and the socket. It is safe to call more than
// once.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.Send)
	c.mu.Unlock()

	if c.Conn != nil {
		c.Conn.Close()
	}
}
