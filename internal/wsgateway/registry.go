package wsgateway

import (
	"errors"
	"sync"
	"time"
)

// ErrOwnerLimit is returned when an owner already holds the maximum number
// of connections
var ErrOwnerLimit = errors.New("too many connections for owner")

// ConnectionRegistry holds active connections grouped by owner. Delivery
// always starts from an owner, so there is no flat index by connection id.
type ConnectionRegistry struct {
	owners   map[string]map[string]*Connection
	total    int
	perOwner int // 0 means unlimited
	mu       sync.RWMutex
}

// NewConnectionRegistry creates a registry allowing perOwner connections per
// owner
func NewConnectionRegistry(perOwner int) *ConnectionRegistry {
	return &ConnectionRegistry{
		owners:   make(map[string]map[string]*Connection),
		perOwner: perOwner,
	}
}

// Add registers conn under its owner
func (r *ConnectionRegistry) Add(conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned := r.owners[conn.OwnerID]
	if r.perOwner > 0 && len(owned) >= r.perOwner {
		return ErrOwnerLimit
	}
	if owned == nil {
		owned = make(map[string]*Connection)
		r.owners[conn.OwnerID] = owned
	}
	if _, exists := owned[conn.ID]; !exists {
		r.total++
	}
	owned[conn.ID] = conn
	return nil
}

// Remove removes conn and reports whether it was registered
func (r *ConnectionRegistry) Remove(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned, ok := r.owners[conn.OwnerID]
	if !ok {
		return false
	}
	if _, exists := owned[conn.ID]; !exists {
		return false
	}
	delete(owned, conn.ID)
	r.total--
	if len(owned) == 0 {
		delete(r.owners, conn.OwnerID)
	}
	return true
}

// Recipients returns the owner's connections that should receive updates
// for code
func (r *ConnectionRegistry) Recipients(ownerID, code string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owned := r.owners[ownerID]
	recipients := make([]*Connection, 0, len(owned))
	for _, conn := range owned {
		if conn.ShouldReceive(code) {
			recipients = append(recipients, conn)
		}
	}
	return recipients
}

// Stale returns connections whose last pong is older than threshold
func (r *ConnectionRegistry) Stale(now time.Time, threshold time.Duration) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []*Connection
	for _, owned := range r.owners {
		for _, conn := range owned {
			if now.Sub(conn.GetLastPong()) > threshold {
				stale = append(stale, conn)
			}
		}
	}
	return stale
}

// Drain empties the registry and returns what it held
func (r *ConnectionRegistry) Drain() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	drained := make([]*Connection, 0, r.total)
	for _, owned := range r.owners {
		for _, conn := range owned {
			drained = append(drained, conn)
		}
	}
	r.owners = make(map[string]map[string]*Connection)
	r.total = 0
	return drained
}

// Count returns the total number of connections
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// CountByOwner returns the number of connections of an owner
func (r *ConnectionRegistry) CountByOwner(ownerID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners[ownerID])
}
