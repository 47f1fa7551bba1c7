package storage

import (
	"context"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/models"
)

// MonitorStore is the durable record of monitors and their rules
type MonitorStore interface {
	// LoadAll returns every monitor owned by ownerID
	LoadAll(ctx context.Context, ownerID string) ([]*models.Monitor, error)

	// Get returns one monitor, or models.ErrMonitorNotFound
	Get(ctx context.Context, id string) (*models.Monitor, error)

	// Insert validates and stores a new monitor, assigning an ID when empty
	Insert(ctx context.Context, monitor *models.Monitor) (*models.Monitor, error)

	// Replace applies a partial update. Unknown ids return
	// models.ErrMonitorNotFound; invalid results are rejected unapplied.
	Replace(ctx context.Context, id string, patch models.MonitorPatch) (*models.Monitor, error)

	// Delete removes a monitor and its rules, reporting whether it existed
	Delete(ctx context.Context, id string) (bool, error)

	// ListOwners returns the distinct owners with at least one monitor
	ListOwners(ctx context.Context) ([]string, error)
}

// RedisClient defines the Redis operations used by the service
type RedisClient interface {
	// PublishToStream appends value, JSON-encoded under field key, to a stream
	PublishToStream(ctx context.Context, stream string, key string, value interface{}) error

	// Set stores value JSON-encoded with a TTL (0 means no expiry)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX stores value only when key is absent and reports whether it did
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// Get returns the raw value, or "" when the key is missing
	Get(ctx context.Context, key string) (string, error)

	// GetJSON decodes the value into dest and reports whether the key existed
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)

	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// StreamMessage represents a message published to a Redis stream
type StreamMessage struct {
	ID     string
	Stream string
	Values map[string]interface{}
}
