package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohamedkhairy/stock-watchlist/internal/models"
)

// InMemoryMonitorStore is an in-memory implementation of MonitorStore
type InMemoryMonitorStore struct {
	mu       sync.RWMutex
	monitors map[string]*models.Monitor
	now      func() time.Time
}

// NewInMemoryMonitorStore creates a new in-memory monitor store
func NewInMemoryMonitorStore() *InMemoryMonitorStore {
	return &InMemoryMonitorStore{
		monitors: make(map[string]*models.Monitor),
		now:      time.Now,
	}
}

// LoadAll retrieves every monitor owned by ownerID, oldest first
func (s *InMemoryMonitorStore) LoadAll(ctx context.Context, ownerID string) ([]*models.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	monitors := make([]*models.Monitor, 0)
	for _, m := range s.monitors {
		if m.OwnerID == ownerID {
			monitors = append(monitors, m.Clone())
		}
	}
	sortMonitors(monitors)

	return monitors, nil
}

// Get retrieves a monitor by ID
func (s *InMemoryMonitorStore) Get(ctx context.Context, id string) (*models.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.monitors[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", models.ErrMonitorNotFound, id)
	}

	// Return a copy to prevent external modifications
	return m.Clone(), nil
}

// Insert adds a new monitor
func (s *InMemoryMonitorStore) Insert(ctx context.Context, monitor *models.Monitor) (*models.Monitor, error) {
	if monitor == nil {
		return nil, fmt.Errorf("monitor cannot be nil")
	}

	m := monitor.Clone()
	m.Code = models.NormalizeCode(m.Code)
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid monitor: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if _, exists := s.monitors[m.ID]; exists {
		return nil, fmt.Errorf("monitor already exists: %s", m.ID)
	}

	now := s.now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	s.monitors[m.ID] = m
	return m.Clone(), nil
}

// Replace applies patch to an existing monitor
func (s *InMemoryMonitorStore) Replace(ctx context.Context, id string, patch models.MonitorPatch) (*models.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.monitors[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", models.ErrMonitorNotFound, id)
	}

	// Patch a copy so a rejected update leaves the stored monitor untouched
	updated := existing.Clone()
	patch.Apply(updated, s.now())
	if err := updated.Validate(); err != nil {
		return nil, fmt.Errorf("invalid monitor: %w", err)
	}

	s.monitors[id] = updated
	return updated.Clone(), nil
}

// Delete deletes a monitor by ID
func (s *InMemoryMonitorStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.monitors[id]; !exists {
		return false, nil
	}
	delete(s.monitors, id)
	return true, nil
}

// ListOwners returns every owner with at least one monitor, sorted
func (s *InMemoryMonitorStore) ListOwners(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	owners := make([]string, 0)
	for _, m := range s.monitors {
		if !seen[m.OwnerID] {
			seen[m.OwnerID] = true
			owners = append(owners, m.OwnerID)
		}
	}
	sort.Strings(owners)
	return owners, nil
}

// Count returns the number of monitors in the store
func (s *InMemoryMonitorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.monitors)
}

func sortMonitors(monitors []*models.Monitor) {
	sort.Slice(monitors, func(i, j int) bool {
		if !monitors[i].CreatedAt.Equal(monitors[j].CreatedAt) {
			return monitors[i].CreatedAt.Before(monitors[j].CreatedAt)
		}
		return monitors[i].ID < monitors[j].ID
	})
}
