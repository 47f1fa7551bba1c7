package engine

import "sync"

// MonitorLocks is a keyed mutex on monitor id. Every read-modify-write of a
// stored monitor holds its lock, so a cycle's write-back never interleaves
// with a user edit of the same monitor.
type MonitorLocks struct {
	mu    sync.Mutex
	locks map[string]*monitorLock
}

type monitorLock struct {
	mu   sync.Mutex
	refs int
}

// NewMonitorLocks creates an empty lock set
func NewMonitorLocks() *MonitorLocks {
	return &MonitorLocks{locks: make(map[string]*monitorLock)}
}

// Lock acquires the lock for id and returns its release function
func (l *MonitorLocks) Lock(id string) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &monitorLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of ids currently locked or waited on
func (l *MonitorLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
