// Package history archives incidents for after-the-fact review. The
// in-memory store backs tests and single-node deployments; the Redis
// store survives restarts and is shared across engine instances.
package history

import (
	"context"
	"sync"
	"time"

	"sentinel-engine/internal/incident"
)

// Store archives incidents.
type Store interface {
	Archive(ctx context.Context, inc *incident.SecurityIncident) error
	Fetch(ctx context.Context, id string) (*incident.SecurityIncident, error)
	Close() error
}

// ErrNotFound is returned when an incident is not in the archive.
var ErrNotFound = notFoundError("incident not found")

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

// MemoryStore is an in-process archive.
type MemoryStore struct {
	mu        sync.RWMutex
	incidents map[string]*incident.SecurityIncident
}

// NewMemoryStore creates an empty in-memory archive.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{incidents: make(map[string]*incident.SecurityIncident)}
}

// Archive stores a copy of the incident.
func (m *MemoryStore) Archive(_ context.Context, inc *incident.SecurityIncident) error {
	snapshot := *inc
	snapshot.Timeline = append([]incident.TimelineEntry(nil), inc.Timeline...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents[inc.ID] = &snapshot
	return nil
}

// Fetch returns an archived incident by ID.
func (m *MemoryStore) Fetch(_ context.Context, id string) (*incident.SecurityIncident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inc, ok := m.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := *inc
	return &snapshot, nil
}

// Len reports how many incidents are archived.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.incidents)
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

// Retention is how long archived incidents are kept by stores that
// support expiry.
const Retention = 30 * 24 * time.Hour
