package wal

import (
	"context"
	"sync"

	id "loom/pkg/domain"
)

// InMemoryStore keeps per-tenant event slices under a mutex. Append order
// within a tenant is arrival order, matching the durable store.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.TenantID][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.TenantID][]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.TenantID] = append(s.events[event.TenantID], event)
	return nil
}

func (s *InMemoryStore) ListByTenant(_ context.Context, tenantID id.TenantID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[tenantID]...), nil
}

func (s *InMemoryStore) ListByExecution(_ context.Context, tenantID id.TenantID, executionID id.ExecutionID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events[tenantID] {
		if e.ExecutionID == executionID {
			out = append(out, e)
		}
	}
	return out, nil
}
