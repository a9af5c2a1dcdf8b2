package artifact

import (
	"context"
	"sync"
	"time"

	id "loom/pkg/domain"
	"loom/pkg/platform/sentinel"
)

// InMemoryStore keeps artifact records per tenant under a mutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.TenantID]map[id.ArtifactID]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.TenantID]map[id.ArtifactID]*Record)}
}

func (s *InMemoryStore) Create(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant := s.records[record.TenantID]
	if tenant == nil {
		tenant = make(map[id.ArtifactID]*Record)
		s.records[record.TenantID] = tenant
	}
	if _, exists := tenant[record.ArtifactID]; exists {
		return sentinel.ErrConflict
	}
	r := cloneRecord(record)
	tenant[record.ArtifactID] = r
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, tenantID id.TenantID, artifactID id.ArtifactID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[tenantID][artifactID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(record), nil
}

func (s *InMemoryStore) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, record := range s.records[tenantID] {
		out = append(out, cloneRecord(record))
	}
	return out, nil
}

func (s *InMemoryStore) Transition(_ context.Context, tenantID id.TenantID, artifactID id.ArtifactID, to LifecycleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[tenantID][artifactID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if err := ValidateTransition(record.LifecycleState, to); err != nil {
		return err
	}
	record.LifecycleState = to
	record.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) DeleteMaterializations(_ context.Context, tenantID id.TenantID, artifactID id.ArtifactID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[tenantID][artifactID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.Materializations = nil
	record.Payload = nil
	record.UpdatedAt = time.Now()
	return nil
}

func cloneRecord(record *Record) *Record {
	r := *record
	r.Materializations = append([]Materialization{}, record.Materializations...)
	r.ParentArtifacts = append([]id.ArtifactID{}, record.ParentArtifacts...)
	return &r
}
