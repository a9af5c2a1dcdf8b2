package promotion

import (
	"context"
	"sort"
	"sync"
	"time"

	id "loom/pkg/domain"
	"loom/pkg/platform/sentinel"
)

type registryKey struct {
	registryType id.RegistryType
	name         string
}

// InMemoryStore is the dev-mode and test store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.TenantID]map[id.RecordID]*RecordOfFact
	entries map[registryKey][]*RegistryEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[id.TenantID]map[id.RecordID]*RecordOfFact),
		entries: make(map[registryKey][]*RegistryEntry),
	}
}

func (s *InMemoryStore) CreateRecord(_ context.Context, record *RecordOfFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant := s.records[record.TenantID]
	if tenant == nil {
		tenant = make(map[id.RecordID]*RecordOfFact)
		s.records[record.TenantID] = tenant
	}
	if _, exists := tenant[record.RecordID]; exists {
		return sentinel.ErrConflict
	}
	r := *record
	tenant[record.RecordID] = &r
	return nil
}

func (s *InMemoryStore) GetRecord(_ context.Context, tenantID id.TenantID, recordID id.RecordID) (*RecordOfFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[tenantID][recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	r := *record
	return &r, nil
}

func (s *InMemoryStore) ListRecordsBySource(_ context.Context, tenantID id.TenantID, sourceFileID id.ArtifactID) ([]*RecordOfFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*RecordOfFact
	for _, record := range s.records[tenantID] {
		if record.SourceFileID == sourceFileID {
			r := *record
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PromotedAt.Before(out[j].PromotedAt) })
	return out, nil
}

func (s *InMemoryStore) MarkSourceExpired(_ context.Context, tenantID id.TenantID, sourceFileID id.ArtifactID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records[tenantID] {
		if record.SourceFileID == sourceFileID && record.SourceExpiredAt == nil {
			t := at
			record.SourceExpiredAt = &t
		}
	}
	return nil
}

func (s *InMemoryStore) CreateRegistryEntry(_ context.Context, entry *RegistryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := registryKey{registryType: entry.RegistryType, name: entry.Name}
	for _, existing := range s.entries[key] {
		if existing.Version == entry.Version {
			return sentinel.ErrConflict
		}
	}
	for _, existing := range s.entries[key] {
		existing.IsCurrentVersion = false
	}
	e := *entry
	e.Tags = append([]string{}, entry.Tags...)
	s.entries[key] = append(s.entries[key], &e)
	return nil
}

func (s *InMemoryStore) GetCurrentEntry(_ context.Context, registryType id.RegistryType, name string) (*RegistryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.entries[registryKey{registryType: registryType, name: name}] {
		if entry.IsCurrentVersion {
			e := *entry
			return &e, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListEntries(_ context.Context, registryType id.RegistryType) ([]*RegistryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*RegistryEntry
	for key, entries := range s.entries {
		if key.registryType != registryType {
			continue
		}
		for _, entry := range entries {
			e := *entry
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}
