package governance

import (
	"context"
	"sync"
	"time"

	id "loom/pkg/domain"
	"loom/pkg/platform/sentinel"
)

type sourceKey struct {
	tenant     id.TenantID
	sourceType string
	sourceID   string
}

// InMemoryStore keeps one contract per source key under a mutex.
type InMemoryStore struct {
	mu         sync.RWMutex
	bySource   map[sourceKey]*BoundaryContract
	byContract map[id.ContractID]sourceKey
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		bySource:   make(map[sourceKey]*BoundaryContract),
		byContract: make(map[id.ContractID]sourceKey),
	}
}

func (s *InMemoryStore) Save(_ context.Context, contract *BoundaryContract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sourceKey{contract.TenantID, contract.ExternalSourceType, contract.ExternalSourceIdentifier}
	if prior, ok := s.bySource[key]; ok {
		delete(s.byContract, prior.ContractID)
	}
	c := *contract
	s.bySource[key] = &c
	s.byContract[c.ContractID] = key
	return nil
}

func (s *InMemoryStore) FindBySource(_ context.Context, tenantID id.TenantID, sourceType, sourceIdentifier string) (*BoundaryContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contract, ok := s.bySource[sourceKey{tenantID, sourceType, sourceIdentifier}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *contract
	return &c, nil
}

func (s *InMemoryStore) GetByID(_ context.Context, tenantID id.TenantID, contractID id.ContractID) (*BoundaryContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byContract[contractID]
	if !ok || key.tenant != tenantID {
		return nil, sentinel.ErrNotFound
	}
	c := *s.bySource[key]
	return &c, nil
}

func (s *InMemoryStore) Activate(_ context.Context, tenantID id.TenantID, contract *BoundaryContract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byContract[contract.ContractID]
	if !ok || key.tenant != tenantID {
		return sentinel.ErrNotFound
	}
	stored := s.bySource[key]
	stored.MaterializationType = contract.MaterializationType
	stored.MaterializationScope = contract.MaterializationScope
	stored.MaterializationBackingStore = contract.MaterializationBackingStore
	stored.MaterializationTTL = contract.MaterializationTTL
	if contract.MaterializationExpiresAt != nil {
		expires := *contract.MaterializationExpiresAt
		stored.MaterializationExpiresAt = &expires
	}
	stored.Status = StatusActive
	if contract.ActivatedAt != nil {
		activated := *contract.ActivatedAt
		stored.ActivatedAt = &activated
	} else {
		now := time.Now()
		stored.ActivatedAt = &now
	}
	return nil
}
