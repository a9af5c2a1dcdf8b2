package governance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "loom/pkg/domain"
	"loom/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func newContract(tenant id.TenantID, sourceType, sourceID string) *BoundaryContract {
	return &BoundaryContract{
		ContractID:               id.NewContractID(),
		TenantID:                 tenant,
		ExternalSourceType:       sourceType,
		ExternalSourceIdentifier: sourceID,
		AccessGranted:            true,
		Status:                   StatusPending,
		CreatedAt:                time.Now(),
	}
}

func (s *InMemoryStoreSuite) TestSaveReplacesPerSourceKey() {
	tenant := id.NewTenantID()
	first := newContract(tenant, "sharepoint", "doc-1")
	s.Require().NoError(s.store.Save(s.ctx, first))

	second := newContract(tenant, "sharepoint", "doc-1")
	s.Require().NoError(s.store.Save(s.ctx, second))

	found, err := s.store.FindBySource(s.ctx, tenant, "sharepoint", "doc-1")
	s.Require().NoError(err)
	s.Equal(second.ContractID, found.ContractID)

	// The replaced contract id no longer resolves.
	_, err = s.store.GetByID(s.ctx, tenant, first.ContractID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestTenantIsolation() {
	t1 := id.NewTenantID()
	t2 := id.NewTenantID()
	contract := newContract(t1, "gdrive", "f/1")
	s.Require().NoError(s.store.Save(s.ctx, contract))

	_, err := s.store.FindBySource(s.ctx, t2, "gdrive", "f/1")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.GetByID(s.ctx, t2, contract.ContractID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestActivateWritesMaterializationFields() {
	tenant := id.NewTenantID()
	contract := newContract(tenant, "sharepoint", "doc-2")
	s.Require().NoError(s.store.Save(s.ctx, contract))

	expires := time.Now().Add(time.Hour)
	contract.MaterializationType = MaterializationDeterministic
	contract.MaterializationScope = "tenant/x"
	contract.MaterializationBackingStore = "redis"
	contract.MaterializationTTL = time.Hour
	contract.MaterializationExpiresAt = &expires
	s.Require().NoError(s.store.Activate(s.ctx, tenant, contract))

	stored, err := s.store.GetByID(s.ctx, tenant, contract.ContractID)
	s.Require().NoError(err)
	s.Equal(StatusActive, stored.Status)
	s.Equal(MaterializationDeterministic, stored.MaterializationType)
	s.NotNil(stored.ActivatedAt)
}

func TestContractExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	require.False(t, (&BoundaryContract{}).Expired(now), "no expiry means never expired")
	require.True(t, (&BoundaryContract{MaterializationExpiresAt: &past}).Expired(now))
	require.False(t, (&BoundaryContract{MaterializationExpiresAt: &future}).Expired(now))
}
