package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"loom/internal/artifact"
	"loom/internal/governance"
	"loom/internal/wal"
	id "loom/pkg/domain"
	dErrors "loom/pkg/domain-errors"
	"loom/pkg/platform/sentinel"
)

type ArtifactServiceSuite struct {
	suite.Suite
	store    *artifact.InMemoryStore
	cache    *artifact.InMemoryCache
	walStore *wal.InMemoryStore
	svc      *Service
	ctx      context.Context
	tenant   id.TenantID
}

func TestArtifactServiceSuite(t *testing.T) {
	suite.Run(t, new(ArtifactServiceSuite))
}

func (s *ArtifactServiceSuite) SetupTest() {
	s.store = artifact.NewInMemoryStore()
	s.cache = artifact.NewInMemoryCache()
	s.walStore = wal.NewInMemoryStore()
	walLog, err := wal.NewLog(s.walStore)
	s.Require().NoError(err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc, err = NewService(s.store, s.cache, walLog, log)
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.tenant = id.NewTenantID()
}

func (s *ArtifactServiceSuite) register(draft artifact.Draft, contract *governance.BoundaryContract) *artifact.Record {
	record, err := s.svc.Register(s.ctx, s.tenant, draft, artifact.ProducedBy{
		IntentID:    id.NewIntentID(),
		ExecutionID: id.NewExecutionID(),
	}, contract)
	s.Require().NoError(err)
	return record
}

func (s *ArtifactServiceSuite) TestRequiredCollaborators() {
	_, err := NewService(nil, nil, nil, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *ArtifactServiceSuite) TestRegister() {
	s.Run("durable artifact keeps payload and a postgres materialization", func() {
		record := s.register(artifact.Draft{
			Type:    "full_artifact",
			Payload: map[string]any{"rows": float64(3)},
			Format:  "json",
		}, nil)

		s.Equal(artifact.StateReady, record.LifecycleState)
		s.Require().Len(record.Materializations, 1)
		s.Equal("postgres", record.Materializations[0].StorageType)
		s.NotNil(record.Payload)
	})

	s.Run("deterministic contract writes the cache, not the durable payload", func() {
		contract := &governance.BoundaryContract{
			ContractID:           id.NewContractID(),
			TenantID:             s.tenant,
			AccessGranted:        true,
			MaterializationType:  governance.MaterializationDeterministic,
			MaterializationScope: "tenant/" + s.tenant.String(),
			MaterializationTTL:   time.Hour,
			Status:               governance.StatusActive,
		}
		record := s.register(artifact.Draft{
			Type:    "embedding",
			Payload: map[string]any{"vector": []any{0.1, 0.2}},
		}, contract)

		s.Require().Len(record.Materializations, 1)
		s.Equal("redis", record.Materializations[0].StorageType)
		s.Equal(contract.ContractID, record.SourceContractID)

		cached, err := s.cache.Get(s.ctx, record.Materializations[0].URI)
		s.Require().NoError(err)
		s.Contains(string(cached), "vector")
	})

	s.Run("reference contract retains no copy of the content", func() {
		contract := &governance.BoundaryContract{
			ContractID:          id.NewContractID(),
			TenantID:            s.tenant,
			AccessGranted:       true,
			MaterializationType: governance.MaterializationReference,
			Status:              governance.StatusActive,
		}
		record := s.register(artifact.Draft{
			Type:    "preview",
			Payload: map[string]any{"secret": "never stored"},
		}, contract)

		s.Empty(record.Materializations)
		s.Nil(record.Payload)
	})

	s.Run("outcome types enter as DRAFT", func() {
		record := s.register(artifact.Draft{Type: "solution"}, nil)
		s.Equal(artifact.StateDraft, record.LifecycleState)
	})

	s.Run("unknown parent is rejected", func() {
		_, err := s.svc.Register(s.ctx, s.tenant, artifact.Draft{
			Type:    "full_artifact",
			Parents: []id.ArtifactID{id.NewArtifactID()},
		}, artifact.ProducedBy{}, nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("lineage links to existing parents", func() {
		parent := s.register(artifact.Draft{Type: "full_artifact"}, nil)
		child := s.register(artifact.Draft{
			Type:    "embedding",
			Parents: []id.ArtifactID{parent.ArtifactID},
		}, nil)
		s.Equal([]id.ArtifactID{parent.ArtifactID}, child.ParentArtifacts)
	})
}

func (s *ArtifactServiceSuite) TestArchiveRequiresReason() {
	record := s.register(artifact.Draft{Type: "full_artifact"}, nil)

	err := s.svc.Archive(s.ctx, s.tenant, record.ArtifactID, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	s.Require().NoError(s.svc.Archive(s.ctx, s.tenant, record.ArtifactID, "retention window closed"))
	got, err := s.svc.Get(s.ctx, s.tenant, record.ArtifactID)
	s.Require().NoError(err)
	s.Equal(artifact.StateArchived, got.LifecycleState)
}

func (s *ArtifactServiceSuite) TestDeleteIsTerminalAndCascades() {
	contract := &governance.BoundaryContract{
		ContractID:          id.NewContractID(),
		TenantID:            s.tenant,
		AccessGranted:       true,
		MaterializationType: governance.MaterializationDeterministic,
		MaterializationTTL:  time.Hour,
		Status:              governance.StatusActive,
	}
	record := s.register(artifact.Draft{
		Type:    "embedding",
		Payload: map[string]any{"vector": []any{0.5}},
	}, contract)
	key := record.Materializations[0].URI

	marker := &recordingMarker{}
	s.svc.SetExpiryMarker(marker)

	s.Require().NoError(s.svc.Delete(s.ctx, s.tenant, record.ArtifactID, "user revoked access"))

	got, err := s.svc.Get(s.ctx, s.tenant, record.ArtifactID)
	s.Require().NoError(err)
	s.Equal(artifact.StateDeleted, got.LifecycleState)
	s.Empty(got.Materializations)
	s.Nil(got.Payload)

	_, err = s.cache.Get(s.ctx, key)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Equal([]id.ArtifactID{record.ArtifactID}, marker.marked())

	// DELETED is terminal: no transition leaves it.
	err = s.svc.Archive(s.ctx, s.tenant, record.ArtifactID, "too late")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ArtifactServiceSuite) TestAcceptOnlyFromDraft() {
	outcome := s.register(artifact.Draft{Type: "blueprint"}, nil)
	s.Require().NoError(s.svc.Accept(s.ctx, s.tenant, outcome.ArtifactID))

	got, err := s.svc.Get(s.ctx, s.tenant, outcome.ArtifactID)
	s.Require().NoError(err)
	s.Equal(artifact.StateAccepted, got.LifecycleState)

	file := s.register(artifact.Draft{Type: "full_artifact"}, nil)
	err = s.svc.Accept(s.ctx, s.tenant, file.ArtifactID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ArtifactServiceSuite) TestTransitionsAreLogged() {
	record := s.register(artifact.Draft{Type: "full_artifact"}, nil)
	s.Require().NoError(s.svc.Archive(s.ctx, s.tenant, record.ArtifactID, "done"))
	s.Require().NoError(s.svc.Delete(s.ctx, s.tenant, record.ArtifactID, "cleanup"))

	events, err := s.walStore.ListByTenant(s.ctx, s.tenant)
	s.Require().NoError(err)

	var types []wal.EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	s.Contains(types, wal.EventArtifactRegistered)
	s.Contains(types, wal.EventArtifactArchived)
	s.Contains(types, wal.EventArtifactDeleted)
}

func (s *ArtifactServiceSuite) TestTenantIsolation() {
	record := s.register(artifact.Draft{Type: "full_artifact"}, nil)

	other := id.NewTenantID()
	_, err := s.svc.Get(s.ctx, other, record.ArtifactID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

type recordingMarker struct {
	mu  sync.Mutex
	ids []id.ArtifactID
}

func (m *recordingMarker) MarkSourceExpired(_ context.Context, _ id.TenantID, sourceFileID id.ArtifactID, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, sourceFileID)
	return nil
}

func (m *recordingMarker) marked() []id.ArtifactID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]id.ArtifactID{}, m.ids...)
}
