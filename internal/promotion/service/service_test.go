package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"loom/internal/artifact"
	artifactservice "loom/internal/artifact/service"
	"loom/internal/promotion"
	"loom/internal/wal"
	id "loom/pkg/domain"
	dErrors "loom/pkg/domain-errors"
)

type PromotionServiceSuite struct {
	suite.Suite
	store     *promotion.InMemoryStore
	walStore  *wal.InMemoryStore
	artifacts *artifactservice.Service
	svc       *Service
	ctx       context.Context
	tenant    id.TenantID
}

func TestPromotionServiceSuite(t *testing.T) {
	suite.Run(t, new(PromotionServiceSuite))
}

func (s *PromotionServiceSuite) SetupTest() {
	s.store = promotion.NewInMemoryStore()
	s.walStore = wal.NewInMemoryStore()
	walLog, err := wal.NewLog(s.walStore)
	s.Require().NoError(err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.artifacts, err = artifactservice.NewService(artifact.NewInMemoryStore(), nil, walLog, log)
	s.Require().NoError(err)

	s.svc, err = NewService(s.store, s.artifacts, nil, walLog, log)
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.tenant = id.NewTenantID()
}

func (s *PromotionServiceSuite) registerOutcome(artifactType string, payload map[string]any) *artifact.Record {
	record, err := s.artifacts.Register(s.ctx, s.tenant, artifact.Draft{
		Type:    artifactType,
		Payload: payload,
	}, artifact.ProducedBy{ExecutionID: id.NewExecutionID()}, nil)
	s.Require().NoError(err)
	return record
}

func (s *PromotionServiceSuite) TestRequiredCollaborators() {
	_, err := NewService(nil, nil, nil, nil, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *PromotionServiceSuite) TestPromoteToRecordOfFact() {
	s.Run("valid promotion returns a record id and writes the WAL", func() {
		source := s.registerOutcome("full_artifact", nil)
		recordID, err := s.svc.PromoteToRecordOfFact(s.ctx, RecordPromotionRequest{
			TenantID:     s.tenant,
			RecordType:   "deterministic_embedding",
			SourceFileID: source.ArtifactID,
			EmbeddingID:  "emb-1",
			Content:      map[string]any{"vector_ref": "emb-1"},
			ModelName:    "text-embedding-3-small",
			Reason:       "searchable after source expiry",
		})
		s.Require().NoError(err)
		s.Require().NotNil(recordID)

		record, err := s.svc.GetRecord(s.ctx, s.tenant, *recordID)
		s.Require().NoError(err)
		s.Equal(id.RecordTypeDeterministicEmbedding, record.RecordType)
		s.Nil(record.SourceExpiredAt)

		events, err := s.walStore.ListByTenant(s.ctx, s.tenant)
		s.Require().NoError(err)
		var found bool
		for _, e := range events {
			if e.Type == wal.EventRecordPromoted {
				found = true
			}
		}
		s.True(found)
	})

	s.Run("invalid record type yields nil id, no error", func() {
		recordID, err := s.svc.PromoteToRecordOfFact(s.ctx, RecordPromotionRequest{
			TenantID:     s.tenant,
			RecordType:   "vibes",
			SourceFileID: id.NewArtifactID(),
			Content:      map[string]any{"x": 1},
		})
		s.Require().NoError(err)
		s.Nil(recordID)
	})

	s.Run("missing content yields nil id, no error", func() {
		recordID, err := s.svc.PromoteToRecordOfFact(s.ctx, RecordPromotionRequest{
			TenantID:     s.tenant,
			RecordType:   "conclusion",
			SourceFileID: id.NewArtifactID(),
		})
		s.Require().NoError(err)
		s.Nil(recordID)
	})
}

func (s *PromotionServiceSuite) TestPromoteToPlatformDNA() {
	s.Run("requires the artifact to be accepted", func() {
		draft := s.registerOutcome("solution", map[string]any{"name": "x"})

		registryID, err := s.svc.PromoteToPlatformDNA(s.ctx, DNAPromotionRequest{
			TenantID:     s.tenant,
			ArtifactID:   draft.ArtifactID,
			RegistryType: "solution",
			Name:         "x",
		})
		s.Require().NoError(err)
		s.Nil(registryID)
	})

	s.Run("registry type gate rejects an sop into the solution registry", func() {
		sop := s.registerOutcome("sop", map[string]any{"name": "handover"})
		s.Require().NoError(s.artifacts.Accept(s.ctx, s.tenant, sop.ArtifactID))

		registryID, err := s.svc.PromoteToPlatformDNA(s.ctx, DNAPromotionRequest{
			TenantID:     s.tenant,
			ArtifactID:   sop.ArtifactID,
			RegistryType: "solution",
			Name:         "handover",
		})
		s.Require().NoError(err)
		s.Nil(registryID)
	})

	s.Run("accepted blueprint lands in the solution registry, generalized", func() {
		blueprint := s.registerOutcome("blueprint", map[string]any{
			"name":      "invoice-flow",
			"tenant_id": s.tenant.String(),
			"steps":     []any{map[string]any{"action": "parse", "user_id": "u"}},
		})
		s.Require().NoError(s.artifacts.Accept(s.ctx, s.tenant, blueprint.ArtifactID))

		registryID, err := s.svc.PromoteToPlatformDNA(s.ctx, DNAPromotionRequest{
			TenantID:     s.tenant,
			ArtifactID:   blueprint.ArtifactID,
			RegistryType: "solution",
			Name:         "invoice-flow",
			Tags:         []string{" Finance ", "finance", ""},
		})
		s.Require().NoError(err)
		s.Require().NotNil(registryID)

		entry, err := s.store.GetCurrentEntry(s.ctx, id.RegistryTypeSolution, "invoice-flow")
		s.Require().NoError(err)
		s.Equal(1, entry.Version)
		s.Equal(s.tenant, entry.SourceTenantID)
		s.Equal([]string{"finance"}, entry.Tags)

		s.NotContains(entry.Definition, "tenant_id")
		step := entry.Definition["steps"].([]any)[0].(map[string]any)
		s.NotContains(step, "user_id")
		s.Equal("parse", step["action"])
	})

	s.Run("re-promotion versions the entry and links its parent", func() {
		first := s.registerOutcome("workflow", map[string]any{"name": "sync", "rev": float64(1)})
		s.Require().NoError(s.artifacts.Accept(s.ctx, s.tenant, first.ArtifactID))
		v1, err := s.svc.PromoteToPlatformDNA(s.ctx, DNAPromotionRequest{
			TenantID: s.tenant, ArtifactID: first.ArtifactID, RegistryType: "intent", Name: "sync",
		})
		s.Require().NoError(err)
		s.Require().NotNil(v1)

		second := s.registerOutcome("workflow", map[string]any{"name": "sync", "rev": float64(2)})
		s.Require().NoError(s.artifacts.Accept(s.ctx, s.tenant, second.ArtifactID))
		v2, err := s.svc.PromoteToPlatformDNA(s.ctx, DNAPromotionRequest{
			TenantID: s.tenant, ArtifactID: second.ArtifactID, RegistryType: "intent", Name: "sync",
		})
		s.Require().NoError(err)
		s.Require().NotNil(v2)
		s.NotEqual(*v1, *v2)

		current, err := s.store.GetCurrentEntry(s.ctx, id.RegistryTypeIntent, "sync")
		s.Require().NoError(err)
		s.Equal(2, current.Version)
		s.Equal(*v1, current.ParentRegistryID)

		entries, err := s.store.ListEntries(s.ctx, id.RegistryTypeIntent)
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.False(entries[0].IsCurrentVersion)
		s.True(entries[1].IsCurrentVersion)
	})

	s.Run("registry ids are deterministic per type, name, and version", func() {
		s.Equal(
			deterministicRegistryID(id.RegistryTypeRealm, "onboarding", 1),
			deterministicRegistryID(id.RegistryTypeRealm, "onboarding", 1),
		)
		s.NotEqual(
			deterministicRegistryID(id.RegistryTypeRealm, "onboarding", 1),
			deterministicRegistryID(id.RegistryTypeRealm, "onboarding", 2),
		)
	})
}

func (s *PromotionServiceSuite) TestSourceExpiryPropagates() {
	source := s.registerOutcome("full_artifact", map[string]any{"rows": float64(2)})
	recordID, err := s.svc.PromoteToRecordOfFact(s.ctx, RecordPromotionRequest{
		TenantID:     s.tenant,
		RecordType:   "interpretation",
		SourceFileID: source.ArtifactID,
		Content:      map[string]any{"summary": "two rows"},
	})
	s.Require().NoError(err)
	s.Require().NotNil(recordID)

	// Deleting the source through the artifact service drives the hook.
	s.artifacts.SetExpiryMarker(s.svc)
	s.Require().NoError(s.artifacts.Delete(s.ctx, s.tenant, source.ArtifactID, "user request"))

	record, err := s.svc.GetRecord(s.ctx, s.tenant, *recordID)
	s.Require().NoError(err)
	s.Require().NotNil(record.SourceExpiredAt)
	s.WithinDuration(time.Now(), *record.SourceExpiredAt, time.Minute)
	s.Equal(map[string]any{"summary": "two rows"}, record.Content)
}
