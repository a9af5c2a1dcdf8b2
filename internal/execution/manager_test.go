package execution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"loom/internal/artifact"
	artifactservice "loom/internal/artifact/service"
	"loom/internal/governance"
	govservice "loom/internal/governance/service"
	"loom/internal/intent"
	"loom/internal/outbox"
	"loom/internal/promotion"
	promotionservice "loom/internal/promotion/service"
	"loom/internal/wal"
	id "loom/pkg/domain"
	dErrors "loom/pkg/domain-errors"
)

// passthroughRunner commits nothing transactionally; the in-memory stores
// are internally consistent, which is what dev mode runs on.
type passthroughRunner struct{}

func (passthroughRunner) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ingestHandler mimics a file-ingest step: reads one external source and
// produces an embedding artifact plus a downstream announcement.
type ingestHandler struct {
	failWith error
}

func (h *ingestHandler) NeedsExternalData(in *intent.Intent) *DataRequirement {
	sourceID, _ := in.Parameters["file_path"].(string)
	return &DataRequirement{
		SourceType:       "sharepoint",
		SourceIdentifier: sourceID,
		ArtifactType:     "embedding",
	}
}

func (h *ingestHandler) Handle(_ context.Context, ec *ExecContext) (*HandlerResult, error) {
	if h.failWith != nil {
		return nil, h.failWith
	}
	return &HandlerResult{
		Artifacts: []artifact.Draft{{
			Type:       "embedding",
			Descriptor: artifact.SemanticDescriptor{EmbeddingModel: "text-embedding-3-small", RecordCount: 12},
			Payload:    map[string]any{"vector_ref": "emb-" + ec.ExecutionID.String()},
		}},
		Events: []EventDraft{{
			Type:    "file.ingested",
			Payload: map[string]any{"intent_id": ec.Intent.ID.String()},
		}},
	}, nil
}

type ManagerSuite struct {
	suite.Suite
	registry      *Registry
	walStore      *wal.InMemoryStore
	outboxStore   *outbox.InMemoryStore
	contracts     *governance.InMemoryStore
	cache         *artifact.InMemoryCache
	artifactStore *artifact.InMemoryStore
	artifacts     *artifactservice.Service
	governance    *govservice.Service
	manager       *Manager
	ctx           context.Context
	tenant        id.TenantID
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.tenant = id.NewTenantID()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.walStore = wal.NewInMemoryStore()
	walLog, err := wal.NewLog(s.walStore)
	s.Require().NoError(err)

	s.outboxStore = outbox.NewInMemoryStore()
	s.contracts = governance.NewInMemoryStore()
	s.cache = artifact.NewInMemoryCache()
	s.artifactStore = artifact.NewInMemoryStore()

	s.governance, err = govservice.NewService(s.contracts, nil, governance.DefaultMaterializationPolicy(time.Hour), walLog, log)
	s.Require().NoError(err)

	s.artifacts, err = artifactservice.NewService(s.artifactStore, s.cache, walLog, log)
	s.Require().NoError(err)

	s.registry = NewRegistry()
	s.manager, err = NewManager(s.registry, s.governance, s.artifacts, walLog, s.outboxStore, passthroughRunner{}, nil, log)
	s.Require().NoError(err)
}

func (s *ManagerSuite) newIntent(intentType string) *intent.Intent {
	in := intent.New(intentType, s.tenant, id.NewUserID(), id.NewSessionID(), id.NewSolutionID())
	in.Parameters["file_path"] = "site-a/report.xlsx"
	return in
}

func (s *ManagerSuite) eventTypes(executionID id.ExecutionID) []wal.EventType {
	events, err := s.walStore.ListByExecution(s.ctx, s.tenant, executionID)
	s.Require().NoError(err)
	types := make([]wal.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func (s *ManagerSuite) TestRequiredCollaborators() {
	_, err := NewManager(nil, nil, nil, nil, nil, nil, nil, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *ManagerSuite) TestValidationFailureHasNoSideEffects() {
	in := s.newIntent("ingest_file")
	in.Type = ""

	outcome := s.manager.Execute(s.ctx, in)
	s.Equal(StatusFailed, outcome.Status)
	s.True(dErrors.HasCode(outcome.Err, dErrors.CodeInvalidInput))

	events, err := s.walStore.ListByTenant(s.ctx, s.tenant)
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *ManagerSuite) TestUnknownIntentTypeFails() {
	outcome := s.manager.Execute(s.ctx, s.newIntent("unregistered"))
	s.Equal(StatusFailed, outcome.Status)
	s.True(dErrors.HasCode(outcome.Err, dErrors.CodeInvalidInput))
}

func (s *ManagerSuite) TestDenialIsAnOutcomeNotAnError() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	walLog, err := wal.NewLog(s.walStore)
	s.Require().NoError(err)
	gov, err := govservice.NewService(s.contracts, governance.DenylistPolicy{
		BlockedSourceTypes: map[string]string{"sharepoint": "tenant policy"},
	}, nil, walLog, log)
	s.Require().NoError(err)
	manager, err := NewManager(s.registry, gov, s.artifacts, walLog, s.outboxStore, passthroughRunner{}, nil, log)
	s.Require().NoError(err)
	s.Require().NoError(s.registry.Register("ingest_file", &ingestHandler{}))

	outcome := manager.Execute(s.ctx, s.newIntent("ingest_file"))
	s.Equal(StatusDenied, outcome.Status)
	s.Equal("tenant policy", outcome.Reason)
	s.False(outcome.ContractID.IsNil())

	s.Contains(s.eventTypes(outcome.ExecutionID), wal.EventAccessDenied)
	s.NotContains(s.eventTypes(outcome.ExecutionID), wal.EventStepStarted)
}

func (s *ManagerSuite) TestHandlerFailureIsLogged() {
	boom := errors.New("parser exploded")
	s.Require().NoError(s.registry.Register("ingest_file", &ingestHandler{failWith: boom}))

	outcome := s.manager.Execute(s.ctx, s.newIntent("ingest_file"))
	s.Equal(StatusFailed, outcome.Status)
	s.True(dErrors.HasCode(outcome.Err, dErrors.CodeHandlerFailed))

	types := s.eventTypes(outcome.ExecutionID)
	s.Contains(types, wal.EventStepStarted)
	s.Contains(types, wal.EventStepFailed)
	s.NotContains(types, wal.EventStepCompleted)

	artifacts, err := s.artifacts.ListByTenant(s.ctx, s.tenant)
	s.Require().NoError(err)
	s.Empty(artifacts)
}

func (s *ManagerSuite) TestSuccessfulIngestEndToEnd() {
	s.Require().NoError(s.registry.Register("ingest_file", &ingestHandler{}))

	outcome := s.manager.Execute(s.ctx, s.newIntent("ingest_file"))
	s.Require().Equal(StatusOK, outcome.Status, "outcome: %+v", outcome)
	s.Require().Len(outcome.Artifacts, 1)
	s.Require().Len(outcome.Events, 1)

	// The embedding went through the two-phase protocol: cache policy,
	// deterministic materialization, active contract with a TTL.
	record := outcome.Artifacts[0]
	s.Require().Len(record.Materializations, 1)
	s.Equal("redis", record.Materializations[0].StorageType)
	s.False(record.SourceContractID.IsNil())

	contract, err := s.contracts.GetByID(s.ctx, s.tenant, record.SourceContractID)
	s.Require().NoError(err)
	s.Equal(governance.StatusActive, contract.Status)
	s.Equal(governance.MaterializationDeterministic, contract.MaterializationType)
	s.Equal("redis", contract.MaterializationBackingStore)
	s.Equal(time.Hour, contract.MaterializationTTL)
	s.Require().NotNil(contract.MaterializationExpiresAt)

	// The cached copy is readable under the materialization URI.
	cached, err := s.cache.Get(s.ctx, record.Materializations[0].URI)
	s.Require().NoError(err)
	s.Contains(string(cached), "vector_ref")

	// WAL carries the full ordering for the execution.
	types := s.eventTypes(outcome.ExecutionID)
	s.Equal([]wal.EventType{
		wal.EventAccessGranted,
		wal.EventMaterializationAuthorized,
		wal.EventStepStarted,
		wal.EventArtifactRegistered,
		wal.EventStepCompleted,
		wal.EventOutboxEnqueued,
	}, types)

	// The announcement sits in the outbox, unpublished until the relay runs.
	pending, err := s.outboxStore.GetPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal("file.ingested", pending[0].Type)
	s.Equal(outcome.ExecutionID, pending[0].ExecutionID)
}

func (s *ManagerSuite) TestIngestThenPromoteScenario() {
	s.Require().NoError(s.registry.Register("ingest_file", &ingestHandler{}))

	outcome := s.manager.Execute(s.ctx, s.newIntent("ingest_file"))
	s.Require().Equal(StatusOK, outcome.Status)
	embedding := outcome.Artifacts[0]

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	walLog, err := wal.NewLog(s.walStore)
	s.Require().NoError(err)
	promo, err := promotionservice.NewService(promotion.NewInMemoryStore(), s.artifacts, s.governance, walLog, log)
	s.Require().NoError(err)

	recordID, err := promo.PromoteToRecordOfFact(s.ctx, promotionservice.RecordPromotionRequest{
		TenantID:     s.tenant,
		RecordType:   "deterministic_embedding",
		SourceFileID: embedding.ArtifactID,
		ContractID:   embedding.SourceContractID,
		ExecutionID:  outcome.ExecutionID,
		EmbeddingID:  "emb-1",
		Content:      map[string]any{"vector_ref": "emb-1"},
	})
	s.Require().NoError(err)
	s.Require().NotNil(recordID, "cache-class source with matching record type must promote")

	record, err := promo.GetRecord(s.ctx, s.tenant, *recordID)
	s.Require().NoError(err)
	s.Nil(record.SourceExpiredAt)
	s.Equal(embedding.ArtifactID, record.SourceFileID)
}

func (s *ManagerSuite) TestHandlerWithoutDataRequirementSkipsNegotiation() {
	s.Require().NoError(s.registry.Register("noop", noopHandler{}))

	in := intent.New("noop", s.tenant, id.NewUserID(), id.NewSessionID(), id.NewSolutionID())
	outcome := s.manager.Execute(s.ctx, in)
	s.Require().Equal(StatusOK, outcome.Status)

	types := s.eventTypes(outcome.ExecutionID)
	s.Equal([]wal.EventType{wal.EventStepStarted, wal.EventStepCompleted}, types)
}
