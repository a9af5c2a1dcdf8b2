package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"loom/internal/governance"
	"loom/internal/intent"
	"loom/internal/wal"
	id "loom/pkg/domain"
	dErrors "loom/pkg/domain-errors"
	"loom/pkg/requestcontext"
)

type GovernanceServiceSuite struct {
	suite.Suite
	store    *governance.InMemoryStore
	walStore *wal.InMemoryStore
	svc      *Service
	ctx      context.Context
	tenant   id.TenantID
}

func TestGovernanceServiceSuite(t *testing.T) {
	suite.Run(t, new(GovernanceServiceSuite))
}

func (s *GovernanceServiceSuite) SetupTest() {
	s.store = governance.NewInMemoryStore()
	s.walStore = wal.NewInMemoryStore()
	walLog, err := wal.NewLog(s.walStore)
	s.Require().NoError(err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc, err = NewService(s.store, nil, governance.DefaultMaterializationPolicy(time.Hour), walLog, log)
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.tenant = id.NewTenantID()
}

func (s *GovernanceServiceSuite) accessReq(sourceType, sourceID string) AccessRequest {
	return AccessRequest{
		TenantID:         s.tenant,
		UserID:           id.NewUserID(),
		IntentID:         id.NewIntentID(),
		ExecutionID:      id.NewExecutionID(),
		SourceType:       sourceType,
		SourceIdentifier: sourceID,
	}
}

func (s *GovernanceServiceSuite) TestRequiredCollaborators() {
	_, err := NewService(nil, nil, nil, nil, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *GovernanceServiceSuite) TestRequestDataAccess() {
	s.Run("grants by default and persists a pending contract", func() {
		decision, err := s.svc.RequestDataAccess(s.ctx, s.accessReq("sharepoint", "site-a/doc-1"))
		s.Require().NoError(err)
		s.True(decision.Granted)
		s.False(decision.Reused)
		s.False(decision.ContractID.IsNil())

		contract, err := s.store.GetByID(s.ctx, s.tenant, decision.ContractID)
		s.Require().NoError(err)
		s.Equal(governance.StatusPending, contract.Status)
		s.True(contract.AccessGranted)
	})

	s.Run("reuses the contract on the second call", func() {
		first, err := s.svc.RequestDataAccess(s.ctx, s.accessReq("gdrive", "folder/x"))
		s.Require().NoError(err)
		second, err := s.svc.RequestDataAccess(s.ctx, s.accessReq("gdrive", "folder/x"))
		s.Require().NoError(err)

		s.Equal(first.ContractID, second.ContractID)
		s.True(second.Reused)
	})

	s.Run("rejects missing source fields", func() {
		req := s.accessReq("", "")
		_, err := s.svc.RequestDataAccess(s.ctx, req)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *GovernanceServiceSuite) TestDenialIsPersistedAndLogged() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	walLog, err := wal.NewLog(s.walStore)
	s.Require().NoError(err)
	svc, err := NewService(s.store, governance.DenylistPolicy{
		BlockedSourceTypes: map[string]string{"darkweb": "restricted source class"},
	}, nil, walLog, log)
	s.Require().NoError(err)

	req := s.accessReq("darkweb", "listing-9")
	decision, err := svc.RequestDataAccess(s.ctx, req)
	s.Require().NoError(err, "a denial is a decision, not an error")
	s.False(decision.Granted)
	s.Equal("restricted source class", decision.Reason)

	// The denied contract is auditable in the store and in the WAL.
	contract, err := s.store.GetByID(s.ctx, s.tenant, decision.ContractID)
	s.Require().NoError(err)
	s.False(contract.AccessGranted)

	events, err := s.walStore.ListByExecution(s.ctx, s.tenant, req.ExecutionID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(wal.EventAccessDenied, events[0].Type)
}

func (s *GovernanceServiceSuite) TestDeniedContractIsNotReusedVerbatim() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	walLog, err := wal.NewLog(s.walStore)
	s.Require().NoError(err)
	denying, err := NewService(s.store, governance.DenylistPolicy{
		BlockedSourceTypes: map[string]string{"ftp": "legacy transport"},
	}, nil, walLog, log)
	s.Require().NoError(err)

	first := s.accessReq("ftp", "host/export.csv")
	decision, err := denying.RequestDataAccess(s.ctx, first)
	s.Require().NoError(err)
	s.False(decision.Granted)

	s.Run("each denied execution gets its own wal event", func() {
		repeat := s.accessReq("ftp", "host/export.csv")
		again, err := denying.RequestDataAccess(s.ctx, repeat)
		s.Require().NoError(err)
		s.False(again.Granted)
		s.True(again.Reused)
		s.Equal(decision.ContractID, again.ContractID, "denial keeps the recorded contract")

		events, err := s.walStore.ListByExecution(s.ctx, s.tenant, repeat.ExecutionID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(wal.EventAccessDenied, events[0].Type)
	})

	s.Run("a policy change lifts the recorded denial", func() {
		open, err := NewService(s.store, governance.OpenAccessPolicy{}, nil, walLog, log)
		s.Require().NoError(err)

		req := s.accessReq("ftp", "host/export.csv")
		granted, err := open.RequestDataAccess(s.ctx, req)
		s.Require().NoError(err)
		s.True(granted.Granted, "the denial must be re-evaluated, not replayed")
		s.False(granted.Reused)
		s.NotEqual(decision.ContractID, granted.ContractID)

		events, err := s.walStore.ListByExecution(s.ctx, s.tenant, req.ExecutionID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(wal.EventAccessGranted, events[0].Type)
	})
}

func (s *GovernanceServiceSuite) TestAuthorizeMaterialization() {
	s.Run("cache policy yields deterministic type with TTL and activates", func() {
		access, err := s.svc.RequestDataAccess(s.ctx, s.accessReq("sharepoint", "doc-7"))
		s.Require().NoError(err)

		ws := intent.Workspace{
			TenantID:   s.tenant,
			UserID:     id.NewUserID(),
			SessionID:  id.NewSessionID(),
			SolutionID: id.NewSolutionID(),
		}
		decision, err := s.svc.AuthorizeMaterialization(s.ctx, MaterializationRequest{
			ContractID:   access.ContractID,
			TenantID:     s.tenant,
			ExecutionID:  id.NewExecutionID(),
			ArtifactType: "embedding",
			Workspace:    ws,
		})
		s.Require().NoError(err)
		s.True(decision.Allowed)
		s.Equal(governance.MaterializationDeterministic, decision.Type)
		s.Equal("redis", decision.BackingStore)
		s.Equal(time.Hour, decision.TTL)
		s.Contains(decision.Scope, "tenant/"+s.tenant.String())

		contract, err := s.store.GetByID(s.ctx, s.tenant, access.ContractID)
		s.Require().NoError(err)
		s.Equal(governance.StatusActive, contract.Status)
		s.NotNil(contract.MaterializationExpiresAt)
	})

	s.Run("discard policy yields reference type, not allowed", func() {
		access, err := s.svc.RequestDataAccess(s.ctx, s.accessReq("sharepoint", "doc-8"))
		s.Require().NoError(err)

		decision, err := s.svc.AuthorizeMaterialization(s.ctx, MaterializationRequest{
			ContractID:   access.ContractID,
			TenantID:     s.tenant,
			ArtifactType: "preview",
		})
		s.Require().NoError(err)
		s.False(decision.Allowed)
		s.Equal(governance.MaterializationReference, decision.Type)
		s.Zero(decision.TTL)
	})

	s.Run("unknown contract fails with contract not found", func() {
		_, err := s.svc.AuthorizeMaterialization(s.ctx, MaterializationRequest{
			ContractID:   id.NewContractID(),
			TenantID:     s.tenant,
			ArtifactType: "embedding",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeContractNotFound))
	})

	s.Run("already-active contract returns recorded decision", func() {
		access, err := s.svc.RequestDataAccess(s.ctx, s.accessReq("sharepoint", "doc-9"))
		s.Require().NoError(err)

		first, err := s.svc.AuthorizeMaterialization(s.ctx, MaterializationRequest{
			ContractID: access.ContractID, TenantID: s.tenant, ArtifactType: "embedding",
		})
		s.Require().NoError(err)

		// A different requested type does not re-run policy on an
		// active contract.
		second, err := s.svc.AuthorizeMaterialization(s.ctx, MaterializationRequest{
			ContractID: access.ContractID, TenantID: s.tenant, ArtifactType: "solution",
		})
		s.Require().NoError(err)
		s.Equal(first.Type, second.Type)
		s.Equal(first.BackingStore, second.BackingStore)
	})
}

func (s *GovernanceServiceSuite) TestExpiredContractIsRenegotiated() {
	access, err := s.svc.RequestDataAccess(s.ctx, s.accessReq("sharepoint", "doc-ttl"))
	s.Require().NoError(err)
	_, err = s.svc.AuthorizeMaterialization(s.ctx, MaterializationRequest{
		ContractID: access.ContractID, TenantID: s.tenant, ArtifactType: "embedding",
	})
	s.Require().NoError(err)

	// Move the clock past the one-hour TTL; the contract is treated as
	// absent and a fresh negotiation produces a new contract id.
	future := requestcontext.WithTime(s.ctx, time.Now().Add(2*time.Hour))
	renewed, err := s.svc.RequestDataAccess(future, s.accessReq("sharepoint", "doc-ttl"))
	s.Require().NoError(err)
	s.False(renewed.Reused)
	s.NotEqual(access.ContractID, renewed.ContractID)
}
