package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"loom/internal/governance"
	"loom/internal/intent"
	"loom/internal/wal"
	id "loom/pkg/domain"
	dErrors "loom/pkg/domain-errors"
	"loom/pkg/platform/sentinel"
	"loom/pkg/requestcontext"
)

// Service implements the two-phase data-access protocol. Phase 1 answers
// "may we read this source at all"; Phase 2 answers "may we keep it, and in
// what form". Separating the two lets one access grant support ephemeral
// preview, cached re-use, and permanent storage without re-running access
// checks, and makes every persistence decision independently auditable.
type Service struct {
	store           governance.Store
	access          governance.AccessPolicy
	materialization governance.MaterializationPolicy
	wal             *wal.Log
	log             *slog.Logger
}

// NewService wires the negotiation service. The contract store and WAL are
// required collaborators; their absence is a configuration error surfaced
// at composition time, never masked by a fallback.
func NewService(store governance.Store, access governance.AccessPolicy, materialization governance.MaterializationPolicy, walLog *wal.Log, log *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "boundary contract store is required")
	}
	if walLog == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "wal log is required")
	}
	if access == nil {
		access = governance.OpenAccessPolicy{}
	}
	if materialization == nil {
		materialization = governance.DefaultMaterializationPolicy(24 * time.Hour)
	}
	return &Service{
		store:           store,
		access:          access,
		materialization: materialization,
		wal:             walLog,
		log:             log,
	}, nil
}

// AccessRequest is the Phase-1 input.
type AccessRequest struct {
	TenantID         id.TenantID
	UserID           id.UserID
	IntentID         id.IntentID
	ExecutionID      id.ExecutionID
	SourceType       string
	SourceIdentifier string
	SourceMetadata   map[string]any
}

// AccessDecision is the Phase-1 outcome. A denial is a decision, not an
// error: it is persisted and WAL-logged like any other auditable event.
type AccessDecision struct {
	Granted    bool
	ContractID id.ContractID
	Reason     string
	Conditions map[string]any
	Reused     bool
}

// RequestDataAccess negotiates Phase 1. Idempotent for grants: an existing
// granted, unexpired contract for the same (tenant, source type, source
// identifier) is reused verbatim and no second row is created. A recorded
// denial is never reused verbatim: the policy is re-evaluated on every call
// so a later policy change can lift it, and each denied negotiation appends
// its own WAL event under the requesting execution.
func (s *Service) RequestDataAccess(ctx context.Context, req AccessRequest) (*AccessDecision, error) {
	if req.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if req.SourceType == "" || req.SourceIdentifier == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "source type and identifier are required")
	}

	now := requestcontext.Now(ctx)

	existing, err := s.store.FindBySource(ctx, req.TenantID, req.SourceType, req.SourceIdentifier)
	switch {
	case err == nil && existing.AccessGranted && !existing.Expired(now):
		return &AccessDecision{
			Granted:    true,
			ContractID: existing.ContractID,
			Reason:     existing.AccessReason,
			Conditions: existing.AccessConditions,
			Reused:     true,
		}, nil
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "contract lookup failed")
	}
	// Not found, expired, or a recorded denial: re-run the policy.

	verdict := s.access.Evaluate(ctx, req.TenantID.String(), req.SourceType, req.SourceIdentifier)

	if err == nil && !existing.AccessGranted && !verdict.Granted {
		// Still denied. Keep the recorded contract, but the denial of
		// this execution must be reconstructable from the WAL.
		if walErr := s.wal.Append(ctx, req.TenantID, req.ExecutionID, wal.EventAccessDenied, map[string]any{
			"contract_id":       existing.ContractID.String(),
			"source_type":       req.SourceType,
			"source_identifier": req.SourceIdentifier,
			"reason":            verdict.Reason,
		}); walErr != nil {
			return nil, walErr
		}
		return &AccessDecision{
			Granted:    false,
			ContractID: existing.ContractID,
			Reason:     verdict.Reason,
			Conditions: verdict.Conditions,
			Reused:     true,
		}, nil
	}
	// Negotiate fresh. Save replaces any expired or superseded row under
	// the source key.
	contract := &governance.BoundaryContract{
		ContractID:               id.NewContractID(),
		TenantID:                 req.TenantID,
		UserID:                   req.UserID,
		IntentID:                 req.IntentID,
		ExternalSourceType:       req.SourceType,
		ExternalSourceIdentifier: req.SourceIdentifier,
		ExternalSourceMetadata:   req.SourceMetadata,
		AccessGranted:            verdict.Granted,
		AccessReason:             verdict.Reason,
		AccessConditions:         verdict.Conditions,
		Status:                   governance.StatusPending,
		CreatedAt:                now,
	}
	if err := s.store.Save(ctx, contract); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "persist boundary contract")
	}

	eventType := wal.EventAccessGranted
	if !verdict.Granted {
		eventType = wal.EventAccessDenied
	}
	if err := s.wal.Append(ctx, req.TenantID, req.ExecutionID, eventType, map[string]any{
		"contract_id":       contract.ContractID.String(),
		"source_type":       req.SourceType,
		"source_identifier": req.SourceIdentifier,
		"reason":            verdict.Reason,
	}); err != nil {
		return nil, err
	}

	return &AccessDecision{
		Granted:    verdict.Granted,
		ContractID: contract.ContractID,
		Reason:     verdict.Reason,
		Conditions: verdict.Conditions,
	}, nil
}

// MaterializationRequest is the Phase-2 input. ArtifactType keys the policy.
type MaterializationRequest struct {
	ContractID   id.ContractID
	TenantID     id.TenantID
	ExecutionID  id.ExecutionID
	ArtifactType string
	Workspace    intent.Workspace
}

// MaterializationDecision is the Phase-2 outcome.
type MaterializationDecision struct {
	Allowed      bool
	Type         governance.MaterializationType
	Scope        string
	BackingStore string
	TTL          time.Duration
	PolicyBasis  string
}

// AuthorizeMaterialization finalizes Phase 2 and is the only writer of the
// contract's materialization fields. Requires an existing contract with
// access granted; fails with contract-not-found otherwise. Idempotent: an
// already-active contract returns its recorded decision.
func (s *Service) AuthorizeMaterialization(ctx context.Context, req MaterializationRequest) (*MaterializationDecision, error) {
	if req.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}

	contract, err := s.store.GetByID(ctx, req.TenantID, req.ContractID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeContractNotFound, "no boundary contract for id")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "contract lookup failed")
	}
	if !contract.AccessGranted {
		return nil, dErrors.New(dErrors.CodeContractNotFound, "contract exists but access was not granted")
	}

	now := requestcontext.Now(ctx)
	if contract.Status == governance.StatusActive && !contract.Expired(now) {
		return &MaterializationDecision{
			Allowed:      contract.MaterializationType != governance.MaterializationReference,
			Type:         contract.MaterializationType,
			Scope:        contract.MaterializationScope,
			BackingStore: contract.MaterializationBackingStore,
			TTL:          contract.MaterializationTTL,
			PolicyBasis:  "recorded decision reused",
		}, nil
	}

	rule := s.materialization.Decide(req.ArtifactType)

	contract.MaterializationType = rule.Type()
	contract.MaterializationScope = workspaceScope(req.Workspace)
	contract.MaterializationBackingStore = rule.BackingStore
	contract.MaterializationTTL = rule.TTL
	if rule.TTL > 0 {
		expires := now.Add(rule.TTL)
		contract.MaterializationExpiresAt = &expires
	}
	contract.ActivatedAt = &now

	if err := s.store.Activate(ctx, req.TenantID, contract); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "activate boundary contract")
	}

	if err := s.wal.Append(ctx, req.TenantID, req.ExecutionID, wal.EventMaterializationAuthorized, map[string]any{
		"contract_id":           contract.ContractID.String(),
		"materialization_type":  string(contract.MaterializationType),
		"materialization_scope": contract.MaterializationScope,
		"backing_store":         contract.MaterializationBackingStore,
		"ttl_seconds":           int64(rule.TTL / time.Second),
		"policy_basis":          rule.Basis,
	}); err != nil {
		return nil, err
	}

	return &MaterializationDecision{
		Allowed:      rule.Outcome != governance.OutcomeDiscard,
		Type:         contract.MaterializationType,
		Scope:        contract.MaterializationScope,
		BackingStore: contract.MaterializationBackingStore,
		TTL:          contract.MaterializationTTL,
		PolicyBasis:  rule.Basis,
	}, nil
}

// GetContract exposes a tenant's contract to handlers and the exec context.
func (s *Service) GetContract(ctx context.Context, tenantID id.TenantID, contractID id.ContractID) (*governance.BoundaryContract, error) {
	contract, err := s.store.GetByID(ctx, tenantID, contractID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeContractNotFound, "no boundary contract for id")
	}
	return contract, err
}

// workspaceScope computes the default scope: materializations are
// workspace-scoped, not globally shared.
func workspaceScope(ws intent.Workspace) string {
	return fmt.Sprintf("tenant/%s/user/%s/session/%s/solution/%s",
		ws.TenantID, ws.UserID, ws.SessionID, ws.SolutionID)
}
