package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"loom/internal/artifact"
	"loom/internal/governance"
	"loom/internal/wal"
	id "loom/pkg/domain"
	dErrors "loom/pkg/domain-errors"
	"loom/pkg/platform/sentinel"
)

// ExpiryMarker is notified when working material is deleted so promoted
// records of fact can mark their source as expired. Wired at composition
// time to the promotion service.
type ExpiryMarker interface {
	MarkSourceExpired(ctx context.Context, tenantID id.TenantID, sourceFileID id.ArtifactID, at time.Time) error
}

// Service owns artifact identity, lifecycle, lineage, and physical
// materializations. It is the only mutator of artifact state; every
// transition is WAL-logged.
type Service struct {
	store        artifact.Store
	cache        artifact.CacheStore
	wal          *wal.Log
	log          *slog.Logger
	expiryMarker ExpiryMarker
}

// NewService wires the artifact registry. Store and WAL are required
// collaborators; the cache defaults to in-memory for dev mode.
func NewService(store artifact.Store, cache artifact.CacheStore, walLog *wal.Log, log *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "artifact store is required")
	}
	if walLog == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "wal log is required")
	}
	if cache == nil {
		cache = artifact.NewInMemoryCache()
	}
	return &Service{store: store, cache: cache, wal: walLog, log: log}, nil
}

// SetExpiryMarker attaches the promotion-side hook. Optional: without it,
// deletions simply do not back-propagate to records of fact.
func (s *Service) SetExpiryMarker(marker ExpiryMarker) {
	s.expiryMarker = marker
}

// Register writes a new artifact under the materialization decision carried
// by its boundary contract. A nil contract means the content never crossed a
// data boundary and is kept durably.
func (s *Service) Register(ctx context.Context, tenantID id.TenantID, draft artifact.Draft, producedBy artifact.ProducedBy, contract *governance.BoundaryContract) (*artifact.Record, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if draft.Type == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "artifact type is required")
	}

	// Parents must already exist for this tenant; a child can only point
	// backwards, which keeps the lineage a DAG by construction.
	for _, parent := range draft.Parents {
		if _, err := s.store.Get(ctx, tenantID, parent); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeInvalidInput, "parent artifact does not exist: "+parent.String())
			}
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "parent lookup failed")
		}
	}

	now := time.Now()
	record := &artifact.Record{
		ArtifactID:      id.NewArtifactID(),
		TenantID:        tenantID,
		Type:            draft.Type,
		LifecycleState:  artifact.InitialState(draft.Type),
		Descriptor:      draft.Descriptor,
		ParentArtifacts: draft.Parents,
		ProducedBy:      producedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if contract != nil {
		record.SourceContractID = contract.ContractID
	}

	if err := s.materialize(ctx, record, draft, contract); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "register artifact")
	}

	if err := s.wal.Append(ctx, tenantID, producedBy.ExecutionID, wal.EventArtifactRegistered, map[string]any{
		"artifact_id":     record.ArtifactID.String(),
		"artifact_type":   record.Type,
		"lifecycle_state": string(record.LifecycleState),
	}); err != nil {
		return nil, err
	}
	return record, nil
}

// materialize applies the contract's decision: durable copy, TTL-bounded
// cache copy, or deliberate absence.
func (s *Service) materialize(ctx context.Context, record *artifact.Record, draft artifact.Draft, contract *governance.BoundaryContract) error {
	matType := governance.MaterializationFullArtifact
	scope := ""
	var ttl time.Duration
	if contract != nil {
		matType = contract.MaterializationType
		scope = contract.MaterializationScope
		ttl = contract.MaterializationTTL
	}

	now := time.Now()
	switch matType {
	case governance.MaterializationDeterministic:
		content, err := json.Marshal(draft.Payload)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "marshal cache payload")
		}
		key := cacheKey(scope, record.ArtifactID)
		if err := s.cache.Set(ctx, key, content, int64(ttl/time.Second)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "cache materialization")
		}
		record.Materializations = []artifact.Materialization{{
			MaterializationID: id.NewArtifactID(),
			StorageType:       "redis",
			URI:               key,
			Format:            draft.Format,
			CreatedAt:         now,
		}}
	case governance.MaterializationReference:
		// No physical copy. The registry entry records that this data
		// existed and where it came from; content is not retained.
		record.Payload = nil
	default:
		record.Payload = draft.Payload
		record.Materializations = []artifact.Materialization{{
			MaterializationID: id.NewArtifactID(),
			StorageType:       "postgres",
			URI:               "artifacts/" + record.ArtifactID.String(),
			Format:            draft.Format,
			CreatedAt:         now,
		}}
	}
	return nil
}

// Archive moves working material out of the active set. The reason is
// mandatory and lands in the WAL with the transition.
func (s *Service) Archive(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID, reason string) error {
	return s.transition(ctx, tenantID, artifactID, artifact.StateArchived, wal.EventArtifactArchived, reason, true)
}

// Delete is terminal: the lifecycle state moves to DELETED and every
// physical materialization is removed. Irreversible.
func (s *Service) Delete(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID, reason string) error {
	if reason == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "a reason is required to delete an artifact")
	}

	record, err := s.Get(ctx, tenantID, artifactID)
	if err != nil {
		return err
	}

	if err := s.transition(ctx, tenantID, artifactID, artifact.StateDeleted, wal.EventArtifactDeleted, reason, true); err != nil {
		return err
	}

	for _, m := range record.Materializations {
		if m.StorageType == "redis" {
			if err := s.cache.Delete(ctx, m.URI); err != nil {
				s.log.Warn("cache cleanup failed", "artifact_id", artifactID.String(), "uri", m.URI, "error", err)
			}
		}
	}
	if err := s.store.DeleteMaterializations(ctx, tenantID, artifactID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "delete materializations")
	}

	if s.expiryMarker != nil {
		if err := s.expiryMarker.MarkSourceExpired(ctx, tenantID, artifactID, time.Now()); err != nil {
			s.log.Warn("mark source expired failed", "artifact_id", artifactID.String(), "error", err)
		}
	}
	return nil
}

// Accept finalizes a purpose-bound outcome, making it eligible for
// promotion to the platform registries.
func (s *Service) Accept(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID) error {
	return s.transition(ctx, tenantID, artifactID, artifact.StateAccepted, wal.EventArtifactAccepted, "", false)
}

func (s *Service) transition(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID, to artifact.LifecycleState, eventType wal.EventType, reason string, reasonRequired bool) error {
	if reasonRequired && reason == "" {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("a reason is required to move an artifact to %s", to))
	}

	err := s.store.Transition(ctx, tenantID, artifactID, to)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "artifact not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf("artifact cannot move to %s from its current state", to))
	case err != nil:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "artifact transition")
	}

	return s.wal.Append(ctx, tenantID, id.ExecutionID{}, eventType, map[string]any{
		"artifact_id": artifactID.String(),
		"state":       string(to),
		"reason":      reason,
	})
}

// Get returns the tenant's artifact or a coded not-found.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID) (*artifact.Record, error) {
	record, err := s.store.Get(ctx, tenantID, artifactID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "artifact not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "artifact lookup")
	}
	return record, nil
}

// ListByTenant returns all of a tenant's artifacts.
func (s *Service) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*artifact.Record, error) {
	return s.store.ListByTenant(ctx, tenantID)
}

func cacheKey(scope string, artifactID id.ArtifactID) string {
	if scope == "" {
		return "materialization/" + artifactID.String()
	}
	return "materialization/" + scope + "/" + artifactID.String()
}
