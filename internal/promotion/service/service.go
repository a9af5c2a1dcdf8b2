package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"loom/internal/artifact"
	"loom/internal/governance"
	"loom/internal/promotion"
	"loom/internal/wal"
	id "loom/pkg/domain"
	dErrors "loom/pkg/domain-errors"
	"loom/pkg/platform/sentinel"
	pstrings "loom/pkg/platform/strings"
)

// registryNamespace seeds deterministic registry ids so the same
// (registry type, name, version) always maps to the same row id.
var registryNamespace = uuid.MustParse("8f3c1f0a-55b1-4f7e-9c94-1f6b8d2e7a40")

// ArtifactSource is the slice of the artifact registry the promotion
// pipeline reads from.
type ArtifactSource interface {
	Get(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID) (*artifact.Record, error)
}

// ContractSource resolves boundary contracts for provenance cross-checks.
type ContractSource interface {
	GetContract(ctx context.Context, tenantID id.TenantID, contractID id.ContractID) (*governance.BoundaryContract, error)
}

// Service runs the promotion pipeline: working material to records of fact,
// accepted outcomes to the platform registries.
type Service struct {
	store     promotion.Store
	artifacts ArtifactSource
	contracts ContractSource
	wal       *wal.Log
	log       *slog.Logger
}

func NewService(store promotion.Store, artifacts ArtifactSource, contracts ContractSource, walLog *wal.Log, log *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "promotion store is required")
	}
	if artifacts == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "artifact source is required")
	}
	if walLog == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "wal log is required")
	}
	return &Service{store: store, artifacts: artifacts, contracts: contracts, wal: walLog, log: log}, nil
}

// RecordPromotionRequest asks for one semantic fact to be made durable.
type RecordPromotionRequest struct {
	TenantID     id.TenantID
	RecordType   string
	SourceFileID id.ArtifactID
	ContractID   id.ContractID
	ExecutionID  id.ExecutionID

	EmbeddingID      string
	InterpretationID string
	Content          map[string]any
	ModelName        string
	ConfidenceScore  float64
	PromotedBy       string
	Reason           string
}

// PromoteToRecordOfFact extracts a durable fact from TTL-bounded working
// material. Policy failures return a nil record id, never an error: a
// promotion the policy declines is an answer, not a fault.
func (s *Service) PromoteToRecordOfFact(ctx context.Context, req RecordPromotionRequest) (*id.RecordID, error) {
	if req.TenantID.IsNil() || req.SourceFileID.IsNil() {
		s.log.Warn("record promotion rejected", "reason", "missing tenant or source file")
		return nil, nil
	}
	recordType, err := id.ParseRecordType(req.RecordType)
	if err != nil {
		s.log.Warn("record promotion rejected", "reason", "invalid record type", "record_type", req.RecordType)
		return nil, nil
	}
	if req.Content == nil {
		s.log.Warn("record promotion rejected", "reason", "empty content", "source_file_id", req.SourceFileID.String())
		return nil, nil
	}

	// Provenance cross-check. A deterministic_embedding promoted from a
	// source whose contract says full_artifact is suspicious but legal;
	// it gets a warning, not a rejection.
	if s.contracts != nil && !req.ContractID.IsNil() {
		contract, err := s.contracts.GetContract(ctx, req.TenantID, req.ContractID)
		if err != nil {
			s.log.Warn("record promotion contract lookup failed", "contract_id", req.ContractID.String(), "error", err)
		} else if mismatch(recordType, contract.MaterializationType) {
			s.log.Warn("record type does not match contract materialization",
				"record_type", recordType.String(),
				"materialization_type", string(contract.MaterializationType),
				"contract_id", req.ContractID.String())
		}
	}

	record := &promotion.RecordOfFact{
		RecordID:                 id.NewRecordID(),
		TenantID:                 req.TenantID,
		RecordType:               recordType,
		SourceFileID:             req.SourceFileID,
		SourceBoundaryContractID: req.ContractID,
		EmbeddingID:              req.EmbeddingID,
		InterpretationID:         req.InterpretationID,
		Content:                  req.Content,
		ModelName:                req.ModelName,
		ConfidenceScore:          req.ConfidenceScore,
		PromotedAt:               time.Now(),
		PromotedBy:               req.PromotedBy,
		PromotionReason:          req.Reason,
	}
	if err := s.store.CreateRecord(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "persist record of fact")
	}

	if err := s.wal.Append(ctx, req.TenantID, req.ExecutionID, wal.EventRecordPromoted, map[string]any{
		"record_id":      record.RecordID.String(),
		"record_type":    recordType.String(),
		"source_file_id": req.SourceFileID.String(),
	}); err != nil {
		return nil, err
	}
	return &record.RecordID, nil
}

// mismatch flags record types whose natural source class disagrees with the
// contract's materialization decision.
func mismatch(recordType id.RecordType, matType governance.MaterializationType) bool {
	switch recordType {
	case id.RecordTypeDeterministicEmbedding:
		return matType != governance.MaterializationDeterministic
	default:
		return false
	}
}

// DNAPromotionRequest asks for an accepted outcome to become platform DNA.
type DNAPromotionRequest struct {
	TenantID     id.TenantID
	ArtifactID   id.ArtifactID
	RegistryType string
	Name         string
	ExecutionID  id.ExecutionID
	PromotedBy   string
	Tags         []string
}

// PromoteToPlatformDNA generalizes an accepted outcome into a versioned,
// tenant-neutral registry entry. All-or-nothing: any gate failure leaves
// every registry untouched and returns a nil registry id.
func (s *Service) PromoteToPlatformDNA(ctx context.Context, req DNAPromotionRequest) (*id.RegistryID, error) {
	registryType, err := id.ParseRegistryType(req.RegistryType)
	if err != nil {
		s.log.Warn("dna promotion rejected", "reason", "invalid registry type", "registry_type", req.RegistryType)
		return nil, nil
	}
	if req.Name == "" {
		s.log.Warn("dna promotion rejected", "reason", "missing registry name", "artifact_id", req.ArtifactID.String())
		return nil, nil
	}

	record, err := s.artifacts.Get(ctx, req.TenantID, req.ArtifactID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.log.Warn("dna promotion rejected", "reason", "artifact not found", "artifact_id", req.ArtifactID.String())
			return nil, nil
		}
		return nil, err
	}

	if record.LifecycleState != artifact.StateAccepted {
		s.log.Warn("dna promotion rejected", "reason", "artifact not accepted",
			"artifact_id", req.ArtifactID.String(), "state", string(record.LifecycleState))
		return nil, nil
	}
	if !registryType.Accepts(record.Type) {
		s.log.Warn("dna promotion rejected", "reason", "artifact type not admitted by registry",
			"artifact_type", record.Type, "registry_type", registryType.String())
		return nil, nil
	}

	version := 1
	var parentID id.RegistryID
	current, err := s.store.GetCurrentEntry(ctx, registryType, req.Name)
	switch {
	case err == nil:
		version = current.Version + 1
		parentID = current.RegistryID
	case errors.Is(err, sentinel.ErrNotFound):
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "registry lookup")
	}

	now := time.Now()
	entry := &promotion.RegistryEntry{
		RegistryID:       deterministicRegistryID(registryType, req.Name, version),
		RegistryType:     registryType,
		Name:             req.Name,
		Version:          version,
		Definition:       promotion.Generalize(record.Payload),
		SourceArtifactID: record.ArtifactID,
		SourceTenantID:   req.TenantID,
		ParentRegistryID: parentID,
		IsCurrentVersion: true,
		PromotedAt:       now,
		PromotedBy:       req.PromotedBy,
		Tags:             pstrings.DedupeAndTrimLower(req.Tags),
		CreatedAt:        now,
	}
	if err := s.store.CreateRegistryEntry(ctx, entry); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "registry version already promoted")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "persist registry entry")
	}

	if err := s.wal.Append(ctx, req.TenantID, req.ExecutionID, wal.EventRegistryPromoted, map[string]any{
		"registry_id":   entry.RegistryID.String(),
		"registry_type": registryType.String(),
		"name":          req.Name,
		"version":       version,
	}); err != nil {
		return nil, err
	}
	return &entry.RegistryID, nil
}

// MarkSourceExpired stamps every record of fact promoted from the deleted
// source file. Satisfies the artifact service's expiry hook.
func (s *Service) MarkSourceExpired(ctx context.Context, tenantID id.TenantID, sourceFileID id.ArtifactID, at time.Time) error {
	if err := s.store.MarkSourceExpired(ctx, tenantID, sourceFileID, at); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "mark source expired")
	}
	return nil
}

// GetRecord returns a promoted record of fact.
func (s *Service) GetRecord(ctx context.Context, tenantID id.TenantID, recordID id.RecordID) (*promotion.RecordOfFact, error) {
	record, err := s.store.GetRecord(ctx, tenantID, recordID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "record of fact not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "record lookup")
	}
	return record, nil
}

func deterministicRegistryID(registryType id.RegistryType, name string, version int) id.RegistryID {
	seed := fmt.Sprintf("%s/%s/v%d", registryType, name, version)
	return id.RegistryID(uuid.NewSHA1(registryNamespace, []byte(seed)))
}
