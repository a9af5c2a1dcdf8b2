package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"loom/internal/artifact"
	"loom/internal/execution"
	"loom/internal/intent"
	promotionservice "loom/internal/promotion/service"
	"loom/internal/wal"
	id "loom/pkg/domain"
	dErrors "loom/pkg/domain-errors"
)

// Executor runs intents; satisfied by the execution manager.
type Executor interface {
	Execute(ctx context.Context, in *intent.Intent) execution.Outcome
}

// ArtifactAPI is the slice of the artifact service the transport uses.
type ArtifactAPI interface {
	Get(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID) (*artifact.Record, error)
	Archive(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID, reason string) error
	Delete(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID, reason string) error
	Accept(ctx context.Context, tenantID id.TenantID, artifactID id.ArtifactID) error
}

// PromotionAPI is the slice of the promotion service the transport uses.
type PromotionAPI interface {
	PromoteToRecordOfFact(ctx context.Context, req promotionservice.RecordPromotionRequest) (*id.RecordID, error)
	PromoteToPlatformDNA(ctx context.Context, req promotionservice.DNAPromotionRequest) (*id.RegistryID, error)
}

// Handlers is the thin HTTP layer: parse, delegate, translate. No domain
// logic lives here.
type Handlers struct {
	executor   Executor
	artifacts  ArtifactAPI
	promotions PromotionAPI
	wal        *wal.Log
	log        *slog.Logger
}

func NewHandlers(executor Executor, artifacts ArtifactAPI, promotions PromotionAPI, walLog *wal.Log, log *slog.Logger) *Handlers {
	return &Handlers{executor: executor, artifacts: artifacts, promotions: promotions, wal: walLog, log: log}
}

// tenantFrom reads the tenant from the X-Tenant-ID header. Tenancy is
// always explicit on the wire, never inferred.
func tenantFrom(r *http.Request) (id.TenantID, error) {
	return id.ParseTenantID(r.Header.Get("X-Tenant-ID"))
}

type submitIntentRequest struct {
	IntentType     string         `json:"intent_type"`
	TenantID       string         `json:"tenant_id"`
	UserID         string         `json:"user_id"`
	SessionID      string         `json:"session_id"`
	SolutionID     string         `json:"solution_id"`
	Parameters     map[string]any `json:"parameters"`
	Metadata       map[string]any `json:"metadata"`
	IdempotencyKey string         `json:"idempotency_key"`
}

func (h *Handlers) SubmitIntent(w http.ResponseWriter, r *http.Request) {
	var req submitIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
		return
	}

	in, err := parseIntent(req)
	if err != nil {
		respondError(w, err)
		return
	}

	outcome := h.executor.Execute(r.Context(), in)
	switch outcome.Status {
	case execution.StatusOK:
		artifactIDs := make([]string, 0, len(outcome.Artifacts))
		for _, a := range outcome.Artifacts {
			artifactIDs = append(artifactIDs, a.ArtifactID.String())
		}
		eventIDs := make([]string, 0, len(outcome.Events))
		for _, e := range outcome.Events {
			eventIDs = append(eventIDs, e.ID.String())
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"status":       string(outcome.Status),
			"execution_id": outcome.ExecutionID.String(),
			"artifact_ids": artifactIDs,
			"event_ids":    eventIDs,
		})
	case execution.StatusDenied:
		respondJSON(w, http.StatusForbidden, map[string]any{
			"status":       string(outcome.Status),
			"execution_id": outcome.ExecutionID.String(),
			"contract_id":  outcome.ContractID.String(),
			"reason":       outcome.Reason,
		})
	case execution.StatusUnavailable:
		respondError(w, dErrors.Wrap(outcome.Err, dErrors.CodeUnavailable, "execution unavailable"))
	default:
		respondError(w, outcome.Err)
	}
}

func parseIntent(req submitIntentRequest) (*intent.Intent, error) {
	tenantID, err := id.ParseTenantID(req.TenantID)
	if err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		return nil, err
	}
	sessionID, err := id.ParseSessionID(req.SessionID)
	if err != nil {
		return nil, err
	}
	solutionID, err := id.ParseSolutionID(req.SolutionID)
	if err != nil {
		return nil, err
	}

	in := intent.New(req.IntentType, tenantID, userID, sessionID, solutionID)
	if req.Parameters != nil {
		in.Parameters = req.Parameters
	}
	if req.Metadata != nil {
		in.Metadata = req.Metadata
	}
	in.IdempotencyKey = req.IdempotencyKey
	return in, nil
}

func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		respondError(w, err)
		return
	}
	artifactID, err := id.ParseArtifactID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	record, err := h.artifacts.Get(r.Context(), tenantID, artifactID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, artifactView(record))
}

func artifactView(record *artifact.Record) map[string]any {
	materializations := make([]map[string]any, 0, len(record.Materializations))
	for _, m := range record.Materializations {
		materializations = append(materializations, map[string]any{
			"storage_type": m.StorageType,
			"uri":          m.URI,
			"format":       m.Format,
		})
	}
	parents := make([]string, 0, len(record.ParentArtifacts))
	for _, p := range record.ParentArtifacts {
		parents = append(parents, p.String())
	}
	return map[string]any{
		"artifact_id":      record.ArtifactID.String(),
		"artifact_type":    record.Type,
		"lifecycle_state":  string(record.LifecycleState),
		"descriptor":       record.Descriptor,
		"materializations": materializations,
		"parent_artifacts": parents,
		"created_at":       record.CreatedAt,
	}
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handlers) ArchiveArtifact(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.artifacts.Archive)
}

func (h *Handlers) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.artifacts.Delete)
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, id.TenantID, id.ArtifactID, string) error) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		respondError(w, err)
		return
	}
	artifactID, err := id.ParseArtifactID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
		return
	}
	if err := apply(r.Context(), tenantID, artifactID, req.Reason); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"artifact_id": artifactID.String()})
}

func (h *Handlers) AcceptArtifact(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		respondError(w, err)
		return
	}
	artifactID, err := id.ParseArtifactID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.artifacts.Accept(r.Context(), tenantID, artifactID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"artifact_id": artifactID.String()})
}

type recordPromotionRequest struct {
	RecordType       string         `json:"record_type"`
	SourceFileID     string         `json:"source_file_id"`
	ContractID       string         `json:"contract_id"`
	EmbeddingID      string         `json:"embedding_id"`
	InterpretationID string         `json:"interpretation_id"`
	Content          map[string]any `json:"content"`
	ModelName        string         `json:"model_name"`
	ConfidenceScore  float64        `json:"confidence_score"`
	PromotedBy       string         `json:"promoted_by"`
	Reason           string         `json:"reason"`
}

func (h *Handlers) PromoteRecordOfFact(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var req recordPromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
		return
	}
	sourceFileID, err := id.ParseArtifactID(req.SourceFileID)
	if err != nil {
		respondError(w, err)
		return
	}
	var contractID id.ContractID
	if req.ContractID != "" {
		if contractID, err = id.ParseContractID(req.ContractID); err != nil {
			respondError(w, err)
			return
		}
	}

	recordID, err := h.promotions.PromoteToRecordOfFact(r.Context(), promotionservice.RecordPromotionRequest{
		TenantID:         tenantID,
		RecordType:       req.RecordType,
		SourceFileID:     sourceFileID,
		ContractID:       contractID,
		EmbeddingID:      req.EmbeddingID,
		InterpretationID: req.InterpretationID,
		Content:          req.Content,
		ModelName:        req.ModelName,
		ConfidenceScore:  req.ConfidenceScore,
		PromotedBy:       req.PromotedBy,
		Reason:           req.Reason,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if recordID == nil {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"record_id": nil, "promoted": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"record_id": recordID.String(), "promoted": true})
}

type dnaPromotionRequest struct {
	ArtifactID   string   `json:"artifact_id"`
	RegistryType string   `json:"registry_type"`
	Name         string   `json:"name"`
	PromotedBy   string   `json:"promoted_by"`
	Tags         []string `json:"tags"`
}

func (h *Handlers) PromotePlatformDNA(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var req dnaPromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
		return
	}
	artifactID, err := id.ParseArtifactID(req.ArtifactID)
	if err != nil {
		respondError(w, err)
		return
	}

	registryID, err := h.promotions.PromoteToPlatformDNA(r.Context(), promotionservice.DNAPromotionRequest{
		TenantID:     tenantID,
		ArtifactID:   artifactID,
		RegistryType: req.RegistryType,
		Name:         req.Name,
		PromotedBy:   req.PromotedBy,
		Tags:         req.Tags,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if registryID == nil {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"registry_id": nil, "promoted": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"registry_id": registryID.String(), "promoted": true})
}

func (h *Handlers) ListExecutionEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		respondError(w, err)
		return
	}
	executionID, err := id.ParseExecutionID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	events, err := h.wal.ListByExecution(r.Context(), tenantID, executionID)
	if err != nil {
		respondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(events))
	for _, e := range events {
		views = append(views, map[string]any{
			"event_id":   e.EventID.String(),
			"event_type": string(e.Type),
			"data":       e.Data,
			"created_at": e.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": views})
}
