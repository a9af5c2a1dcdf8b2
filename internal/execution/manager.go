package execution

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"loom/internal/artifact"
	"loom/internal/governance"
	govservice "loom/internal/governance/service"
	"loom/internal/intent"
	"loom/internal/outbox"
	"loom/internal/wal"
	id "loom/pkg/domain"
	dErrors "loom/pkg/domain-errors"
	"loom/pkg/requestcontext"
)

// Negotiator runs the two-phase boundary protocol for handlers that read
// external data.
type Negotiator interface {
	RequestDataAccess(ctx context.Context, req govservice.AccessRequest) (*govservice.AccessDecision, error)
	AuthorizeMaterialization(ctx context.Context, req govservice.MaterializationRequest) (*govservice.MaterializationDecision, error)
	GetContract(ctx context.Context, tenantID id.TenantID, contractID id.ContractID) (*governance.BoundaryContract, error)
}

// Registrar is the slice of the artifact service the commit unit uses.
type Registrar interface {
	Register(ctx context.Context, tenantID id.TenantID, draft artifact.Draft, producedBy artifact.ProducedBy, contract *governance.BoundaryContract) (*artifact.Record, error)
}

// UnitRunner executes the commit unit atomically: either every write in fn
// lands or none do. The postgres runner opens a transaction and threads it
// through the context; the memory runner holds a coarse lock.
type UnitRunner interface {
	RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error
}

// ExecutionMetrics is the slice of metrics the manager records.
type ExecutionMetrics interface {
	Observe(intentType, outcome string, elapsed time.Duration)
}

// Manager drives one intent from validation to committed outcome. It owns
// the ordering: validate, negotiate, log start, dispatch, commit.
type Manager struct {
	registry   *Registry
	negotiator Negotiator
	artifacts  Registrar
	wal        *wal.Log
	outbox     outbox.Store
	unit       UnitRunner
	metrics    ExecutionMetrics
	log        *slog.Logger
	tracer     trace.Tracer
}

// NewManager wires the execution manager. Registry, artifact registrar,
// WAL, outbox store, and unit runner are required; the negotiator is only
// needed when some handler declares a data requirement.
func NewManager(registry *Registry, negotiator Negotiator, artifacts Registrar, walLog *wal.Log, outboxStore outbox.Store, unit UnitRunner, metrics ExecutionMetrics, log *slog.Logger) (*Manager, error) {
	if registry == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "handler registry is required")
	}
	if artifacts == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "artifact registrar is required")
	}
	if walLog == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "wal log is required")
	}
	if outboxStore == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "outbox store is required")
	}
	if unit == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "unit runner is required")
	}
	return &Manager{
		registry:   registry,
		negotiator: negotiator,
		artifacts:  artifacts,
		wal:        walLog,
		outbox:     outboxStore,
		unit:       unit,
		metrics:    metrics,
		log:        log,
		tracer:     otel.Tracer("loom/internal/execution"),
	}, nil
}

// Execute runs one intent end to end. The intent is consumed exactly once;
// a validation failure leaves no trace anywhere.
func (m *Manager) Execute(ctx context.Context, in *intent.Intent) Outcome {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "execution.run")
	defer span.End()

	outcome := m.execute(ctx, in)

	if in != nil {
		span.SetAttributes(
			attribute.String("intent.type", in.Type),
			attribute.String("tenant.id", in.TenantID.String()),
			attribute.String("execution.outcome", string(outcome.Status)),
		)
		if m.metrics != nil {
			m.metrics.Observe(in.Type, string(outcome.Status), time.Since(start))
		}
	}
	return outcome
}

func (m *Manager) execute(ctx context.Context, in *intent.Intent) Outcome {
	if err := in.Validate(); err != nil {
		return failedOutcome(id.ExecutionID{}, err)
	}

	handler, ok := m.registry.Get(in.Type)
	if !ok {
		return failedOutcome(id.ExecutionID{}, dErrors.New(dErrors.CodeInvalidInput, "no handler registered for intent type "+in.Type))
	}

	executionID := id.NewExecutionID()
	log := m.log.With("intent_type", in.Type, "execution_id", executionID.String(), "tenant_id", in.TenantID.String())
	if rid := requestcontext.RequestID(ctx); rid != "" {
		log = log.With("request_id", rid)
	}

	var contract *governance.BoundaryContract
	if req := handler.NeedsExternalData(in); req != nil {
		var outcome Outcome
		contract, outcome = m.negotiate(ctx, in, executionID, req, log)
		if outcome.Status != StatusOK {
			return outcome
		}
	}

	if err := m.wal.Append(ctx, in.TenantID, executionID, wal.EventStepStarted, map[string]any{
		"intent_id":   in.ID.String(),
		"intent_type": in.Type,
	}); err != nil {
		return unavailableOutcome(executionID, err)
	}

	result, err := handler.Handle(ctx, &ExecContext{
		Intent:      in,
		ExecutionID: executionID,
		Contract:    contract,
		Log:         log,
		wal:         m.wal,
	})
	if err != nil {
		log.Error("handler failed", "error", err)
		if walErr := m.wal.Append(ctx, in.TenantID, executionID, wal.EventStepFailed, map[string]any{
			"intent_id": in.ID.String(),
			"error":     err.Error(),
		}); walErr != nil {
			return unavailableOutcome(executionID, walErr)
		}
		return failedOutcome(executionID, dErrors.Wrap(err, dErrors.CodeHandlerFailed, "handler execution failed"))
	}
	if result == nil {
		result = &HandlerResult{}
	}

	records, events, err := m.commit(ctx, in, executionID, contract, result)
	if err != nil {
		log.Error("commit unit failed", "error", err)
		if walErr := m.wal.Append(ctx, in.TenantID, executionID, wal.EventStepFailed, map[string]any{
			"intent_id": in.ID.String(),
			"error":     err.Error(),
		}); walErr != nil {
			return unavailableOutcome(executionID, walErr)
		}
		return unavailableOutcome(executionID, err)
	}

	log.Info("execution completed", "artifacts", len(records), "events", len(events))
	return okOutcome(executionID, records, events)
}

// negotiate runs both phases of the boundary protocol. The returned outcome
// is OK only as a sentinel for "carry on"; a denial is final.
func (m *Manager) negotiate(ctx context.Context, in *intent.Intent, executionID id.ExecutionID, req *DataRequirement, log *slog.Logger) (*governance.BoundaryContract, Outcome) {
	if m.negotiator == nil {
		return nil, unavailableOutcome(executionID, dErrors.New(dErrors.CodeUnavailable, "handler requires external data but no negotiator is wired"))
	}

	access, err := m.negotiator.RequestDataAccess(ctx, govservice.AccessRequest{
		TenantID:         in.TenantID,
		UserID:           in.UserID,
		IntentID:         in.ID,
		ExecutionID:      executionID,
		SourceType:       req.SourceType,
		SourceIdentifier: req.SourceIdentifier,
		SourceMetadata:   req.SourceMetadata,
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return nil, failedOutcome(executionID, err)
		}
		return nil, unavailableOutcome(executionID, err)
	}
	if !access.Granted {
		log.Info("access denied", "contract_id", access.ContractID.String(), "reason", access.Reason)
		return nil, deniedOutcome(executionID, access.ContractID, access.Reason)
	}

	if _, err := m.negotiator.AuthorizeMaterialization(ctx, govservice.MaterializationRequest{
		ContractID:   access.ContractID,
		TenantID:     in.TenantID,
		ExecutionID:  executionID,
		ArtifactType: req.ArtifactType,
		Workspace:    in.Workspace(),
	}); err != nil {
		return nil, unavailableOutcome(executionID, err)
	}

	contract, err := m.negotiator.GetContract(ctx, in.TenantID, access.ContractID)
	if err != nil {
		return nil, unavailableOutcome(executionID, err)
	}
	return contract, Outcome{Status: StatusOK}
}

// commit lands the handler's output as one atomic unit: artifact rows, the
// completion WAL event, and the outbox enqueues all commit together.
func (m *Manager) commit(ctx context.Context, in *intent.Intent, executionID id.ExecutionID, contract *governance.BoundaryContract, result *HandlerResult) ([]*artifact.Record, []outbox.Event, error) {
	var (
		records []*artifact.Record
		events  []outbox.Event
	)
	err := m.unit.RunAtomic(ctx, func(ctx context.Context) error {
		records = records[:0]
		events = events[:0]

		producedBy := artifact.ProducedBy{IntentID: in.ID, ExecutionID: executionID}
		for _, draft := range result.Artifacts {
			record, err := m.artifacts.Register(ctx, in.TenantID, draft, producedBy, contract)
			if err != nil {
				return err
			}
			records = append(records, record)
		}

		if err := m.wal.Append(ctx, in.TenantID, executionID, wal.EventStepCompleted, map[string]any{
			"intent_id": in.ID.String(),
			"artifacts": len(result.Artifacts),
		}); err != nil {
			return err
		}

		for _, draft := range result.Events {
			event := outbox.Event{
				ID:          id.NewEventID(),
				TenantID:    in.TenantID,
				ExecutionID: executionID,
				Type:        draft.Type,
				Payload:     draft.Payload,
				CreatedAt:   time.Now(),
			}
			if err := m.outbox.Enqueue(ctx, event); err != nil {
				return err
			}
			if err := m.wal.Append(ctx, in.TenantID, executionID, wal.EventOutboxEnqueued, map[string]any{
				"event_id":   event.ID.String(),
				"event_type": event.Type,
			}); err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return records, events, nil
}
