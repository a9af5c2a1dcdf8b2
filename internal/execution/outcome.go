package execution

import (
	"loom/internal/artifact"
	"loom/internal/outbox"
	id "loom/pkg/domain"
)

// Status tags an execution outcome. Callers switch on the tag instead of
// probing error types; each tag carries only its own fields.
type Status string

const (
	// StatusOK: the handler ran and the commit unit landed.
	StatusOK Status = "ok"
	// StatusDenied: governance declined access. The denial is persisted
	// and WAL-logged; it is an answer, not a fault.
	StatusDenied Status = "denied"
	// StatusUnavailable: infrastructure failed mid-flight. Retryable.
	StatusUnavailable Status = "unavailable"
	// StatusFailed: the input or the handler is at fault. Not retryable
	// without change.
	StatusFailed Status = "failed"
)

// Outcome is the tagged result of Manager.Execute. The WAL is the source
// of truth for what happened; the outcome is the caller's summary.
type Outcome struct {
	Status      Status
	ExecutionID id.ExecutionID

	// OK only.
	Artifacts []*artifact.Record
	Events    []outbox.Event

	// Denied only.
	Reason     string
	ContractID id.ContractID

	// Unavailable and Failed only.
	Err error
}

func okOutcome(executionID id.ExecutionID, artifacts []*artifact.Record, events []outbox.Event) Outcome {
	return Outcome{Status: StatusOK, ExecutionID: executionID, Artifacts: artifacts, Events: events}
}

func deniedOutcome(executionID id.ExecutionID, contractID id.ContractID, reason string) Outcome {
	return Outcome{Status: StatusDenied, ExecutionID: executionID, ContractID: contractID, Reason: reason}
}

func unavailableOutcome(executionID id.ExecutionID, err error) Outcome {
	return Outcome{Status: StatusUnavailable, ExecutionID: executionID, Err: err}
}

func failedOutcome(executionID id.ExecutionID, err error) Outcome {
	return Outcome{Status: StatusFailed, ExecutionID: executionID, Err: err}
}
