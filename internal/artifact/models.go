package artifact

import (
	"time"

	id "loom/pkg/domain"
	"loom/pkg/platform/sentinel"
)

// LifecycleState tracks where an artifact is in its state machine.
//
// File-class working material moves READY -> ARCHIVED -> DELETED; DELETED is
// terminal and irreversible. Purpose-bound outcomes move DRAFT -> ACCEPTED;
// only ACCEPTED artifacts are eligible for promotion to the platform
// registries.
type LifecycleState string

const (
	StateReady    LifecycleState = "READY"
	StateArchived LifecycleState = "ARCHIVED"
	StateDeleted  LifecycleState = "DELETED"

	StateDraft    LifecycleState = "DRAFT"
	StateAccepted LifecycleState = "ACCEPTED"
)

// transitions is the single source of truth for forward movement. Anything
// not listed is invalid; there is no way back out of DELETED or ACCEPTED.
var transitions = map[LifecycleState]map[LifecycleState]bool{
	StateReady:    {StateArchived: true, StateDeleted: true},
	StateArchived: {StateDeleted: true},
	StateDraft:    {StateAccepted: true},
}

// CanTransition reports whether from -> to is a legal forward move.
func CanTransition(from, to LifecycleState) bool {
	return transitions[from][to]
}

// ValidateTransition returns ErrInvalidState for illegal moves so stores can
// enforce monotonicity inside their critical section.
func ValidateTransition(from, to LifecycleState) error {
	if !CanTransition(from, to) {
		return sentinel.ErrInvalidState
	}
	return nil
}

// SemanticDescriptor captures what the artifact's content is, structurally.
type SemanticDescriptor struct {
	Schema         string `json:"schema,omitempty"`
	ParserType     string `json:"parser_type,omitempty"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	RecordCount    int    `json:"record_count,omitempty"`
}

// Materialization is one concrete physical copy of an artifact's content in
// a backing store. Reference-class artifacts carry none.
type Materialization struct {
	MaterializationID id.ArtifactID
	StorageType       string
	URI               string
	Format            string
	Compression       string
	CreatedAt         time.Time
}

// ProducedBy links an artifact to the execution that created it.
type ProducedBy struct {
	IntentID    id.IntentID
	ExecutionID id.ExecutionID
}

// Record is one artifact registry entry. ParentArtifacts forms a lineage
// DAG, never a cycle: parents must already exist when a child registers.
type Record struct {
	ArtifactID       id.ArtifactID
	TenantID         id.TenantID
	Type             string
	LifecycleState   LifecycleState
	Descriptor       SemanticDescriptor
	Materializations []Materialization
	ParentArtifacts  []id.ArtifactID
	ProducedBy       ProducedBy
	SourceContractID id.ContractID
	Payload          map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Draft is a handler's description of an artifact to register. The registry
// assigns identity, state, and materializations.
type Draft struct {
	Type       string
	Descriptor SemanticDescriptor
	Payload    map[string]any
	Parents    []id.ArtifactID
	Format     string
}

// outcomeTypes are artifact classes that enter the registry as DRAFT rather
// than READY: they are deliverables with an acceptance step, not files.
var outcomeTypes = map[string]bool{
	"solution":  true,
	"blueprint": true,
	"sop":       true,
	"workflow":  true,
	"journey":   true,
	"realm":     true,
	"intent":    true,
}

// InitialState picks the entry state for an artifact type.
func InitialState(artifactType string) LifecycleState {
	if outcomeTypes[artifactType] {
		return StateDraft
	}
	return StateReady
}
