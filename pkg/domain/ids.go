package domain

import (
	"github.com/google/uuid"

	dErrors "loom/pkg/domain-errors"
)

// Typed IDs keep tenant, execution, and artifact identifiers from being
// swapped at call sites. Construct via the Parse* functions at trust
// boundaries; direct conversion bypasses validation.
type (
	TenantID    uuid.UUID
	UserID      uuid.UUID
	SessionID   uuid.UUID
	SolutionID  uuid.UUID
	IntentID    uuid.UUID
	ExecutionID uuid.UUID
	ContractID  uuid.UUID
	ArtifactID  uuid.UUID
	RecordID    uuid.UUID
	RegistryID  uuid.UUID
	EventID     uuid.UUID
)

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

func NewTenantID() TenantID       { return TenantID(uuid.New()) }
func NewUserID() UserID           { return UserID(uuid.New()) }
func NewSessionID() SessionID     { return SessionID(uuid.New()) }
func NewSolutionID() SolutionID   { return SolutionID(uuid.New()) }
func NewIntentID() IntentID       { return IntentID(uuid.New()) }
func NewExecutionID() ExecutionID { return ExecutionID(uuid.New()) }
func NewContractID() ContractID   { return ContractID(uuid.New()) }
func NewArtifactID() ArtifactID   { return ArtifactID(uuid.New()) }
func NewRecordID() RecordID       { return RecordID(uuid.New()) }
func NewRegistryID() RegistryID   { return RegistryID(uuid.New()) }
func NewEventID() EventID         { return EventID(uuid.New()) }

func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant id")
	return TenantID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session id")
	return SessionID(u), err
}

func ParseSolutionID(s string) (SolutionID, error) {
	u, err := parseUUID(s, "solution id")
	return SolutionID(u), err
}

func ParseIntentID(s string) (IntentID, error) {
	u, err := parseUUID(s, "intent id")
	return IntentID(u), err
}

func ParseExecutionID(s string) (ExecutionID, error) {
	u, err := parseUUID(s, "execution id")
	return ExecutionID(u), err
}

func ParseContractID(s string) (ContractID, error) {
	u, err := parseUUID(s, "contract id")
	return ContractID(u), err
}

func ParseArtifactID(s string) (ArtifactID, error) {
	u, err := parseUUID(s, "artifact id")
	return ArtifactID(u), err
}

func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s, "record id")
	return RecordID(u), err
}

func ParseRegistryID(s string) (RegistryID, error) {
	u, err := parseUUID(s, "registry id")
	return RegistryID(u), err
}

func (id TenantID) String() string    { return uuid.UUID(id).String() }
func (id UserID) String() string      { return uuid.UUID(id).String() }
func (id SessionID) String() string   { return uuid.UUID(id).String() }
func (id SolutionID) String() string  { return uuid.UUID(id).String() }
func (id IntentID) String() string    { return uuid.UUID(id).String() }
func (id ExecutionID) String() string { return uuid.UUID(id).String() }
func (id ContractID) String() string  { return uuid.UUID(id).String() }
func (id ArtifactID) String() string  { return uuid.UUID(id).String() }
func (id RecordID) String() string    { return uuid.UUID(id).String() }
func (id RegistryID) String() string  { return uuid.UUID(id).String() }
func (id EventID) String() string     { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id SolutionID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id IntentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ExecutionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ContractID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ArtifactID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id RegistryID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
