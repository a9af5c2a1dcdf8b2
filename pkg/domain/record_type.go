package domain

import dErrors "loom/pkg/domain-errors"

// RecordType is a domain value that identifies what kind of durable fact a
// record of fact holds.
// Invariant: the value must be one of the supported record types.
//
// Usage: construct via ParseRecordType at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type RecordType string

// Supported record-of-fact types.
const (
	RecordTypeDeterministicEmbedding RecordType = "deterministic_embedding"
	RecordTypeSemanticEmbedding      RecordType = "semantic_embedding"
	RecordTypeInterpretation         RecordType = "interpretation"
	RecordTypeConclusion             RecordType = "conclusion"
)

// validRecordTypes is the single source of truth for valid record types.
var validRecordTypes = map[RecordType]bool{
	RecordTypeDeterministicEmbedding: true,
	RecordTypeSemanticEmbedding:      true,
	RecordTypeInterpretation:         true,
	RecordTypeConclusion:             true,
}

// ParseRecordType constructs a RecordType from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRecordType(s string) (RecordType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "record type cannot be empty")
	}
	r := RecordType(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid record type")
	}
	return r, nil
}

// IsValid checks if the record type is one of the supported enum values.
func (r RecordType) IsValid() bool {
	return validRecordTypes[r]
}

// String returns the string representation of the record type.
func (r RecordType) String() string {
	return string(r)
}
