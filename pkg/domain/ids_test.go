package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "loom/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseTenantID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseTenantID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseArtifactID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseContractID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, ContractID(validUUID), id)
	})

	t.Run("round-trips through String", func(t *testing.T) {
		id := NewExecutionID()
		parsed, err := ParseExecutionID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// If this compiles, typed IDs cannot be swapped across domains.
func TestTypeDistinction(t *testing.T) {
	tenantID := TenantID(uuid.New())
	artifactID := ArtifactID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ TenantID = artifactID   // compile error
	// var _ ArtifactID = tenantID   // compile error

	assert.NotEqual(t, uuid.UUID(tenantID), uuid.UUID(artifactID))
}

func TestRecordType(t *testing.T) {
	t.Run("accepts the closed enum", func(t *testing.T) {
		for _, s := range []string{
			"deterministic_embedding", "semantic_embedding", "interpretation", "conclusion",
		} {
			r, err := ParseRecordType(s)
			require.NoError(t, err)
			assert.Equal(t, s, r.String())
		}
	})

	t.Run("rejects unknown values", func(t *testing.T) {
		_, err := ParseRecordType("vibes")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := ParseRecordType("")
		require.Error(t, err)
	})
}

func TestRegistryType_Accepts(t *testing.T) {
	cases := []struct {
		registry RegistryType
		artifact string
		want     bool
	}{
		{RegistryTypeSolution, "solution", true},
		{RegistryTypeSolution, "blueprint", true},
		{RegistryTypeSolution, "sop", false},
		{RegistryTypeIntent, "workflow", true},
		{RegistryTypeIntent, "journey", false},
		{RegistryTypeRealm, "journey", true},
		{RegistryTypeRealm, "blueprint", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.registry.Accepts(tc.artifact),
			"%s should accept %s = %v", tc.registry, tc.artifact, tc.want)
	}
}
