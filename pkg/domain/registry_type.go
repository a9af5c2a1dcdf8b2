package domain

import dErrors "loom/pkg/domain-errors"

// RegistryType identifies which platform registry a promoted outcome lands
// in. Each registry accepts a closed set of artifact types; the allowlist is
// the single source of truth consulted by the promotion policy gate.
type RegistryType string

const (
	RegistryTypeSolution RegistryType = "solution"
	RegistryTypeIntent   RegistryType = "intent"
	RegistryTypeRealm    RegistryType = "realm"
)

// registryArtifactTypes maps each registry to the artifact types it accepts.
var registryArtifactTypes = map[RegistryType]map[string]bool{
	RegistryTypeSolution: {"solution": true, "blueprint": true},
	RegistryTypeIntent:   {"intent": true, "workflow": true},
	RegistryTypeRealm:    {"realm": true, "journey": true},
}

// ParseRegistryType constructs a RegistryType from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRegistryType(s string) (RegistryType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "registry type cannot be empty")
	}
	r := RegistryType(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid registry type")
	}
	return r, nil
}

// IsValid checks if the registry type is one of the supported enum values.
func (r RegistryType) IsValid() bool {
	_, ok := registryArtifactTypes[r]
	return ok
}

// Accepts reports whether this registry admits the given artifact type.
func (r RegistryType) Accepts(artifactType string) bool {
	return registryArtifactTypes[r][artifactType]
}

// String returns the string representation of the registry type.
func (r RegistryType) String() string {
	return string(r)
}
