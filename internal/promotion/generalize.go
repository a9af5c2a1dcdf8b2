package promotion

import "strings"

// identityKeys are stripped from registry definitions before promotion so a
// definition learned in one tenant can serve every tenant.
var identityKeys = map[string]bool{
	"tenant_id":     true,
	"user_id":       true,
	"session_id":    true,
	"email":         true,
	"phone":         true,
	"address":       true,
	"personal_data": true,
}

var identityPrefixes = []string{"client_", "organization_"}

// Generalize returns a deep copy of the definition with identity-bearing
// keys removed at every nesting depth. Sibling keys are untouched; lists are
// walked element by element.
func Generalize(definition map[string]any) map[string]any {
	if definition == nil {
		return nil
	}
	out := make(map[string]any, len(definition))
	for key, value := range definition {
		if isIdentityKey(key) {
			continue
		}
		out[key] = generalizeValue(value)
	}
	return out
}

func generalizeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return Generalize(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = generalizeValue(item)
		}
		return out
	default:
		return v
	}
}

func isIdentityKey(key string) bool {
	if identityKeys[key] {
		return true
	}
	for _, prefix := range identityPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
