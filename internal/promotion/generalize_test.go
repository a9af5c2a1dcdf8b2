package promotion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneralizeStripsIdentityAtAllDepths(t *testing.T) {
	definition := map[string]any{
		"name":      "invoice-pipeline",
		"tenant_id": "t-123",
		"steps": []any{
			map[string]any{
				"action":  "parse",
				"user_id": "u-9",
				"config": map[string]any{
					"parser":            "csv",
					"client_reference":  "acme",
					"organization_unit": "emea",
				},
			},
			"plain-string",
		},
		"contact": map[string]any{
			"email": "a@b.c",
			"phone": "555",
			"role":  "approver",
		},
		"personal_data": map[string]any{"dob": "1990-01-01"},
	}

	got := Generalize(definition)

	assert.Equal(t, "invoice-pipeline", got["name"])
	assert.NotContains(t, got, "tenant_id")
	assert.NotContains(t, got, "personal_data")

	steps := got["steps"].([]any)
	step := steps[0].(map[string]any)
	assert.Equal(t, "parse", step["action"])
	assert.NotContains(t, step, "user_id")

	config := step["config"].(map[string]any)
	assert.Equal(t, "csv", config["parser"])
	assert.NotContains(t, config, "client_reference")
	assert.NotContains(t, config, "organization_unit")

	assert.Equal(t, "plain-string", steps[1])

	contact := got["contact"].(map[string]any)
	assert.Equal(t, "approver", contact["role"])
	assert.NotContains(t, contact, "email")
	assert.NotContains(t, contact, "phone")
}

func TestGeneralizeLeavesInputUntouched(t *testing.T) {
	definition := map[string]any{
		"tenant_id": "t-1",
		"nested":    map[string]any{"user_id": "u-1", "keep": true},
	}
	_ = Generalize(definition)

	assert.Contains(t, definition, "tenant_id")
	assert.Contains(t, definition["nested"].(map[string]any), "user_id")
}

func TestGeneralizeNil(t *testing.T) {
	assert.Nil(t, Generalize(nil))
}
