package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type planPart struct {
	Title       string  `json:"titre"`
	LineRanges  [][]int `json:"plages_lignes"`
	Description string  `json:"description"`
}

type plan struct {
	Parts []planPart `json:"parts"`
}

func TestGenerateSchemaStrictness(t *testing.T) {
	schema := GenerateSchema[plan]()

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
	require.Contains(t, schema, "required")
	assert.ElementsMatch(t, []any{"parts"}, anySlice(t, schema["required"]))

	props := schema["properties"].(map[string]any)
	items := props["parts"].(map[string]any)["items"].(map[string]any)
	assert.Equal(t, false, items["additionalProperties"])
	assert.ElementsMatch(t,
		[]any{"titre", "plages_lignes", "description"},
		anySlice(t, items["required"]))
}

func TestCallErrorWrapping(t *testing.T) {
	inner := errors.New("boom")
	err := &CallError{Stage: "plan", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "plan")

	var callErr *CallError
	assert.ErrorAs(t, error(err), &callErr)
}

func anySlice(t *testing.T, v any) []any {
	t.Helper()
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	default:
		t.Fatalf("unexpected type %T", v)
		return nil
	}
}
