package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneContextIsolation(t *testing.T) {
	services := map[string]any{"db": &struct{}{}}
	ectx := map[string]any{
		ServicesKey: services,
		"payload":   map[string]any{"k": "v"},
	}

	clone := cloneContext(ectx)
	clone["payload"].(map[string]any)["k"] = "mutated"

	assert.Equal(t, "v", ectx["payload"].(map[string]any)["k"], "clones must not alias data")
	assert.Equal(t, services["db"], clone[ServicesKey].(map[string]any)["db"], "services slot is shared")
}

func TestChildContextStripsNodeOutputs(t *testing.T) {
	ectx := map[string]any{
		"payload":            "keep",
		"node_7_output":      map[string]any{"x": 1},
		"parent_7_result":    map[string]any{"x": 1},
		"parent_result":      map[string]any{"x": 1},
		"all_parent_results": []any{},
		ServicesKey:          map[string]any{},
	}

	child := childContext(ectx, map[string]any{"status": "success"})

	require.Contains(t, child, "payload")
	assert.NotContains(t, child, "node_7_output")
	assert.NotContains(t, child, "parent_7_result")
	assert.NotContains(t, child, "all_parent_results")
	assert.Contains(t, child, ServicesKey)
	assert.Equal(t, map[string]any{"status": "success"}, child[parentResultKey])
}
