package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/workflow"
)

func node(id int64, t workflow.NodeType) *workflow.Node {
	return &workflow.Node{ID: id, WorkflowID: 1, Definition: workflow.NodeDefinition{ID: id, Type: t}}
}

func conn(from, to int64) *workflow.Connection {
	return &workflow.Connection{WorkflowID: 1, FromNode: from, ToNode: to}
}

func TestNewGraphAdjacency(t *testing.T) {
	// trigger -> a, b -> join diamond.
	g, err := workflow.NewGraph(
		[]*workflow.Node{
			node(1, workflow.NodeTypeTrigger),
			node(2, workflow.NodeTypeAction),
			node(3, workflow.NodeTypeAction),
			node(4, workflow.NodeTypeAction),
		},
		[]*workflow.Connection{conn(1, 2), conn(1, 3), conn(2, 4), conn(3, 4)},
	)
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, g.Roots)
	assert.Empty(t, g.Parents(1))
	assert.Equal(t, []int64{2, 3}, g.Parents(4))
	require.Len(t, g.Children(1), 2)
	assert.Empty(t, g.Children(4))
}

func TestNewGraphMultipleRoots(t *testing.T) {
	g, err := workflow.NewGraph(
		[]*workflow.Node{node(1, workflow.NodeTypeTrigger), node(2, workflow.NodeTypeTrigger), node(3, workflow.NodeTypeAction)},
		[]*workflow.Connection{conn(1, 3), conn(2, 3)},
	)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, g.Roots)
}

func TestNewGraphRejectsBadEdges(t *testing.T) {
	nodes := []*workflow.Node{node(1, workflow.NodeTypeTrigger), node(2, workflow.NodeTypeAction)}

	_, err := workflow.NewGraph(nodes, []*workflow.Connection{conn(1, 1)})
	assert.ErrorContains(t, err, "self-loop")

	_, err = workflow.NewGraph(nodes, []*workflow.Connection{conn(1, 99)})
	assert.ErrorContains(t, err, "unknown target")

	_, err = workflow.NewGraph(nodes, []*workflow.Connection{conn(99, 2)})
	assert.ErrorContains(t, err, "unknown source")
}

func TestNewGraphRequiresRoot(t *testing.T) {
	// A pure cycle has no roots.
	nodes := []*workflow.Node{node(1, workflow.NodeTypeAction), node(2, workflow.NodeTypeAction)}
	_, err := workflow.NewGraph(nodes, []*workflow.Connection{conn(1, 2), conn(2, 1)})
	assert.ErrorContains(t, err, "no starting node")
}

func TestNewGraphEmpty(t *testing.T) {
	g, err := workflow.NewGraph(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, g.Nodes)
	assert.Empty(t, g.Roots)
}

func TestIsTrigger(t *testing.T) {
	cases := []struct {
		typ  workflow.NodeType
		want bool
	}{
		{workflow.NodeTypeTrigger, true},
		{"Trigger", true},
		{"scheduler", true},
		{"webhook", true},
		{workflow.NodeTypeAction, false},
		{"", false},
	}
	for _, tc := range cases {
		n := node(1, tc.typ)
		assert.Equal(t, tc.want, n.IsTrigger(), "type %q", tc.typ)
	}
}

func TestValidateConfig(t *testing.T) {
	schema := []byte(`{
		"type": "object",
		"required": ["url"],
		"properties": {
			"url": {"type": "string"},
			"timeout": {"type": "number"}
		}
	}`)
	def := workflow.NodeDefinition{ID: 1, Name: "http", ConfigMetadata: schema}

	assert.NoError(t, workflow.ValidateConfig(def, map[string]any{"url": "https://example.com", "timeout": 5.0}))
	assert.Error(t, workflow.ValidateConfig(def, map[string]any{"timeout": 5.0}), "missing required field")
	assert.Error(t, workflow.ValidateConfig(def, map[string]any{"url": 42.0}), "wrong type")

	noSchema := workflow.NodeDefinition{ID: 2, Name: "bare"}
	assert.NoError(t, workflow.ValidateConfig(noSchema, map[string]any{"anything": true}))
}
