package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/workflow"
)

func TestFromNodeDocument(t *testing.T) {
	doc := &nodeDocument{
		ID:         3,
		WorkflowID: 7,
		Definition: definitionDocument{
			ID:       11,
			Name:     "HTTP Request",
			Type:     "action",
			Category: "http",
		},
		CustomConfig: `{"url": "{{ payload.url }}", "timeout": 5}`,
	}

	n, err := fromNodeDocument(doc)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n.ID)
	assert.EqualValues(t, 7, n.WorkflowID)
	assert.Equal(t, workflow.NodeTypeAction, n.Definition.Type)
	// Template strings must survive the round-trip untouched.
	assert.Equal(t, "{{ payload.url }}", n.CustomConfig["url"])
	assert.Equal(t, 5.0, n.CustomConfig["timeout"])
}

func TestFromNodeDocumentEmptyConfig(t *testing.T) {
	n, err := fromNodeDocument(&nodeDocument{ID: 1, WorkflowID: 2})
	require.NoError(t, err)
	assert.Nil(t, n.CustomConfig)
}

func TestFromNodeDocumentRejectsCorruptConfig(t *testing.T) {
	_, err := fromNodeDocument(&nodeDocument{ID: 1, CustomConfig: "{not json"})
	assert.Error(t, err)
}
