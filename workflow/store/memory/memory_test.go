package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/workflow"
	"github.com/weftworks/weft/workflow/store"
	"github.com/weftworks/weft/workflow/store/memory"
)

func TestGetWorkflow(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	_, err := st.GetWorkflow(ctx, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	st.PutWorkflow(&workflow.Workflow{ID: 1, Owner: "ada", Active: true, Name: "nightly"})
	wf, err := st.GetWorkflow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "nightly", wf.Name)
}

func TestPutNodeReplacesByID(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	st.PutNode(&workflow.Node{ID: 1, WorkflowID: 7, Definition: workflow.NodeDefinition{Category: "http"}})
	st.PutNode(&workflow.Node{ID: 1, WorkflowID: 7, Definition: workflow.NodeDefinition{Category: "sendmail"}})

	nodes, err := st.ListNodes(ctx, 7)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "sendmail", nodes[0].Definition.Category)
}

func TestListNodesByType(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	st.PutNode(&workflow.Node{ID: 1, WorkflowID: 7, Definition: workflow.NodeDefinition{Type: workflow.NodeTypeTrigger}})
	st.PutNode(&workflow.Node{ID: 2, WorkflowID: 7, Definition: workflow.NodeDefinition{Type: workflow.NodeTypeAction}})

	triggers, err := st.ListNodesByType(ctx, 7, workflow.NodeTypeTrigger)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.EqualValues(t, 1, triggers[0].ID)
}

func TestListIsolatesWorkflows(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	st.PutNode(&workflow.Node{ID: 1, WorkflowID: 7})
	st.PutConnection(&workflow.Connection{WorkflowID: 7, FromNode: 1, ToNode: 2})

	nodes, err := st.ListNodes(ctx, 8)
	require.NoError(t, err)
	assert.Empty(t, nodes)

	conns, err := st.ListConnections(ctx, 8)
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestContextCancellation(t *testing.T) {
	st := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.ListNodes(ctx, 7)
	assert.ErrorIs(t, err, context.Canceled)
}
