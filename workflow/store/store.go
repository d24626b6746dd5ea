// Package store defines the persistence layer interface for workflow
// definitions.
//
// The Store interface abstracts the narrow repository surface the execution
// core consumes: fetch a workflow by ID, list its nodes and connections, and
// list nodes filtered by type. Available implementations:
//
//   - memory: In-memory store for development and testing
//   - mongo: MongoDB store for production persistence
//
// To add a new implementation, create a subpackage that implements the Store
// interface and returns store.ErrNotFound for missing workflows.
package store

import (
	"context"
	"errors"

	"github.com/weftworks/weft/workflow"
)

// ErrNotFound is returned when a workflow is not found in the store.
var ErrNotFound = errors.New("workflow not found")

// Store defines the persistence layer for workflow definitions.
// Implementations must be safe for concurrent use; the core never issues
// queries outside this interface.
type Store interface {
	// GetWorkflow retrieves a workflow by ID. Returns ErrNotFound if the
	// workflow does not exist.
	GetWorkflow(ctx context.Context, id int64) (*workflow.Workflow, error)

	// ListNodes returns all nodes of a workflow with their definitions
	// inlined. Returns an empty slice when the workflow has no nodes.
	ListNodes(ctx context.Context, workflowID int64) ([]*workflow.Node, error)

	// ListNodesByType returns the workflow's nodes whose definition type
	// matches t. Returns an empty slice if none match.
	ListNodesByType(ctx context.Context, workflowID int64, t workflow.NodeType) ([]*workflow.Node, error)

	// ListConnections returns all directed edges of a workflow. Returns an
	// empty slice when the workflow has no connections.
	ListConnections(ctx context.Context, workflowID int64) ([]*workflow.Connection, error)
}
