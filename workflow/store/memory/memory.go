// Package memory provides an in-memory implementation of the workflow store.
//
// This implementation is suitable for development, testing, and single-node
// deployments where persistence across restarts is not required.
package memory

import (
	"context"
	"sync"

	"github.com/weftworks/weft/workflow"
	"github.com/weftworks/weft/workflow/store"
)

// Store is an in-memory implementation of the store.Store interface.
// It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	workflows   map[int64]*workflow.Workflow
	nodes       map[int64][]*workflow.Node       // keyed by workflow ID
	connections map[int64][]*workflow.Connection // keyed by workflow ID
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		workflows:   make(map[int64]*workflow.Workflow),
		nodes:       make(map[int64][]*workflow.Node),
		connections: make(map[int64][]*workflow.Connection),
	}
}

// PutWorkflow stores or replaces a workflow.
func (s *Store) PutWorkflow(wf *workflow.Workflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.ID] = wf
}

// PutNode appends a node to its workflow, replacing any node with the same ID.
func (s *Store) PutNode(n *workflow.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := s.nodes[n.WorkflowID]
	for i, existing := range nodes {
		if existing.ID == n.ID {
			nodes[i] = n
			return
		}
	}
	s.nodes[n.WorkflowID] = append(nodes, n)
}

// PutConnection appends a connection to its workflow.
func (s *Store) PutConnection(c *workflow.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[c.WorkflowID] = append(s.connections[c.WorkflowID], c)
}

// GetWorkflow retrieves a workflow by ID.
func (s *Store) GetWorkflow(ctx context.Context, id int64) (*workflow.Workflow, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return wf, nil
}

// ListNodes returns all nodes of a workflow.
func (s *Store) ListNodes(ctx context.Context, workflowID int64) ([]*workflow.Node, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := s.nodes[workflowID]
	out := make([]*workflow.Node, len(nodes))
	copy(out, nodes)
	return out, nil
}

// ListNodesByType returns the workflow's nodes whose definition type matches t.
func (s *Store) ListNodesByType(ctx context.Context, workflowID int64, t workflow.NodeType) ([]*workflow.Node, error) {
	nodes, err := s.ListNodes(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	out := make([]*workflow.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Definition.Type == t {
			out = append(out, n)
		}
	}
	return out, nil
}

// ListConnections returns all directed edges of a workflow.
func (s *Store) ListConnections(ctx context.Context, workflowID int64) ([]*workflow.Connection, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	conns := s.connections[workflowID]
	out := make([]*workflow.Connection, len(conns))
	copy(out, conns)
	return out, nil
}
