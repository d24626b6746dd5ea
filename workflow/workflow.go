// Package workflow defines the core data model: workflows, typed nodes,
// directed connections, and the adjacency graph the executor evaluates.
//
// A workflow is a directed graph of nodes. Each node references a
// NodeDefinition (its type and category) and carries a custom configuration
// whose string values may be templates resolved at execution time. Connections
// are directed edges, optionally gated by a condition. The graph may have
// multiple roots and multiple sinks; joins (multiple incoming edges) are
// permitted; self-loops are not.
package workflow

import "strings"

// NodeType classifies a node definition as a trigger or an action.
type NodeType string

const (
	// NodeTypeTrigger marks nodes that start executions. Trigger nodes never
	// run an action at execution time.
	NodeTypeTrigger NodeType = "trigger"
	// NodeTypeAction marks nodes whose category resolves to an executable
	// handler in the action registry.
	NodeTypeAction NodeType = "action"
)

type (
	// Workflow is the top-level entity owning a node graph.
	Workflow struct {
		// ID uniquely identifies the workflow.
		ID int64
		// Owner identifies the user that owns the workflow.
		Owner string
		// Active reports whether the workflow is live. Only active workflows
		// have schedules and webhooks registered.
		Active bool
		// Name is the user-facing workflow name.
		Name string
		// Description is an optional free-form description.
		Description string
	}

	// NodeDefinition describes a node kind: its type (trigger or action), its
	// category tag used for handler dispatch, and metadata describing its
	// typed input fields and output descriptors.
	NodeDefinition struct {
		// ID uniquely identifies the definition.
		ID int64
		// Name is the definition's display name.
		Name string
		// Type is trigger or action.
		Type NodeType
		// Category is the dispatch key into the action and trigger handler
		// registries (e.g. "http", "scheduler", "telegram").
		Category string
		// ConfigMetadata is a JSON schema describing the node's input fields.
		// May be empty when the definition carries no schema.
		ConfigMetadata []byte
		// Outputs describes the node's output fields. Informational only.
		Outputs []byte
	}

	// Node is one vertex of a workflow graph: a definition instance plus its
	// per-workflow configuration.
	Node struct {
		// ID uniquely identifies the node within its workflow.
		ID int64
		// WorkflowID is the owning workflow.
		WorkflowID int64
		// Definition is the referenced node definition, inlined at load time.
		Definition NodeDefinition
		// CustomConfig maps field names to concrete values or template
		// strings of the form "{{ dotted.path }}".
		CustomConfig map[string]any
	}

	// Connection is a directed edge between two nodes of the same workflow.
	Connection struct {
		// WorkflowID is the owning workflow.
		WorkflowID int64
		// FromNode is the source node ID.
		FromNode int64
		// ToNode is the target node ID.
		ToNode int64
		// Condition optionally gates forwarding along this edge. An empty
		// condition always forwards; a non-empty condition forwards only when
		// it equals the source result's "status" field.
		Condition string
	}
)

// IsTrigger reports whether the node must take the executor's trigger
// fast-path: its type, compared case-insensitively, is one of "trigger",
// "scheduler" or "webhook". Trigger nodes never invoke an action handler.
func (n *Node) IsTrigger() bool {
	switch strings.ToLower(string(n.Definition.Type)) {
	case "trigger", "scheduler", "webhook":
		return true
	}
	return false
}
