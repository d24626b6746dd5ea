// Package events defines the control-plane lifecycle events that couple the
// CRUD layer to the scheduler. Workflow activation, update, deactivation and
// deletion publish events on a Redis pub/sub channel; the scheduler runner
// consumes them to register, mutate, or retract schedules and webhook
// subscriptions.
package events

import (
	"encoding/json"
	"time"

	"github.com/weftworks/weft/workflow"
)

// Channel is the pub/sub topic lifecycle events are published on.
const Channel = "workflow_events"

// Event kinds. UPDATED carries the same payload as ACTIVATED and consumers
// must treat it idempotently.
const (
	KindWorkflowActivated   = "WORKFLOW_ACTIVATED"
	KindWorkflowDeactivated = "WORKFLOW_DEACTIVATED"
	KindWorkflowUpdated     = "WORKFLOW_UPDATED"
	KindWorkflowDeleted     = "WORKFLOW_DELETED"
)

type (
	// Envelope is the wire format of one lifecycle event.
	Envelope struct {
		// Type is one of the Kind* constants.
		Type string `json:"type"`
		// Timestamp is the publication time in UTC.
		Timestamp time.Time `json:"timestamp"`
		// Payload is the event-specific body.
		Payload json.RawMessage `json:"payload"`
	}

	// WorkflowPayload is the body of activation, update and deactivation
	// events. Nodes is restricted to the workflow's trigger-typed nodes;
	// deletion events carry the workflow ID only.
	WorkflowPayload struct {
		WorkflowID int64     `json:"workflow_id"`
		Nodes      []NodeRef `json:"nodes,omitempty"`
	}

	// NodeRef is the event-bus projection of a trigger node: just enough for
	// the scheduler and trigger handlers to act on.
	NodeRef struct {
		NodeID       int64          `json:"node_id"`
		NodeType     string         `json:"node_type"`
		NodeCategory string         `json:"node_category"`
		CustomConfig map[string]any `json:"custom_config,omitempty"`
	}
)

// TriggerNodeRefs projects a workflow's nodes into event node references,
// keeping only trigger-typed nodes.
func TriggerNodeRefs(nodes []*workflow.Node) []NodeRef {
	var refs []NodeRef
	for _, n := range nodes {
		if n.Definition.Type != workflow.NodeTypeTrigger {
			continue
		}
		refs = append(refs, NodeRef{
			NodeID:       n.ID,
			NodeType:     string(n.Definition.Type),
			NodeCategory: n.Definition.Category,
			CustomConfig: n.CustomConfig,
		})
	}
	return refs
}
