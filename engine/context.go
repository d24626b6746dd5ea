package engine

import "strings"

// ServicesKey is the execution-context slot carrying the worker's shared
// service handles. The slot is shallow-shared on every context fork and
// stripped before any JSON serialization; everything else in a context is
// deep-copyable data.
const ServicesKey = "services"

// Context keys the executor writes while evaluating a graph.
const (
	// parentResultKey holds the single upstream result when a node has
	// exactly one parent (and the submitting parent's result otherwise).
	parentResultKey = "parent_result"
	// allParentResultsKey holds the fan-in result list for join nodes.
	allParentResultsKey = "all_parent_results"
	// nodeOutputPrefix prefixes the informational per-node output keys;
	// they are stripped when a context is forwarded to children.
	nodeOutputPrefix = "node_"
)

// cloneContext deep-copies an execution context, shallow-sharing the
// services slot. The services bag holds live handles (DB, credential
// decryptor, logger) that must never be copied or serialized.
func cloneContext(ectx map[string]any) map[string]any {
	out := make(map[string]any, len(ectx))
	for k, v := range ectx {
		if k == ServicesKey {
			out[k] = v
			continue
		}
		out[k] = deepCopy(v)
	}
	return out
}

// childContext builds the context a child node is submitted with: the parent
// context minus internal node_* keys, plus the submitting parent's result.
func childContext(ectx map[string]any, parentResult any) map[string]any {
	out := make(map[string]any, len(ectx))
	for k, v := range ectx {
		if strings.HasPrefix(k, nodeOutputPrefix) || k == parentResultKey || k == allParentResultsKey || strings.HasPrefix(k, "parent_") {
			continue
		}
		if k == ServicesKey {
			out[k] = v
			continue
		}
		out[k] = deepCopy(v)
	}
	out[parentResultKey] = parentResult
	return out
}

// deepCopy copies JSON-shaped values: maps and slices recurse, scalars are
// returned as-is. Values of other kinds (handler results may be arbitrary)
// are shared, matching the completion map they already live in.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
