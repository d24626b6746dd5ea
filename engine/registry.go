// Package engine implements the DAG executor: given a workflow ID and a
// trigger-supplied execution context it loads the workflow's graph and
// evaluates it concurrently under a fixed worker budget, waiting for joins
// and resolving config templates along the way. Node actions are dispatched
// through a registry keyed by node category; everything else about action
// code is opaque to the engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownCategory is returned when no action handler is registered for a
// node's category.
var ErrUnknownCategory = errors.New("no action handler registered for category")

type (
	// Handler executes one node's action. Run receives the node's resolved
	// configuration and the enhanced execution context; it may block on
	// network I/O. The returned result becomes visible to child nodes as
	// parent results.
	Handler interface {
		Run(ctx context.Context, config map[string]any, ectx map[string]any) (any, error)
	}

	// HandlerFunc adapts a function to the Handler interface.
	HandlerFunc func(ctx context.Context, config map[string]any, ectx map[string]any) (any, error)

	// Registry maps node category strings to action handlers. Registration
	// happens at process startup; lookups are concurrent.
	Registry struct {
		mu       sync.RWMutex
		handlers map[string]Handler
	}
)

// Run invokes the function.
func (f HandlerFunc) Run(ctx context.Context, config map[string]any, ectx map[string]any) (any, error) {
	return f(ctx, config, ectx)
}

// NewRegistry creates an empty action handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register installs a handler for a category, replacing any previous entry.
func (r *Registry) Register(category string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[category] = h
}

// Get returns the handler for a category. Unknown categories fail fast with
// a descriptive error.
func (r *Registry) Get(category string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return h, nil
}

// Categories returns the registered category names.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for c := range r.handlers {
		out = append(out, c)
	}
	return out
}
