// Package handlers routes trigger nodes to their category-specific install
// and teardown logic. The scheduler runner feeds it lifecycle events: on
// activation each trigger node's handler installs external state (a schedule
// entry, a remote webhook), on deactivation it tears that state down.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/weftworks/weft/events"
	"github.com/weftworks/weft/schedule"
	"github.com/weftworks/weft/telemetry"
)

// ErrUnknownCategory is returned when a trigger node names a category no
// handler is registered for.
var ErrUnknownCategory = errors.New("no trigger handler registered for category")

type (
	// Handler installs and removes one trigger category's external state.
	// Both operations are idempotent: lifecycle events are delivered
	// at-least-once and updates replay the install.
	Handler interface {
		Handle(ctx context.Context, node events.NodeRef, workflowID int64) error
		Cleanup(ctx context.Context, node events.NodeRef, workflowID int64) error
	}

	// Registry maps trigger categories to handlers and adapts them to the
	// scheduler runner's dispatch interface.
	Registry struct {
		mu       sync.RWMutex
		handlers map[string]Handler
		log      telemetry.Logger
	}
)

var _ schedule.NodeDispatcher = (*Registry)(nil)

// NewRegistry creates an empty trigger handler registry.
func NewRegistry(logger telemetry.Logger) *Registry {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Registry{handlers: make(map[string]Handler), log: logger}
}

// Register installs a handler for a category, replacing any previous entry.
func (r *Registry) Register(category string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[category] = h
}

// Process routes an install to the node's category handler.
func (r *Registry) Process(ctx context.Context, node events.NodeRef, workflowID int64) error {
	h, err := r.get(node.NodeCategory)
	if err != nil {
		return err
	}
	return h.Handle(ctx, node, workflowID)
}

// Remove routes a teardown to the node's category handler.
func (r *Registry) Remove(ctx context.Context, node events.NodeRef, workflowID int64) error {
	h, err := r.get(node.NodeCategory)
	if err != nil {
		return err
	}
	return h.Cleanup(ctx, node, workflowID)
}

func (r *Registry) get(category string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return h, nil
}
