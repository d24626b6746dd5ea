// Package mongo provides a MongoDB implementation of the workflow store.
//
// This implementation reads workflow definitions persisted by the CRUD layer,
// suitable for production deployments where scheduler and worker processes
// share one database.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/weftworks/weft/workflow"
	"github.com/weftworks/weft/workflow/store"
)

// Store is a MongoDB implementation of the store.Store interface.
type Store struct {
	workflows   *mongo.Collection
	nodes       *mongo.Collection
	connections *mongo.Collection
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// workflowDocument is the MongoDB document representation of a Workflow.
type workflowDocument struct {
	ID          int64  `bson:"_id"`
	Owner       string `bson:"owner"`
	Active      bool   `bson:"active"`
	Name        string `bson:"name"`
	Description string `bson:"description,omitempty"`
}

// nodeDocument is the MongoDB document representation of a workflow node with
// its definition inlined.
type nodeDocument struct {
	ID           int64              `bson:"_id"`
	WorkflowID   int64              `bson:"workflow_id"`
	Definition   definitionDocument `bson:"definition"`
	CustomConfig string             `bson:"custom_config,omitempty"` // JSON-encoded
}

// definitionDocument is the MongoDB document representation of a NodeDefinition.
type definitionDocument struct {
	ID             int64  `bson:"id"`
	Name           string `bson:"name"`
	Type           string `bson:"type"`
	Category       string `bson:"category"`
	ConfigMetadata []byte `bson:"config_metadata,omitempty"`
	Outputs        []byte `bson:"outputs,omitempty"`
}

// connectionDocument is the MongoDB document representation of a Connection.
type connectionDocument struct {
	WorkflowID int64  `bson:"workflow_id"`
	FromNode   int64  `bson:"from_node"`
	ToNode     int64  `bson:"to_node"`
	Condition  string `bson:"condition,omitempty"`
}

// New creates a MongoDB store over the given database. It uses the
// "workflows", "workflow_nodes" and "workflow_connections" collections.
func New(db *mongo.Database) *Store {
	return &Store{
		workflows:   db.Collection("workflows"),
		nodes:       db.Collection("workflow_nodes"),
		connections: db.Collection("workflow_connections"),
	}
}

// GetWorkflow retrieves a workflow by ID.
func (s *Store) GetWorkflow(ctx context.Context, id int64) (*workflow.Workflow, error) {
	var doc workflowDocument
	err := s.workflows.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongodb get workflow %d: %w", id, err)
	}
	return &workflow.Workflow{
		ID:          doc.ID,
		Owner:       doc.Owner,
		Active:      doc.Active,
		Name:        doc.Name,
		Description: doc.Description,
	}, nil
}

// ListNodes returns all nodes of a workflow.
func (s *Store) ListNodes(ctx context.Context, workflowID int64) ([]*workflow.Node, error) {
	return s.listNodes(ctx, bson.M{"workflow_id": workflowID})
}

// ListNodesByType returns the workflow's nodes whose definition type matches t.
func (s *Store) ListNodesByType(ctx context.Context, workflowID int64, t workflow.NodeType) ([]*workflow.Node, error) {
	return s.listNodes(ctx, bson.M{"workflow_id": workflowID, "definition.type": string(t)})
}

func (s *Store) listNodes(ctx context.Context, filter bson.M) ([]*workflow.Node, error) {
	cursor, err := s.nodes.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongodb list nodes: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*workflow.Node
	for cursor.Next(ctx) {
		var doc nodeDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongodb decode node: %w", err)
		}
		n, err := fromNodeDocument(&doc)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongodb list nodes: %w", err)
	}
	if out == nil {
		out = []*workflow.Node{}
	}
	return out, nil
}

// ListConnections returns all directed edges of a workflow.
func (s *Store) ListConnections(ctx context.Context, workflowID int64) ([]*workflow.Connection, error) {
	cursor, err := s.connections.Find(ctx, bson.M{"workflow_id": workflowID})
	if err != nil {
		return nil, fmt.Errorf("mongodb list connections: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*workflow.Connection
	for cursor.Next(ctx) {
		var doc connectionDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongodb decode connection: %w", err)
		}
		out = append(out, &workflow.Connection{
			WorkflowID: doc.WorkflowID,
			FromNode:   doc.FromNode,
			ToNode:     doc.ToNode,
			Condition:  doc.Condition,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongodb list connections: %w", err)
	}
	if out == nil {
		out = []*workflow.Connection{}
	}
	return out, nil
}

// fromNodeDocument converts a node document back to the domain type. The
// custom configuration is stored JSON-encoded so template strings survive
// driver round-trips byte for byte.
func fromNodeDocument(doc *nodeDocument) (*workflow.Node, error) {
	var cfg map[string]any
	if doc.CustomConfig != "" {
		if err := json.Unmarshal([]byte(doc.CustomConfig), &cfg); err != nil {
			return nil, fmt.Errorf("mongodb decode node %d custom config: %w", doc.ID, err)
		}
	}
	return &workflow.Node{
		ID:         doc.ID,
		WorkflowID: doc.WorkflowID,
		Definition: workflow.NodeDefinition{
			ID:             doc.Definition.ID,
			Name:           doc.Definition.Name,
			Type:           workflow.NodeType(doc.Definition.Type),
			Category:       doc.Definition.Category,
			ConfigMetadata: doc.Definition.ConfigMetadata,
			Outputs:        doc.Definition.Outputs,
		},
		CustomConfig: cfg,
	}, nil
}
