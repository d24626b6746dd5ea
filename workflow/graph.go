package workflow

import "fmt"

// Graph is the adjacency form of a workflow's node set, built once at load
// time. Nodes never hold back-pointers; all relationships live in the forward
// and reverse maps.
type Graph struct {
	// Nodes maps node ID to node.
	Nodes map[int64]*Node
	// Forward maps node ID to its outgoing connections.
	Forward map[int64][]*Connection
	// Reverse maps node ID to the IDs of its parent nodes. The slice order is
	// the order parents appear in the connection list and is stable for the
	// lifetime of the graph.
	Reverse map[int64][]int64
	// Roots holds the IDs of nodes with no incoming connections.
	Roots []int64
}

// NewGraph builds the adjacency maps for a workflow's nodes and connections.
// It rejects self-loops and edges that reference unknown nodes, and requires
// at least one root when the graph is non-empty.
func NewGraph(nodes []*Node, conns []*Connection) (*Graph, error) {
	g := &Graph{
		Nodes:   make(map[int64]*Node, len(nodes)),
		Forward: make(map[int64][]*Connection),
		Reverse: make(map[int64][]int64),
	}
	for _, n := range nodes {
		g.Nodes[n.ID] = n
	}
	for _, c := range conns {
		if c.FromNode == c.ToNode {
			return nil, fmt.Errorf("connection %d->%d is a self-loop", c.FromNode, c.ToNode)
		}
		if _, ok := g.Nodes[c.FromNode]; !ok {
			return nil, fmt.Errorf("connection references unknown source node %d", c.FromNode)
		}
		if _, ok := g.Nodes[c.ToNode]; !ok {
			return nil, fmt.Errorf("connection references unknown target node %d", c.ToNode)
		}
		g.Forward[c.FromNode] = append(g.Forward[c.FromNode], c)
		g.Reverse[c.ToNode] = append(g.Reverse[c.ToNode], c.FromNode)
	}
	for _, n := range nodes {
		if len(g.Reverse[n.ID]) == 0 {
			g.Roots = append(g.Roots, n.ID)
		}
	}
	if len(nodes) > 0 && len(g.Roots) == 0 {
		return nil, fmt.Errorf("no starting node found (all %d nodes are targeted)", len(nodes))
	}
	return g, nil
}

// Parents returns the parent IDs of the given node. The returned slice is
// owned by the graph and must not be mutated.
func (g *Graph) Parents(nodeID int64) []int64 {
	return g.Reverse[nodeID]
}

// Children returns the outgoing connections of the given node.
func (g *Graph) Children(nodeID int64) []*Connection {
	return g.Forward[nodeID]
}
