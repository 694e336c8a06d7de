package graph

import (
	"canvas-backend/internal/domain/edge"
	"canvas-backend/internal/domain/node"
)

// Snapshot is a point-in-time copy of a project graph. Nodes and edges are
// ordered by identifier.
type Snapshot struct {
	ProjectID string
	Nodes     []*node.Node
	Edges     []*edge.Edge
}

// Clone deep copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{ProjectID: s.ProjectID}
	if s.Nodes != nil {
		out.Nodes = make([]*node.Node, len(s.Nodes))
		for i, n := range s.Nodes {
			out.Nodes[i] = n.Clone()
		}
	}
	if s.Edges != nil {
		out.Edges = make([]*edge.Edge, len(s.Edges))
		for i, e := range s.Edges {
			out.Edges[i] = e.Clone()
		}
	}
	return out
}

// Node finds a node by identifier.
func (s Snapshot) Node(id string) (*node.Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}
