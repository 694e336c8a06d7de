// Package graph holds the in-memory node and edge collections of one open
// project and guarantees their referential integrity.
//
// Invariant: after every mutation no edge references a node that is absent
// from the store. RemoveNode is the only place where the edge cascade is
// applied; callers never delete incident edges themselves.
//
// A Store is not safe for concurrent use. The editing session serializes
// access to it.
package graph

import (
	"fmt"
	"sort"

	"canvas-backend/internal/domain/edge"
	"canvas-backend/internal/domain/node"
	cerrors "canvas-backend/internal/errors"
)

// Store is the authoritative in-memory graph of a project.
type Store struct {
	projectID string
	nodes     map[string]*node.Node
	edges     map[string]*edge.Edge
	pairs     map[edge.Pair]int
}

// NewStore creates an empty store for projectID.
func NewStore(projectID string) *Store {
	return &Store{
		projectID: projectID,
		nodes:     make(map[string]*node.Node),
		edges:     make(map[string]*edge.Edge),
		pairs:     make(map[edge.Pair]int),
	}
}

// ProjectID returns the project the store belongs to.
func (s *Store) ProjectID() string { return s.projectID }

// owns reports whether an entity stamped with projectID may live in the
// store. An empty identifier on either side is not checked.
func (s *Store) owns(projectID string) bool {
	return s.projectID == "" || projectID == "" || projectID == s.projectID
}

func (s *Store) mismatch(kind, id, projectID string) error {
	return fmt.Errorf("%w: %s %s is in project %s, not %s",
		cerrors.ErrProjectMismatch, kind, id, projectID, s.projectID)
}

// UpsertNode inserts or replaces a node by identifier. The store keeps its
// own copy. A node of another project is rejected.
func (s *Store) UpsertNode(n *node.Node) error {
	if n == nil || n.ID == "" {
		return cerrors.ErrMissingID
	}
	if !s.owns(n.ProjectID) {
		return s.mismatch("node", n.ID, n.ProjectID)
	}
	s.nodes[n.ID] = n.Clone()
	return nil
}

// RemoveNode removes the node and every edge whose source or target is the
// node. It returns the removed edges; removing an unknown node is a no-op.
func (s *Store) RemoveNode(nodeID string) []*edge.Edge {
	if _, ok := s.nodes[nodeID]; !ok {
		return nil
	}

	var removed []*edge.Edge
	for id, e := range s.edges {
		if e.Touches(nodeID) {
			removed = append(removed, e)
			s.dropEdge(id)
		}
	}
	delete(s.nodes, nodeID)

	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	return removed
}

// UpsertEdge inserts or replaces an edge. Both endpoints must be nodes of
// this store, otherwise a DanglingReferenceError is returned and the store is
// left unchanged. An edge of another project is rejected.
func (s *Store) UpsertEdge(e *edge.Edge) error {
	if e == nil || e.ID == "" {
		return cerrors.ErrMissingID
	}
	if !s.owns(e.ProjectID) {
		return s.mismatch("edge", e.ID, e.ProjectID)
	}
	var missing []string
	if _, ok := s.nodes[e.SourceID]; !ok {
		missing = append(missing, e.SourceID)
	}
	if _, ok := s.nodes[e.TargetID]; !ok && e.TargetID != e.SourceID {
		missing = append(missing, e.TargetID)
	}
	if len(missing) > 0 {
		return &cerrors.DanglingReferenceError{EdgeID: e.ID, Missing: missing}
	}

	if _, exists := s.edges[e.ID]; exists {
		s.dropEdge(e.ID)
	}
	cp := e.Clone()
	s.edges[e.ID] = cp
	s.pairs[cp.Pair()]++
	return nil
}

// RemoveEdge removes an edge by identifier. Unknown identifiers are ignored.
// It reports whether an edge was removed.
func (s *Store) RemoveEdge(edgeID string) bool {
	if _, ok := s.edges[edgeID]; !ok {
		return false
	}
	s.dropEdge(edgeID)
	return true
}

func (s *Store) dropEdge(id string) {
	e := s.edges[id]
	delete(s.edges, id)
	p := e.Pair()
	if s.pairs[p] <= 1 {
		delete(s.pairs, p)
	} else {
		s.pairs[p]--
	}
}

// Node returns a copy of the node with the given identifier.
func (s *Store) Node(id string) (*node.Node, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// HasNode reports whether the node is present.
func (s *Store) HasNode(id string) bool {
	_, ok := s.nodes[id]
	return ok
}

// Edge returns a copy of the edge with the given identifier.
func (s *Store) Edge(id string) (*edge.Edge, bool) {
	e, ok := s.edges[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// HasConnection reports whether an edge from sourceID to targetID exists.
func (s *Store) HasConnection(sourceID, targetID string) bool {
	return s.pairs[edge.Pair{SourceID: sourceID, TargetID: targetID}] > 0
}

// Nodes returns copies of all nodes ordered by identifier.
func (s *Store) Nodes() []*node.Node {
	out := make([]*node.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns copies of all edges ordered by identifier.
func (s *Store) Edges() []*edge.Edge {
	out := make([]*edge.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of edges.
func (s *Store) EdgeCount() int { return len(s.edges) }

// Snapshot returns a deep copy of the current nodes and edges.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		ProjectID: s.projectID,
		Nodes:     s.Nodes(),
		Edges:     s.Edges(),
	}
}

// Load replaces the store content. Nodes of another project are skipped.
// Edges of another project or whose endpoints are not among the kept nodes
// are not inserted; they are returned so the caller can report them.
func (s *Store) Load(nodes []*node.Node, edges []*edge.Edge) (dropped []*edge.Edge) {
	s.nodes = make(map[string]*node.Node, len(nodes))
	s.edges = make(map[string]*edge.Edge, len(edges))
	s.pairs = make(map[edge.Pair]int, len(edges))
	for _, n := range nodes {
		if n == nil || n.ID == "" || !s.owns(n.ProjectID) {
			continue
		}
		s.nodes[n.ID] = n.Clone()
	}
	for _, e := range edges {
		if err := s.UpsertEdge(e); err != nil {
			dropped = append(dropped, e)
		}
	}
	return dropped
}

// Validate verifies the referential integrity invariant.
func (s *Store) Validate() error {
	for _, e := range s.edges {
		var missing []string
		if _, ok := s.nodes[e.SourceID]; !ok {
			missing = append(missing, e.SourceID)
		}
		if _, ok := s.nodes[e.TargetID]; !ok {
			missing = append(missing, e.TargetID)
		}
		if len(missing) > 0 {
			return &cerrors.DanglingReferenceError{EdgeID: e.ID, Missing: missing}
		}
	}
	return nil
}
