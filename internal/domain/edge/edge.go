// Package edge defines the directed connection between two nodes of the same
// project.
package edge

import (
	"time"

	"canvas-backend/internal/domain/shared"
)

// Edge is a directed, optionally labeled relation from SourceID to TargetID.
type Edge struct {
	ID        string
	ProjectID string
	SourceID  string
	TargetID  string
	Label     *string
	Style     map[string]any
	Metadata  map[string]any
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of e.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Label != nil {
		l := *e.Label
		cp.Label = &l
	}
	cp.Style = shared.CloneMap(e.Style)
	cp.Metadata = shared.CloneMap(e.Metadata)
	return &cp
}

// Touches reports whether nodeID is either endpoint of the edge.
func (e *Edge) Touches(nodeID string) bool {
	return e.SourceID == nodeID || e.TargetID == nodeID
}

// Pair is the ordered (source, target) key of an edge.
type Pair struct {
	SourceID string
	TargetID string
}

// Pair returns the ordered endpoint pair of e.
func (e *Edge) Pair() Pair {
	return Pair{SourceID: e.SourceID, TargetID: e.TargetID}
}
