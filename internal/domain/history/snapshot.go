// Package history defines the immutable point-in-time capture of a project
// graph.
package history

import (
	"sort"
	"time"

	"canvas-backend/internal/domain/graph"
)

// Snapshot is a full copy of a project graph at CreatedAt. Snapshots are
// never updated once created.
type Snapshot struct {
	ID        string
	ProjectID string
	Graph     graph.Snapshot
	Comment   *string
	CreatedBy string
	CreatedAt time.Time
}

// SortNewestFirst orders snapshots by creation time descending. Equal
// timestamps are ordered by identifier descending so the order is total.
func SortNewestFirst(snaps []*Snapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		a, b := snaps[i], snaps[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
