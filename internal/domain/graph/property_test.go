package graph

import (
	"fmt"
	"testing"

	"canvas-backend/internal/domain/edge"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const (
	opAddNode = iota
	opConnect
	opDeleteNode
	opDeleteEdge
	opCount
)

// TestGraphIntegrityProperty replays random sequences of add/connect/delete
// operations and checks after every step that no edge references a node the
// store does not hold.
func TestGraphIntegrityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("no dangling edges after any operation", prop.ForAll(
		func(ops []int) bool {
			s := NewStore("p1")
			var nodeIDs, edgeIDs []string
			nextNode, nextEdge := 0, 0

			for _, raw := range ops {
				arg := raw / opCount
				switch raw % opCount {
				case opAddNode:
					id := fmt.Sprintf("n%d", nextNode)
					nextNode++
					if err := s.UpsertNode(newNode(id)); err != nil {
						return false
					}
					nodeIDs = append(nodeIDs, id)
				case opConnect:
					if len(nodeIDs) == 0 {
						continue
					}
					src := nodeIDs[arg%len(nodeIDs)]
					// Targets may be stale identifiers of deleted nodes on purpose.
					tgt := fmt.Sprintf("n%d", (arg/3)%(nextNode+1))
					id := fmt.Sprintf("e%d", nextEdge)
					nextEdge++
					if err := s.UpsertEdge(&edge.Edge{ID: id, SourceID: src, TargetID: tgt}); err == nil {
						edgeIDs = append(edgeIDs, id)
					}
				case opDeleteNode:
					if len(nodeIDs) == 0 {
						continue
					}
					i := arg % len(nodeIDs)
					s.RemoveNode(nodeIDs[i])
					nodeIDs = append(nodeIDs[:i], nodeIDs[i+1:]...)
				case opDeleteEdge:
					if len(edgeIDs) == 0 {
						continue
					}
					s.RemoveEdge(edgeIDs[arg%len(edgeIDs)])
				}

				if s.Validate() != nil {
					return false
				}
				for _, e := range s.Edges() {
					if !s.HasNode(e.SourceID) || !s.HasNode(e.TargetID) {
						return false
					}
				}
			}
			return s.NodeCount() == len(nodeIDs)
		},
		gen.SliceOf(gen.IntRange(0, 4000)),
	))

	properties.TestingRun(t)
}
