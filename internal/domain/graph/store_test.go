package graph

import (
	"fmt"
	"testing"

	"canvas-backend/internal/domain/edge"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/shared"
	cerrors "canvas-backend/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNode(id string) *node.Node {
	return &node.Node{ID: id, ProjectID: "p1", Variant: node.VariantNote, Title: id, Payload: node.NotePayload{}}
}

func newEdge(id, src, tgt string) *edge.Edge {
	return &edge.Edge{ID: id, ProjectID: "p1", SourceID: src, TargetID: tgt}
}

func seed(t *testing.T, ids ...string) *Store {
	t.Helper()
	s := NewStore("p1")
	for _, id := range ids {
		require.NoError(t, s.UpsertNode(newNode(id)))
	}
	return s
}

func TestUpsertNode(t *testing.T) {
	s := NewStore("p1")

	assert.ErrorIs(t, s.UpsertNode(&node.Node{}), cerrors.ErrMissingID)
	assert.ErrorIs(t, s.UpsertNode(nil), cerrors.ErrMissingID)

	n := newNode("a")
	require.NoError(t, s.UpsertNode(n))
	n.Title = "mutated after insert"

	got, ok := s.Node("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.Title, "store must keep its own copy")

	replacement := newNode("a")
	replacement.Position = shared.Position{X: 5, Y: 6}
	require.NoError(t, s.UpsertNode(replacement))
	got, _ = s.Node("a")
	assert.Equal(t, shared.Position{X: 5, Y: 6}, got.Position)
	assert.Equal(t, 1, s.NodeCount())
}

func TestUpsertEdgeRejectsDanglingReferences(t *testing.T) {
	s := seed(t, "a")

	err := s.UpsertEdge(newEdge("e1", "a", "ghost"))
	var dangling *cerrors.DanglingReferenceError
	require.ErrorAs(t, err, &dangling)
	assert.Equal(t, []string{"ghost"}, dangling.Missing)
	assert.Equal(t, 0, s.EdgeCount())

	err = s.UpsertEdge(newEdge("e2", "x", "y"))
	require.ErrorAs(t, err, &dangling)
	assert.Equal(t, []string{"x", "y"}, dangling.Missing)
}

func TestUpsertEdgeReplacesPair(t *testing.T) {
	s := seed(t, "a", "b", "c")
	require.NoError(t, s.UpsertEdge(newEdge("e1", "a", "b")))
	assert.True(t, s.HasConnection("a", "b"))
	assert.False(t, s.HasConnection("b", "a"), "connections are directed")

	require.NoError(t, s.UpsertEdge(newEdge("e1", "a", "c")))
	assert.False(t, s.HasConnection("a", "b"))
	assert.True(t, s.HasConnection("a", "c"))
	assert.Equal(t, 1, s.EdgeCount())
}

// Deleting node A with edges A->B and C->A removes exactly those two edges.
func TestRemoveNodeCascades(t *testing.T) {
	s := seed(t, "A", "B", "C", "D")
	require.NoError(t, s.UpsertEdge(newEdge("ab", "A", "B")))
	require.NoError(t, s.UpsertEdge(newEdge("ca", "C", "A")))
	require.NoError(t, s.UpsertEdge(newEdge("bc", "B", "C")))
	require.NoError(t, s.UpsertEdge(newEdge("cd", "C", "D")))

	removed := s.RemoveNode("A")

	require.Len(t, removed, 2)
	assert.Equal(t, "ab", removed[0].ID)
	assert.Equal(t, "ca", removed[1].ID)

	var remaining []string
	for _, e := range s.Edges() {
		remaining = append(remaining, e.ID)
	}
	assert.Equal(t, []string{"bc", "cd"}, remaining)
	assert.False(t, s.HasNode("A"))
	assert.False(t, s.HasConnection("A", "B"))
	assert.NoError(t, s.Validate())

	assert.Nil(t, s.RemoveNode("A"), "second removal is a no-op")
}

func TestRemoveEdge(t *testing.T) {
	s := seed(t, "a", "b")
	require.NoError(t, s.UpsertEdge(newEdge("e", "a", "b")))

	assert.True(t, s.RemoveEdge("e"))
	assert.False(t, s.RemoveEdge("e"))
	assert.False(t, s.HasConnection("a", "b"))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := seed(t, "b", "a")
	require.NoError(t, s.UpsertEdge(newEdge("e", "a", "b")))

	snap := s.Snapshot()
	require.Len(t, snap.Nodes, 2)
	assert.Equal(t, "a", snap.Nodes[0].ID)
	assert.Equal(t, "p1", snap.ProjectID)

	snap.Nodes[0].Title = "changed"
	snap.Edges[0].SourceID = "zzz"

	n, _ := s.Node("a")
	assert.Equal(t, "a", n.Title)
	e, _ := s.Edge("e")
	assert.Equal(t, "a", e.SourceID)

	found, ok := snap.Node("b")
	require.True(t, ok)
	assert.Equal(t, "b", found.ID)
}

func TestLoadDropsDanglingEdges(t *testing.T) {
	s := NewStore("p1")
	dropped := s.Load(
		[]*node.Node{newNode("a"), newNode("b")},
		[]*edge.Edge{newEdge("ok", "a", "b"), newEdge("bad", "a", "gone")},
	)
	require.Len(t, dropped, 1)
	assert.Equal(t, "bad", dropped[0].ID)
	assert.Equal(t, 1, s.EdgeCount())
	assert.NoError(t, s.Validate())
}

func TestRejectsEntitiesOfAnotherProject(t *testing.T) {
	s := NewStore("p1")
	require.NoError(t, s.UpsertNode(newNode("a")))
	require.NoError(t, s.UpsertNode(newNode("b")))

	foreign := newNode("x")
	foreign.ProjectID = "p2"
	err := s.UpsertNode(foreign)
	assert.ErrorIs(t, err, cerrors.ErrProjectMismatch)
	assert.False(t, s.HasNode("x"))

	e := newEdge("e", "a", "b")
	e.ProjectID = "p2"
	err = s.UpsertEdge(e)
	assert.ErrorIs(t, err, cerrors.ErrProjectMismatch)
	assert.Equal(t, 0, s.EdgeCount())

	unstamped := newEdge("e", "a", "b")
	unstamped.ProjectID = ""
	assert.NoError(t, s.UpsertEdge(unstamped))
}

func TestLoadSkipsEntitiesOfAnotherProject(t *testing.T) {
	s := NewStore("p1")
	foreign := newNode("x")
	foreign.ProjectID = "p2"
	strayEdge := newEdge("stray", "a", "b")
	strayEdge.ProjectID = "p2"

	dropped := s.Load(
		[]*node.Node{newNode("a"), newNode("b"), foreign},
		[]*edge.Edge{newEdge("ok", "a", "b"), newEdge("to-x", "a", "x"), strayEdge},
	)
	assert.Equal(t, 2, s.NodeCount())
	assert.Equal(t, 1, s.EdgeCount())
	require.Len(t, dropped, 2)
	assert.Equal(t, "to-x", dropped[0].ID)
	assert.Equal(t, "stray", dropped[1].ID)
	assert.NoError(t, s.Validate())
}

func TestManyNodesStayConsistent(t *testing.T) {
	s := NewStore("p1")
	for i := 0; i < 50; i++ {
		require.NoError(t, s.UpsertNode(newNode(fmt.Sprintf("n%02d", i))))
	}
	for i := 0; i < 49; i++ {
		require.NoError(t, s.UpsertEdge(newEdge(fmt.Sprintf("e%02d", i), fmt.Sprintf("n%02d", i), fmt.Sprintf("n%02d", i+1))))
	}
	for i := 0; i < 50; i += 2 {
		s.RemoveNode(fmt.Sprintf("n%02d", i))
	}
	assert.Equal(t, 25, s.NodeCount())
	assert.Equal(t, 0, s.EdgeCount())
	assert.NoError(t, s.Validate())
}
