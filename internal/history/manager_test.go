package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"canvas-backend/internal/config"
	"canvas-backend/internal/domain/graph"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/shared"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/identity"
	"canvas-backend/internal/observability"
	"canvas-backend/internal/persistence"
	"canvas-backend/internal/persistence/memory"
	"canvas-backend/internal/persistence/persistencetest"
	"canvas-backend/internal/session"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockIdentity struct {
	mock.Mock
}

func (m *mockIdentity) CurrentUserID(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type staticSource struct {
	projectID string
	graph     graph.Snapshot
}

func (s staticSource) ProjectID() string     { return s.projectID }
func (s staticSource) Graph() graph.Snapshot { return s.graph }

func TestCaptureStoresSessionGraph(t *testing.T) {
	ctx := context.Background()
	gw := memory.New(memory.WithClock(tickingClock()))
	p := persistencetest.NewProject(t, gw, "Roadmap")
	a := persistencetest.NewNode(t, gw, p.ID, node.VariantTask, shared.Position{X: 10, Y: 10})
	b := persistencetest.NewNode(t, gw, p.ID, node.VariantGoal, shared.Position{X: 300, Y: 10})
	e, err := gw.CreateEdge(ctx, persistence.EdgeDraft{ProjectID: p.ID, SourceID: a.ID, TargetID: b.ID, CreatedBy: "owner-1"})
	require.NoError(t, err)

	s := session.New(gw, identity.Static("owner-1"), config.Default().Session)
	require.NoError(t, s.Load(ctx, p.ID))
	defer s.Close()

	metrics := observability.NewCollector("test")
	m := NewManager(gw, identity.Static("owner-1"), nil, metrics)

	id, err := m.Capture(ctx, s, "before refactor")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	snaps, err := m.List(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	got := snaps[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "owner-1", got.CreatedBy)
	require.NotNil(t, got.Comment)
	assert.Equal(t, "before refactor", *got.Comment)

	require.Len(t, got.Graph.Nodes, 2)
	require.Len(t, got.Graph.Edges, 1)
	ids := []string{got.Graph.Nodes[0].ID, got.Graph.Nodes[1].ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
	assert.Equal(t, e.ID, got.Graph.Edges[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SnapshotsCaptured))
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	gw := memory.New(memory.WithClock(tickingClock()))
	p := persistencetest.NewProject(t, gw, "Roadmap")
	m := NewManager(gw, identity.Static("owner-1"), nil, nil)
	src := staticSource{projectID: p.ID, graph: graph.Snapshot{ProjectID: p.ID}}

	var captured []string
	for i := 0; i < 3; i++ {
		id, err := m.Capture(ctx, src, "")
		require.NoError(t, err)
		captured = append(captured, id)
	}

	snaps, err := m.List(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, captured[2], snaps[0].ID)
	assert.Equal(t, captured[1], snaps[1].ID)
	assert.Equal(t, captured[0], snaps[2].ID)
	assert.Nil(t, snaps[0].Comment)

	latest, ok, err := m.Latest(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, captured[2], latest.ID)
}

func TestCaptureRejectsClosedSource(t *testing.T) {
	rec := persistencetest.NewRecorder(memory.New())
	m := NewManager(rec, identity.Static("owner-1"), nil, nil)

	_, err := m.Capture(context.Background(), staticSource{}, "x")
	assert.ErrorIs(t, err, cerrors.ErrSessionNotReady)
	assert.Zero(t, rec.Count(persistence.OpCreateSnapshot))
}

func TestCaptureRequiresIdentity(t *testing.T) {
	gw := memory.New()
	p := persistencetest.NewProject(t, gw, "Roadmap")
	m := NewManager(gw, identity.Static(""), nil, nil)

	_, err := m.Capture(context.Background(), staticSource{projectID: p.ID}, "")
	assert.ErrorIs(t, err, cerrors.ErrUnauthenticated)
}

func TestCaptureFailureIsReported(t *testing.T) {
	base := memory.New()
	p := persistencetest.NewProject(t, base, "Roadmap")
	rec := persistencetest.NewRecorder(base)
	rec.FailTimes(persistence.OpCreateSnapshot, 1, errors.New("disk full"))
	metrics := observability.NewCollector("test")
	m := NewManager(rec, identity.Static("owner-1"), nil, metrics)

	_, err := m.Capture(context.Background(), staticSource{projectID: p.ID}, "")
	var perr *cerrors.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, persistence.OpCreateSnapshot, perr.Operation)
	assert.Zero(t, testutil.ToFloat64(metrics.SnapshotsCaptured))

	snaps, err := m.List(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestListRequiresProject(t *testing.T) {
	m := NewManager(memory.New(), identity.Static("owner-1"), nil, nil)
	_, err := m.List(context.Background(), "")
	assert.ErrorIs(t, err, cerrors.ErrMissingID)
}

func TestCaptureRecordsCurrentUser(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	p := persistencetest.NewProject(t, gw, "Roadmap")
	ids := new(mockIdentity)
	ids.On("CurrentUserID", mock.Anything).Return("carol", nil).Once()
	m := NewManager(gw, ids, nil, nil)

	_, err := m.Capture(ctx, staticSource{projectID: p.ID, graph: graph.Snapshot{ProjectID: p.ID}}, "")
	require.NoError(t, err)

	snaps, err := m.List(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "carol", snaps[0].CreatedBy)
	ids.AssertExpectations(t)
}
