package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/shared"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/persistence"
	"canvas-backend/internal/persistence/persistencetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func TestGatewayContract(t *testing.T) {
	persistencetest.RunGatewaySuite(t, func(*testing.T) persistence.Gateway {
		return New(WithClock(tickingClock()))
	}, persistencetest.SuiteOptions{ScopedEndpoints: true})
}

func TestSequentialIDs(t *testing.T) {
	n := 0
	g := New(WithIDs(func() string { n++; return fmt.Sprintf("id-%d", n) }))
	p := persistencetest.NewProject(t, g, "P")
	assert.Equal(t, "id-1", p.ID)
	nd := persistencetest.NewNode(t, g, p.ID, node.VariantNote, shared.Origin)
	assert.Equal(t, "id-2", nd.ID)
}

func TestMalformedRowSurfacesAsPersistenceError(t *testing.T) {
	g := New()
	p := persistencetest.NewProject(t, g, "P")

	g.mu.Lock()
	g.nodes.putRaw(g.nextSeq(), "bad", []byte(fmt.Sprintf(
		`{"id":"bad","project_id":%q,"type":"hologram","position":{"x":0,"y":0}}`, p.ID)))
	g.mu.Unlock()

	_, err := g.FetchNodes(context.Background(), p.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, cerrors.ErrMalformedRecord)

	var pe *cerrors.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, persistence.OpFetchNodes, pe.Operation)
	assert.False(t, cerrors.IsRetryable(err))
}

func TestReturnedEntitiesAreDetached(t *testing.T) {
	g := New()
	p := persistencetest.NewProject(t, g, "P")
	n := persistencetest.NewNode(t, g, p.ID, node.VariantNote, shared.Origin)

	n.Title = "mutated by caller"
	n.Position = shared.Position{X: 99, Y: 99}

	nodes, err := g.FetchNodes(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, node.VariantNote.DefaultTitle(), nodes[0].Title)
	assert.Equal(t, shared.Origin, nodes[0].Position)
}

func TestCanceledContext(t *testing.T) {
	g := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.FetchProject(ctx, "p")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentWriters(t *testing.T) {
	g := New()
	p := persistencetest.NewProject(t, g, "P")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := g.CreateNode(context.Background(), persistence.NodeDraft{
				ProjectID: p.ID,
				Variant:   node.VariantNote,
				Position:  shared.Position{X: float64(i)},
				Payload:   node.NotePayload{},
				CreatedBy: "owner-1",
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	nodes, err := g.FetchNodes(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, nodes, 20)
}
