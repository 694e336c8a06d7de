package templates

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"canvas-backend/internal/config"
	"canvas-backend/internal/domain/graph"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/shared"
	"canvas-backend/internal/domain/template"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/identity"
	"canvas-backend/internal/observability"
	"canvas-backend/internal/persistence"
	"canvas-backend/internal/persistence/memory"
	"canvas-backend/internal/persistence/persistencetest"
	"canvas-backend/internal/persistence/sqlstore"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "owner-1"

// rpcGateway stubs the atomic instantiate procedure.
type rpcGateway struct {
	persistence.Gateway
	projectID string
	err       error

	mu    sync.Mutex
	calls []persistence.InstantiateRequest
}

func (g *rpcGateway) InstantiateTemplate(_ context.Context, req persistence.InstantiateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	return g.projectID, g.err
}

func label(s string) *string { return &s }

func newTemplate(t *testing.T, gw persistence.Gateway, connections ...template.Connection) *template.Template {
	t.Helper()
	tpl, err := gw.CreateTemplate(context.Background(), persistence.TemplateDraft{
		Title:       "Sprint board",
		Description: "Two step plan",
		Category:    "planning",
		Elements: []template.Element{
			{LocalID: "e1", Variant: node.VariantTask, Title: "Design", Position: shared.Position{X: 0, Y: 0}},
			{LocalID: "e2", Variant: node.VariantNote, Position: shared.Position{X: 300, Y: 0}},
		},
		Connections: connections,
		CreatedBy:   "author",
	})
	require.NoError(t, err)
	return tpl
}

func TestInstantiateRemapsLocalIdentifiers(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	tpl := newTemplate(t, gw, template.Connection{LocalID: "c1", Source: "e1", Target: "e2", Label: label("then")})
	metrics := observability.NewCollector("test")
	inst := NewInstantiator(gw, identity.Static(owner), config.Templates{}, nil, metrics)

	res, err := inst.Instantiate(ctx, tpl.ID, owner, "My sprint", nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyClient, res.Strategy)
	assert.Empty(t, res.Warnings)

	p, err := gw.FetchProject(ctx, res.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, "My sprint", p.Title)
	assert.Equal(t, "Two step plan", p.Description)
	assert.Equal(t, owner, p.OwnerID)
	require.NotNil(t, p.SourceTemplateID)
	assert.Equal(t, tpl.ID, *p.SourceTemplateID)

	nodes, err := gw.FetchNodes(ctx, res.ProjectID)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	edges, err := gw.FetchEdges(ctx, res.ProjectID)
	require.NoError(t, err)
	require.Len(t, edges, 1)

	e := edges[0]
	assert.Equal(t, res.NodeIDs["e1"], e.SourceID)
	assert.Equal(t, res.NodeIDs["e2"], e.TargetID)
	assert.NotContains(t, []string{"e1", "e2"}, e.SourceID)
	assert.NotContains(t, []string{"e1", "e2"}, e.TargetID)
	assert.Equal(t, res.EdgeIDs["c1"], e.ID)
	require.NotNil(t, e.Label)
	assert.Equal(t, "then", *e.Label)

	byID := map[string]*node.Node{}
	for _, n := range nodes {
		byID[n.ID] = n
	}
	assert.Equal(t, "Design", byID[res.NodeIDs["e1"]].Title)
	assert.Equal(t, node.VariantNote.DefaultTitle(), byID[res.NodeIDs["e2"]].Title)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TemplatesInstantiated.WithLabelValues(StrategyClient)))
}

func TestInstantiateSkipsBadConnections(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	tpl := newTemplate(t, gw,
		template.Connection{LocalID: "c1", Source: "e1", Target: "e2"},
		template.Connection{LocalID: "c2", Source: "e1", Target: "ghost"},
		template.Connection{LocalID: "c3", Source: "e2", Target: "e2"},
		template.Connection{LocalID: "c4", Source: "e1", Target: "e2"},
	)
	metrics := observability.NewCollector("test")
	inst := NewInstantiator(gw, identity.Static(owner), config.Templates{}, nil, metrics)

	res, err := inst.Instantiate(ctx, tpl.ID, "", "", nil)
	require.NoError(t, err)

	require.Len(t, res.Warnings, 3)
	reasons := map[string]string{}
	for _, w := range res.Warnings {
		assert.Equal(t, tpl.ID, w.TemplateID)
		reasons[w.ConnectionID] = w.Reason
	}
	assert.Equal(t, map[string]string{
		"c2": ReasonUnresolved,
		"c3": ReasonSelf,
		"c4": ReasonDuplicate,
	}, reasons)

	p, err := gw.FetchProject(ctx, res.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, "Sprint board", p.Title)
	edges, err := gw.FetchEdges(ctx, res.ProjectID)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.TemplateWarnings))
}

func TestInstantiateReportsSameWarningsOnBothStrategies(t *testing.T) {
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, sqlstore.SQLite, filepath.Join(t.TempDir(), "canvas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tpl := newTemplate(t, store,
		template.Connection{LocalID: "c1", Source: "e1", Target: "e2"},
		template.Connection{LocalID: "c2", Source: "e1", Target: "e2"},
		template.Connection{LocalID: "c3", Source: "e1", Target: "e1"},
		template.Connection{LocalID: "c4", Source: "e1", Target: "e9"},
	)
	want := map[string]string{
		"c2": ReasonDuplicate,
		"c3": ReasonSelf,
		"c4": ReasonUnresolved,
	}

	tests := []struct {
		name     string
		remote   bool
		strategy string
	}{
		{"client", false, StrategyClient},
		{"remote", true, StrategyRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := observability.NewCollector("test")
			inst := NewInstantiator(store, identity.Static(owner), config.Templates{PreferRemote: tt.remote}, nil, metrics)

			res, err := inst.Instantiate(ctx, tpl.ID, owner, "", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.strategy, res.Strategy)

			reasons := map[string]string{}
			for _, w := range res.Warnings {
				assert.Equal(t, tpl.ID, w.TemplateID)
				reasons[w.ConnectionID] = w.Reason
			}
			assert.Equal(t, want, reasons)
			assert.Equal(t, 3.0, testutil.ToFloat64(metrics.TemplateWarnings))

			edges, err := store.FetchEdges(ctx, res.ProjectID)
			require.NoError(t, err)
			require.Len(t, edges, 1)
			assert.NotEqual(t, edges[0].SourceID, edges[0].TargetID)
		})
	}
}

func TestPlanResolveBeforeNodesExist(t *testing.T) {
	tpl := &template.Template{
		ID: "tpl-1",
		Elements: []template.Element{
			{LocalID: "a", Variant: node.VariantNote},
			{LocalID: "b", Variant: node.VariantNote},
		},
		Connections: []template.Connection{
			{LocalID: "ab", Source: "a", Target: "b"},
			{LocalID: "ba", Source: "b", Target: "a"},
			{LocalID: "ab-again", Source: "a", Target: "b"},
		},
	}
	plan, err := persistence.PlanTemplate(tpl, "", owner)
	require.NoError(t, err)

	edges, warnings := plan.Resolve(tpl.ID, plan.Locals())
	require.Len(t, edges, 2)
	assert.Equal(t, "ab", edges[0].LocalID)
	assert.Equal(t, "ba", edges[1].LocalID)
	require.Len(t, warnings, 1)
	assert.Equal(t, "ab-again", warnings[0].ConnectionID)
	assert.Equal(t, ReasonDuplicate, warnings[0].Reason)
}

func TestInstantiatePrefersRemoteProcedure(t *testing.T) {
	base := memory.New()
	tpl := newTemplate(t, base)
	rec := persistencetest.NewRecorder(base)
	gw := &rpcGateway{Gateway: rec, projectID: "project-42"}
	inst := NewInstantiator(gw, identity.Static(owner), config.Templates{PreferRemote: true}, nil, nil)

	res, err := inst.Instantiate(context.Background(), tpl.ID, owner, "", label("copy"))
	require.NoError(t, err)
	assert.Equal(t, "project-42", res.ProjectID)
	assert.Equal(t, StrategyRemote, res.Strategy)

	require.Len(t, gw.calls, 1)
	assert.Equal(t, "Sprint board", gw.calls[0].Title)
	assert.Equal(t, owner, gw.calls[0].OwnerID)
	require.NotNil(t, gw.calls[0].Description)
	assert.Equal(t, "copy", *gw.calls[0].Description)
	assert.Zero(t, rec.Count(persistence.OpCreateProject))
	assert.Zero(t, rec.Count(persistence.OpCreateNode))
}

func TestInstantiateFallsBackWhenProcedureUnavailable(t *testing.T) {
	base := memory.New()
	tpl := newTemplate(t, base, template.Connection{LocalID: "c1", Source: "e1", Target: "e2"})
	rec := persistencetest.NewRecorder(base)
	inst := NewInstantiator(rec, identity.Static(owner), config.Templates{PreferRemote: true}, nil, nil)

	res, err := inst.Instantiate(context.Background(), tpl.ID, owner, "Copy", nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyClient, res.Strategy)
	assert.Equal(t, 1, rec.Count(persistence.OpInstantiateTemplate))
	assert.Equal(t, 1, rec.Count(persistence.OpCreateProject))
	assert.Equal(t, 2, rec.Count(persistence.OpCreateNode))
	assert.Equal(t, 1, rec.Count(persistence.OpCreateEdge))

	calls := rec.Calls(persistence.OpCreateNode, persistence.OpCreateEdge)
	assert.Equal(t, persistence.OpCreateEdge, calls[len(calls)-1].Op)
}

func TestInstantiateSurfacesRemoteFailure(t *testing.T) {
	base := memory.New()
	tpl := newTemplate(t, base)
	rec := persistencetest.NewRecorder(base)
	boom := cerrors.NewPersistenceError(persistence.OpInstantiateTemplate, errors.New("permission denied"))
	gw := &rpcGateway{Gateway: rec, err: boom}
	inst := NewInstantiator(gw, identity.Static(owner), config.Templates{PreferRemote: true}, nil, nil)

	_, err := inst.Instantiate(context.Background(), tpl.ID, owner, "Copy", nil)
	var perr *cerrors.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, persistence.OpInstantiateTemplate, perr.Operation)
	assert.Zero(t, rec.Count(persistence.OpCreateProject))
}

func TestInstantiateDiscardsProjectWhenElementFails(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	tpl := newTemplate(t, base)
	rec := persistencetest.NewRecorder(base)
	var mu sync.Mutex
	creates := 0
	rec.SetHook(persistence.OpCreateNode, func(context.Context, persistencetest.Call) error {
		mu.Lock()
		defer mu.Unlock()
		creates++
		if creates == 2 {
			return errors.New("timeout")
		}
		return nil
	})
	inst := NewInstantiator(rec, identity.Static(owner), config.Templates{}, nil, nil)

	_, err := inst.Instantiate(ctx, tpl.ID, owner, "Copy", nil)
	require.Error(t, err)
	var perr *cerrors.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, persistence.OpCreateNode, perr.Operation)

	assert.Equal(t, 1, rec.Count(persistence.OpDeleteProject))
	projects, err := base.ListProjects(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestInstantiateValidatesInput(t *testing.T) {
	rec := persistencetest.NewRecorder(memory.New())

	inst := NewInstantiator(rec, identity.Static(owner), config.Templates{}, nil, nil)
	_, err := inst.Instantiate(context.Background(), "", owner, "x", nil)
	assert.ErrorIs(t, err, cerrors.ErrMissingID)

	anonymous := NewInstantiator(rec, identity.Static(""), config.Templates{}, nil, nil)
	_, err = anonymous.Instantiate(context.Background(), "tpl", "", "x", nil)
	assert.ErrorIs(t, err, cerrors.ErrUnauthenticated)

	assert.Empty(t, rec.Calls())
}

func TestSaveAsTemplateRoundTrip(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	p := persistencetest.NewProject(t, gw, "Source")
	a := persistencetest.NewNode(t, gw, p.ID, node.VariantTask, shared.Position{X: 0, Y: 0})
	b := persistencetest.NewNode(t, gw, p.ID, node.VariantGoal, shared.Position{X: 400, Y: 0})
	_, err := gw.CreateEdge(ctx, persistence.EdgeDraft{ProjectID: p.ID, SourceID: a.ID, TargetID: b.ID, Label: label("leads to"), CreatedBy: owner})
	require.NoError(t, err)
	nodes, err := gw.FetchNodes(ctx, p.ID)
	require.NoError(t, err)
	edges, err := gw.FetchEdges(ctx, p.ID)
	require.NoError(t, err)
	g := graph.Snapshot{ProjectID: p.ID, Nodes: nodes, Edges: edges}

	inst := NewInstantiator(gw, identity.Static(owner), config.Templates{}, nil, nil)
	tpl, err := inst.SaveAsTemplate(ctx, g, TemplateMeta{Title: "Reusable", Category: "planning"})
	require.NoError(t, err)
	assert.Equal(t, owner, tpl.CreatedBy)

	require.Len(t, tpl.Elements, 2)
	require.Len(t, tpl.Connections, 1)
	locals := map[string]node.Variant{}
	for _, el := range tpl.Elements {
		locals[el.LocalID] = el.Variant
	}
	assert.Contains(t, locals, "el-1")
	assert.Contains(t, locals, "el-2")
	conn := tpl.Connections[0]
	assert.Equal(t, "conn-1", conn.LocalID)
	assert.Equal(t, node.VariantTask, locals[conn.Source])
	assert.Equal(t, node.VariantGoal, locals[conn.Target])

	res, err := inst.Instantiate(ctx, tpl.ID, owner, "Copy", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	copied, err := gw.FetchEdges(ctx, res.ProjectID)
	require.NoError(t, err)
	require.Len(t, copied, 1)
	assert.Equal(t, res.NodeIDs[conn.Source], copied[0].SourceID)
	assert.Equal(t, res.NodeIDs[conn.Target], copied[0].TargetID)
}

func TestSaveAsTemplateRequiresTitle(t *testing.T) {
	rec := persistencetest.NewRecorder(memory.New())
	inst := NewInstantiator(rec, identity.Static(owner), config.Templates{}, nil, nil)

	_, err := inst.SaveAsTemplate(context.Background(), graph.Snapshot{}, TemplateMeta{Title: "  "})
	var uerr *cerrors.UnifiedError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, cerrors.ErrorTypeValidation, uerr.Kind)
	assert.Zero(t, rec.Count(persistence.OpCreateTemplate))
}

func TestBlueprintDropsEdgesOutsideGraph(t *testing.T) {
	g := graph.Snapshot{
		Nodes: []*node.Node{{ID: "n1", Variant: node.VariantNote, Title: "Only", Payload: node.NotePayload{}}},
	}
	els, conns := Blueprint(g)
	require.Len(t, els, 1)
	assert.Equal(t, "el-1", els[0].LocalID)
	assert.Empty(t, conns)
}
