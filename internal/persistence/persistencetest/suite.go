// Package persistencetest holds helpers shared by gateway and session tests:
// a behavioural suite every persistence.Gateway implementation must pass and
// a recording gateway with fault injection.
package persistencetest

import (
	"context"
	"testing"
	"time"

	"canvas-backend/internal/domain/graph"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/domain/shared"
	"canvas-backend/internal/domain/template"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SuiteOptions describes optional capabilities of the gateway under test.
type SuiteOptions struct {
	// AtomicInstantiate is set when InstantiateTemplate is implemented.
	AtomicInstantiate bool
	// ScopedEndpoints is set when CreateEdge checks that both endpoints
	// belong to the edge's project. Otherwise the database constraints are
	// trusted and the check is not exercised.
	ScopedEndpoints bool
}

// RunGatewaySuite exercises the Gateway contract against fresh gateways
// returned by newGateway.
func RunGatewaySuite(t *testing.T, newGateway func(t *testing.T) persistence.Gateway, opts SuiteOptions) {
	t.Run("project lifecycle", func(t *testing.T) { testProjectLifecycle(t, newGateway(t)) })
	t.Run("node round trip", func(t *testing.T) { testNodeRoundTrip(t, newGateway(t)) })
	t.Run("edge endpoints and cascade", func(t *testing.T) { testEdgeCascade(t, newGateway(t)) })
	if opts.ScopedEndpoints {
		t.Run("edge endpoints stay in project", func(t *testing.T) { testCrossProjectEdge(t, newGateway(t)) })
	}
	t.Run("project delete cascades", func(t *testing.T) { testProjectCascade(t, newGateway(t)) })
	t.Run("snapshots newest first", func(t *testing.T) { testSnapshots(t, newGateway(t)) })
	t.Run("templates", func(t *testing.T) { testTemplates(t, newGateway(t), opts) })
	t.Run("tasks", func(t *testing.T) { testTasks(t, newGateway(t)) })
	t.Run("grants", func(t *testing.T) { testGrants(t, newGateway(t)) })
}

// NewProject creates a project owned by "owner-1" and fails the test on error.
func NewProject(t *testing.T, gw persistence.Gateway, title string) *project.Project {
	t.Helper()
	p, err := gw.CreateProject(context.Background(), persistence.ProjectDraft{Title: title, OwnerID: "owner-1"})
	require.NoError(t, err)
	return p
}

// NewNode creates a node of the given variant and fails the test on error.
func NewNode(t *testing.T, gw persistence.Gateway, projectID string, v node.Variant, pos shared.Position) *node.Node {
	t.Helper()
	n, err := gw.CreateNode(context.Background(), persistence.NodeDraft{
		ProjectID: projectID,
		Variant:   v,
		Title:     v.DefaultTitle(),
		Position:  pos,
		Payload:   node.DefaultPayload(v),
		CreatedBy: "owner-1",
	})
	require.NoError(t, err)
	return n
}

func testProjectLifecycle(t *testing.T, gw persistence.Gateway) {
	ctx := context.Background()

	_, err := gw.CreateProject(ctx, persistence.ProjectDraft{Title: "no owner"})
	require.Error(t, err)
	assert.True(t, cerrors.IsValidation(err))

	p, err := gw.CreateProject(ctx, persistence.ProjectDraft{
		Title: "Roadmap", OwnerID: "owner-1", Tags: []string{"q3"}, Collaborators: []string{"u2"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := gw.FetchProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Roadmap", got.Title)
	assert.Equal(t, []string{"q3"}, got.Tags)

	title := "Roadmap v2"
	updated, err := gw.UpdateProject(ctx, p.ID, persistence.ProjectPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, []string{"u2"}, updated.Collaborators)

	NewProject(t, gw, "Other")
	mine, err := gw.ListProjects(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, p.ID, mine[0].ID)

	require.NoError(t, gw.DeleteProject(ctx, p.ID))
	_, err = gw.FetchProject(ctx, p.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, cerrors.ErrRecordNotFound)
	var pe *cerrors.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, persistence.OpFetchProject, pe.Operation)
}

func testNodeRoundTrip(t *testing.T, gw persistence.Gateway) {
	ctx := context.Background()
	p := NewProject(t, gw, "Nodes")
	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	content := "details"
	created, err := gw.CreateNode(ctx, persistence.NodeDraft{
		ProjectID: p.ID,
		Variant:   node.VariantTask,
		Title:     "Ship it",
		Content:   &content,
		Position:  shared.Position{X: 12.5, Y: -4},
		Size:      &shared.Size{Width: 240, Height: 120},
		Style:     map[string]any{"color": "teal"},
		Payload:   node.TaskPayload{Priority: shared.PriorityHigh, Status: shared.TaskPending, DueDate: &due},
		Extra:     map[string]any{"estimate": "3d"},
		CreatedBy: "owner-1",
	})
	require.NoError(t, err)

	pos := shared.Position{X: 100, Y: 200}
	_, err = gw.UpdateNode(ctx, created.ID, persistence.NodePatch{Position: &pos})
	require.NoError(t, err)

	nodes, err := gw.FetchNodes(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	n := nodes[0]
	assert.Equal(t, created.ID, n.ID)
	assert.Equal(t, node.VariantTask, n.Variant)
	assert.Equal(t, pos, n.Position)
	require.NotNil(t, n.Content)
	assert.Equal(t, content, *n.Content)
	assert.Equal(t, &shared.Size{Width: 240, Height: 120}, n.Size)
	assert.Equal(t, map[string]any{"color": "teal"}, n.Style)
	assert.Equal(t, map[string]any{"estimate": "3d"}, n.Extra)
	tp, ok := n.Payload.(node.TaskPayload)
	require.True(t, ok)
	assert.Equal(t, shared.PriorityHigh, tp.Priority)
	require.NotNil(t, tp.DueDate)
	assert.True(t, due.Equal(*tp.DueDate))

	_, err = gw.CreateNode(ctx, persistence.NodeDraft{ProjectID: p.ID, Variant: "sticker", CreatedBy: "owner-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, cerrors.ErrUnknownVariant)

	_, err = gw.UpdateNode(ctx, "missing", persistence.NodePatch{Position: &pos})
	assert.ErrorIs(t, err, cerrors.ErrRecordNotFound)
}

func testEdgeCascade(t *testing.T, gw persistence.Gateway) {
	ctx := context.Background()
	p := NewProject(t, gw, "Edges")
	a := NewNode(t, gw, p.ID, node.VariantNote, shared.Origin)
	b := NewNode(t, gw, p.ID, node.VariantNote, shared.Origin)
	c := NewNode(t, gw, p.ID, node.VariantNote, shared.Origin)

	_, err := gw.CreateEdge(ctx, persistence.EdgeDraft{ProjectID: p.ID, SourceID: a.ID, TargetID: "ghost", CreatedBy: "owner-1"})
	require.Error(t, err)

	label := "blocks"
	ab, err := gw.CreateEdge(ctx, persistence.EdgeDraft{ProjectID: p.ID, SourceID: a.ID, TargetID: b.ID, Label: &label, CreatedBy: "owner-1"})
	require.NoError(t, err)
	_, err = gw.CreateEdge(ctx, persistence.EdgeDraft{ProjectID: p.ID, SourceID: c.ID, TargetID: a.ID, CreatedBy: "owner-1"})
	require.NoError(t, err)
	bc, err := gw.CreateEdge(ctx, persistence.EdgeDraft{ProjectID: p.ID, SourceID: b.ID, TargetID: c.ID, CreatedBy: "owner-1"})
	require.NoError(t, err)

	newLabel := "unblocks"
	updated, err := gw.UpdateEdge(ctx, ab.ID, persistence.EdgePatch{Label: &newLabel})
	require.NoError(t, err)
	assert.Equal(t, newLabel, *updated.Label)

	require.NoError(t, gw.DeleteNode(ctx, a.ID))
	edges, err := gw.FetchEdges(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, bc.ID, edges[0].ID)

	require.NoError(t, gw.DeleteEdge(ctx, bc.ID))
	edges, err = gw.FetchEdges(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func testCrossProjectEdge(t *testing.T, gw persistence.Gateway) {
	ctx := context.Background()
	p := NewProject(t, gw, "Here")
	other := NewProject(t, gw, "Elsewhere")
	a := NewNode(t, gw, p.ID, node.VariantNote, shared.Origin)
	foreign := NewNode(t, gw, other.ID, node.VariantNote, shared.Origin)

	_, err := gw.CreateEdge(ctx, persistence.EdgeDraft{ProjectID: p.ID, SourceID: a.ID, TargetID: foreign.ID, CreatedBy: "owner-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, cerrors.ErrProjectMismatch)
	var pe *cerrors.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, persistence.OpCreateEdge, pe.Operation)

	_, err = gw.CreateEdge(ctx, persistence.EdgeDraft{ProjectID: other.ID, SourceID: a.ID, TargetID: foreign.ID, CreatedBy: "owner-1"})
	assert.ErrorIs(t, err, cerrors.ErrProjectMismatch)

	for _, id := range []string{p.ID, other.ID} {
		edges, err := gw.FetchEdges(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, edges)
	}
}

func testProjectCascade(t *testing.T, gw persistence.Gateway) {
	ctx := context.Background()
	p := NewProject(t, gw, "Doomed")
	a := NewNode(t, gw, p.ID, node.VariantGoal, shared.Origin)
	b := NewNode(t, gw, p.ID, node.VariantGoal, shared.Origin)
	_, err := gw.CreateEdge(ctx, persistence.EdgeDraft{ProjectID: p.ID, SourceID: a.ID, TargetID: b.ID, CreatedBy: "owner-1"})
	require.NoError(t, err)

	require.NoError(t, gw.DeleteProject(ctx, p.ID))

	nodes, err := gw.FetchNodes(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, nodes)
	edges, err := gw.FetchEdges(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func testSnapshots(t *testing.T, gw persistence.Gateway) {
	ctx := context.Background()
	p := NewProject(t, gw, "History")
	a := NewNode(t, gw, p.ID, node.VariantMilestone, shared.Origin)

	comment := "first"
	first, err := gw.CreateSnapshot(ctx, persistence.SnapshotDraft{
		ProjectID: p.ID,
		Graph:     graph.Snapshot{ProjectID: p.ID, Nodes: []*node.Node{a}},
		Comment:   &comment,
		CreatedBy: "owner-1",
	})
	require.NoError(t, err)
	second, err := gw.CreateSnapshot(ctx, persistence.SnapshotDraft{ProjectID: p.ID, CreatedBy: "owner-1"})
	require.NoError(t, err)

	list, err := gw.ListSnapshots(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[0].CreatedAt.Before(list[1].CreatedAt))
	assert.ElementsMatch(t, []string{first.ID, second.ID}, []string{list[0].ID, list[1].ID})

	for _, s := range list {
		if s.ID != first.ID {
			continue
		}
		require.Len(t, s.Graph.Nodes, 1)
		assert.Equal(t, a.ID, s.Graph.Nodes[0].ID)
		require.NotNil(t, s.Comment)
		assert.Equal(t, comment, *s.Comment)
	}
}

func testTemplates(t *testing.T, gw persistence.Gateway, opts SuiteOptions) {
	ctx := context.Background()
	tpl, err := gw.CreateTemplate(ctx, persistence.TemplateDraft{
		Title:    "Sprint",
		Category: "planning",
		IsPublic: true,
		Elements: []template.Element{
			{LocalID: "e1", Variant: node.VariantGoal, Title: "Goal"},
			{LocalID: "e2", Variant: node.VariantTask, Title: "Task", Position: shared.Position{X: 0, Y: 150}},
		},
		Connections: []template.Connection{{LocalID: "c1", Source: "e1", Target: "e2"}},
		CreatedBy:   "owner-1",
	})
	require.NoError(t, err)

	got, err := gw.FetchTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sprint", got.Title)
	require.Len(t, got.Elements, 2)
	assert.Equal(t, node.VariantTask, got.Elements[1].Variant)
	require.Len(t, got.Connections, 1)

	all, err := gw.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	projectID, err := gw.InstantiateTemplate(ctx, persistence.InstantiateRequest{
		TemplateID: tpl.ID, OwnerID: "owner-1", Title: "From template",
	})
	if !opts.AtomicInstantiate {
		require.Error(t, err)
		assert.ErrorIs(t, err, cerrors.ErrRPCUnavailable)
		return
	}
	require.NoError(t, err)
	p, err := gw.FetchProject(ctx, projectID)
	require.NoError(t, err)
	require.NotNil(t, p.SourceTemplateID)
	assert.Equal(t, tpl.ID, *p.SourceTemplateID)
	nodes, err := gw.FetchNodes(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
	edges, err := gw.FetchEdges(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func testTasks(t *testing.T, gw persistence.Gateway) {
	ctx := context.Background()
	p := NewProject(t, gw, "Tasks")
	n := NewNode(t, gw, p.ID, node.VariantTask, shared.Origin)

	task, err := gw.CreateTask(ctx, persistence.TaskDraft{
		ProjectID: p.ID, NodeID: &n.ID, Title: "Write docs",
		Status: shared.TaskPending, Priority: shared.PriorityMedium,
	})
	require.NoError(t, err)

	done := shared.TaskCompleted
	updated, err := gw.UpdateTask(ctx, task.ID, persistence.TaskPatch{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, done, updated.Status)

	require.NoError(t, gw.DeleteNode(ctx, n.ID))
	tasks, err := gw.ListTasks(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Nil(t, tasks[0].NodeID)

	require.NoError(t, gw.DeleteTask(ctx, task.ID))
	tasks, err = gw.ListTasks(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func testGrants(t *testing.T, gw persistence.Gateway) {
	ctx := context.Background()
	p := NewProject(t, gw, "Shared")

	g1, err := gw.GrantAccess(ctx, persistence.GrantDraft{ProjectID: p.ID, UserID: "u2", Permission: project.PermissionView})
	require.NoError(t, err)
	_, err = gw.GrantAccess(ctx, persistence.GrantDraft{ProjectID: p.ID, UserID: "u2", Permission: project.PermissionEdit})
	require.NoError(t, err)

	grants, err := gw.ListGrants(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, project.PermissionEdit, grants[0].Permission)

	require.NoError(t, gw.RevokeAccess(ctx, g1.ID))
	grants, err = gw.ListGrants(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}
