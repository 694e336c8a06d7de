package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"canvas-backend/internal/domain/edge"
	"canvas-backend/internal/domain/history"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/domain/template"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/persistence"

	"github.com/google/uuid"
)

// Gateway is an in-process persistence.Gateway. Deleting a project removes
// its nodes, edges, tasks, snapshots and grants; deleting a node removes the
// edges touching it and unlinks its tasks. It has no atomic instantiate
// procedure. It is safe for concurrent use.
type Gateway struct {
	mu  sync.RWMutex
	seq uint64
	now func() time.Time
	ids func() string

	projects  *table
	nodes     *table
	edges     *table
	snapshots *table
	templates *table
	tasks     *table
	grants    *table
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithIDs replaces the identifier generator.
func WithIDs(next func() string) Option {
	return func(g *Gateway) { g.ids = next }
}

// New returns an empty Gateway.
func New(opts ...Option) *Gateway {
	g := &Gateway{
		now:       func() time.Time { return time.Now().UTC() },
		ids:       func() string { return uuid.New().String() },
		projects:  newTable(persistence.TableProjects),
		nodes:     newTable(persistence.TableNodes),
		edges:     newTable(persistence.TableEdges),
		snapshots: newTable(persistence.TableSnapshots),
		templates: newTable(persistence.TableTemplates),
		tasks:     newTable(persistence.TableTasks),
		grants:    newTable(persistence.TableGrants),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) nextSeq() uint64 {
	g.seq++
	return g.seq
}

func fail(op string, err error) error {
	return cerrors.NewPersistenceError(op, err)
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

func (g *Gateway) FetchProject(ctx context.Context, id string) (*project.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpFetchProject, err)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	rec, err := get[persistence.ProjectRecord](g.projects, id)
	if err != nil {
		return nil, fail(persistence.OpFetchProject, err)
	}
	p, err := persistence.DecodeProject(rec)
	return p, fail(persistence.OpFetchProject, err)
}

func (g *Gateway) ListProjects(ctx context.Context, ownerID string) ([]*project.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpListProjects, err)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	recs, err := scan(g.projects, func(r persistence.ProjectRecord) bool {
		if ownerID == "" || r.OwnerID == ownerID {
			return true
		}
		for _, c := range r.Collaborators {
			if c == ownerID {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, fail(persistence.OpListProjects, err)
	}
	out := make([]*project.Project, 0, len(recs))
	for _, r := range recs {
		p, err := persistence.DecodeProject(r)
		if err != nil {
			return nil, fail(persistence.OpListProjects, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (g *Gateway) CreateProject(ctx context.Context, draft persistence.ProjectDraft) (*project.Project, error) {
	if err := draft.Validate(); err != nil {
		return nil, fail(persistence.OpCreateProject, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpCreateProject, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.insertProject(draft)
}

func (g *Gateway) insertProject(draft persistence.ProjectDraft) (*project.Project, error) {
	now := g.now()
	p := &project.Project{
		ID:               g.ids(),
		Title:            draft.Title,
		Description:      draft.Description,
		OwnerID:          draft.OwnerID,
		IsTemplate:       draft.IsTemplate,
		SourceTemplateID: draft.SourceTemplateID,
		IsPublic:         draft.IsPublic,
		Collaborators:    draft.Collaborators,
		Tags:             draft.Tags,
		Metadata:         draft.Metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := put(g.projects, g.nextSeq(), p.ID, persistence.EncodeProject(p)); err != nil {
		return nil, fail(persistence.OpCreateProject, err)
	}
	return p.Clone(), nil
}

func (g *Gateway) UpdateProject(ctx context.Context, id string, patch persistence.ProjectPatch) (*project.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpUpdateProject, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := get[persistence.ProjectRecord](g.projects, id)
	if err != nil {
		return nil, fail(persistence.OpUpdateProject, err)
	}
	p, err := persistence.DecodeProject(rec)
	if err != nil {
		return nil, fail(persistence.OpUpdateProject, err)
	}
	patch.Apply(p)
	p.UpdatedAt = g.now()
	if err := put(g.projects, 0, id, persistence.EncodeProject(p)); err != nil {
		return nil, fail(persistence.OpUpdateProject, err)
	}
	return p, nil
}

// DeleteProject removes the project and everything hanging off it. Deleting
// an absent project succeeds.
func (g *Gateway) DeleteProject(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fail(persistence.OpDeleteProject, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.projects.remove(id)
	for _, t := range []*table{g.nodes, g.edges, g.tasks, g.snapshots, g.grants} {
		if err := removeWhere(t, func(r projectScoped) bool { return r.ProjectID == id }); err != nil {
			return fail(persistence.OpDeleteProject, err)
		}
	}
	return nil
}

type projectScoped struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
}

// ---------------------------------------------------------------------------
// Nodes
// ---------------------------------------------------------------------------

func (g *Gateway) FetchNodes(ctx context.Context, projectID string) ([]*node.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpFetchNodes, err)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	recs, err := scan(g.nodes, func(r persistence.NodeRecord) bool { return r.ProjectID == projectID })
	if err != nil {
		return nil, fail(persistence.OpFetchNodes, err)
	}
	out := make([]*node.Node, 0, len(recs))
	for _, r := range recs {
		n, err := persistence.DecodeNode(r)
		if err != nil {
			return nil, fail(persistence.OpFetchNodes, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (g *Gateway) CreateNode(ctx context.Context, draft persistence.NodeDraft) (*node.Node, error) {
	if err := draft.Validate(); err != nil {
		return nil, fail(persistence.OpCreateNode, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpCreateNode, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.insertNode(draft)
}

func (g *Gateway) insertNode(draft persistence.NodeDraft) (*node.Node, error) {
	if !g.projects.has(draft.ProjectID) {
		return nil, fail(persistence.OpCreateNode, notFound(persistence.TableProjects, draft.ProjectID))
	}
	n := draft.Node(g.ids(), g.now())
	if err := put(g.nodes, g.nextSeq(), n.ID, persistence.EncodeNode(n)); err != nil {
		return nil, fail(persistence.OpCreateNode, err)
	}
	return n, nil
}

func (g *Gateway) UpdateNode(ctx context.Context, id string, patch persistence.NodePatch) (*node.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpUpdateNode, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := get[persistence.NodeRecord](g.nodes, id)
	if err != nil {
		return nil, fail(persistence.OpUpdateNode, err)
	}
	n, err := persistence.DecodeNode(rec)
	if err != nil {
		return nil, fail(persistence.OpUpdateNode, err)
	}
	patch.Apply(n)
	if err := n.Validate(); err != nil {
		return nil, fail(persistence.OpUpdateNode, err)
	}
	n.UpdatedAt = g.now()
	if err := put(g.nodes, 0, id, persistence.EncodeNode(n)); err != nil {
		return nil, fail(persistence.OpUpdateNode, err)
	}
	return n, nil
}

// DeleteNode removes the node, the edges touching it and unlinks its tasks.
// Deleting an absent node succeeds.
func (g *Gateway) DeleteNode(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fail(persistence.OpDeleteNode, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.nodes.remove(id) {
		return nil
	}
	err := removeWhere(g.edges, func(r persistence.EdgeRecord) bool {
		return r.SourceID == id || r.TargetID == id
	})
	if err != nil {
		return fail(persistence.OpDeleteNode, err)
	}
	tasks, err := scan(g.tasks, func(r persistence.TaskRecord) bool {
		return r.NodeID != nil && *r.NodeID == id
	})
	if err != nil {
		return fail(persistence.OpDeleteNode, err)
	}
	for _, t := range tasks {
		t.NodeID = nil
		if err := put(g.tasks, 0, t.ID, t); err != nil {
			return fail(persistence.OpDeleteNode, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Edges
// ---------------------------------------------------------------------------

func (g *Gateway) FetchEdges(ctx context.Context, projectID string) ([]*edge.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpFetchEdges, err)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	recs, err := scan(g.edges, func(r persistence.EdgeRecord) bool { return r.ProjectID == projectID })
	if err != nil {
		return nil, fail(persistence.OpFetchEdges, err)
	}
	out := make([]*edge.Edge, 0, len(recs))
	for _, r := range recs {
		e, err := persistence.DecodeEdge(r)
		if err != nil {
			return nil, fail(persistence.OpFetchEdges, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (g *Gateway) CreateEdge(ctx context.Context, draft persistence.EdgeDraft) (*edge.Edge, error) {
	if err := draft.Validate(); err != nil {
		return nil, fail(persistence.OpCreateEdge, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpCreateEdge, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.insertEdge(draft)
}

func (g *Gateway) insertEdge(draft persistence.EdgeDraft) (*edge.Edge, error) {
	for _, id := range []string{draft.SourceID, draft.TargetID} {
		endpoint, err := get[projectScoped](g.nodes, id)
		if err != nil {
			return nil, fail(persistence.OpCreateEdge, err)
		}
		if endpoint.ProjectID != draft.ProjectID {
			return nil, fail(persistence.OpCreateEdge, fmt.Errorf("%w: node %s is not in project %s",
				cerrors.ErrProjectMismatch, id, draft.ProjectID))
		}
	}
	now := g.now()
	e := &edge.Edge{
		ID:        g.ids(),
		ProjectID: draft.ProjectID,
		SourceID:  draft.SourceID,
		TargetID:  draft.TargetID,
		Label:     draft.Label,
		Style:     draft.Style,
		Metadata:  draft.Metadata,
		CreatedBy: draft.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := put(g.edges, g.nextSeq(), e.ID, persistence.EncodeEdge(e)); err != nil {
		return nil, fail(persistence.OpCreateEdge, err)
	}
	return e.Clone(), nil
}

func (g *Gateway) UpdateEdge(ctx context.Context, id string, patch persistence.EdgePatch) (*edge.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpUpdateEdge, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := get[persistence.EdgeRecord](g.edges, id)
	if err != nil {
		return nil, fail(persistence.OpUpdateEdge, err)
	}
	e, err := persistence.DecodeEdge(rec)
	if err != nil {
		return nil, fail(persistence.OpUpdateEdge, err)
	}
	patch.Apply(e)
	e.UpdatedAt = g.now()
	if err := put(g.edges, 0, id, persistence.EncodeEdge(e)); err != nil {
		return nil, fail(persistence.OpUpdateEdge, err)
	}
	return e, nil
}

// DeleteEdge removes the edge. Deleting an absent edge succeeds.
func (g *Gateway) DeleteEdge(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fail(persistence.OpDeleteEdge, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges.remove(id)
	return nil
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

func (g *Gateway) CreateSnapshot(ctx context.Context, draft persistence.SnapshotDraft) (*history.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpCreateSnapshot, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.projects.has(draft.ProjectID) {
		return nil, fail(persistence.OpCreateSnapshot, notFound(persistence.TableProjects, draft.ProjectID))
	}
	s := &history.Snapshot{
		ID:        g.ids(),
		ProjectID: draft.ProjectID,
		Graph:     draft.Graph.Clone(),
		Comment:   draft.Comment,
		CreatedBy: draft.CreatedBy,
		CreatedAt: g.now(),
	}
	s.Graph.ProjectID = draft.ProjectID
	if err := put(g.snapshots, g.nextSeq(), s.ID, persistence.EncodeSnapshot(s)); err != nil {
		return nil, fail(persistence.OpCreateSnapshot, err)
	}
	return s, nil
}

func (g *Gateway) ListSnapshots(ctx context.Context, projectID string) ([]*history.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpListSnapshots, err)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	recs, err := scan(g.snapshots, func(r persistence.SnapshotRecord) bool { return r.ProjectID == projectID })
	if err != nil {
		return nil, fail(persistence.OpListSnapshots, err)
	}
	out := make([]*history.Snapshot, 0, len(recs))
	for _, r := range recs {
		s, err := persistence.DecodeSnapshot(r)
		if err != nil {
			return nil, fail(persistence.OpListSnapshots, err)
		}
		out = append(out, s)
	}
	history.SortNewestFirst(out)
	return out, nil
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

func (g *Gateway) FetchTemplate(ctx context.Context, id string) (*template.Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpFetchTemplate, err)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	rec, err := get[persistence.TemplateRecord](g.templates, id)
	if err != nil {
		return nil, fail(persistence.OpFetchTemplate, err)
	}
	t, err := persistence.DecodeTemplate(rec)
	return t, fail(persistence.OpFetchTemplate, err)
}

func (g *Gateway) ListTemplates(ctx context.Context) ([]*template.Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpListTemplates, err)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	recs, err := scan[persistence.TemplateRecord](g.templates, nil)
	if err != nil {
		return nil, fail(persistence.OpListTemplates, err)
	}
	out := make([]*template.Template, 0, len(recs))
	for _, r := range recs {
		t, err := persistence.DecodeTemplate(r)
		if err != nil {
			return nil, fail(persistence.OpListTemplates, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (g *Gateway) CreateTemplate(ctx context.Context, draft persistence.TemplateDraft) (*template.Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpCreateTemplate, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	t := &template.Template{
		ID:           g.ids(),
		Title:        draft.Title,
		Description:  draft.Description,
		Category:     draft.Category,
		IsOfficial:   draft.IsOfficial,
		IsPublic:     draft.IsPublic,
		Elements:     draft.Elements,
		Connections:  draft.Connections,
		ThumbnailURL: draft.ThumbnailURL,
		CreatedBy:    draft.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	rec := persistence.EncodeTemplate(t)
	if _, err := persistence.DecodeTemplate(rec); err != nil {
		return nil, fail(persistence.OpCreateTemplate, err)
	}
	if err := put(g.templates, g.nextSeq(), t.ID, rec); err != nil {
		return nil, fail(persistence.OpCreateTemplate, err)
	}
	return g.decodeTemplateLocked(t.ID, persistence.OpCreateTemplate)
}

func (g *Gateway) decodeTemplateLocked(id, op string) (*template.Template, error) {
	rec, err := get[persistence.TemplateRecord](g.templates, id)
	if err != nil {
		return nil, fail(op, err)
	}
	t, err := persistence.DecodeTemplate(rec)
	return t, fail(op, err)
}

// InstantiateTemplate is not available in process; callers fall back to
// client orchestration.
func (g *Gateway) InstantiateTemplate(context.Context, persistence.InstantiateRequest) (string, error) {
	return "", fail(persistence.OpInstantiateTemplate, cerrors.ErrRPCUnavailable)
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func (g *Gateway) ListTasks(ctx context.Context, projectID string) ([]*project.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpListTasks, err)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	recs, err := scan(g.tasks, func(r persistence.TaskRecord) bool { return r.ProjectID == projectID })
	if err != nil {
		return nil, fail(persistence.OpListTasks, err)
	}
	out := make([]*project.Task, 0, len(recs))
	for _, r := range recs {
		t, err := persistence.DecodeTask(r)
		if err != nil {
			return nil, fail(persistence.OpListTasks, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (g *Gateway) CreateTask(ctx context.Context, draft persistence.TaskDraft) (*project.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpCreateTask, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.projects.has(draft.ProjectID) {
		return nil, fail(persistence.OpCreateTask, notFound(persistence.TableProjects, draft.ProjectID))
	}
	now := g.now()
	t := &project.Task{
		ID:          g.ids(),
		ProjectID:   draft.ProjectID,
		NodeID:      draft.NodeID,
		Title:       draft.Title,
		Description: draft.Description,
		Status:      draft.Status,
		Priority:    draft.Priority,
		DueDate:     draft.DueDate,
		AssigneeID:  draft.AssigneeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rec := persistence.EncodeTask(t)
	out, err := persistence.DecodeTask(rec)
	if err != nil {
		return nil, fail(persistence.OpCreateTask, err)
	}
	if err := put(g.tasks, g.nextSeq(), t.ID, rec); err != nil {
		return nil, fail(persistence.OpCreateTask, err)
	}
	return out, nil
}

func (g *Gateway) UpdateTask(ctx context.Context, id string, patch persistence.TaskPatch) (*project.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpUpdateTask, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := get[persistence.TaskRecord](g.tasks, id)
	if err != nil {
		return nil, fail(persistence.OpUpdateTask, err)
	}
	t, err := persistence.DecodeTask(rec)
	if err != nil {
		return nil, fail(persistence.OpUpdateTask, err)
	}
	patch.Apply(t)
	t.UpdatedAt = g.now()
	rec = persistence.EncodeTask(t)
	if _, err := persistence.DecodeTask(rec); err != nil {
		return nil, fail(persistence.OpUpdateTask, err)
	}
	if err := put(g.tasks, 0, id, rec); err != nil {
		return nil, fail(persistence.OpUpdateTask, err)
	}
	return t, nil
}

func (g *Gateway) DeleteTask(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fail(persistence.OpDeleteTask, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tasks.remove(id)
	return nil
}

// ---------------------------------------------------------------------------
// Grants
// ---------------------------------------------------------------------------

func (g *Gateway) ListGrants(ctx context.Context, projectID string) ([]*project.SharingGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpListGrants, err)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	recs, err := scan(g.grants, func(r persistence.GrantRecord) bool { return r.ProjectID == projectID })
	if err != nil {
		return nil, fail(persistence.OpListGrants, err)
	}
	out := make([]*project.SharingGrant, 0, len(recs))
	for _, r := range recs {
		gr, err := persistence.DecodeGrant(r)
		if err != nil {
			return nil, fail(persistence.OpListGrants, err)
		}
		out = append(out, gr)
	}
	return out, nil
}

// GrantAccess stores a grant. A second grant for the same user replaces the
// permission of the first.
func (g *Gateway) GrantAccess(ctx context.Context, draft persistence.GrantDraft) (*project.SharingGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpGrantAccess, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.projects.has(draft.ProjectID) {
		return nil, fail(persistence.OpGrantAccess, notFound(persistence.TableProjects, draft.ProjectID))
	}
	existing, err := scan(g.grants, func(r persistence.GrantRecord) bool {
		return r.ProjectID == draft.ProjectID && r.UserID == draft.UserID
	})
	if err != nil {
		return nil, fail(persistence.OpGrantAccess, err)
	}

	gr := &project.SharingGrant{
		ID:         g.ids(),
		ProjectID:  draft.ProjectID,
		UserID:     draft.UserID,
		Permission: draft.Permission,
		CreatedAt:  g.now(),
	}
	if len(existing) > 0 {
		gr.ID = existing[0].ID
		gr.CreatedAt = existing[0].CreatedAt
	}
	rec := persistence.EncodeGrant(gr)
	if _, err := persistence.DecodeGrant(rec); err != nil {
		return nil, fail(persistence.OpGrantAccess, err)
	}
	if err := put(g.grants, g.nextSeq(), gr.ID, rec); err != nil {
		return nil, fail(persistence.OpGrantAccess, err)
	}
	return gr, nil
}

func (g *Gateway) RevokeAccess(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fail(persistence.OpRevokeAccess, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grants.remove(id)
	return nil
}

var _ persistence.Gateway = (*Gateway)(nil)
