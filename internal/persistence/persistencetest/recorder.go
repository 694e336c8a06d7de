package persistencetest

import (
	"context"
	"sync"

	"canvas-backend/internal/domain/edge"
	"canvas-backend/internal/domain/history"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/domain/template"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/persistence"
)

// Call is one recorded gateway invocation.
type Call struct {
	Op        string
	ID        string
	NodeDraft *persistence.NodeDraft
	EdgeDraft *persistence.EdgeDraft
	NodePatch *persistence.NodePatch
	EdgePatch *persistence.EdgePatch
}

// Hook runs before an operation reaches the wrapped gateway. A non-nil
// error fails the call without delegating.
type Hook func(ctx context.Context, call Call) error

// Recorder wraps a Gateway, records every call and lets tests inject
// failures or block operations.
type Recorder struct {
	inner persistence.Gateway

	mu    sync.Mutex
	calls []Call
	hooks map[string]Hook
}

// NewRecorder wraps inner.
func NewRecorder(inner persistence.Gateway) *Recorder {
	return &Recorder{inner: inner, hooks: make(map[string]Hook)}
}

// SetHook installs h for op, replacing any previous hook. A nil h removes it.
func (r *Recorder) SetHook(op string, h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil {
		delete(r.hooks, op)
		return
	}
	r.hooks[op] = h
}

// FailTimes makes the next n calls of op fail with err.
func (r *Recorder) FailTimes(op string, n int, err error) {
	var mu sync.Mutex
	remaining := n
	r.SetHook(op, func(context.Context, Call) error {
		mu.Lock()
		defer mu.Unlock()
		if remaining <= 0 {
			return nil
		}
		remaining--
		return err
	})
}

// Calls returns the recorded calls, filtered by op when ops are given.
func (r *Recorder) Calls(ops ...string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(ops) == 0 {
		return append([]Call(nil), r.calls...)
	}
	want := make(map[string]bool, len(ops))
	for _, op := range ops {
		want[op] = true
	}
	var out []Call
	for _, c := range r.calls {
		if want[c.Op] {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many calls of op were recorded.
func (r *Recorder) Count(op string) int {
	return len(r.Calls(op))
}

// Reset forgets recorded calls. Hooks stay installed.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Recorder) record(ctx context.Context, c Call) error {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	h := r.hooks[c.Op]
	r.mu.Unlock()

	if h == nil {
		return nil
	}
	return cerrors.NewPersistenceError(c.Op, h(ctx, c))
}

func (r *Recorder) FetchProject(ctx context.Context, id string) (*project.Project, error) {
	if err := r.record(ctx, Call{Op: persistence.OpFetchProject, ID: id}); err != nil {
		return nil, err
	}
	return r.inner.FetchProject(ctx, id)
}

func (r *Recorder) ListProjects(ctx context.Context, ownerID string) ([]*project.Project, error) {
	if err := r.record(ctx, Call{Op: persistence.OpListProjects, ID: ownerID}); err != nil {
		return nil, err
	}
	return r.inner.ListProjects(ctx, ownerID)
}

func (r *Recorder) CreateProject(ctx context.Context, draft persistence.ProjectDraft) (*project.Project, error) {
	if err := r.record(ctx, Call{Op: persistence.OpCreateProject}); err != nil {
		return nil, err
	}
	return r.inner.CreateProject(ctx, draft)
}

func (r *Recorder) UpdateProject(ctx context.Context, id string, patch persistence.ProjectPatch) (*project.Project, error) {
	if err := r.record(ctx, Call{Op: persistence.OpUpdateProject, ID: id}); err != nil {
		return nil, err
	}
	return r.inner.UpdateProject(ctx, id, patch)
}

func (r *Recorder) DeleteProject(ctx context.Context, id string) error {
	if err := r.record(ctx, Call{Op: persistence.OpDeleteProject, ID: id}); err != nil {
		return err
	}
	return r.inner.DeleteProject(ctx, id)
}

func (r *Recorder) FetchNodes(ctx context.Context, projectID string) ([]*node.Node, error) {
	if err := r.record(ctx, Call{Op: persistence.OpFetchNodes, ID: projectID}); err != nil {
		return nil, err
	}
	return r.inner.FetchNodes(ctx, projectID)
}

func (r *Recorder) CreateNode(ctx context.Context, draft persistence.NodeDraft) (*node.Node, error) {
	if err := r.record(ctx, Call{Op: persistence.OpCreateNode, NodeDraft: &draft}); err != nil {
		return nil, err
	}
	return r.inner.CreateNode(ctx, draft)
}

func (r *Recorder) UpdateNode(ctx context.Context, id string, patch persistence.NodePatch) (*node.Node, error) {
	if err := r.record(ctx, Call{Op: persistence.OpUpdateNode, ID: id, NodePatch: &patch}); err != nil {
		return nil, err
	}
	return r.inner.UpdateNode(ctx, id, patch)
}

func (r *Recorder) DeleteNode(ctx context.Context, id string) error {
	if err := r.record(ctx, Call{Op: persistence.OpDeleteNode, ID: id}); err != nil {
		return err
	}
	return r.inner.DeleteNode(ctx, id)
}

func (r *Recorder) FetchEdges(ctx context.Context, projectID string) ([]*edge.Edge, error) {
	if err := r.record(ctx, Call{Op: persistence.OpFetchEdges, ID: projectID}); err != nil {
		return nil, err
	}
	return r.inner.FetchEdges(ctx, projectID)
}

func (r *Recorder) CreateEdge(ctx context.Context, draft persistence.EdgeDraft) (*edge.Edge, error) {
	if err := r.record(ctx, Call{Op: persistence.OpCreateEdge, EdgeDraft: &draft}); err != nil {
		return nil, err
	}
	return r.inner.CreateEdge(ctx, draft)
}

func (r *Recorder) UpdateEdge(ctx context.Context, id string, patch persistence.EdgePatch) (*edge.Edge, error) {
	if err := r.record(ctx, Call{Op: persistence.OpUpdateEdge, ID: id, EdgePatch: &patch}); err != nil {
		return nil, err
	}
	return r.inner.UpdateEdge(ctx, id, patch)
}

func (r *Recorder) DeleteEdge(ctx context.Context, id string) error {
	if err := r.record(ctx, Call{Op: persistence.OpDeleteEdge, ID: id}); err != nil {
		return err
	}
	return r.inner.DeleteEdge(ctx, id)
}

func (r *Recorder) CreateSnapshot(ctx context.Context, draft persistence.SnapshotDraft) (*history.Snapshot, error) {
	if err := r.record(ctx, Call{Op: persistence.OpCreateSnapshot, ID: draft.ProjectID}); err != nil {
		return nil, err
	}
	return r.inner.CreateSnapshot(ctx, draft)
}

func (r *Recorder) ListSnapshots(ctx context.Context, projectID string) ([]*history.Snapshot, error) {
	if err := r.record(ctx, Call{Op: persistence.OpListSnapshots, ID: projectID}); err != nil {
		return nil, err
	}
	return r.inner.ListSnapshots(ctx, projectID)
}

func (r *Recorder) FetchTemplate(ctx context.Context, id string) (*template.Template, error) {
	if err := r.record(ctx, Call{Op: persistence.OpFetchTemplate, ID: id}); err != nil {
		return nil, err
	}
	return r.inner.FetchTemplate(ctx, id)
}

func (r *Recorder) ListTemplates(ctx context.Context) ([]*template.Template, error) {
	if err := r.record(ctx, Call{Op: persistence.OpListTemplates}); err != nil {
		return nil, err
	}
	return r.inner.ListTemplates(ctx)
}

func (r *Recorder) CreateTemplate(ctx context.Context, draft persistence.TemplateDraft) (*template.Template, error) {
	if err := r.record(ctx, Call{Op: persistence.OpCreateTemplate}); err != nil {
		return nil, err
	}
	return r.inner.CreateTemplate(ctx, draft)
}

func (r *Recorder) InstantiateTemplate(ctx context.Context, req persistence.InstantiateRequest) (string, error) {
	if err := r.record(ctx, Call{Op: persistence.OpInstantiateTemplate, ID: req.TemplateID}); err != nil {
		return "", err
	}
	return r.inner.InstantiateTemplate(ctx, req)
}

func (r *Recorder) ListTasks(ctx context.Context, projectID string) ([]*project.Task, error) {
	if err := r.record(ctx, Call{Op: persistence.OpListTasks, ID: projectID}); err != nil {
		return nil, err
	}
	return r.inner.ListTasks(ctx, projectID)
}

func (r *Recorder) CreateTask(ctx context.Context, draft persistence.TaskDraft) (*project.Task, error) {
	if err := r.record(ctx, Call{Op: persistence.OpCreateTask, ID: draft.ProjectID}); err != nil {
		return nil, err
	}
	return r.inner.CreateTask(ctx, draft)
}

func (r *Recorder) UpdateTask(ctx context.Context, id string, patch persistence.TaskPatch) (*project.Task, error) {
	if err := r.record(ctx, Call{Op: persistence.OpUpdateTask, ID: id}); err != nil {
		return nil, err
	}
	return r.inner.UpdateTask(ctx, id, patch)
}

func (r *Recorder) DeleteTask(ctx context.Context, id string) error {
	if err := r.record(ctx, Call{Op: persistence.OpDeleteTask, ID: id}); err != nil {
		return err
	}
	return r.inner.DeleteTask(ctx, id)
}

func (r *Recorder) ListGrants(ctx context.Context, projectID string) ([]*project.SharingGrant, error) {
	if err := r.record(ctx, Call{Op: persistence.OpListGrants, ID: projectID}); err != nil {
		return nil, err
	}
	return r.inner.ListGrants(ctx, projectID)
}

func (r *Recorder) GrantAccess(ctx context.Context, draft persistence.GrantDraft) (*project.SharingGrant, error) {
	if err := r.record(ctx, Call{Op: persistence.OpGrantAccess, ID: draft.ProjectID}); err != nil {
		return nil, err
	}
	return r.inner.GrantAccess(ctx, draft)
}

func (r *Recorder) RevokeAccess(ctx context.Context, id string) error {
	if err := r.record(ctx, Call{Op: persistence.OpRevokeAccess, ID: id}); err != nil {
		return err
	}
	return r.inner.RevokeAccess(ctx, id)
}

var _ persistence.Gateway = (*Recorder)(nil)
