// Package supabase implements persistence.Gateway on Supabase: table rows go
// through PostgREST and template instantiation calls the
// instantiate_template database function. Cascades are enforced by the
// database foreign keys.
//
// The PostgREST client has no context support, so cancellation is only
// checked before each request.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"canvas-backend/internal/domain/edge"
	"canvas-backend/internal/domain/history"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/domain/template"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/persistence"

	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

// Client is the part of the Supabase client the gateway uses.
type Client interface {
	From(table string) *postgrest.QueryBuilder
	Rpc(name, count string, rpcBody interface{}) string
}

// Gateway is a Supabase backed persistence.Gateway.
type Gateway struct {
	client Client
	logger *zap.Logger
	now    func() time.Time
	ids    func() string
}

// New wraps an existing client.
func New(client Client, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		client: client,
		logger: logger.Named("supabase_gateway"),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		ids:    func() string { return uuid.New().String() },
	}
}

// Dial creates a Supabase client for url and key and wraps it.
func Dial(url, key string, logger *zap.Logger) (*Gateway, error) {
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("supabase: create client: %w", err)
	}
	return New(client, logger), nil
}

func fail(op string, err error) error {
	return cerrors.NewPersistenceError(op, err)
}

func notFound(table, id string) error {
	return fmt.Errorf("%w: %s %q", cerrors.ErrRecordNotFound, table, id)
}

// selectWhere fetches the rows of table matching every column=value pair,
// ordered by created_at.
func selectWhere[R any](g *Gateway, table string, eq ...string) ([]R, error) {
	q := g.client.From(table).Select("*", "", false)
	for i := 0; i+1 < len(eq); i += 2 {
		q = q.Eq(eq[i], eq[i+1])
	}
	q = q.Order("created_at", &postgrest.OrderOpts{Ascending: true})
	var rows []R
	if _, err := q.ExecuteTo(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func selectOne[R any](g *Gateway, table, id string) (R, error) {
	var zero R
	rows, err := selectWhere[R](g, table, "id", id)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, notFound(table, id)
	}
	return rows[0], nil
}

func insert[R any](g *Gateway, table string, rec R) (R, error) {
	var zero R
	var rows []R
	if _, err := g.client.From(table).Insert(rec, false, "", "representation", "").ExecuteTo(&rows); err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return rec, nil
	}
	return rows[0], nil
}

func update[R any](g *Gateway, table, id string, columns map[string]any) (R, error) {
	var zero R
	var rows []R
	_, err := g.client.From(table).Update(columns, "representation", "").Eq("id", id).ExecuteTo(&rows)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, notFound(table, id)
	}
	return rows[0], nil
}

func remove(g *Gateway, table, id string) error {
	_, _, err := g.client.From(table).Delete("minimal", "").Eq("id", id).Execute()
	return err
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

func (g *Gateway) FetchProject(ctx context.Context, id string) (*project.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpFetchProject, err)
	}
	rec, err := selectOne[persistence.ProjectRecord](g, persistence.TableProjects, id)
	if err != nil {
		return nil, fail(persistence.OpFetchProject, err)
	}
	p, err := persistence.DecodeProject(rec)
	return p, fail(persistence.OpFetchProject, err)
}

func (g *Gateway) ListProjects(ctx context.Context, userID string) ([]*project.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpListProjects, err)
	}
	q := g.client.From(persistence.TableProjects).Select("*", "", false)
	if userID != "" {
		q = q.Or(fmt.Sprintf("owner_id.eq.%s,collaborators.cs.{%s}", userID, userID), "")
	}
	var recs []persistence.ProjectRecord
	if _, err := q.Order("created_at", &postgrest.OrderOpts{Ascending: true}).ExecuteTo(&recs); err != nil {
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
	now := g.now()
	rec, err := insert(g, persistence.TableProjects, persistence.EncodeProject(&project.Project{
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
	}))
	if err != nil {
		return nil, fail(persistence.OpCreateProject, err)
	}
	p, err := persistence.DecodeProject(rec)
	return p, fail(persistence.OpCreateProject, err)
}

func (g *Gateway) UpdateProject(ctx context.Context, id string, patch persistence.ProjectPatch) (*project.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpUpdateProject, err)
	}
	rec, err := update[persistence.ProjectRecord](g, persistence.TableProjects, id, g.projectColumns(patch))
	if err != nil {
		return nil, fail(persistence.OpUpdateProject, err)
	}
	p, err := persistence.DecodeProject(rec)
	return p, fail(persistence.OpUpdateProject, err)
}

func (g *Gateway) projectColumns(p persistence.ProjectPatch) map[string]any {
	cols := map[string]any{"updated_at": g.now()}
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Description != nil {
		cols["description"] = *p.Description
	}
	if p.IsPublic != nil {
		cols["is_public"] = *p.IsPublic
	}
	if p.Collaborators != nil {
		cols["collaborators"] = p.Collaborators
	}
	if p.Tags != nil {
		cols["tags"] = p.Tags
	}
	if p.Metadata != nil {
		cols["metadata"] = p.Metadata
	}
	return cols
}

func (g *Gateway) DeleteProject(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fail(persistence.OpDeleteProject, err)
	}
	return fail(persistence.OpDeleteProject, remove(g, persistence.TableProjects, id))
}

// ---------------------------------------------------------------------------
// Nodes
// ---------------------------------------------------------------------------

func (g *Gateway) FetchNodes(ctx context.Context, projectID string) ([]*node.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpFetchNodes, err)
	}
	recs, err := selectWhere[persistence.NodeRecord](g, persistence.TableNodes, "project_id", projectID)
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
	rec, err := insert(g, persistence.TableNodes, persistence.EncodeNode(draft.Node(g.ids(), g.now())))
	if err != nil {
		return nil, fail(persistence.OpCreateNode, err)
	}
	n, err := persistence.DecodeNode(rec)
	return n, fail(persistence.OpCreateNode, err)
}

// nodeColumns maps a patch to the columns PostgREST should change. Setting
// the payload replaces the whole metadata document.
func (g *Gateway) nodeColumns(p persistence.NodePatch) map[string]any {
	cols := map[string]any{"updated_at": g.now()}
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Content != nil {
		cols["content"] = *p.Content
	}
	if p.Position != nil {
		cols["position"] = *p.Position
	}
	if p.Size != nil {
		cols["size"] = *p.Size
	}
	if p.Style != nil {
		cols["style"] = p.Style
	}
	if p.Payload != nil || p.Extra != nil {
		cols["metadata"] = node.EncodeMetadata(p.Payload, p.Extra)
	}
	return cols
}

func (g *Gateway) UpdateNode(ctx context.Context, id string, patch persistence.NodePatch) (*node.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpUpdateNode, err)
	}
	if patch.Position != nil && !patch.Position.Valid() {
		return nil, fail(persistence.OpUpdateNode,
			cerrors.Validation(cerrors.CodeValidationFailed, "node position must be finite").Build())
	}
	rec, err := update[persistence.NodeRecord](g, persistence.TableNodes, id, g.nodeColumns(patch))
	if err != nil {
		return nil, fail(persistence.OpUpdateNode, err)
	}
	n, err := persistence.DecodeNode(rec)
	return n, fail(persistence.OpUpdateNode, err)
}

func (g *Gateway) DeleteNode(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fail(persistence.OpDeleteNode, err)
	}
	return fail(persistence.OpDeleteNode, remove(g, persistence.TableNodes, id))
}

// ---------------------------------------------------------------------------
// Edges
// ---------------------------------------------------------------------------

func (g *Gateway) FetchEdges(ctx context.Context, projectID string) ([]*edge.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpFetchEdges, err)
	}
	recs, err := selectWhere[persistence.EdgeRecord](g, persistence.TableEdges, "project_id", projectID)
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
	rec, err := insert(g, persistence.TableEdges, persistence.EncodeEdge(draft.Edge(g.ids(), g.now())))
	if err != nil {
		return nil, fail(persistence.OpCreateEdge, err)
	}
	e, err := persistence.DecodeEdge(rec)
	return e, fail(persistence.OpCreateEdge, err)
}

func (g *Gateway) UpdateEdge(ctx context.Context, id string, patch persistence.EdgePatch) (*edge.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpUpdateEdge, err)
	}
	cols := map[string]any{"updated_at": g.now()}
	if patch.Label != nil {
		cols["label"] = *patch.Label
	}
	if patch.Style != nil {
		cols["style"] = patch.Style
	}
	if patch.Metadata != nil {
		cols["metadata"] = patch.Metadata
	}
	rec, err := update[persistence.EdgeRecord](g, persistence.TableEdges, id, cols)
	if err != nil {
		return nil, fail(persistence.OpUpdateEdge, err)
	}
	e, err := persistence.DecodeEdge(rec)
	return e, fail(persistence.OpUpdateEdge, err)
}

func (g *Gateway) DeleteEdge(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fail(persistence.OpDeleteEdge, err)
	}
	return fail(persistence.OpDeleteEdge, remove(g, persistence.TableEdges, id))
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

func (g *Gateway) CreateSnapshot(ctx context.Context, draft persistence.SnapshotDraft) (*history.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpCreateSnapshot, err)
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
	rec, err := insert(g, persistence.TableSnapshots, persistence.EncodeSnapshot(s))
	if err != nil {
		return nil, fail(persistence.OpCreateSnapshot, err)
	}
	out, err := persistence.DecodeSnapshot(rec)
	return out, fail(persistence.OpCreateSnapshot, err)
}

func (g *Gateway) ListSnapshots(ctx context.Context, projectID string) ([]*history.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpListSnapshots, err)
	}
	recs, err := selectWhere[persistence.SnapshotRecord](g, persistence.TableSnapshots, "project_id", projectID)
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
	rec, err := selectOne[persistence.TemplateRecord](g, persistence.TableTemplates, id)
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
	recs, err := selectWhere[persistence.TemplateRecord](g, persistence.TableTemplates)
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
	now := g.now()
	rec := persistence.EncodeTemplate(&template.Template{
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
	})
	if _, err := persistence.DecodeTemplate(rec); err != nil {
		return nil, fail(persistence.OpCreateTemplate, err)
	}
	stored, err := insert(g, persistence.TableTemplates, rec)
	if err != nil {
		return nil, fail(persistence.OpCreateTemplate, err)
	}
	t, err := persistence.DecodeTemplate(stored)
	return t, fail(persistence.OpCreateTemplate, err)
}

type instantiateArgs struct {
	TemplateID  string  `json:"template_id"`
	OwnerID     string  `json:"owner_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

// rpcError is the error document PostgREST returns.
type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PostgREST reports an unknown function with PGRST202 (or 42883 from
// Postgres itself).
var missingFunctionCodes = map[string]bool{"PGRST202": true, "42883": true}

// InstantiateTemplate calls the instantiate_template database function,
// which returns the new project identifier.
func (g *Gateway) InstantiateTemplate(ctx context.Context, req persistence.InstantiateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fail(persistence.OpInstantiateTemplate, err)
	}
	raw := g.client.Rpc(persistence.ProcInstantiate, "", instantiateArgs{
		TemplateID:  req.TemplateID,
		OwnerID:     req.OwnerID,
		Title:       req.Title,
		Description: req.Description,
	})

	var projectID string
	if err := json.Unmarshal([]byte(raw), &projectID); err == nil && projectID != "" {
		return projectID, nil
	}

	var rpcErr rpcError
	if err := json.Unmarshal([]byte(raw), &rpcErr); err == nil && rpcErr.Code != "" {
		if missingFunctionCodes[rpcErr.Code] {
			g.logger.Info("instantiate_template function not deployed", zap.String("code", rpcErr.Code))
			return "", fail(persistence.OpInstantiateTemplate, cerrors.ErrRPCUnavailable)
		}
		return "", fail(persistence.OpInstantiateTemplate, fmt.Errorf("(%s) %s", rpcErr.Code, rpcErr.Message))
	}
	if strings.TrimSpace(raw) == "" {
		return "", fail(persistence.OpInstantiateTemplate, cerrors.ErrRPCUnavailable)
	}
	return "", fail(persistence.OpInstantiateTemplate,
		fmt.Errorf("%w: unexpected instantiate_template result %q", cerrors.ErrMalformedRecord, raw))
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func (g *Gateway) ListTasks(ctx context.Context, projectID string) ([]*project.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpListTasks, err)
	}
	recs, err := selectWhere[persistence.TaskRecord](g, persistence.TableTasks, "project_id", projectID)
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
	now := g.now()
	rec := persistence.EncodeTask(&project.Task{
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
	})
	if _, err := persistence.DecodeTask(rec); err != nil {
		return nil, fail(persistence.OpCreateTask, err)
	}
	stored, err := insert(g, persistence.TableTasks, rec)
	if err != nil {
		return nil, fail(persistence.OpCreateTask, err)
	}
	t, err := persistence.DecodeTask(stored)
	return t, fail(persistence.OpCreateTask, err)
}

func (g *Gateway) UpdateTask(ctx context.Context, id string, patch persistence.TaskPatch) (*project.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpUpdateTask, err)
	}
	cols := map[string]any{"updated_at": g.now()}
	if patch.Title != nil {
		cols["title"] = *patch.Title
	}
	if patch.Description != nil {
		cols["description"] = *patch.Description
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, fail(persistence.OpUpdateTask, cerrors.Validation(cerrors.CodeValidationFailed, "unknown task status").Build())
		}
		cols["status"] = string(*patch.Status)
	}
	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			return nil, fail(persistence.OpUpdateTask, cerrors.Validation(cerrors.CodeValidationFailed, "unknown task priority").Build())
		}
		cols["priority"] = string(*patch.Priority)
	}
	if patch.DueDate != nil {
		cols["due_date"] = patch.DueDate.UTC()
	}
	if patch.AssigneeID != nil {
		cols["assigned_to"] = *patch.AssigneeID
	}
	if patch.NodeID != nil {
		cols["element_id"] = *patch.NodeID
	}
	rec, err := update[persistence.TaskRecord](g, persistence.TableTasks, id, cols)
	if err != nil {
		return nil, fail(persistence.OpUpdateTask, err)
	}
	t, err := persistence.DecodeTask(rec)
	return t, fail(persistence.OpUpdateTask, err)
}

func (g *Gateway) DeleteTask(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fail(persistence.OpDeleteTask, err)
	}
	return fail(persistence.OpDeleteTask, remove(g, persistence.TableTasks, id))
}

// ---------------------------------------------------------------------------
// Grants
// ---------------------------------------------------------------------------

func (g *Gateway) ListGrants(ctx context.Context, projectID string) ([]*project.SharingGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpListGrants, err)
	}
	recs, err := selectWhere[persistence.GrantRecord](g, persistence.TableGrants, "project_id", projectID)
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

// GrantAccess stores the grant of (project, user), replacing the permission
// of an existing one.
func (g *Gateway) GrantAccess(ctx context.Context, draft persistence.GrantDraft) (*project.SharingGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(persistence.OpGrantAccess, err)
	}
	if !draft.Permission.Valid() {
		return nil, fail(persistence.OpGrantAccess, cerrors.Validation(cerrors.CodeValidationFailed, "unknown permission").Build())
	}
	existing, err := selectWhere[persistence.GrantRecord](g, persistence.TableGrants,
		"project_id", draft.ProjectID, "user_id", draft.UserID)
	if err != nil {
		return nil, fail(persistence.OpGrantAccess, err)
	}

	var rec persistence.GrantRecord
	if len(existing) > 0 {
		rec, err = update[persistence.GrantRecord](g, persistence.TableGrants, existing[0].ID,
			map[string]any{"permission": string(draft.Permission)})
	} else {
		rec, err = insert(g, persistence.TableGrants, persistence.EncodeGrant(&project.SharingGrant{
			ID:         g.ids(),
			ProjectID:  draft.ProjectID,
			UserID:     draft.UserID,
			Permission: draft.Permission,
			CreatedAt:  g.now(),
		}))
	}
	if err != nil {
		return nil, fail(persistence.OpGrantAccess, err)
	}
	gr, err := persistence.DecodeGrant(rec)
	return gr, fail(persistence.OpGrantAccess, err)
}

func (g *Gateway) RevokeAccess(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fail(persistence.OpRevokeAccess, err)
	}
	return fail(persistence.OpRevokeAccess, remove(g, persistence.TableGrants, id))
}

var _ persistence.Gateway = (*Gateway)(nil)
