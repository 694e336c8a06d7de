// Package templates turns templates into live projects and projects back
// into templates.
//
// Instantiation prefers the atomic remote procedure when configured to and
// falls back to client orchestration when the backend does not expose it.
// Client orchestration creates the project, then every element, then every
// connection. A connection that cannot be resolved, connects an element to
// itself or repeats an earlier pair is skipped and reported as a
// TemplateIntegrityWarning on either strategy; the project is kept.
package templates

import (
	"context"
	"fmt"
	"strings"

	"canvas-backend/internal/config"
	"canvas-backend/internal/domain/graph"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/template"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/identity"
	"canvas-backend/internal/observability"
	"canvas-backend/internal/persistence"

	"go.uber.org/zap"
)

// Strategy labels used in results and metrics.
const (
	StrategyRemote = "remote"
	StrategyClient = "client"
)

// Warning reasons.
const (
	ReasonUnresolved = persistence.ReasonUnresolved
	ReasonSelf       = persistence.ReasonSelf
	ReasonDuplicate  = persistence.ReasonDuplicate
)

// Gateway is what the instantiator needs from persistence.
type Gateway interface {
	persistence.TemplateGateway
	persistence.ProjectGateway
	persistence.NodeGateway
	persistence.EdgeGateway
}

// Result describes a new project created from a template. NodeIDs and
// EdgeIDs map template local identifiers to the created global ones; they
// are empty when the remote procedure did the work.
type Result struct {
	ProjectID string
	Strategy  string
	NodeIDs   map[string]string
	EdgeIDs   map[string]string
	Warnings  []*cerrors.TemplateIntegrityWarning
}

// Instantiator creates projects from templates.
type Instantiator struct {
	gw      Gateway
	ids     identity.Provider
	cfg     config.Templates
	logger  *zap.Logger
	metrics *observability.Collector
}

// NewInstantiator creates an Instantiator. Nil logger and metrics are allowed.
func NewInstantiator(gw Gateway, ids identity.Provider, cfg config.Templates, logger *zap.Logger, metrics *observability.Collector) *Instantiator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instantiator{gw: gw, ids: ids, cfg: cfg, logger: logger.Named("templates"), metrics: metrics}
}

// List returns the templates visible to the caller.
func (i *Instantiator) List(ctx context.Context) ([]*template.Template, error) {
	return i.gw.ListTemplates(ctx)
}

// Get returns one template.
func (i *Instantiator) Get(ctx context.Context, id string) (*template.Template, error) {
	if id == "" {
		return nil, cerrors.ErrMissingID
	}
	return i.gw.FetchTemplate(ctx, id)
}

// Instantiate creates a new project owned by ownerID from the template. An
// empty ownerID means the current user; an empty title means the template's
// title.
func (i *Instantiator) Instantiate(ctx context.Context, templateID, ownerID, title string, description *string) (*Result, error) {
	if templateID == "" {
		return nil, cerrors.ErrMissingID
	}
	if ownerID == "" {
		var err error
		if ownerID, err = i.ids.CurrentUserID(ctx); err != nil {
			return nil, err
		}
	}
	title = strings.TrimSpace(title)

	t, err := i.gw.FetchTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	plan, err := persistence.PlanTemplate(t, "", ownerID)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = t.Title
	}

	if i.cfg.PreferRemote {
		id, err := i.gw.InstantiateTemplate(ctx, persistence.InstantiateRequest{
			TemplateID:  templateID,
			OwnerID:     ownerID,
			Title:       title,
			Description: description,
		})
		switch {
		case err == nil:
			// The procedure skips the same connections; report them.
			_, warnings := plan.Resolve(t.ID, plan.Locals())
			res := &Result{ProjectID: id, Strategy: StrategyRemote, Warnings: warnings}
			i.finish(t.ID, res)
			return res, nil
		case !cerrors.Is(err, cerrors.ErrRPCUnavailable):
			return nil, err
		}
		i.logger.Debug("Instantiate procedure unavailable, orchestrating locally",
			zap.String("template_id", templateID))
	}
	return i.orchestrate(ctx, t, plan, ownerID, title, description)
}

func (i *Instantiator) orchestrate(ctx context.Context, t *template.Template, plan persistence.TemplatePlan, ownerID, title string, description *string) (*Result, error) {
	draft := persistence.ProjectDraft{
		Title:            title,
		OwnerID:          ownerID,
		SourceTemplateID: &t.ID,
	}
	if description != nil {
		draft.Description = *description
	} else {
		draft.Description = t.Description
	}
	p, err := i.gw.CreateProject(ctx, draft)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ProjectID: p.ID,
		Strategy:  StrategyClient,
		NodeIDs:   make(map[string]string, len(plan.Nodes)),
		EdgeIDs:   make(map[string]string, len(plan.Edges)),
	}

	for _, el := range plan.Nodes {
		d := el.Draft
		d.ProjectID = p.ID
		n, err := i.gw.CreateNode(ctx, d)
		if err != nil {
			i.discard(ctx, p.ID, err)
			return nil, fmt.Errorf("instantiate template %s: element %s: %w", t.ID, el.LocalID, err)
		}
		res.NodeIDs[el.LocalID] = n.ID
	}

	edges, warnings := plan.Resolve(t.ID, res.NodeIDs)
	res.Warnings = warnings
	for _, re := range edges {
		d := re.Draft
		d.ProjectID = p.ID
		e, err := i.gw.CreateEdge(ctx, d)
		if err != nil {
			conn := connection(plan, re.LocalID)
			res.Warnings = append(res.Warnings, &cerrors.TemplateIntegrityWarning{
				TemplateID:   t.ID,
				ConnectionID: re.LocalID,
				SourceLocal:  conn.Source,
				TargetLocal:  conn.Target,
				Reason:       err.Error(),
			})
			continue
		}
		res.EdgeIDs[re.LocalID] = e.ID
	}

	i.finish(t.ID, res)
	return res, nil
}

func connection(plan persistence.TemplatePlan, localID string) persistence.ConnectionPlan {
	for _, c := range plan.Edges {
		if c.LocalID == localID {
			return c
		}
	}
	return persistence.ConnectionPlan{LocalID: localID}
}

func (i *Instantiator) finish(templateID string, res *Result) {
	for _, w := range res.Warnings {
		i.logger.Warn("Template connection skipped",
			zap.String("template_id", w.TemplateID),
			zap.String("connection_id", w.ConnectionID),
			zap.String("reason", w.Reason))
	}
	i.metrics.TemplateInstantiated(res.Strategy, len(res.Warnings))
	i.logger.Info("Template instantiated",
		zap.String("template_id", templateID),
		zap.String("project_id", res.ProjectID),
		zap.String("strategy", res.Strategy),
		zap.Int("nodes", len(res.NodeIDs)),
		zap.Int("edges", len(res.EdgeIDs)),
		zap.Int("warnings", len(res.Warnings)))
}

// discard removes a project whose elements could not all be created. The
// delete runs even when ctx is already canceled.
func (i *Instantiator) discard(ctx context.Context, projectID string, cause error) {
	i.logger.Warn("Discarding partially instantiated project",
		zap.String("project_id", projectID), zap.Error(cause))
	if err := i.gw.DeleteProject(context.WithoutCancel(ctx), projectID); err != nil {
		i.logger.Error("Failed to discard project", zap.String("project_id", projectID), zap.Error(err))
	}
}

// TemplateMeta describes a template created from a graph.
type TemplateMeta struct {
	Title        string
	Description  string
	Category     string
	IsPublic     bool
	ThumbnailURL string
}

// SaveAsTemplate stores g as a new template. Nodes become elements el-1,
// el-2... in graph order and edges become connections conn-1, conn-2...
// Edges whose endpoints are not in g are left out.
func (i *Instantiator) SaveAsTemplate(ctx context.Context, g graph.Snapshot, meta TemplateMeta) (*template.Template, error) {
	if strings.TrimSpace(meta.Title) == "" {
		return nil, cerrors.Validation(cerrors.CodeValidationFailed, "template title is required").Build()
	}
	userID, err := i.ids.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	elements, connections := Blueprint(g)
	t, err := i.gw.CreateTemplate(ctx, persistence.TemplateDraft{
		Title:        meta.Title,
		Description:  meta.Description,
		Category:     meta.Category,
		IsPublic:     meta.IsPublic,
		Elements:     elements,
		Connections:  connections,
		ThumbnailURL: meta.ThumbnailURL,
		CreatedBy:    userID,
	})
	if err != nil {
		return nil, err
	}
	i.logger.Info("Template saved",
		zap.String("template_id", t.ID),
		zap.String("project_id", g.ProjectID),
		zap.Int("elements", len(elements)),
		zap.Int("connections", len(connections)))
	return t, nil
}

// Blueprint converts a graph into template elements and connections with
// fresh local identifiers.
func Blueprint(g graph.Snapshot) ([]template.Element, []template.Connection) {
	locals := make(map[string]string, len(g.Nodes))
	elements := make([]template.Element, 0, len(g.Nodes))
	for idx, n := range g.Nodes {
		local := fmt.Sprintf("el-%d", idx+1)
		locals[n.ID] = local
		c := n.Clone()
		elements = append(elements, template.Element{
			LocalID:  local,
			Variant:  c.Variant,
			Title:    c.Title,
			Content:  c.Content,
			Position: c.Position,
			Size:     c.Size,
			Style:    c.Style,
			Metadata: node.EncodeMetadata(c.Payload, c.Extra),
		})
	}
	connections := make([]template.Connection, 0, len(g.Edges))
	for _, e := range g.Edges {
		src, okSrc := locals[e.SourceID]
		tgt, okTgt := locals[e.TargetID]
		if !okSrc || !okTgt {
			continue
		}
		c := e.Clone()
		connections = append(connections, template.Connection{
			LocalID:  fmt.Sprintf("conn-%d", len(connections)+1),
			Source:   src,
			Target:   tgt,
			Label:    c.Label,
			Style:    c.Style,
			Metadata: c.Metadata,
		})
	}
	return elements, connections
}
