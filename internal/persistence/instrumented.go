package persistence

import (
	"context"
	"time"

	"canvas-backend/internal/domain/edge"
	"canvas-backend/internal/domain/history"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/domain/template"
	"canvas-backend/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// InstrumentedGateway records a span, a duration sample and an outcome
// counter for every gateway call.
type InstrumentedGateway struct {
	inner   Gateway
	metrics *observability.Collector
	tracer  trace.Tracer
	logger  *zap.Logger
	timeout time.Duration
}

// NewInstrumentedGateway decorates inner. Nil metrics, tracer and logger are
// allowed.
func NewInstrumentedGateway(inner Gateway, metrics *observability.Collector, tracer trace.Tracer, logger *zap.Logger) *InstrumentedGateway {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("canvas/persistence")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedGateway{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
		logger:  logger.Named("gateway"),
	}
}

// WithTimeout bounds every call by d. Zero disables the bound.
func (g *InstrumentedGateway) WithTimeout(d time.Duration) *InstrumentedGateway {
	g.timeout = d
	return g
}

func call[T any](ctx context.Context, g *InstrumentedGateway, operation string, attrs []attribute.KeyValue, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := g.tracer.Start(ctx, "persistence."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
	defer span.End()
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := fn(ctx)
	elapsed := time.Since(start)

	g.metrics.ObserveGatewayCall(operation, elapsed, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Debug("gateway call failed",
			zap.String("operation", operation),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	}
	return out, err
}

func (g *InstrumentedGateway) void(ctx context.Context, operation string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	_, err := call(ctx, g, operation, attrs, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func idAttr(key, id string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(key, id)}
}

func (g *InstrumentedGateway) FetchProject(ctx context.Context, id string) (*project.Project, error) {
	return call(ctx, g, OpFetchProject, idAttr("project.id", id), func(ctx context.Context) (*project.Project, error) {
		return g.inner.FetchProject(ctx, id)
	})
}

func (g *InstrumentedGateway) ListProjects(ctx context.Context, ownerID string) ([]*project.Project, error) {
	return call(ctx, g, OpListProjects, idAttr("user.id", ownerID), func(ctx context.Context) ([]*project.Project, error) {
		return g.inner.ListProjects(ctx, ownerID)
	})
}

func (g *InstrumentedGateway) CreateProject(ctx context.Context, draft ProjectDraft) (*project.Project, error) {
	return call(ctx, g, OpCreateProject, idAttr("user.id", draft.OwnerID), func(ctx context.Context) (*project.Project, error) {
		return g.inner.CreateProject(ctx, draft)
	})
}

func (g *InstrumentedGateway) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (*project.Project, error) {
	return call(ctx, g, OpUpdateProject, idAttr("project.id", id), func(ctx context.Context) (*project.Project, error) {
		return g.inner.UpdateProject(ctx, id, patch)
	})
}

func (g *InstrumentedGateway) DeleteProject(ctx context.Context, id string) error {
	return g.void(ctx, OpDeleteProject, idAttr("project.id", id), func(ctx context.Context) error {
		return g.inner.DeleteProject(ctx, id)
	})
}

func (g *InstrumentedGateway) FetchNodes(ctx context.Context, projectID string) ([]*node.Node, error) {
	return call(ctx, g, OpFetchNodes, idAttr("project.id", projectID), func(ctx context.Context) ([]*node.Node, error) {
		return g.inner.FetchNodes(ctx, projectID)
	})
}

func (g *InstrumentedGateway) CreateNode(ctx context.Context, draft NodeDraft) (*node.Node, error) {
	attrs := []attribute.KeyValue{
		attribute.String("project.id", draft.ProjectID),
		attribute.String("node.variant", string(draft.Variant)),
	}
	return call(ctx, g, OpCreateNode, attrs, func(ctx context.Context) (*node.Node, error) {
		return g.inner.CreateNode(ctx, draft)
	})
}

func (g *InstrumentedGateway) UpdateNode(ctx context.Context, id string, patch NodePatch) (*node.Node, error) {
	return call(ctx, g, OpUpdateNode, idAttr("node.id", id), func(ctx context.Context) (*node.Node, error) {
		return g.inner.UpdateNode(ctx, id, patch)
	})
}

func (g *InstrumentedGateway) DeleteNode(ctx context.Context, id string) error {
	return g.void(ctx, OpDeleteNode, idAttr("node.id", id), func(ctx context.Context) error {
		return g.inner.DeleteNode(ctx, id)
	})
}

func (g *InstrumentedGateway) FetchEdges(ctx context.Context, projectID string) ([]*edge.Edge, error) {
	return call(ctx, g, OpFetchEdges, idAttr("project.id", projectID), func(ctx context.Context) ([]*edge.Edge, error) {
		return g.inner.FetchEdges(ctx, projectID)
	})
}

func (g *InstrumentedGateway) CreateEdge(ctx context.Context, draft EdgeDraft) (*edge.Edge, error) {
	attrs := []attribute.KeyValue{
		attribute.String("project.id", draft.ProjectID),
		attribute.String("edge.source", draft.SourceID),
		attribute.String("edge.target", draft.TargetID),
	}
	return call(ctx, g, OpCreateEdge, attrs, func(ctx context.Context) (*edge.Edge, error) {
		return g.inner.CreateEdge(ctx, draft)
	})
}

func (g *InstrumentedGateway) UpdateEdge(ctx context.Context, id string, patch EdgePatch) (*edge.Edge, error) {
	return call(ctx, g, OpUpdateEdge, idAttr("edge.id", id), func(ctx context.Context) (*edge.Edge, error) {
		return g.inner.UpdateEdge(ctx, id, patch)
	})
}

func (g *InstrumentedGateway) DeleteEdge(ctx context.Context, id string) error {
	return g.void(ctx, OpDeleteEdge, idAttr("edge.id", id), func(ctx context.Context) error {
		return g.inner.DeleteEdge(ctx, id)
	})
}

func (g *InstrumentedGateway) CreateSnapshot(ctx context.Context, draft SnapshotDraft) (*history.Snapshot, error) {
	attrs := []attribute.KeyValue{
		attribute.String("project.id", draft.ProjectID),
		attribute.Int("graph.nodes", len(draft.Graph.Nodes)),
		attribute.Int("graph.edges", len(draft.Graph.Edges)),
	}
	return call(ctx, g, OpCreateSnapshot, attrs, func(ctx context.Context) (*history.Snapshot, error) {
		return g.inner.CreateSnapshot(ctx, draft)
	})
}

func (g *InstrumentedGateway) ListSnapshots(ctx context.Context, projectID string) ([]*history.Snapshot, error) {
	return call(ctx, g, OpListSnapshots, idAttr("project.id", projectID), func(ctx context.Context) ([]*history.Snapshot, error) {
		return g.inner.ListSnapshots(ctx, projectID)
	})
}

func (g *InstrumentedGateway) FetchTemplate(ctx context.Context, id string) (*template.Template, error) {
	return call(ctx, g, OpFetchTemplate, idAttr("template.id", id), func(ctx context.Context) (*template.Template, error) {
		return g.inner.FetchTemplate(ctx, id)
	})
}

func (g *InstrumentedGateway) ListTemplates(ctx context.Context) ([]*template.Template, error) {
	return call(ctx, g, OpListTemplates, nil, func(ctx context.Context) ([]*template.Template, error) {
		return g.inner.ListTemplates(ctx)
	})
}

func (g *InstrumentedGateway) CreateTemplate(ctx context.Context, draft TemplateDraft) (*template.Template, error) {
	return call(ctx, g, OpCreateTemplate, idAttr("user.id", draft.CreatedBy), func(ctx context.Context) (*template.Template, error) {
		return g.inner.CreateTemplate(ctx, draft)
	})
}

func (g *InstrumentedGateway) InstantiateTemplate(ctx context.Context, req InstantiateRequest) (string, error) {
	return call(ctx, g, OpInstantiateTemplate, idAttr("template.id", req.TemplateID), func(ctx context.Context) (string, error) {
		return g.inner.InstantiateTemplate(ctx, req)
	})
}

func (g *InstrumentedGateway) ListTasks(ctx context.Context, projectID string) ([]*project.Task, error) {
	return call(ctx, g, OpListTasks, idAttr("project.id", projectID), func(ctx context.Context) ([]*project.Task, error) {
		return g.inner.ListTasks(ctx, projectID)
	})
}

func (g *InstrumentedGateway) CreateTask(ctx context.Context, draft TaskDraft) (*project.Task, error) {
	return call(ctx, g, OpCreateTask, idAttr("project.id", draft.ProjectID), func(ctx context.Context) (*project.Task, error) {
		return g.inner.CreateTask(ctx, draft)
	})
}

func (g *InstrumentedGateway) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*project.Task, error) {
	return call(ctx, g, OpUpdateTask, idAttr("task.id", id), func(ctx context.Context) (*project.Task, error) {
		return g.inner.UpdateTask(ctx, id, patch)
	})
}

func (g *InstrumentedGateway) DeleteTask(ctx context.Context, id string) error {
	return g.void(ctx, OpDeleteTask, idAttr("task.id", id), func(ctx context.Context) error {
		return g.inner.DeleteTask(ctx, id)
	})
}

func (g *InstrumentedGateway) ListGrants(ctx context.Context, projectID string) ([]*project.SharingGrant, error) {
	return call(ctx, g, OpListGrants, idAttr("project.id", projectID), func(ctx context.Context) ([]*project.SharingGrant, error) {
		return g.inner.ListGrants(ctx, projectID)
	})
}

func (g *InstrumentedGateway) GrantAccess(ctx context.Context, draft GrantDraft) (*project.SharingGrant, error) {
	return call(ctx, g, OpGrantAccess, idAttr("project.id", draft.ProjectID), func(ctx context.Context) (*project.SharingGrant, error) {
		return g.inner.GrantAccess(ctx, draft)
	})
}

func (g *InstrumentedGateway) RevokeAccess(ctx context.Context, id string) error {
	return g.void(ctx, OpRevokeAccess, idAttr("grant.id", id), func(ctx context.Context) error {
		return g.inner.RevokeAccess(ctx, id)
	})
}

var _ Gateway = (*InstrumentedGateway)(nil)
