package persistence

import (
	"context"
	"errors"

	"canvas-backend/internal/config"
	"canvas-backend/internal/domain/edge"
	"canvas-backend/internal/domain/history"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/domain/template"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/observability"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ResilientGateway guards a Gateway with a circuit breaker and retries the
// idempotent operations. Reads and field updates (Fetch*, List*, Update*)
// are retried; creates, deletes and InstantiateTemplate are executed once
// because a lost response cannot be told apart from a lost request.
type ResilientGateway struct {
	inner   Gateway
	breaker *gobreaker.CircuitBreaker
	retrier *Retrier
	logger  *zap.Logger
}

// NewResilientGateway decorates inner. When breakerCfg is disabled only the
// retry policy applies.
func NewResilientGateway(inner Gateway, breakerCfg config.Breaker, retryCfg config.Retry, metrics *observability.Collector, logger *zap.Logger) *ResilientGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("resilient_gateway")

	g := &ResilientGateway{
		inner: inner,
		retrier: NewRetrier(retryCfg, logger).OnRetry(func(op string, _ int, _ error) {
			metrics.ObserveRetry(op)
		}),
		logger: logger,
	}
	if breakerCfg.Enabled {
		g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "persistence",
			MaxRequests: breakerCfg.MaxRequests,
			Interval:    breakerCfg.Interval,
			Timeout:     breakerCfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < breakerCfg.MinRequests {
					return false
				}
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= breakerCfg.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
				metrics.SetBreakerState(name, float64(to))
			},
			// Caller mistakes and missing rows say nothing about backend health.
			IsSuccessful: func(err error) bool {
				return err == nil || !cerrors.IsRetryable(err)
			},
		})
	}
	return g
}

// execute runs fn through the breaker, translating breaker rejections to
// ErrCircuitOpen.
func (g *ResilientGateway) execute(operation string, fn func() error) error {
	if g.breaker == nil {
		return fn()
	}
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		g.logger.Debug("request rejected by circuit breaker", zap.String("operation", operation))
		return cerrors.NewPersistenceError(operation, cerrors.ErrCircuitOpen)
	}
	return err
}

func (g *ResilientGateway) once(operation string, fn func() error) error {
	return g.execute(operation, fn)
}

func (g *ResilientGateway) retried(ctx context.Context, operation string, fn func(context.Context) error) error {
	return g.retrier.Do(ctx, operation, func(ctx context.Context) error {
		return g.execute(operation, func() error { return fn(ctx) })
	})
}

func onceValue[T any](g *ResilientGateway, operation string, fn func() (T, error)) (T, error) {
	var out T
	err := g.once(operation, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

func retriedValue[T any](ctx context.Context, g *ResilientGateway, operation string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := g.retried(ctx, operation, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func (g *ResilientGateway) FetchProject(ctx context.Context, id string) (*project.Project, error) {
	return retriedValue(ctx, g, OpFetchProject, func(ctx context.Context) (*project.Project, error) {
		return g.inner.FetchProject(ctx, id)
	})
}

func (g *ResilientGateway) ListProjects(ctx context.Context, ownerID string) ([]*project.Project, error) {
	return retriedValue(ctx, g, OpListProjects, func(ctx context.Context) ([]*project.Project, error) {
		return g.inner.ListProjects(ctx, ownerID)
	})
}

func (g *ResilientGateway) CreateProject(ctx context.Context, draft ProjectDraft) (*project.Project, error) {
	return onceValue(g, OpCreateProject, func() (*project.Project, error) {
		return g.inner.CreateProject(ctx, draft)
	})
}

func (g *ResilientGateway) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (*project.Project, error) {
	return retriedValue(ctx, g, OpUpdateProject, func(ctx context.Context) (*project.Project, error) {
		return g.inner.UpdateProject(ctx, id, patch)
	})
}

func (g *ResilientGateway) DeleteProject(ctx context.Context, id string) error {
	return g.once(OpDeleteProject, func() error { return g.inner.DeleteProject(ctx, id) })
}

func (g *ResilientGateway) FetchNodes(ctx context.Context, projectID string) ([]*node.Node, error) {
	return retriedValue(ctx, g, OpFetchNodes, func(ctx context.Context) ([]*node.Node, error) {
		return g.inner.FetchNodes(ctx, projectID)
	})
}

func (g *ResilientGateway) CreateNode(ctx context.Context, draft NodeDraft) (*node.Node, error) {
	return onceValue(g, OpCreateNode, func() (*node.Node, error) {
		return g.inner.CreateNode(ctx, draft)
	})
}

func (g *ResilientGateway) UpdateNode(ctx context.Context, id string, patch NodePatch) (*node.Node, error) {
	return retriedValue(ctx, g, OpUpdateNode, func(ctx context.Context) (*node.Node, error) {
		return g.inner.UpdateNode(ctx, id, patch)
	})
}

func (g *ResilientGateway) DeleteNode(ctx context.Context, id string) error {
	return g.once(OpDeleteNode, func() error { return g.inner.DeleteNode(ctx, id) })
}

func (g *ResilientGateway) FetchEdges(ctx context.Context, projectID string) ([]*edge.Edge, error) {
	return retriedValue(ctx, g, OpFetchEdges, func(ctx context.Context) ([]*edge.Edge, error) {
		return g.inner.FetchEdges(ctx, projectID)
	})
}

func (g *ResilientGateway) CreateEdge(ctx context.Context, draft EdgeDraft) (*edge.Edge, error) {
	return onceValue(g, OpCreateEdge, func() (*edge.Edge, error) {
		return g.inner.CreateEdge(ctx, draft)
	})
}

func (g *ResilientGateway) UpdateEdge(ctx context.Context, id string, patch EdgePatch) (*edge.Edge, error) {
	return retriedValue(ctx, g, OpUpdateEdge, func(ctx context.Context) (*edge.Edge, error) {
		return g.inner.UpdateEdge(ctx, id, patch)
	})
}

func (g *ResilientGateway) DeleteEdge(ctx context.Context, id string) error {
	return g.once(OpDeleteEdge, func() error { return g.inner.DeleteEdge(ctx, id) })
}

func (g *ResilientGateway) CreateSnapshot(ctx context.Context, draft SnapshotDraft) (*history.Snapshot, error) {
	return onceValue(g, OpCreateSnapshot, func() (*history.Snapshot, error) {
		return g.inner.CreateSnapshot(ctx, draft)
	})
}

func (g *ResilientGateway) ListSnapshots(ctx context.Context, projectID string) ([]*history.Snapshot, error) {
	return retriedValue(ctx, g, OpListSnapshots, func(ctx context.Context) ([]*history.Snapshot, error) {
		return g.inner.ListSnapshots(ctx, projectID)
	})
}

func (g *ResilientGateway) FetchTemplate(ctx context.Context, id string) (*template.Template, error) {
	return retriedValue(ctx, g, OpFetchTemplate, func(ctx context.Context) (*template.Template, error) {
		return g.inner.FetchTemplate(ctx, id)
	})
}

func (g *ResilientGateway) ListTemplates(ctx context.Context) ([]*template.Template, error) {
	return retriedValue(ctx, g, OpListTemplates, func(ctx context.Context) ([]*template.Template, error) {
		return g.inner.ListTemplates(ctx)
	})
}

func (g *ResilientGateway) CreateTemplate(ctx context.Context, draft TemplateDraft) (*template.Template, error) {
	return onceValue(g, OpCreateTemplate, func() (*template.Template, error) {
		return g.inner.CreateTemplate(ctx, draft)
	})
}

func (g *ResilientGateway) InstantiateTemplate(ctx context.Context, req InstantiateRequest) (string, error) {
	return onceValue(g, OpInstantiateTemplate, func() (string, error) {
		return g.inner.InstantiateTemplate(ctx, req)
	})
}

func (g *ResilientGateway) ListTasks(ctx context.Context, projectID string) ([]*project.Task, error) {
	return retriedValue(ctx, g, OpListTasks, func(ctx context.Context) ([]*project.Task, error) {
		return g.inner.ListTasks(ctx, projectID)
	})
}

func (g *ResilientGateway) CreateTask(ctx context.Context, draft TaskDraft) (*project.Task, error) {
	return onceValue(g, OpCreateTask, func() (*project.Task, error) {
		return g.inner.CreateTask(ctx, draft)
	})
}

func (g *ResilientGateway) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*project.Task, error) {
	return retriedValue(ctx, g, OpUpdateTask, func(ctx context.Context) (*project.Task, error) {
		return g.inner.UpdateTask(ctx, id, patch)
	})
}

func (g *ResilientGateway) DeleteTask(ctx context.Context, id string) error {
	return g.once(OpDeleteTask, func() error { return g.inner.DeleteTask(ctx, id) })
}

func (g *ResilientGateway) ListGrants(ctx context.Context, projectID string) ([]*project.SharingGrant, error) {
	return retriedValue(ctx, g, OpListGrants, func(ctx context.Context) ([]*project.SharingGrant, error) {
		return g.inner.ListGrants(ctx, projectID)
	})
}

func (g *ResilientGateway) GrantAccess(ctx context.Context, draft GrantDraft) (*project.SharingGrant, error) {
	return onceValue(g, OpGrantAccess, func() (*project.SharingGrant, error) {
		return g.inner.GrantAccess(ctx, draft)
	})
}

func (g *ResilientGateway) RevokeAccess(ctx context.Context, id string) error {
	return g.once(OpRevokeAccess, func() error { return g.inner.RevokeAccess(ctx, id) })
}

var _ Gateway = (*ResilientGateway)(nil)
