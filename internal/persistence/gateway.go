// Package persistence maps canvas domain entities to and from their remote
// relational representation.
//
// The Gateway contract is split in role interfaces so consumers can depend on
// the narrowest one. Every implementation reports failures as
// *errors.PersistenceError{Operation, Cause} and never mutates caller state
// on failure. Identifiers are always assigned by the gateway on create.
//
// Implementations live in sub packages:
//   - memory:   in-process store, rows kept as JSON
//   - sqlstore: database/sql over SQLite (modernc) or PostgreSQL (pgx)
//   - supabase: PostgREST tables and RPC through supabase-go
//
// Decorators in this package add resilience (ResilientGateway) and
// observability (InstrumentedGateway).
package persistence

import (
	"context"

	"canvas-backend/internal/domain/edge"
	"canvas-backend/internal/domain/history"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/domain/template"
)

// Operation names used in PersistenceError, logs and metrics.
const (
	OpFetchProject        = "fetchProject"
	OpListProjects        = "listProjects"
	OpCreateProject       = "createProject"
	OpUpdateProject       = "updateProject"
	OpDeleteProject       = "deleteProject"
	OpFetchNodes          = "fetchNodes"
	OpCreateNode          = "createNode"
	OpUpdateNode          = "updateNode"
	OpDeleteNode          = "deleteNode"
	OpFetchEdges          = "fetchEdges"
	OpCreateEdge          = "createEdge"
	OpUpdateEdge          = "updateEdge"
	OpDeleteEdge          = "deleteEdge"
	OpCreateSnapshot      = "createSnapshot"
	OpListSnapshots       = "listSnapshots"
	OpFetchTemplate       = "fetchTemplate"
	OpListTemplates       = "listTemplates"
	OpCreateTemplate      = "createTemplate"
	OpInstantiateTemplate = "instantiateTemplate"
	OpListTasks           = "listTasks"
	OpCreateTask          = "createTask"
	OpUpdateTask          = "updateTask"
	OpDeleteTask          = "deleteTask"
	OpListGrants          = "listGrants"
	OpGrantAccess         = "grantAccess"
	OpRevokeAccess        = "revokeAccess"
)

// ProjectGateway persists projects.
type ProjectGateway interface {
	FetchProject(ctx context.Context, id string) (*project.Project, error)
	ListProjects(ctx context.Context, ownerID string) ([]*project.Project, error)
	CreateProject(ctx context.Context, draft ProjectDraft) (*project.Project, error)
	UpdateProject(ctx context.Context, id string, patch ProjectPatch) (*project.Project, error)
	DeleteProject(ctx context.Context, id string) error
}

// NodeGateway persists canvas elements.
type NodeGateway interface {
	FetchNodes(ctx context.Context, projectID string) ([]*node.Node, error)
	CreateNode(ctx context.Context, draft NodeDraft) (*node.Node, error)
	UpdateNode(ctx context.Context, id string, patch NodePatch) (*node.Node, error)
	DeleteNode(ctx context.Context, id string) error
}

// EdgeGateway persists connections.
type EdgeGateway interface {
	FetchEdges(ctx context.Context, projectID string) ([]*edge.Edge, error)
	CreateEdge(ctx context.Context, draft EdgeDraft) (*edge.Edge, error)
	UpdateEdge(ctx context.Context, id string, patch EdgePatch) (*edge.Edge, error)
	DeleteEdge(ctx context.Context, id string) error
}

// SnapshotGateway persists history snapshots. Snapshots are append-only.
type SnapshotGateway interface {
	CreateSnapshot(ctx context.Context, draft SnapshotDraft) (*history.Snapshot, error)
	ListSnapshots(ctx context.Context, projectID string) ([]*history.Snapshot, error)
}

// TemplateGateway persists templates and exposes the atomic instantiate
// procedure. Backends without such a procedure return ErrRPCUnavailable
// wrapped in a PersistenceError.
type TemplateGateway interface {
	FetchTemplate(ctx context.Context, id string) (*template.Template, error)
	ListTemplates(ctx context.Context) ([]*template.Template, error)
	CreateTemplate(ctx context.Context, draft TemplateDraft) (*template.Template, error)
	InstantiateTemplate(ctx context.Context, req InstantiateRequest) (string, error)
}

// TaskGateway persists task records.
type TaskGateway interface {
	ListTasks(ctx context.Context, projectID string) ([]*project.Task, error)
	CreateTask(ctx context.Context, draft TaskDraft) (*project.Task, error)
	UpdateTask(ctx context.Context, id string, patch TaskPatch) (*project.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// GrantGateway persists sharing grants.
type GrantGateway interface {
	ListGrants(ctx context.Context, projectID string) ([]*project.SharingGrant, error)
	GrantAccess(ctx context.Context, draft GrantDraft) (*project.SharingGrant, error)
	RevokeAccess(ctx context.Context, id string) error
}

// GraphGateway is what an editing session needs.
type GraphGateway interface {
	ProjectGateway
	NodeGateway
	EdgeGateway
}

// Gateway is the complete persistence contract.
type Gateway interface {
	GraphGateway
	SnapshotGateway
	TemplateGateway
	TaskGateway
	GrantGateway
}
