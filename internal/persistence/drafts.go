package persistence

import (
	"time"

	"canvas-backend/internal/domain/edge"
	"canvas-backend/internal/domain/graph"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/domain/shared"
	"canvas-backend/internal/domain/template"
	cerrors "canvas-backend/internal/errors"
)

// ProjectDraft is the input of CreateProject.
type ProjectDraft struct {
	Title            string
	Description      string
	OwnerID          string
	IsTemplate       bool
	SourceTemplateID *string
	IsPublic         bool
	Collaborators    []string
	Tags             []string
	Metadata         map[string]any
}

// Validate checks the fields the store requires.
func (d ProjectDraft) Validate() error {
	if d.OwnerID == "" {
		return cerrors.Validation(cerrors.CodeValidationFailed, "project owner is required").Build()
	}
	if d.Title == "" {
		return cerrors.Validation(cerrors.CodeValidationFailed, "project title is required").Build()
	}
	return nil
}

// ProjectPatch lists the project fields to change. Nil fields are untouched.
type ProjectPatch struct {
	Title         *string
	Description   *string
	IsPublic      *bool
	Collaborators []string
	Tags          []string
	Metadata      map[string]any
}

// Empty reports whether the patch changes nothing.
func (p ProjectPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.IsPublic == nil &&
		p.Collaborators == nil && p.Tags == nil && p.Metadata == nil
}

// Apply writes the patch onto pr.
func (p ProjectPatch) Apply(pr *project.Project) {
	if p.Title != nil {
		pr.Title = *p.Title
	}
	if p.Description != nil {
		pr.Description = *p.Description
	}
	if p.IsPublic != nil {
		pr.IsPublic = *p.IsPublic
	}
	if p.Collaborators != nil {
		pr.Collaborators = shared.CloneStrings(p.Collaborators)
	}
	if p.Tags != nil {
		pr.Tags = shared.CloneStrings(p.Tags)
	}
	if p.Metadata != nil {
		pr.Metadata = shared.CloneMap(p.Metadata)
	}
}

// NodeDraft is the input of CreateNode.
type NodeDraft struct {
	ProjectID string
	Variant   node.Variant
	Title     string
	Content   *string
	Position  shared.Position
	Size      *shared.Size
	Style     map[string]any
	Payload   node.Payload
	Extra     map[string]any
	CreatedBy string
}

// Validate checks the draft before any I/O.
func (d NodeDraft) Validate() error {
	if d.ProjectID == "" || d.CreatedBy == "" {
		return cerrors.Validation(cerrors.CodeValidationFailed, "node draft needs project and creator").Build()
	}
	n := d.Node("draft", time.Time{})
	return n.Validate()
}

// Node materialises the draft with the given identity and timestamp.
func (d NodeDraft) Node(id string, at time.Time) *node.Node {
	n := &node.Node{
		ID:        id,
		ProjectID: d.ProjectID,
		Variant:   d.Variant,
		Title:     d.Title,
		Content:   d.Content,
		Position:  d.Position,
		Size:      d.Size,
		Style:     d.Style,
		Payload:   d.Payload,
		Extra:     d.Extra,
		CreatedBy: d.CreatedBy,
		CreatedAt: at,
		UpdatedAt: at,
	}
	return n.Clone()
}

// NodePatch lists the node fields to change. Nil fields are untouched. When
// Payload or Extra is set the whole metadata column is replaced by
// EncodeMetadata(Payload, Extra), so callers set both.
type NodePatch struct {
	Title    *string
	Content  *string
	Position *shared.Position
	Size     *shared.Size
	Style    map[string]any
	Payload  node.Payload
	Extra    map[string]any
}

// Empty reports whether the patch changes nothing.
func (p NodePatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Position == nil && p.Size == nil &&
		p.Style == nil && p.Payload == nil && p.Extra == nil
}

// Merge returns p overridden field by field with newer.
func (p NodePatch) Merge(newer NodePatch) NodePatch {
	if newer.Title != nil {
		p.Title = newer.Title
	}
	if newer.Content != nil {
		p.Content = newer.Content
	}
	if newer.Position != nil {
		p.Position = newer.Position
	}
	if newer.Size != nil {
		p.Size = newer.Size
	}
	if newer.Style != nil {
		p.Style = newer.Style
	}
	if newer.Payload != nil || newer.Extra != nil {
		p.Payload = newer.Payload
		p.Extra = newer.Extra
	}
	return p
}

// Apply writes the patch onto n.
func (p NodePatch) Apply(n *node.Node) {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		c := *p.Content
		n.Content = &c
	}
	if p.Position != nil {
		n.Position = *p.Position
	}
	if p.Size != nil {
		s := *p.Size
		n.Size = &s
	}
	if p.Style != nil {
		n.Style = shared.CloneMap(p.Style)
	}
	if p.Payload != nil || p.Extra != nil {
		n.Payload = node.ClonePayload(p.Payload)
		n.Extra = shared.CloneMap(p.Extra)
	}
}

// EdgeDraft is the input of CreateEdge.
type EdgeDraft struct {
	ProjectID string
	SourceID  string
	TargetID  string
	Label     *string
	Style     map[string]any
	Metadata  map[string]any
	CreatedBy string
}

// Validate checks the draft before any I/O.
func (d EdgeDraft) Validate() error {
	if d.ProjectID == "" || d.SourceID == "" || d.TargetID == "" || d.CreatedBy == "" {
		return cerrors.Validation(cerrors.CodeValidationFailed, "edge draft needs project, endpoints and creator").Build()
	}
	return nil
}

// Edge materialises the draft with the given identity and timestamp.
func (d EdgeDraft) Edge(id string, at time.Time) *edge.Edge {
	e := &edge.Edge{
		ID:        id,
		ProjectID: d.ProjectID,
		SourceID:  d.SourceID,
		TargetID:  d.TargetID,
		Label:     d.Label,
		Style:     d.Style,
		Metadata:  d.Metadata,
		CreatedBy: d.CreatedBy,
		CreatedAt: at,
		UpdatedAt: at,
	}
	return e.Clone()
}

// EdgePatch lists the edge fields to change.
type EdgePatch struct {
	Label    *string
	Style    map[string]any
	Metadata map[string]any
}

// Empty reports whether the patch changes nothing.
func (p EdgePatch) Empty() bool {
	return p.Label == nil && p.Style == nil && p.Metadata == nil
}

// Merge returns p overridden field by field with newer.
func (p EdgePatch) Merge(newer EdgePatch) EdgePatch {
	if newer.Label != nil {
		p.Label = newer.Label
	}
	if newer.Style != nil {
		p.Style = newer.Style
	}
	if newer.Metadata != nil {
		p.Metadata = newer.Metadata
	}
	return p
}

// Apply writes the patch onto e.
func (p EdgePatch) Apply(e *edge.Edge) {
	if p.Label != nil {
		l := *p.Label
		e.Label = &l
	}
	if p.Style != nil {
		e.Style = shared.CloneMap(p.Style)
	}
	if p.Metadata != nil {
		e.Metadata = shared.CloneMap(p.Metadata)
	}
}

// SnapshotDraft is the input of CreateSnapshot.
type SnapshotDraft struct {
	ProjectID string
	Graph     graph.Snapshot
	Comment   *string
	CreatedBy string
}

// TemplateDraft is the input of CreateTemplate.
type TemplateDraft struct {
	Title        string
	Description  string
	Category     string
	IsOfficial   bool
	IsPublic     bool
	Elements     []template.Element
	Connections  []template.Connection
	ThumbnailURL string
	CreatedBy    string
}

// InstantiateRequest is the input of the atomic instantiate procedure.
type InstantiateRequest struct {
	TemplateID  string
	OwnerID     string
	Title       string
	Description *string
}

// TaskDraft is the input of CreateTask.
type TaskDraft struct {
	ProjectID   string
	NodeID      *string
	Title       string
	Description string
	Status      shared.TaskStatus
	Priority    shared.TaskPriority
	DueDate     *time.Time
	AssigneeID  *string
}

// TaskPatch lists the task fields to change.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *shared.TaskStatus
	Priority    *shared.TaskPriority
	DueDate     *time.Time
	AssigneeID  *string
	NodeID      *string
}

// Apply writes the patch onto t.
func (p TaskPatch) Apply(t *project.Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.AssigneeID != nil {
		a := *p.AssigneeID
		t.AssigneeID = &a
	}
	if p.NodeID != nil {
		n := *p.NodeID
		t.NodeID = &n
	}
}

// GrantDraft is the input of GrantAccess.
type GrantDraft struct {
	ProjectID  string
	UserID     string
	Permission project.Permission
}
