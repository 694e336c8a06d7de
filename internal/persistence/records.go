package persistence

import (
	"fmt"
	"time"

	"canvas-backend/internal/domain/edge"
	"canvas-backend/internal/domain/graph"
	"canvas-backend/internal/domain/history"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/domain/shared"
	"canvas-backend/internal/domain/template"
	cerrors "canvas-backend/internal/errors"
)

// Table names shared by the SQL and PostgREST gateways.
const (
	TableProjects    = "canvas_projects"
	TableNodes       = "canvas_elements"
	TableEdges       = "canvas_connections"
	TableSnapshots   = "canvas_history"
	TableTemplates   = "canvas_templates"
	TableTasks       = "canvas_tasks"
	TableGrants      = "canvas_shares"
	ProcInstantiate  = "instantiate_template"
	maxRecordIDLabel = 64
)

// ProjectRecord is the wire form of a project row.
type ProjectRecord struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	OwnerID          string         `json:"owner_id"`
	IsTemplate       bool           `json:"is_template"`
	SourceTemplateID *string        `json:"template_id"`
	IsPublic         bool           `json:"is_public"`
	Collaborators    []string       `json:"collaborators"`
	Tags             []string       `json:"tags"`
	Metadata         map[string]any `json:"metadata"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// NodeRecord is the wire form of a canvas element row.
type NodeRecord struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Content   *string         `json:"content"`
	Position  shared.Position `json:"position"`
	Size      *shared.Size    `json:"size"`
	Style     map[string]any  `json:"style"`
	Metadata  map[string]any  `json:"metadata"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// EdgeRecord is the wire form of a connection row.
type EdgeRecord struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	SourceID  string         `json:"source_id"`
	TargetID  string         `json:"target_id"`
	Label     *string        `json:"label"`
	Style     map[string]any `json:"style"`
	Metadata  map[string]any `json:"metadata"`
	CreatedBy string         `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// GraphRecord is the serialized graph stored in a history row.
type GraphRecord struct {
	Nodes []NodeRecord `json:"nodes"`
	Edges []EdgeRecord `json:"edges"`
}

// SnapshotRecord is the wire form of a history row.
type SnapshotRecord struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"project_id"`
	Snapshot  GraphRecord `json:"snapshot"`
	Comment   *string     `json:"comment"`
	CreatedBy string      `json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
}

// TemplateRecord is the wire form of a template row.
type TemplateRecord struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Category     string                `json:"category"`
	IsOfficial   bool                  `json:"is_official"`
	IsPublic     bool                  `json:"is_public"`
	Elements     []template.Element    `json:"elements"`
	Connections  []template.Connection `json:"connections"`
	ThumbnailURL string                `json:"thumbnail_url"`
	CreatedBy    string                `json:"created_by"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// TaskRecord is the wire form of a task row.
type TaskRecord struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	NodeID      *string    `json:"element_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	AssigneeID  *string    `json:"assigned_to"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// GrantRecord is the wire form of a sharing row.
type GrantRecord struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	UserID     string    `json:"user_id"`
	Permission string    `json:"permission"`
	CreatedAt  time.Time `json:"created_at"`
}

func malformed(kind, id, format string, args ...any) error {
	if len(id) > maxRecordIDLabel {
		id = id[:maxRecordIDLabel]
	}
	return fmt.Errorf("%w: %s %q: %s", cerrors.ErrMalformedRecord, kind, id, fmt.Sprintf(format, args...))
}

// EncodeProject maps a project to its row.
func EncodeProject(p *project.Project) ProjectRecord {
	c := p.Clone()
	return ProjectRecord{
		ID:               c.ID,
		Title:            c.Title,
		Description:      c.Description,
		OwnerID:          c.OwnerID,
		IsTemplate:       c.IsTemplate,
		SourceTemplateID: c.SourceTemplateID,
		IsPublic:         c.IsPublic,
		Collaborators:    c.Collaborators,
		Tags:             c.Tags,
		Metadata:         c.Metadata,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// DecodeProject maps a row to a project.
func DecodeProject(r ProjectRecord) (*project.Project, error) {
	if r.ID == "" {
		return nil, malformed("project", r.ID, "missing id")
	}
	p := &project.Project{
		ID:               r.ID,
		Title:            r.Title,
		Description:      r.Description,
		OwnerID:          r.OwnerID,
		IsTemplate:       r.IsTemplate,
		SourceTemplateID: r.SourceTemplateID,
		IsPublic:         r.IsPublic,
		Collaborators:    r.Collaborators,
		Tags:             r.Tags,
		Metadata:         r.Metadata,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	return p.Clone(), nil
}

// EncodeNode maps a node to its row. The payload and the extra keys are
// flattened into the metadata column.
func EncodeNode(n *node.Node) NodeRecord {
	c := n.Clone()
	return NodeRecord{
		ID:        c.ID,
		ProjectID: c.ProjectID,
		Type:      string(c.Variant),
		Title:     c.Title,
		Content:   c.Content,
		Position:  c.Position,
		Size:      c.Size,
		Style:     c.Style,
		Metadata:  node.EncodeMetadata(c.Payload, c.Extra),
		CreatedBy: c.CreatedBy,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// DecodeNode maps a row to a node. Unknown variants and ill-typed payload
// fields are malformed.
func DecodeNode(r NodeRecord) (*node.Node, error) {
	if r.ID == "" || r.ProjectID == "" {
		return nil, malformed("node", r.ID, "missing identity")
	}
	v, err := node.ParseVariant(r.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cerrors.ErrMalformedRecord, err)
	}
	payload, extra, err := node.DecodeMetadata(v, r.Metadata)
	if err != nil {
		return nil, err
	}
	n := &node.Node{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		Variant:   v,
		Title:     r.Title,
		Content:   r.Content,
		Position:  r.Position,
		Size:      r.Size,
		Style:     r.Style,
		Payload:   payload,
		Extra:     extra,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := n.Validate(); err != nil {
		return nil, malformed("node", r.ID, "%v", err)
	}
	return n.Clone(), nil
}

// EncodeEdge maps an edge to its row.
func EncodeEdge(e *edge.Edge) EdgeRecord {
	c := e.Clone()
	return EdgeRecord{
		ID:        c.ID,
		ProjectID: c.ProjectID,
		SourceID:  c.SourceID,
		TargetID:  c.TargetID,
		Label:     c.Label,
		Style:     c.Style,
		Metadata:  c.Metadata,
		CreatedBy: c.CreatedBy,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// DecodeEdge maps a row to an edge.
func DecodeEdge(r EdgeRecord) (*edge.Edge, error) {
	if r.ID == "" || r.ProjectID == "" {
		return nil, malformed("edge", r.ID, "missing identity")
	}
	if r.SourceID == "" || r.TargetID == "" {
		return nil, malformed("edge", r.ID, "missing endpoint")
	}
	e := &edge.Edge{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		SourceID:  r.SourceID,
		TargetID:  r.TargetID,
		Label:     r.Label,
		Style:     r.Style,
		Metadata:  r.Metadata,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	return e.Clone(), nil
}

// EncodeGraph maps a graph snapshot to the stored document.
func EncodeGraph(g graph.Snapshot) GraphRecord {
	out := GraphRecord{
		Nodes: make([]NodeRecord, 0, len(g.Nodes)),
		Edges: make([]EdgeRecord, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		out.Nodes = append(out.Nodes, EncodeNode(n))
	}
	for _, e := range g.Edges {
		out.Edges = append(out.Edges, EncodeEdge(e))
	}
	return out
}

// DecodeGraph maps a stored document back to a graph snapshot.
func DecodeGraph(projectID string, r GraphRecord) (graph.Snapshot, error) {
	g := graph.Snapshot{ProjectID: projectID}
	for _, nr := range r.Nodes {
		n, err := DecodeNode(nr)
		if err != nil {
			return graph.Snapshot{}, err
		}
		g.Nodes = append(g.Nodes, n)
	}
	for _, er := range r.Edges {
		e, err := DecodeEdge(er)
		if err != nil {
			return graph.Snapshot{}, err
		}
		g.Edges = append(g.Edges, e)
	}
	return g, nil
}

// EncodeSnapshot maps a history snapshot to its row.
func EncodeSnapshot(s *history.Snapshot) SnapshotRecord {
	return SnapshotRecord{
		ID:        s.ID,
		ProjectID: s.ProjectID,
		Snapshot:  EncodeGraph(s.Graph),
		Comment:   cloneString(s.Comment),
		CreatedBy: s.CreatedBy,
		CreatedAt: s.CreatedAt,
	}
}

// DecodeSnapshot maps a row to a history snapshot.
func DecodeSnapshot(r SnapshotRecord) (*history.Snapshot, error) {
	if r.ID == "" || r.ProjectID == "" {
		return nil, malformed("snapshot", r.ID, "missing identity")
	}
	g, err := DecodeGraph(r.ProjectID, r.Snapshot)
	if err != nil {
		return nil, err
	}
	return &history.Snapshot{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		Graph:     g,
		Comment:   cloneString(r.Comment),
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
	}, nil
}

// EncodeTemplate maps a template to its row.
func EncodeTemplate(t *template.Template) TemplateRecord {
	return TemplateRecord{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Category:     t.Category,
		IsOfficial:   t.IsOfficial,
		IsPublic:     t.IsPublic,
		Elements:     t.Elements,
		Connections:  t.Connections,
		ThumbnailURL: t.ThumbnailURL,
		CreatedBy:    t.CreatedBy,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// DecodeTemplate maps a row to a template. Element variants are checked so a
// bad blueprint fails before anything is instantiated from it.
func DecodeTemplate(r TemplateRecord) (*template.Template, error) {
	if r.ID == "" {
		return nil, malformed("template", r.ID, "missing id")
	}
	for _, el := range r.Elements {
		if !el.Variant.Valid() {
			return nil, malformed("template", r.ID, "element %q has unknown type %q", el.LocalID, el.Variant)
		}
	}
	return &template.Template{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		Category:     r.Category,
		IsOfficial:   r.IsOfficial,
		IsPublic:     r.IsPublic,
		Elements:     r.Elements,
		Connections:  r.Connections,
		ThumbnailURL: r.ThumbnailURL,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

// EncodeTask maps a task to its row.
func EncodeTask(t *project.Task) TaskRecord {
	return TaskRecord{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		NodeID:      cloneString(t.NodeID),
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		DueDate:     cloneTime(t.DueDate),
		AssigneeID:  cloneString(t.AssigneeID),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// DecodeTask maps a row to a task.
func DecodeTask(r TaskRecord) (*project.Task, error) {
	if r.ID == "" || r.ProjectID == "" {
		return nil, malformed("task", r.ID, "missing identity")
	}
	status := shared.TaskStatus(r.Status)
	if !status.Valid() {
		return nil, malformed("task", r.ID, "unknown status %q", r.Status)
	}
	priority := shared.TaskPriority(r.Priority)
	if !priority.Valid() {
		return nil, malformed("task", r.ID, "unknown priority %q", r.Priority)
	}
	return &project.Task{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		NodeID:      cloneString(r.NodeID),
		Title:       r.Title,
		Description: r.Description,
		Status:      status,
		Priority:    priority,
		DueDate:     cloneTime(r.DueDate),
		AssigneeID:  cloneString(r.AssigneeID),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

// EncodeGrant maps a sharing grant to its row.
func EncodeGrant(g *project.SharingGrant) GrantRecord {
	return GrantRecord{
		ID:         g.ID,
		ProjectID:  g.ProjectID,
		UserID:     g.UserID,
		Permission: string(g.Permission),
		CreatedAt:  g.CreatedAt,
	}
}

// DecodeGrant maps a row to a sharing grant.
func DecodeGrant(r GrantRecord) (*project.SharingGrant, error) {
	if r.ID == "" || r.ProjectID == "" || r.UserID == "" {
		return nil, malformed("grant", r.ID, "missing identity")
	}
	perm := project.Permission(r.Permission)
	if !perm.Valid() {
		return nil, malformed("grant", r.ID, "unknown permission %q", r.Permission)
	}
	return &project.SharingGrant{
		ID:         r.ID,
		ProjectID:  r.ProjectID,
		UserID:     r.UserID,
		Permission: perm,
		CreatedAt:  r.CreatedAt,
	}, nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
