// Package projects manages projects and the records attached to them: tasks
// and sharing grants. Inputs are validated before any gateway call and every
// mutation requires the current user to own or collaborate on the project.
package projects

import (
	"context"
	"slices"
	"time"

	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/domain/shared"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/identity"
	"canvas-backend/internal/persistence"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Gateway is what the service needs from persistence.
type Gateway interface {
	persistence.ProjectGateway
	persistence.TaskGateway
	persistence.GrantGateway
}

// CreateProjectInput describes a new project.
type CreateProjectInput struct {
	Title         string `validate:"required,max=200"`
	Description   string `validate:"max=2000"`
	IsPublic      bool
	Collaborators []string `validate:"max=50,dive,required"`
	Tags          []string `validate:"max=20,dive,tagformat,max=50"`
	Metadata      map[string]any
}

// UpdateProjectInput lists the project fields to change. Nil fields are
// left untouched.
type UpdateProjectInput struct {
	Title       *string `validate:"omitempty,min=1,max=200"`
	Description *string `validate:"omitempty,max=2000"`
	IsPublic    *bool
	Tags        []string `validate:"omitempty,max=20,dive,tagformat,max=50"`
	Metadata    map[string]any
}

// CreateTaskInput describes a new task. Status defaults to pending and
// priority to medium.
type CreateTaskInput struct {
	ProjectID   string              `validate:"required"`
	NodeID      *string             `validate:"omitempty,min=1"`
	Title       string              `validate:"required,max=200"`
	Description string              `validate:"max=5000"`
	Status      shared.TaskStatus   `validate:"omitempty,taskstatus"`
	Priority    shared.TaskPriority `validate:"omitempty,taskpriority"`
	DueDate     *time.Time
	AssigneeID  *string `validate:"omitempty,min=1"`
}

// UpdateTaskInput lists the task fields to change.
type UpdateTaskInput struct {
	Title       *string              `validate:"omitempty,min=1,max=200"`
	Description *string              `validate:"omitempty,max=5000"`
	Status      *shared.TaskStatus   `validate:"omitempty,taskstatus"`
	Priority    *shared.TaskPriority `validate:"omitempty,taskpriority"`
	DueDate     *time.Time
	AssigneeID  *string `validate:"omitempty,min=1"`
	NodeID      *string `validate:"omitempty,min=1"`
}

// GrantInput shares a project with a user.
type GrantInput struct {
	ProjectID  string             `validate:"required"`
	UserID     string             `validate:"required"`
	Permission project.Permission `validate:"required,permission"`
}

// Service manages projects, tasks and grants.
type Service struct {
	gw       Gateway
	ids      identity.Provider
	validate *validator.Validate
	logger   *zap.Logger
}

// NewService creates a Service. A nil logger is allowed.
func NewService(gw Gateway, ids identity.Provider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gw: gw, ids: ids, validate: newValidator(), logger: logger.Named("projects")}
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

// CreateProject creates a project owned by the current user.
func (s *Service) CreateProject(ctx context.Context, in CreateProjectInput) (*project.Project, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	userID, err := s.ids.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.gw.CreateProject(ctx, persistence.ProjectDraft{
		Title:         in.Title,
		Description:   in.Description,
		OwnerID:       userID,
		IsPublic:      in.IsPublic,
		Collaborators: in.Collaborators,
		Tags:          in.Tags,
		Metadata:      in.Metadata,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Project created", zap.String("project_id", p.ID), zap.String("owner_id", userID))
	return p, nil
}

// Project returns a project the current user can see.
func (s *Service) Project(ctx context.Context, id string) (*project.Project, error) {
	return s.authorize(ctx, id, accessRead)
}

// ListProjects returns the projects owned by or shared with the current user.
func (s *Service) ListProjects(ctx context.Context) ([]*project.Project, error) {
	userID, err := s.ids.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	return s.gw.ListProjects(ctx, userID)
}

// UpdateProject changes project fields.
func (s *Service) UpdateProject(ctx context.Context, id string, in UpdateProjectInput) (*project.Project, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	p, err := s.authorize(ctx, id, accessEdit)
	if err != nil {
		return nil, err
	}
	patch := persistence.ProjectPatch{
		Title:       in.Title,
		Description: in.Description,
		IsPublic:    in.IsPublic,
		Tags:        in.Tags,
		Metadata:    in.Metadata,
	}
	if patch.Empty() {
		return p, nil
	}
	return s.gw.UpdateProject(ctx, id, patch)
}

// DeleteProject removes a project with everything it owns. Only the owner
// may delete.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if _, err := s.authorize(ctx, id, accessOwner); err != nil {
		return err
	}
	if err := s.gw.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Project deleted", zap.String("project_id", id))
	return nil
}

type access int

const (
	accessRead access = iota
	accessEdit
	accessOwner
)

// authorize loads the project and checks the current user may use it at the
// given level. Public projects are readable by anyone.
func (s *Service) authorize(ctx context.Context, projectID string, level access) (*project.Project, error) {
	if projectID == "" {
		return nil, cerrors.ErrMissingID
	}
	userID, err := s.ids.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.gw.FetchProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var ok bool
	switch level {
	case accessRead:
		ok = p.IsPublic || p.CanEdit(userID)
	case accessEdit:
		ok = p.CanEdit(userID)
	case accessOwner:
		ok = p.OwnerID == userID
	}
	if !ok {
		return nil, cerrors.ErrForbidden
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

// Tasks lists the tasks of a project.
func (s *Service) Tasks(ctx context.Context, projectID string) ([]*project.Task, error) {
	if _, err := s.authorize(ctx, projectID, accessRead); err != nil {
		return nil, err
	}
	return s.gw.ListTasks(ctx, projectID)
}

// CreateTask adds a task to a project.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (*project.Task, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, in.ProjectID, accessEdit); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = shared.TaskPending
	}
	if in.Priority == "" {
		in.Priority = shared.PriorityMedium
	}
	return s.gw.CreateTask(ctx, persistence.TaskDraft{
		ProjectID:   in.ProjectID,
		NodeID:      in.NodeID,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		AssigneeID:  in.AssigneeID,
	})
}

// UpdateTask changes task fields.
func (s *Service) UpdateTask(ctx context.Context, projectID, taskID string, in UpdateTaskInput) (*project.Task, error) {
	if taskID == "" {
		return nil, cerrors.ErrMissingID
	}
	if err := s.check(in); err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, projectID, accessEdit); err != nil {
		return nil, err
	}
	return s.gw.UpdateTask(ctx, taskID, persistence.TaskPatch{
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		AssigneeID:  in.AssigneeID,
		NodeID:      in.NodeID,
	})
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, projectID, taskID string) error {
	if taskID == "" {
		return cerrors.ErrMissingID
	}
	if _, err := s.authorize(ctx, projectID, accessEdit); err != nil {
		return err
	}
	return s.gw.DeleteTask(ctx, taskID)
}

// ---------------------------------------------------------------------------
// Sharing
// ---------------------------------------------------------------------------

// Grants lists who a project is shared with.
func (s *Service) Grants(ctx context.Context, projectID string) ([]*project.SharingGrant, error) {
	if _, err := s.authorize(ctx, projectID, accessRead); err != nil {
		return nil, err
	}
	return s.gw.ListGrants(ctx, projectID)
}

// Grant shares a project. Edit and admin grants also make the user a
// collaborator; a view grant removes them from the collaborators. Only the
// owner may share.
func (s *Service) Grant(ctx context.Context, in GrantInput) (*project.SharingGrant, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	p, err := s.authorize(ctx, in.ProjectID, accessOwner)
	if err != nil {
		return nil, err
	}
	if in.UserID == p.OwnerID {
		return nil, cerrors.Validation(cerrors.CodeValidationFailed, "the owner cannot be granted access").Build()
	}
	g, err := s.gw.GrantAccess(ctx, persistence.GrantDraft{
		ProjectID:  in.ProjectID,
		UserID:     in.UserID,
		Permission: in.Permission,
	})
	if err != nil {
		return nil, err
	}
	if err := s.syncCollaborator(ctx, p, in.UserID, in.Permission != project.PermissionView); err != nil {
		return nil, err
	}
	s.logger.Info("Project shared",
		zap.String("project_id", in.ProjectID),
		zap.String("user_id", in.UserID),
		zap.String("permission", string(in.Permission)))
	return g, nil
}

// Revoke removes a grant and the matching collaborator entry.
func (s *Service) Revoke(ctx context.Context, projectID, grantID string) error {
	if grantID == "" {
		return cerrors.ErrMissingID
	}
	p, err := s.authorize(ctx, projectID, accessOwner)
	if err != nil {
		return err
	}
	grants, err := s.gw.ListGrants(ctx, projectID)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(grants, func(g *project.SharingGrant) bool { return g.ID == grantID })
	if idx < 0 {
		return cerrors.NewPersistenceError(persistence.OpRevokeAccess, cerrors.ErrRecordNotFound)
	}
	if err := s.gw.RevokeAccess(ctx, grantID); err != nil {
		return err
	}
	return s.syncCollaborator(ctx, p, grants[idx].UserID, false)
}

func (s *Service) syncCollaborator(ctx context.Context, p *project.Project, userID string, member bool) error {
	has := slices.Contains(p.Collaborators, userID)
	if has == member {
		return nil
	}
	next := make([]string, 0, len(p.Collaborators)+1)
	for _, c := range p.Collaborators {
		if c != userID {
			next = append(next, c)
		}
	}
	if member {
		next = append(next, userID)
	}
	_, err := s.gw.UpdateProject(ctx, p.ID, persistence.ProjectPatch{Collaborators: next})
	return err
}
