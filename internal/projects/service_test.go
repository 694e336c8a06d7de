package projects

import (
	"context"
	"testing"

	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/domain/shared"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/identity"
	"canvas-backend/internal/persistence"
	"canvas-backend/internal/persistence/memory"
	"canvas-backend/internal/persistence/persistencetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

type world struct {
	ctx      context.Context
	rec      *persistencetest.Recorder
	owner    *Service
	guest    *Service
	stranger *Service
}

func newWorld() *world {
	rec := persistencetest.NewRecorder(memory.New())
	return &world{
		ctx:      context.Background(),
		rec:      rec,
		owner:    NewService(rec, identity.Static("alice"), nil),
		guest:    NewService(rec, identity.Static("bob"), nil),
		stranger: NewService(rec, identity.Static("mallory"), nil),
	}
}

func (w *world) project(t *testing.T) *project.Project {
	t.Helper()
	p, err := w.owner.CreateProject(w.ctx, CreateProjectInput{Title: "Launch", Tags: []string{"q3", "marketing"}})
	require.NoError(t, err)
	return p
}

func TestCreateProjectOwnedByCurrentUser(t *testing.T) {
	w := newWorld()
	p := w.project(t)

	assert.Equal(t, "alice", p.OwnerID)
	assert.Equal(t, []string{"q3", "marketing"}, p.Tags)

	list, err := w.owner.ListProjects(w.ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	others, err := w.guest.ListProjects(w.ctx)
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestCreateProjectValidation(t *testing.T) {
	long := make([]byte, 201)
	for i := range long {
		long[i] = 'x'
	}
	tests := []struct {
		name  string
		input CreateProjectInput
		field string
	}{
		{name: "missing title", input: CreateProjectInput{}, field: "Title"},
		{name: "long title", input: CreateProjectInput{Title: string(long)}, field: "Title"},
		{name: "bad tag", input: CreateProjectInput{Title: "ok", Tags: []string{"a/b"}}, field: "Tags[0]"},
		{name: "empty collaborator", input: CreateProjectInput{Title: "ok", Collaborators: []string{""}}, field: "Collaborators[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld()
			_, err := w.owner.CreateProject(w.ctx, tt.input)

			var uerr *cerrors.UnifiedError
			require.ErrorAs(t, err, &uerr)
			assert.Equal(t, cerrors.ErrorTypeValidation, uerr.Kind)
			assert.Contains(t, uerr.Details, tt.field)
			assert.Empty(t, w.rec.Calls())
		})
	}
}

func TestUpdateProjectRequiresEditAccess(t *testing.T) {
	w := newWorld()
	p := w.project(t)

	_, err := w.stranger.UpdateProject(w.ctx, p.ID, UpdateProjectInput{Title: str("Hijacked")})
	assert.ErrorIs(t, err, cerrors.ErrForbidden)

	updated, err := w.owner.UpdateProject(w.ctx, p.ID, UpdateProjectInput{Title: str("Launch v2"), Tags: []string{"q4"}})
	require.NoError(t, err)
	assert.Equal(t, "Launch v2", updated.Title)
	assert.Equal(t, []string{"q4"}, updated.Tags)

	w.rec.Reset()
	same, err := w.owner.UpdateProject(w.ctx, p.ID, UpdateProjectInput{})
	require.NoError(t, err)
	assert.Equal(t, "Launch v2", same.Title)
	assert.Zero(t, w.rec.Count(persistence.OpUpdateProject))

	_, err = w.owner.UpdateProject(w.ctx, p.ID, UpdateProjectInput{Title: str("")})
	assert.True(t, cerrors.IsValidation(err))
}

func TestPublicProjectsAreReadable(t *testing.T) {
	w := newWorld()
	p := w.project(t)

	_, err := w.stranger.Project(w.ctx, p.ID)
	assert.ErrorIs(t, err, cerrors.ErrForbidden)

	_, err = w.owner.UpdateProject(w.ctx, p.ID, UpdateProjectInput{IsPublic: boolPtr(true)})
	require.NoError(t, err)

	got, err := w.stranger.Project(w.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = w.stranger.CreateTask(w.ctx, CreateTaskInput{ProjectID: p.ID, Title: "sneaky"})
	assert.ErrorIs(t, err, cerrors.ErrForbidden)
}

func boolPtr(b bool) *bool { return &b }

func TestDeleteProjectIsOwnerOnly(t *testing.T) {
	w := newWorld()
	p := w.project(t)
	_, err := w.owner.Grant(w.ctx, GrantInput{ProjectID: p.ID, UserID: "bob", Permission: project.PermissionEdit})
	require.NoError(t, err)

	assert.ErrorIs(t, w.guest.DeleteProject(w.ctx, p.ID), cerrors.ErrForbidden)
	require.NoError(t, w.owner.DeleteProject(w.ctx, p.ID))

	_, err = w.owner.Project(w.ctx, p.ID)
	assert.ErrorIs(t, err, cerrors.ErrRecordNotFound)
}

func TestTaskLifecycle(t *testing.T) {
	w := newWorld()
	p := w.project(t)

	task, err := w.owner.CreateTask(w.ctx, CreateTaskInput{ProjectID: p.ID, Title: "Write copy"})
	require.NoError(t, err)
	assert.Equal(t, shared.TaskPending, task.Status)
	assert.Equal(t, shared.PriorityMedium, task.Priority)

	done := shared.TaskCompleted
	updated, err := w.owner.UpdateTask(w.ctx, p.ID, task.ID, UpdateTaskInput{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, shared.TaskCompleted, updated.Status)
	assert.Equal(t, "Write copy", updated.Title)

	bogus := shared.TaskStatus("done")
	_, err = w.owner.UpdateTask(w.ctx, p.ID, task.ID, UpdateTaskInput{Status: &bogus})
	var uerr *cerrors.UnifiedError
	require.ErrorAs(t, err, &uerr)
	assert.Contains(t, uerr.Details, "Status")

	_, err = w.owner.CreateTask(w.ctx, CreateTaskInput{ProjectID: p.ID, Title: "x", Priority: "whenever"})
	assert.True(t, cerrors.IsValidation(err))

	tasks, err := w.owner.Tasks(w.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, w.owner.DeleteTask(w.ctx, p.ID, task.ID))
	tasks, err = w.owner.Tasks(w.ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestGrantTracksCollaborators(t *testing.T) {
	w := newWorld()
	p := w.project(t)

	g, err := w.owner.Grant(w.ctx, GrantInput{ProjectID: p.ID, UserID: "bob", Permission: project.PermissionEdit})
	require.NoError(t, err)
	assert.Equal(t, project.PermissionEdit, g.Permission)

	visible, err := w.guest.ListProjects(w.ctx)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	_, err = w.guest.UpdateProject(w.ctx, p.ID, UpdateProjectInput{Description: str("edited by bob")})
	require.NoError(t, err)

	// downgrading to view drops edit rights
	_, err = w.owner.Grant(w.ctx, GrantInput{ProjectID: p.ID, UserID: "bob", Permission: project.PermissionView})
	require.NoError(t, err)
	_, err = w.guest.UpdateProject(w.ctx, p.ID, UpdateProjectInput{Description: str("again")})
	assert.ErrorIs(t, err, cerrors.ErrForbidden)

	grants, err := w.owner.Grants(w.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, project.PermissionView, grants[0].Permission)

	require.NoError(t, w.owner.Revoke(w.ctx, p.ID, grants[0].ID))
	grants, err = w.owner.Grants(w.ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)

	err = w.owner.Revoke(w.ctx, p.ID, "missing")
	assert.ErrorIs(t, err, cerrors.ErrRecordNotFound)
}

func TestGrantValidation(t *testing.T) {
	w := newWorld()
	p := w.project(t)

	_, err := w.owner.Grant(w.ctx, GrantInput{ProjectID: p.ID, UserID: "bob", Permission: "owner"})
	assert.True(t, cerrors.IsValidation(err))

	_, err = w.owner.Grant(w.ctx, GrantInput{ProjectID: p.ID, UserID: "alice", Permission: project.PermissionAdmin})
	assert.True(t, cerrors.IsValidation(err))

	_, err = w.guest.Grant(w.ctx, GrantInput{ProjectID: p.ID, UserID: "mallory", Permission: project.PermissionView})
	assert.ErrorIs(t, err, cerrors.ErrForbidden)
}
