// Package project defines the top-level container of a canvas graph together
// with the records that hang off it: tasks and sharing grants.
package project

import (
	"time"

	"canvas-backend/internal/domain/shared"
)

// Project is a named container owning a set of nodes and edges.
type Project struct {
	ID               string
	Title            string
	Description      string
	OwnerID          string
	IsTemplate       bool
	SourceTemplateID *string
	IsPublic         bool
	Collaborators    []string
	Tags             []string
	Metadata         map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Clone returns a deep copy of p.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	if p.SourceTemplateID != nil {
		s := *p.SourceTemplateID
		cp.SourceTemplateID = &s
	}
	cp.Collaborators = shared.CloneStrings(p.Collaborators)
	cp.Tags = shared.CloneStrings(p.Tags)
	cp.Metadata = shared.CloneMap(p.Metadata)
	return &cp
}

// CanEdit reports whether userID owns the project or collaborates on it.
func (p *Project) CanEdit(userID string) bool {
	if userID == "" {
		return false
	}
	if p.OwnerID == userID {
		return true
	}
	for _, c := range p.Collaborators {
		if c == userID {
			return true
		}
	}
	return false
}

// Task is a planning record of a project. It may be linked to a task node
// but has a lifecycle of its own.
type Task struct {
	ID          string
	ProjectID   string
	NodeID      *string
	Title       string
	Description string
	Status      shared.TaskStatus
	Priority    shared.TaskPriority
	DueDate     *time.Time
	AssigneeID  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is the access level granted on a shared project.
type Permission string

const (
	PermissionView  Permission = "view"
	PermissionEdit  Permission = "edit"
	PermissionAdmin Permission = "admin"
)

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	switch p {
	case PermissionView, PermissionEdit, PermissionAdmin:
		return true
	}
	return false
}

// SharingGrant gives a user access to a project. Grants are stored data only;
// no conflict resolution between collaborators is performed.
type SharingGrant struct {
	ID         string
	ProjectID  string
	UserID     string
	Permission Permission
	CreatedAt  time.Time
}
