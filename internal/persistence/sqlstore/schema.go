package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// schema returns the DDL statements for d. Foreign keys carry the cascades:
// deleting a project removes its rows, deleting an element removes the
// connections touching it and unlinks its tasks.
func (d Dialect) schema() []string {
	t := d.types
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS canvas_projects (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id TEXT NOT NULL,
			is_template BOOLEAN NOT NULL DEFAULT FALSE,
			template_id TEXT,
			is_public BOOLEAN NOT NULL DEFAULT FALSE,
			collaborators {json},
			tags {json},
			metadata {json},
			created_at {ts} NOT NULL,
			updated_at {ts} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS canvas_elements (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES canvas_projects(id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			content TEXT,
			position_x {float} NOT NULL DEFAULT 0,
			position_y {float} NOT NULL DEFAULT 0,
			width {float},
			height {float},
			style {json},
			metadata {json},
			created_by TEXT NOT NULL DEFAULT '',
			created_at {ts} NOT NULL,
			updated_at {ts} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS canvas_connections (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES canvas_projects(id) ON DELETE CASCADE,
			source_id TEXT NOT NULL REFERENCES canvas_elements(id) ON DELETE CASCADE,
			target_id TEXT NOT NULL REFERENCES canvas_elements(id) ON DELETE CASCADE,
			label TEXT,
			style {json},
			metadata {json},
			created_by TEXT NOT NULL DEFAULT '',
			created_at {ts} NOT NULL,
			updated_at {ts} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS canvas_history (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES canvas_projects(id) ON DELETE CASCADE,
			snapshot {blob} NOT NULL,
			comment TEXT,
			created_by TEXT NOT NULL DEFAULT '',
			created_at {ts} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS canvas_templates (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			is_official BOOLEAN NOT NULL DEFAULT FALSE,
			is_public BOOLEAN NOT NULL DEFAULT FALSE,
			elements {json},
			connections {json},
			thumbnail_url TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at {ts} NOT NULL,
			updated_at {ts} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS canvas_tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES canvas_projects(id) ON DELETE CASCADE,
			element_id TEXT REFERENCES canvas_elements(id) ON DELETE SET NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			priority TEXT NOT NULL,
			due_date {ts},
			assigned_to TEXT,
			created_at {ts} NOT NULL,
			updated_at {ts} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS canvas_shares (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES canvas_projects(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			permission TEXT NOT NULL,
			created_at {ts} NOT NULL,
			UNIQUE (project_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_canvas_projects_owner ON canvas_projects(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_canvas_elements_project ON canvas_elements(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_canvas_connections_project ON canvas_connections(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_canvas_connections_source ON canvas_connections(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_canvas_connections_target ON canvas_connections(target_id)`,
		`CREATE INDEX IF NOT EXISTS idx_canvas_history_project ON canvas_history(project_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_canvas_tasks_project ON canvas_tasks(project_id)`,
	}

	r := strings.NewReplacer("{json}", t.JSON, "{ts}", t.Timestamp, "{blob}", t.Blob, "{float}", t.Float)
	for i, s := range stmts {
		stmts[i] = r.Replace(s)
	}
	return stmts
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}
	return nil
}
