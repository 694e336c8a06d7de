package sqlstore

import (
	"context"
	"database/sql"

	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/persistence"
)

const taskColumns = `id, project_id, element_id, title, description, status, priority, due_date, assigned_to,
	created_at, updated_at`

func scanTask(row scanner) (persistence.TaskRecord, error) {
	var r persistence.TaskRecord
	err := row.Scan(
		&r.ID, &r.ProjectID, &r.NodeID, &r.Title, &r.Description, &r.Status, &r.Priority,
		nullTimeScan{&r.DueDate}, &r.AssigneeID, timeScan{&r.CreatedAt}, timeScan{&r.UpdatedAt},
	)
	return r, err
}

func (s *Store) ListTasks(ctx context.Context, projectID string) ([]*project.Task, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT `+taskColumns+` FROM canvas_tasks WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fail(persistence.OpListTasks, err)
	}
	defer rows.Close()

	var out []*project.Task
	for rows.Next() {
		r, err := scanTask(rows)
		if err != nil {
			return nil, fail(persistence.OpListTasks, err)
		}
		t, err := persistence.DecodeTask(r)
		if err != nil {
			return nil, fail(persistence.OpListTasks, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(persistence.OpListTasks, err)
	}
	return out, nil
}

func (s *Store) CreateTask(ctx context.Context, draft persistence.TaskDraft) (*project.Task, error) {
	now := s.timestamp()
	t := &project.Task{
		ID:          s.ids(),
		ProjectID:   draft.ProjectID,
		NodeID:      draft.NodeID,
		Title:       draft.Title,
		Description: draft.Description,
		Status:      draft.Status,
		Priority:    draft.Priority,
		DueDate:     draft.DueDate,
		AssigneeID:  draft.AssigneeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r := persistence.EncodeTask(t)
	out, err := persistence.DecodeTask(r)
	if err != nil {
		return nil, fail(persistence.OpCreateTask, err)
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.mustExist(ctx, tx, persistence.TableProjects, draft.ProjectID); err != nil {
			return err
		}
		_, err := s.exec(ctx, tx, `INSERT INTO canvas_tasks (`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.ProjectID, nullString(r.NodeID), r.Title, r.Description, r.Status, r.Priority,
			nullTime(r.DueDate), nullString(r.AssigneeID), r.CreatedAt, r.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, fail(persistence.OpCreateTask, err)
	}
	return out, nil
}

func (s *Store) UpdateTask(ctx context.Context, id string, patch persistence.TaskPatch) (*project.Task, error) {
	var out *project.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		r, err := scanTask(s.queryRow(ctx, tx, `SELECT `+taskColumns+` FROM canvas_tasks WHERE id = ?`, id))
		if err != nil {
			return noRows(err, persistence.TableTasks, id)
		}
		t, err := persistence.DecodeTask(r)
		if err != nil {
			return err
		}
		patch.Apply(t)
		t.UpdatedAt = s.timestamp()
		r = persistence.EncodeTask(t)
		if _, err := persistence.DecodeTask(r); err != nil {
			return err
		}
		_, err = s.exec(ctx, tx, `UPDATE canvas_tasks SET element_id = ?, title = ?, description = ?, status = ?,
			priority = ?, due_date = ?, assigned_to = ?, updated_at = ? WHERE id = ?`,
			nullString(r.NodeID), r.Title, r.Description, r.Status, r.Priority,
			nullTime(r.DueDate), nullString(r.AssigneeID), r.UpdatedAt, id)
		out = t
		return err
	})
	if err != nil {
		return nil, fail(persistence.OpUpdateTask, err)
	}
	return out, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	_, err := s.exec(ctx, s.db, `DELETE FROM canvas_tasks WHERE id = ?`, id)
	return fail(persistence.OpDeleteTask, err)
}
