package sqlstore

import (
	"context"
	"database/sql"

	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/persistence"
)

const projectColumns = `id, title, description, owner_id, is_template, template_id, is_public,
	collaborators, tags, metadata, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (persistence.ProjectRecord, error) {
	var r persistence.ProjectRecord
	err := row.Scan(
		&r.ID, &r.Title, &r.Description, &r.OwnerID, &r.IsTemplate, &r.SourceTemplateID, &r.IsPublic,
		jsonScan{&r.Collaborators}, jsonScan{&r.Tags}, jsonScan{&r.Metadata},
		timeScan{&r.CreatedAt}, timeScan{&r.UpdatedAt},
	)
	return r, err
}

func (s *Store) insertProject(ctx context.Context, q querier, p *project.Project) error {
	r := persistence.EncodeProject(p)
	_, err := s.exec(ctx, q, `INSERT INTO canvas_projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.Description, r.OwnerID, r.IsTemplate, nullString(r.SourceTemplateID), r.IsPublic,
		jsonValue{r.Collaborators}, jsonValue{r.Tags}, jsonValue{r.Metadata},
		r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *Store) loadProject(ctx context.Context, q querier, id string) (*project.Project, error) {
	r, err := scanProject(s.queryRow(ctx, q, `SELECT `+projectColumns+` FROM canvas_projects WHERE id = ?`, id))
	if err != nil {
		return nil, noRows(err, persistence.TableProjects, id)
	}
	return persistence.DecodeProject(r)
}

func (s *Store) FetchProject(ctx context.Context, id string) (*project.Project, error) {
	p, err := s.loadProject(ctx, s.db, id)
	if err != nil {
		return nil, fail(persistence.OpFetchProject, err)
	}
	return p, nil
}

// ListProjects returns the projects userID owns or collaborates on, oldest
// first. An empty userID lists every project.
func (s *Store) ListProjects(ctx context.Context, userID string) ([]*project.Project, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+projectColumns+` FROM canvas_projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fail(persistence.OpListProjects, err)
	}
	defer rows.Close()

	var out []*project.Project
	for rows.Next() {
		r, err := scanProject(rows)
		if err != nil {
			return nil, fail(persistence.OpListProjects, err)
		}
		p, err := persistence.DecodeProject(r)
		if err != nil {
			return nil, fail(persistence.OpListProjects, err)
		}
		if userID == "" || p.CanEdit(userID) {
			out = append(out, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fail(persistence.OpListProjects, err)
	}
	return out, nil
}

func (s *Store) CreateProject(ctx context.Context, draft persistence.ProjectDraft) (*project.Project, error) {
	if err := draft.Validate(); err != nil {
		return nil, fail(persistence.OpCreateProject, err)
	}
	now := s.timestamp()
	p := &project.Project{
		ID:               s.ids(),
		Title:            draft.Title,
		Description:      draft.Description,
		OwnerID:          draft.OwnerID,
		IsTemplate:       draft.IsTemplate,
		SourceTemplateID: draft.SourceTemplateID,
		IsPublic:         draft.IsPublic,
		Collaborators:    draft.Collaborators,
		Tags:             draft.Tags,
		Metadata:         draft.Metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.insertProject(ctx, s.db, p); err != nil {
		return nil, fail(persistence.OpCreateProject, err)
	}
	return p.Clone(), nil
}

func (s *Store) UpdateProject(ctx context.Context, id string, patch persistence.ProjectPatch) (*project.Project, error) {
	var out *project.Project
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.loadProject(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(p)
		p.UpdatedAt = s.timestamp()
		r := persistence.EncodeProject(p)
		_, err = s.exec(ctx, tx, `UPDATE canvas_projects SET title = ?, description = ?, is_public = ?,
			collaborators = ?, tags = ?, metadata = ?, updated_at = ? WHERE id = ?`,
			r.Title, r.Description, r.IsPublic,
			jsonValue{r.Collaborators}, jsonValue{r.Tags}, jsonValue{r.Metadata}, r.UpdatedAt, id)
		out = p
		return err
	})
	if err != nil {
		return nil, fail(persistence.OpUpdateProject, err)
	}
	return out, nil
}

// DeleteProject removes the project; foreign keys remove the rest. Deleting
// an absent project succeeds.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	_, err := s.exec(ctx, s.db, `DELETE FROM canvas_projects WHERE id = ?`, id)
	return fail(persistence.OpDeleteProject, err)
}
