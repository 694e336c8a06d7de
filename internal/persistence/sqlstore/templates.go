package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/domain/template"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/persistence"

	"go.uber.org/zap"
)

const templateColumns = `id, title, description, category, is_official, is_public, elements, connections,
	thumbnail_url, created_by, created_at, updated_at`

func scanTemplate(row scanner) (persistence.TemplateRecord, error) {
	var r persistence.TemplateRecord
	err := row.Scan(
		&r.ID, &r.Title, &r.Description, &r.Category, &r.IsOfficial, &r.IsPublic,
		jsonScan{&r.Elements}, jsonScan{&r.Connections},
		&r.ThumbnailURL, &r.CreatedBy, timeScan{&r.CreatedAt}, timeScan{&r.UpdatedAt},
	)
	return r, err
}

func malformedBlob(id string, err error) error {
	return fmt.Errorf("%w: %s %q: %v", cerrors.ErrMalformedRecord, persistence.TableSnapshots, id, err)
}

func (s *Store) loadTemplate(ctx context.Context, q querier, id string) (*template.Template, error) {
	r, err := scanTemplate(s.queryRow(ctx, q, `SELECT `+templateColumns+` FROM canvas_templates WHERE id = ?`, id))
	if err != nil {
		return nil, noRows(err, persistence.TableTemplates, id)
	}
	return persistence.DecodeTemplate(r)
}

func (s *Store) FetchTemplate(ctx context.Context, id string) (*template.Template, error) {
	t, err := s.loadTemplate(ctx, s.db, id)
	if err != nil {
		return nil, fail(persistence.OpFetchTemplate, err)
	}
	return t, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]*template.Template, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+templateColumns+` FROM canvas_templates ORDER BY is_official DESC, title, id`)
	if err != nil {
		return nil, fail(persistence.OpListTemplates, err)
	}
	defer rows.Close()

	var out []*template.Template
	for rows.Next() {
		r, err := scanTemplate(rows)
		if err != nil {
			return nil, fail(persistence.OpListTemplates, err)
		}
		t, err := persistence.DecodeTemplate(r)
		if err != nil {
			return nil, fail(persistence.OpListTemplates, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(persistence.OpListTemplates, err)
	}
	return out, nil
}

func (s *Store) CreateTemplate(ctx context.Context, draft persistence.TemplateDraft) (*template.Template, error) {
	now := s.timestamp()
	t := &template.Template{
		ID:           s.ids(),
		Title:        draft.Title,
		Description:  draft.Description,
		Category:     draft.Category,
		IsOfficial:   draft.IsOfficial,
		IsPublic:     draft.IsPublic,
		Elements:     draft.Elements,
		Connections:  draft.Connections,
		ThumbnailURL: draft.ThumbnailURL,
		CreatedBy:    draft.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r := persistence.EncodeTemplate(t)
	if _, err := persistence.DecodeTemplate(r); err != nil {
		return nil, fail(persistence.OpCreateTemplate, err)
	}
	_, err := s.exec(ctx, s.db, `INSERT INTO canvas_templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.Description, r.Category, r.IsOfficial, r.IsPublic,
		jsonValue{r.Elements}, jsonValue{r.Connections}, r.ThumbnailURL, r.CreatedBy, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return nil, fail(persistence.OpCreateTemplate, err)
	}
	return t, nil
}

// InstantiateTemplate copies a template into a new project inside one
// transaction: either the project with all its elements and resolvable
// connections exists afterwards, or nothing does. Connections that
// persistence.TemplatePlan.Resolve rejects are skipped.
func (s *Store) InstantiateTemplate(ctx context.Context, req persistence.InstantiateRequest) (string, error) {
	var projectID string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		tpl, err := s.loadTemplate(ctx, tx, req.TemplateID)
		if err != nil {
			return err
		}
		now := s.timestamp()
		desc := tpl.Description
		if req.Description != nil {
			desc = *req.Description
		}
		p := &project.Project{
			ID:               s.ids(),
			Title:            req.Title,
			Description:      desc,
			OwnerID:          req.OwnerID,
			SourceTemplateID: &tpl.ID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.insertProject(ctx, tx, p); err != nil {
			return err
		}

		plan, err := persistence.PlanTemplate(tpl, p.ID, req.OwnerID)
		if err != nil {
			return err
		}
		locals := make(map[string]string, len(plan.Nodes))
		for _, el := range plan.Nodes {
			n := el.Draft.Node(s.ids(), now)
			if err := s.insertNode(ctx, tx, n); err != nil {
				return err
			}
			locals[el.LocalID] = n.ID
		}
		edges, warnings := plan.Resolve(tpl.ID, locals)
		for _, w := range warnings {
			s.logger.Warn("Skipping template connection",
				zap.String("template_id", tpl.ID),
				zap.String("connection_id", w.ConnectionID),
				zap.String("reason", w.Reason))
		}
		for _, e := range edges {
			if err := s.insertEdge(ctx, tx, e.Draft.Edge(s.ids(), now)); err != nil {
				return err
			}
		}
		projectID = p.ID
		return nil
	})
	if err != nil {
		return "", fail(persistence.OpInstantiateTemplate, err)
	}
	return projectID, nil
}
