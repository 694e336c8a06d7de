package sqlstore

import (
	"context"
	"database/sql"

	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/shared"
	"canvas-backend/internal/persistence"
)

const nodeColumns = `id, project_id, type, title, content, position_x, position_y, width, height,
	style, metadata, created_by, created_at, updated_at`

func scanNode(row scanner) (persistence.NodeRecord, error) {
	var (
		r             persistence.NodeRecord
		width, height sql.NullFloat64
	)
	err := row.Scan(
		&r.ID, &r.ProjectID, &r.Type, &r.Title, &r.Content, &r.Position.X, &r.Position.Y, &width, &height,
		jsonScan{&r.Style}, jsonScan{&r.Metadata}, &r.CreatedBy,
		timeScan{&r.CreatedAt}, timeScan{&r.UpdatedAt},
	)
	if width.Valid || height.Valid {
		r.Size = &shared.Size{Width: width.Float64, Height: height.Float64}
	}
	return r, err
}

func sizeArgs(sz *shared.Size) (any, any) {
	if sz == nil {
		return nil, nil
	}
	return sz.Width, sz.Height
}

func (s *Store) insertNode(ctx context.Context, q querier, n *node.Node) error {
	r := persistence.EncodeNode(n)
	w, h := sizeArgs(r.Size)
	_, err := s.exec(ctx, q, `INSERT INTO canvas_elements (`+nodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.Type, r.Title, nullString(r.Content), r.Position.X, r.Position.Y, w, h,
		jsonValue{r.Style}, jsonValue{r.Metadata}, r.CreatedBy, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *Store) loadNode(ctx context.Context, q querier, id string) (*node.Node, error) {
	r, err := scanNode(s.queryRow(ctx, q, `SELECT `+nodeColumns+` FROM canvas_elements WHERE id = ?`, id))
	if err != nil {
		return nil, noRows(err, persistence.TableNodes, id)
	}
	return persistence.DecodeNode(r)
}

func (s *Store) FetchNodes(ctx context.Context, projectID string) ([]*node.Node, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT `+nodeColumns+` FROM canvas_elements WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fail(persistence.OpFetchNodes, err)
	}
	defer rows.Close()

	var out []*node.Node
	for rows.Next() {
		r, err := scanNode(rows)
		if err != nil {
			return nil, fail(persistence.OpFetchNodes, err)
		}
		n, err := persistence.DecodeNode(r)
		if err != nil {
			return nil, fail(persistence.OpFetchNodes, err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(persistence.OpFetchNodes, err)
	}
	return out, nil
}

func (s *Store) CreateNode(ctx context.Context, draft persistence.NodeDraft) (*node.Node, error) {
	if err := draft.Validate(); err != nil {
		return nil, fail(persistence.OpCreateNode, err)
	}
	n := draft.Node(s.ids(), s.timestamp())
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.mustExist(ctx, tx, persistence.TableProjects, draft.ProjectID); err != nil {
			return err
		}
		return s.insertNode(ctx, tx, n)
	})
	if err != nil {
		return nil, fail(persistence.OpCreateNode, err)
	}
	return n, nil
}

func (s *Store) UpdateNode(ctx context.Context, id string, patch persistence.NodePatch) (*node.Node, error) {
	var out *node.Node
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		n, err := s.loadNode(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(n)
		if err := n.Validate(); err != nil {
			return err
		}
		n.UpdatedAt = s.timestamp()
		r := persistence.EncodeNode(n)
		w, h := sizeArgs(r.Size)
		_, err = s.exec(ctx, tx, `UPDATE canvas_elements SET title = ?, content = ?, position_x = ?, position_y = ?,
			width = ?, height = ?, style = ?, metadata = ?, updated_at = ? WHERE id = ?`,
			r.Title, nullString(r.Content), r.Position.X, r.Position.Y, w, h,
			jsonValue{r.Style}, jsonValue{r.Metadata}, r.UpdatedAt, id)
		out = n
		return err
	})
	if err != nil {
		return nil, fail(persistence.OpUpdateNode, err)
	}
	return out, nil
}

// DeleteNode removes the element; foreign keys remove its connections and
// unlink its tasks. Deleting an absent element succeeds.
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	_, err := s.exec(ctx, s.db, `DELETE FROM canvas_elements WHERE id = ?`, id)
	return fail(persistence.OpDeleteNode, err)
}
