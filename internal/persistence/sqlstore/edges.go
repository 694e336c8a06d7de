package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"canvas-backend/internal/domain/edge"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/persistence"
)

const edgeColumns = `id, project_id, source_id, target_id, label, style, metadata, created_by, created_at, updated_at`

func scanEdge(row scanner) (persistence.EdgeRecord, error) {
	var r persistence.EdgeRecord
	err := row.Scan(
		&r.ID, &r.ProjectID, &r.SourceID, &r.TargetID, &r.Label,
		jsonScan{&r.Style}, jsonScan{&r.Metadata}, &r.CreatedBy,
		timeScan{&r.CreatedAt}, timeScan{&r.UpdatedAt},
	)
	return r, err
}

func (s *Store) insertEdge(ctx context.Context, q querier, e *edge.Edge) error {
	r := persistence.EncodeEdge(e)
	_, err := s.exec(ctx, q, `INSERT INTO canvas_connections (`+edgeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.SourceID, r.TargetID, nullString(r.Label),
		jsonValue{r.Style}, jsonValue{r.Metadata}, r.CreatedBy, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

// endpointOf fails unless node id exists and belongs to projectID.
func (s *Store) endpointOf(ctx context.Context, q querier, projectID, id string) error {
	var owner string
	err := s.queryRow(ctx, q, `SELECT project_id FROM `+persistence.TableNodes+` WHERE id = ?`, id).Scan(&owner)
	if err != nil {
		return noRows(err, persistence.TableNodes, id)
	}
	if owner != projectID {
		return fmt.Errorf("%w: node %s is not in project %s", cerrors.ErrProjectMismatch, id, projectID)
	}
	return nil
}

func (s *Store) FetchEdges(ctx context.Context, projectID string) ([]*edge.Edge, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT `+edgeColumns+` FROM canvas_connections WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fail(persistence.OpFetchEdges, err)
	}
	defer rows.Close()

	var out []*edge.Edge
	for rows.Next() {
		r, err := scanEdge(rows)
		if err != nil {
			return nil, fail(persistence.OpFetchEdges, err)
		}
		e, err := persistence.DecodeEdge(r)
		if err != nil {
			return nil, fail(persistence.OpFetchEdges, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(persistence.OpFetchEdges, err)
	}
	return out, nil
}

func (s *Store) CreateEdge(ctx context.Context, draft persistence.EdgeDraft) (*edge.Edge, error) {
	if err := draft.Validate(); err != nil {
		return nil, fail(persistence.OpCreateEdge, err)
	}
	now := s.timestamp()
	e := &edge.Edge{
		ID:        s.ids(),
		ProjectID: draft.ProjectID,
		SourceID:  draft.SourceID,
		TargetID:  draft.TargetID,
		Label:     draft.Label,
		Style:     draft.Style,
		Metadata:  draft.Metadata,
		CreatedBy: draft.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range []string{draft.SourceID, draft.TargetID} {
			if err := s.endpointOf(ctx, tx, draft.ProjectID, id); err != nil {
				return err
			}
		}
		return s.insertEdge(ctx, tx, e)
	})
	if err != nil {
		return nil, fail(persistence.OpCreateEdge, err)
	}
	return e.Clone(), nil
}

func (s *Store) UpdateEdge(ctx context.Context, id string, patch persistence.EdgePatch) (*edge.Edge, error) {
	var out *edge.Edge
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		r, err := scanEdge(s.queryRow(ctx, tx, `SELECT `+edgeColumns+` FROM canvas_connections WHERE id = ?`, id))
		if err != nil {
			return noRows(err, persistence.TableEdges, id)
		}
		e, err := persistence.DecodeEdge(r)
		if err != nil {
			return err
		}
		patch.Apply(e)
		e.UpdatedAt = s.timestamp()
		r = persistence.EncodeEdge(e)
		_, err = s.exec(ctx, tx, `UPDATE canvas_connections SET label = ?, style = ?, metadata = ?, updated_at = ?
			WHERE id = ?`,
			nullString(r.Label), jsonValue{r.Style}, jsonValue{r.Metadata}, r.UpdatedAt, id)
		out = e
		return err
	})
	if err != nil {
		return nil, fail(persistence.OpUpdateEdge, err)
	}
	return out, nil
}

// DeleteEdge removes the connection. Deleting an absent connection succeeds.
func (s *Store) DeleteEdge(ctx context.Context, id string) error {
	_, err := s.exec(ctx, s.db, `DELETE FROM canvas_connections WHERE id = ?`, id)
	return fail(persistence.OpDeleteEdge, err)
}
