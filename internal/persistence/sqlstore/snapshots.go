package sqlstore

import (
	"context"
	"database/sql"

	"canvas-backend/internal/domain/history"
	"canvas-backend/internal/persistence"
)

func (s *Store) CreateSnapshot(ctx context.Context, draft persistence.SnapshotDraft) (*history.Snapshot, error) {
	snap := &history.Snapshot{
		ID:        s.ids(),
		ProjectID: draft.ProjectID,
		Graph:     draft.Graph.Clone(),
		Comment:   draft.Comment,
		CreatedBy: draft.CreatedBy,
		CreatedAt: s.timestamp(),
	}
	snap.Graph.ProjectID = draft.ProjectID
	r := persistence.EncodeSnapshot(snap)
	blob, err := compress(r.Snapshot)
	if err != nil {
		return nil, fail(persistence.OpCreateSnapshot, err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.mustExist(ctx, tx, persistence.TableProjects, draft.ProjectID); err != nil {
			return err
		}
		_, err := s.exec(ctx, tx, `INSERT INTO canvas_history (id, project_id, snapshot, comment, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, r.ProjectID, blob, nullString(r.Comment), r.CreatedBy, r.CreatedAt)
		return err
	})
	if err != nil {
		return nil, fail(persistence.OpCreateSnapshot, err)
	}
	return snap, nil
}

// ListSnapshots returns the project's snapshots newest first.
func (s *Store) ListSnapshots(ctx context.Context, projectID string) ([]*history.Snapshot, error) {
	rows, err := s.query(ctx, s.db, `SELECT id, project_id, snapshot, comment, created_by, created_at
		FROM canvas_history WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fail(persistence.OpListSnapshots, err)
	}
	defer rows.Close()

	var out []*history.Snapshot
	for rows.Next() {
		var (
			r    persistence.SnapshotRecord
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &blob, &r.Comment, &r.CreatedBy, timeScan{&r.CreatedAt}); err != nil {
			return nil, fail(persistence.OpListSnapshots, err)
		}
		if err := decompress(blob, &r.Snapshot); err != nil {
			return nil, fail(persistence.OpListSnapshots, malformedBlob(r.ID, err))
		}
		snap, err := persistence.DecodeSnapshot(r)
		if err != nil {
			return nil, fail(persistence.OpListSnapshots, err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(persistence.OpListSnapshots, err)
	}
	history.SortNewestFirst(out)
	return out, nil
}
