package sqlstore

import (
	"context"
	"database/sql"

	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/persistence"
)

const grantColumns = `id, project_id, user_id, permission, created_at`

func scanGrant(row scanner) (persistence.GrantRecord, error) {
	var r persistence.GrantRecord
	err := row.Scan(&r.ID, &r.ProjectID, &r.UserID, &r.Permission, timeScan{&r.CreatedAt})
	return r, err
}

func (s *Store) ListGrants(ctx context.Context, projectID string) ([]*project.SharingGrant, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT `+grantColumns+` FROM canvas_shares WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fail(persistence.OpListGrants, err)
	}
	defer rows.Close()

	var out []*project.SharingGrant
	for rows.Next() {
		r, err := scanGrant(rows)
		if err != nil {
			return nil, fail(persistence.OpListGrants, err)
		}
		g, err := persistence.DecodeGrant(r)
		if err != nil {
			return nil, fail(persistence.OpListGrants, err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(persistence.OpListGrants, err)
	}
	return out, nil
}

// GrantAccess upserts the grant of (project, user); a second grant replaces
// the permission and keeps the identifier.
func (s *Store) GrantAccess(ctx context.Context, draft persistence.GrantDraft) (*project.SharingGrant, error) {
	r := persistence.EncodeGrant(&project.SharingGrant{
		ID:         s.ids(),
		ProjectID:  draft.ProjectID,
		UserID:     draft.UserID,
		Permission: draft.Permission,
		CreatedAt:  s.timestamp(),
	})
	if _, err := persistence.DecodeGrant(r); err != nil {
		return nil, fail(persistence.OpGrantAccess, err)
	}

	var out *project.SharingGrant
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.mustExist(ctx, tx, persistence.TableProjects, draft.ProjectID); err != nil {
			return err
		}
		_, err := s.exec(ctx, tx, `INSERT INTO canvas_shares (`+grantColumns+`) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (project_id, user_id) DO UPDATE SET permission = excluded.permission`,
			r.ID, r.ProjectID, r.UserID, r.Permission, r.CreatedAt)
		if err != nil {
			return err
		}
		stored, err := scanGrant(s.queryRow(ctx, tx,
			`SELECT `+grantColumns+` FROM canvas_shares WHERE project_id = ? AND user_id = ?`,
			draft.ProjectID, draft.UserID))
		if err != nil {
			return err
		}
		out, err = persistence.DecodeGrant(stored)
		return err
	})
	if err != nil {
		return nil, fail(persistence.OpGrantAccess, err)
	}
	return out, nil
}

func (s *Store) RevokeAccess(ctx context.Context, id string) error {
	_, err := s.exec(ctx, s.db, `DELETE FROM canvas_shares WHERE id = ?`, id)
	return fail(persistence.OpRevokeAccess, err)
}
