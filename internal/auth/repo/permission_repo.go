package repo

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// PermissionRepo reads the group-derived permission codes of a user.
type PermissionRepo struct {
	db *sqlx.DB
}

func NewPermissionRepo(db *sqlx.DB) *PermissionRepo {
	return &PermissionRepo{db: db}
}

// ListForUser returns the distinct permission codes granted through the
// user's group memberships.
func (r *PermissionRepo) ListForUser(ctx context.Context, userID int64) ([]string, error) {
	const q = `SELECT DISTINCT gp.permission_code
	           FROM app.group_permissions gp
	           JOIN app.user_group_members m ON m.group_id = gp.group_id
	           WHERE m.user_id = $1 ORDER BY gp.permission_code`
	var codes []string
	if err := r.db.SelectContext(ctx, &codes, q, userID); err != nil {
		return nil, err
	}
	return codes, nil
}

// Grant attaches a permission code to a group.
func (r *PermissionRepo) Grant(ctx context.Context, groupID int64, code string) error {
	const q = `INSERT INTO app.group_permissions (group_id, permission_code) VALUES ($1,$2) ON CONFLICT DO NOTHING`
	_, err := r.db.ExecContext(ctx, q, groupID, code)
	return err
}

// Revoke detaches a permission code from a group.
func (r *PermissionRepo) Revoke(ctx context.Context, groupID int64, code string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM app.group_permissions WHERE group_id=$1 AND permission_code=$2`, groupID, code)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
