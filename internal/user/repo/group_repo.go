package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/arkova/catalog-core/internal/user/entity"
)

// GroupRepo provides data access for app.user_groups and its membership table.
type GroupRepo struct {
	db *sqlx.DB
}

func NewGroupRepo(db *sqlx.DB) *GroupRepo { return &GroupRepo{db: db} }

// Create inserts a new group.
func (r *GroupRepo) Create(ctx context.Context, g *entity.Group) error {
	const q = `INSERT INTO app.user_groups (id, name, description) VALUES ($1,$2,$3)`
	_, err := r.db.ExecContext(ctx, q, g.ID, g.Name, g.Description)
	return err
}

// GetByID fetches a group row.
func (r *GroupRepo) GetByID(ctx context.Context, id int64) (*entity.Group, error) {
	const q = `SELECT id, name, description, created_at, updated_at FROM app.user_groups WHERE id=$1`
	var g entity.Group
	if err := r.db.GetContext(ctx, &g, q, id); err != nil {
		return nil, err
	}
	return &g, nil
}

// List returns all groups ordered by name.
func (r *GroupRepo) List(ctx context.Context) ([]entity.Group, error) {
	const q = `SELECT id, name, description, created_at, updated_at FROM app.user_groups ORDER BY name`
	var gs []entity.Group
	if err := r.db.SelectContext(ctx, &gs, q); err != nil {
		return nil, err
	}
	return gs, nil
}

// Delete removes a group; memberships cascade.
func (r *GroupRepo) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM app.user_groups WHERE id=$1`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AddMember attaches a user to a group (idempotent).
func (r *GroupRepo) AddMember(ctx context.Context, groupID, userID int64) error {
	const q = `INSERT INTO app.user_group_members (group_id, user_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`
	_, err := r.db.ExecContext(ctx, q, groupID, userID)
	return err
}

// RemoveMember detaches a user from a group.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM app.user_group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListGroupsForUser returns the groups a user belongs to.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID int64) ([]entity.Group, error) {
	const q = `SELECT g.id, g.name, g.description, g.created_at, g.updated_at
	           FROM app.user_groups g
	           JOIN app.user_group_members m ON m.group_id = g.id
	           WHERE m.user_id=$1 ORDER BY g.name`
	var gs []entity.Group
	if err := r.db.SelectContext(ctx, &gs, q, userID); err != nil {
		return nil, err
	}
	return gs, nil
}
