package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/arkova/catalog-core/internal/user/entity"
)

// UserRepo provides data access for app.users using sqlx. Methods that take
// part in the registration transaction accept an sqlx.ExtContext so they run
// against either the pool or an open transaction.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, username, email, email_verified, phone_number, phone_verified,
	password_hash, password_algo, password_updated_at, must_reset_password,
	status, login_failed_attempts, locked_until, last_login_at, region_id,
	version, created_at, updated_at, deactivated_at`

// Conflicts reports which unique identity columns are already taken.
type Conflicts struct {
	Username bool `db:"username_taken"`
	Email    bool `db:"email_taken"`
	Phone    bool `db:"phone_taken"`
}

// CheckConflicts checks username/email/phone uniqueness in one round trip.
// NULL lookups never match, so absent fields report no conflict.
func (r *UserRepo) CheckConflicts(ctx context.Context, ext sqlx.ExtContext, username, email, phone *string) (Conflicts, error) {
	const q = `SELECT
		EXISTS(SELECT 1 FROM app.users WHERE username = $1) AS username_taken,
		EXISTS(SELECT 1 FROM app.users WHERE email = $2::citext) AS email_taken,
		EXISTS(SELECT 1 FROM app.users WHERE phone_number = $3) AS phone_taken`
	var c Conflicts
	if err := sqlx.GetContext(ctx, ext, &c, q, username, email, phone); err != nil {
		return Conflicts{}, err
	}
	return c, nil
}

// CreateTx inserts a new user row inside the caller's transaction.
func (r *UserRepo) CreateTx(ctx context.Context, ext sqlx.ExtContext, u *entity.User) error {
	const q = `INSERT INTO app.users (id, username, email, phone_number, password_hash, password_algo,
	               must_reset_password, status, region_id, version)
	           VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := ext.ExecContext(ctx, q, u.ID, u.Username, u.Email, u.PhoneNumber,
		u.PasswordHash, u.PasswordAlgo, u.MustResetPassword, u.Status, u.RegionID, u.Version)
	return err
}

// CreateProfileTx inserts the companion profile row inside the caller's transaction.
func (r *UserRepo) CreateProfileTx(ctx context.Context, ext sqlx.ExtContext, p *entity.Profile) error {
	const q = `INSERT INTO app.user_profiles (user_id, display_name, locale) VALUES ($1,$2,$3)`
	_, err := ext.ExecContext(ctx, q, p.UserID, p.DisplayName, p.Locale)
	return err
}

// GetByEmail returns a user matched by email (case-insensitive via citext) or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM app.users WHERE email=$1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, email); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByUsername fetches by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM app.users WHERE username=$1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, username); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM app.users WHERE id=$1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetMinimalAuthView returns only the fields needed for token claim hydration.
func (r *UserRepo) GetMinimalAuthView(ctx context.Context, id int64) (*entity.MinimalAuthView, error) {
	const q = `SELECT id, version, email, email_verified, region_id FROM app.users WHERE id=$1`
	var v entity.MinimalAuthView
	if err := r.db.GetContext(ctx, &v, q, id); err != nil {
		return nil, err
	}
	return &v, nil
}

// IncrementFailedLogin increments the failure counter atomically and returns new value.
func (r *UserRepo) IncrementFailedLogin(ctx context.Context, id int64) (int, error) {
	const q = `UPDATE app.users SET login_failed_attempts = login_failed_attempts + 1, updated_at=NOW() WHERE id=$1 RETURNING login_failed_attempts`
	var v int
	if err := r.db.GetContext(ctx, &v, q, id); err != nil {
		return 0, err
	}
	return v, nil
}

// LockIfThreshold locks the user if attempts >= threshold and currently active.
func (r *UserRepo) LockIfThreshold(ctx context.Context, id int64, threshold int, lockMinutes int) (bool, error) {
	const q = `UPDATE app.users SET status='locked', locked_until = NOW() + ($2 || ' minutes')::interval, updated_at=NOW()
	           WHERE id=$1 AND status='active' AND login_failed_attempts >= $3 RETURNING 1`
	var one int
	err := r.db.GetContext(ctx, &one, q, id, lockMinutes, threshold)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ResetLoginSuccess resets failure metrics on successful authentication.
func (r *UserRepo) ResetLoginSuccess(ctx context.Context, id int64) error {
	const q = `UPDATE app.users SET login_failed_attempts=0, last_login_at=NOW(), locked_until=NULL, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// UnlockIfExpired sets status back to active if locked_until passed.
func (r *UserRepo) UnlockIfExpired(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE app.users SET status='active', locked_until=NULL, updated_at=NOW()
	           WHERE id=$1 AND status='locked' AND locked_until IS NOT NULL AND locked_until < NOW() RETURNING 1`
	var one int
	err := r.db.GetContext(ctx, &one, q, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// BumpVersion increments version for token invalidation.
func (r *UserRepo) BumpVersion(ctx context.Context, id int64) error {
	const q = `UPDATE app.users SET version = version + 1, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// UpdatePassword updates password hash & algo, optionally bumping version to
// invalidate outstanding tokens.
func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash, algo string, bumpVersion bool) error {
	if bumpVersion {
		const q = `UPDATE app.users SET password_hash=$2, password_algo=$3, password_updated_at=NOW(), version=version+1, updated_at=NOW(), must_reset_password=false WHERE id=$1`
		_, err := r.db.ExecContext(ctx, q, id, hash, algo)
		return err
	}
	const q = `UPDATE app.users SET password_hash=$2, password_algo=$3, password_updated_at=NOW(), updated_at=NOW(), must_reset_password=false WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id, hash, algo)
	return err
}

// Deactivate marks a user as disabled.
func (r *UserRepo) Deactivate(ctx context.Context, id int64) error {
	const q = `UPDATE app.users SET status='disabled', deactivated_at=NOW(), updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// Reactivate resets a disabled user to active.
func (r *UserRepo) Reactivate(ctx context.Context, id int64) error {
	const q = `UPDATE app.users SET status='active', deactivated_at=NULL, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}
