package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// RefreshRepo persists opaque refresh tokens in app.refresh_sessions.
type RefreshRepo struct {
	db *sqlx.DB
}

func NewRefreshRepo(db *sqlx.DB) *RefreshRepo {
	return &RefreshRepo{db: db}
}

func (r *RefreshRepo) Save(ctx context.Context, token string, userID int64, clientID string, expiresAt time.Time) (int64, error) {
	const q = `INSERT INTO app.refresh_sessions (token, user_id, client_id, expires_at) VALUES ($1, $2, $3, $4) RETURNING id`
	var id int64
	row := r.db.QueryRowxContext(ctx, q, token, userID, clientID, expiresAt)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *RefreshRepo) Get(ctx context.Context, token string) (int64, int64, string, time.Time, error) {
	var id int64
	var userID int64
	var clientID string
	var expiresAt time.Time
	const q = `SELECT id, user_id, client_id, expires_at FROM app.refresh_sessions WHERE token = $1`
	row := r.db.QueryRowxContext(ctx, q, token)
	if err := row.Scan(&id, &userID, &clientID, &expiresAt); err != nil {
		return 0, 0, "", time.Time{}, err
	}
	return id, userID, clientID, expiresAt, nil
}

func (r *RefreshRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM app.refresh_sessions WHERE token = $1`, token)
	return err
}

// DeleteForUser revokes every session of one user (version bump, deactivation).
func (r *RefreshRepo) DeleteForUser(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM app.refresh_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired prunes sessions past their expiry.
func (r *RefreshRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM app.refresh_sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
