package auth

import "time"

// RefreshSession is a persisted opaque refresh token row in app.refresh_sessions.
type RefreshSession struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	ClientID  string    `db:"client_id"`
	ExpiresAt time.Time `db:"expires_at"`
}
