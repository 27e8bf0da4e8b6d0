package entity

import "time"

// User represents an account row in app.users.
type User struct {
	ID                  int64      `db:"id"`
	Username            *string    `db:"username"`
	Email               *string    `db:"email"`
	EmailVerified       bool       `db:"email_verified"`
	PhoneNumber         *string    `db:"phone_number"`
	PhoneVerified       bool       `db:"phone_verified"`
	PasswordHash        *string    `db:"password_hash"`
	PasswordAlgo        *string    `db:"password_algo"`
	PasswordUpdatedAt   *time.Time `db:"password_updated_at"`
	MustResetPassword   bool       `db:"must_reset_password"`
	Status              string     `db:"status"` // active / locked / disabled
	LoginFailedAttempts int        `db:"login_failed_attempts"`
	LockedUntil         *time.Time `db:"locked_until"`
	LastLoginAt         *time.Time `db:"last_login_at"`
	RegionID            *int64     `db:"region_id"`
	Version             int64      `db:"version"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
	DeactivatedAt       *time.Time `db:"deactivated_at"`
}

// Profile is the auxiliary row in app.user_profiles.
type Profile struct {
	UserID      int64     `db:"user_id" json:"user_id"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Locale      string    `db:"locale" json:"locale"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Group is a row in app.user_groups. Permissions attach to groups, never to
// users directly.
type Group struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// MinimalAuthView is the minimal projection required for token claim hydration.
type MinimalAuthView struct {
	ID            int64   `db:"id" json:"id"`
	Version       int64   `db:"version" json:"version"`
	Email         *string `db:"email" json:"email,omitempty"`
	EmailVerified bool    `db:"email_verified" json:"email_verified"`
	RegionID      *int64  `db:"region_id" json:"region_id,omitempty"`
}
