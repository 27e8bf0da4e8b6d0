package user

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arkova/catalog-core/internal/event"
)

type fakeHasher struct{}

func (fakeHasher) Hash(pw string) (string, string, error) { return "hash:" + pw, "fake", nil }
func (fakeHasher) Verify(hash, pw string) bool            { return hash == "hash:"+pw }

type capturingBus struct {
	mu     sync.Mutex
	events []event.Params
}

func (c *capturingBus) CreateAndPublishEvent(ctx context.Context, p event.Params) (event.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, p)
	return event.Event{EventName: p.EventName}, nil
}

func (c *capturingBus) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, p := range c.events {
		out = append(out, p.EventName)
	}
	return out
}

func newMockService(t *testing.T) (*UserService, sqlmock.Sqlmock, *capturingBus) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	bus := &capturingBus{}
	svc := NewUserService(sqlx.NewDb(db, "postgres"), bus, zap.NewNop().Sugar())
	svc.hasher = fakeHasher{}
	return svc, mock, bus
}

func conflictRows(username, email, phone bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"username_taken", "email_taken", "phone_taken"}).AddRow(username, email, phone)
}

func TestRegisterUserDuplicateUsernameRollsBack(t *testing.T) {
	svc, mock, bus := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT\s+EXISTS`).WillReturnRows(conflictRows(true, false, false))
	mock.ExpectRollback()

	_, err := svc.RegisterUser(context.Background(), RegisterInput{Username: "alice", Password: "secret"})
	assert.ErrorIs(t, err, ErrDuplicateUsername)
	assert.NoError(t, mock.ExpectationsWereMet(), "no insert may run after a conflict")
	assert.Empty(t, bus.names())
}

func TestRegisterUserDuplicateEmailAndPhone(t *testing.T) {
	svc, mock, _ := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT\s+EXISTS`).WillReturnRows(conflictRows(false, true, false))
	mock.ExpectRollback()
	_, err := svc.RegisterUser(context.Background(), RegisterInput{Email: "a@b.c", Password: "secret"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT\s+EXISTS`).WillReturnRows(conflictRows(false, false, true))
	mock.ExpectRollback()
	_, err = svc.RegisterUser(context.Background(), RegisterInput{Username: "bob", Phone: "555", Password: "secret"})
	assert.ErrorIs(t, err, ErrDuplicatePhone)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterUserCommitsUserAndProfile(t *testing.T) {
	svc, mock, bus := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT\s+EXISTS`).WillReturnRows(conflictRows(false, false, false))
	mock.ExpectExec(`INSERT INTO app\.users`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO app\.user_profiles`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := svc.RegisterUser(context.Background(), RegisterInput{Username: "alice", Email: "Alice@Example.com", Password: "secret"})
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{"user.registered"}, bus.names())
}

func TestRegisterUserRequiresIdentifierAndPassword(t *testing.T) {
	svc, _, _ := newMockService(t)

	_, err := svc.RegisterUser(context.Background(), RegisterInput{Password: "secret"})
	assert.Error(t, err)

	_, err = svc.RegisterUser(context.Background(), RegisterInput{Username: "alice"})
	assert.Error(t, err)
}

func userColumnsRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "username", "email", "email_verified", "phone_number", "phone_verified",
		"password_hash", "password_algo", "password_updated_at", "must_reset_password",
		"status", "login_failed_attempts", "locked_until", "last_login_at", "region_id",
		"version", "created_at", "updated_at", "deactivated_at",
	})
}

func activeUserRow(id int64, username, hash string) *sqlmock.Rows {
	now := time.Now()
	return userColumnsRows().AddRow(
		id, username, nil, false, nil, false,
		hash, "fake", nil, false,
		"active", 0, nil, nil, nil,
		1, now, now, nil,
	)
}

func TestAuthenticatePasswordSuccess(t *testing.T) {
	svc, mock, bus := newMockService(t)

	mock.ExpectQuery(`FROM app\.users WHERE username=\$1`).WithArgs("alice").
		WillReturnRows(activeUserRow(7, "alice", "hash:secret"))
	mock.ExpectExec(`UPDATE app\.users SET login_failed_attempts=0`).WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, version, email, email_verified, region_id`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "email", "email_verified", "region_id"}).
			AddRow(7, 1, nil, false, nil))

	view, err := svc.AuthenticatePassword(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(7), view.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{"user.login"}, bus.names())
}

func TestAuthenticatePasswordWrongPassword(t *testing.T) {
	svc, mock, bus := newMockService(t)

	mock.ExpectQuery(`FROM app\.users WHERE username=\$1`).WithArgs("alice").
		WillReturnRows(activeUserRow(7, "alice", "hash:secret"))
	mock.ExpectQuery(`login_failed_attempts \+ 1`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"login_failed_attempts"}).AddRow(3))
	mock.ExpectQuery(`SET status='locked'`).WithArgs(int64(7), svc.LockMinutes, svc.MaxFailed).
		WillReturnError(sql.ErrNoRows)

	_, err := svc.AuthenticatePassword(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{"user.login_failed"}, bus.names())
}

func TestAuthenticatePasswordUnknownUser(t *testing.T) {
	svc, mock, _ := newMockService(t)

	mock.ExpectQuery(`FROM app\.users WHERE username=\$1`).WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := svc.AuthenticatePassword(context.Background(), "ghost", "x")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestAuthenticatePasswordLockedAndDisabled(t *testing.T) {
	svc, mock, _ := newMockService(t)
	now := time.Now()
	future := now.Add(10 * time.Minute)

	locked := userColumnsRows().AddRow(
		7, "alice", nil, false, nil, false,
		"hash:secret", "fake", nil, false,
		"locked", 6, future, nil, nil,
		1, now, now, nil,
	)
	mock.ExpectQuery(`FROM app\.users WHERE username=\$1`).WithArgs("alice").WillReturnRows(locked)
	_, err := svc.AuthenticatePassword(context.Background(), "alice", "secret")
	assert.ErrorIs(t, err, ErrLocked)

	disabled := userColumnsRows().AddRow(
		8, "bob", nil, false, nil, false,
		"hash:secret", "fake", nil, false,
		"disabled", 0, nil, nil, nil,
		1, now, now, nil,
	)
	mock.ExpectQuery(`FROM app\.users WHERE username=\$1`).WithArgs("bob").WillReturnRows(disabled)
	_, err = svc.AuthenticatePassword(context.Background(), "bob", "secret")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestAuthenticatePasswordEmptyIdentifier(t *testing.T) {
	svc, _, _ := newMockService(t)
	_, err := svc.AuthenticatePassword(context.Background(), "  ", "pw")
	assert.ErrorIs(t, err, ErrBadCredentials)
}
