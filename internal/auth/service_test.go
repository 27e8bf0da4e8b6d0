package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arkova/catalog-core/internal/event"
	"github.com/arkova/catalog-core/internal/user/entity"
)

var testKey *rsa.PrivateKey

func init() {
	// 1024-bit is fine for test signing speed
	k, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		panic(err)
	}
	testKey = k
}

func newMockAuthService(t *testing.T, accessTTL time.Duration) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	svc := NewService(sqlx.NewDb(db, "postgres"), testKey, "https://auth.test", accessTTL, DefaultRefreshTTL, nil, zap.NewNop().Sugar())
	return svc, mock
}

func TestIssueTokensWithoutUserSkipsDatabase(t *testing.T) {
	svc, mock := newMockAuthService(t, 0)

	pair, err := svc.IssueTokens(context.Background(), nil, "web")
	assert.ErrorIs(t, err, ErrNoAuthenticatedUser)
	assert.Nil(t, pair)
	// no statements may have run
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueTokensSignsVerifiableAccessToken(t *testing.T) {
	svc, mock := newMockAuthService(t, 0)

	mock.ExpectQuery(`INSERT INTO app\.refresh_sessions`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	view := &entity.MinimalAuthView{ID: 42, Version: 3}
	pair, err := svc.IssueTokens(context.Background(), view, "web")
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(DefaultAccessTTL/time.Second), pair.ExpiresIn)

	claims, err := svc.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, int64(3), claims.Version)
	assert.Equal(t, "web", claims.Audience)
}

func TestVerifyAccessTokenRejectsForeignSignature(t *testing.T) {
	svc, _ := newMockAuthService(t, 0)

	otherKey, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": "https://auth.test",
		"sub": "42",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := tok.SignedString(otherKey)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestVerifyAccessTokenRejectsExpired(t *testing.T) {
	svc, mock := newMockAuthService(t, time.Millisecond)

	mock.ExpectQuery(`INSERT INTO app\.refresh_sessions`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	pair, err := svc.IssueTokens(context.Background(), &entity.MinimalAuthView{ID: 42, Version: 1}, "web")
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond) // exp has one-second resolution

	_, err = svc.VerifyAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestVerifyAccessTokenRejectsWrongIssuer(t *testing.T) {
	svc, _ := newMockAuthService(t, 0)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": "https://someone-else.test",
		"sub": "42",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := tok.SignedString(testKey)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestValidateRefreshToken(t *testing.T) {
	svc, mock := newMockAuthService(t, 0)

	mock.ExpectQuery(`SELECT id, user_id, client_id, expires_at FROM app\.refresh_sessions`).
		WithArgs("tok-live").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "client_id", "expires_at"}).
			AddRow(1, 42, "web", time.Now().Add(time.Hour)))

	session, ok := svc.ValidateRefreshToken(context.Background(), "tok-live")
	require.True(t, ok)
	assert.Equal(t, int64(42), session.UserID)

	mock.ExpectQuery(`SELECT id, user_id, client_id, expires_at FROM app\.refresh_sessions`).
		WithArgs("tok-expired").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "client_id", "expires_at"}).
			AddRow(2, 42, "web", time.Now().Add(-time.Hour)))

	_, ok = svc.ValidateRefreshToken(context.Background(), "tok-expired")
	assert.False(t, ok)
}

func TestFetchPermissions(t *testing.T) {
	svc, mock := newMockAuthService(t, 0)

	mock.ExpectQuery(`SELECT DISTINCT gp\.permission_code`).WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"permission_code"}).
			AddRow("catalog.read").AddRow("users.read"))

	set, err := svc.FetchPermissions(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, set.CanAll("catalog.read", "users.read"))
	assert.False(t, set.Can("settings.write"))
}

type capturingBus struct {
	events []event.Params
}

func (b *capturingBus) CreateAndPublishEvent(_ context.Context, p event.Params) (event.Event, error) {
	b.events = append(b.events, p)
	return event.Event{EventName: p.EventName}, nil
}

func TestRefreshTokensRotatesSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	bus := &capturingBus{}
	svc := NewService(sqlx.NewDb(db, "postgres"), testKey, "https://auth.test", 0, DefaultRefreshTTL, bus, zap.NewNop().Sugar())

	mock.ExpectExec(`DELETE FROM app\.refresh_sessions`).
		WithArgs("tok-old").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO app\.refresh_sessions`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

	view := &entity.MinimalAuthView{ID: 42, Version: 1}
	pair, err := svc.RefreshTokens(context.Background(), view, "tok-old", "web")
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.NotEqual(t, "tok-old", pair.RefreshToken)

	require.Len(t, bus.events, 1)
	assert.Equal(t, "auth.token_refreshed", bus.events[0].EventName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokensWithoutUserSkipsDatabase(t *testing.T) {
	svc, mock := newMockAuthService(t, 0)

	pair, err := svc.RefreshTokens(context.Background(), nil, "tok-old", "web")
	assert.ErrorIs(t, err, ErrNoAuthenticatedUser)
	assert.Nil(t, pair)
	assert.NoError(t, mock.ExpectationsWereMet())
}
