// Package auth issues and verifies RS256 access tokens and manages persisted
// refresh sessions and the group-derived permission set.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	repo "github.com/arkova/catalog-core/internal/auth/repo"
	"github.com/arkova/catalog-core/internal/event"
	"github.com/arkova/catalog-core/internal/user/entity"
)

// DefaultAccessTTL is the access token lifetime unless overridden from settings.
const DefaultAccessTTL = 30 * time.Minute

// DefaultRefreshTTL is the refresh session lifetime unless overridden from settings.
const DefaultRefreshTTL = 30 * 24 * time.Hour

var (
	// ErrNoAuthenticatedUser means token issuance was attempted without an
	// authenticated principal. No database work happens in that path.
	ErrNoAuthenticatedUser = errors.New("no authenticated user")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidAccessToken  = errors.New("invalid access token")
)

// Publisher is the event-bus surface used by the service. Nil disables publishing.
type Publisher interface {
	CreateAndPublishEvent(ctx context.Context, p event.Params) (event.Event, error)
}

// Service manages the signing key, token issuance and refresh sessions.
type Service struct {
	key        *rsa.PrivateKey
	kid        string
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration

	refreshRepo *repo.RefreshRepo
	permRepo    *repo.PermissionRepo
	bus         Publisher
	logger      *zap.SugaredLogger
}

// LoadOrGenerateKey reads an RSA private key from the PEM file at path, or
// generates an ephemeral 2048-bit key when path is empty. Ephemeral keys
// invalidate outstanding tokens on restart, which is acceptable for access
// tokens backed by persisted refresh sessions.
func LoadOrGenerateKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		return rsa.GenerateKey(rand.Reader, 2048)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("signing key file is not PEM")
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	k, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing key is not RSA")
	}
	return k, nil
}

// NewService constructs a Service around an existing signing key.
func NewService(db *sqlx.DB, key *rsa.PrivateKey, issuer string, accessTTL, refreshTTL time.Duration, bus Publisher, logger *zap.SugaredLogger) *Service {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	// kid derived from the public key so key rotation changes it
	pubDER, _ := x509.MarshalPKIXPublicKey(&key.PublicKey)
	h := sha256.Sum256(pubDER)
	kid := base64.RawURLEncoding.EncodeToString(h[:8])
	return &Service{
		key:         key,
		kid:         kid,
		issuer:      issuer,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		refreshRepo: repo.NewRefreshRepo(db),
		permRepo:    repo.NewPermissionRepo(db),
		bus:         bus,
		logger:      logger,
	}
}

// PublicKey returns the RSA public key for verification.
func (s *Service) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}

// AccessTTL returns the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration {
	return s.accessTTL
}

// JWKS returns a minimal JWKS containing the public key.
func (s *Service) JWKS() map[string]any {
	pub := s.key.PublicKey
	n := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(new(big.Int).SetInt64(int64(pub.E)).Bytes())
	jwk := map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": s.kid,
		"n":   n,
		"e":   e,
	}
	return map[string]any{"keys": []any{jwk}}
}

// TokenPair is the result of issuing tokens for one principal.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// IssueTokens signs an access token and persists a new refresh session for
// the given user. A nil view fails with ErrNoAuthenticatedUser before any
// database access.
func (s *Service) IssueTokens(ctx context.Context, u *entity.MinimalAuthView, audience string) (*TokenPair, error) {
	return s.issueTokens(ctx, u, audience, "auth.token_issued")
}

// RefreshTokens rotates a refresh session: the presented token is deleted
// before the replacement pair is issued, so a replayed old token fails.
func (s *Service) RefreshTokens(ctx context.Context, u *entity.MinimalAuthView, oldToken, audience string) (*TokenPair, error) {
	if u == nil {
		return nil, ErrNoAuthenticatedUser
	}
	if err := s.refreshRepo.Delete(ctx, oldToken); err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, u, audience, "auth.token_refreshed")
}

func (s *Service) issueTokens(ctx context.Context, u *entity.MinimalAuthView, audience, eventName string) (*TokenPair, error) {
	if u == nil {
		return nil, ErrNoAuthenticatedUser
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":            s.issuer,
		"sub":            fmt.Sprintf("%d", u.ID),
		"aud":            audience,
		"exp":            now.Add(s.accessTTL).Unix(),
		"iat":            now.Unix(),
		"v":              u.Version,
		"email":          u.Email,
		"email_verified": u.EmailVerified,
	}
	if u.RegionID != nil {
		claims["region_id"] = *u.RegionID
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	access, err := tok.SignedString(s.key)
	if err != nil {
		return nil, err
	}

	// opaque refresh token persisted server-side
	rtBytes := make([]byte, 32)
	if _, err := rand.Read(rtBytes); err != nil {
		return nil, err
	}
	refresh := base64.RawURLEncoding.EncodeToString(rtBytes)
	if _, err := s.refreshRepo.Save(ctx, refresh, u.ID, audience, now.Add(s.refreshTTL)); err != nil {
		return nil, err
	}

	s.publish(ctx, event.Params{
		EventName: eventName,
		Source:    "auth.service",
		Payload:   map[string]any{"user_id": u.ID, "audience": audience},
	})
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

// ValidateRefreshToken checks an opaque refresh token and returns the session if valid.
func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (*RefreshSession, bool) {
	id, userID, clientID, expiresAt, err := s.refreshRepo.Get(ctx, token)
	if err != nil {
		return nil, false
	}
	rs := RefreshSession{ID: id, UserID: userID, ClientID: clientID, ExpiresAt: expiresAt}
	if rs.ExpiresAt.Before(time.Now()) {
		return nil, false
	}
	return &rs, true
}

// RevokeRefreshToken removes a refresh token from store.
func (s *Service) RevokeRefreshToken(ctx context.Context, token string) error {
	if err := s.refreshRepo.Delete(ctx, token); err != nil {
		return err
	}
	s.publish(ctx, event.Params{
		EventName: "auth.token_revoked",
		Source:    "auth.service",
	})
	return nil
}

// StartSessionPruner deletes expired refresh sessions on an interval until
// ctx is done.
func (s *Service) StartSessionPruner(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.refreshRepo.DeleteExpired(ctx)
				if err != nil {
					s.logger.Warnw("refresh session prune failed", "err", err)
					continue
				}
				if n > 0 {
					s.logger.Infow("pruned expired refresh sessions", "count", n)
				}
			}
		}
	}()
}

// RevokeAllForUser removes every refresh session of one user.
func (s *Service) RevokeAllForUser(ctx context.Context, userID int64) error {
	_, err := s.refreshRepo.DeleteForUser(ctx, userID)
	return err
}

// Claims is the verified projection of an access token used by middleware.
type Claims struct {
	UserID   int64
	Version  int64
	Audience string
}

// VerifyAccessToken parses and validates an access token string.
func (s *Service) VerifyAccessToken(tokenString string) (*Claims, error) {
	claims := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.PublicKey(), nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil || !tkn.Valid {
		return nil, ErrInvalidAccessToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, ErrInvalidAccessToken
	}
	var userID int64
	if _, err := fmt.Sscanf(sub, "%d", &userID); err != nil {
		return nil, ErrInvalidAccessToken
	}
	out := &Claims{UserID: userID}
	if v, ok := claims["v"].(float64); ok {
		out.Version = int64(v)
	}
	if aud, ok := claims["aud"].(string); ok {
		out.Audience = aud
	}
	return out, nil
}

// FetchPermissions loads the caller's group-derived permission set.
func (s *Service) FetchPermissions(ctx context.Context, userID int64) (PermissionSet, error) {
	codes, err := s.permRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewPermissionSet(codes), nil
}

// GrantPermission attaches a permission code to a group.
func (s *Service) GrantPermission(ctx context.Context, groupID int64, code string) error {
	return s.permRepo.Grant(ctx, groupID, code)
}

// RevokePermission detaches a permission code from a group.
func (s *Service) RevokePermission(ctx context.Context, groupID int64, code string) error {
	_, err := s.permRepo.Revoke(ctx, groupID, code)
	return err
}

func (s *Service) publish(ctx context.Context, p event.Params) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.CreateAndPublishEvent(ctx, p); err != nil {
		s.logger.Warnw("event publish failed", "event", p.EventName, "err", err)
	}
}
