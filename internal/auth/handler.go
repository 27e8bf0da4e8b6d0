package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/arkova/catalog-core/internal/httpapi"
	"github.com/arkova/catalog-core/internal/user"
)

// RefreshCookieName is the httpOnly cookie carrying the opaque refresh token.
const RefreshCookieName = "refresh_token"

// Handler exposes the authentication endpoints.
type Handler struct {
	svc     *Service
	userSvc *user.UserService
	logger  *zap.SugaredLogger
}

func NewHandler(svc *Service, userSvc *user.UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, userSvc: userSvc, logger: logger}
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	ClientID   string `json:"client_id"`
}

// LoginResponse carries the access token; the refresh token travels only in
// the httpOnly cookie.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	UserID      int64  `json:"user_id"`
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, r *http.Request, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/catalog-core/auth",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/catalog-core/auth",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// Login authenticates with password credentials, returns an access token and
// sets the refresh cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	view, err := h.userSvc.AuthenticatePassword(r.Context(), req.Identifier, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrBadCredentials), errors.Is(err, user.ErrMustResetPassword):
			httpapi.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, user.ErrLocked):
			httpapi.WriteError(w, http.StatusForbidden, "account locked")
		case errors.Is(err, user.ErrDisabled):
			httpapi.WriteError(w, http.StatusForbidden, "account disabled")
		default:
			h.logger.Warnw("login failed", "err", err)
			httpapi.WriteError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}
	pair, err := h.svc.IssueTokens(r.Context(), view, req.ClientID)
	if err != nil {
		h.logger.Warnw("token issuance failed", "user_id", view.ID, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "login failed")
		return
	}
	h.setRefreshCookie(w, r, pair.RefreshToken, h.svc.refreshTTL)
	httpapi.WriteOK(w, http.StatusOK, LoginResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   pair.ExpiresIn,
		UserID:      view.ID,
	})
}

// Refresh rotates the refresh session from the cookie and returns a new
// access token. The old session is revoked before a new one is issued.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		httpapi.WriteError(w, http.StatusUnauthorized, "missing refresh token")
		return
	}
	session, ok := h.svc.ValidateRefreshToken(r.Context(), cookie.Value)
	if !ok {
		clearRefreshCookie(w)
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	view, err := h.userSvc.GetMinimalAuthView(r.Context(), session.UserID)
	if err != nil {
		clearRefreshCookie(w)
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	pair, err := h.svc.RefreshTokens(r.Context(), view, cookie.Value, session.ClientID)
	if err != nil {
		h.logger.Warnw("refresh rotation failed", "user_id", session.UserID, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	h.setRefreshCookie(w, r, pair.RefreshToken, h.svc.refreshTTL)
	httpapi.WriteOK(w, http.StatusOK, LoginResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   pair.ExpiresIn,
		UserID:      view.ID,
	})
}

// Logout revokes the refresh session and clears the cookie. Always 200,
// mirroring RFC 7009 semantics for unknown tokens.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(RefreshCookieName); err == nil && cookie.Value != "" {
		if err := h.svc.RevokeRefreshToken(r.Context(), cookie.Value); err != nil {
			h.logger.Debugw("logout revoke failed", "err", err)
		}
	}
	clearRefreshCookie(w)
	httpapi.WriteOK(w, http.StatusOK, nil)
}

// JWKS serves the verification key set.
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.svc.JWKS())
}

// RevokeUserSessions bumps the user's token version and deletes every refresh
// session, forcing a fresh login everywhere.
func (h *Handler) RevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if _, err := h.userSvc.BumpVersionAndRevoke(r.Context(), userID); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Warnw("version bump failed", "user_id", userID, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "session revoke failed")
		return
	}
	if err := h.svc.RevokeAllForUser(r.Context(), userID); err != nil {
		h.logger.Warnw("session revoke failed", "user_id", userID, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "session revoke failed")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, nil)
}

// GrantRequest is the body for POST /groups/{id}/permissions.
type GrantRequest struct {
	Code string `json:"code"`
}

// GrantGroupPermission attaches a permission code to a group.
func (h *Handler) GrantGroupPermission(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "permission code required")
		return
	}
	if err := h.svc.GrantPermission(r.Context(), groupID, req.Code); err != nil {
		h.logger.Warnw("permission grant failed", "group_id", groupID, "code", req.Code, "err", err)
		httpapi.WriteError(w, http.StatusBadRequest, "permission grant failed")
		return
	}
	httpapi.WriteOK(w, http.StatusCreated, nil)
}

// RevokeGroupPermission detaches a permission code from a group.
func (h *Handler) RevokeGroupPermission(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	code := r.PathValue("code")
	if code == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "permission code required")
		return
	}
	if err := h.svc.RevokePermission(r.Context(), groupID, code); err != nil {
		h.logger.Warnw("permission revoke failed", "group_id", groupID, "code", code, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "permission revoke failed")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, nil)
}

// Permissions returns the caller's permission codes. The caller identity
// comes from the auth middleware, which stores verified claims in context.
func (h *Handler) Permissions(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		httpapi.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	set, err := h.svc.FetchPermissions(r.Context(), claims.UserID)
	if err != nil {
		h.logger.Warnw("permission fetch failed", "user_id", claims.UserID, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to load permissions")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, map[string]any{"permissions": set.Codes()})
}
