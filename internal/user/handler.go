package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/arkova/catalog-core/internal/httpapi"
)

// Handler exposes HTTP endpoints for registration and group administration.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRequest is the body for POST /users.
type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	RegionID    *int64 `json:"region_id,omitempty"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	id, err := h.svc.RegisterUser(r.Context(), RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Phone:       req.Phone,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		RegionID:    req.RegionID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateUsername):
			httpapi.WriteError(w, http.StatusBadRequest, "username already taken")
		case errors.Is(err, ErrDuplicateEmail):
			httpapi.WriteError(w, http.StatusBadRequest, "email already registered")
		case errors.Is(err, ErrDuplicatePhone):
			httpapi.WriteError(w, http.StatusBadRequest, "phone number already registered")
		default:
			h.logger.Warnw("registration failed", "err", err)
			httpapi.WriteError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}
	httpapi.WriteOK(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.svc.Deactivate(r.Context(), id); err != nil {
		h.logger.Warnw("deactivate failed", "user_id", id, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "deactivate failed")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, nil)
}

func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.svc.Reactivate(r.Context(), id); err != nil {
		h.logger.Warnw("reactivate failed", "user_id", id, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "reactivate failed")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, nil)
}

func (h *Handler) ListUserGroups(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	gs, err := h.svc.ListGroupsForUser(r.Context(), id)
	if err != nil {
		h.logger.Warnw("user group list failed", "user_id", id, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, gs)
}

// GroupRequest is the body for POST /groups.
type GroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	g, err := h.svc.CreateGroup(r.Context(), req.Name, req.Description)
	if err != nil {
		h.logger.Warnw("group create failed", "err", err)
		httpapi.WriteError(w, http.StatusBadRequest, "group create failed")
		return
	}
	httpapi.WriteOK(w, http.StatusCreated, g)
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	gs, err := h.svc.ListGroups(r.Context())
	if err != nil {
		h.logger.Warnw("group list failed", "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, gs)
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	if err := h.svc.DeleteGroup(r.Context(), id); err != nil {
		if errors.Is(err, ErrGroupNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "group not found")
			return
		}
		h.logger.Warnw("group delete failed", "group_id", id, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "group delete failed")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, nil)
}

// MemberRequest is the body for POST /groups/{id}/members.
type MemberRequest struct {
	UserID int64 `json:"user_id"`
}

func (h *Handler) AddGroupMember(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	var req MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.svc.AddGroupMember(r.Context(), groupID, req.UserID); err != nil {
		if errors.Is(err, ErrGroupNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "group not found")
			return
		}
		h.logger.Warnw("add member failed", "group_id", groupID, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "add member failed")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, nil)
}

func (h *Handler) RemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	userID, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.svc.RemoveGroupMember(r.Context(), groupID, userID); err != nil {
		if errors.Is(err, ErrGroupNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "membership not found")
			return
		}
		h.logger.Warnw("remove member failed", "group_id", groupID, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "remove member failed")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, nil)
}
