package setting

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/arkova/catalog-core/internal/httpapi"
)

// Handler exposes settings endpoints: cached section reads and admin updates.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

// NewHandler constructs a new Handler.
func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// List serves GET /settings?section=<path>&refresh=1.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	section := r.URL.Query().Get("section")
	if section == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "section query parameter required")
		return
	}
	force := r.URL.Query().Get("refresh") == "1"
	rows, err := h.svc.FetchSettings(r.Context(), section, force)
	if err != nil {
		h.logger.Warnw("settings list failed", "section", section, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, rows)
}

// UpdateRequest is the body for PUT /settings.
type UpdateRequest struct {
	SectionPath string `json:"section_path"`
	SettingName string `json:"setting_name"`
	Value       string `json:"value"`
}

// Update serves PUT /settings (admin only, enforced by middleware).
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.SectionPath == "" || req.SettingName == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "section_path and setting_name required")
		return
	}
	if err := h.svc.UpdateValue(r.Context(), req.SectionPath, req.SettingName, req.Value); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "setting not found")
			return
		}
		h.logger.Warnw("settings update failed", "section", req.SectionPath, "name", req.SettingName, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to update setting")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, nil)
}
