package event

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/arkova/catalog-core/internal/event/repo"
	"github.com/arkova/catalog-core/internal/httpapi"
)

// Handler exposes the audit log read endpoint.
type Handler struct {
	audit  *repo.AuditRepo
	logger *zap.SugaredLogger
}

func NewHandler(audit *repo.AuditRepo, logger *zap.SugaredLogger) *Handler {
	return &Handler{audit: audit, logger: logger}
}

// ListAuditLog serves GET /audit-log?event=&limit=.
func (h *Handler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.audit.ListRecent(r.Context(), r.URL.Query().Get("event"), limit)
	if err != nil {
		h.logger.Warnw("audit log list failed", "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, rows)
}
