package event

import (
	"context"
	"encoding/json"

	"github.com/arkova/catalog-core/internal/event/repo"
)

// NewAuditSubscriber returns a bus handler that writes every published event
// to the audit log. Insert failures stay inside the subscriber.
func NewAuditSubscriber(auditRepo *repo.AuditRepo) HandlerFunc {
	return func(ctx context.Context, ev Event) error {
		payload := json.RawMessage("{}")
		if ev.Payload != nil {
			if raw, err := json.Marshal(ev.Payload); err == nil {
				payload = raw
			}
		}
		return auditRepo.Insert(ctx, repo.AuditRecord{
			ID:         ev.ID,
			EventName:  ev.EventName,
			Version:    ev.Version,
			Source:     ev.Source,
			Severity:   ev.Severity,
			Payload:    payload,
			ErrorData:  ev.ErrorData,
			OccurredAt: ev.Timestamp,
		})
	}
}
