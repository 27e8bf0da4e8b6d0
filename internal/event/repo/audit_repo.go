package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
)

// AuditRepo persists published events into app.audit_log.
type AuditRepo struct {
	db *sqlx.DB
}

func NewAuditRepo(db *sqlx.DB) *AuditRepo { return &AuditRepo{db: db} }

// AuditRecord is one immutable audit row.
type AuditRecord struct {
	ID         string          `db:"id" json:"id"`
	EventName  string          `db:"event_name" json:"event_name"`
	Version    string          `db:"version" json:"version"`
	Source     string          `db:"source" json:"source"`
	Severity   string          `db:"severity" json:"severity"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	ErrorData  string          `db:"error_data" json:"error_data,omitempty"`
	OccurredAt time.Time       `db:"occurred_at" json:"occurred_at"`
}

// Insert writes one audit row.
func (r *AuditRepo) Insert(ctx context.Context, rec AuditRecord) error {
	const q = `INSERT INTO app.audit_log (id, event_name, version, source, severity, payload, error_data, occurred_at)
	           VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	payload := rec.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	_, err := r.db.ExecContext(ctx, q, rec.ID, rec.EventName, rec.Version, rec.Source, rec.Severity, payload, rec.ErrorData, rec.OccurredAt)
	return err
}

// ListRecent returns the newest rows, optionally filtered by event name.
func (r *AuditRepo) ListRecent(ctx context.Context, eventName string, limit int) ([]AuditRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []AuditRecord
	if eventName != "" {
		const q = `SELECT id, event_name, version, source, severity, payload, error_data, occurred_at
		           FROM app.audit_log WHERE event_name=$1 ORDER BY occurred_at DESC LIMIT $2`
		if err := r.db.SelectContext(ctx, &rows, q, eventName, limit); err != nil {
			return nil, err
		}
		return rows, nil
	}
	const q = `SELECT id, event_name, version, source, severity, payload, error_data, occurred_at
	           FROM app.audit_log ORDER BY occurred_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, err
	}
	return rows, nil
}
