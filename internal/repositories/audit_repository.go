package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"intake/internal/models"
)

type auditRepository struct {
	db sqlx.ExtContext
}

func (r *auditRepository) Write(ctx context.Context, e *models.AuditEvent) error {
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("audit metadata: %w", err)
		}
		meta = b
	}
	const q = `
		INSERT INTO audit_events (timestamp, event_type, session_id, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := r.db.QueryRowxContext(ctx, q, e.Timestamp, e.EventType, e.SessionID, string(meta)).Scan(&e.ID); err != nil {
		return fmt.Errorf("audit write: %w", err)
	}
	return nil
}

func (r *auditRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.AuditEvent, error) {
	const q = `
		SELECT id, timestamp, event_type, session_id, metadata
		FROM audit_events
		WHERE session_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryxContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("audit list: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditEvent
	for rows.Next() {
		var (
			e    models.AuditEvent
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.SessionID, &meta); err != nil {
			return nil, fmt.Errorf("audit scan: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("audit metadata decode: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
