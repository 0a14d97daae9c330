package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied idempotently on startup.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	display_name  TEXT NOT NULL DEFAULT '',
	contact_email TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ NULL,
	CONSTRAINT sessions_completed_chk CHECK ((state = 'COMPLETE') = (completed_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS sessions_state_updated_idx ON sessions (state, updated_at);

CREATE TABLE IF NOT EXISTS verification_records (
	id             BIGSERIAL PRIMARY KEY,
	session_id     TEXT NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
	email_digest   TEXT NOT NULL,
	email_plain    TEXT NOT NULL DEFAULT '',
	code_hash      TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	expires_at     TIMESTAMPTZ NOT NULL,
	attempt_count  INT NOT NULL DEFAULT 0,
	max_attempts   INT NOT NULL,
	resend_count   INT NOT NULL DEFAULT 0,
	max_resends    INT NOT NULL,
	last_resend_at TIMESTAMPTZ NOT NULL,
	verified       BOOLEAN NOT NULL DEFAULT FALSE,
	verified_at    TIMESTAMPTZ NULL,
	expired_at     TIMESTAMPTZ NULL,
	failed_at      TIMESTAMPTZ NULL,
	superseded_at  TIMESTAMPTZ NULL,
	CONSTRAINT verification_attempts_chk CHECK (attempt_count <= max_attempts)
);

CREATE UNIQUE INDEX IF NOT EXISTS verification_records_active_uidx
	ON verification_records (session_id) WHERE superseded_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_events (
	id         BIGSERIAL PRIMARY KEY,
	timestamp  TIMESTAMPTZ NOT NULL,
	event_type TEXT NOT NULL,
	session_id TEXT NOT NULL,
	metadata   JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS audit_events_session_idx ON audit_events (session_id, id);
`

func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
