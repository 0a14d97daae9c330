package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"intake/internal/models"
)

type verificationRepository struct {
	db sqlx.ExtContext
}

const verificationColumns = `
	id, session_id, email_digest, email_plain, code_hash, created_at, expires_at,
	attempt_count, max_attempts, resend_count, max_resends, last_resend_at,
	verified, verified_at, expired_at, failed_at, superseded_at
`

// Create inserts a new row per dispatch.
func (r *verificationRepository) Create(ctx context.Context, v *models.VerificationRecord) error {
	const q = `
		INSERT INTO verification_records (
			session_id, email_digest, email_plain, code_hash, created_at, expires_at,
			attempt_count, max_attempts, resend_count, max_resends, last_resend_at,
			verified, verified_at, expired_at, failed_at, superseded_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id
	`
	row := r.db.QueryRowxContext(ctx, q,
		v.SessionID, v.EmailDigest, v.EmailPlain, v.CodeHash, v.CreatedAt, v.ExpiresAt,
		v.AttemptCount, v.MaxAttempts, v.ResendCount, v.MaxResends, v.LastResendAt,
		v.Verified, v.VerifiedAt, v.ExpiredAt, v.FailedAt, v.SupersededAt,
	)
	if err := row.Scan(&v.ID); err != nil {
		switch pqErrorCode(err) {
		case pqForeignKeyViolation:
			return fmt.Errorf("verification create: session %s: %w", v.SessionID, ErrNotFound)
		case pqUniqueViolation:
			return fmt.Errorf("verification create: active record exists for %s: %w", v.SessionID, err)
		}
		return fmt.Errorf("verification create: %w", err)
	}
	return nil
}

// GetActive returns the newest non-superseded row, locked for the rest of the transaction.
func (r *verificationRepository) GetActive(ctx context.Context, sessionID string) (*models.VerificationRecord, error) {
	q := `
		SELECT ` + verificationColumns + `
		FROM verification_records
		WHERE session_id = $1 AND superseded_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1
		FOR UPDATE
	`
	var v models.VerificationRecord
	if err := sqlx.GetContext(ctx, r.db, &v, q, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("verification get active: %w", err)
	}
	return &v, nil
}

func (r *verificationRepository) Update(ctx context.Context, v *models.VerificationRecord) error {
	const q = `
		UPDATE verification_records
		SET email_plain = :email_plain,
			attempt_count = :attempt_count,
			resend_count = :resend_count,
			last_resend_at = :last_resend_at,
			verified = :verified,
			verified_at = :verified_at,
			expired_at = :expired_at,
			failed_at = :failed_at,
			superseded_at = :superseded_at
		WHERE id = :id
	`
	res, err := sqlx.NamedExecContext(ctx, r.db, q, v)
	if err != nil {
		return fmt.Errorf("verification update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("verification update: %w", ErrNotFound)
	}
	return nil
}

func (r *verificationRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.VerificationRecord, error) {
	q := `SELECT ` + verificationColumns + ` FROM verification_records WHERE session_id = $1 ORDER BY id`
	var out []*models.VerificationRecord
	if err := sqlx.SelectContext(ctx, r.db, &out, q, sessionID); err != nil {
		return nil, fmt.Errorf("verification list: %w", err)
	}
	return out, nil
}
