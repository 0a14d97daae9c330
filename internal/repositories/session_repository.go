package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"intake/internal/models"
)

type sessionRepository struct {
	db sqlx.ExtContext
}

const sessionColumns = `id, display_name, contact_email, state, created_at, updated_at, completed_at`

// Create uses ON CONFLICT to keep the surrounding transaction usable when the id is taken.
func (r *sessionRepository) Create(ctx context.Context, s *models.Session) error {
	const q = `
		INSERT INTO sessions (id, display_name, contact_email, state, created_at, updated_at, completed_at)
		VALUES (:id, :display_name, :contact_email, :state, :created_at, :updated_at, :completed_at)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := sqlx.NamedExecContext(ctx, r.db, q, s)
	if err != nil {
		return fmt.Errorf("session create: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session create rows: %w", err)
	}
	if n == 0 {
		return ErrSessionExists
	}
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	return r.get(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

func (r *sessionRepository) GetForUpdate(ctx context.Context, id string) (*models.Session, error) {
	return r.get(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id)
}

func (r *sessionRepository) get(ctx context.Context, q, id string) (*models.Session, error) {
	var s models.Session
	if err := sqlx.GetContext(ctx, r.db, &s, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("session get: %w", err)
	}
	return &s, nil
}

func (r *sessionRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, r.db, &exists, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("session exists: %w", err)
	}
	return exists, nil
}

func (r *sessionRepository) Update(ctx context.Context, s *models.Session) error {
	const q = `
		UPDATE sessions
		SET display_name = :display_name,
			contact_email = :contact_email,
			state = :state,
			updated_at = :updated_at,
			completed_at = :completed_at
		WHERE id = :id
	`
	res, err := sqlx.NamedExecContext(ctx, r.db, q, s)
	if err != nil {
		return fmt.Errorf("session update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session update: %w", ErrNotFound)
	}
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}

func (r *sessionRepository) ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]*models.Session, error) {
	const q = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE state <> 'COMPLETE' AND updated_at < $1
		ORDER BY updated_at
		LIMIT NULLIF($2, 0)
	`
	var out []*models.Session
	if err := sqlx.SelectContext(ctx, r.db, &out, q, cutoff, limit); err != nil {
		return nil, fmt.Errorf("session list abandoned: %w", err)
	}
	return out, nil
}
