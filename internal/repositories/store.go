package repositories

import (
	"context"
	"errors"
	"time"

	"intake/internal/models"
)

var (
	// ErrSessionExists is returned by SessionRepository.Create when the id is already taken.
	ErrSessionExists = errors.New("session already exists")
	ErrNotFound      = errors.New("not found")
)

// Store is the transactional gateway over sessions, verification records and audit events.
type Store interface {
	// WithinTx runs fn inside a single transaction. A non-nil error from fn
	// rolls everything back, including audit writes.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Sessions() SessionRepository
	Verifications() VerificationRepository
	Audit() AuditRepository
}

type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	// Get returns nil, nil when the session does not exist.
	Get(ctx context.Context, id string) (*models.Session, error)
	// GetForUpdate is Get plus a row lock held until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.Session, error)
	Exists(ctx context.Context, id string) (bool, error)
	Update(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, id string) error
	// ListAbandoned returns non-complete sessions untouched since cutoff, oldest first.
	ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]*models.Session, error)
}

type VerificationRepository interface {
	Create(ctx context.Context, v *models.VerificationRecord) error
	// GetActive returns the newest non-superseded record (locked), or nil, nil.
	GetActive(ctx context.Context, sessionID string) (*models.VerificationRecord, error)
	Update(ctx context.Context, v *models.VerificationRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]*models.VerificationRecord, error)
}

type AuditRepository interface {
	Write(ctx context.Context, e *models.AuditEvent) error
	ListBySession(ctx context.Context, sessionID string) ([]*models.AuditEvent, error)
}
