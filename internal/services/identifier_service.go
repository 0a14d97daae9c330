package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"intake/internal/models"
	"intake/internal/repositories"
)

// maxIdentifierDraws bounds collision retries. Exceeding it is reported, never degraded.
const maxIdentifierDraws = 3

// IdentifierService issues and validates session identifiers.
// Identifiers are random 128-bit values in canonical UUID form.
type IdentifierService struct {
	store repositories.Store
	newID func() (uuid.UUID, error)
	now   func() time.Time
}

type IdentifierOption func(*IdentifierService)

// WithIdentifierSource replaces the random source (tests force collisions with it).
func WithIdentifierSource(fn func() (uuid.UUID, error)) IdentifierOption {
	return func(s *IdentifierService) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func WithIdentifierClock(now func() time.Time) IdentifierOption {
	return func(s *IdentifierService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewIdentifierService(store repositories.Store, opts ...IdentifierOption) *IdentifierService {
	s := &IdentifierService{
		store: store,
		newID: uuid.NewRandom,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate draws an identifier that does not exist in the store yet. It does
// not reserve it; IssueIdentifier does both in one transaction.
func (s *IdentifierService) Generate(ctx context.Context) (string, error) {
	var id string
	err := s.store.WithinTx(ctx, func(tx repositories.Tx) error {
		var err error
		id, err = s.allocate(ctx, tx, nil)
		return err
	})
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", ErrIdentifierExhausted
	}
	return id, nil
}

// IssueIdentifier allocates an identifier and persists a PENDING session for it.
func (s *IdentifierService) IssueIdentifier(ctx context.Context) (*models.Session, error) {
	var sess *models.Session
	err := s.store.WithinTx(ctx, func(tx repositories.Tx) error {
		id, err := s.allocate(ctx, tx, func(id string, now time.Time) error {
			sess = &models.Session{
				ID:        id,
				State:     models.SessionPending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			return tx.Sessions().Create(ctx, sess)
		})
		if err != nil {
			return err
		}
		if id == "" {
			sess = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrIdentifierExhausted
	}
	log.Printf("[identifier][issue] session_id=%s", sess.ID)
	return sess, nil
}

// allocate runs the bounded draw loop. create, when set, persists the
// candidate; losing an insert race counts as a collision. An empty id with a
// nil error means the draws were exhausted: the audit rows still commit.
func (s *IdentifierService) allocate(ctx context.Context, tx repositories.Tx, create func(id string, now time.Time) error) (string, error) {
	for attempt := 1; attempt <= maxIdentifierDraws; attempt++ {
		u, err := s.newID()
		if err != nil {
			return "", fmt.Errorf("draw identifier: %w", err)
		}
		id := u.String()
		now := s.now()

		exists, err := tx.Sessions().Exists(ctx, id)
		if err != nil {
			return "", dependency(err)
		}
		if !exists && create != nil {
			if err := create(id, now); err != nil {
				if !errors.Is(err, repositories.ErrSessionExists) {
					return "", dependency(err)
				}
				exists = true
			}
		}
		if exists {
			log.Printf("[identifier][collision] attempt=%d id=%s", attempt, id)
			if err := writeAudit(ctx, tx, now, models.EventIdentifierCollision, id, map[string]any{
				"attempt": attempt,
			}); err != nil {
				return "", err
			}
			continue
		}

		if err := writeAudit(ctx, tx, now, models.EventIdentifierGenerated, id, map[string]any{
			"attempt": attempt,
		}); err != nil {
			return "", err
		}
		return id, nil
	}

	log.Printf("[identifier][exhausted] draws=%d", maxIdentifierDraws)
	if err := writeAudit(ctx, tx, s.now(), models.EventIdentifierExhausted, "", map[string]any{
		"draws": maxIdentifierDraws,
	}); err != nil {
		return "", err
	}
	return "", nil
}

// Validate checks the canonical form of candidate and, when checkExists is
// set, that no session uses it yet. Syntax and existence failures are
// distinct: ErrMalformedIdentifier vs ErrIdentifierExists.
func (s *IdentifierService) Validate(ctx context.Context, candidate string, checkExists bool) error {
	if !IsCanonicalIdentifier(candidate) {
		return ErrMalformedIdentifier
	}
	if !checkExists {
		return nil
	}
	var exists bool
	err := s.store.WithinTx(ctx, func(tx repositories.Tx) error {
		var err error
		exists, err = tx.Sessions().Exists(ctx, candidate)
		return err
	})
	if err != nil {
		return dependency(err)
	}
	if exists {
		return ErrIdentifierExists
	}
	return nil
}

// IsCanonicalIdentifier accepts only the lowercase 8-4-4-4-12 form of a random (v4) UUID.
func IsCanonicalIdentifier(candidate string) bool {
	if len(candidate) != 36 {
		return false
	}
	u, err := uuid.Parse(candidate)
	if err != nil {
		return false
	}
	return u.String() == candidate && u.Version() == 4 && u.Variant() == uuid.RFC4122
}

func writeAudit(ctx context.Context, tx repositories.Tx, now time.Time, typ models.AuditEventType, sessionID string, meta map[string]any) error {
	e := &models.AuditEvent{
		Timestamp: now,
		EventType: typ,
		SessionID: sessionID,
		Metadata:  meta,
	}
	if err := tx.Audit().Write(ctx, e); err != nil {
		return dependency(err)
	}
	return nil
}
