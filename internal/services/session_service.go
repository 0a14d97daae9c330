package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"intake/internal/models"
	"intake/internal/repositories"
	"intake/internal/storage"
)

const (
	DefaultMaxUploadBytes = 10 << 20
	maxDisplayNameRunes   = 100
	maxArtifactNameLen    = 200
)

// SessionService covers the parts of a session outside verification:
// reading it, the profile, completion and artifact uploads.
type SessionService struct {
	store     repositories.Store
	objects   storage.ObjectStore
	root      string
	maxUpload int64
	now       func() time.Time
}

type SessionOption func(*SessionService)

func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSessionService(store repositories.Store, objects storage.ObjectStore, root string, maxUpload int64, opts ...SessionOption) *SessionService {
	if root == "" {
		root = DefaultUploadRoot
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	s := &SessionService{
		store:     store,
		objects:   objects,
		root:      root,
		maxUpload: maxUpload,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	if !IsCanonicalIdentifier(id) {
		return nil, ErrMalformedIdentifier
	}
	var sess *models.Session
	err := s.store.WithinTx(ctx, func(tx repositories.Tx) error {
		var err error
		sess, err = tx.Sessions().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, dependency(err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// SessionHistory is the operator view of a session. Session is nil once the
// row has been reclaimed; the audit trail outlives it.
type SessionHistory struct {
	Session       *models.Session              `json:"session,omitempty"`
	Verifications []*models.VerificationRecord `json:"verifications"`
	Events        []*models.AuditEvent         `json:"events"`
}

// History returns the session, its verification records and its audit trail.
func (s *SessionService) History(ctx context.Context, id string) (*SessionHistory, error) {
	if !IsCanonicalIdentifier(id) {
		return nil, ErrMalformedIdentifier
	}
	h := &SessionHistory{}
	err := s.store.WithinTx(ctx, func(tx repositories.Tx) error {
		var err error
		if h.Session, err = tx.Sessions().Get(ctx, id); err != nil {
			return err
		}
		if h.Verifications, err = tx.Verifications().ListBySession(ctx, id); err != nil {
			return err
		}
		h.Events, err = tx.Audit().ListBySession(ctx, id)
		return err
	})
	if err != nil {
		return nil, dependency(err)
	}
	if h.Session == nil && len(h.Events) == 0 {
		return nil, ErrSessionNotFound
	}
	if h.Verifications == nil {
		h.Verifications = []*models.VerificationRecord{}
	}
	return h, nil
}

// UpdateProfile sets the display name. Completed sessions are read-only.
func (s *SessionService) UpdateProfile(ctx context.Context, id, displayName string) (*models.Session, error) {
	name := strings.TrimSpace(displayName)
	if !validDisplayName(name) {
		return nil, ErrInvalidDisplayName
	}
	return s.mutate(ctx, id, func(tx repositories.Tx, sess *models.Session, now time.Time) error {
		if sess.IsComplete() {
			return ErrInvalidTransition
		}
		sess.DisplayName = name
		sess.UpdatedAt = now
		if err := tx.Sessions().Update(ctx, sess); err != nil {
			return dependency(err)
		}
		return writeAudit(ctx, tx, now, models.EventSessionProfile, sess.ID, nil)
	})
}

// Complete finishes onboarding. Only a session with a verified email can
// complete; completing twice is a no-op.
func (s *SessionService) Complete(ctx context.Context, id string) (*models.Session, error) {
	return s.mutate(ctx, id, func(tx repositories.Tx, sess *models.Session, now time.Time) error {
		if sess.IsComplete() {
			return nil
		}
		if err := transition(sess, models.SessionComplete, now); err != nil {
			return err
		}
		if err := tx.Sessions().Update(ctx, sess); err != nil {
			return dependency(err)
		}
		log.Printf("[session][complete] session_id=%s", sess.ID)
		return writeAudit(ctx, tx, now, models.EventSessionCompleted, sess.ID, nil)
	})
}

// Upload stores an artifact under the session prefix. The session row stays
// locked for the duration so a sweep cannot remove the prefix underneath it.
func (s *SessionService) Upload(ctx context.Context, id, name string, r io.Reader) (models.ObjectInfo, error) {
	name, err := artifactName(name)
	if err != nil {
		return models.ObjectInfo{}, err
	}
	key := s.root + id + "/" + name

	var info models.ObjectInfo
	_, err = s.mutate(ctx, id, func(tx repositories.Tx, sess *models.Session, now time.Time) error {
		var err error
		info, err = s.objects.Put(ctx, key, r, s.maxUpload)
		if errors.Is(err, storage.ErrTooLarge) {
			return ErrArtifactTooLarge
		}
		if err != nil {
			return dependency(fmt.Errorf("put %s: %w", key, err))
		}
		sess.UpdatedAt = now
		if err := tx.Sessions().Update(ctx, sess); err != nil {
			return dependency(err)
		}
		return writeAudit(ctx, tx, now, models.EventArtifactUploaded, sess.ID, map[string]any{
			"key":  info.Key,
			"size": info.Size,
		})
	})
	if err != nil {
		return models.ObjectInfo{}, err
	}
	log.Printf("[session][upload] session_id=%s key=%s size=%d", id, info.Key, info.Size)
	return info, nil
}

func (s *SessionService) mutate(ctx context.Context, id string, fn func(tx repositories.Tx, sess *models.Session, now time.Time) error) (*models.Session, error) {
	if !IsCanonicalIdentifier(id) {
		return nil, ErrMalformedIdentifier
	}
	var out *models.Session
	err := s.store.WithinTx(ctx, func(tx repositories.Tx) error {
		sess, err := tx.Sessions().GetForUpdate(ctx, id)
		if err != nil {
			return dependency(err)
		}
		if sess == nil {
			return ErrSessionNotFound
		}
		if err := fn(tx, sess, s.now()); err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func validDisplayName(name string) bool {
	if name == "" || utf8.RuneCountInString(name) > maxDisplayNameRunes {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// artifactName keeps the base name of a client supplied file name.
func artifactName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	if name == "" || name == "." || name == ".." || name == "/" || len(name) > maxArtifactNameLen {
		return "", ErrInvalidArtifact
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", ErrInvalidArtifact
		}
	}
	return name, nil
}
