package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"intake/internal/models"
	"intake/internal/repositories"
	"intake/internal/utils"
	"intake/internal/validator"
)

// Defaults for the verification protocol.
const (
	DefaultCodeLength     = 6
	DefaultCodeTTL        = 10 * time.Minute
	DefaultMaxAttempts    = 3
	DefaultMaxResends     = 3
	DefaultResendCooldown = 30 * time.Second
)

type VerificationConfig struct {
	CodeLength     int
	CodeTTL        time.Duration
	MaxAttempts    int
	MaxResends     int
	ResendCooldown time.Duration
	BcryptCost     int
	// DigestKey keys the email digest; up to 64 bytes.
	DigestKey []byte
}

func (c *VerificationConfig) applyDefaults() {
	if c.CodeLength <= 0 {
		c.CodeLength = DefaultCodeLength
	}
	if c.CodeTTL <= 0 {
		c.CodeTTL = DefaultCodeTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MaxResends < 0 {
		c.MaxResends = 0
	} else if c.MaxResends == 0 {
		c.MaxResends = DefaultMaxResends
	}
	if c.ResendCooldown <= 0 {
		c.ResendCooldown = DefaultResendCooldown
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
}

// Outcome of a code submission.
type Outcome string

const (
	OutcomeVerified      Outcome = "verified"
	OutcomeInvalid       Outcome = "invalid"
	OutcomeExpired       Outcome = "expired"
	OutcomeResetRequired Outcome = "reset_required"
)

type VerificationResult struct {
	Outcome           Outcome `json:"outcome"`
	AttemptsRemaining int     `json:"attempts_remaining"`
}

// VerificationService owns the email-verification lifecycle of a session:
// code issuance, attempt counting, expiry and resend throttling. Every
// transition runs in one store transaction together with its audit event.
type VerificationService struct {
	store    repositories.Store
	notifier Notifier
	cfg      VerificationConfig
	validate *validator.Validator
	now      func() time.Time
	newCode  func(length int) (string, error)
}

type VerificationOption func(*VerificationService)

func WithVerificationClock(now func() time.Time) VerificationOption {
	return func(s *VerificationService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithCodeGenerator(fn func(length int) (string, error)) VerificationOption {
	return func(s *VerificationService) {
		if fn != nil {
			s.newCode = fn
		}
	}
}

func NewVerificationService(store repositories.Store, notifier Notifier, cfg VerificationConfig, opts ...VerificationOption) *VerificationService {
	cfg.applyDefaults()
	s := &VerificationService{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		validate: validator.New(),
		now:      time.Now,
		newCode:  utils.NewNumericCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BeginVerification records the address on the session and sends a fresh
// code. A live code for the same address is replaced only through the resend
// throttle; a live code for another address is superseded outright.
func (s *VerificationService) BeginVerification(ctx context.Context, sessionID, email string) error {
	return s.issue(ctx, sessionID, email, models.EventVerificationRequest)
}

// ResendVerification supersedes the live code with a new one, subject to the
// resend limit and cooldown.
func (s *VerificationService) ResendVerification(ctx context.Context, sessionID, email string) error {
	return s.issue(ctx, sessionID, email, models.EventVerificationResent)
}

func (s *VerificationService) issue(ctx context.Context, sessionID, rawEmail string, event models.AuditEventType) error {
	email := utils.NormalizeEmail(rawEmail)
	if err := s.validate.Email(email); err != nil {
		return ErrInvalidEmail
	}
	digest, err := utils.EmailDigest(s.cfg.DigestKey, email)
	if err != nil {
		return err
	}
	code, err := s.newCode(s.cfg.CodeLength)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("bcrypt generate: %w", err)
	}

	var (
		dispatchErr error
		rec         *models.VerificationRecord
	)
	err = s.store.WithinTx(ctx, func(tx repositories.Tx) error {
		now := s.now()

		sess, err := tx.Sessions().GetForUpdate(ctx, sessionID)
		if err != nil {
			return dependency(err)
		}
		if sess == nil {
			return ErrSessionNotFound
		}
		if sess.State == models.SessionEmailVerified || sess.State == models.SessionComplete {
			return ErrAlreadyVerified
		}

		active, err := tx.Verifications().GetActive(ctx, sessionID)
		if err != nil {
			return dependency(err)
		}

		// throttling follows the address; a different one starts over
		resendCount := 0
		if active != nil && active.IsLive(now) && active.EmailDigest == digest {
			if err := s.checkResend(active, now); err != nil {
				return err
			}
			resendCount = active.ResendCount + 1
		}
		if active != nil {
			// superseded rows stay for audit, without the plaintext address
			active.SupersededAt = &now
			active.Scrub()
			if err := tx.Verifications().Update(ctx, active); err != nil {
				return dependency(err)
			}
		}

		rec = &models.VerificationRecord{
			SessionID:    sessionID,
			EmailDigest:  digest,
			EmailPlain:   email,
			CodeHash:     string(codeHash),
			CreatedAt:    now,
			ExpiresAt:    now.Add(s.cfg.CodeTTL),
			MaxAttempts:  s.cfg.MaxAttempts,
			ResendCount:  resendCount,
			MaxResends:   s.cfg.MaxResends,
			LastResendAt: now,
		}
		if err := tx.Verifications().Create(ctx, rec); err != nil {
			return dependency(err)
		}

		if err := transition(sess, models.SessionEmailCollected, now); err != nil {
			return err
		}
		sess.ContactEmail = email
		if err := tx.Sessions().Update(ctx, sess); err != nil {
			return dependency(err)
		}

		meta := map[string]any{
			"record_id":    rec.ID,
			"resend_count": rec.ResendCount,
			"expires_at":   rec.ExpiresAt.UTC().Format(time.RFC3339),
		}
		if active != nil {
			meta["superseded_id"] = active.ID
		}
		if err := writeAudit(ctx, tx, now, event, sessionID, meta); err != nil {
			return err
		}

		// the record is written; a failed send rolls all of it back
		if err := s.notifier.Send(ctx, email, code); err != nil {
			dispatchErr = err
			return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
		}
		return nil
	})
	if dispatchErr != nil {
		log.Printf("[verify][dispatch] session_id=%s err=%v", sessionID, dispatchErr)
		s.recordFailure(ctx, sessionID, models.EventDispatchFailed, map[string]any{
			"error": dispatchErr.Error(),
		})
		return err
	}
	if err != nil {
		if KindOf(err) == KindDependency {
			log.Printf("[verify][%s] session_id=%s err=%v", event, sessionID, err)
		}
		return err
	}

	log.Printf("[verify][%s] session_id=%s record_id=%d resend_count=%d", event, sessionID, rec.ID, rec.ResendCount)
	return nil
}

// checkResend enforces the durable resend limit and cooldown of a live record.
func (s *VerificationService) checkResend(active *models.VerificationRecord, now time.Time) error {
	if active.ResendCount >= active.MaxResends {
		// a new code becomes possible once this one expires
		return rateLimited(ErrResendLimitReached, active.ExpiresAt.Sub(now))
	}
	if wait := active.LastResendAt.Add(s.cfg.ResendCooldown).Sub(now); wait > 0 {
		return rateLimited(ErrCooldown, wait)
	}
	return nil
}

// SubmitVerificationCode checks candidate against the active record.
// Expired and ResetRequired outcomes come with ErrCodeExpired and
// ErrAttemptsExhausted respectively; Verified and Invalid return a nil error.
func (s *VerificationService) SubmitVerificationCode(ctx context.Context, sessionID, candidate string) (VerificationResult, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return VerificationResult{}, ErrInvalidCode
	}

	var res VerificationResult
	err := s.store.WithinTx(ctx, func(tx repositories.Tx) error {
		now := s.now()

		sess, err := tx.Sessions().GetForUpdate(ctx, sessionID)
		if err != nil {
			return dependency(err)
		}
		if sess == nil {
			return ErrSessionNotFound
		}
		rec, err := tx.Verifications().GetActive(ctx, sessionID)
		if err != nil {
			return dependency(err)
		}
		if rec == nil {
			return ErrNoVerificationInProgress
		}

		if rec.Verified {
			res = VerificationResult{Outcome: OutcomeVerified}
			return nil
		}

		// expiry wins over everything else and never costs an attempt
		if rec.IsExpired(now) {
			res = VerificationResult{Outcome: OutcomeExpired, AttemptsRemaining: rec.AttemptsRemaining()}
			if rec.ExpiredAt != nil {
				return nil
			}
			rec.ExpiredAt = &now
			rec.Scrub()
			if err := tx.Verifications().Update(ctx, rec); err != nil {
				return dependency(err)
			}
			return writeAudit(ctx, tx, now, models.EventVerificationExpired, sessionID, map[string]any{
				"record_id":     rec.ID,
				"attempt_count": rec.AttemptCount,
			})
		}

		if rec.IsExhausted() {
			res = VerificationResult{Outcome: OutcomeResetRequired}
			if sess.State == models.SessionReset {
				return nil
			}
			return s.reset(ctx, tx, sess, rec, now)
		}

		rec.AttemptCount++
		if bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(candidate)) == nil {
			rec.Verified = true
			rec.VerifiedAt = &now
			rec.Scrub()
			if err := tx.Verifications().Update(ctx, rec); err != nil {
				return dependency(err)
			}
			if err := transition(sess, models.SessionEmailVerified, now); err != nil {
				return err
			}
			if err := tx.Sessions().Update(ctx, sess); err != nil {
				return dependency(err)
			}
			res = VerificationResult{Outcome: OutcomeVerified}
			return writeAudit(ctx, tx, now, models.EventVerificationSuccess, sessionID, map[string]any{
				"record_id":     rec.ID,
				"attempt_count": rec.AttemptCount,
			})
		}

		if rec.AttemptCount >= rec.MaxAttempts {
			res = VerificationResult{Outcome: OutcomeResetRequired}
			return s.reset(ctx, tx, sess, rec, now)
		}

		if err := tx.Verifications().Update(ctx, rec); err != nil {
			return dependency(err)
		}
		res = VerificationResult{Outcome: OutcomeInvalid, AttemptsRemaining: rec.AttemptsRemaining()}
		return writeAudit(ctx, tx, now, models.EventVerificationFailed, sessionID, map[string]any{
			"record_id":          rec.ID,
			"attempt_count":      rec.AttemptCount,
			"attempts_remaining": res.AttemptsRemaining,
		})
	})
	if err != nil {
		if KindOf(err) == KindDependency {
			log.Printf("[verify][submit] session_id=%s err=%v", sessionID, err)
		}
		return VerificationResult{}, err
	}

	log.Printf("[verify][submit] session_id=%s outcome=%s remaining=%d", sessionID, res.Outcome, res.AttemptsRemaining)
	switch res.Outcome {
	case OutcomeExpired:
		return res, ErrCodeExpired
	case OutcomeResetRequired:
		return res, ErrAttemptsExhausted
	}
	return res, nil
}

// reset marks the record terminal-failed and sends the session back to email
// collection with the collected address cleared.
func (s *VerificationService) reset(ctx context.Context, tx repositories.Tx, sess *models.Session, rec *models.VerificationRecord, now time.Time) error {
	if rec.FailedAt == nil {
		rec.FailedAt = &now
	}
	rec.Scrub()
	if err := tx.Verifications().Update(ctx, rec); err != nil {
		return dependency(err)
	}
	if err := transition(sess, models.SessionReset, now); err != nil {
		return err
	}
	sess.ContactEmail = ""
	if err := tx.Sessions().Update(ctx, sess); err != nil {
		return dependency(err)
	}
	return writeAudit(ctx, tx, now, models.EventVerificationExhaust, sess.ID, map[string]any{
		"record_id":     rec.ID,
		"attempt_count": rec.AttemptCount,
	})
}

// recordFailure audits a failure whose business transaction was rolled back.
func (s *VerificationService) recordFailure(ctx context.Context, sessionID string, typ models.AuditEventType, meta map[string]any) {
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithinTx(ctx, func(tx repositories.Tx) error {
		return writeAudit(ctx, tx, s.now(), typ, sessionID, meta)
	})
	if err != nil {
		log.Printf("[verify][audit] failed to record %s for session_id=%s: %v", typ, sessionID, err)
	}
}
