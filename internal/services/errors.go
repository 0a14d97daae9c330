package services

import (
	"errors"
	"fmt"
	"time"

	"intake/internal/storage"
)

// Kind classifies errors so the boundary layer can pick a response without
// knowing every sentinel.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindCollision
	KindRateLimited
	KindExpired
	KindAttemptsExhausted
	KindDependency
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCollision:
		return "collision"
	case KindRateLimited:
		return "rate_limited"
	case KindExpired:
		return "expired"
	case KindAttemptsExhausted:
		return "attempts_exhausted"
	case KindDependency:
		return "dependency"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

var (
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrInvalidCode         = errors.New("verification code is required")
	ErrMalformedIdentifier = errors.New("malformed session identifier")
	ErrInvalidDisplayName  = errors.New("invalid display name")
	ErrInvalidArtifact     = errors.New("invalid artifact name")
	ErrArtifactTooLarge    = errors.New("artifact too large")

	ErrIdentifierExists    = errors.New("session identifier already exists")
	ErrIdentifierExhausted = errors.New("could not allocate a unique session identifier")

	ErrCooldown           = errors.New("resend cooldown")
	ErrResendLimitReached = errors.New("resend limit reached")

	ErrCodeExpired       = errors.New("code expired")
	ErrAttemptsExhausted = errors.New("too many attempts")

	ErrDispatchFailed = errors.New("code dispatch failed")
	ErrDependency     = errors.New("dependency unavailable")

	ErrSessionNotFound          = errors.New("session not found")
	ErrNoVerificationInProgress = errors.New("no verification in progress")

	ErrAlreadyVerified   = errors.New("email already verified")
	ErrInvalidTransition = errors.New("invalid session state transition")
)

var errorKinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidEmail, KindValidation},
	{ErrInvalidCode, KindValidation},
	{ErrMalformedIdentifier, KindValidation},
	{ErrInvalidDisplayName, KindValidation},
	{ErrInvalidArtifact, KindValidation},
	{ErrArtifactTooLarge, KindValidation},
	{storage.ErrInvalidKey, KindValidation},
	{ErrIdentifierExists, KindCollision},
	{ErrIdentifierExhausted, KindCollision},
	{ErrCooldown, KindRateLimited},
	{ErrResendLimitReached, KindRateLimited},
	{ErrCodeExpired, KindExpired},
	{ErrAttemptsExhausted, KindAttemptsExhausted},
	{ErrDispatchFailed, KindDependency},
	{ErrDependency, KindDependency},
	{ErrSessionNotFound, KindNotFound},
	{ErrNoVerificationInProgress, KindNotFound},
	{ErrAlreadyVerified, KindConflict},
	{ErrInvalidTransition, KindConflict},
}

// KindOf returns the kind of the first known sentinel in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, ek := range errorKinds {
		if errors.Is(err, ek.err) {
			return ek.kind
		}
	}
	return KindInternal
}

// RateLimitError carries a retry-after hint for cooldown and quota rejections.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return e.Err }

func rateLimited(err error, retryAfter time.Duration) error {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &RateLimitError{Err: err, RetryAfter: retryAfter}
}

// RetryAfter extracts the hint from a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// dependency marks a store or collaborator failure; the cause stays in the chain.
func dependency(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindInternal {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDependency, err)
}
