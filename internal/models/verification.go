package models

import "time"

// VerificationRecord is one email-ownership proof attempt for a session.
// Every dispatch creates a new row; the previous row is superseded, not deleted.
// We only keep a bcrypt hash of the code (CodeHash).
type VerificationRecord struct {
	ID           int64      `json:"id" db:"id"`
	SessionID    string     `json:"session_id" db:"session_id"`
	EmailDigest  string     `json:"-" db:"email_digest"`
	EmailPlain   string     `json:"-" db:"email_plain"`
	CodeHash     string     `json:"-" db:"code_hash"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at" db:"expires_at"`
	AttemptCount int        `json:"attempt_count" db:"attempt_count"`
	MaxAttempts  int        `json:"max_attempts" db:"max_attempts"`
	ResendCount  int        `json:"resend_count" db:"resend_count"`
	MaxResends   int        `json:"max_resends" db:"max_resends"`
	LastResendAt time.Time  `json:"last_resend_at" db:"last_resend_at"`
	Verified     bool       `json:"verified" db:"verified"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	ExpiredAt    *time.Time `json:"expired_at,omitempty" db:"expired_at"`
	FailedAt     *time.Time `json:"failed_at,omitempty" db:"failed_at"`
	SupersededAt *time.Time `json:"superseded_at,omitempty" db:"superseded_at"`
}

func (v *VerificationRecord) IsExpired(now time.Time) bool {
	return v.ExpiredAt != nil || now.After(v.ExpiresAt)
}

func (v *VerificationRecord) IsExhausted() bool {
	return v.FailedAt != nil || v.AttemptCount >= v.MaxAttempts
}

// IsLive reports whether the code can still be submitted.
func (v *VerificationRecord) IsLive(now time.Time) bool {
	return !v.Verified && !v.IsExhausted() && !v.IsExpired(now) && v.SupersededAt == nil
}

func (v *VerificationRecord) AttemptsRemaining() int {
	if r := v.MaxAttempts - v.AttemptCount; r > 0 {
		return r
	}
	return 0
}

// Scrub drops the plaintext address once it is no longer needed.
func (v *VerificationRecord) Scrub() {
	v.EmailPlain = ""
}
