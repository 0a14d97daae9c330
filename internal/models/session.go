package models

import "time"

// SessionState is the onboarding progress of an anonymous session.
type SessionState string

const (
	SessionPending        SessionState = "PENDING"
	SessionEmailCollected SessionState = "EMAIL_COLLECTED"
	SessionEmailVerified  SessionState = "EMAIL_VERIFIED"
	SessionComplete       SessionState = "COMPLETE"
	SessionReset          SessionState = "RESET"
)

// Session is the unit of tracked visitor progress.
// CompletedAt is set iff State == SessionComplete.
type Session struct {
	ID           string       `json:"id" db:"id"`
	DisplayName  string       `json:"display_name,omitempty" db:"display_name"`
	ContactEmail string       `json:"contact_email,omitempty" db:"contact_email"`
	State        SessionState `json:"state" db:"state"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
}

func (s *Session) IsComplete() bool {
	return s != nil && s.State == SessionComplete
}

// Abandonable reports whether a non-complete session has gone untouched for
// longer than threshold.
func (s *Session) Abandonable(now time.Time, threshold time.Duration) bool {
	if s == nil || s.IsComplete() {
		return false
	}
	return s.UpdatedAt.Before(now.Add(-threshold))
}
