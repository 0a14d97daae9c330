package models

import "time"

type AuditEventType string

const (
	EventIdentifierGenerated AuditEventType = "identifier_generated"
	EventIdentifierCollision AuditEventType = "identifier_collision"
	EventIdentifierExhausted AuditEventType = "identifier_exhausted"
	EventVerificationRequest AuditEventType = "verification_requested"
	EventVerificationResent  AuditEventType = "verification_resent"
	EventDispatchFailed      AuditEventType = "verification_dispatch_failed"
	EventVerificationSuccess AuditEventType = "verification_succeeded"
	EventVerificationFailed  AuditEventType = "verification_failed"
	EventVerificationExpired AuditEventType = "verification_expired"
	EventVerificationExhaust AuditEventType = "verification_exhausted"
	EventSessionProfile      AuditEventType = "session_profile_updated"
	EventSessionCompleted    AuditEventType = "session_completed"
	EventArtifactUploaded    AuditEventType = "artifact_uploaded"
	EventOrphanDeleted       AuditEventType = "orphan_deleted"
	EventOrphanDeleteFailed  AuditEventType = "orphan_delete_failed"
)

// AuditEvent is an append-only log entry keyed by session identifier.
type AuditEvent struct {
	ID        int64          `json:"id" db:"id"`
	Timestamp time.Time      `json:"timestamp" db:"timestamp"`
	EventType AuditEventType `json:"event_type" db:"event_type"`
	SessionID string         `json:"session_id" db:"session_id"`
	Metadata  map[string]any `json:"metadata,omitempty" db:"-"`
}
