package models

import "time"

// Audit action tags
const (
	AuditSubmitted       = "SUBMITTED_FOR_APPROVAL"
	AuditApproved        = "APPROVED"
	AuditRejected        = "REJECTED"
	AuditVersionCreated  = "VERSION_CREATED"
	AuditVersionLocked   = "VERSION_LOCKED"
	AuditVersionRollback = "VERSION_ROLLBACK"
)

// AuditRecord is one append-only entry in the audit trail. Records are
// written outside the workflow transaction: a failed append never unwinds a
// committed transition, and a failed transition never produces a record.
type AuditRecord struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
