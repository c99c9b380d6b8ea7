package models

import "time"

// Policy status values
const (
	PolicyStatusDraft            = "draft"
	PolicyStatusPendingApproval  = "pending_approval"
	PolicyStatusApproved         = "approved"
	PolicyStatusRejected         = "rejected"
	PolicyStatusValidationFailed = "validation_failed"
	PolicyStatusArchived         = "archived"
)

// Policy is the governed document entity. The workflow engine references it
// and flips status/lock; content lives in the policy_documents store and is
// opaque to the engine.
type Policy struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	CreatedBy      string    `json:"created_by"`
	CurrentVersion int       `json:"current_version"`
	Status         string    `json:"status"`
	IsLocked       bool      `json:"is_locked"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Submittable reports whether the policy may enter a new approval run
func (p *Policy) Submittable() bool {
	return p.Status == PolicyStatusDraft || p.Status == PolicyStatusRejected
}
