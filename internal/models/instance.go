package models

import "time"

// Workflow instance status values. in_progress is the only non-terminal state.
const (
	InstanceStatusInProgress = "in_progress"
	InstanceStatusApproved   = "approved"
	InstanceStatusRejected   = "rejected"
)

// Action kinds recorded against a workflow instance
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// WorkflowInstance is one approval run for one policy against a template.
// At most one instance per policy is in progress at a time; the policy's
// is_locked flag enforces this.
type WorkflowInstance struct {
	ID           int64             `json:"id"`
	PolicyID     int64             `json:"policy_id"`
	TemplateID   int64             `json:"template_id"`
	CurrentLevel int               `json:"current_level"`
	Status       string            `json:"status"`
	SubmittedBy  string            `json:"submitted_by"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Actions      []*WorkflowAction `json:"actions,omitempty"`
}

// IsTerminal reports whether the instance has reached a final state
func (i *WorkflowInstance) IsTerminal() bool {
	return i.Status != InstanceStatusInProgress
}

// WorkflowAction is an immutable record of one approve/reject decision.
// LevelNumber is the level that was active when the action was taken.
// Actions are append-only; they are never mutated or deleted.
type WorkflowAction struct {
	ID          int64     `json:"id"`
	InstanceID  int64     `json:"instance_id"`
	UserID      string    `json:"user_id"`
	LevelNumber int       `json:"level_number"`
	Action      string    `json:"action"`
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
