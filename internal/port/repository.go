package port

import (
	"context"
	"encoding/json"
	"time"

	"github.com/garyjia/policy-approval/internal/models"
)

// PolicyRepository defines persistence operations for Policy. GetByID
// returns a detached row; storage changes only through the mutating methods,
// never through the returned struct.
type PolicyRepository interface {
	Create(ctx context.Context, policy *models.Policy) error
	GetByID(ctx context.Context, id int64) (*models.Policy, error)
	List(ctx context.Context, limit, offset int) ([]*models.Policy, error)
	// UpdateStatusLock sets status and the edit lock together; the two always
	// move as a unit during workflow transitions.
	UpdateStatusLock(ctx context.Context, id int64, status string, locked bool) error
	IncrementVersion(ctx context.Context, id int64) error
}

// TemplateRepository defines persistence operations for ApprovalTemplate
type TemplateRepository interface {
	// Create persists the template and its levels
	Create(ctx context.Context, template *models.ApprovalTemplate) error
	// GetByID returns the template with levels ordered by level number
	GetByID(ctx context.Context, id int64) (*models.ApprovalTemplate, error)
	List(ctx context.Context, activeOnly bool) ([]*models.ApprovalTemplate, error)
	// Deactivate soft-deletes a template; historical instances keep referencing it
	Deactivate(ctx context.Context, id int64) error
}

// InstanceRepository defines persistence operations for WorkflowInstance
type InstanceRepository interface {
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id int64) (*models.WorkflowInstance, error)
	GetLatestByPolicyID(ctx context.Context, policyID int64) (*models.WorkflowInstance, error)
	ListInProgress(ctx context.Context) ([]*models.WorkflowInstance, error)
	UpdateLevel(ctx context.Context, id int64, level int) error
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// ActionRepository defines persistence operations for WorkflowAction.
// Actions are append-only; there are no update or delete operations.
type ActionRepository interface {
	Create(ctx context.Context, action *models.WorkflowAction) error
	ListByInstanceID(ctx context.Context, instanceID int64) ([]*models.WorkflowAction, error)
	// CountDistinctApprovers counts distinct users with an approve action at
	// the given level. Duplicate approvals from one user count once.
	CountDistinctApprovers(ctx context.Context, instanceID int64, level int) (int, error)
}

// VersionRepository defines persistence operations for PolicyVersion
type VersionRepository interface {
	Create(ctx context.Context, version *models.PolicyVersion) error
	GetByPolicyAndNumber(ctx context.Context, policyID int64, versionNumber int) (*models.PolicyVersion, error)
	GetLatestByPolicyID(ctx context.Context, policyID int64) (*models.PolicyVersion, error)
	ListByPolicyID(ctx context.Context, policyID int64) ([]*models.PolicyVersion, error)
	// Lock sets is_locked and approval metadata. Never reversed.
	Lock(ctx context.Context, id int64, approvedBy string, approvedAt time.Time) error
}

// DocumentRepository defines persistence for policy content: one mutable
// live document per policy plus immutable snapshot copies.
type DocumentRepository interface {
	CreateLive(ctx context.Context, policyID int64, structure json.RawMessage, version int) error
	GetLive(ctx context.Context, policyID int64) (*models.PolicyDocument, error)
	ReplaceLive(ctx context.Context, policyID int64, structure json.RawMessage, version int) error
	// CreateSnapshot copies content into a new immutable snapshot row and
	// returns its id. Snapshot rows are never updated.
	CreateSnapshot(ctx context.Context, policyID int64, version int, structure json.RawMessage) (int64, error)
	GetSnapshotByID(ctx context.Context, id int64) (*models.PolicyDocument, error)
}

// AuditRepository defines persistence operations for AuditRecord
type AuditRepository interface {
	Append(ctx context.Context, record *models.AuditRecord) error
	List(ctx context.Context, limit, offset int) ([]*models.AuditRecord, error)
	ListByEntity(ctx context.Context, entityType string, entityID int64, limit int) ([]*models.AuditRecord, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
