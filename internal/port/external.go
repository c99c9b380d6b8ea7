package port

import (
	"context"
	"encoding/json"

	"github.com/garyjia/policy-approval/internal/models"
)

// Issue severities reported by validators
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationIssue is one finding from a validator
type ValidationIssue struct {
	Severity string `json:"severity"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

// ValidationResult is the single boolean-plus-issues outcome the engine
// consults. Any override policy lives inside the validator, never here.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues"`
}

// HasErrors reports whether any issue has error severity
func (r *ValidationResult) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// StructureValidator checks policy content before submission
type StructureValidator interface {
	ValidateStructure(ctx context.Context, content json.RawMessage) (*ValidationResult, error)
}

// TemplateValidator checks an approval chain before a template is persisted
type TemplateValidator interface {
	ValidateTemplate(ctx context.Context, levels []*models.TemplateLevel) (*ValidationResult, error)
}

// RoleDirectory resolves role membership. The roster is external,
// eventually-consistent state: callers must read it fresh at every parallel
// completion evaluation and never cache counts across calls.
type RoleDirectory interface {
	ActiveUserCount(ctx context.Context, role string) (int, error)
	UserHasRole(ctx context.Context, userID, role string) (bool, error)
}

// VersionControl is the slice of the version facade the workflow engine
// depends on. These entry points do not append audit records; the engine
// audits the enclosing transition itself.
type VersionControl interface {
	// SnapshotForSubmission freezes the current content into a new version
	// inside the caller's transaction.
	SnapshotForSubmission(ctx context.Context, policy *models.Policy, userID, note string) (*models.PolicyVersion, error)
	// LockCurrentApproved locks the policy's latest version on final approval.
	LockCurrentApproved(ctx context.Context, policyID int64, userID string) (*models.PolicyVersion, error)
}

// AuditTrail accepts state-transition records. Append must never fail the
// caller; delivery is best-effort with local error logging.
type AuditTrail interface {
	Append(record *models.AuditRecord)
}
