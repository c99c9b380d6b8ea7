package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/policy-approval/internal/models"
	"github.com/garyjia/policy-approval/internal/port"
	"go.uber.org/zap"
)

// Deps bundles everything the engine needs. Wiring happens in main.
type Deps struct {
	Tx        port.TransactionManager
	Policies  port.PolicyRepository
	Templates port.TemplateRepository
	Instances port.InstanceRepository
	Actions   port.ActionRepository
	Documents port.DocumentRepository
	Versions  port.VersionControl
	Structure port.StructureValidator
	Roles     port.RoleDirectory
	Audit     port.AuditTrail
}

// Engine runs the maker-checker approval workflow. Each state transition is
// applied in one transaction and produces exactly one audit record after the
// transaction commits.
type Engine struct {
	deps      Deps
	adminRole string
	locks     *lockRegistry
	logger    *zap.Logger
}

// NewEngine creates a workflow engine. adminRole holders may approve at any
// level regardless of the level's bound role.
func NewEngine(deps Deps, adminRole string, logger *zap.Logger) *Engine {
	return &Engine{
		deps:      deps,
		adminRole: adminRole,
		locks:     newLockRegistry(),
		logger:    logger,
	}
}

// Submit starts an approval run for a policy against a template. On success
// the policy is locked for editing, its current content is frozen into a new
// version, and an in-progress instance at level 1 is returned.
func (e *Engine) Submit(ctx context.Context, policyID, templateID int64, userID string) (*models.WorkflowInstance, error) {
	policy, err := e.deps.Policies.GetByID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}

	if err := e.checkStructure(ctx, policy); err != nil {
		return nil, err
	}

	if !policy.Submittable() {
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidPolicyState, policy.Status)
	}
	if policy.IsLocked {
		return nil, ErrPolicyLocked
	}

	template, err := e.deps.Templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if template == nil || !template.IsActive {
		return nil, ErrTemplateNotFound
	}
	if len(template.Levels) == 0 {
		return nil, ErrEmptyTemplate
	}

	instance := &models.WorkflowInstance{
		PolicyID:     policyID,
		TemplateID:   templateID,
		CurrentLevel: 1,
		Status:       models.InstanceStatusInProgress,
		SubmittedBy:  userID,
	}

	var version *models.PolicyVersion
	err = e.deps.Tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.deps.Policies.UpdateStatusLock(txCtx, policyID, models.PolicyStatusPendingApproval, true); err != nil {
			return err
		}
		if err := e.deps.Instances.Create(txCtx, instance); err != nil {
			return err
		}
		version, err = e.deps.Versions.SnapshotForSubmission(txCtx, policy, userID, "Submitted for approval")
		return err
	})
	if err != nil {
		return nil, err
	}

	e.deps.Audit.Append(&models.AuditRecord{
		UserID:     userID,
		Action:     models.AuditSubmitted,
		EntityType: "policy",
		EntityID:   policyID,
		Details: fmt.Sprintf("instance=%d template=%d version=%d",
			instance.ID, templateID, version.VersionNumber),
	})

	e.logger.Info("Policy submitted for approval",
		zap.Int64("policy_id", policyID),
		zap.Int64("instance_id", instance.ID),
		zap.String("submitted_by", userID))
	return instance, nil
}

// Approve records one approval decision. A sequential level completes
// immediately; a parallel level completes once distinct approvers reach the
// role's active headcount, read fresh on every call. Completing the final
// level approves the policy and locks the submitted version.
func (e *Engine) Approve(ctx context.Context, instanceID int64, userID, comment string) (*models.WorkflowInstance, error) {
	release := e.locks.acquire(instanceID)
	defer release()

	instance, err := e.deps.Instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, ErrInstanceNotFound
	}
	if instance.IsTerminal() {
		return nil, ErrWorkflowNotActive
	}
	if userID == instance.SubmittedBy {
		return nil, ErrSelfApprovalForbidden
	}

	policy, err := e.deps.Policies.GetByID(ctx, instance.PolicyID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}

	template, err := e.deps.Templates.GetByID(ctx, instance.TemplateID)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, ErrTemplateNotFound
	}
	level := template.Level(instance.CurrentLevel)
	if level == nil {
		return nil, fmt.Errorf("template %d has no level %d", template.ID, instance.CurrentLevel)
	}

	if err := e.checkApprover(ctx, userID, level.Role); err != nil {
		return nil, err
	}

	// Parallel levels track the live roster: headcount is re-read on every
	// decision and never cached. An empty roster still requires one approval.
	required := 1
	if level.IsParallel {
		count, err := e.deps.Roles.ActiveUserCount(ctx, level.Role)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve active approvers for role %s: %w", level.Role, err)
		}
		if count > 1 {
			required = count
		}
	}

	var levelComplete, finalApproval bool
	err = e.deps.Tx.WithTransaction(ctx, func(txCtx context.Context) error {
		action := &models.WorkflowAction{
			InstanceID:  instanceID,
			UserID:      userID,
			LevelNumber: instance.CurrentLevel,
			Action:      models.ActionApprove,
			Comment:     comment,
		}
		if err := e.deps.Actions.Create(txCtx, action); err != nil {
			return err
		}

		if level.IsParallel {
			approvers, err := e.deps.Actions.CountDistinctApprovers(txCtx, instanceID, instance.CurrentLevel)
			if err != nil {
				return err
			}
			levelComplete = approvers >= required
		} else {
			levelComplete = true
		}
		if !levelComplete {
			return nil
		}

		if instance.CurrentLevel < template.MaxLevel() {
			instance.CurrentLevel++
			return e.deps.Instances.UpdateLevel(txCtx, instanceID, instance.CurrentLevel)
		}

		finalApproval = true
		instance.Status = models.InstanceStatusApproved
		if err := e.deps.Instances.UpdateStatus(txCtx, instanceID, models.InstanceStatusApproved); err != nil {
			return err
		}
		if err := e.deps.Policies.UpdateStatusLock(txCtx, policy.ID, models.PolicyStatusApproved, true); err != nil {
			return err
		}
		_, err := e.deps.Versions.LockCurrentApproved(txCtx, policy.ID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	details := fmt.Sprintf("instance=%d level=%d", instanceID, level.LevelNumber)
	if finalApproval {
		details += " final=true"
	}
	e.deps.Audit.Append(&models.AuditRecord{
		UserID:     userID,
		Action:     models.AuditApproved,
		EntityType: "policy",
		EntityID:   policy.ID,
		Details:    details,
	})

	e.logger.Info("Approval recorded",
		zap.Int64("instance_id", instanceID),
		zap.String("user_id", userID),
		zap.Int("level", level.LevelNumber),
		zap.Bool("level_complete", levelComplete),
		zap.Bool("final", finalApproval))
	return instance, nil
}

// Reject terminates the approval run. Any user may reject; the decision is
// recorded at the instance's current level and the policy is unlocked for
// rework.
func (e *Engine) Reject(ctx context.Context, instanceID int64, userID, comment string) (*models.WorkflowInstance, error) {
	release := e.locks.acquire(instanceID)
	defer release()

	instance, err := e.deps.Instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, ErrInstanceNotFound
	}
	if instance.IsTerminal() {
		return nil, ErrWorkflowNotActive
	}

	policy, err := e.deps.Policies.GetByID(ctx, instance.PolicyID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}

	err = e.deps.Tx.WithTransaction(ctx, func(txCtx context.Context) error {
		action := &models.WorkflowAction{
			InstanceID:  instanceID,
			UserID:      userID,
			LevelNumber: instance.CurrentLevel,
			Action:      models.ActionReject,
			Comment:     comment,
		}
		if err := e.deps.Actions.Create(txCtx, action); err != nil {
			return err
		}
		instance.Status = models.InstanceStatusRejected
		if err := e.deps.Instances.UpdateStatus(txCtx, instanceID, models.InstanceStatusRejected); err != nil {
			return err
		}
		return e.deps.Policies.UpdateStatusLock(txCtx, policy.ID, models.PolicyStatusRejected, false)
	})
	if err != nil {
		return nil, err
	}

	e.deps.Audit.Append(&models.AuditRecord{
		UserID:     userID,
		Action:     models.AuditRejected,
		EntityType: "policy",
		EntityID:   policy.ID,
		Details:    fmt.Sprintf("instance=%d level=%d", instanceID, instance.CurrentLevel),
	})

	e.logger.Info("Submission rejected",
		zap.Int64("instance_id", instanceID),
		zap.String("user_id", userID),
		zap.Int("level", instance.CurrentLevel))
	return instance, nil
}

// GetInstanceStatus returns the instance with its full action history
func (e *Engine) GetInstanceStatus(ctx context.Context, instanceID int64) (*models.WorkflowInstance, error) {
	instance, err := e.deps.Instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, ErrInstanceNotFound
	}

	actions, err := e.deps.Actions.ListByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	instance.Actions = actions
	return instance, nil
}

// GetPolicyStatus returns the most recent approval run for a policy with
// its full action history
func (e *Engine) GetPolicyStatus(ctx context.Context, policyID int64) (*models.WorkflowInstance, error) {
	policy, err := e.deps.Policies.GetByID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}

	instance, err := e.deps.Instances.GetLatestByPolicyID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, ErrInstanceNotFound
	}
	return e.GetInstanceStatus(ctx, instance.ID)
}

// GetQueue returns all in-progress instances
func (e *Engine) GetQueue(ctx context.Context) ([]*models.WorkflowInstance, error) {
	return e.deps.Instances.ListInProgress(ctx)
}

// checkStructure gates submission on validated content. Validator failures
// surface as errors; submittable content that fails validation flips the
// policy to validation_failed.
func (e *Engine) checkStructure(ctx context.Context, policy *models.Policy) error {
	doc, err := e.deps.Documents.GetLive(ctx, policy.ID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrMissingValidatedStructure
	}

	result, err := e.deps.Structure.ValidateStructure(ctx, doc.Structure)
	if err != nil {
		return fmt.Errorf("structure validation unavailable: %w", err)
	}
	if !result.Valid || result.HasErrors() {
		// A policy locked by an in-progress run keeps its status and lock;
		// the submit fails on its own without touching the active run.
		if !policy.IsLocked && policy.Submittable() {
			if err := e.deps.Policies.UpdateStatusLock(ctx, policy.ID, models.PolicyStatusValidationFailed, false); err != nil {
				e.logger.Error("Failed to flag validation failure",
					zap.Int64("policy_id", policy.ID), zap.Error(err))
			}
		}
		return ErrMissingValidatedStructure
	}
	return nil
}

// checkApprover verifies the user holds the level's role or the admin role
func (e *Engine) checkApprover(ctx context.Context, userID, role string) error {
	ok, err := e.deps.Roles.UserHasRole(ctx, userID, role)
	if err != nil {
		return fmt.Errorf("failed to resolve role for user %s: %w", userID, err)
	}
	if ok {
		return nil
	}

	admin, err := e.deps.Roles.UserHasRole(ctx, userID, e.adminRole)
	if err != nil {
		return fmt.Errorf("failed to resolve role for user %s: %w", userID, err)
	}
	if admin {
		return nil
	}
	return fmt.Errorf("%w: %s requires %s", ErrUnauthorizedApprover, userID, role)
}
