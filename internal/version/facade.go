package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/policy-approval/internal/models"
	"github.com/garyjia/policy-approval/internal/port"
	"go.uber.org/zap"
)

// Business errors returned by the facade
var (
	ErrPolicyNotFound  = errors.New("policy not found")
	ErrVersionNotFound = errors.New("policy version not found")

	// ErrAlreadyLocked means the target version is locked. Locking is
	// monotone, so a second explicit lock is a caller mistake.
	ErrAlreadyLocked = errors.New("version is already locked")

	// ErrCurrentVersionLocked means the policy's newest version is locked,
	// freezing the live document; no new version can be written.
	ErrCurrentVersionLocked = errors.New("current version is locked")

	// ErrSourceSnapshotMissing means the rollback target has no snapshot to
	// restore from.
	ErrSourceSnapshotMissing = errors.New("source version has no snapshot")
)

// Facade owns policy versioning: immutable snapshots, monotone locking and
// rollback. The workflow engine uses the non-auditing entry points through
// port.VersionControl; direct calls audit their own transition.
type Facade struct {
	tx        port.TransactionManager
	policies  port.PolicyRepository
	versions  port.VersionRepository
	documents port.DocumentRepository
	audit     port.AuditTrail
	logger    *zap.Logger
}

// NewFacade creates a version facade
func NewFacade(
	tx port.TransactionManager,
	policies port.PolicyRepository,
	versions port.VersionRepository,
	documents port.DocumentRepository,
	audit port.AuditTrail,
	logger *zap.Logger,
) *Facade {
	return &Facade{
		tx:        tx,
		policies:  policies,
		versions:  versions,
		documents: documents,
		audit:     audit,
		logger:    logger,
	}
}

// VersionDetail pairs a version record with its frozen content
type VersionDetail struct {
	Version *models.PolicyVersion `json:"version"`
	Content json.RawMessage       `json:"content,omitempty"`
}

// SnapshotForSubmission freezes the live document into a new version inside
// the caller's transaction. No audit record is appended; the caller audits
// the enclosing transition.
func (f *Facade) SnapshotForSubmission(ctx context.Context, policy *models.Policy, userID, note string) (*models.PolicyVersion, error) {
	return f.snapshot(ctx, policy, userID, note)
}

// CreateSnapshot freezes the live document into a new version in its own
// transaction and audits the creation.
func (f *Facade) CreateSnapshot(ctx context.Context, policyID int64, userID, note string) (*models.PolicyVersion, error) {
	policy, err := f.policies.GetByID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}

	var created *models.PolicyVersion
	err = f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		created, err = f.snapshot(txCtx, policy, userID, note)
		return err
	})
	if err != nil {
		return nil, err
	}

	f.audit.Append(&models.AuditRecord{
		UserID:     userID,
		Action:     models.AuditVersionCreated,
		EntityType: "policy",
		EntityID:   policyID,
		Details:    fmt.Sprintf("version=%d", created.VersionNumber),
	})
	return created, nil
}

// snapshot is the shared core. The policy's version counter always points at
// the next unwritten slot; the counter is advanced in the same transaction
// that fills it, so version numbers are dense and never reused.
func (f *Facade) snapshot(ctx context.Context, policy *models.Policy, userID, note string) (*models.PolicyVersion, error) {
	if err := f.checkHeadUnlocked(ctx, policy.ID); err != nil {
		return nil, err
	}

	doc, err := f.documents.GetLive(ctx, policy.ID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("policy %d has no live document", policy.ID)
	}

	snapshotID, err := f.documents.CreateSnapshot(ctx, policy.ID, policy.CurrentVersion, doc.Structure)
	if err != nil {
		return nil, err
	}

	version := &models.PolicyVersion{
		PolicyID:      policy.ID,
		VersionNumber: policy.CurrentVersion,
		SnapshotID:    &snapshotID,
		ChangeSummary: note,
		CreatedBy:     userID,
	}
	if err := f.versions.Create(ctx, version); err != nil {
		return nil, err
	}

	// IncrementVersion advances the stored counter; the caller's detached
	// row is kept in step so a later snapshot in the same flow sees the
	// next slot.
	if err := f.policies.IncrementVersion(ctx, policy.ID); err != nil {
		return nil, err
	}
	policy.CurrentVersion++

	f.logger.Info("Version snapshot created",
		zap.Int64("policy_id", policy.ID),
		zap.Int("version", version.VersionNumber))
	return version, nil
}

// LockCurrentApproved locks the policy's latest version on final approval.
// Called inside the engine's transaction; locking an already locked version
// is a no-op so replayed final approvals stay idempotent.
func (f *Facade) LockCurrentApproved(ctx context.Context, policyID int64, userID string) (*models.PolicyVersion, error) {
	latest, err := f.versions.GetLatestByPolicyID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, ErrVersionNotFound
	}
	if latest.IsLocked {
		return latest, nil
	}
	return f.lock(ctx, latest, userID)
}

// Lock explicitly locks one version and audits the transition
func (f *Facade) Lock(ctx context.Context, policyID int64, versionNumber int, userID string) (*models.PolicyVersion, error) {
	target, err := f.versions.GetByPolicyAndNumber(ctx, policyID, versionNumber)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrVersionNotFound
	}
	if target.IsLocked {
		return nil, ErrAlreadyLocked
	}

	locked, err := f.lock(ctx, target, userID)
	if err != nil {
		return nil, err
	}

	f.audit.Append(&models.AuditRecord{
		UserID:     userID,
		Action:     models.AuditVersionLocked,
		EntityType: "policy",
		EntityID:   policyID,
		Details:    fmt.Sprintf("version=%d", versionNumber),
	})
	return locked, nil
}

func (f *Facade) lock(ctx context.Context, version *models.PolicyVersion, userID string) (*models.PolicyVersion, error) {
	now := time.Now().UTC()
	if err := f.versions.Lock(ctx, version.ID, userID, now); err != nil {
		return nil, err
	}
	version.IsLocked = true
	version.ApprovedBy = userID
	version.ApprovedAt = &now

	f.logger.Info("Version locked",
		zap.Int64("policy_id", version.PolicyID),
		zap.Int("version", version.VersionNumber),
		zap.String("approved_by", userID))
	return version, nil
}

// Rollback restores the live document from an earlier version's snapshot and
// records the restore as a new version. The new version references the same
// snapshot row as the source; snapshot content is never copied or mutated.
func (f *Facade) Rollback(ctx context.Context, policyID int64, targetVersion int, userID string) (*models.PolicyVersion, error) {
	policy, err := f.policies.GetByID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}
	if err := f.checkHeadUnlocked(ctx, policyID); err != nil {
		return nil, err
	}

	source, err := f.versions.GetByPolicyAndNumber(ctx, policyID, targetVersion)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, ErrVersionNotFound
	}
	if source.SnapshotID == nil {
		return nil, ErrSourceSnapshotMissing
	}
	snapshot, err := f.documents.GetSnapshotByID(ctx, *source.SnapshotID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, ErrSourceSnapshotMissing
	}

	restored := &models.PolicyVersion{
		PolicyID:      policyID,
		VersionNumber: policy.CurrentVersion,
		SnapshotID:    source.SnapshotID,
		ChangeSummary: fmt.Sprintf("Rollback to v%d", targetVersion),
		CreatedBy:     userID,
	}
	err = f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := f.documents.ReplaceLive(txCtx, policyID, snapshot.Structure, policy.CurrentVersion); err != nil {
			return err
		}
		if err := f.versions.Create(txCtx, restored); err != nil {
			return err
		}
		return f.policies.IncrementVersion(txCtx, policyID)
	})
	if err != nil {
		return nil, err
	}

	f.audit.Append(&models.AuditRecord{
		UserID:     userID,
		Action:     models.AuditVersionRollback,
		EntityType: "policy",
		EntityID:   policyID,
		Details:    fmt.Sprintf("from=%d to=%d", targetVersion, restored.VersionNumber),
	})

	f.logger.Info("Policy rolled back",
		zap.Int64("policy_id", policyID),
		zap.Int("target_version", targetVersion),
		zap.Int("new_version", restored.VersionNumber))
	return restored, nil
}

// List returns all versions of a policy, newest first
func (f *Facade) List(ctx context.Context, policyID int64) ([]*models.PolicyVersion, error) {
	policy, err := f.policies.GetByID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}
	return f.versions.ListByPolicyID(ctx, policyID)
}

// GetDetail returns one version together with its frozen content
func (f *Facade) GetDetail(ctx context.Context, policyID int64, versionNumber int) (*VersionDetail, error) {
	target, err := f.versions.GetByPolicyAndNumber(ctx, policyID, versionNumber)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrVersionNotFound
	}

	detail := &VersionDetail{Version: target}
	if target.SnapshotID != nil {
		snapshot, err := f.documents.GetSnapshotByID(ctx, *target.SnapshotID)
		if err != nil {
			return nil, err
		}
		if snapshot != nil {
			detail.Content = snapshot.Structure
		}
	}
	return detail, nil
}

// Compare diffs the frozen content of two versions of the same policy
func (f *Facade) Compare(ctx context.Context, policyID int64, baseVersion, compareVersion int) (*DiffResult, error) {
	base, err := f.GetDetail(ctx, policyID, baseVersion)
	if err != nil {
		return nil, err
	}
	compare, err := f.GetDetail(ctx, policyID, compareVersion)
	if err != nil {
		return nil, err
	}
	if base.Content == nil || compare.Content == nil {
		return nil, ErrSourceSnapshotMissing
	}
	return Diff(base.Content, compare.Content, baseVersion, compareVersion)
}

// checkHeadUnlocked refuses new versions while the policy's newest version
// is locked. The lock is never removed, so a frozen policy needs a fresh
// draft cycle, not another write through this facade.
func (f *Facade) checkHeadUnlocked(ctx context.Context, policyID int64) error {
	head, err := f.versions.GetLatestByPolicyID(ctx, policyID)
	if err != nil {
		return err
	}
	if head != nil && head.IsLocked {
		return ErrCurrentVersionLocked
	}
	return nil
}

// Verify interface compliance with the engine's slice of the facade
var _ port.VersionControl = (*Facade)(nil)
