package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/policy-approval/internal/models"
	"github.com/garyjia/policy-approval/internal/port"
	"github.com/garyjia/policy-approval/pkg/database"
	"go.uber.org/zap"
)

// VersionRepository implements port.VersionRepository
type VersionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(db *sql.DB, logger *zap.Logger) port.VersionRepository {
	return &VersionRepository{db: db, logger: logger}
}

const versionColumns = `id, policy_id, version_number, snapshot_id, change_summary, created_by, is_locked, approved_at, approved_by, created_at`

// Create persists a new version row
func (r *VersionRepository) Create(ctx context.Context, version *models.PolicyVersion) error {
	query := `
		INSERT INTO policy_versions (policy_id, version_number, snapshot_id, change_summary, created_by, is_locked)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		version.PolicyID,
		version.VersionNumber,
		version.SnapshotID,
		version.ChangeSummary,
		version.CreatedBy,
		version.IsLocked,
	)
	if err != nil {
		r.logger.Error("Failed to create policy version",
			zap.Int64("policy_id", version.PolicyID),
			zap.Int("version", version.VersionNumber), zap.Error(err))
		return fmt.Errorf("failed to create policy version: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	version.ID = id
	return nil
}

// GetByPolicyAndNumber retrieves one version by its number, or nil
func (r *VersionRepository) GetByPolicyAndNumber(ctx context.Context, policyID int64, versionNumber int) (*models.PolicyVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM policy_versions WHERE policy_id = ? AND version_number = ?`

	version, err := r.scanOne(database.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, policyID, versionNumber))
	if err != nil {
		r.logger.Error("Failed to get policy version",
			zap.Int64("policy_id", policyID), zap.Int("version", versionNumber), zap.Error(err))
		return nil, err
	}
	return version, nil
}

// GetLatestByPolicyID retrieves the highest-numbered version for a policy, or nil
func (r *VersionRepository) GetLatestByPolicyID(ctx context.Context, policyID int64) (*models.PolicyVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM policy_versions
		WHERE policy_id = ?
		ORDER BY version_number DESC
		LIMIT 1
	`

	version, err := r.scanOne(database.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, policyID))
	if err != nil {
		r.logger.Error("Failed to get latest policy version",
			zap.Int64("policy_id", policyID), zap.Error(err))
		return nil, err
	}
	return version, nil
}

// ListByPolicyID retrieves all versions for a policy, newest first
func (r *VersionRepository) ListByPolicyID(ctx context.Context, policyID int64) ([]*models.PolicyVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM policy_versions
		WHERE policy_id = ?
		ORDER BY version_number DESC
	`

	rows, err := database.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, policyID)
	if err != nil {
		r.logger.Error("Failed to list policy versions",
			zap.Int64("policy_id", policyID), zap.Error(err))
		return nil, fmt.Errorf("failed to list policy versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.PolicyVersion
	for rows.Next() {
		var version models.PolicyVersion
		err := rows.Scan(
			&version.ID,
			&version.PolicyID,
			&version.VersionNumber,
			&version.SnapshotID,
			&version.ChangeSummary,
			&version.CreatedBy,
			&version.IsLocked,
			&version.ApprovedAt,
			&version.ApprovedBy,
			&version.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy version: %w", err)
		}
		versions = append(versions, &version)
	}
	return versions, rows.Err()
}

// Lock marks a version locked with approval metadata
func (r *VersionRepository) Lock(ctx context.Context, id int64, approvedBy string, approvedAt time.Time) error {
	query := `UPDATE policy_versions SET is_locked = 1, approved_by = ?, approved_at = ? WHERE id = ?`

	_, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, approvedBy, approvedAt, id)
	if err != nil {
		r.logger.Error("Failed to lock policy version", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to lock policy version: %w", err)
	}
	return nil
}

// scanOne scans a single version row, mapping no-rows to nil
func (r *VersionRepository) scanOne(row *sql.Row) (*models.PolicyVersion, error) {
	var version models.PolicyVersion
	err := row.Scan(
		&version.ID,
		&version.PolicyID,
		&version.VersionNumber,
		&version.SnapshotID,
		&version.ChangeSummary,
		&version.CreatedBy,
		&version.IsLocked,
		&version.ApprovedAt,
		&version.ApprovedBy,
		&version.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy version: %w", err)
	}
	return &version, nil
}

// Verify interface compliance
var _ port.VersionRepository = (*VersionRepository)(nil)
