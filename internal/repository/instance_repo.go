package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/policy-approval/internal/models"
	"github.com/garyjia/policy-approval/internal/port"
	"github.com/garyjia/policy-approval/pkg/database"
	"go.uber.org/zap"
)

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceColumns = `id, policy_id, template_id, current_level, status, submitted_by, created_at, updated_at`

// Create creates a new workflow instance
func (r *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	query := `
		INSERT INTO workflow_instances (policy_id, template_id, current_level, status, submitted_by)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		instance.PolicyID,
		instance.TemplateID,
		instance.CurrentLevel,
		instance.Status,
		instance.SubmittedBy,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow instance",
			zap.Int64("policy_id", instance.PolicyID), zap.Error(err))
		return fmt.Errorf("failed to create workflow instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	instance.ID = id
	return nil
}

// GetByID retrieves a workflow instance by ID, or nil when it does not exist
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = ?`

	instance, err := r.scanOne(database.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		r.logger.Error("Failed to get workflow instance", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	return instance, nil
}

// GetLatestByPolicyID retrieves the most recent instance for a policy
func (r *InstanceRepository) GetLatestByPolicyID(ctx context.Context, policyID int64) (*models.WorkflowInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE policy_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	instance, err := r.scanOne(database.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, policyID))
	if err != nil {
		r.logger.Error("Failed to get latest instance", zap.Int64("policy_id", policyID), zap.Error(err))
		return nil, err
	}
	return instance, nil
}

// ListInProgress retrieves all in-progress instances, newest first
func (r *InstanceRepository) ListInProgress(ctx context.Context) ([]*models.WorkflowInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE status = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := database.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, models.InstanceStatusInProgress)
	if err != nil {
		r.logger.Error("Failed to list in-progress instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list in-progress instances: %w", err)
	}
	defer rows.Close()

	var instances []*models.WorkflowInstance
	for rows.Next() {
		var instance models.WorkflowInstance
		err := rows.Scan(
			&instance.ID,
			&instance.PolicyID,
			&instance.TemplateID,
			&instance.CurrentLevel,
			&instance.Status,
			&instance.SubmittedBy,
			&instance.CreatedAt,
			&instance.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
		}
		instances = append(instances, &instance)
	}
	return instances, rows.Err()
}

// UpdateLevel advances the instance's current level
func (r *InstanceRepository) UpdateLevel(ctx context.Context, id int64, level int) error {
	query := `UPDATE workflow_instances SET current_level = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	_, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, level, id)
	if err != nil {
		r.logger.Error("Failed to update instance level",
			zap.Int64("id", id), zap.Int("level", level), zap.Error(err))
		return fmt.Errorf("failed to update instance level: %w", err)
	}
	return nil
}

// UpdateStatus updates the instance status
func (r *InstanceRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE workflow_instances SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	_, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, status, id)
	if err != nil {
		r.logger.Error("Failed to update instance status",
			zap.Int64("id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("failed to update instance status: %w", err)
	}
	return nil
}

// scanOne scans a single instance row, mapping no-rows to nil
func (r *InstanceRepository) scanOne(row *sql.Row) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance
	err := row.Scan(
		&instance.ID,
		&instance.PolicyID,
		&instance.TemplateID,
		&instance.CurrentLevel,
		&instance.Status,
		&instance.SubmittedBy,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow instance: %w", err)
	}
	return &instance, nil
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
