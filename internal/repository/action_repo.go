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

// ActionRepository implements port.ActionRepository
type ActionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActionRepository creates a new action repository
func NewActionRepository(db *sql.DB, logger *zap.Logger) port.ActionRepository {
	return &ActionRepository{db: db, logger: logger}
}

// Create appends a workflow action row
func (r *ActionRepository) Create(ctx context.Context, action *models.WorkflowAction) error {
	query := `
		INSERT INTO workflow_actions (instance_id, user_id, level_number, action, comment)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		action.InstanceID,
		action.UserID,
		action.LevelNumber,
		action.Action,
		action.Comment,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow action",
			zap.Int64("instance_id", action.InstanceID), zap.Error(err))
		return fmt.Errorf("failed to create workflow action: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	action.ID = id
	return nil
}

// ListByInstanceID retrieves all actions for an instance in recording order
func (r *ActionRepository) ListByInstanceID(ctx context.Context, instanceID int64) ([]*models.WorkflowAction, error) {
	query := `
		SELECT id, instance_id, user_id, level_number, action, comment, created_at
		FROM workflow_actions
		WHERE instance_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := database.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list workflow actions",
			zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.WorkflowAction
	for rows.Next() {
		var action models.WorkflowAction
		err := rows.Scan(
			&action.ID,
			&action.InstanceID,
			&action.UserID,
			&action.LevelNumber,
			&action.Action,
			&action.Comment,
			&action.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow action: %w", err)
		}
		actions = append(actions, &action)
	}
	return actions, rows.Err()
}

// CountDistinctApprovers counts distinct users who approved at a level
func (r *ActionRepository) CountDistinctApprovers(ctx context.Context, instanceID int64, level int) (int, error) {
	query := `
		SELECT COUNT(DISTINCT user_id)
		FROM workflow_actions
		WHERE instance_id = ? AND level_number = ? AND action = ?
	`

	var count int
	err := database.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query,
		instanceID, level, models.ActionApprove).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count approvers",
			zap.Int64("instance_id", instanceID), zap.Int("level", level), zap.Error(err))
		return 0, fmt.Errorf("failed to count approvers: %w", err)
	}
	return count, nil
}

// Verify interface compliance
var _ port.ActionRepository = (*ActionRepository)(nil)
