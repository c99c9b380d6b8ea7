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

// PolicyRepository implements port.PolicyRepository
type PolicyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *sql.DB, logger *zap.Logger) port.PolicyRepository {
	return &PolicyRepository{db: db, logger: logger}
}

// Create creates a new policy row
func (r *PolicyRepository) Create(ctx context.Context, policy *models.Policy) error {
	query := `
		INSERT INTO policies (name, description, created_by, current_version, status, is_locked)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		policy.Name,
		policy.Description,
		policy.CreatedBy,
		policy.CurrentVersion,
		policy.Status,
		policy.IsLocked,
	)
	if err != nil {
		r.logger.Error("Failed to create policy", zap.Error(err))
		return fmt.Errorf("failed to create policy: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	policy.ID = id
	return nil
}

// GetByID retrieves a policy by ID, or nil when it does not exist
func (r *PolicyRepository) GetByID(ctx context.Context, id int64) (*models.Policy, error) {
	query := `
		SELECT id, name, description, created_by, current_version, status, is_locked,
			created_at, updated_at
		FROM policies
		WHERE id = ?
	`

	var policy models.Policy
	err := database.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&policy.ID,
		&policy.Name,
		&policy.Description,
		&policy.CreatedBy,
		&policy.CurrentVersion,
		&policy.Status,
		&policy.IsLocked,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get policy", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return &policy, nil
}

// List retrieves policies ordered newest first
func (r *PolicyRepository) List(ctx context.Context, limit, offset int) ([]*models.Policy, error) {
	query := `
		SELECT id, name, description, created_by, current_version, status, is_locked,
			created_at, updated_at
		FROM policies
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := database.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list policies", zap.Error(err))
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []*models.Policy
	for rows.Next() {
		var policy models.Policy
		err := rows.Scan(
			&policy.ID,
			&policy.Name,
			&policy.Description,
			&policy.CreatedBy,
			&policy.CurrentVersion,
			&policy.Status,
			&policy.IsLocked,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, &policy)
	}
	return policies, rows.Err()
}

// UpdateStatusLock sets status and edit lock together
func (r *PolicyRepository) UpdateStatusLock(ctx context.Context, id int64, status string, locked bool) error {
	query := `UPDATE policies SET status = ?, is_locked = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	_, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, status, locked, id)
	if err != nil {
		r.logger.Error("Failed to update policy status",
			zap.Int64("id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("failed to update policy status: %w", err)
	}
	return nil
}

// IncrementVersion advances the policy's version counter
func (r *PolicyRepository) IncrementVersion(ctx context.Context, id int64) error {
	query := `UPDATE policies SET current_version = current_version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	_, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to increment policy version", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to increment policy version: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.PolicyRepository = (*PolicyRepository)(nil)
