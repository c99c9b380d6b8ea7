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

// TemplateRepository implements port.TemplateRepository
type TemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) port.TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

// Create persists the template and its levels. Callers wrap this in a
// transaction so a level insert failure rolls back the template row.
func (r *TemplateRepository) Create(ctx context.Context, template *models.ApprovalTemplate) error {
	exec := database.ExecutorFrom(ctx, r.db)

	result, err := exec.ExecContext(ctx,
		`INSERT INTO approval_templates (name, kind, created_by, is_active) VALUES (?, ?, ?, 1)`,
		template.Name,
		template.Kind,
		template.CreatedBy,
	)
	if err != nil {
		r.logger.Error("Failed to create template", zap.String("name", template.Name), zap.Error(err))
		return fmt.Errorf("failed to create template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	template.ID = id
	template.IsActive = true

	for _, level := range template.Levels {
		level.TemplateID = id
		res, err := exec.ExecContext(ctx,
			`INSERT INTO template_levels (template_id, level_number, role, is_parallel) VALUES (?, ?, ?, ?)`,
			id,
			level.LevelNumber,
			level.Role,
			level.IsParallel,
		)
		if err != nil {
			return fmt.Errorf("failed to create template level %d: %w", level.LevelNumber, err)
		}
		if levelID, err := res.LastInsertId(); err == nil {
			level.ID = levelID
		}
	}

	return nil
}

// GetByID retrieves a template with its levels ordered by level number,
// or nil when it does not exist
func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*models.ApprovalTemplate, error) {
	query := `
		SELECT id, name, kind, created_by, is_active, created_at, updated_at
		FROM approval_templates
		WHERE id = ?
	`

	var template models.ApprovalTemplate
	err := database.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&template.ID,
		&template.Name,
		&template.Kind,
		&template.CreatedBy,
		&template.IsActive,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get template", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	levels, err := r.levelsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	template.Levels = levels
	return &template, nil
}

// List retrieves templates, optionally only active ones, newest first
func (r *TemplateRepository) List(ctx context.Context, activeOnly bool) ([]*models.ApprovalTemplate, error) {
	query := `
		SELECT id, name, kind, created_by, is_active, created_at, updated_at
		FROM approval_templates
	`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := database.ExecutorFrom(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list templates", zap.Error(err))
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.ApprovalTemplate
	for rows.Next() {
		var template models.ApprovalTemplate
		err := rows.Scan(
			&template.ID,
			&template.Name,
			&template.Kind,
			&template.CreatedBy,
			&template.IsActive,
			&template.CreatedAt,
			&template.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, &template)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, template := range templates {
		levels, err := r.levelsFor(ctx, template.ID)
		if err != nil {
			return nil, err
		}
		template.Levels = levels
	}
	return templates, nil
}

// Deactivate soft-deletes a template
func (r *TemplateRepository) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE approval_templates SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	_, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to deactivate template", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to deactivate template: %w", err)
	}
	return nil
}

// levelsFor loads the ordered levels of one template
func (r *TemplateRepository) levelsFor(ctx context.Context, templateID int64) ([]*models.TemplateLevel, error) {
	query := `
		SELECT id, template_id, level_number, role, is_parallel
		FROM template_levels
		WHERE template_id = ?
		ORDER BY level_number ASC
	`

	rows, err := database.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get template levels: %w", err)
	}
	defer rows.Close()

	var levels []*models.TemplateLevel
	for rows.Next() {
		var level models.TemplateLevel
		err := rows.Scan(
			&level.ID,
			&level.TemplateID,
			&level.LevelNumber,
			&level.Role,
			&level.IsParallel,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template level: %w", err)
		}
		levels = append(levels, &level)
	}
	return levels, rows.Err()
}

// Verify interface compliance
var _ port.TemplateRepository = (*TemplateRepository)(nil)
