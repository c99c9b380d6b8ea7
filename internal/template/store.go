// Package template manages approval templates: validated creation,
// lookup and soft deletion.
package template

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/policy-approval/internal/models"
	"github.com/garyjia/policy-approval/internal/port"
	"go.uber.org/zap"
)

// Business errors returned by the store
var (
	ErrTemplateNotFound = errors.New("approval template not found")

	// ErrInvalidTemplate means the proposed chain is structurally malformed:
	// no levels, or level numbers that are not contiguous from 1.
	ErrInvalidTemplate = errors.New("invalid approval template")
)

// RejectedError means the template validator found error-severity issues.
// The findings are carried so callers can surface them.
type RejectedError struct {
	Issues []port.ValidationIssue
}

func (e *RejectedError) Error() string {
	messages := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Severity == port.SeverityError {
			messages = append(messages, issue.Message)
		}
	}
	return "template rejected by validation: " + strings.Join(messages, "; ")
}

// Store manages the template catalog
type Store struct {
	tx        port.TransactionManager
	templates port.TemplateRepository
	validator port.TemplateValidator
	logger    *zap.Logger
}

// NewStore creates a template store
func NewStore(tx port.TransactionManager, templates port.TemplateRepository, validator port.TemplateValidator, logger *zap.Logger) *Store {
	return &Store{
		tx:        tx,
		templates: templates,
		validator: validator,
		logger:    logger,
	}
}

// Create validates and persists a new template. Levels must be numbered
// contiguously from 1; validator findings of error severity reject the
// template with a RejectedError.
func (s *Store) Create(ctx context.Context, template *models.ApprovalTemplate) (*models.ApprovalTemplate, error) {
	if err := checkLevels(template.Levels); err != nil {
		return nil, err
	}

	result, err := s.validator.ValidateTemplate(ctx, template.Levels)
	if err != nil {
		return nil, fmt.Errorf("template validation unavailable: %w", err)
	}
	if result.HasErrors() {
		return nil, &RejectedError{Issues: result.Issues}
	}
	for _, issue := range result.Issues {
		s.logger.Warn("Template validation warning",
			zap.String("template", template.Name),
			zap.String("message", issue.Message))
	}

	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.templates.Create(txCtx, template)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Approval template created",
		zap.Int64("id", template.ID),
		zap.String("name", template.Name),
		zap.Int("levels", len(template.Levels)))
	return template, nil
}

// Get returns a template with its levels
func (s *Store) Get(ctx context.Context, id int64) (*models.ApprovalTemplate, error) {
	template, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, ErrTemplateNotFound
	}
	return template, nil
}

// List returns templates, optionally only active ones
func (s *Store) List(ctx context.Context, activeOnly bool) ([]*models.ApprovalTemplate, error) {
	return s.templates.List(ctx, activeOnly)
}

// Deactivate soft-deletes a template. Running instances keep referencing it.
func (s *Store) Deactivate(ctx context.Context, id int64) error {
	template, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if template == nil {
		return ErrTemplateNotFound
	}
	if err := s.templates.Deactivate(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Approval template deactivated", zap.Int64("id", id))
	return nil
}

// checkLevels enforces contiguous 1-based level numbering
func checkLevels(levels []*models.TemplateLevel) error {
	if len(levels) == 0 {
		return fmt.Errorf("%w: no levels", ErrInvalidTemplate)
	}
	seen := make(map[int]bool, len(levels))
	for _, level := range levels {
		if level.LevelNumber < 1 || level.LevelNumber > len(levels) {
			return fmt.Errorf("%w: level %d out of range", ErrInvalidTemplate, level.LevelNumber)
		}
		if seen[level.LevelNumber] {
			return fmt.Errorf("%w: duplicate level %d", ErrInvalidTemplate, level.LevelNumber)
		}
		seen[level.LevelNumber] = true
	}
	return nil
}
