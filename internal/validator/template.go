package validator

import (
	"context"
	"fmt"

	"github.com/garyjia/policy-approval/internal/models"
	"github.com/garyjia/policy-approval/internal/port"
	"go.uber.org/zap"
)

// TemplateValidator applies rules to a proposed approval chain. Structural
// problems are errors; a role with no active holders is only a warning since
// the roster may be populated before the template is used.
type TemplateValidator struct {
	roles  port.RoleDirectory
	logger *zap.Logger
}

// NewTemplateValidator creates the default template validator
func NewTemplateValidator(roles port.RoleDirectory, logger *zap.Logger) port.TemplateValidator {
	return &TemplateValidator{roles: roles, logger: logger}
}

// ValidateTemplate checks the proposed levels and returns every finding
func (v *TemplateValidator) ValidateTemplate(ctx context.Context, levels []*models.TemplateLevel) (*port.ValidationResult, error) {
	result := &port.ValidationResult{Valid: true, Issues: []port.ValidationIssue{}}

	if len(levels) == 0 {
		result.Issues = append(result.Issues, port.ValidationIssue{
			Severity: port.SeverityError,
			Category: "structure",
			Message:  "template must have at least one level",
		})
	}

	for _, level := range levels {
		if level.Role == "" {
			result.Issues = append(result.Issues, port.ValidationIssue{
				Severity: port.SeverityError,
				Category: "structure",
				Message:  fmt.Sprintf("level %d has no role", level.LevelNumber),
			})
			continue
		}

		count, err := v.roles.ActiveUserCount(ctx, level.Role)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve role %s: %w", level.Role, err)
		}
		if count == 0 {
			result.Issues = append(result.Issues, port.ValidationIssue{
				Severity: port.SeverityWarning,
				Category: "roster",
				Message:  fmt.Sprintf("role %s at level %d has no active users", level.Role, level.LevelNumber),
			})
		}
	}

	result.Valid = !result.HasErrors()
	v.logger.Debug("Template validated",
		zap.Bool("valid", result.Valid),
		zap.Int("issues", len(result.Issues)))
	return result, nil
}

// Verify interface compliance
var _ port.TemplateValidator = (*TemplateValidator)(nil)
