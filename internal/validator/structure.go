// Package validator holds the rule-based checks run on policy content and
// approval chains before they enter the workflow.
package validator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garyjia/policy-approval/internal/port"
	"go.uber.org/zap"
)

// StructureValidator applies structural rules to policy content: the
// document must be a JSON object with a non-empty title and at least one
// titled section.
type StructureValidator struct {
	logger *zap.Logger
}

// NewStructureValidator creates the default structure validator
func NewStructureValidator(logger *zap.Logger) port.StructureValidator {
	return &StructureValidator{logger: logger}
}

// ValidateStructure checks the content and returns every finding. The error
// return is reserved for the validator itself being unable to run.
func (v *StructureValidator) ValidateStructure(ctx context.Context, content json.RawMessage) (*port.ValidationResult, error) {
	result := &port.ValidationResult{Valid: true, Issues: []port.ValidationIssue{}}

	var doc map[string]interface{}
	if err := json.Unmarshal(content, &doc); err != nil {
		result.Valid = false
		result.Issues = append(result.Issues, port.ValidationIssue{
			Severity: port.SeverityError,
			Category: "format",
			Message:  "content is not a JSON object",
		})
		return result, nil
	}

	title, _ := doc["title"].(string)
	if title == "" {
		result.Issues = append(result.Issues, port.ValidationIssue{
			Severity: port.SeverityError,
			Category: "structure",
			Message:  "policy title is required",
		})
	}

	sections, ok := doc["sections"].([]interface{})
	if !ok || len(sections) == 0 {
		result.Issues = append(result.Issues, port.ValidationIssue{
			Severity: port.SeverityError,
			Category: "structure",
			Message:  "policy must contain at least one section",
		})
	} else {
		for i, raw := range sections {
			section, ok := raw.(map[string]interface{})
			if !ok {
				result.Issues = append(result.Issues, port.ValidationIssue{
					Severity: port.SeverityError,
					Category: "structure",
					Message:  fmt.Sprintf("section %d is not an object", i+1),
				})
				continue
			}
			if title, _ := section["title"].(string); title == "" {
				result.Issues = append(result.Issues, port.ValidationIssue{
					Severity: port.SeverityError,
					Category: "structure",
					Message:  fmt.Sprintf("section %d has no title", i+1),
				})
			}
			if body, _ := section["content"].(string); body == "" {
				result.Issues = append(result.Issues, port.ValidationIssue{
					Severity: port.SeverityWarning,
					Category: "content",
					Message:  fmt.Sprintf("section %d has no content", i+1),
				})
			}
		}
	}

	result.Valid = !result.HasErrors()
	v.logger.Debug("Structure validated",
		zap.Bool("valid", result.Valid),
		zap.Int("issues", len(result.Issues)))
	return result, nil
}

// Verify interface compliance
var _ port.StructureValidator = (*StructureValidator)(nil)
