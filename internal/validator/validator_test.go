package validator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/policy-approval/internal/models"
	"github.com/garyjia/policy-approval/internal/port"
)

func TestValidateStructure(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	v := NewStructureValidator(logger)
	ctx := context.Background()

	tests := []struct {
		name      string
		content   string
		wantValid bool
	}{
		{
			name:      "valid document",
			content:   `{"title":"Expense Policy","sections":[{"title":"Scope","content":"All staff"}]}`,
			wantValid: true,
		},
		{
			name:      "not a JSON object",
			content:   `[1,2,3]`,
			wantValid: false,
		},
		{
			name:      "missing title",
			content:   `{"sections":[{"title":"Scope","content":"x"}]}`,
			wantValid: false,
		},
		{
			name:      "no sections",
			content:   `{"title":"Expense Policy","sections":[]}`,
			wantValid: false,
		},
		{
			name:      "section without title",
			content:   `{"title":"Expense Policy","sections":[{"content":"x"}]}`,
			wantValid: false,
		},
		{
			name:      "empty section content is only a warning",
			content:   `{"title":"Expense Policy","sections":[{"title":"Scope"}]}`,
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.ValidateStructure(ctx, json.RawMessage(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, result.Valid)
			assert.Equal(t, !tt.wantValid, result.HasErrors())
		})
	}
}

type stubDirectory struct {
	counts map[string]int
}

func (s *stubDirectory) ActiveUserCount(ctx context.Context, role string) (int, error) {
	return s.counts[role], nil
}

func (s *stubDirectory) UserHasRole(ctx context.Context, userID, role string) (bool, error) {
	return false, nil
}

func TestValidateTemplate(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	roles := &stubDirectory{counts: map[string]int{"Reviewer": 2}}
	v := NewTemplateValidator(roles, logger)
	ctx := context.Background()

	t.Run("valid chain", func(t *testing.T) {
		result, err := v.ValidateTemplate(ctx, []*models.TemplateLevel{
			{LevelNumber: 1, Role: "Reviewer"},
		})
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Empty(t, result.Issues)
	})

	t.Run("empty chain is an error", func(t *testing.T) {
		result, err := v.ValidateTemplate(ctx, nil)
		require.NoError(t, err)
		assert.False(t, result.Valid)
	})

	t.Run("missing role is an error", func(t *testing.T) {
		result, err := v.ValidateTemplate(ctx, []*models.TemplateLevel{
			{LevelNumber: 1, Role: ""},
		})
		require.NoError(t, err)
		assert.False(t, result.Valid)
	})

	t.Run("empty roster is only a warning", func(t *testing.T) {
		result, err := v.ValidateTemplate(ctx, []*models.TemplateLevel{
			{LevelNumber: 1, Role: "Director"},
		})
		require.NoError(t, err)
		assert.True(t, result.Valid)
		require.Len(t, result.Issues, 1)
		assert.Equal(t, port.SeverityWarning, result.Issues[0].Severity)
	})
}
