package template

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/policy-approval/internal/models"
	"github.com/garyjia/policy-approval/internal/port"
)

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memTemplateRepo struct {
	templates map[int64]*models.ApprovalTemplate
	nextID    int64
}

func (m *memTemplateRepo) Create(ctx context.Context, t *models.ApprovalTemplate) error {
	m.nextID++
	t.ID = m.nextID
	t.IsActive = true
	m.templates[t.ID] = t
	return nil
}

func (m *memTemplateRepo) GetByID(ctx context.Context, id int64) (*models.ApprovalTemplate, error) {
	return m.templates[id], nil
}

func (m *memTemplateRepo) List(ctx context.Context, activeOnly bool) ([]*models.ApprovalTemplate, error) {
	var out []*models.ApprovalTemplate
	for _, t := range m.templates {
		if !activeOnly || t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTemplateRepo) Deactivate(ctx context.Context, id int64) error {
	m.templates[id].IsActive = false
	return nil
}

// stubValidator returns a fixed set of issues
type stubValidator struct {
	issues []port.ValidationIssue
	err    error
}

func (s *stubValidator) ValidateTemplate(ctx context.Context, levels []*models.TemplateLevel) (*port.ValidationResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	result := &port.ValidationResult{Issues: s.issues}
	result.Valid = !result.HasErrors()
	return result, nil
}

func newStore(t *testing.T, validator port.TemplateValidator) (*Store, *memTemplateRepo) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	repo := &memTemplateRepo{templates: map[int64]*models.ApprovalTemplate{}}
	return NewStore(passthroughTx{}, repo, validator, logger), repo
}

func TestCreateTemplate(t *testing.T) {
	store, repo := newStore(t, &stubValidator{})

	created, err := store.Create(context.Background(), &models.ApprovalTemplate{
		Name: "Two Stage",
		Kind: models.TemplateKindSequential,
		Levels: []*models.TemplateLevel{
			{LevelNumber: 1, Role: "Reviewer"},
			{LevelNumber: 2, Role: "Director"},
		},
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.True(t, created.IsActive)
	assert.Len(t, repo.templates, 1)
}

func TestCreateTemplateWithWarnings(t *testing.T) {
	store, _ := newStore(t, &stubValidator{issues: []port.ValidationIssue{
		{Severity: port.SeverityWarning, Message: "role Reviewer has no active users"},
	}})

	_, err := store.Create(context.Background(), &models.ApprovalTemplate{
		Name:   "Warned",
		Levels: []*models.TemplateLevel{{LevelNumber: 1, Role: "Reviewer"}},
	})
	assert.NoError(t, err)
}

func TestCreateTemplateRejectedByValidator(t *testing.T) {
	store, repo := newStore(t, &stubValidator{issues: []port.ValidationIssue{
		{Severity: port.SeverityError, Message: "level 1 has no role"},
		{Severity: port.SeverityWarning, Message: "minor issue"},
	}})

	_, err := store.Create(context.Background(), &models.ApprovalTemplate{
		Name:   "Bad",
		Levels: []*models.TemplateLevel{{LevelNumber: 1, Role: "Reviewer"}},
	})

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Len(t, rejected.Issues, 2)
	assert.Contains(t, rejected.Error(), "level 1 has no role")
	assert.NotContains(t, rejected.Error(), "minor issue")
	assert.Empty(t, repo.templates)
}

func TestCreateTemplateValidatorUnavailable(t *testing.T) {
	store, _ := newStore(t, &stubValidator{err: assert.AnError})

	_, err := store.Create(context.Background(), &models.ApprovalTemplate{
		Name:   "Unreachable",
		Levels: []*models.TemplateLevel{{LevelNumber: 1, Role: "Reviewer"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestCreateTemplateInvalidLevels(t *testing.T) {
	tests := []struct {
		name   string
		levels []*models.TemplateLevel
	}{
		{name: "no levels", levels: nil},
		{
			name: "gap in numbering",
			levels: []*models.TemplateLevel{
				{LevelNumber: 1, Role: "Reviewer"},
				{LevelNumber: 3, Role: "Director"},
			},
		},
		{
			name: "duplicate level",
			levels: []*models.TemplateLevel{
				{LevelNumber: 1, Role: "Reviewer"},
				{LevelNumber: 1, Role: "Director"},
			},
		},
		{
			name:   "zero based",
			levels: []*models.TemplateLevel{{LevelNumber: 0, Role: "Reviewer"}},
		},
	}

	store, _ := newStore(t, &stubValidator{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Create(context.Background(), &models.ApprovalTemplate{Name: "X", Levels: tt.levels})
			assert.ErrorIs(t, err, ErrInvalidTemplate)
		})
	}
}

func TestGetAndDeactivate(t *testing.T) {
	store, _ := newStore(t, &stubValidator{})

	created, err := store.Create(context.Background(), &models.ApprovalTemplate{
		Name:   "Chain",
		Levels: []*models.TemplateLevel{{LevelNumber: 1, Role: "Reviewer"}},
	})
	require.NoError(t, err)

	found, err := store.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chain", found.Name)

	_, err = store.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	require.NoError(t, store.Deactivate(context.Background(), created.ID))
	active, err := store.List(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := store.List(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, store.Deactivate(context.Background(), 999), ErrTemplateNotFound)
}
