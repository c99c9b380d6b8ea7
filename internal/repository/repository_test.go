package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/policy-approval/internal/models"
	"github.com/garyjia/policy-approval/migrations"
	"github.com/garyjia/policy-approval/pkg/database"
)

// newTestDB opens an in-memory database with the real schema applied.
// A single connection keeps the in-memory database alive and shared.
func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:            ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrator := database.NewMigrator(db, logger)
	require.NoError(t, migrator.Run(migrations.Files))
	return db
}

func seedPolicy(t *testing.T, db *database.DB, name string) *models.Policy {
	t.Helper()
	repo := NewPolicyRepository(db.DB, zap.NewNop())
	policy := &models.Policy{
		Name:           name,
		Description:    "test policy",
		CreatedBy:      "alice",
		CurrentVersion: 1,
		Status:         models.PolicyStatusDraft,
	}
	require.NoError(t, repo.Create(context.Background(), policy))
	return policy
}

func seedTemplate(t *testing.T, db *database.DB) *models.ApprovalTemplate {
	t.Helper()
	repo := NewTemplateRepository(db.DB, zap.NewNop())
	template := &models.ApprovalTemplate{
		Name:      "Standard Chain",
		Kind:      models.TemplateKindSequential,
		CreatedBy: "alice",
		Levels: []*models.TemplateLevel{
			{LevelNumber: 1, Role: "Reviewer"},
			{LevelNumber: 2, Role: "Director"},
		},
	}
	require.NoError(t, repo.Create(context.Background(), template))
	return template
}

func TestPolicyRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewPolicyRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	policy := seedPolicy(t, db, "Expense Policy")
	assert.NotZero(t, policy.ID)

	found, err := repo.GetByID(ctx, policy.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Expense Policy", found.Name)
	assert.Equal(t, models.PolicyStatusDraft, found.Status)
	assert.False(t, found.IsLocked)

	missing, err := repo.GetByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.UpdateStatusLock(ctx, policy.ID, models.PolicyStatusPendingApproval, true))
	require.NoError(t, repo.IncrementVersion(ctx, policy.ID))

	found, err = repo.GetByID(ctx, policy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PolicyStatusPendingApproval, found.Status)
	assert.True(t, found.IsLocked)
	assert.Equal(t, 2, found.CurrentVersion)

	seedPolicy(t, db, "Travel Policy")
	list, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestTemplateRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewTemplateRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	template := seedTemplate(t, db)
	assert.NotZero(t, template.ID)

	found, err := repo.GetByID(ctx, template.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Len(t, found.Levels, 2)
	assert.Equal(t, 1, found.Levels[0].LevelNumber)
	assert.Equal(t, "Reviewer", found.Levels[0].Role)
	assert.Equal(t, 2, found.Levels[1].LevelNumber)

	require.NoError(t, repo.Deactivate(ctx, template.ID))

	active, err := repo.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := repo.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)
}

func TestInstanceAndActionRepositories(t *testing.T) {
	db := newTestDB(t)
	instances := NewInstanceRepository(db.DB, zap.NewNop())
	actions := NewActionRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	policy := seedPolicy(t, db, "Expense Policy")
	template := seedTemplate(t, db)

	instance := &models.WorkflowInstance{
		PolicyID:     policy.ID,
		TemplateID:   template.ID,
		CurrentLevel: 1,
		Status:       models.InstanceStatusInProgress,
		SubmittedBy:  "alice",
	}
	require.NoError(t, instances.Create(ctx, instance))
	assert.NotZero(t, instance.ID)

	latest, err := instances.GetLatestByPolicyID(ctx, policy.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, instance.ID, latest.ID)

	queue, err := instances.ListInProgress(ctx)
	require.NoError(t, err)
	assert.Len(t, queue, 1)

	// Duplicate approvals from one user count once
	for _, userID := range []string{"bob", "bob", "carol"} {
		require.NoError(t, actions.Create(ctx, &models.WorkflowAction{
			InstanceID:  instance.ID,
			UserID:      userID,
			LevelNumber: 1,
			Action:      models.ActionApprove,
		}))
	}
	require.NoError(t, actions.Create(ctx, &models.WorkflowAction{
		InstanceID:  instance.ID,
		UserID:      "dave",
		LevelNumber: 1,
		Action:      models.ActionReject,
		Comment:     "needs work",
	}))

	count, err := actions.CountDistinctApprovers(ctx, instance.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	history, err := actions.ListByInstanceID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Len(t, history, 4)

	require.NoError(t, instances.UpdateLevel(ctx, instance.ID, 2))
	require.NoError(t, instances.UpdateStatus(ctx, instance.ID, models.InstanceStatusApproved))

	updated, err := instances.GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.CurrentLevel)
	assert.Equal(t, models.InstanceStatusApproved, updated.Status)

	queue, err = instances.ListInProgress(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestDocumentRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	policy := seedPolicy(t, db, "Expense Policy")
	content := json.RawMessage(`{"title":"Expense Policy","sections":[{"title":"Scope"}]}`)

	require.NoError(t, repo.CreateLive(ctx, policy.ID, content, 1))

	// The live row is unique per policy
	assert.Error(t, repo.CreateLive(ctx, policy.ID, content, 1))

	live, err := repo.GetLive(ctx, policy.ID)
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.False(t, live.IsSnapshot)
	assert.JSONEq(t, string(content), string(live.Structure))

	snapshotID, err := repo.CreateSnapshot(ctx, policy.ID, 1, content)
	require.NoError(t, err)
	assert.NotZero(t, snapshotID)

	snapshot, err := repo.GetSnapshotByID(ctx, snapshotID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.True(t, snapshot.IsSnapshot)

	// Replacing the live document leaves the snapshot untouched
	updated := json.RawMessage(`{"title":"Expense Policy","sections":[{"title":"Scope"},{"title":"Limits"}]}`)
	require.NoError(t, repo.ReplaceLive(ctx, policy.ID, updated, 2))

	live, err = repo.GetLive(ctx, policy.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(updated), string(live.Structure))

	snapshot, err = repo.GetSnapshotByID(ctx, snapshotID)
	require.NoError(t, err)
	assert.JSONEq(t, string(content), string(snapshot.Structure))
}

func TestVersionRepository(t *testing.T) {
	db := newTestDB(t)
	documents := NewDocumentRepository(db.DB, zap.NewNop())
	repo := NewVersionRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	policy := seedPolicy(t, db, "Expense Policy")
	content := json.RawMessage(`{"title":"Expense Policy","sections":[]}`)
	snapshotID, err := documents.CreateSnapshot(ctx, policy.ID, 1, content)
	require.NoError(t, err)

	version := &models.PolicyVersion{
		PolicyID:      policy.ID,
		VersionNumber: 1,
		SnapshotID:    &snapshotID,
		ChangeSummary: "Initial version",
		CreatedBy:     "alice",
	}
	require.NoError(t, repo.Create(ctx, version))
	assert.NotZero(t, version.ID)

	// Version numbers are unique per policy
	assert.Error(t, repo.Create(ctx, &models.PolicyVersion{
		PolicyID:      policy.ID,
		VersionNumber: 1,
		CreatedBy:     "alice",
	}))

	found, err := repo.GetByPolicyAndNumber(ctx, policy.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.False(t, found.IsLocked)
	assert.Nil(t, found.ApprovedAt)
	require.NotNil(t, found.SnapshotID)
	assert.Equal(t, snapshotID, *found.SnapshotID)

	approvedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Lock(ctx, version.ID, "carol", approvedAt))

	locked, err := repo.GetByPolicyAndNumber(ctx, policy.ID, 1)
	require.NoError(t, err)
	assert.True(t, locked.IsLocked)
	assert.Equal(t, "carol", locked.ApprovedBy)
	require.NotNil(t, locked.ApprovedAt)

	require.NoError(t, repo.Create(ctx, &models.PolicyVersion{
		PolicyID:      policy.ID,
		VersionNumber: 2,
		CreatedBy:     "alice",
	}))

	latest, err := repo.GetLatestByPolicyID(ctx, policy.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.VersionNumber)

	list, err := repo.ListByPolicyID(ctx, policy.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 2, list[0].VersionNumber)
	assert.Equal(t, 1, list[1].VersionNumber)
}

func TestAuditRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewAuditRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Append(ctx, &models.AuditRecord{
			UserID:     "alice",
			Action:     models.AuditSubmitted,
			EntityType: "policy",
			EntityID:   1,
			Details:    "instance=1 template=1",
		}))
	}
	require.NoError(t, repo.Append(ctx, &models.AuditRecord{
		UserID:     "bob",
		Action:     models.AuditApproved,
		EntityType: "policy",
		EntityID:   2,
	}))

	all, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	byEntity, err := repo.ListByEntity(ctx, "policy", 1, 10)
	require.NoError(t, err)
	assert.Len(t, byEntity, 3)
	assert.Equal(t, models.AuditSubmitted, byEntity[0].Action)
}

func TestTransactionRollback(t *testing.T) {
	db := newTestDB(t)
	repo := NewPolicyRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := repo.Create(txCtx, &models.Policy{
			Name:      "Doomed",
			CreatedBy: "alice",
			Status:    models.PolicyStatusDraft,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	list, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
