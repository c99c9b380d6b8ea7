package version

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/policy-approval/internal/models"
)

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// memPolicyRepo stores rows by value; GetByID hands out detached copies the
// way the sqlite repository does.
type memPolicyRepo struct {
	policies map[int64]models.Policy
}

func (m *memPolicyRepo) Create(ctx context.Context, p *models.Policy) error {
	m.policies[p.ID] = *p
	return nil
}

func (m *memPolicyRepo) GetByID(ctx context.Context, id int64) (*models.Policy, error) {
	p, ok := m.policies[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memPolicyRepo) List(ctx context.Context, limit, offset int) ([]*models.Policy, error) {
	return nil, nil
}

func (m *memPolicyRepo) UpdateStatusLock(ctx context.Context, id int64, status string, locked bool) error {
	p := m.policies[id]
	p.Status = status
	p.IsLocked = locked
	m.policies[id] = p
	return nil
}

func (m *memPolicyRepo) IncrementVersion(ctx context.Context, id int64) error {
	p := m.policies[id]
	p.CurrentVersion++
	m.policies[id] = p
	return nil
}

type memVersionRepo struct {
	versions []*models.PolicyVersion
	nextID   int64
}

func (m *memVersionRepo) Create(ctx context.Context, v *models.PolicyVersion) error {
	m.nextID++
	v.ID = m.nextID
	m.versions = append(m.versions, v)
	return nil
}

func (m *memVersionRepo) GetByPolicyAndNumber(ctx context.Context, policyID int64, n int) (*models.PolicyVersion, error) {
	for _, v := range m.versions {
		if v.PolicyID == policyID && v.VersionNumber == n {
			return v, nil
		}
	}
	return nil, nil
}

func (m *memVersionRepo) GetLatestByPolicyID(ctx context.Context, policyID int64) (*models.PolicyVersion, error) {
	var latest *models.PolicyVersion
	for _, v := range m.versions {
		if v.PolicyID == policyID && (latest == nil || v.VersionNumber > latest.VersionNumber) {
			latest = v
		}
	}
	return latest, nil
}

func (m *memVersionRepo) ListByPolicyID(ctx context.Context, policyID int64) ([]*models.PolicyVersion, error) {
	var out []*models.PolicyVersion
	for _, v := range m.versions {
		if v.PolicyID == policyID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memVersionRepo) Lock(ctx context.Context, id int64, approvedBy string, approvedAt time.Time) error {
	for _, v := range m.versions {
		if v.ID == id {
			v.IsLocked = true
			v.ApprovedBy = approvedBy
			at := approvedAt
			v.ApprovedAt = &at
		}
	}
	return nil
}

type memDocumentRepo struct {
	live      map[int64]*models.PolicyDocument
	snapshots map[int64]*models.PolicyDocument
	nextID    int64
}

func (m *memDocumentRepo) CreateLive(ctx context.Context, policyID int64, structure json.RawMessage, version int) error {
	m.live[policyID] = &models.PolicyDocument{PolicyID: policyID, Version: version, Structure: structure}
	return nil
}

func (m *memDocumentRepo) GetLive(ctx context.Context, policyID int64) (*models.PolicyDocument, error) {
	return m.live[policyID], nil
}

func (m *memDocumentRepo) ReplaceLive(ctx context.Context, policyID int64, structure json.RawMessage, version int) error {
	doc := m.live[policyID]
	doc.Structure = structure
	doc.Version = version
	return nil
}

func (m *memDocumentRepo) CreateSnapshot(ctx context.Context, policyID int64, version int, structure json.RawMessage) (int64, error) {
	m.nextID++
	m.snapshots[m.nextID] = &models.PolicyDocument{
		ID:         m.nextID,
		PolicyID:   policyID,
		Version:    version,
		IsSnapshot: true,
		Structure:  structure,
	}
	return m.nextID, nil
}

func (m *memDocumentRepo) GetSnapshotByID(ctx context.Context, id int64) (*models.PolicyDocument, error) {
	return m.snapshots[id], nil
}

type recordingTrail struct {
	records []*models.AuditRecord
}

func (r *recordingTrail) Append(record *models.AuditRecord) {
	r.records = append(r.records, record)
}

type facadeEnv struct {
	facade    *Facade
	policies  *memPolicyRepo
	versions  *memVersionRepo
	documents *memDocumentRepo
	trail     *recordingTrail
}

func newFacadeEnv(t *testing.T) *facadeEnv {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	env := &facadeEnv{
		policies:  &memPolicyRepo{policies: map[int64]models.Policy{}},
		versions:  &memVersionRepo{},
		documents: &memDocumentRepo{live: map[int64]*models.PolicyDocument{}, snapshots: map[int64]*models.PolicyDocument{}},
		trail:     &recordingTrail{},
	}
	env.facade = NewFacade(passthroughTx{}, env.policies, env.versions, env.documents, env.trail, logger)
	return env
}

func (env *facadeEnv) addPolicy(id int64, currentVersion int) *models.Policy {
	p := &models.Policy{ID: id, Name: "Expense Policy", CurrentVersion: currentVersion, Status: models.PolicyStatusDraft}
	env.policies.policies[id] = *p
	env.documents.live[id] = &models.PolicyDocument{
		PolicyID:  id,
		Structure: json.RawMessage(`{"title":"Expense Policy","sections":[{"title":"Scope"}]}`),
	}
	return p
}

func TestCreateSnapshot(t *testing.T) {
	env := newFacadeEnv(t)
	env.addPolicy(1, 1)

	created, err := env.facade.CreateSnapshot(context.Background(), 1, "alice", "First draft")
	require.NoError(t, err)

	assert.Equal(t, 1, created.VersionNumber)
	assert.Equal(t, "alice", created.CreatedBy)
	assert.Equal(t, "First draft", created.ChangeSummary)
	require.NotNil(t, created.SnapshotID)
	assert.False(t, created.IsLocked)

	// Counter always points at the next unwritten slot
	assert.Equal(t, 2, env.policies.policies[1].CurrentVersion)

	snapshot := env.documents.snapshots[*created.SnapshotID]
	require.NotNil(t, snapshot)
	assert.True(t, snapshot.IsSnapshot)

	require.Len(t, env.trail.records, 1)
	assert.Equal(t, models.AuditVersionCreated, env.trail.records[0].Action)
}

func TestCreateSnapshotPolicyNotFound(t *testing.T) {
	env := newFacadeEnv(t)

	_, err := env.facade.CreateSnapshot(context.Background(), 42, "alice", "")
	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestLockedHeadRefusesNewVersions(t *testing.T) {
	env := newFacadeEnv(t)
	policy := env.addPolicy(1, 1)

	v1, err := env.facade.SnapshotForSubmission(context.Background(), policy, "alice", "")
	require.NoError(t, err)
	_, err = env.facade.Lock(context.Background(), 1, v1.VersionNumber, "carol")
	require.NoError(t, err)
	env.trail.records = nil

	_, err = env.facade.CreateSnapshot(context.Background(), 1, "alice", "after lock")
	assert.ErrorIs(t, err, ErrCurrentVersionLocked)

	_, err = env.facade.SnapshotForSubmission(context.Background(), policy, "alice", "")
	assert.ErrorIs(t, err, ErrCurrentVersionLocked)

	_, err = env.facade.Rollback(context.Background(), 1, v1.VersionNumber, "alice")
	assert.ErrorIs(t, err, ErrCurrentVersionLocked)

	// No partial writes on refusal
	assert.Len(t, env.versions.versions, 1)
	assert.Equal(t, 2, env.policies.policies[1].CurrentVersion)
	assert.Empty(t, env.trail.records)
}

func TestSnapshotForSubmissionDoesNotAudit(t *testing.T) {
	env := newFacadeEnv(t)
	policy := env.addPolicy(1, 1)

	created, err := env.facade.SnapshotForSubmission(context.Background(), policy, "alice", "Submitted for approval")
	require.NoError(t, err)
	assert.Equal(t, 1, created.VersionNumber)
	assert.Equal(t, 2, policy.CurrentVersion)
	assert.Empty(t, env.trail.records)
}

func TestLock(t *testing.T) {
	env := newFacadeEnv(t)
	policy := env.addPolicy(1, 1)
	created, err := env.facade.SnapshotForSubmission(context.Background(), policy, "alice", "")
	require.NoError(t, err)

	locked, err := env.facade.Lock(context.Background(), 1, created.VersionNumber, "carol")
	require.NoError(t, err)
	assert.True(t, locked.IsLocked)
	assert.Equal(t, "carol", locked.ApprovedBy)
	require.NotNil(t, locked.ApprovedAt)

	// Locking is monotone; a second explicit lock is refused
	_, err = env.facade.Lock(context.Background(), 1, created.VersionNumber, "carol")
	assert.ErrorIs(t, err, ErrAlreadyLocked)

	require.Len(t, env.trail.records, 1)
	assert.Equal(t, models.AuditVersionLocked, env.trail.records[0].Action)
}

func TestLockCurrentApprovedIdempotent(t *testing.T) {
	env := newFacadeEnv(t)
	policy := env.addPolicy(1, 1)
	_, err := env.facade.SnapshotForSubmission(context.Background(), policy, "alice", "")
	require.NoError(t, err)

	first, err := env.facade.LockCurrentApproved(context.Background(), 1, "carol")
	require.NoError(t, err)
	assert.True(t, first.IsLocked)

	second, err := env.facade.LockCurrentApproved(context.Background(), 1, "dave")
	require.NoError(t, err)
	assert.Equal(t, "carol", second.ApprovedBy)
	assert.Empty(t, env.trail.records)
}

func TestRollback(t *testing.T) {
	env := newFacadeEnv(t)
	policy := env.addPolicy(1, 1)

	// v1 freezes the original content
	v1, err := env.facade.SnapshotForSubmission(context.Background(), policy, "alice", "Original")
	require.NoError(t, err)

	// Live content moves on
	newContent := json.RawMessage(`{"title":"Expense Policy","sections":[{"title":"Scope"},{"title":"Limits"}]}`)
	require.NoError(t, env.documents.ReplaceLive(context.Background(), 1, newContent, 2))

	restored, err := env.facade.Rollback(context.Background(), 1, 1, "alice")
	require.NoError(t, err)

	assert.Equal(t, 2, restored.VersionNumber)
	assert.Equal(t, "Rollback to v1", restored.ChangeSummary)
	// The restored version references the same snapshot row, not a copy
	require.NotNil(t, restored.SnapshotID)
	assert.Equal(t, *v1.SnapshotID, *restored.SnapshotID)

	live := env.documents.live[1]
	assert.JSONEq(t, `{"title":"Expense Policy","sections":[{"title":"Scope"}]}`, string(live.Structure))
	assert.Equal(t, 3, env.policies.policies[1].CurrentVersion)

	require.Len(t, env.trail.records, 1)
	assert.Equal(t, models.AuditVersionRollback, env.trail.records[0].Action)
}

func TestRollbackErrors(t *testing.T) {
	env := newFacadeEnv(t)
	env.addPolicy(1, 1)

	_, err := env.facade.Rollback(context.Background(), 42, 1, "alice")
	assert.ErrorIs(t, err, ErrPolicyNotFound)

	_, err = env.facade.Rollback(context.Background(), 1, 9, "alice")
	assert.ErrorIs(t, err, ErrVersionNotFound)

	// A version without a snapshot cannot be restored
	env.versions.versions = append(env.versions.versions, &models.PolicyVersion{
		ID: 7, PolicyID: 1, VersionNumber: 0,
	})
	_, err = env.facade.Rollback(context.Background(), 1, 0, "alice")
	assert.ErrorIs(t, err, ErrSourceSnapshotMissing)
}

func TestListAndGetDetail(t *testing.T) {
	env := newFacadeEnv(t)
	policy := env.addPolicy(1, 1)

	v1, err := env.facade.SnapshotForSubmission(context.Background(), policy, "alice", "First")
	require.NoError(t, err)
	_, err = env.facade.SnapshotForSubmission(context.Background(), policy, "alice", "Second")
	require.NoError(t, err)

	versions, err := env.facade.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	detail, err := env.facade.GetDetail(context.Background(), 1, v1.VersionNumber)
	require.NoError(t, err)
	assert.Equal(t, v1.VersionNumber, detail.Version.VersionNumber)
	assert.JSONEq(t, `{"title":"Expense Policy","sections":[{"title":"Scope"}]}`, string(detail.Content))

	_, err = env.facade.GetDetail(context.Background(), 1, 99)
	assert.ErrorIs(t, err, ErrVersionNotFound)

	_, err = env.facade.List(context.Background(), 42)
	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestCompare(t *testing.T) {
	env := newFacadeEnv(t)
	policy := env.addPolicy(1, 1)

	_, err := env.facade.SnapshotForSubmission(context.Background(), policy, "alice", "First")
	require.NoError(t, err)

	newContent := json.RawMessage(`{"title":"Travel Policy","sections":[{"title":"Scope"},{"title":"Limits"}]}`)
	require.NoError(t, env.documents.ReplaceLive(context.Background(), 1, newContent, 2))
	_, err = env.facade.SnapshotForSubmission(context.Background(), policy, "alice", "Second")
	require.NoError(t, err)

	diff, err := env.facade.Compare(context.Background(), 1, 1, 2)
	require.NoError(t, err)
	assert.False(t, diff.Identical)
	assert.Len(t, diff.Changes, 2)
}
