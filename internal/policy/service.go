// Package policy manages the governed documents themselves: creation,
// content edits and reads. Workflow transitions live in the workflow
// package; this service only respects the edit lock they set.
package policy

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/garyjia/policy-approval/internal/models"
	"github.com/garyjia/policy-approval/internal/port"
	"github.com/garyjia/policy-approval/internal/version"
	"go.uber.org/zap"
)

// Business errors returned by the service
var (
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrPolicyLocked means an approval run holds the edit lock, or the
	// policy was approved; content cannot change under a lock.
	ErrPolicyLocked = errors.New("policy is locked and cannot be edited")
)

// Detail pairs a policy with its live content
type Detail struct {
	Policy  *models.Policy  `json:"policy"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Service manages policies and their live documents
type Service struct {
	tx        port.TransactionManager
	policies  port.PolicyRepository
	documents port.DocumentRepository
	versions  *version.Facade
	logger    *zap.Logger
}

// NewService creates a policy service
func NewService(
	tx port.TransactionManager,
	policies port.PolicyRepository,
	documents port.DocumentRepository,
	versions *version.Facade,
	logger *zap.Logger,
) *Service {
	return &Service{
		tx:        tx,
		policies:  policies,
		documents: documents,
		versions:  versions,
		logger:    logger,
	}
}

// Create persists a draft policy, its live document and the initial version
// snapshot in one transaction
func (s *Service) Create(ctx context.Context, name, description, createdBy string, content json.RawMessage) (*models.Policy, error) {
	policy := &models.Policy{
		Name:           name,
		Description:    description,
		CreatedBy:      createdBy,
		CurrentVersion: 1,
		Status:         models.PolicyStatusDraft,
		IsLocked:       false,
	}

	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.policies.Create(txCtx, policy); err != nil {
			return err
		}
		if err := s.documents.CreateLive(txCtx, policy.ID, content, 1); err != nil {
			return err
		}
		_, err := s.versions.SnapshotForSubmission(txCtx, policy, createdBy, "Initial version")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Policy created",
		zap.Int64("id", policy.ID),
		zap.String("name", name),
		zap.String("created_by", createdBy))
	return policy, nil
}

// Get returns a policy together with its live content
func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}

	detail := &Detail{Policy: policy}
	doc, err := s.documents.GetLive(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc != nil {
		detail.Content = doc.Structure
	}
	return detail, nil
}

// List returns policies newest first
func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.Policy, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.policies.List(ctx, limit, offset)
}

// ReplaceContent overwrites the live document. Refused while the edit lock
// is held; frozen snapshots are never touched.
func (s *Service) ReplaceContent(ctx context.Context, id int64, content json.RawMessage) error {
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if policy == nil {
		return ErrPolicyNotFound
	}
	if policy.IsLocked {
		return ErrPolicyLocked
	}

	if err := s.documents.ReplaceLive(ctx, id, content, policy.CurrentVersion); err != nil {
		return err
	}

	s.logger.Info("Policy content replaced", zap.Int64("id", id))
	return nil
}
