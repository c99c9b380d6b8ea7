package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/garyjia/policy-approval/internal/models"
	"github.com/garyjia/policy-approval/internal/port"
	"github.com/garyjia/policy-approval/pkg/database"
	"go.uber.org/zap"
)

// DocumentRepository implements port.DocumentRepository. Each policy has at
// most one live document row; snapshot rows are insert-only.
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) port.DocumentRepository {
	return &DocumentRepository{db: db, logger: logger}
}

// CreateLive inserts the mutable live document for a policy
func (r *DocumentRepository) CreateLive(ctx context.Context, policyID int64, structure json.RawMessage, version int) error {
	query := `
		INSERT INTO policy_documents (policy_id, version, is_snapshot, structure)
		VALUES (?, ?, 0, ?)
	`

	_, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, policyID, version, string(structure))
	if err != nil {
		r.logger.Error("Failed to create live document",
			zap.Int64("policy_id", policyID), zap.Error(err))
		return fmt.Errorf("failed to create live document: %w", err)
	}
	return nil
}

// GetLive retrieves the live document for a policy, or nil
func (r *DocumentRepository) GetLive(ctx context.Context, policyID int64) (*models.PolicyDocument, error) {
	query := `
		SELECT id, policy_id, version, is_snapshot, structure, created_at, updated_at
		FROM policy_documents
		WHERE policy_id = ? AND is_snapshot = 0
	`

	doc, err := r.scanOne(database.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, policyID))
	if err != nil {
		r.logger.Error("Failed to get live document",
			zap.Int64("policy_id", policyID), zap.Error(err))
		return nil, err
	}
	return doc, nil
}

// ReplaceLive overwrites the live document content in place
func (r *DocumentRepository) ReplaceLive(ctx context.Context, policyID int64, structure json.RawMessage, version int) error {
	query := `
		UPDATE policy_documents
		SET structure = ?, version = ?, updated_at = CURRENT_TIMESTAMP
		WHERE policy_id = ? AND is_snapshot = 0
	`

	_, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, string(structure), version, policyID)
	if err != nil {
		r.logger.Error("Failed to replace live document",
			zap.Int64("policy_id", policyID), zap.Error(err))
		return fmt.Errorf("failed to replace live document: %w", err)
	}
	return nil
}

// CreateSnapshot inserts an immutable snapshot row and returns its id
func (r *DocumentRepository) CreateSnapshot(ctx context.Context, policyID int64, version int, structure json.RawMessage) (int64, error) {
	query := `
		INSERT INTO policy_documents (policy_id, version, is_snapshot, structure)
		VALUES (?, ?, 1, ?)
	`

	result, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, policyID, version, string(structure))
	if err != nil {
		r.logger.Error("Failed to create snapshot",
			zap.Int64("policy_id", policyID), zap.Int("version", version), zap.Error(err))
		return 0, fmt.Errorf("failed to create snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// GetSnapshotByID retrieves a snapshot row by id, or nil
func (r *DocumentRepository) GetSnapshotByID(ctx context.Context, id int64) (*models.PolicyDocument, error) {
	query := `
		SELECT id, policy_id, version, is_snapshot, structure, created_at, updated_at
		FROM policy_documents
		WHERE id = ? AND is_snapshot = 1
	`

	doc, err := r.scanOne(database.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		r.logger.Error("Failed to get snapshot", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	return doc, nil
}

// scanOne scans a single document row, mapping no-rows to nil
func (r *DocumentRepository) scanOne(row *sql.Row) (*models.PolicyDocument, error) {
	var doc models.PolicyDocument
	var structure string
	err := row.Scan(
		&doc.ID,
		&doc.PolicyID,
		&doc.Version,
		&doc.IsSnapshot,
		&structure,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy document: %w", err)
	}
	doc.Structure = json.RawMessage(structure)
	return &doc, nil
}

// Verify interface compliance
var _ port.DocumentRepository = (*DocumentRepository)(nil)
