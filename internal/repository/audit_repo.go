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

// AuditRepository implements port.AuditRepository. The table is append-only.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Append inserts an audit record
func (r *AuditRepository) Append(ctx context.Context, record *models.AuditRecord) error {
	query := `
		INSERT INTO audit_records (user_id, action, entity_type, entity_id, details)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		record.UserID,
		record.Action,
		record.EntityType,
		record.EntityID,
		record.Details,
	)
	if err != nil {
		r.logger.Error("Failed to append audit record",
			zap.String("action", record.Action), zap.Error(err))
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	record.ID = id
	return nil
}

// List retrieves audit records newest first
func (r *AuditRepository) List(ctx context.Context, limit, offset int) ([]*models.AuditRecord, error) {
	query := `
		SELECT id, user_id, action, entity_type, entity_id, details, created_at
		FROM audit_records
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := database.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list audit records", zap.Error(err))
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ListByEntity retrieves audit records for one entity, newest first
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType string, entityID int64, limit int) ([]*models.AuditRecord, error) {
	query := `
		SELECT id, user_id, action, entity_type, entity_id, details, created_at
		FROM audit_records
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := database.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, entityType, entityID, limit)
	if err != nil {
		r.logger.Error("Failed to list audit records by entity",
			zap.String("entity_type", entityType), zap.Int64("entity_id", entityID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	return r.scanRows(rows)
}

func (r *AuditRepository) scanRows(rows *sql.Rows) ([]*models.AuditRecord, error) {
	var records []*models.AuditRecord
	for rows.Next() {
		var record models.AuditRecord
		err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.Action,
			&record.EntityType,
			&record.EntityID,
			&record.Details,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
