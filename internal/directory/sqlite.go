package directory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/policy-approval/internal/port"
	"github.com/garyjia/policy-approval/pkg/database"
	"go.uber.org/zap"
)

// SQLiteDirectory resolves role membership from the users table. Every call
// hits the database; counts are never cached so parallel completion always
// sees the current roster.
type SQLiteDirectory struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteDirectory creates a role directory backed by the users table
func NewSQLiteDirectory(db *sql.DB, logger *zap.Logger) port.RoleDirectory {
	return &SQLiteDirectory{db: db, logger: logger}
}

// ActiveUserCount returns the number of active users holding a role
func (d *SQLiteDirectory) ActiveUserCount(ctx context.Context, role string) (int, error) {
	query := `SELECT COUNT(*) FROM users WHERE role = ? AND is_active = 1`

	var count int
	err := database.ExecutorFrom(ctx, d.db).QueryRowContext(ctx, query, role).Scan(&count)
	if err != nil {
		d.logger.Error("Failed to count active users", zap.String("role", role), zap.Error(err))
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return count, nil
}

// UserHasRole reports whether an active user holds the role
func (d *SQLiteDirectory) UserHasRole(ctx context.Context, userID, role string) (bool, error) {
	query := `SELECT COUNT(*) FROM users WHERE id = ? AND role = ? AND is_active = 1`

	var count int
	err := database.ExecutorFrom(ctx, d.db).QueryRowContext(ctx, query, userID, role).Scan(&count)
	if err != nil {
		d.logger.Error("Failed to resolve user role",
			zap.String("user_id", userID), zap.String("role", role), zap.Error(err))
		return false, fmt.Errorf("failed to resolve user role: %w", err)
	}
	return count > 0, nil
}

// Verify interface compliance
var _ port.RoleDirectory = (*SQLiteDirectory)(nil)
