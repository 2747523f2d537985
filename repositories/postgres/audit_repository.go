package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/upb/safety-control-plane/models"
	"github.com/upb/safety-control-plane/repositories"
	"go.uber.org/zap"
)

// AuditRepository implements repositories.AuditRepository over Postgres.
// It doubles as an audit.Sink so the audit pipeline can mirror entries
// into the database alongside the JSONL file.
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

var _ repositories.AuditRepository = (*AuditRepository)(nil)

// InitSchema creates the audit table when it does not exist
func (r *AuditRepository) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS audit_entries (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			operation_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			resource TEXT NOT NULL DEFAULT '',
			risk_level TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			requires_approval BOOLEAN NOT NULL,
			approved BOOLEAN NOT NULL,
			approver_id TEXT NOT NULL DEFAULT '',
			details TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_audit_entries_user_id ON audit_entries (user_id);
		CREATE INDEX IF NOT EXISTS idx_audit_entries_action ON audit_entries (action);
		CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_entries (timestamp);
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return nil
}

// Insert appends a new audit entry
func (r *AuditRepository) Insert(ctx context.Context, entry models.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (
			timestamp, operation_id, user_id, action, resource,
			risk_level, success, requires_approval, approved, approver_id, details
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.Timestamp,
		entry.OperationID,
		entry.UserID,
		entry.Action,
		entry.Resource,
		string(entry.RiskLevel),
		entry.Success,
		entry.RequiresApproval,
		entry.Approved,
		entry.ApproverID,
		entry.Details,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Write makes the repository usable as an audit.Sink
func (r *AuditRepository) Write(ctx context.Context, entry models.AuditEntry) error {
	return r.Insert(ctx, entry)
}

// Close closes the underlying database connection
func (r *AuditRepository) Close() error {
	return r.db.Close()
}

const selectColumns = `
	timestamp, operation_id, user_id, action, resource,
	risk_level, success, requires_approval, approved, approver_id, details
`

// GetByUserID retrieves entries recorded for a user, newest first
func (r *AuditRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]models.AuditEntry, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM audit_entries
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries by user: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// GetByAction retrieves entries for an action, newest first
func (r *AuditRepository) GetByAction(ctx context.Context, action string, limit, offset int) ([]models.AuditEntry, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM audit_entries
		WHERE action = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, action, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries by action: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// GetByDateRange retrieves entries within [start, end], newest first
func (r *AuditRepository) GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]models.AuditEntry, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM audit_entries
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.QueryContext(ctx, query, start, end, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries by date range: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		var riskLevel string
		if err := rows.Scan(
			&entry.Timestamp,
			&entry.OperationID,
			&entry.UserID,
			&entry.Action,
			&entry.Resource,
			&riskLevel,
			&entry.Success,
			&entry.RequiresApproval,
			&entry.Approved,
			&entry.ApproverID,
			&entry.Details,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.RiskLevel = models.RiskLevel(riskLevel)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return entries, nil
}
