// Package repositories defines the persistence interfaces implemented by
// the postgres package. The durable audit mirror is optional: the control
// plane runs fully on its JSONL sink when no audit database is configured.
package repositories

import (
	"context"
	"time"

	"github.com/upb/safety-control-plane/models"
)

// AuditRepository persists audit entries durably
type AuditRepository interface {
	// Insert appends a new audit entry, never updating existing rows
	Insert(ctx context.Context, entry models.AuditEntry) error

	// GetByUserID retrieves entries recorded for a user, newest first
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]models.AuditEntry, error)

	// GetByAction retrieves entries for an action, newest first
	GetByAction(ctx context.Context, action string, limit, offset int) ([]models.AuditEntry, error)

	// GetByDateRange retrieves entries within [start, end], newest first
	GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]models.AuditEntry, error)
}
