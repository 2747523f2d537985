package models

import "time"

// AuditAction identifies well-known audit trail actions emitted by the
// subsystem itself (caller-supplied actions pass through verbatim)
type AuditAction = string

const (
	AuditActionEmergencyStop   AuditAction = "emergency_stop"
	AuditActionEmergencyResume AuditAction = "emergency_resume"
	AuditActionFileQuarantined AuditAction = "file_quarantined"
	AuditActionPolicyChanged   AuditAction = "policy_changed"
)

// AuditEntry is an immutable snapshot of an operation decision or state
// transition. Entries are appended, never mutated. The JSON tags define the
// one-object-per-line durable log format.
type AuditEntry struct {
	Timestamp        time.Time `json:"timestamp" db:"timestamp"`
	OperationID      string    `json:"operation_id" db:"operation_id"`
	UserID           string    `json:"user_id" db:"user_id"`
	Action           string    `json:"action" db:"action"`
	Resource         string    `json:"resource" db:"resource"`
	RiskLevel        RiskLevel `json:"risk_level" db:"risk_level"`
	Success          bool      `json:"success" db:"success"`
	RequiresApproval bool      `json:"requires_approval" db:"requires_approval"`
	Approved         bool      `json:"approved" db:"approved"`
	ApproverID       string    `json:"approver_id,omitempty" db:"approver_id"`
	Details          string    `json:"details,omitempty" db:"details"`
}

// NewAuditEntry creates an audit entry for a bare action with no
// operation context attached
func NewAuditEntry(userID, action, resource string) AuditEntry {
	return AuditEntry{
		Timestamp: time.Now(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		RiskLevel: RiskLow,
	}
}

// NewAuditEntryFromOperation snapshots an operation context
func NewAuditEntryFromOperation(op *OperationContext, success bool, details string) AuditEntry {
	return AuditEntry{
		Timestamp:        time.Now(),
		OperationID:      op.OperationID,
		UserID:           op.UserID,
		Action:           op.Action,
		Resource:         op.Resource,
		RiskLevel:        op.RiskLevel,
		Success:          success,
		RequiresApproval: op.RequiresApproval,
		Approved:         op.Approved,
		ApproverID:       op.ApproverID,
		Details:          details,
	}
}

// WithRisk sets the risk level
func (e AuditEntry) WithRisk(level RiskLevel) AuditEntry {
	e.RiskLevel = level
	return e
}

// WithSuccess sets the outcome flag
func (e AuditEntry) WithSuccess(success bool) AuditEntry {
	e.Success = success
	return e
}

// WithDetails sets the free-form details field
func (e AuditEntry) WithDetails(details string) AuditEntry {
	e.Details = details
	return e
}
