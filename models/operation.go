package models

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel classifies the danger of an operation
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Severity returns a comparable rank for the risk level (low=1 .. critical=4).
// Unknown levels rank as zero.
func (l RiskLevel) Severity() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	}
	return 0
}

// IsElevated reports whether the level is HIGH or CRITICAL
func (l RiskLevel) IsElevated() bool {
	return l == RiskHigh || l == RiskCritical
}

// PermissionLevel represents the privilege of the requesting caller
type PermissionLevel string

const (
	PermissionReadOnly   PermissionLevel = "read_only"
	PermissionStandard   PermissionLevel = "standard"
	PermissionElevated   PermissionLevel = "elevated"
	PermissionFullAccess PermissionLevel = "full_access"
)

// OperationContext tracks one in-flight authorization request from
// submission to completion. At any instant an operation is a member of
// exactly one of the pending-approval set or the active-operations set.
type OperationContext struct {
	OperationID       string     `json:"operation_id" db:"operation_id"`
	UserID            string     `json:"user_id" db:"user_id"`
	Action            string     `json:"action" db:"action"`
	Resource          string     `json:"resource" db:"resource"`
	Timestamp         time.Time  `json:"timestamp" db:"timestamp"`
	RiskLevel         RiskLevel  `json:"risk_level" db:"risk_level"`
	RequiresApproval  bool       `json:"requires_approval" db:"requires_approval"`
	Approved          bool       `json:"approved" db:"approved"`
	ApprovalTimestamp *time.Time `json:"approval_timestamp,omitempty" db:"approval_timestamp"`
	ApproverID        string     `json:"approver_id,omitempty" db:"approver_id"`
}

// NewOperationContext creates an OperationContext with a fresh unique id
func NewOperationContext(userID, action, resource string, riskLevel RiskLevel, requiresApproval bool) *OperationContext {
	return &OperationContext{
		OperationID:      uuid.NewString(),
		UserID:           userID,
		Action:           action,
		Resource:         resource,
		Timestamp:        time.Now(),
		RiskLevel:        riskLevel,
		RequiresApproval: requiresApproval,
	}
}

// Approve stamps approval metadata on the context
func (o *OperationContext) Approve(approverID string) {
	now := time.Now()
	o.Approved = true
	o.ApprovalTimestamp = &now
	o.ApproverID = approverID
}

// RiskContext carries optional request metadata consumed by risk assessment
type RiskContext struct {
	FileSize int64 `json:"file_size,omitempty"`
}
