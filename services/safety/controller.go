// Package safety exposes the subsystem's single entry point, tying the
// policy store, permission evaluator, risk assessor, approval workflow,
// audit log and the two background monitors together.
package safety

import (
	"context"
	"time"

	"github.com/upb/safety-control-plane/internal/shared"
	"github.com/upb/safety-control-plane/models"
	"github.com/upb/safety-control-plane/services/approval"
	"github.com/upb/safety-control-plane/services/audit"
	"github.com/upb/safety-control-plane/services/emergency"
	"github.com/upb/safety-control-plane/services/policy"
	"github.com/upb/safety-control-plane/services/sentinel"
	"github.com/upb/safety-control-plane/services/watchdog"
	"go.uber.org/zap"
)

// Status is the aggregate safety snapshot returned by Status
type Status struct {
	EmergencyStop       bool                   `json:"emergency_stop"`
	EmergencyReason     string                 `json:"emergency_reason,omitempty"`
	EmergencySince      *time.Time             `json:"emergency_since,omitempty"`
	ActivePolicy        string                 `json:"active_policy"`
	PendingApprovals    int                    `json:"pending_approvals"`
	ActiveOperations    int                    `json:"active_operations"`
	RiskBudgetUsed      int                    `json:"risk_budget_used"`
	RiskBudgetRemaining int                    `json:"risk_budget_remaining"`
	ResourceUsage       *models.ResourceSample `json:"resource_usage,omitempty"`
	AuditEntries        int                    `json:"audit_entries"`
	Monitors            *MonitorStats          `json:"monitors,omitempty"`
}

// MonitorStats exposes the background monitors' loop counters
type MonitorStats struct {
	WatchdogSamples  uint64 `json:"watchdog_samples"`
	WatchdogFailures int    `json:"watchdog_failures"`
	SentinelScans    uint64 `json:"sentinel_scans"`
	SentinelFailures int    `json:"sentinel_failures"`
}

// Controller is the safety subsystem facade
type Controller struct {
	policies  *policy.Store
	workflow  *approval.Workflow
	audit     *audit.Service
	emergency *emergency.State
	watchdog  *watchdog.Watchdog
	sentinel  *sentinel.Sentinel
	logger    *zap.Logger
}

// NewController wires the subsystem together. The watchdog and sentinel
// are optional; pass nil to run without background monitors.
func NewController(
	policies *policy.Store,
	workflow *approval.Workflow,
	auditSvc *audit.Service,
	state *emergency.State,
	wd *watchdog.Watchdog,
	st *sentinel.Sentinel,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		policies:  policies,
		workflow:  workflow,
		audit:     auditSvc,
		emergency: state,
		watchdog:  wd,
		sentinel:  st,
		logger:    logger,
	}
}

// Start launches the audit pipeline and the background monitors
func (c *Controller) Start(ctx context.Context) error {
	if err := c.audit.Start(); err != nil {
		return err
	}
	if c.watchdog != nil {
		c.watchdog.Start(ctx)
	}
	if c.sentinel != nil {
		c.sentinel.Start(ctx)
	}
	c.logger.Info("safety controller started",
		zap.String("active_policy", c.policies.ActiveName()))
	return nil
}

// Stop tears down the monitors and drains the audit pipeline
func (c *Controller) Stop(timeout time.Duration) error {
	if c.sentinel != nil {
		c.sentinel.Stop()
	}
	if c.watchdog != nil {
		c.watchdog.Stop()
	}
	return c.audit.Stop(timeout)
}

// RequestOperation runs the admission pipeline for one operation
func (c *Controller) RequestOperation(ctx context.Context, userID, action, resource string, rc models.RiskContext, level models.PermissionLevel) approval.Result {
	return c.workflow.Request(ctx, userID, action, resource, rc, level)
}

// ApproveOperation resolves a pending operation as approved
func (c *Controller) ApproveOperation(operationID, approverID string) error {
	if !c.workflow.Approve(operationID, approverID) {
		return shared.ErrOperationNotFound
	}
	return nil
}

// DenyOperation resolves a pending operation as denied
func (c *Controller) DenyOperation(operationID, approverID, reason string) error {
	if !c.workflow.Deny(operationID, approverID, reason) {
		return shared.ErrOperationNotFound
	}
	return nil
}

// CompleteOperation closes an active operation
func (c *Controller) CompleteOperation(operationID string, success bool, details string) {
	c.workflow.Complete(operationID, success, details)
}

// PendingApprovals lists operations awaiting a decision
func (c *Controller) PendingApprovals() []models.OperationContext {
	return c.workflow.Pending()
}

// ActiveOperations lists admitted operations
func (c *Controller) ActiveOperations() []models.OperationContext {
	return c.workflow.Active()
}

// AuditTrail returns matching audit entries, newest last
func (c *Controller) AuditTrail(filter audit.Filter) []models.AuditEntry {
	return c.audit.Trail(filter)
}

// ResourceUsage returns the latest host resource sample
func (c *Controller) ResourceUsage() (models.ResourceSample, bool) {
	if c.watchdog == nil {
		return models.ResourceSample{}, false
	}
	return c.watchdog.LastSample()
}

// FileVerdicts returns the sentinel's recent inspection verdicts
func (c *Controller) FileVerdicts() []models.FileVerdict {
	if c.sentinel == nil {
		return nil
	}
	return c.sentinel.Verdicts()
}

// Policies returns all configured policies
func (c *Controller) Policies() []models.SecurityPolicy {
	return c.policies.List()
}

// Policy returns the named policy
func (c *Controller) Policy(name string) (models.SecurityPolicy, bool) {
	return c.policies.Get(name)
}

// ActivePolicy returns the currently enforced policy
func (c *Controller) ActivePolicy() (models.SecurityPolicy, bool) {
	return c.policies.Active()
}

// SetPolicy switches the active policy by name
func (c *Controller) SetPolicy(ctx context.Context, userID, name string) error {
	if !c.policies.SetActive(ctx, name) {
		return shared.ErrPolicyNotFound
	}
	c.audit.Append(models.NewAuditEntry(userID, models.AuditActionPolicyChanged, name).
		WithSuccess(true).
		WithDetails("activated policy " + name))
	c.logger.Info("active policy changed",
		zap.String("policy", name),
		zap.String("user_id", userID))
	return nil
}

// CreatePolicy registers a new policy
func (c *Controller) CreatePolicy(ctx context.Context, userID string, p models.SecurityPolicy) error {
	if !c.policies.Create(ctx, p) {
		return shared.ErrPolicyExists
	}
	c.audit.Append(models.NewAuditEntry(userID, models.AuditActionPolicyChanged, p.Name).
		WithSuccess(true).
		WithDetails("created policy " + p.Name))
	return nil
}

// UpdatePolicy applies a field update to a named policy
func (c *Controller) UpdatePolicy(ctx context.Context, userID, name string, update models.PolicyUpdate) error {
	if !c.policies.Update(ctx, name, update) {
		return shared.ErrPolicyNotFound
	}
	c.audit.Append(models.NewAuditEntry(userID, models.AuditActionPolicyChanged, name).
		WithSuccess(true).
		WithDetails("updated policy " + name))
	return nil
}

// EmergencyStop engages the global stop flag
func (c *Controller) EmergencyStop(userID, reason string) {
	engaged := c.emergency.Activate(reason)
	if engaged {
		c.audit.Append(models.NewAuditEntry(userID, models.AuditActionEmergencyStop, "system").
			WithRisk(models.RiskCritical).
			WithSuccess(true).
			WithDetails(reason))
	}
	c.logger.Warn("emergency stop requested",
		zap.String("user_id", userID),
		zap.String("reason", reason),
		zap.Bool("engaged", engaged))
}

// EmergencyResume clears the stop flag
func (c *Controller) EmergencyResume(userID string) {
	c.emergency.Resume()
	c.audit.Append(models.NewAuditEntry(userID, models.AuditActionEmergencyResume, "system").
		WithSuccess(true))
	c.logger.Info("emergency stop cleared", zap.String("user_id", userID))
}

// Status aggregates the subsystem state into one snapshot
func (c *Controller) Status() Status {
	pending, active := c.workflow.Counts()
	used, remaining := c.workflow.BudgetUsage()

	status := Status{
		EmergencyStop:       c.emergency.Active(),
		EmergencyReason:     c.emergency.Reason(),
		ActivePolicy:        c.policies.ActiveName(),
		PendingApprovals:    pending,
		ActiveOperations:    active,
		RiskBudgetUsed:      used,
		RiskBudgetRemaining: remaining,
		AuditEntries:        c.audit.Len(),
	}
	if since := c.emergency.Since(); !since.IsZero() {
		status.EmergencySince = &since
	}
	if sample, ok := c.ResourceUsage(); ok {
		status.ResourceUsage = &sample
	}
	if c.watchdog != nil || c.sentinel != nil {
		monitors := &MonitorStats{}
		if c.watchdog != nil {
			monitors.WatchdogSamples, monitors.WatchdogFailures = c.watchdog.Stats()
		}
		if c.sentinel != nil {
			monitors.SentinelScans, monitors.SentinelFailures = c.sentinel.Stats()
		}
		status.Monitors = monitors
	}
	return status
}
