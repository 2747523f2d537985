// Package approval owns the operation lifecycle: permission check, risk
// assessment, the pending/active maps, the rolling-hour risk budget and
// the out-of-band human confirmation gate.
//
// State machine per operation:
//
//	REQUESTED -> PERMISSION_DENIED (terminal, no context created)
//	REQUESTED -> PENDING_APPROVAL -> APPROVED -> ACTIVE -> COMPLETED
//	REQUESTED -> PENDING_APPROVAL -> DENIED (terminal)
//	REQUESTED -> ADMITTED -> ACTIVE -> COMPLETED
//
// An operation id is a member of exactly one of the pending or active
// maps while open; a single mutex guards both maps to keep that invariant
// under concurrent callers.
package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/upb/safety-control-plane/models"
	"github.com/upb/safety-control-plane/services/audit"
	"github.com/upb/safety-control-plane/services/permission"
	"go.uber.org/zap"
)

// Messages returned with request decisions
const (
	MsgApproved       = "Operation approved"
	MsgRiskLimit      = "Risk operation limit exceeded"
	MsgOverrideLimit  = "Override operation limit exceeded"
	MsgRateLimit      = "Operation rate limit exceeded"
	MsgConcurrency    = "Concurrent operation limit exceeded"
	MsgCancelled      = "Operation cancelled by user"
	msgNeedsApproval  = "Operation requires approval (Risk: %s)"
	detailFullAccess  = "full_access_override"
	detailPending     = "parked pending approval"
)

// Confirmer is the out-of-band confirmation channel consulted before
// admitting HIGH/CRITICAL operations. Implementations must honor the
// context deadline; an expired gate counts as a decline.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface
type ConfirmerFunc func(ctx context.Context, question string) (bool, error)

// Confirm implements Confirmer
func (f ConfirmerFunc) Confirm(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

// PolicyProvider supplies the active security policy
type PolicyProvider interface {
	Active() (models.SecurityPolicy, bool)
}

// Evaluator decides whether an operation is permitted
type Evaluator interface {
	Check(userID, action, resource string, level models.PermissionLevel) (bool, string)
}

// Assessor scores operation risk
type Assessor interface {
	AssessFactors(action, resource string, rc models.RiskContext) (models.RiskLevel, []string)
}

// Config holds workflow limits
type Config struct {
	// MaxRiskOperations caps directly admitted HIGH/CRITICAL operations
	// per rolling hour
	MaxRiskOperations int
	// MaxOverrideOperations caps full-access break-glass admissions per
	// rolling hour
	MaxOverrideOperations int
	// ConfirmTimeout bounds the confirmation gate
	ConfirmTimeout time.Duration
}

// DefaultConfig returns the default workflow limits
func DefaultConfig() Config {
	return Config{
		MaxRiskOperations:     10,
		MaxOverrideOperations: 5,
		ConfirmTimeout:        30 * time.Second,
	}
}

// Result is the outcome of a request
type Result struct {
	Allowed     bool   `json:"allowed"`
	Message     string `json:"message"`
	OperationID string `json:"operation_id,omitempty"`
}

// Workflow is the approval state machine
type Workflow struct {
	mu      sync.Mutex
	pending map[string]*models.OperationContext
	active  map[string]*models.OperationContext

	policies  PolicyProvider
	evaluator Evaluator
	assessor  Assessor
	audit     *audit.Service
	confirmer Confirmer
	cfg       Config
	logger    *zap.Logger

	riskBudget     *window
	overrideBudget *window
	rateLimit      *window
}

// Option tweaks workflow construction
type Option func(*Workflow)

// WithConfirmer installs the out-of-band confirmation channel. Without
// one, HIGH/CRITICAL operations are parked for explicit approval instead
// of blocking on interactive input.
func WithConfirmer(c Confirmer) Option {
	return func(w *Workflow) { w.confirmer = c }
}

// WithClock injects the clock used by the rolling windows (tests)
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		w.riskBudget = newWindow(w.cfg.MaxRiskOperations, time.Hour, now)
		w.overrideBudget = newWindow(w.cfg.MaxOverrideOperations, time.Hour, now)
		w.rateLimit = newWindow(w.rateLimit.max, time.Minute, now)
	}
}

// NewWorkflow creates a Workflow
func NewWorkflow(cfg Config, policies PolicyProvider, evaluator Evaluator, assessor Assessor, auditSvc *audit.Service, logger *zap.Logger, opts ...Option) *Workflow {
	if cfg.MaxRiskOperations <= 0 {
		cfg.MaxRiskOperations = DefaultConfig().MaxRiskOperations
	}
	if cfg.MaxOverrideOperations <= 0 {
		cfg.MaxOverrideOperations = DefaultConfig().MaxOverrideOperations
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfig().ConfirmTimeout
	}

	rateMax := 0
	if policy, ok := policies.Active(); ok {
		rateMax = policy.MaxOperationsPerMinute
	}

	w := &Workflow{
		pending:        make(map[string]*models.OperationContext),
		active:         make(map[string]*models.OperationContext),
		policies:       policies,
		evaluator:      evaluator,
		assessor:       assessor,
		audit:          auditSvc,
		cfg:            cfg,
		logger:         logger,
		riskBudget:     newWindow(cfg.MaxRiskOperations, time.Hour, nil),
		overrideBudget: newWindow(cfg.MaxOverrideOperations, time.Hour, nil),
		rateLimit:      newWindow(rateMax, time.Minute, nil),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Request runs the full admission pipeline for one operation
func (w *Workflow) Request(ctx context.Context, userID, action, resource string, rc models.RiskContext, level models.PermissionLevel) Result {
	allowed, reason := w.evaluator.Check(userID, action, resource, level)
	if !allowed {
		w.audit.Append(models.NewAuditEntry(userID, action, resource).
			WithSuccess(false).
			WithDetails(reason))
		w.logger.Info("operation denied by permission check",
			zap.String("user_id", userID),
			zap.String("action", action),
			zap.String("reason", reason))
		return Result{Allowed: false, Message: reason}
	}
	fullAccess := reason == permission.ReasonFullAccess

	riskLevel, factors := w.assessor.AssessFactors(action, resource, rc)

	// Break-glass admissions bypass policy evaluation but burn their own
	// hourly budget and always leave an audit marker.
	if fullAccess {
		if !w.overrideBudget.Allow() {
			w.audit.Append(models.NewAuditEntry(userID, action, resource).
				WithRisk(riskLevel).
				WithSuccess(false).
				WithDetails(MsgOverrideLimit))
			return Result{Allowed: false, Message: MsgOverrideLimit}
		}
		op := models.NewOperationContext(userID, action, resource, riskLevel, false)
		w.mu.Lock()
		w.active[op.OperationID] = op
		w.mu.Unlock()
		w.audit.Append(models.NewAuditEntryFromOperation(op, true, detailFullAccess))
		w.logger.Warn("full access override admitted",
			zap.String("operation_id", op.OperationID),
			zap.String("user_id", userID),
			zap.String("action", action))
		return Result{Allowed: true, Message: MsgApproved, OperationID: op.OperationID}
	}

	policy, _ := w.policies.Active()
	requiresApproval := policy.RequireApproval

	if riskLevel.IsElevated() {
		if w.confirmer == nil {
			// no out-of-band channel to consult; park for explicit approval
			requiresApproval = true
		} else if !w.confirm(ctx, userID, action, resource, riskLevel) {
			w.audit.Append(models.NewAuditEntry(userID, action, resource).
				WithRisk(riskLevel).
				WithSuccess(false).
				WithDetails("confirmation declined or unavailable"))
			return Result{Allowed: false, Message: MsgCancelled}
		}
	}

	if requiresApproval {
		op := models.NewOperationContext(userID, action, resource, riskLevel, true)
		w.mu.Lock()
		w.pending[op.OperationID] = op
		w.mu.Unlock()

		w.audit.Append(models.NewAuditEntryFromOperation(op, true, detailPending))
		w.logger.Info("operation parked pending approval",
			zap.String("operation_id", op.OperationID),
			zap.String("user_id", userID),
			zap.String("risk_level", string(riskLevel)))
		return Result{
			Allowed:     false,
			Message:     fmt.Sprintf(msgNeedsApproval, riskLevel),
			OperationID: op.OperationID,
		}
	}

	if riskLevel.IsElevated() && !w.riskBudget.Allow() {
		w.audit.Append(models.NewAuditEntry(userID, action, resource).
			WithRisk(riskLevel).
			WithSuccess(false).
			WithDetails(MsgRiskLimit))
		w.logger.Warn("risk budget exhausted",
			zap.String("user_id", userID),
			zap.String("action", action),
			zap.String("risk_level", string(riskLevel)))
		return Result{Allowed: false, Message: MsgRiskLimit}
	}

	if !w.rateLimit.Allow() {
		w.audit.Append(models.NewAuditEntry(userID, action, resource).
			WithRisk(riskLevel).
			WithSuccess(false).
			WithDetails(MsgRateLimit))
		return Result{Allowed: false, Message: MsgRateLimit}
	}

	op := models.NewOperationContext(userID, action, resource, riskLevel, false)

	w.mu.Lock()
	if policy.MaxConcurrentOperations > 0 && len(w.active) >= policy.MaxConcurrentOperations {
		w.mu.Unlock()
		w.audit.Append(models.NewAuditEntry(userID, action, resource).
			WithRisk(riskLevel).
			WithSuccess(false).
			WithDetails(MsgConcurrency))
		return Result{Allowed: false, Message: MsgConcurrency}
	}
	w.active[op.OperationID] = op
	w.mu.Unlock()

	w.audit.Append(models.NewAuditEntryFromOperation(op, true,
		fmt.Sprintf("admitted; factors=%v", factors)))
	w.logger.Info("operation admitted",
		zap.String("operation_id", op.OperationID),
		zap.String("user_id", userID),
		zap.String("action", action),
		zap.String("risk_level", string(riskLevel)))
	return Result{Allowed: true, Message: MsgApproved, OperationID: op.OperationID}
}

// confirm queries the confirmation channel under the configured timeout
func (w *Workflow) confirm(ctx context.Context, userID, action, resource string, riskLevel models.RiskLevel) bool {
	question := fmt.Sprintf(
		"Operation %q on %q by %s carries %s risk. Proceed?",
		action, resource, userID, riskLevel)

	confirmCtx, cancel := context.WithTimeout(ctx, w.cfg.ConfirmTimeout)
	defer cancel()

	confirmed, err := w.confirmer.Confirm(confirmCtx, question)
	if err != nil {
		w.logger.Warn("confirmation channel unavailable, treating as decline",
			zap.String("user_id", userID),
			zap.String("action", action),
			zap.Error(err))
		return false
	}
	return confirmed
}

// Approve moves a pending operation into the active set. Returns false
// when the id is not pending.
func (w *Workflow) Approve(operationID, approverID string) bool {
	w.mu.Lock()
	op, ok := w.pending[operationID]
	if !ok {
		w.mu.Unlock()
		return false
	}
	op.Approve(approverID)
	delete(w.pending, operationID)
	w.active[operationID] = op
	w.mu.Unlock()

	w.audit.Append(models.NewAuditEntryFromOperation(op, true,
		"approved by "+approverID))
	w.logger.Info("operation approved",
		zap.String("operation_id", operationID),
		zap.String("approver_id", approverID))
	return true
}

// Deny removes a pending operation. Returns false when the id is not
// pending.
func (w *Workflow) Deny(operationID, approverID, reason string) bool {
	w.mu.Lock()
	op, ok := w.pending[operationID]
	if !ok {
		w.mu.Unlock()
		return false
	}
	op.ApproverID = approverID
	delete(w.pending, operationID)
	w.mu.Unlock()

	w.audit.Append(models.NewAuditEntryFromOperation(op, false,
		"denied by "+approverID+": "+reason))
	w.logger.Info("operation denied",
		zap.String("operation_id", operationID),
		zap.String("approver_id", approverID),
		zap.String("reason", reason))
	return true
}

// Complete closes an active operation with the given outcome. Unknown ids
// are a no-op.
func (w *Workflow) Complete(operationID string, success bool, details string) {
	w.mu.Lock()
	op, ok := w.active[operationID]
	if ok {
		delete(w.active, operationID)
	}
	w.mu.Unlock()

	if !ok {
		return
	}

	w.audit.Append(models.NewAuditEntryFromOperation(op, success, details))
	w.logger.Info("operation completed",
		zap.String("operation_id", operationID),
		zap.Bool("success", success))
}

// Pending returns copies of the operations awaiting approval, oldest first
func (w *Workflow) Pending() []models.OperationContext {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedOperations(w.pending)
}

// Active returns copies of the admitted operations, oldest first
func (w *Workflow) Active() []models.OperationContext {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedOperations(w.active)
}

// Counts returns the pending and active set sizes
func (w *Workflow) Counts() (pending, active int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending), len(w.active)
}

// BudgetUsage reports risk-budget consumption in the current window
func (w *Workflow) BudgetUsage() (used, remaining int) {
	return w.riskBudget.Used(), w.riskBudget.Remaining()
}

func sortedOperations(m map[string]*models.OperationContext) []models.OperationContext {
	out := make([]models.OperationContext, 0, len(m))
	for _, op := range m {
		out = append(out, *op)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
