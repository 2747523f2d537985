package safety

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/safety-control-plane/internal/shared"
	"github.com/upb/safety-control-plane/models"
	"github.com/upb/safety-control-plane/services/approval"
	"github.com/upb/safety-control-plane/services/audit"
	"github.com/upb/safety-control-plane/services/emergency"
	"github.com/upb/safety-control-plane/services/permission"
	"github.com/upb/safety-control-plane/services/policy"
	"github.com/upb/safety-control-plane/services/risk"
	"go.uber.org/zap"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()

	logger := zap.NewNop()
	store := policy.NewStore(filepath.Join(t.TempDir(), "policies.json"), logger)
	require.NoError(t, store.Load(context.Background()))

	state := emergency.NewState()
	auditSvc := audit.NewService(audit.DefaultConfig(), logger)
	evaluator := permission.NewEvaluator(store, state)
	assessor := risk.NewAssessor(0)
	confirm := approval.ConfirmerFunc(func(context.Context, string) (bool, error) { return true, nil })
	workflow := approval.NewWorkflow(approval.DefaultConfig(), store, evaluator, assessor, auditSvc, logger, approval.WithConfirmer(confirm))

	return NewController(store, workflow, auditSvc, state, nil, nil, logger)
}

func TestControllerOperationLifecycle(t *testing.T) {
	c := newTestController(t)

	res := c.RequestOperation(context.Background(), "alice", "read", "/tmp/data.txt", models.RiskContext{}, models.PermissionStandard)
	require.True(t, res.Allowed)
	require.NotEmpty(t, res.OperationID)

	active := c.ActiveOperations()
	require.Len(t, active, 1)
	assert.Equal(t, res.OperationID, active[0].OperationID)

	c.CompleteOperation(res.OperationID, true, "done")
	assert.Empty(t, c.ActiveOperations())

	trail := c.AuditTrail(audit.Filter{UserID: "alice"})
	assert.Len(t, trail, 2)
}

func TestControllerApprovalPath(t *testing.T) {
	c := newTestController(t)
	require.NoError(t, c.UpdatePolicy(context.Background(), "admin", "default", models.PolicyUpdate{
		RequireApproval: boolPtr(true),
	}))

	res := c.RequestOperation(context.Background(), "alice", "write", "/tmp/out", models.RiskContext{}, models.PermissionStandard)
	require.False(t, res.Allowed)
	require.NotEmpty(t, res.OperationID)
	require.Len(t, c.PendingApprovals(), 1)

	require.NoError(t, c.ApproveOperation(res.OperationID, "admin"))
	assert.ErrorIs(t, c.ApproveOperation(res.OperationID, "admin"), shared.ErrOperationNotFound)
	assert.Empty(t, c.PendingApprovals())
	assert.Len(t, c.ActiveOperations(), 1)
}

func TestControllerEmergencyStopAndResume(t *testing.T) {
	c := newTestController(t)

	c.EmergencyStop("admin", "incident response")
	res := c.RequestOperation(context.Background(), "alice", "read", "/tmp/x", models.RiskContext{}, models.PermissionStandard)
	assert.False(t, res.Allowed)

	status := c.Status()
	assert.True(t, status.EmergencyStop)
	assert.Equal(t, "incident response", status.EmergencyReason)
	require.NotNil(t, status.EmergencySince)

	// re-engaging does not duplicate the audit entry
	c.EmergencyStop("admin", "still down")
	assert.Len(t, c.AuditTrail(audit.Filter{Action: models.AuditActionEmergencyStop}), 1)

	c.EmergencyResume("admin")
	assert.False(t, c.Status().EmergencyStop)
	assert.Len(t, c.AuditTrail(audit.Filter{Action: models.AuditActionEmergencyResume}), 1)

	res = c.RequestOperation(context.Background(), "alice", "read", "/tmp/x", models.RiskContext{}, models.PermissionStandard)
	assert.True(t, res.Allowed)
}

func TestControllerPolicyManagement(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	strict := models.DefaultPolicy()
	strict.Name = "strict"
	strict.BlockedActions = append(strict.BlockedActions, "write")
	require.NoError(t, c.CreatePolicy(ctx, "admin", strict))
	assert.ErrorIs(t, c.CreatePolicy(ctx, "admin", strict), shared.ErrPolicyExists)

	require.NoError(t, c.SetPolicy(ctx, "admin", "strict"))
	assert.ErrorIs(t, c.SetPolicy(ctx, "admin", "missing"), shared.ErrPolicyNotFound)
	assert.Equal(t, "strict", c.Status().ActivePolicy)

	res := c.RequestOperation(ctx, "alice", "write", "/tmp/x", models.RiskContext{}, models.PermissionStandard)
	assert.False(t, res.Allowed)

	policies := c.Policies()
	assert.Len(t, policies, 2)

	got, ok := c.Policy("strict")
	require.True(t, ok)
	assert.Contains(t, got.BlockedActions, "write")

	changes := c.AuditTrail(audit.Filter{Action: models.AuditActionPolicyChanged})
	assert.Len(t, changes, 2)
}

func TestControllerStatusSnapshot(t *testing.T) {
	c := newTestController(t)

	status := c.Status()
	assert.False(t, status.EmergencyStop)
	assert.Equal(t, "default", status.ActivePolicy)
	assert.Zero(t, status.PendingApprovals)
	assert.Zero(t, status.ActiveOperations)
	assert.Nil(t, status.ResourceUsage)
	assert.Nil(t, status.Monitors)

	res := c.RequestOperation(context.Background(), "alice", "delete", "/tmp/x", models.RiskContext{}, models.PermissionStandard)
	require.True(t, res.Allowed)

	status = c.Status()
	assert.Equal(t, 1, status.ActiveOperations)
	assert.Equal(t, 1, status.RiskBudgetUsed)
	assert.Positive(t, status.AuditEntries)
}

func TestControllerStartStop(t *testing.T) {
	c := newTestController(t)

	require.NoError(t, c.Start(context.Background()))
	c.RequestOperation(context.Background(), "alice", "read", "/tmp/x", models.RiskContext{}, models.PermissionStandard)
	require.NoError(t, c.Stop(time.Second))
}

func boolPtr(b bool) *bool { return &b }
