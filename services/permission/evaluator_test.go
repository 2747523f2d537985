package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/upb/safety-control-plane/models"
	"github.com/upb/safety-control-plane/services/emergency"
)

// staticPolicies implements PolicyProvider around a fixed policy
type staticPolicies struct {
	policy models.SecurityPolicy
	ok     bool
}

func (s staticPolicies) Active() (models.SecurityPolicy, bool) {
	return s.policy, s.ok
}

func newEvaluator(policy models.SecurityPolicy) (*Evaluator, *emergency.State) {
	state := emergency.NewState()
	return NewEvaluator(staticPolicies{policy: policy, ok: true}, state), state
}

func TestEmergencyStopDeniesEverything(t *testing.T) {
	eval, state := newEvaluator(models.DefaultPolicy())
	state.Activate("test")

	allowed, reason := eval.Check("alice", "read", "/tmp/file", models.PermissionStandard)
	assert.False(t, allowed)
	assert.Equal(t, ReasonEmergencyStop, reason)

	// even full access is denied under emergency stop
	allowed, _ = eval.Check("alice", "read", "/tmp/file", models.PermissionFullAccess)
	assert.False(t, allowed)

	state.Resume()
	allowed, _ = eval.Check("alice", "read", "/tmp/file", models.PermissionStandard)
	assert.True(t, allowed)
}

func TestNoActivePolicy(t *testing.T) {
	eval := NewEvaluator(staticPolicies{ok: false}, emergency.NewState())

	allowed, reason := eval.Check("alice", "read", "/tmp/file", models.PermissionStandard)
	assert.False(t, allowed)
	assert.Equal(t, ReasonNoActivePolicy, reason)
}

func TestBlockedActionsDeniedRegardlessOfAllowList(t *testing.T) {
	policy := models.DefaultPolicy()
	policy.AllowedActions = []string{"delete", "read"}
	policy.BlockedActions = []string{"delete"}
	eval, _ := newEvaluator(policy)

	allowed, reason := eval.Check("alice", "delete", "/tmp/file", models.PermissionStandard)
	assert.False(t, allowed)
	assert.Contains(t, reason, "blocked")
}

func TestFullAccessBypassesBlockList(t *testing.T) {
	policy := models.DefaultPolicy()
	policy.BlockedActions = []string{"delete"}
	eval, _ := newEvaluator(policy)

	allowed, reason := eval.Check("alice", "delete", "/tmp/file", models.PermissionFullAccess)
	assert.True(t, allowed)
	assert.Equal(t, ReasonFullAccess, reason)
}

func TestAllowListRestrictsActions(t *testing.T) {
	policy := models.DefaultPolicy()
	policy.AllowedActions = []string{"read"}
	eval, _ := newEvaluator(policy)

	allowed, _ := eval.Check("alice", "read", "note", models.PermissionStandard)
	assert.True(t, allowed)

	allowed, reason := eval.Check("alice", "write", "note", models.PermissionStandard)
	assert.False(t, allowed)
	assert.Contains(t, reason, "not in the allowed actions")
}

func TestDomainRules(t *testing.T) {
	tests := []struct {
		name     string
		policy   func() models.SecurityPolicy
		resource string
		allowed  bool
	}{
		{
			name: "blocked domain substring",
			policy: func() models.SecurityPolicy {
				p := models.DefaultPolicy()
				p.BlockedDomains = []string{"malware.com"}
				return p
			},
			resource: "http://cdn.malware.com/payload",
			allowed:  false,
		},
		{
			name: "allow list match",
			policy: func() models.SecurityPolicy {
				p := models.DefaultPolicy()
				p.AllowedDomains = []string{"example.com"}
				return p
			},
			resource: "https://www.example.com/page",
			allowed:  true,
		},
		{
			name: "allow list miss",
			policy: func() models.SecurityPolicy {
				p := models.DefaultPolicy()
				p.AllowedDomains = []string{"example.com"}
				return p
			},
			resource: "https://other.org/page",
			allowed:  false,
		},
		{
			name: "block beats allow",
			policy: func() models.SecurityPolicy {
				p := models.DefaultPolicy()
				p.AllowedDomains = []string{"example.com"}
				p.BlockedDomains = []string{"evil.example.com"}
				return p
			},
			resource: "https://evil.example.com/x",
			allowed:  false,
		},
		{
			name:     "no domain rules",
			policy:   func() models.SecurityPolicy { p := models.DefaultPolicy(); p.BlockedDomains = nil; return p },
			resource: "http://anything.net",
			allowed:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval, _ := newEvaluator(tt.policy())
			allowed, _ := eval.Check("alice", "read", tt.resource, models.PermissionStandard)
			assert.Equal(t, tt.allowed, allowed)
		})
	}
}

func TestPathRules(t *testing.T) {
	tests := []struct {
		name     string
		policy   func() models.SecurityPolicy
		resource string
		allowed  bool
	}{
		{
			name:     "blocked path prefix",
			policy:   models.DefaultPolicy,
			resource: "/etc/passwd",
			allowed:  false,
		},
		{
			name:     "path outside block list",
			policy:   models.DefaultPolicy,
			resource: "/home/alice/notes.txt",
			allowed:  true,
		},
		{
			name: "allow list restricts paths",
			policy: func() models.SecurityPolicy {
				p := models.DefaultPolicy()
				p.AllowedPaths = []string{"/home/alice"}
				return p
			},
			resource: "/home/bob/secret",
			allowed:  false,
		},
		{
			name: "allow list match",
			policy: func() models.SecurityPolicy {
				p := models.DefaultPolicy()
				p.AllowedPaths = []string{"/home/alice"}
				return p
			},
			resource: "/home/alice/ok.txt",
			allowed:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval, _ := newEvaluator(tt.policy())
			allowed, _ := eval.Check("alice", "read", tt.resource, models.PermissionStandard)
			assert.Equal(t, tt.allowed, allowed)
		})
	}
}

func TestOpaqueResourceAllowed(t *testing.T) {
	eval, _ := newEvaluator(models.DefaultPolicy())

	allowed, reason := eval.Check("alice", "read", "session-token", models.PermissionStandard)
	assert.True(t, allowed)
	assert.Equal(t, ReasonGranted, reason)
}
