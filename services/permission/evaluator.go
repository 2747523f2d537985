// Package permission implements the layered allow/block permission check.
// Evaluation is pure: it reads the active policy and the emergency-stop
// flag and produces a decision without side effects, so it is safe to call
// from any number of goroutines.
package permission

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/upb/safety-control-plane/models"
	"github.com/upb/safety-control-plane/services/emergency"
)

// Reason strings returned with decisions. Callers match on these, so they
// are part of the API surface.
const (
	ReasonEmergencyStop  = "Emergency stop active"
	ReasonNoActivePolicy = "No active security policy"
	ReasonFullAccess     = "Full access override"
	ReasonGranted        = "Permission granted"
)

// PolicyProvider supplies the active security policy
type PolicyProvider interface {
	Active() (models.SecurityPolicy, bool)
}

// Evaluator decides whether a (user, action, resource) triple is permitted
// under the active policy
type Evaluator struct {
	policies  PolicyProvider
	emergency *emergency.State
}

// NewEvaluator creates an Evaluator
func NewEvaluator(policies PolicyProvider, state *emergency.State) *Evaluator {
	return &Evaluator{
		policies:  policies,
		emergency: state,
	}
}

// Check evaluates the layered rules in order: emergency stop, active
// policy presence, full-access bypass, blocked actions, allowed actions,
// domain rules, path rules. The block lists take priority over the allow
// lists.
func (e *Evaluator) Check(userID, action, resource string, level models.PermissionLevel) (bool, string) {
	if e.emergency.Active() {
		return false, ReasonEmergencyStop
	}

	policy, ok := e.policies.Active()
	if !ok {
		return false, ReasonNoActivePolicy
	}

	// Break-glass escalation: bypasses every remaining rule. The approval
	// workflow audits and rate-limits this path separately.
	if level == models.PermissionFullAccess {
		return true, ReasonFullAccess
	}

	if policy.IsActionBlocked(action) {
		return false, "Action '" + action + "' is blocked by policy"
	}
	if !policy.IsActionAllowed(action) {
		return false, "Action '" + action + "' is not in the allowed actions list"
	}

	if isURL(resource) {
		return checkDomain(policy, resource)
	}
	if isPath(resource) {
		return checkPath(policy, resource)
	}

	return true, ReasonGranted
}

func isURL(resource string) bool {
	return strings.HasPrefix(resource, "http")
}

func isPath(resource string) bool {
	return strings.HasPrefix(resource, "/") || strings.ContainsAny(resource, `/\`)
}

// checkDomain applies blocked-domain substrings first, then the allow list
func checkDomain(policy models.SecurityPolicy, resource string) (bool, string) {
	parsed, err := url.Parse(resource)
	if err != nil || parsed.Hostname() == "" {
		return false, "Unparseable URL resource"
	}
	domain := strings.ToLower(parsed.Hostname())

	for _, blocked := range policy.BlockedDomains {
		if blocked != "" && strings.Contains(domain, strings.ToLower(blocked)) {
			return false, "Domain '" + domain + "' is blocked by policy"
		}
	}

	if len(policy.AllowedDomains) > 0 {
		for _, allowed := range policy.AllowedDomains {
			if allowed != "" && strings.Contains(domain, strings.ToLower(allowed)) {
				return true, ReasonGranted
			}
		}
		return false, "Domain '" + domain + "' is not in the allowed domains list"
	}

	return true, ReasonGranted
}

// checkPath resolves the resource to an absolute path and applies prefix
// rules, block list first
func checkPath(policy models.SecurityPolicy, resource string) (bool, string) {
	abs, err := filepath.Abs(resource)
	if err != nil {
		return false, "Unresolvable path resource"
	}

	for _, blocked := range policy.BlockedPaths {
		if blocked != "" && strings.HasPrefix(abs, blocked) {
			return false, "Path '" + abs + "' is blocked by policy"
		}
	}

	if len(policy.AllowedPaths) > 0 {
		for _, allowed := range policy.AllowedPaths {
			if allowed != "" && strings.HasPrefix(abs, allowed) {
				return true, ReasonGranted
			}
		}
		return false, "Path '" + abs + "' is not in the allowed paths list"
	}

	return true, ReasonGranted
}
