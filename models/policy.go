package models

import "time"

// RiskThreshold represents the configured tolerance of a policy
type RiskThreshold string

const (
	RiskThresholdLow      RiskThreshold = "low"
	RiskThresholdMedium   RiskThreshold = "medium"
	RiskThresholdHigh     RiskThreshold = "high"
	RiskThresholdCritical RiskThreshold = "critical"
)

// SecurityPolicy represents a named bundle of allow/block rules and limits.
// Policies are immutable value objects: callers replace them wholesale on
// update, they are never mutated in place.
type SecurityPolicy struct {
	Name                    string        `json:"name" db:"name"`
	Description             string        `json:"description" db:"description"`
	AllowedActions          []string      `json:"allowed_actions" db:"allowed_actions"`
	BlockedActions          []string      `json:"blocked_actions" db:"blocked_actions"`
	AllowedDomains          []string      `json:"allowed_domains" db:"allowed_domains"`
	BlockedDomains          []string      `json:"blocked_domains" db:"blocked_domains"`
	AllowedPaths            []string      `json:"allowed_paths" db:"allowed_paths"`
	BlockedPaths            []string      `json:"blocked_paths" db:"blocked_paths"`
	MaxFileSize             int64         `json:"max_file_size" db:"max_file_size"`
	MaxOperationsPerMinute  int           `json:"max_operations_per_minute" db:"max_operations_per_minute"`
	MaxConcurrentOperations int           `json:"max_concurrent_operations" db:"max_concurrent_operations"`
	RequireApproval         bool          `json:"require_approval" db:"require_approval"`
	RiskThreshold           RiskThreshold `json:"risk_threshold" db:"risk_threshold"`
	CreatedAt               time.Time     `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at,omitempty" db:"updated_at"`
}

// Clone returns a deep copy of the policy
func (p SecurityPolicy) Clone() SecurityPolicy {
	out := p
	out.AllowedActions = append([]string(nil), p.AllowedActions...)
	out.BlockedActions = append([]string(nil), p.BlockedActions...)
	out.AllowedDomains = append([]string(nil), p.AllowedDomains...)
	out.BlockedDomains = append([]string(nil), p.BlockedDomains...)
	out.AllowedPaths = append([]string(nil), p.AllowedPaths...)
	out.BlockedPaths = append([]string(nil), p.BlockedPaths...)
	return out
}

// IsActionBlocked reports whether action appears in the policy block list
func (p SecurityPolicy) IsActionBlocked(action string) bool {
	for _, a := range p.BlockedActions {
		if a == action {
			return true
		}
	}
	return false
}

// IsActionAllowed reports whether action passes the allow list.
// An empty allow list permits every action.
func (p SecurityPolicy) IsActionAllowed(action string) bool {
	if len(p.AllowedActions) == 0 {
		return true
	}
	for _, a := range p.AllowedActions {
		if a == action {
			return true
		}
	}
	return false
}

// DefaultPolicy returns the hard-coded fallback policy used when no
// configuration exists or the configuration cannot be read.
func DefaultPolicy() SecurityPolicy {
	now := time.Now()
	return SecurityPolicy{
		Name:        "default",
		Description: "Default safety policy",
		BlockedActions: []string{
			"format",
			"shutdown",
			"restart",
		},
		BlockedDomains: []string{
			"malware.com",
			"phishing.com",
		},
		BlockedPaths: []string{
			"/etc",
			"/sys",
			"/boot",
			"/system",
		},
		MaxFileSize:             100 * 1024 * 1024,
		MaxOperationsPerMinute:  60,
		MaxConcurrentOperations: 10,
		RequireApproval:         false,
		RiskThreshold:           RiskThresholdMedium,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

// PolicyUpdate enumerates the fields of a SecurityPolicy that may be
// changed after creation. Nil fields are left untouched. Using an explicit
// structure (rather than a name/value map) makes unknown or mistyped
// fields fail at decode time instead of being silently dropped.
type PolicyUpdate struct {
	Description             *string        `json:"description,omitempty"`
	AllowedActions          *[]string      `json:"allowed_actions,omitempty"`
	BlockedActions          *[]string      `json:"blocked_actions,omitempty"`
	AllowedDomains          *[]string      `json:"allowed_domains,omitempty"`
	BlockedDomains          *[]string      `json:"blocked_domains,omitempty"`
	AllowedPaths            *[]string      `json:"allowed_paths,omitempty"`
	BlockedPaths            *[]string      `json:"blocked_paths,omitempty"`
	MaxFileSize             *int64         `json:"max_file_size,omitempty"`
	MaxOperationsPerMinute  *int           `json:"max_operations_per_minute,omitempty"`
	MaxConcurrentOperations *int           `json:"max_concurrent_operations,omitempty"`
	RequireApproval         *bool          `json:"require_approval,omitempty"`
	RiskThreshold           *RiskThreshold `json:"risk_threshold,omitempty"`
}

// Apply returns a copy of policy with the non-nil update fields applied
func (u PolicyUpdate) Apply(policy SecurityPolicy) SecurityPolicy {
	out := policy.Clone()
	if u.Description != nil {
		out.Description = *u.Description
	}
	if u.AllowedActions != nil {
		out.AllowedActions = append([]string(nil), (*u.AllowedActions)...)
	}
	if u.BlockedActions != nil {
		out.BlockedActions = append([]string(nil), (*u.BlockedActions)...)
	}
	if u.AllowedDomains != nil {
		out.AllowedDomains = append([]string(nil), (*u.AllowedDomains)...)
	}
	if u.BlockedDomains != nil {
		out.BlockedDomains = append([]string(nil), (*u.BlockedDomains)...)
	}
	if u.AllowedPaths != nil {
		out.AllowedPaths = append([]string(nil), (*u.AllowedPaths)...)
	}
	if u.BlockedPaths != nil {
		out.BlockedPaths = append([]string(nil), (*u.BlockedPaths)...)
	}
	if u.MaxFileSize != nil {
		out.MaxFileSize = *u.MaxFileSize
	}
	if u.MaxOperationsPerMinute != nil {
		out.MaxOperationsPerMinute = *u.MaxOperationsPerMinute
	}
	if u.MaxConcurrentOperations != nil {
		out.MaxConcurrentOperations = *u.MaxConcurrentOperations
	}
	if u.RequireApproval != nil {
		out.RequireApproval = *u.RequireApproval
	}
	if u.RiskThreshold != nil {
		out.RiskThreshold = *u.RiskThreshold
	}
	out.UpdatedAt = time.Now()
	return out
}
