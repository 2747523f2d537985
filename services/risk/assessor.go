// Package risk scores the danger of a requested operation from a set of
// heuristic factors.
package risk

import (
	"strings"

	"github.com/upb/safety-control-plane/models"
)

// Factor names accumulated during assessment
const (
	FactorHighRiskAction  = "high_risk_action"
	FactorSystemResource  = "system_resource"
	FactorNetworkResource = "network_resource"
	FactorLargeFile       = "large_file"
)

// DefaultLargeFileThreshold is the file size above which the large_file
// factor applies
const DefaultLargeFileThreshold = 100 * 1024 * 1024

var highRiskActions = map[string]struct{}{
	"delete":   {},
	"format":   {},
	"shutdown": {},
	"restart":  {},
	"execute":  {},
	"install":  {},
}

// systemPathPrefixes are reserved host path roots. Touching anything under
// them forces CRITICAL regardless of factor count.
var systemPathPrefixes = []string{
	"/system",
	"/etc",
	"/sys",
	"/proc",
	"/boot",
	"/dev",
	"/windows",
}

// Assessor scores operations
type Assessor struct {
	largeFileThreshold int64
}

// NewAssessor creates an Assessor. A non-positive threshold selects the
// default of 100 MiB.
func NewAssessor(largeFileThreshold int64) *Assessor {
	if largeFileThreshold <= 0 {
		largeFileThreshold = DefaultLargeFileThreshold
	}
	return &Assessor{largeFileThreshold: largeFileThreshold}
}

// Assess returns the risk level for an (action, resource) pair plus
// optional request context
func (a *Assessor) Assess(action, resource string, rc models.RiskContext) models.RiskLevel {
	level, _ := a.AssessFactors(action, resource, rc)
	return level
}

// AssessFactors returns the risk level along with the factor names that
// contributed, for audit detail
func (a *Assessor) AssessFactors(action, resource string, rc models.RiskContext) (models.RiskLevel, []string) {
	var factors []string

	if _, ok := highRiskActions[strings.ToLower(action)]; ok {
		factors = append(factors, FactorHighRiskAction)
	}

	systemResource := false
	for _, prefix := range systemPathPrefixes {
		if strings.HasPrefix(strings.ToLower(resource), prefix) {
			factors = append(factors, FactorSystemResource)
			systemResource = true
			break
		}
	}

	if strings.HasPrefix(resource, "http://") || strings.HasPrefix(resource, "https://") {
		factors = append(factors, FactorNetworkResource)
	}

	if rc.FileSize > a.largeFileThreshold {
		factors = append(factors, FactorLargeFile)
	}

	// A system resource alone forces CRITICAL: this asymmetry is
	// deliberate policy, independent of the factor count.
	switch {
	case len(factors) >= 3 || systemResource:
		return models.RiskCritical, factors
	case len(factors) >= 2 || containsFactor(factors, FactorHighRiskAction):
		return models.RiskHigh, factors
	case len(factors) >= 1:
		return models.RiskMedium, factors
	default:
		return models.RiskLow, factors
	}
}

func containsFactor(factors []string, name string) bool {
	for _, f := range factors {
		if f == name {
			return true
		}
	}
	return false
}
