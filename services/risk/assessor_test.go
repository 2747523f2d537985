package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/upb/safety-control-plane/models"
)

func TestAssess(t *testing.T) {
	assessor := NewAssessor(0)

	tests := []struct {
		name     string
		action   string
		resource string
		rc       models.RiskContext
		want     models.RiskLevel
	}{
		{
			name:     "zero factors",
			action:   "read",
			resource: "/home/user/file.txt",
			want:     models.RiskLow,
		},
		{
			name:     "network resource only",
			action:   "read",
			resource: "http://example.com",
			want:     models.RiskMedium,
		},
		{
			name:     "large file only",
			action:   "read",
			resource: "/home/user/big.bin",
			rc:       models.RiskContext{FileSize: 200 * 1024 * 1024},
			want:     models.RiskMedium,
		},
		{
			name:     "high risk action alone forces HIGH",
			action:   "delete",
			resource: "/home/user/file.txt",
			want:     models.RiskHigh,
		},
		{
			name:     "two factors",
			action:   "execute",
			resource: "https://example.com/run",
			want:     models.RiskHigh,
		},
		{
			name:     "system resource alone forces CRITICAL",
			action:   "read",
			resource: "/etc/hosts",
			want:     models.RiskCritical,
		},
		{
			name:     "system resource plus action",
			action:   "delete",
			resource: "/system/etc/passwd",
			want:     models.RiskCritical,
		},
		{
			name:     "three factors",
			action:   "install",
			resource: "http://downloads.example.com/tool",
			rc:       models.RiskContext{FileSize: 300 * 1024 * 1024},
			want:     models.RiskCritical,
		},
		{
			name:     "action case insensitive",
			action:   "DELETE",
			resource: "note",
			want:     models.RiskHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, assessor.Assess(tt.action, tt.resource, tt.rc))
		})
	}
}

func TestAssessFactors(t *testing.T) {
	assessor := NewAssessor(0)

	level, factors := assessor.AssessFactors("delete", "https://example.com/x", models.RiskContext{})
	assert.Equal(t, models.RiskHigh, level)
	assert.ElementsMatch(t, []string{FactorHighRiskAction, FactorNetworkResource}, factors)

	level, factors = assessor.AssessFactors("read", "/home/u/f", models.RiskContext{})
	assert.Equal(t, models.RiskLow, level)
	assert.Empty(t, factors)
}

func TestCustomLargeFileThreshold(t *testing.T) {
	assessor := NewAssessor(1024)

	level := assessor.Assess("read", "/home/user/small.bin", models.RiskContext{FileSize: 2048})
	assert.Equal(t, models.RiskMedium, level)

	level = assessor.Assess("read", "/home/user/small.bin", models.RiskContext{FileSize: 512})
	assert.Equal(t, models.RiskLow, level)
}
