package models

import "time"

// ResourceSample is a point-in-time snapshot of host resource usage
type ResourceSample struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	SampledAt     time.Time `json:"sampled_at"`
}

// FileVerdict is the outcome of inspecting one newly arrived file.
// Verdicts are logged, not persisted.
type FileVerdict struct {
	Path   string `json:"path"`
	Kept   bool   `json:"kept"`
	Reason string `json:"reason"`
}
