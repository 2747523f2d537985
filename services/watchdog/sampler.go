package watchdog

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/upb/safety-control-plane/models"
)

// Sampler reads current host resource usage
type Sampler interface {
	Sample(ctx context.Context) (models.ResourceSample, error)
}

// HostSampler samples the local machine
type HostSampler struct {
	diskPath string
}

// NewHostSampler creates a HostSampler. diskPath is the mount point whose
// usage is reported; empty means "/".
func NewHostSampler(diskPath string) *HostSampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostSampler{diskPath: diskPath}
}

// Sample implements Sampler
func (s *HostSampler) Sample(ctx context.Context) (models.ResourceSample, error) {
	sample := models.ResourceSample{SampledAt: time.Now().UTC()}

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return models.ResourceSample{}, err
	}
	if len(percents) > 0 {
		sample.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return models.ResourceSample{}, err
	}
	sample.MemoryPercent = vm.UsedPercent

	usage, err := disk.UsageWithContext(ctx, s.diskPath)
	if err != nil {
		return models.ResourceSample{}, err
	}
	sample.DiskPercent = usage.UsedPercent

	return sample, nil
}
