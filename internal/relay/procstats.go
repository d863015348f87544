package relay

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
)

// ResourceSampler reports CPU and memory use of a running relay.
type ResourceSampler interface {
	Sample(ctx context.Context, pid int) (cpuPercent float64, rssBytes uint64, err error)
}

type gopsutilSampler struct{}

func (gopsutilSampler) Sample(ctx context.Context, pid int) (float64, uint64, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid)) //nolint:gosec
	if err != nil {
		return 0, 0, err
	}
	cpu, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return cpu, 0, err
	}
	return cpu, mem.RSS, nil
}
