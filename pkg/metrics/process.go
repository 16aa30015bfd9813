package metrics

import (
	"context"
	"math"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// SampleProcess updates the memory and CPU gauges from this process every
// interval until ctx is done.
func (m *Metrics) SampleProcess(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("process sampler disabled", zap.Error(err))
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(proc)
		}
	}
}

func (m *Metrics) sample(proc *process.Process) {
	if mem, err := proc.MemoryInfo(); err == nil {
		m.memUsage.Set(float64(mem.RSS / 1024 / 1024))
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		m.cpuUsage.Set(math.Round(cpu*100) / 100)
	}
}
