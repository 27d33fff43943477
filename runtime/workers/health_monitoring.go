package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// SelfStats receives the gateway's own resource usage samples.
type SelfStats interface {
	SetSelfStats(cpuPercent float64, rssBytes uint64)
}

// HealthMonitoringWorker samples the gateway process on a fixed
// interval and feeds the monitoring endpoint.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	stats          SelfStats
	metricInterval time.Duration
}

func NewHealthMonitoringWorker(log *slog.Logger, stats SelfStats, metricInterval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{log: log, stats: stats, metricInterval: metricInterval}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health sampling")
			return nil
		case <-ticker.C:
			cpu, err := self.CPUPercent()
			if err != nil {
				w.log.Error("Error while finding process cpu usage", "err", err)
				continue
			}
			mem, err := self.MemoryInfo()
			if err != nil {
				w.log.Error("Error while finding process ram usage", "err", err)
				continue
			}
			w.stats.SetSelfStats(cpu, mem.RSS)
		}
	}
}
