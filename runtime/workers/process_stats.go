package workers

import (
	"chat-gateway/contract"
	"chat-gateway/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

const DefaultStatsInterval = 5 * time.Second

// ProcessStatsWorker samples the gateway's own process and the registry size
// into the Prometheus gauges.
type ProcessStatsWorker struct {
	log      *slog.Logger
	registry contract.IRegistry
	metrics  *observability.Metrics
	interval time.Duration
}

func NewProcessStatsWorker(
	log *slog.Logger,
	registry contract.IRegistry,
	metrics *observability.Metrics,
	interval time.Duration,
) *ProcessStatsWorker {
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	return &ProcessStatsWorker{log: log, registry: registry, metrics: metrics, interval: interval}
}

func (w *ProcessStatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sample(p)
		}
	}
}

func (w *ProcessStatsWorker) sample(p *process.Process) {
	w.metrics.ActiveConnections.Set(float64(w.registry.Count()))
	w.metrics.LiveRooms.Set(float64(len(w.registry.Rooms())))

	rss, cpu, err := selfStats(p)
	if err != nil {
		w.log.Debug("Failed to collect self stats", "error", err)
		return
	}
	w.metrics.ProcessRSSBytes.Set(float64(rss))
	w.metrics.ProcessCPUPercent.Set(cpu)
}

func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
