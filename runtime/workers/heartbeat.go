package workers

import (
	"chat-link/contract"
	"chat-link/domain"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HeartbeatWorker logs the session health and the process footprint at a fixed interval.
type HeartbeatWorker struct {
	log      *slog.Logger
	source   contract.HealthSource
	interval time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, source contract.HealthSource, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, source: source, interval: interval}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			health, err := w.Beat(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			w.log.Info("Heartbeat",
				"channel", health.ChannelState,
				"link", domain.LinkName(health.Link),
				"conversation_id", health.ConversationID,
				"messages", health.Messages,
				"cpu_percent", health.CPU,
				"rss_bytes", health.RAM,
			)
		}
	}
}

// Beat completes the session health with the process statistics.
func (w *HeartbeatWorker) Beat(p *process.Process) (domain.SessionHealth, error) {
	health := w.source.Health()
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return health, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return health, err
	}
	health.PID = p.Pid
	health.RAM = memInfo.RSS
	health.CPU = cpuPercent
	health.At = time.Now()
	return health, nil
}
