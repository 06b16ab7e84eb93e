package output

import (
	"context"
	"time"

	"github.com/wesleyorama2/vuramp/internal/performance/executor"
	"github.com/wesleyorama2/vuramp/internal/performance/metrics"
)

// ProgressSource is what Watch polls. *engine.Engine implements it.
type ProgressSource interface {
	GetMetrics() *metrics.Snapshot
	GetStats() *executor.Stats
	GetProgress() float64
}

// Watch renders the source's progress every interval until ctx is done.
// Terminals get an in-place display, other writers one line per interval.
func Watch(ctx context.Context, c *ConsoleOutput, source ProgressSource, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := source.GetMetrics()
			if snapshot == nil {
				continue
			}
			stats := StatsFromMetrics(snapshot, source.GetStats(), source.GetProgress())
			if c.IsTTY() {
				c.Update(stats)
			} else {
				c.PrintNonInteractiveUpdate(stats)
			}
		}
	}
}
