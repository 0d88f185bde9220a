package procstats

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/miere/malka/internal/logging"
	"github.com/miere/malka/internal/metrics"
	"github.com/rs/zerolog"
)

// Run periodically samples process CPU and memory usage and publishes
// them to the metrics package's gauges, until ctx is cancelled.
func Run(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	cpuMonitor := NewMonitor(logger.With().Str("component", "procstats").Logger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer logging.RecoverPanic(logger, "procstats.Run", nil)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sample(cpuMonitor, logger)
			}
		}
	}()

	<-ctx.Done()
	wg.Wait()
}

func sample(cpuMonitor *Monitor, logger zerolog.Logger) {
	if pct, err := cpuMonitor.Percent(); err == nil {
		metrics.CPUPercent.Set(pct)
	} else {
		logger.Debug().Err(err).Msg("cpu sample failed")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	metrics.MemoryBytes.Set(float64(mem.Alloc))
}
