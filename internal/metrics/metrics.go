// Package metrics exposes Prometheus instrumentation for the bridge,
// scraped the same way the teacher's metrics.go exposes its WebSocket
// server metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	RecordsPolled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "malka_records_polled_total",
		Help: "Total records accumulated into batches, by topic.",
	}, []string{"topic"})

	BatchesDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "malka_batches_dispatched_total",
		Help: "Total non-empty batches handed to a listener, by topic and function.",
	}, []string{"topic", "function"})

	BatchSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "malka_batch_size",
		Help:    "Distribution of batch sizes handed to a listener.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	}, []string{"topic"})

	DispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "malka_dispatch_duration_seconds",
		Help:    "Remote function invocation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"function"})

	Commits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "malka_commits_total",
		Help: "Total successful offset commits, by topic and function.",
	}, []string{"topic", "function"})

	Rollbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "malka_rollbacks_total",
		Help: "Total rollbacks, by topic, function and cause.",
	}, []string{"topic", "function", "cause"})

	HandlerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "malka_handler_errors_total",
		Help: "Total handler-reported errors that were nonetheless committed (P6).",
	}, []string{"function"})

	ActiveSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "malka_active_subscribers",
		Help: "Current number of running subscriber loops.",
	})

	CPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "malka_process_cpu_percent",
		Help: "Container-aware process CPU usage percentage.",
	})

	MemoryBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "malka_process_memory_bytes",
		Help: "Bytes of allocated heap objects reported by the Go runtime.",
	})
)

func init() {
	prometheus.MustRegister(
		RecordsPolled,
		BatchesDispatched,
		BatchSize,
		DispatchDuration,
		Commits,
		Rollbacks,
		HandlerErrors,
		ActiveSubscribers,
		CPUPercent,
		MemoryBytes,
	)
}

// Serve starts the /metrics HTTP endpoint and blocks until ctx is
// cancelled, at which point it shuts the server down gracefully.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return server.Close()
	case err := <-errCh:
		return err
	}
}
