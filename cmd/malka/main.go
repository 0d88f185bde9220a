// Command malka runs the consumer bridge: it reads one or more
// subscription-descriptor files, fans each out into a fleet of
// topic/function/slot subscribers, and dispatches batches to their
// target AWS Lambda functions until terminated.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/miere/malka/internal/config"
	"github.com/miere/malka/internal/errs"
	"github.com/miere/malka/internal/logging"
	"github.com/miere/malka/internal/manager"
	"github.com/miere/malka/internal/metrics"
	"github.com/miere/malka/internal/procstats"
	_ "go.uber.org/automaxprocs"
)

// shutdownGrace bounds how long main waits for subscribers to observe
// their cancellation flag and finish their current iteration before
// exiting anyway.
const shutdownGrace = 30 * time.Second

func main() {
	if len(os.Args) < 2 {
		bootLogger := logging.New(logging.Options{Level: "info", Format: "json"})
		logging.Fatal(bootLogger, errs.ErrInvalidParameters, "no configuration files supplied", nil)
	}

	bootLogger := logging.New(logging.Options{Level: "info", Format: "json"})
	cfg, err := config.Load(&bootLogger)
	if err != nil {
		logging.Fatal(bootLogger, err, "failed to load configuration", nil)
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.LogConfig(logger)

	descriptors, err := config.LoadDescriptors(os.Args[1:])
	if err != nil {
		logging.Fatal(logger, err, "failed to load subscription descriptors", nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	go func() {
		if err := metrics.Serve(metricsCtx, cfg.MetricsAddr, logger); err != nil {
			logger.Error().Err(err).Msg("metrics server stopped unexpectedly")
		}
	}()
	go procstats.Run(metricsCtx, cfg.MetricsInterval, logger)

	m := manager.New(cfg, logger)

	// Subscribers poll and invoke against a long-lived background context,
	// not `ctx`: per §5 the cancellation flag is the only in-flight
	// cancellation primitive, so an in-progress poll or dispatch is never
	// aborted by the termination signal. `ctx` only gates this function's
	// wait below.
	subscriberCtx := context.Background()

	for _, d := range descriptors {
		if err := m.Subscribe(subscriberCtx, d); err != nil {
			logging.Fatal(logger, err, "failed to subscribe", map[string]any{"topic": d.TopicName})
		}
	}

	logger.Info().Int("descriptors", len(descriptors)).Msg("malka running")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, flipping cancellation flags")
	m.Close()

	done := make(chan struct{})
	go func() {
		m.AwaitTermination()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all subscribers stopped cleanly")
	case <-time.After(shutdownGrace):
		logger.Warn().Dur("grace", shutdownGrace).Msg("shutdown grace period exceeded, exiting anyway")
	}
}
