// Package subscriber implements Subscriber (C4): the per-slot main loop
// that polls a batch, dispatches it, and commits or rolls back.
package subscriber

import (
	"context"
	"sync/atomic"

	"github.com/miere/malka/internal/config"
	"github.com/miere/malka/internal/kafka"
	"github.com/miere/malka/internal/listener"
	"github.com/miere/malka/internal/logging"
	"github.com/miere/malka/internal/metrics"
	"github.com/rs/zerolog"
)

// Subscriber drives one (topic, function, slot) loop: poll, buffer,
// dispatch, commit/rollback, observing a shared cancellation flag.
type Subscriber struct {
	batcher  kafka.Batcher
	listener listener.Listener
	flag     *atomic.Bool

	topic    string
	function string
	slot     int
	identity config.GroupIdentity

	logger zerolog.Logger
}

// New builds a Subscriber. flag must start true; the SubscriptionManager
// flips it to false (release ordering, via atomic.Bool.Store) to request
// shutdown.
func New(batcher kafka.Batcher, l listener.Listener, flag *atomic.Bool, topic, function string, slot int, identity config.GroupIdentity, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		batcher:  batcher,
		listener: l,
		flag:     flag,
		topic:    topic,
		function: function,
		slot:     slot,
		identity: identity,
		logger: logger.With().
			Str("component", "subscriber").
			Str("topic", topic).
			Str("function", function).
			Int("slot", slot).
			Str("group_id", identity.GroupID).
			Str("group_instance_id", identity.GroupInstanceID).
			Logger(),
	}
}

// MainLoop runs until the cancellation flag is observed false (acquire
// ordering, via atomic.Bool.Load) at the top of an iteration, or ctx is
// cancelled. It does not attempt to cancel an in-flight poll or dispatch.
func (s *Subscriber) MainLoop(ctx context.Context) {
	defer logging.RecoverPanic(s.logger, "subscriber.MainLoop", map[string]any{
		"topic": s.topic, "function": s.function, "slot": s.slot,
	})

	metrics.ActiveSubscribers.Inc()
	defer metrics.ActiveSubscribers.Dec()

	s.logger.Info().Msg("subscriber starting")
	defer s.logger.Info().Msg("subscriber stopped")

	for s.flag.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batch, err := s.batcher.NextBatch(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("poll failed, rolling back")
			s.rollback(ctx, "poll_failed")
			continue
		}

		if len(batch) == 0 {
			s.logger.Trace().Msg("empty batch, no-op")
			continue
		}

		metrics.RecordsPolled.WithLabelValues(s.topic).Add(float64(len(batch)))
		metrics.BatchesDispatched.WithLabelValues(s.topic, s.function).Inc()
		metrics.BatchSize.WithLabelValues(s.topic).Observe(float64(len(batch)))
		s.logger.Debug().Int("batch_size", len(batch)).Msg("batch received")

		outcome := s.listener.Consume(ctx, batch)
		if reason, failed := outcome.Failed(); failed {
			s.logger.Error().Str("reason", reason).Msg("dispatch failed, rolling back")
			s.rollback(ctx, "dispatch_failed")
			continue
		}

		if err := s.batcher.Commit(ctx); err != nil {
			logging.Fatal(s.logger, err, "commit failed, offset durability broken", nil)
		}
		metrics.Commits.WithLabelValues(s.topic, s.function).Inc()
	}
}

func (s *Subscriber) rollback(ctx context.Context, cause string) {
	if err := s.batcher.Rollback(ctx); err != nil {
		logging.Fatal(s.logger, err, "rollback failed, offset durability broken", nil)
	}
	metrics.Rollbacks.WithLabelValues(s.topic, s.function, cause).Inc()
}
