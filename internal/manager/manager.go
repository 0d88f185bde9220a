// Package manager implements SubscriptionManager (C5): expanding each
// declarative subscription into a fleet of subscribers, launching them,
// tracking their cancellation flags, and joining on shutdown.
package manager

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miere/malka/internal/config"
	"github.com/miere/malka/internal/errs"
	"github.com/miere/malka/internal/kafka"
	"github.com/miere/malka/internal/listener"
	"github.com/miere/malka/internal/subscriber"
	"github.com/rs/zerolog"
)

// Manager owns the fleet of subscriber loops launched by Subscribe calls.
// Per spec §9's documented open question, the flag registry is keyed by
// topic_name only: a descriptor with parallelism > 1 or multiple target
// functions causes later registrations to overwrite earlier ones in the
// map. This is preserved as original, accepted behaviour (see DESIGN.md)
// rather than "fixed" — every task handle is still retained and joined
// regardless of what the map holds, because destruction flips every flag
// object actually referenced by a running subscriber, not just the ones
// reachable from the map.
type Manager struct {
	cfg    *config.Config
	logger zerolog.Logger

	mu    sync.Mutex
	flags map[string]*atomic.Bool // keyed by topic_name only — see above
	live  []*atomic.Bool          // every flag handed to a running subscriber

	wg sync.WaitGroup
}

// New constructs an empty manager. Subscribe must be called at least once
// before AwaitTermination is useful.
func New(cfg *config.Config, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger.With().Str("component", "manager").Logger(),
		flags:  make(map[string]*atomic.Bool),
	}
}

// Subscribe expands descriptor into |target_functions| × parallelism
// subscribers (P7), each with a fresh cancellation flag and its derived
// ConsumerGroupIdentity, and launches each main loop as an independent
// goroutine. If any single subscriber fails to construct, Subscribe
// returns immediately; subscribers already launched for earlier
// (function, slot) pairs within this call remain running — per spec §9's
// second open question, this is accepted rather than compensated with a
// teardown.
func (m *Manager) Subscribe(ctx context.Context, desc config.Descriptor) error {
	brokers := splitBrokers(m.cfg.KafkaBrokers)

	for _, target := range desc.TargetFunctions {
		l, err := listener.NewLambdaListener(ctx, m.cfg, target, m.logger)
		if err != nil {
			return fmt.Errorf("%w: construct listener for %s/%s: %v", errs.ErrBrokerInit, desc.TopicName, target.Name, err)
		}

		for slot := 0; slot < desc.TopicNumberOfConsumers; slot++ {
			identity := config.DeriveIdentity(desc.TopicName, target.Name, slot)

			b, err := kafka.New(kafka.Config{
				Brokers:               brokers,
				SecurityProtocol:      m.cfg.KafkaSecurityProtocol,
				GroupID:               identity.GroupID,
				GroupInstanceID:       identity.GroupInstanceID,
				Topic:                 desc.TopicName,
				MaxSize:               desc.TopicMaxBufferSize,
				MaxAwait:              time.Duration(desc.TopicMaxBufferAwaitTimeMs) * time.Millisecond,
				ConsumerConfiguration: desc.ConsumerConfiguration,
				PollRateLimit:         m.cfg.PollRateLimit,
				Logger:                m.logger,
			})
			if err != nil {
				return fmt.Errorf("subscribe %s/%s/%d: %w", desc.TopicName, target.Name, slot, err)
			}

			flag := &atomic.Bool{}
			flag.Store(true)

			m.mu.Lock()
			m.flags[desc.TopicName] = flag // deliberate overwrite, see type doc
			m.live = append(m.live, flag)
			m.mu.Unlock()

			sub := subscriber.New(b, l, flag, desc.TopicName, target.Name, slot, identity, m.logger)

			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				defer b.Close()
				sub.MainLoop(ctx)
			}()
		}
	}

	return nil
}

// AwaitTermination blocks until every launched subscriber goroutine has
// returned. Intended to be called once, after all Subscribe calls.
func (m *Manager) AwaitTermination() {
	m.wg.Wait()
}

// Close sets every registered cancellation flag to false with release
// ordering (via atomic.Bool.Store). It does not itself join the
// subscriber goroutines — callers needing a clean shutdown call
// AwaitTermination afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, flag := range m.live {
		flag.Store(false)
	}
}

func splitBrokers(csv string) []string {
	var out []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
