// Package kafka implements ConsumerBatcher (C2): a broker-backed producer
// of size/time-bounded record batches, with commit and rollback over
// offsets.
package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/miere/malka/internal/errs"
	"github.com/miere/malka/internal/record"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// pollUnit bounds a single broker poll call, so next_batch's remaining
// time budget is always re-checked at a fine enough grain (I3).
const pollUnit = 250 * time.Millisecond

// Batcher is the capability set the Subscriber depends on: poll a bounded
// batch, commit, or roll back. Implemented by ConsumerBatcher; test
// doubles implement it directly for subscriber unit tests (spec §9).
type Batcher interface {
	NextBatch(ctx context.Context) ([]record.Record, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close()
}

// Config carries everything ConsumerBatcher.New needs to construct and
// subscribe a broker client for one (topic, function, slot) subscriber.
type Config struct {
	Brokers               []string
	SecurityProtocol      string
	GroupID               string
	GroupInstanceID       string
	Topic                 string
	MaxSize               int
	MaxAwait              time.Duration
	ConsumerConfiguration map[string]string
	PollRateLimit         int
	Logger                zerolog.Logger
}

// ConsumerBatcher wraps github.com/twmb/franz-go/pkg/kgo (broker client)
// and pkg/kadm (offset admin queries for rollback).
type ConsumerBatcher struct {
	client  *kgo.Client
	admin   *kadm.Client
	topic   string
	groupID string
	maxSize int
	maxWait time.Duration
	pacer   *Pacer
	logger  zerolog.Logger

	mu       sync.Mutex
	assigned map[int32]struct{}
}

// New constructs a broker client from cfg, subscribes it to exactly one
// topic, and stores the batch limits. Auto-commit is always disabled: the
// Subscriber owns offset durability via Commit/Rollback.
func New(cfg Config) (*ConsumerBatcher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: at least one broker is required", errs.ErrBrokerInit)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("%w: topic is required", errs.ErrBrokerInit)
	}

	b := &ConsumerBatcher{
		topic:    cfg.Topic,
		groupID:  cfg.GroupID,
		maxSize:  cfg.MaxSize,
		maxWait:  cfg.MaxAwait,
		pacer:    NewPacer(cfg.PollRateLimit),
		logger:   cfg.Logger,
		assigned: make(map[int32]struct{}),
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.InstanceID(cfg.GroupInstanceID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
		// Mirror the descriptor's own bounds (§4.5 step 3) into the broker's
		// fetch hints, rather than a fixed constant: the broker is told to
		// wait no longer than the batch's own time budget, and to fetch no
		// more than a size proportional to its record-count budget.
		kgo.FetchMaxWait(cfg.MaxAwait),
		kgo.FetchMaxBytes(fetchMaxBytes(cfg.MaxSize)),
		kgo.SessionTimeout(30 * time.Second),
		kgo.RebalanceTimeout(60 * time.Second),
		kgo.OnPartitionsAssigned(b.onAssigned),
		kgo.OnPartitionsRevoked(b.onRevoked),
		kgo.OnPartitionsLost(b.onRevoked),
	}
	opts = append(opts, securityOpts(cfg.SecurityProtocol)...)
	opts = append(opts, overrideOpts(cfg.ConsumerConfiguration, cfg.Logger)...)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrBrokerInit, err)
	}

	// Force an initial subscribe/metadata round trip so construction fails
	// fast if the brokers are unreachable, rather than on the first poll.
	if err := client.Ping(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", errs.ErrBrokerInit, err)
	}

	b.client = client
	b.admin = kadm.NewClient(client)
	return b, nil
}

func (b *ConsumerBatcher) onAssigned(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range assigned[b.topic] {
		b.assigned[p] = struct{}{}
	}
}

func (b *ConsumerBatcher) onRevoked(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range revoked[b.topic] {
		delete(b.assigned, p)
	}
}

// NextBatch implements the batching algorithm of spec §4.2: poll with a
// timeout equal to the remaining budget (capped at pollUnit), appending
// every record returned, until the size bound is met or the wall-clock
// budget is exhausted. It may return an empty batch.
func (b *ConsumerBatcher) NextBatch(ctx context.Context) ([]record.Record, error) {
	start := time.Now()
	batch := make([]record.Record, 0, b.maxSize)

	for {
		elapsed := time.Since(start)
		if elapsed >= b.maxWait {
			return batch, nil
		}
		if len(batch) >= b.maxSize {
			return batch, nil
		}

		remaining := b.maxWait - elapsed
		timeout := pollUnit
		if remaining < timeout {
			timeout = remaining
		}

		if err := b.pacer.Wait(ctx); err != nil {
			return batch, fmt.Errorf("%w: %v", errs.ErrPollFailed, err)
		}

		// Ask for no more records than the batch still has room for, so every
		// record the poll returns is appended and none is skipped.
		pollCtx, cancel := context.WithTimeout(ctx, timeout)
		fetches := b.client.PollRecords(pollCtx, b.maxSize-len(batch))
		cancel()

		if fetches.IsClientClosed() {
			return batch, fmt.Errorf("%w: client closed", errs.ErrPollFailed)
		}
		if pollErrs := fetches.Errors(); len(pollErrs) > 0 {
			for _, fe := range pollErrs {
				if fe.Err == context.DeadlineExceeded {
					continue
				}
				return batch, fmt.Errorf("%w: %s[%d]: %v", errs.ErrPollFailed, fe.Topic, fe.Partition, fe.Err)
			}
		}

		var badRecordErr error
		fetches.EachRecord(func(kr *kgo.Record) {
			if badRecordErr != nil {
				return
			}
			rec, err := record.New(kr.Key, kr.Value)
			if err != nil {
				badRecordErr = fmt.Errorf("%w: %s[%d]@%d: %v", errs.ErrBadRecord, kr.Topic, kr.Partition, kr.Offset, err)
				return
			}
			batch = append(batch, rec)
		})
		if badRecordErr != nil {
			// §3/§4.1/§7: a non-UTF-8 key or value is a fatal serialization
			// error at batch level, not a per-record skip. The whole batch
			// fails so the subscriber rolls back instead of committing past
			// the bad record.
			b.logger.Error().Err(badRecordErr).Str("topic", b.topic).Msg("bad record in batch")
			return batch, badRecordErr
		}
	}
}

// Commit synchronously commits the current position of every assigned
// partition. A failure here is fatal (§7): offset durability is broken
// and the process must terminate rather than risk silent duplication.
func (b *ConsumerBatcher) Commit(ctx context.Context) error {
	if err := b.client.CommitUncommittedOffsets(ctx); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrCommitFailed, err)
	}
	return nil
}

// Rollback queries the broker for the last committed offset of every
// currently assigned partition and seeks the client back to it, so the
// next poll re-reads uncommitted messages (I4). Also fatal on failure.
func (b *ConsumerBatcher) Rollback(ctx context.Context) error {
	offsets, err := b.admin.FetchOffsets(ctx, b.groupID)
	if err != nil {
		return fmt.Errorf("%w: fetch committed offsets: %v", errs.ErrRollbackFailed, err)
	}
	if err := offsets.Error(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrRollbackFailed, err)
	}

	b.mu.Lock()
	seek := make(map[int32]kgo.EpochOffset, len(b.assigned))
	for partition, offset := range offsets.KOffsets()[b.topic] {
		if _, ok := b.assigned[partition]; ok {
			seek[partition] = offset
		}
	}
	b.mu.Unlock()

	b.client.SetOffsets(map[string]map[int32]kgo.EpochOffset{b.topic: seek})
	return nil
}

// Close releases the underlying broker client.
func (b *ConsumerBatcher) Close() {
	b.client.Close()
}

// assumedAvgRecordBytes and maxFetchBytes bound fetchMaxBytes's estimate:
// a conservative per-record size and an upper cap so a very large
// topic_max_buffer_size doesn't request an unreasonable amount of memory
// per poll round trip.
const assumedAvgRecordBytes = 4 * 1024
const maxFetchBytes = 50 * 1024 * 1024

func fetchMaxBytes(maxSize int) int32 {
	bytes := int64(maxSize) * assumedAvgRecordBytes
	if bytes <= 0 || bytes > maxFetchBytes {
		return maxFetchBytes
	}
	return int32(bytes)
}

func securityOpts(protocol string) []kgo.Opt {
	switch strings.ToLower(protocol) {
	case "", "plaintext":
		return nil
	default:
		// TLS/SASL variants are out of scope for the default broker
		// configuration (§6 names only KAFKA_BROKERS and
		// KAFKA_SECURITY_PROTOCOL); unrecognised protocols fall back to
		// plaintext rather than silently misconfiguring the client.
		return nil
	}
}

// overrideOpts translates the descriptor's opaque consumer_configuration
// overrides into franz-go options. Only the handful of keys meaningful to
// this bridge are recognised; unknown keys are logged and ignored rather
// than rejected, since §4.5 treats them as forwarded verbatim to "the
// broker client" in general.
func overrideOpts(overrides map[string]string, logger zerolog.Logger) []kgo.Opt {
	var opts []kgo.Opt
	for k, v := range overrides {
		switch k {
		case "fetch.max.bytes":
			var n int
			if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
				opts = append(opts, kgo.FetchMaxBytes(int32(n)))
			}
		case "auto.offset.reset":
			switch v {
			case "earliest":
				opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
			case "latest":
				opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
			}
		default:
			logger.Debug().Str("key", k).Str("value", v).Msg("unrecognised consumer_configuration override, ignoring")
		}
	}
	return opts
}
