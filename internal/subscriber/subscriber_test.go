package subscriber

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miere/malka/internal/config"
	"github.com/miere/malka/internal/listener"
	"github.com/miere/malka/internal/record"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBatcher is a test double for kafka.Batcher (spec §9's "test doubles
// for each are required").
type fakeBatcher struct {
	batches       [][]record.Record
	nextIdx       int
	pollErr       error
	commitCount   int
	rollbackCount int
	commitErr     error
	rollbackErr   error
}

func (f *fakeBatcher) NextBatch(ctx context.Context) ([]record.Record, error) {
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if f.nextIdx >= len(f.batches) {
		return nil, nil
	}
	b := f.batches[f.nextIdx]
	f.nextIdx++
	return b, nil
}

func (f *fakeBatcher) Commit(ctx context.Context) error {
	f.commitCount++
	return f.commitErr
}

func (f *fakeBatcher) Rollback(ctx context.Context) error {
	f.rollbackCount++
	return f.rollbackErr
}

func (f *fakeBatcher) Close() {}

// fakeListener is a test double for listener.Listener.
type fakeListener struct {
	outcome listener.Outcome
	calls   int
}

func (f *fakeListener) Consume(ctx context.Context, batch []record.Record) listener.Outcome {
	f.calls++
	return f.outcome
}

func oneRecordBatch(t *testing.T) []record.Record {
	t.Helper()
	r, err := record.New([]byte("k"), []byte("v"))
	require.NoError(t, err)
	return []record.Record{r}
}

func newTestSubscriber(batcher *fakeBatcher, l *fakeListener, flag *atomic.Bool) *Subscriber {
	identity := config.DeriveIdentity("topic", "fn", 0)
	return New(batcher, l, flag, "topic", "fn", 0, identity, zerolog.Nop())
}

func runUntilFlagFalse(t *testing.T, s *Subscriber, flag *atomic.Bool) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		s.MainLoop(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not terminate after cancellation")
	}
}

func TestSucceededCausesExactlyOneCommit(t *testing.T) {
	var flag atomic.Bool
	flag.Store(true)

	batcher := &fakeBatcher{batches: [][]record.Record{oneRecordBatch(t)}}
	l := &fakeListener{outcome: listener.Succeeded()}
	s := newTestSubscriber(batcher, l, &flag)

	go func() {
		time.Sleep(20 * time.Millisecond)
		flag.Store(false)
	}()
	runUntilFlagFalse(t, s, &flag)

	assert.Equal(t, 1, batcher.commitCount)
	assert.Equal(t, 0, batcher.rollbackCount)
}

func TestFailedCausesExactlyOneRollback(t *testing.T) {
	var flag atomic.Bool
	flag.Store(true)

	batcher := &fakeBatcher{batches: [][]record.Record{oneRecordBatch(t)}}
	l := &fakeListener{outcome: listener.Failed("boom")}
	s := newTestSubscriber(batcher, l, &flag)

	go func() {
		time.Sleep(20 * time.Millisecond)
		flag.Store(false)
	}()
	runUntilFlagFalse(t, s, &flag)

	assert.Equal(t, 0, batcher.commitCount)
	assert.Equal(t, 1, batcher.rollbackCount)
}

func TestEmptyBatchCausesNeitherCommitNorRollback(t *testing.T) {
	var flag atomic.Bool
	flag.Store(true)

	batcher := &fakeBatcher{} // NextBatch always returns an empty batch
	l := &fakeListener{outcome: listener.Succeeded()}
	s := newTestSubscriber(batcher, l, &flag)

	go func() {
		time.Sleep(20 * time.Millisecond)
		flag.Store(false)
	}()
	runUntilFlagFalse(t, s, &flag)

	assert.Equal(t, 0, batcher.commitCount)
	assert.Equal(t, 0, batcher.rollbackCount)
	assert.Equal(t, 0, l.calls)
}

func TestPollFailureCausesRollback(t *testing.T) {
	var flag atomic.Bool
	flag.Store(true)

	batcher := &fakeBatcher{pollErr: errors.New("broker unreachable")}
	l := &fakeListener{outcome: listener.Succeeded()}
	s := newTestSubscriber(batcher, l, &flag)

	go func() {
		time.Sleep(20 * time.Millisecond)
		flag.Store(false)
	}()
	runUntilFlagFalse(t, s, &flag)

	assert.Greater(t, batcher.rollbackCount, 0)
	assert.Equal(t, 0, l.calls)
}

func TestCancellationConvergesWithinOneIteration(t *testing.T) {
	var flag atomic.Bool
	flag.Store(false) // already cancelled before the loop ever starts

	batcher := &fakeBatcher{batches: [][]record.Record{oneRecordBatch(t)}}
	l := &fakeListener{outcome: listener.Succeeded()}
	s := newTestSubscriber(batcher, l, &flag)

	runUntilFlagFalse(t, s, &flag)

	assert.Equal(t, 0, l.calls)
}
