package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	next    int
	commits []kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.next < len(f.msgs) {
		m := f.msgs[f.next]
		f.next++
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, msgs...)
	return nil
}

func (f *fakeReader) Close() error { return nil }

func (f *fakeReader) committed() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]kafka.Message, len(f.commits))
	copy(out, f.commits)
	return out
}

type fakeDeadLetter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (f *fakeDeadLetter) PublishDeadLetter(_ context.Context, m kafka.Message, _ error) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeDeadLetter) parked() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]kafka.Message, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func newTestConsumer(r reader, dlq deadLetterPublisher, retryable func(error) bool) *Consumer {
	return &Consumer{
		r:              r,
		workers:        1,
		handlerTimeout: time.Second,
		maxRetries:     2,
		deadLetter:     dlq,
		retryable:      retryable,
		logger:         log.WithField("component", "consumer"),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestConsumerCommitsOnlyAfterSuccess(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{{Topic: "order", Partition: 0, Offset: 7}}}
	c := newTestConsumer(r, nil, func(error) bool { return true })

	var calls int32
	h := func(ctx context.Context, m kafka.Message) error {
		assert.Empty(t, r.committed(), "offset advanced before the handler succeeded")
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient storage failure")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	waitFor(t, func() bool { return len(r.committed()) == 1 })
	cancel()
	require.NoError(t, <-done)

	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, int64(7), r.committed()[0].Offset)
}

func TestConsumerDeadLettersNonRetryable(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{{Topic: "product", Partition: 1, Offset: 3}}}
	dlq := &fakeDeadLetter{}
	c := newTestConsumer(r, dlq, func(error) bool { return false })

	var calls int32
	h := func(ctx context.Context, m kafka.Message) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("malformed payload")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	waitFor(t, func() bool { return len(r.committed()) == 1 })
	cancel()
	require.NoError(t, <-done)

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "non-retryable failures must not be retried")
	require.Len(t, dlq.parked(), 1)
	assert.Equal(t, int64(3), dlq.parked()[0].Offset)
}

func TestConsumerHoldsOffsetWhenDeadLetterFails(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{{Topic: "order", Partition: 0, Offset: 12}}}
	dlq := &fakeDeadLetter{err: errors.New("broker unavailable")}
	c := newTestConsumer(r, dlq, func(error) bool { return false })

	h := func(ctx context.Context, m kafka.Message) error {
		return errors.New("bad message")
	}

	err := c.Start(context.Background(), h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish dead letter")
	assert.Empty(t, r.committed(), "offset must not advance past an unparked message")
}

func TestConsumerRetriesExhaustedGoToDeadLetter(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{{Topic: "order", Partition: 0, Offset: 5}}}
	dlq := &fakeDeadLetter{}
	c := newTestConsumer(r, dlq, func(error) bool { return true })

	var calls int32
	h := func(ctx context.Context, m kafka.Message) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("still failing")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	waitFor(t, func() bool { return len(r.committed()) == 1 })
	cancel()
	require.NoError(t, <-done)

	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	require.Len(t, dlq.parked(), 1)
}

func TestConsumerAppliesHandlerDeadline(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{{Topic: "product", Partition: 0, Offset: 1}}}
	c := newTestConsumer(r, nil, nil)
	c.retryable = func(error) bool { return false }

	var hasDeadline atomic.Bool
	h := func(ctx context.Context, m kafka.Message) error {
		_, ok := ctx.Deadline()
		hasDeadline.Store(ok)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	waitFor(t, func() bool { return len(r.committed()) == 1 })
	cancel()
	require.NoError(t, <-done)

	assert.True(t, hasDeadline.Load(), "handler must run under a per-message deadline")
}
