package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/mkurbatov/go-shop/internal/metrics"
)

// Handler processes one message. A nil return means the message's
// effects are committed and the offset may advance.
type Handler func(ctx context.Context, m kafka.Message) error

// reader is the part of kafka.Reader the consumer uses. Fetch and
// commit stay separate calls: under a consumer group, Reader.ReadMessage
// commits the offset at read time, before the handler has run.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type deadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, m kafka.Message, cause error) error
}

const initialRetryBackoff = 200 * time.Millisecond

type ConsumerConfig struct {
	Brokers        []string
	GroupID        string
	Topic          string
	Workers        int
	HandlerTimeout time.Duration
	MaxRetries     int
}

// Consumer reads one topic with a bounded worker pool. Messages from
// the same partition always land on the same worker, so offsets are
// committed in partition order and never advance past an unprocessed
// message. Failure routing: retryable errors are retried in place with
// backoff; retry exhaustion and every non-retryable failure park the
// message on the dead-letter topic. The offset is committed only once
// the message's effects are durable, either the handler succeeded or
// the dead-letter publish was acknowledged.
type Consumer struct {
	r              reader
	workers        int
	handlerTimeout time.Duration
	maxRetries     int
	deadLetter     deadLetterPublisher
	retryable      func(error) bool
	metrics        *metrics.StoreMetrics
	logger         *log.Entry
}

func NewConsumer(cfg ConsumerConfig, deadLetter *Producer, retryable func(error) bool, m *metrics.StoreMetrics) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	timeout := cfg.HandlerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	if retryable == nil {
		retryable = func(error) bool { return false }
	}

	c := &Consumer{
		r:              r,
		workers:        workers,
		handlerTimeout: timeout,
		maxRetries:     maxRetries,
		retryable:      retryable,
		metrics:        m,
		logger:         log.WithFields(log.Fields{"component": "consumer", "topic": cfg.Topic}),
	}
	if deadLetter != nil {
		c.deadLetter = deadLetter
	}
	return c
}

// Start consumes until ctx is cancelled or a worker hits a fatal error
// (a dead-letter publish or offset commit failure).
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make([]chan kafka.Message, c.workers)
	fatal := make(chan error, c.workers)
	var wg sync.WaitGroup

	for i := range jobs {
		ch := make(chan kafka.Message, 64)
		jobs[i] = ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range ch {
				if err := c.process(ctx, h, m); err != nil {
					if ctx.Err() == nil {
						select {
						case fatal <- err:
						default:
						}
					}
					cancel()
					return
				}
			}
		}()
	}

	fetchErr := c.dispatch(ctx, jobs)

	for _, ch := range jobs {
		close(ch)
	}
	wg.Wait()

	select {
	case err := <-fatal:
		return err
	default:
	}
	if ctx.Err() != nil {
		return nil
	}
	return fetchErr
}

func (c *Consumer) dispatch(ctx context.Context, jobs []chan kafka.Message) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			return err
		}

		// partition affinity keeps processing, and therefore commits,
		// ordered within each partition
		select {
		case jobs[m.Partition%len(jobs)] <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// process handles one message to completion and then commits its
// offset. An error return is fatal for the consumer.
func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) error {
	backoff := initialRetryBackoff

	for attempt := 0; ; attempt++ {
		err := c.invoke(ctx, h, m)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if c.retryable(err) && attempt < c.maxRetries {
			c.logger.WithError(err).WithFields(log.Fields{
				"partition": m.Partition,
				"offset":    m.Offset,
				"attempt":   attempt + 1,
			}).Warn("retrying message")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			continue
		}

		if err := c.park(ctx, m, err); err != nil {
			return err
		}
		break
	}

	if err := c.r.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("commit offset: %w", err)
	}
	return nil
}

// invoke runs the handler under the per-message deadline so a stalled
// message cannot hold database row locks indefinitely.
func (c *Consumer) invoke(ctx context.Context, h Handler, m kafka.Message) error {
	hctx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
	defer cancel()
	return h(hctx, m)
}

// park routes a failed message to the dead-letter topic. Without a
// dead-letter publisher the message is dropped after logging. A failed
// publish propagates so the offset is not committed.
func (c *Consumer) park(ctx context.Context, m kafka.Message, cause error) error {
	if c.deadLetter == nil {
		c.logger.WithError(cause).WithFields(log.Fields{
			"partition": m.Partition,
			"offset":    m.Offset,
		}).Error("dropping message, no dead-letter topic configured")
		return nil
	}

	if err := c.deadLetter.PublishDeadLetter(ctx, m, cause); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}

	c.metrics.MessageDeadLettered(m.Topic)
	c.logger.WithError(cause).WithFields(log.Fields{
		"partition": m.Partition,
		"offset":    m.Offset,
	}).Warn("message sent to dead-letter topic")
	return nil
}
