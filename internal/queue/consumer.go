package queue

import (
	"context"
	"strconv"
	"sync"

	"github.com/aws/aws-lambda-go/events"

	"github.com/bahsim/catalog-import-service/pkg/logger"
)

// Handler processes one received batch. A nil return acknowledges every
// message in the batch; an error leaves the whole batch to be redelivered
// after the visibility timeout.
type Handler interface {
	Handle(ctx context.Context, event events.SQSEvent) error
}

type ConsumerConfig struct {
	BatchSize int
	Workers   int
}

// Consumer drains the queue in bounded batches and hands each batch to the
// handler as an SQS-shaped event.
type Consumer struct {
	queue   *Queue
	handler Handler
	logger  *logger.Logger

	batchSize int
	workers   int

	mu      sync.Mutex
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
}

func NewConsumer(q *Queue, handler Handler, log *logger.Logger, cfg *ConsumerConfig) *Consumer {
	if cfg == nil {
		cfg = &ConsumerConfig{BatchSize: 5, Workers: 1}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	return &Consumer{
		queue:     q,
		handler:   handler,
		logger:    log,
		batchSize: cfg.BatchSize,
		workers:   cfg.Workers,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	ctx, c.cancel = context.WithCancel(ctx)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}

	c.started = true
	c.logger.Info(ctx, "Queue consumer started",
		"workers", c.workers,
		"batch_size", c.batchSize,
	)

	return nil
}

func (c *Consumer) worker(ctx context.Context, workerID int) {
	defer c.wg.Done()

	c.logger.Debug(ctx, "Worker started", "worker_id", workerID)

	for {
		msgs, err := c.queue.Receive(ctx, c.batchSize)
		if err != nil {
			c.logger.Debug(ctx, "Worker stopping", "worker_id", workerID)
			return
		}

		c.processBatch(ctx, msgs, workerID)
	}
}

func (c *Consumer) processBatch(ctx context.Context, msgs []Message, workerID int) {
	event := events.SQSEvent{Records: make([]events.SQSMessage, 0, len(msgs))}
	for _, m := range msgs {
		event.Records = append(event.Records, events.SQSMessage{
			MessageId:     m.ID,
			ReceiptHandle: m.ID,
			Body:          m.Body,
			Attributes: map[string]string{
				"ApproximateReceiveCount": strconv.Itoa(m.ReceiveCount),
			},
		})
	}

	err := c.handler.Handle(ctx, event)
	if err != nil {
		// No per-message ack: the whole batch waits out its visibility
		// timeout and comes back.
		c.logger.Error(ctx, "Batch processing failed, batch will be redelivered",
			"worker_id", workerID,
			"batch_size", len(msgs),
			"error", err,
		)
		return
	}

	for _, m := range msgs {
		c.queue.Delete(m.ID)
	}

	c.logger.Debug(ctx, "Batch processed",
		"worker_id", workerID,
		"batch_size", len(msgs),
	)
}

func (c *Consumer) Shutdown(ctx context.Context) error {
	c.logger.Info(ctx, "Shutting down queue consumer")

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info(ctx, "Queue consumer shutdown complete")
		return nil
	case <-ctx.Done():
		c.logger.Warn(ctx, "Queue consumer shutdown timeout")
		return ctx.Err()
	}
}
