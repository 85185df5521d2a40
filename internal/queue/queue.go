package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bahsim/catalog-import-service/pkg/logger"
)

// ErrQueueFull rejects a send when the queue is at capacity. Callers
// treat it like any other submit failure.
var ErrQueueFull = errors.New("queue is full")

// Message is one queued record as seen by a consumer.
type Message struct {
	ID           string
	Body         string
	ReceiveCount int
}

type message struct {
	id           string
	body         string
	receiveCount int
	invisibleTil time.Time
}

type Config struct {
	VisibilityTimeout time.Duration
	MaxReceiveCount   int

	// Capacity bounds ready plus in-flight messages; zero means
	// unbounded.
	Capacity int
}

// Queue is an at-least-once, unordered message queue. A received message
// stays invisible for the visibility timeout; deleting it acknowledges
// consumption, letting the timeout lapse redelivers it. Messages received
// more than MaxReceiveCount times are dropped, which stands in for the
// redrive policy configured on a managed queue.
type Queue struct {
	mu       sync.Mutex
	ready    []*message
	inflight map[string]*message
	notify   chan struct{}
	logger   *logger.Logger

	visibility time.Duration
	maxReceive int
	capacity   int
}

func New(log *logger.Logger, cfg *Config) *Queue {
	if cfg == nil {
		cfg = &Config{
			VisibilityTimeout: 30 * time.Second,
			MaxReceiveCount:   5,
		}
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 30 * time.Second
	}
	if cfg.MaxReceiveCount <= 0 {
		cfg.MaxReceiveCount = 5
	}

	return &Queue{
		inflight:   make(map[string]*message),
		notify:     make(chan struct{}, 1),
		logger:     log,
		visibility: cfg.VisibilityTimeout,
		maxReceive: cfg.MaxReceiveCount,
		capacity:   cfg.Capacity,
	}
}

// Send enqueues one message body.
func (q *Queue) Send(ctx context.Context, body string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	q.mu.Lock()
	if q.capacity > 0 && len(q.ready)+len(q.inflight) >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.ready = append(q.ready, &message{
		id:   uuid.New().String(),
		body: body,
	})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	return nil
}

// Receive blocks until at least one message is available or the context is
// done, returning at most max messages. Returned messages are invisible to
// other receivers until the visibility timeout expires.
func (q *Queue) Receive(ctx context.Context, max int) ([]Message, error) {
	if max <= 0 {
		max = 1
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if batch := q.take(ctx, max); len(batch) > 0 {
			return batch, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

// Delete acknowledges a received message; it will not be redelivered.
func (q *Queue) Delete(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, id)
}

// Depth reports ready plus in-flight messages.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.inflight)
}

func (q *Queue) take(ctx context.Context, max int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	q.requeueExpiredLocked(ctx, now)

	var batch []Message
	for len(batch) < max && len(q.ready) > 0 {
		m := q.ready[0]
		q.ready = q.ready[1:]

		m.receiveCount++
		if m.receiveCount > q.maxReceive {
			q.logger.Error(ctx, "Message exceeded max receive count, dropping",
				"message_id", m.id,
				"receive_count", m.receiveCount,
			)
			continue
		}

		m.invisibleTil = now.Add(q.visibility)
		q.inflight[m.id] = m

		batch = append(batch, Message{
			ID:           m.id,
			Body:         m.body,
			ReceiveCount: m.receiveCount,
		})
	}

	return batch
}

func (q *Queue) requeueExpiredLocked(ctx context.Context, now time.Time) {
	for id, m := range q.inflight {
		if now.After(m.invisibleTil) {
			delete(q.inflight, id)
			q.ready = append(q.ready, m)
			q.logger.Debug(ctx, "Visibility timeout expired, message requeued",
				"message_id", id,
				"receive_count", m.receiveCount,
			)
		}
	}
}
