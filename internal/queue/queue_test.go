package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bahsim/catalog-import-service/pkg/logger"
)

func newTestQueue(t *testing.T, visibility time.Duration, maxReceive int) *Queue {
	t.Helper()
	return New(logger.NewNop(), &Config{
		VisibilityTimeout: visibility,
		MaxReceiveCount:   maxReceive,
	})
}

func TestQueue_SendReceiveDelete(t *testing.T) {
	q := newTestQueue(t, time.Minute, 5)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "one"))
	require.NoError(t, q.Send(ctx, "two"))
	assert.Equal(t, 2, q.Depth())

	msgs, err := q.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Body)
	assert.Equal(t, "two", msgs[1].Body)
	assert.Equal(t, 1, msgs[0].ReceiveCount)

	// In flight, not gone.
	assert.Equal(t, 2, q.Depth())

	for _, m := range msgs {
		q.Delete(m.ID)
	}
	assert.Equal(t, 0, q.Depth())
}

func TestQueue_ReceiveRespectsMax(t *testing.T) {
	q := newTestQueue(t, time.Minute, 5)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, q.Send(ctx, "row"))
	}

	msgs, err := q.Receive(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, msgs, 5)

	msgs, err = q.Receive(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestQueue_ReceiveBlocksUntilSend(t *testing.T) {
	q := newTestQueue(t, time.Minute, 5)
	ctx := context.Background()

	got := make(chan []Message, 1)
	go func() {
		msgs, err := q.Receive(ctx, 1)
		if err == nil {
			got <- msgs
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Send(ctx, "late"))

	select {
	case msgs := <-got:
		require.Len(t, msgs, 1)
		assert.Equal(t, "late", msgs[0].Body)
	case <-time.After(2 * time.Second):
		t.Fatal("receive did not return after send")
	}
}

func TestQueue_ReceiveUnblocksOnContextCancel(t *testing.T) {
	q := newTestQueue(t, time.Minute, 5)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Receive(ctx, 1)
		errCh <- err
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("receive did not return after cancel")
	}
}

func TestQueue_VisibilityTimeoutRedelivers(t *testing.T) {
	q := newTestQueue(t, 30*time.Millisecond, 5)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "flaky"))

	msgs, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].ReceiveCount)

	// Not acknowledged: after the timeout the same message comes back with
	// a bumped receive count.
	msgs, err = q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "flaky", msgs[0].Body)
	assert.Equal(t, 2, msgs[0].ReceiveCount)
}

func TestQueue_DeletedMessageIsNotRedelivered(t *testing.T) {
	q := newTestQueue(t, 30*time.Millisecond, 5)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "done"))

	msgs, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	q.Delete(msgs[0].ID)

	time.Sleep(60 * time.Millisecond)

	recvCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = q.Receive(recvCtx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, q.Depth())
}

func TestQueue_DropsAfterMaxReceiveCount(t *testing.T) {
	q := newTestQueue(t, 10*time.Millisecond, 2)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "poison"))

	for i := 1; i <= 2; i++ {
		msgs, err := q.Receive(ctx, 1)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, i, msgs[0].ReceiveCount)
		time.Sleep(20 * time.Millisecond)
	}

	recvCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_, err := q.Receive(recvCtx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, q.Depth())
}

func TestQueue_CapacityRejectsSend(t *testing.T) {
	q := New(logger.NewNop(), &Config{
		VisibilityTimeout: time.Minute,
		MaxReceiveCount:   5,
		Capacity:          2,
	})
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "one"))
	require.NoError(t, q.Send(ctx, "two"))
	assert.ErrorIs(t, q.Send(ctx, "three"), ErrQueueFull)

	// In-flight messages still count against capacity.
	msgs, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.ErrorIs(t, q.Send(ctx, "three"), ErrQueueFull)

	// Acknowledging frees a slot.
	q.Delete(msgs[0].ID)
	assert.NoError(t, q.Send(ctx, "three"))
}

type recordingHandler struct {
	mu      sync.Mutex
	batches []events.SQSEvent
	fail    bool
}

func (h *recordingHandler) Handle(_ context.Context, event events.SQSEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, event)
	if h.fail {
		h.fail = false
		return assert.AnError
	}
	return nil
}

func (h *recordingHandler) snapshot() []events.SQSEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]events.SQSEvent, len(h.batches))
	copy(out, h.batches)
	return out
}

func TestConsumer_DeliversBatchesAndAcknowledges(t *testing.T) {
	q := newTestQueue(t, time.Minute, 5)
	handler := &recordingHandler{}
	consumer := NewConsumer(q, handler, logger.NewNop(), &ConsumerConfig{BatchSize: 5, Workers: 1})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Send(ctx, "row"))
	}

	require.NoError(t, consumer.Start(ctx))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, consumer.Shutdown(shutdownCtx))
	}()

	assert.Eventually(t, func() bool {
		return q.Depth() == 0 && len(handler.snapshot()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	total := 0
	for _, batch := range handler.snapshot() {
		assert.LessOrEqual(t, len(batch.Records), 5)
		total += len(batch.Records)
		for _, record := range batch.Records {
			assert.Equal(t, "row", record.Body)
			assert.Equal(t, "1", record.Attributes["ApproximateReceiveCount"])
		}
	}
	assert.Equal(t, 3, total)
}

func TestConsumer_FailedBatchIsRedelivered(t *testing.T) {
	q := newTestQueue(t, 30*time.Millisecond, 5)
	handler := &recordingHandler{fail: true}
	consumer := NewConsumer(q, handler, logger.NewNop(), &ConsumerConfig{BatchSize: 5, Workers: 1})

	ctx := context.Background()
	require.NoError(t, q.Send(ctx, "retry-me"))

	require.NoError(t, consumer.Start(ctx))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, consumer.Shutdown(shutdownCtx))
	}()

	assert.Eventually(t, func() bool {
		return q.Depth() == 0 && len(handler.snapshot()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	batches := handler.snapshot()
	require.GreaterOrEqual(t, len(batches), 2)
	assert.Equal(t, "retry-me", batches[0].Records[0].Body)
	assert.Equal(t, "retry-me", batches[1].Records[0].Body)
	assert.Equal(t, "2", batches[1].Records[0].Attributes["ApproximateReceiveCount"])
}
