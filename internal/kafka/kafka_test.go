package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducerFlushesOnShutdown(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "t", 8, zap.NewNop())

	assert.True(t, p.Publish([]byte("k1"), []byte("v1")))
	assert.True(t, p.Publish([]byte("k2"), []byte("v2")))

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	p.WaitClosed()

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Len(t, w.msgs, 2)
	assert.True(t, w.closed)
}

func TestProducerPublishNeverBlocks(t *testing.T) {
	p := newProducer(&fakeWriter{}, "t", 1, zap.NewNop())
	assert.True(t, p.Publish(nil, []byte("a")))
	assert.False(t, p.Publish(nil, []byte("b")))
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumerRetriesFailedMessageBeforeMovingOn(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}}}
	c := newConsumer(r, 2, zap.NewNop())
	c.retryMin, c.retryMax = time.Millisecond, 5*time.Millisecond

	var (
		mu      sync.Mutex
		handled []int64
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(_ context.Context, m kafka.Message) error {
			mu.Lock()
			defer mu.Unlock()
			handled = append(handled, m.Offset)
			if m.Offset == 2 && len(handled) < 4 {
				return errors.New("boom")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return len(r.committedOffsets()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3}, r.committedOffsets())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2, 2, 2, 3}, handled)
}

func TestConsumerFailingPartitionDoesNotBlockOthers(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Partition: 0, Offset: 1}, {Partition: 1, Offset: 7}}}
	c := newConsumer(r, 2, zap.NewNop())
	c.retryMin, c.retryMax = time.Millisecond, time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(_ context.Context, m kafka.Message) error {
			if m.Partition == 0 {
				return errors.New("redis down")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return len(r.committedOffsets()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []int64{7}, r.committedOffsets())
}

func TestUnwrapPayload(t *testing.T) {
	type p struct {
		ID int `json:"id"`
	}
	got, err := UnwrapPayload[p]([]byte(`{"id":7}`))
	require.NoError(t, err)
	assert.Equal(t, 7, got.ID)

	_, err = UnwrapPayload[p]([]byte(`nope`))
	assert.Error(t, err)
}
