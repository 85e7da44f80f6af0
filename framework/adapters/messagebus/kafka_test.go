package messagebus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/library-gateway/framework/transport"
)

// fakeKafkaReader отдает заранее заданные сообщения и запоминает коммиты
type fakeKafkaReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	closed    bool
}

func newFakeKafkaReader(offsets ...int64) *fakeKafkaReader {
	r := &fakeKafkaReader{}
	for _, offset := range offsets {
		r.pending = append(r.pending, kafka.Message{
			Topic:  "rating.corrections",
			Offset: offset,
			Value:  []byte{byte('0' + offset)},
		})
	}
	return r
}

func (r *fakeKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeKafkaReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *fakeKafkaReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeKafkaReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func newTestKafkaAdapter(t *testing.T) *KafkaAdapter {
	t.Helper()
	cfg := DefaultKafkaConfig()
	cfg.DeadLetterSuffix = ""
	cfg.Redelivery = RedeliveryPolicy{MaxRedeliveries: 1, Delay: time.Millisecond}

	adapter, err := NewKafkaAdapter(cfg)
	require.NoError(t, err)
	return adapter
}

func TestKafkaAdapter_ConsumeStopsBeforeSkippingFailedOffset(t *testing.T) {
	adapter := newTestKafkaAdapter(t)
	reader := newFakeKafkaReader(0, 1, 2)

	var attempts atomic.Int32
	err := adapter.consume(context.Background(), reader, func(_ context.Context, msg *transport.Message) error {
		if string(msg.Data) == "1" {
			attempts.Add(1)
			return errors.New("rating service unavailable")
		}
		return nil
	})

	require.ErrorIs(t, err, errUncommitted)
	assert.Equal(t, []int64{0}, reader.commits())
	assert.Equal(t, int32(2), attempts.Load())
	assert.Len(t, reader.pending, 1, "next offset must not be fetched")
}

func TestKafkaAdapter_ConsumeCommitsHandledMessages(t *testing.T) {
	adapter := newTestKafkaAdapter(t)
	reader := newFakeKafkaReader(0, 1)

	ctx, cancel := context.WithCancel(context.Background())
	var handled atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- adapter.consume(ctx, reader, func(context.Context, *transport.Message) error {
			handled.Add(1)
			return nil
		})
	}()

	assert.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, []int64{0, 1}, reader.commits())
	assert.Equal(t, int32(2), handled.Load())
}

func TestKafkaAdapter_SubscriptionRereadsFromCommittedOffset(t *testing.T) {
	adapter := newTestKafkaAdapter(t)

	first := newFakeKafkaReader(0, 1, 2)
	second := newFakeKafkaReader(1, 2)
	var mu sync.Mutex
	readers := []*fakeKafkaReader{first, second}
	adapter.newReader = func(string) kafkaReader {
		mu.Lock()
		defer mu.Unlock()
		if len(readers) == 0 {
			return newFakeKafkaReader()
		}
		r := readers[0]
		readers = readers[1:]
		return r
	}

	var failures atomic.Int32
	require.NoError(t, adapter.Subscribe(context.Background(), "rating.corrections",
		func(_ context.Context, msg *transport.Message) error {
			if string(msg.Data) == "1" && failures.Add(1) <= 2 {
				return errors.New("rating service unavailable")
			}
			return nil
		}))

	assert.Eventually(t, func() bool { return len(second.commits()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, adapter.Close())

	assert.Equal(t, []int64{0}, first.commits())
	assert.Equal(t, []int64{1, 2}, second.commits())
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}
