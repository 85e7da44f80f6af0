package messagebus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/library-gateway/framework/core"
	"github.com/akriventsev/library-gateway/framework/transport"
)

func TestInMemoryAdapter_BuffersUntilSubscribed(t *testing.T) {
	bus := NewInMemoryAdapter(DefaultInMemoryConfig())
	defer bus.Close()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, "rating.corrections", []byte(`{"delta":1}`), map[string]string{"k": "v"}))
	assert.Equal(t, 1, bus.Pending("rating.corrections"))

	received := make(chan *transport.Message, 1)
	require.NoError(t, bus.Subscribe(ctx, "rating.corrections", func(_ context.Context, msg *transport.Message) error {
		received <- msg
		return nil
	}))

	select {
	case msg := <-received:
		assert.Equal(t, `{"delta":1}`, string(msg.Data))
		assert.Equal(t, "v", msg.Header("k"))
	case <-time.After(time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestInMemoryAdapter_RedeliversOnHandlerError(t *testing.T) {
	cfg := DefaultInMemoryConfig()
	cfg.Redelivery = RedeliveryPolicy{MaxRedeliveries: 3, Delay: time.Millisecond}
	bus := NewInMemoryAdapter(cfg)
	defer bus.Close()

	var calls int32
	done := make(chan struct{})
	ctx := context.Background()
	require.NoError(t, bus.Subscribe(ctx, "library.corrections", func(context.Context, *transport.Message) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("library service down")
		}
		close(done)
		return nil
	}))
	require.NoError(t, bus.Publish(ctx, "library.corrections", []byte("x"), nil))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("message was not redelivered")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestInMemoryAdapter_PublishRespectsContextWhenFull(t *testing.T) {
	bus := NewInMemoryAdapter(InMemoryConfig{BufferSize: 1})
	defer bus.Close()

	require.NoError(t, bus.Publish(context.Background(), "s", []byte("1"), nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bus.Publish(ctx, "s", []byte("2"), nil)
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.ErrPublishFailed))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInMemoryAdapter_PublishAfterClose(t *testing.T) {
	bus := NewInMemoryAdapter(DefaultInMemoryConfig())
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), "s", nil, nil)
	assert.True(t, core.HasCode(err, core.ErrNotRunning))
}

func TestInMemoryAdapter_UnsubscribeKeepsPending(t *testing.T) {
	bus := NewInMemoryAdapter(DefaultInMemoryConfig())
	defer bus.Close()

	ctx := context.Background()
	require.NoError(t, bus.Subscribe(ctx, "s", func(context.Context, *transport.Message) error { return nil }))
	require.NoError(t, bus.Unsubscribe("s"))

	// дать горутине подписчика завершиться
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, bus.Publish(ctx, "s", []byte("kept"), nil))
	assert.Equal(t, 1, bus.Pending("s"))
}

func TestInMemoryAdapter_HealthCheck(t *testing.T) {
	bus := NewInMemoryAdapter(DefaultInMemoryConfig())
	assert.NoError(t, bus.HealthCheck(context.Background()))

	require.NoError(t, bus.Close())
	assert.True(t, core.HasCode(bus.HealthCheck(context.Background()), core.ErrNotRunning))
}

func TestInMemoryAdapter_RequeuesOnUnsubscribeDuringRedelivery(t *testing.T) {
	cfg := DefaultInMemoryConfig()
	cfg.Redelivery = RedeliveryPolicy{MaxRedeliveries: 5, Delay: time.Minute}
	bus := NewInMemoryAdapter(cfg)
	defer bus.Close()

	ctx := context.Background()
	failed := make(chan struct{})
	var once atomic.Bool
	require.NoError(t, bus.Subscribe(ctx, "rating.corrections", func(context.Context, *transport.Message) error {
		if once.CompareAndSwap(false, true) {
			close(failed)
		}
		return errors.New("rating service down")
	}))
	require.NoError(t, bus.Publish(ctx, "rating.corrections", []byte(`{"delta":-10}`), nil))

	select {
	case <-failed:
	case <-time.After(time.Second):
		t.Fatal("handler was not called")
	}
	require.NoError(t, bus.Unsubscribe("rating.corrections"))
	assert.Eventually(t, func() bool { return bus.Pending("rating.corrections") == 1 }, time.Second, 5*time.Millisecond)

	received := make(chan *transport.Message, 1)
	require.NoError(t, bus.Subscribe(ctx, "rating.corrections", func(_ context.Context, msg *transport.Message) error {
		received <- msg
		return nil
	}))

	select {
	case msg := <-received:
		assert.Equal(t, `{"delta":-10}`, string(msg.Data))
	case <-time.After(time.Second):
		t.Fatal("requeued message was not delivered")
	}
}
