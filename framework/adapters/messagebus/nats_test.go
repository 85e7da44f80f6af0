package messagebus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/library-gateway/framework/transport"
)

// fakeNATSAcker запоминает подтверждения JetStream
type fakeNATSAcker struct {
	acks     int
	naks     int
	nakDelay time.Duration
}

func (a *fakeNATSAcker) Ack(...nats.AckOpt) error {
	a.acks++
	return nil
}

func (a *fakeNATSAcker) NakWithDelay(delay time.Duration, _ ...nats.AckOpt) error {
	a.naks++
	a.nakDelay = delay
	return nil
}

func newTestNATSAdapter() *NATSAdapter {
	cfg := DefaultNATSConfig()
	cfg.NakDelay = 3 * time.Second
	return &NATSAdapter{config: cfg, opts: buildOptions("nats", nil), subs: make(map[string]*nats.Subscription)}
}

func TestFromNATSMsg(t *testing.T) {
	m := nats.NewMsg("rating.corrections")
	m.Data = []byte(`{"username":"alice","delta":-10}`)
	m.Header.Set("Message-Id", "m-1")

	msg := fromNATSMsg(m)
	assert.Equal(t, "rating.corrections", msg.Subject)
	assert.Equal(t, `{"username":"alice","delta":-10}`, string(msg.Data))
	assert.Equal(t, "m-1", msg.Headers["message-id"])
}

func TestNATSAdapter_HandleAcksOnSuccess(t *testing.T) {
	adapter := newTestNATSAdapter()
	acker := &fakeNATSAcker{}

	var got *transport.Message
	adapter.handle(context.Background(), &transport.Message{Subject: "library.corrections"}, acker,
		func(_ context.Context, msg *transport.Message) error {
			got = msg
			return nil
		})

	require.NotNil(t, got)
	assert.Equal(t, 1, acker.acks)
	assert.Zero(t, acker.naks)
}

func TestNATSAdapter_HandleNaksWithDelayOnError(t *testing.T) {
	adapter := newTestNATSAdapter()
	acker := &fakeNATSAcker{}

	adapter.handle(context.Background(), &transport.Message{Subject: "library.corrections"}, acker,
		func(context.Context, *transport.Message) error {
			return errors.New("library service unavailable")
		})

	assert.Zero(t, acker.acks)
	assert.Equal(t, 1, acker.naks)
	assert.Equal(t, 3*time.Second, acker.nakDelay)
}

func TestNATSAdapter_DurableNameHasNoDots(t *testing.T) {
	adapter := newTestNATSAdapter()
	assert.Equal(t, "library-gateway-rating-corrections", adapter.durableName("rating.corrections"))
}
