package messagebus

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/library-gateway/framework/core"
	"github.com/akriventsev/library-gateway/framework/transport"
)

func TestFactory_Drivers(t *testing.T) {
	f := NewFactory()
	assert.Equal(t, []string{"inmemory", "kafka", "nats", "postgres", "rabbitmq", "redis"}, f.Drivers())
}

func TestFactory_CreateInMemory(t *testing.T) {
	bus, err := NewFactory().Create(context.Background(), DriverInMemory, DefaultConfig())
	require.NoError(t, err)
	defer bus.Close()

	_, ok := bus.(*InMemoryAdapter)
	assert.True(t, ok)
}

func TestFactory_CreateKafkaWithoutConnecting(t *testing.T) {
	bus, err := NewFactory().Create(context.Background(), DriverKafka, DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, bus.Close())
}

func TestFactory_UnknownDriver(t *testing.T) {
	_, err := NewFactory().Create(context.Background(), "carrier-pigeon", DefaultConfig())
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.ErrUnknownDriver))
}

func TestFactory_RegisterDuplicate(t *testing.T) {
	f := NewFactory()
	err := f.Register(DriverKafka, func(context.Context, Config, ...Option) (transport.MessageBus, error) {
		return nil, nil
	})
	assert.Error(t, err)
}

func TestFactory_InvalidConfigs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kafka.Brokers = []string{"no-port"}
	cfg.NATS.URL = "http://localhost"
	cfg.RabbitMQ.URL = ""

	f := NewFactory()
	for _, driver := range []string{DriverKafka, DriverNATS, DriverRabbitMQ} {
		_, err := f.Create(context.Background(), driver, cfg)
		require.Error(t, err, driver)
		assert.True(t, core.HasCode(err, core.ErrInvalidConfig), driver)
	}
}

func TestKafkaMessageMapping(t *testing.T) {
	msg := toKafkaMessage("rating.corrections", []byte("v"), map[string]string{
		transport.HeaderMessageKey: "alice",
		"correction-kind":          "rating",
	})
	assert.Equal(t, []byte("alice"), msg.Key)
	assert.Equal(t, "rating.corrections", msg.Topic)

	back := fromKafkaMessage(kafka.Message{Topic: msg.Topic, Value: msg.Value, Headers: msg.Headers})
	assert.Equal(t, "rating", back.Header("correction-kind"))
	assert.Equal(t, "v", string(back.Data))
}
