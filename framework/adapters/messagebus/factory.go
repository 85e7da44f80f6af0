package messagebus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/akriventsev/library-gateway/framework/core"
	"github.com/akriventsev/library-gateway/framework/transport"
)

// Имена встроенных драйверов
const (
	DriverKafka    = "kafka"
	DriverNATS     = "nats"
	DriverRedis    = "redis"
	DriverRabbitMQ = "rabbitmq"
	DriverPostgres = "postgres"
	DriverInMemory = "inmemory"
)

// Config конфигурации всех драйверов; используется секция выбранного драйвера
type Config struct {
	Kafka    KafkaConfig
	NATS     NATSConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Postgres PostgresConfig
	InMemory InMemoryConfig
}

// DefaultConfig возвращает конфигурации драйверов по умолчанию
func DefaultConfig() Config {
	return Config{
		Kafka:    DefaultKafkaConfig(),
		NATS:     DefaultNATSConfig(),
		Redis:    DefaultRedisConfig(),
		RabbitMQ: DefaultRabbitMQConfig(),
		Postgres: DefaultPostgresConfig(),
		InMemory: DefaultInMemoryConfig(),
	}
}

// Creator создает драйвер по конфигурации
type Creator func(ctx context.Context, config Config, opts ...Option) (transport.MessageBus, error)

// Factory реестр драйверов message bus
type Factory struct {
	mu       sync.RWMutex
	creators map[string]Creator
}

// NewFactory создает фабрику со встроенными драйверами
func NewFactory() *Factory {
	f := &Factory{creators: make(map[string]Creator)}

	_ = f.Register(DriverKafka, func(_ context.Context, c Config, opts ...Option) (transport.MessageBus, error) {
		return NewKafkaAdapter(c.Kafka, opts...)
	})
	_ = f.Register(DriverNATS, func(ctx context.Context, c Config, opts ...Option) (transport.MessageBus, error) {
		return NewNATSAdapterBuilder().WithConfig(c.NATS).WithOptions(opts...).Build(ctx)
	})
	_ = f.Register(DriverRedis, func(ctx context.Context, c Config, opts ...Option) (transport.MessageBus, error) {
		return NewRedisAdapter(ctx, c.Redis, opts...)
	})
	_ = f.Register(DriverRabbitMQ, func(_ context.Context, c Config, opts ...Option) (transport.MessageBus, error) {
		return NewRabbitMQAdapter(c.RabbitMQ, opts...)
	})
	_ = f.Register(DriverPostgres, func(ctx context.Context, c Config, opts ...Option) (transport.MessageBus, error) {
		return NewPostgresAdapter(ctx, c.Postgres, opts...)
	})
	_ = f.Register(DriverInMemory, func(_ context.Context, c Config, opts ...Option) (transport.MessageBus, error) {
		return NewInMemoryAdapter(c.InMemory, opts...), nil
	})

	return f
}

// Register регистрирует драйвер
func (f *Factory) Register(name string, creator Creator) error {
	if name == "" {
		return fmt.Errorf("driver name cannot be empty")
	}
	if creator == nil {
		return fmt.Errorf("creator function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.creators[name]; exists {
		return fmt.Errorf("driver %s already registered", name)
	}
	f.creators[name] = creator
	return nil
}

// Create создает драйвер указанного типа
func (f *Factory) Create(ctx context.Context, driver string, config Config, opts ...Option) (transport.MessageBus, error) {
	f.mu.RLock()
	creator, exists := f.creators[driver]
	f.mu.RUnlock()

	if !exists {
		return nil, core.NewError(core.ErrUnknownDriver, fmt.Sprintf("unknown message bus driver: %s", driver))
	}

	bus, err := creator(ctx, config, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s driver: %w", driver, err)
	}
	return bus, nil
}

// Drivers возвращает отсортированный список зарегистрированных драйверов
func (f *Factory) Drivers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
