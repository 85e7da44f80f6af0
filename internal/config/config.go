// Package config загружает конфигурацию gateway и correction worker из
// переменных окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/akriventsev/library-gateway/framework/adapters/messagebus"
	"github.com/akriventsev/library-gateway/framework/adapters/transport"
	"github.com/akriventsev/library-gateway/framework/breaker"
	"github.com/akriventsev/library-gateway/framework/core"
	"github.com/akriventsev/library-gateway/framework/observability"
	"github.com/akriventsev/library-gateway/internal/clients"
	"github.com/akriventsev/library-gateway/internal/compensation"
	"github.com/akriventsev/library-gateway/internal/orchestrator"
)

const (
	ServiceName    = "library-gateway"
	ServiceVersion = "0.1.0"
)

// Форматы логов
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// LogConfig конфигурация логгера
type LogConfig struct {
	Level  string
	Format string
}

// Config конфигурация процесса
type Config struct {
	HTTP         transport.RESTConfig
	Library      clients.Config
	Rating       clients.Config
	Reservation  clients.Config
	Breaker      breaker.Config
	Orchestrator orchestrator.Config
	Compensation compensation.Config

	// MessageBus имя драйвера корректирующих сообщений
	MessageBus string
	Bus        messagebus.Config
	// WorkerGroup группа потребителей correction worker
	WorkerGroup string

	Log     LogConfig
	Tracing observability.TracingConfig
	// OpenAPIValidation включает проверку входящих запросов по OpenAPI документу
	OpenAPIValidation bool
}

// Load читает конфигурацию из окружения; отсутствующие переменные
// заменяются значениями по умолчанию
func Load() (*Config, error) {
	p := &parser{}

	clientTimeout := p.duration("CLIENT_TIMEOUT", 5*time.Second)

	cfg := &Config{
		HTTP: transport.DefaultRESTConfig(),
		Library: clients.Config{
			BaseURL: getEnvOrDefault("LIBRARY_SERVICE_URL", "http://localhost:8060/api/v1"),
			Timeout: clientTimeout,
		},
		Rating: clients.Config{
			BaseURL: getEnvOrDefault("RATING_SERVICE_URL", "http://localhost:8050/api/v1"),
			Timeout: clientTimeout,
		},
		Reservation: clients.Config{
			BaseURL: getEnvOrDefault("RESERVATION_SERVICE_URL", "http://localhost:8070/api/v1"),
			Timeout: clientTimeout,
		},
		Breaker:      breaker.DefaultConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
		Compensation: compensation.DefaultConfig(),
		MessageBus:   getEnvOrDefault("MESSAGE_BUS", messagebus.DriverKafka),
		Bus:          messagebus.DefaultConfig(),
		WorkerGroup:  getEnvOrDefault("WORKER_GROUP", ServiceName),
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", LogFormatJSON),
		},
		Tracing:           observability.DefaultTracingConfig(),
		OpenAPIValidation: p.bool("OPENAPI_VALIDATION", false),
	}

	cfg.HTTP.Addr = getEnvOrDefault("HTTP_ADDR", cfg.HTTP.Addr)

	cfg.Breaker.WindowSize = p.int("BREAKER_WINDOW_SIZE", cfg.Breaker.WindowSize)
	cfg.Breaker.FailureRateThreshold = p.float("BREAKER_FAILURE_RATE", cfg.Breaker.FailureRateThreshold)
	cfg.Breaker.MinimumCalls = p.int("BREAKER_MIN_CALLS", cfg.Breaker.MinimumCalls)
	cfg.Breaker.WaitInOpen = p.duration("BREAKER_OPEN_WAIT", cfg.Breaker.WaitInOpen)
	cfg.Breaker.HalfOpenCalls = uint32(p.int("BREAKER_HALF_OPEN_CALLS", int(cfg.Breaker.HalfOpenCalls)))

	cfg.Orchestrator.EnrichConcurrency = p.int("ENRICH_CONCURRENCY", cfg.Orchestrator.EnrichConcurrency)

	cfg.Compensation.Topics.LibraryAvailability = getEnvOrDefault("LIBRARY_CORRECTIONS_TOPIC", cfg.Compensation.Topics.LibraryAvailability)
	cfg.Compensation.Topics.Rating = getEnvOrDefault("RATING_CORRECTIONS_TOPIC", cfg.Compensation.Topics.Rating)
	cfg.Compensation.EnqueueTimeout = p.duration("COMPENSATION_ENQUEUE_TIMEOUT", cfg.Compensation.EnqueueTimeout)

	cfg.Bus.Kafka.Brokers = splitList(getEnvOrDefault("KAFKA_BROKERS", strings.Join(cfg.Bus.Kafka.Brokers, ",")))
	cfg.Bus.NATS.URL = getEnvOrDefault("NATS_URL", cfg.Bus.NATS.URL)
	cfg.Bus.Redis.Addr = getEnvOrDefault("REDIS_ADDR", cfg.Bus.Redis.Addr)
	cfg.Bus.RabbitMQ.URL = getEnvOrDefault("RABBITMQ_URL", cfg.Bus.RabbitMQ.URL)
	cfg.Bus.Postgres.DSN = getEnvOrDefault("POSTGRES_DSN", cfg.Bus.Postgres.DSN)
	cfg.applyWorkerGroup()

	cfg.Tracing.ServiceName = ServiceName
	cfg.Tracing.ServiceVersion = ServiceVersion
	cfg.Tracing.Environment = getEnvOrDefault("ENVIRONMENT", cfg.Tracing.Environment)
	cfg.Tracing.Exporter = getEnvOrDefault("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ExporterEndpoint = os.Getenv("TRACING_ENDPOINT")
	cfg.Tracing.SamplingRate = p.float("TRACING_SAMPLE_RATE", cfg.Tracing.SamplingRate)

	if err := p.err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyWorkerGroup распространяет группу потребителей и топики на драйверы
func (c *Config) applyWorkerGroup() {
	c.Bus.Kafka.GroupID = c.WorkerGroup
	c.Bus.NATS.Durable = c.WorkerGroup
	c.Bus.NATS.Subjects = []string{c.Compensation.Topics.LibraryAvailability, c.Compensation.Topics.Rating}
	c.Bus.Redis.ConsumerGroup = c.WorkerGroup
	c.Bus.RabbitMQ.QueuePrefix = c.WorkerGroup
}

// Validate проверяет конфигурацию целиком
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	for name, client := range map[string]clients.Config{
		"library":     c.Library,
		"rating":      c.Rating,
		"reservation": c.Reservation,
	} {
		if err := client.Validate(); err != nil {
			return fmt.Errorf("%s client: %w", name, err)
		}
	}
	if err := c.Breaker.Validate(); err != nil {
		return core.Wrap(err, core.ErrInvalidConfig, "breaker")
	}
	if err := c.Orchestrator.Validate(); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	if err := c.Compensation.Validate(); err != nil {
		return fmt.Errorf("compensation: %w", err)
	}
	if err := c.validateBus(); err != nil {
		return err
	}
	if c.WorkerGroup == "" {
		return core.NewError(core.ErrInvalidConfig, "worker group is required")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return core.Wrap(err, core.ErrInvalidConfig, "log level")
	}
	if c.Log.Format != LogFormatJSON && c.Log.Format != LogFormatConsole {
		return core.NewError(core.ErrInvalidConfig, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

func (c *Config) validateBus() error {
	var err error
	switch c.MessageBus {
	case messagebus.DriverKafka:
		err = c.Bus.Kafka.Validate()
	case messagebus.DriverNATS:
		err = c.Bus.NATS.Validate()
	case messagebus.DriverRedis:
		err = c.Bus.Redis.Validate()
	case messagebus.DriverRabbitMQ:
		err = c.Bus.RabbitMQ.Validate()
	case messagebus.DriverPostgres:
		err = c.Bus.Postgres.Validate()
	case messagebus.DriverInMemory:
	default:
		return core.NewError(core.ErrUnknownDriver, fmt.Sprintf("unknown message bus %q", c.MessageBus))
	}
	if err != nil {
		return core.Wrapf(err, core.ErrInvalidConfig, "message bus %s", c.MessageBus)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// parser накапливает ошибки разбора, чтобы сообщить обо всех сразу
type parser struct {
	errs []error
}

func (p *parser) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) bool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return core.Wrap(errors.Join(p.errs...), core.ErrInvalidConfig, "invalid environment")
}
