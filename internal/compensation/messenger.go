// Package compensation доставляет корректирующие сообщения сервисам-владельцам
// данных, когда синхронная запись не была подтверждена: публикация на стороне
// шлюза и применение на стороне обработчика очереди.
package compensation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/core"
	"github.com/akriventsev/library-gateway/framework/metrics"
	"github.com/akriventsev/library-gateway/framework/transport"
	"github.com/akriventsev/library-gateway/internal/domain"
)

// HeaderCorrectionKind заголовок с видом корректирующего сообщения
const HeaderCorrectionKind = "correction-kind"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Messenger публикует корректирующие сообщения
type Messenger interface {
	Publish(ctx context.Context, correction domain.Correction) error
}

// Topics топики корректирующих сообщений по видам
type Topics struct {
	LibraryAvailability string
	Rating              string
}

// DefaultTopics возвращает топики по умолчанию
func DefaultTopics() Topics {
	return Topics{
		LibraryAvailability: "library.corrections",
		Rating:              "rating.corrections",
	}
}

// For возвращает топик для вида сообщения
func (t Topics) For(kind domain.CorrectionKind) (string, error) {
	switch kind {
	case domain.KindLibraryAvailability:
		return t.LibraryAvailability, nil
	case domain.KindRating:
		return t.Rating, nil
	}
	return "", fmt.Errorf("unknown correction kind %q", kind)
}

// Validate проверяет топики
func (t Topics) Validate() error {
	if t.LibraryAvailability == "" || t.Rating == "" {
		return core.NewError(core.ErrInvalidConfig, "correction topics are required")
	}
	if t.LibraryAvailability == t.Rating {
		return core.NewError(core.ErrInvalidConfig, "correction topics must differ")
	}
	return nil
}

// Config конфигурация публикации
type Config struct {
	Topics Topics
	// EnqueueTimeout ограничение на публикацию одного сообщения
	EnqueueTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Topics:         DefaultTopics(),
		EnqueueTimeout: 2 * time.Second,
	}
}

// Validate проверяет конфигурацию
func (c Config) Validate() error {
	if err := c.Topics.Validate(); err != nil {
		return err
	}
	if c.EnqueueTimeout <= 0 {
		return core.NewError(core.ErrInvalidConfig, "enqueue timeout must be positive")
	}
	return nil
}

// Option настраивает публикацию и применение сообщений
type Option func(*settings)

type settings struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// WithLogger задает логгер
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics задает сборщик метрик
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithTracerProvider задает провайдер spans для применения корректировок
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

const tracerName = "github.com/akriventsev/library-gateway/internal/compensation"

func buildSettings(opts []Option) settings {
	s := settings{logger: zap.NewNop(), tracer: noop.NewTracerProvider().Tracer(tracerName)}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// BusMessenger публикует сообщения в message bus
type BusMessenger struct {
	publisher transport.Publisher
	config    Config
	settings
}

// NewBusMessenger создает Messenger поверх publisher
func NewBusMessenger(publisher transport.Publisher, config Config, opts ...Option) (*BusMessenger, error) {
	if publisher == nil {
		return nil, core.NewError(core.ErrInvalidConfig, "publisher is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &BusMessenger{
		publisher: publisher,
		config:    config,
		settings:  buildSettings(opts),
	}, nil
}

// Name возвращает имя компонента
func (m *BusMessenger) Name() string { return "compensation-messenger" }

// Type возвращает тип компонента
func (m *BusMessenger) Type() core.ComponentType { return core.ComponentTypeMessageBus }

// Publish сериализует сообщение и публикует его в топик вида. Публикация
// не зависит от отмены ctx вызывающего и ограничена EnqueueTimeout.
func (m *BusMessenger) Publish(ctx context.Context, correction domain.Correction) error {
	kind := correction.Kind()
	topic, err := m.config.Topics.For(kind)
	if err != nil {
		return err
	}

	data, err := json.Marshal(correction)
	if err != nil {
		return fmt.Errorf("encode %s correction: %w", kind, err)
	}

	headers := map[string]string{
		HeaderCorrectionKind:        string(kind),
		transport.HeaderMessageKey:  correction.Key(),
		transport.HeaderMessageID:   uuid.NewString(),
		transport.HeaderContentType: "application/json",
	}
	if id := core.CorrelationID(ctx); id != "" {
		headers[transport.HeaderCorrelationID] = id
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.EnqueueTimeout)
	defer cancel()

	if err := m.publisher.Publish(pubCtx, topic, data, headers); err != nil {
		m.metrics.RecordCorrection(ctx, string(kind), "publish_failed")
		m.logger.Error("failed to enqueue correction",
			zap.String("kind", string(kind)),
			zap.String("topic", topic),
			zap.String("key", correction.Key()),
			zap.Error(err))
		return fmt.Errorf("enqueue %s correction: %w", kind, err)
	}

	m.metrics.RecordCorrection(ctx, string(kind), "queued")
	m.logger.Info("correction enqueued",
		zap.String("kind", string(kind)),
		zap.String("topic", topic),
		zap.String("key", correction.Key()),
		zap.String("message_id", headers[transport.HeaderMessageID]))
	return nil
}
