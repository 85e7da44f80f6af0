package messagebus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/core"
	"github.com/akriventsev/library-gateway/framework/transport"
)

// KafkaConfig конфигурация для Kafka адаптера
type KafkaConfig struct {
	Brokers     []string
	GroupID     string
	Compression string // none, gzip, snappy, lz4, zstd
	// RequiredAcks 0, 1, -1 (all)
	RequiredAcks   int
	BatchTimeout   time.Duration
	WriteTimeout   time.Duration
	ConsumerConfig KafkaConsumerConfig
	Redelivery     RedeliveryPolicy
	// DeadLetterSuffix добавляется к топику для сообщений, исчерпавших повторы.
	// Пустая строка отключает DLQ.
	DeadLetterSuffix string
}

// KafkaConsumerConfig конфигурация для Kafka consumer
type KafkaConsumerConfig struct {
	MinBytes    int
	MaxBytes    int
	MaxWait     time.Duration
	StartOffset int64 // kafka.FirstOffset или kafka.LastOffset
}

// Validate проверяет корректность конфигурации
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers cannot be empty")
	}
	for i, broker := range c.Brokers {
		if broker == "" {
			return fmt.Errorf("broker[%d] cannot be empty", i)
		}
		if !strings.Contains(broker, ":") {
			return fmt.Errorf("broker[%d] must be in format host:port", i)
		}
	}
	if c.GroupID == "" {
		return fmt.Errorf("group id cannot be empty")
	}
	return nil
}

// DefaultKafkaConfig возвращает конфигурацию Kafka по умолчанию
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		GroupID:      "library-gateway",
		Compression:  "snappy",
		RequiredAcks: -1,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		ConsumerConfig: KafkaConsumerConfig{
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     time.Second,
			StartOffset: kafka.FirstOffset,
		},
		Redelivery:       DefaultRedeliveryPolicy(),
		DeadLetterSuffix: ".dlq",
	}
}

// KafkaAdapter реализация MessageBus через Kafka. Публикация синхронная:
// Publish возвращается после подтверждения брокером с учетом RequiredAcks.
type KafkaAdapter struct {
	config    KafkaConfig
	opts      options
	writer    *kafka.Writer
	newReader func(subject string) kafkaReader

	mu   sync.Mutex
	subs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

// kafkaReader часть kafka.Reader, нужная consumer group циклу
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// errUncommitted сообщение не обработано и не перенесено в DLQ
var errUncommitted = errors.New("kafka message left uncommitted")

// NewKafkaAdapter создает новый Kafka адаптер
func NewKafkaAdapter(config KafkaConfig, opts ...Option) (*KafkaAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid kafka config")
	}

	k := &KafkaAdapter{
		config: config,
		opts:   buildOptions("kafka", opts),
		subs:   make(map[string]context.CancelFunc),
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(config.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequiredAcks(config.RequiredAcks),
			BatchTimeout:           config.BatchTimeout,
			WriteTimeout:           config.WriteTimeout,
			Compression:            compressionCodec(config.Compression),
			AllowAutoTopicCreation: true,
		},
	}
	k.newReader = k.openReader
	return k, nil
}

func compressionCodec(compression string) kafka.Compression {
	switch compression {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

// Name возвращает имя компонента
func (k *KafkaAdapter) Name() string { return "kafka-bus" }

// Type возвращает тип компонента
func (k *KafkaAdapter) Type() core.ComponentType { return core.ComponentTypeMessageBus }

// Publish публикует сообщение в топик
func (k *KafkaAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()

	err := k.writer.WriteMessages(ctx, toKafkaMessage(subject, data, headers))
	k.opts.metrics.RecordTransport(ctx, "kafka", "publish", time.Since(start), err == nil)
	if err != nil {
		return core.Wrapf(err, core.ErrPublishFailed, "kafka publish to %s", subject)
	}
	return nil
}

func toKafkaMessage(subject string, data []byte, headers map[string]string) kafka.Message {
	msg := kafka.Message{
		Topic: subject,
		Value: data,
	}
	if key, ok := headers[transport.HeaderMessageKey]; ok {
		msg.Key = []byte(key)
	}
	if len(headers) > 0 {
		msg.Headers = make([]kafka.Header, 0, len(headers))
		for k, v := range headers {
			msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}
	return msg
}

func fromKafkaMessage(msg kafka.Message) *transport.Message {
	out := &transport.Message{
		Subject: msg.Topic,
		Data:    msg.Value,
		Headers: make(map[string]string, len(msg.Headers)),
	}
	for _, h := range msg.Headers {
		out.Headers[h.Key] = string(h.Value)
	}
	return out
}

// Subscribe подписывается на топик в составе consumer group. Offset
// коммитится после успешной обработки или после переноса сообщения в DLQ.
// Если сообщение не удалось ни обработать, ни перенести, reader
// пересоздается и чтение продолжается с последнего закоммиченного offset.
func (k *KafkaAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	subCtx, cancel := context.WithCancel(ctx)
	k.mu.Lock()
	if _, exists := k.subs[subject]; exists {
		k.mu.Unlock()
		cancel()
		return core.NewError(core.ErrSubscribeFailed, fmt.Sprintf("already subscribed to %s", subject))
	}
	k.subs[subject] = cancel
	k.mu.Unlock()

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		k.run(subCtx, subject, handler)
	}()

	return nil
}

func (k *KafkaAdapter) openReader(subject string) kafkaReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.config.Brokers,
		Topic:       subject,
		GroupID:     k.config.GroupID,
		MinBytes:    k.config.ConsumerConfig.MinBytes,
		MaxBytes:    k.config.ConsumerConfig.MaxBytes,
		MaxWait:     k.config.ConsumerConfig.MaxWait,
		StartOffset: k.config.ConsumerConfig.StartOffset,
	})
}

func (k *KafkaAdapter) run(ctx context.Context, subject string, handler transport.MessageHandler) {
	for {
		reader := k.newReader(subject)
		err := k.consume(ctx, reader, handler)
		_ = reader.Close()
		if err == nil || ctx.Err() != nil {
			return
		}

		// Коммиты в группе кумулятивны: следующий успешный коммит
		// перескочил бы через необработанное сообщение
		k.opts.logger.Warn("kafka consumer restarts from committed offset",
			zap.String("topic", subject), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(k.config.Redelivery.Delay):
		}
	}
}

// consume читает сообщения до отмены ctx. Возвращает errUncommitted, если
// сообщение нельзя закоммитить и чтение партиции надо начать заново.
func (k *KafkaAdapter) consume(ctx context.Context, reader kafkaReader, handler transport.MessageHandler) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			k.opts.logger.Warn("kafka fetch failed", zap.Error(err))
			continue
		}

		tm := fromKafkaMessage(msg)
		if err := k.config.Redelivery.deliver(ctx, "kafka", k.opts, tm, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !k.deadLetter(ctx, tm, err) {
				return fmt.Errorf("%w: %s offset %d", errUncommitted, msg.Topic, msg.Offset)
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			k.opts.logger.Warn("kafka commit failed",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
	}
}

// deadLetter переносит сообщение в DLQ. Возвращает true, если offset можно коммитить.
func (k *KafkaAdapter) deadLetter(ctx context.Context, msg *transport.Message, reason error) bool {
	if k.config.DeadLetterSuffix == "" {
		return false
	}
	headers := transport.CopyHeaders(msg.Headers)
	headers["dlq-original-topic"] = msg.Subject
	headers["dlq-reason"] = reason.Error()
	headers["dlq-timestamp"] = time.Now().UTC().Format(time.RFC3339)

	dlq := msg.Subject + k.config.DeadLetterSuffix
	if err := k.Publish(ctx, dlq, msg.Data, headers); err != nil {
		k.opts.logger.Error("kafka dead letter publish failed", zap.String("topic", dlq), zap.Error(err))
		return false
	}
	return true
}

// Unsubscribe отписывается от топика
func (k *KafkaAdapter) Unsubscribe(subject string) error {
	k.mu.Lock()
	cancel, exists := k.subs[subject]
	delete(k.subs, subject)
	k.mu.Unlock()

	if exists {
		cancel()
	}
	return nil
}

// Close останавливает consumers и закрывает writer
func (k *KafkaAdapter) Close() error {
	k.mu.Lock()
	for subject, cancel := range k.subs {
		cancel()
		delete(k.subs, subject)
	}
	k.mu.Unlock()

	k.wg.Wait()
	return k.writer.Close()
}

// HealthCheck проверяет доступность хотя бы одного брокера
func (k *KafkaAdapter) HealthCheck(ctx context.Context) error {
	var lastErr error
	for _, broker := range k.config.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return core.Wrap(lastErr, core.ErrConnectionFailed, "no kafka broker is reachable")
}
