package messagebus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/core"
	"github.com/akriventsev/library-gateway/framework/transport"
)

var redisJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// RedisConfig конфигурация для Redis Streams адаптера
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	PoolSize      int
	StreamPrefix  string
	StreamMaxLen  int64 // 0 = без ограничений
	ConsumerGroup string
	ConsumerName  string
	BlockTimeout  time.Duration
	BatchSize     int64
	Redelivery    RedeliveryPolicy
}

// Validate проверяет корректность конфигурации
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.ConsumerGroup == "" {
		return fmt.Errorf("consumer group cannot be empty")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer name cannot be empty")
	}
	return nil
}

// DefaultRedisConfig возвращает конфигурацию Redis по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		PoolSize:      10,
		StreamPrefix:  "stream",
		StreamMaxLen:  100000,
		ConsumerGroup: "library-gateway",
		ConsumerName:  "gateway-1",
		BlockTimeout:  2 * time.Second,
		BatchSize:     10,
		Redelivery:    DefaultRedeliveryPolicy(),
	}
}

// RedisAdapter реализация MessageBus через Redis Streams. Сообщения, не
// подтвержденные обработчиком, остаются в PEL группы и перечитываются
// при следующей подписке того же consumer.
type RedisAdapter struct {
	config RedisConfig
	opts   options
	client redis.UniversalClient
	owned  bool

	mu   sync.Mutex
	subs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

// NewRedisAdapter подключается к Redis и создает адаптер
func NewRedisAdapter(ctx context.Context, config RedisConfig, opts ...Option) (*RedisAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid redis config")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, core.Wrap(err, core.ErrConnectionFailed, "failed to connect to Redis")
	}

	a := NewRedisAdapterFromClient(client, config, opts...)
	a.owned = true
	return a, nil
}

// NewRedisAdapterFromClient создает адаптер поверх существующего клиента.
// Клиент не закрывается в Close.
func NewRedisAdapterFromClient(client redis.UniversalClient, config RedisConfig, opts ...Option) *RedisAdapter {
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	return &RedisAdapter{
		config: config,
		opts:   buildOptions("redis", opts),
		client: client,
		subs:   make(map[string]context.CancelFunc),
	}
}

// Name возвращает имя компонента
func (r *RedisAdapter) Name() string { return "redis-bus" }

// Type возвращает тип компонента
func (r *RedisAdapter) Type() core.ComponentType { return core.ComponentTypeMessageBus }

// StreamName преобразует subject в имя stream
func (r *RedisAdapter) StreamName(subject string) string {
	if r.config.StreamPrefix == "" {
		return subject
	}
	return r.config.StreamPrefix + ":" + subject
}

// Publish добавляет сообщение в stream (XADD)
func (r *RedisAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()

	values := map[string]interface{}{"data": string(data)}
	if len(headers) > 0 {
		encoded, err := redisJSON.Marshal(headers)
		if err != nil {
			return core.Wrap(err, core.ErrPublishFailed, "failed to encode headers")
		}
		values["headers"] = string(encoded)
	}

	args := &redis.XAddArgs{
		Stream: r.StreamName(subject),
		Values: values,
	}
	if r.config.StreamMaxLen > 0 {
		args.MaxLen = r.config.StreamMaxLen
		args.Approx = true
	}

	err := r.client.XAdd(ctx, args).Err()
	r.opts.metrics.RecordTransport(ctx, "redis", "publish", time.Since(start), err == nil)
	if err != nil {
		return core.Wrapf(err, core.ErrPublishFailed, "redis publish to %s", subject)
	}
	return nil
}

// Subscribe читает stream через consumer group (XREADGROUP). Сначала
// дочитываются собственные неподтвержденные сообщения, затем новые.
func (r *RedisAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	stream := r.StreamName(subject)

	err := r.client.XGroupCreateMkStream(ctx, stream, r.config.ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return core.Wrapf(err, core.ErrSubscribeFailed, "failed to create consumer group for %s", stream)
	}

	subCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if _, exists := r.subs[subject]; exists {
		r.mu.Unlock()
		cancel()
		return core.NewError(core.ErrSubscribeFailed, fmt.Sprintf("already subscribed to %s", subject))
	}
	r.subs[subject] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.consume(subCtx, subject, stream, handler)
	}()

	return nil
}

func (r *RedisAdapter) consume(ctx context.Context, subject, stream string, handler transport.MessageHandler) {
	// "0" читает PEL этого consumer, ">" только новые сообщения
	cursor := "0"
	for ctx.Err() == nil {
		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.config.ConsumerGroup,
			Consumer: r.config.ConsumerName,
			Streams:  []string{stream, cursor},
			Count:    r.config.BatchSize,
			Block:    r.config.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			r.opts.logger.Warn("redis read failed", zap.String("stream", stream), zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, xmsg := range s.Messages {
				r.handle(ctx, subject, stream, xmsg, handler)
			}
		}
		cursor = ">"
	}
}

func (r *RedisAdapter) handle(ctx context.Context, subject, stream string, xmsg redis.XMessage, handler transport.MessageHandler) {
	msg := &transport.Message{
		Subject: subject,
		Headers: make(map[string]string),
	}
	if data, ok := xmsg.Values["data"].(string); ok {
		msg.Data = []byte(data)
	}
	if raw, ok := xmsg.Values["headers"].(string); ok {
		if err := redisJSON.Unmarshal([]byte(raw), &msg.Headers); err != nil {
			r.opts.logger.Warn("redis message headers are malformed", zap.String("id", xmsg.ID), zap.Error(err))
		}
	}

	if err := r.config.Redelivery.deliver(ctx, "redis", r.opts, msg, handler); err != nil {
		// остается в PEL и будет перечитано при следующей подписке
		return
	}
	if err := r.client.XAck(ctx, stream, r.config.ConsumerGroup, xmsg.ID).Err(); err != nil && ctx.Err() == nil {
		r.opts.logger.Warn("redis ack failed", zap.String("id", xmsg.ID), zap.Error(err))
	}
}

// Unsubscribe останавливает чтение stream
func (r *RedisAdapter) Unsubscribe(subject string) error {
	r.mu.Lock()
	cancel, ok := r.subs[subject]
	delete(r.subs, subject)
	r.mu.Unlock()

	if ok {
		cancel()
	}
	return nil
}

// Close останавливает consumers и закрывает клиент, если адаптер его создал
func (r *RedisAdapter) Close() error {
	r.mu.Lock()
	for subject, cancel := range r.subs {
		cancel()
		delete(r.subs, subject)
	}
	r.mu.Unlock()

	r.wg.Wait()
	if r.owned {
		return r.client.Close()
	}
	return nil
}

// HealthCheck выполняет PING
func (r *RedisAdapter) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return core.Wrap(err, core.ErrConnectionFailed, "redis ping failed")
	}
	return nil
}
