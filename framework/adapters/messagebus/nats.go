package messagebus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/core"
	"github.com/akriventsev/library-gateway/framework/transport"
)

// NATSConfig конфигурация для NATS JetStream адаптера
type NATSConfig struct {
	URL               string
	MaxReconnects     int
	ReconnectWait     time.Duration
	ConnectionTimeout time.Duration
	Token             string
	Username          string
	Password          string
	// StreamName JetStream stream, в котором хранятся сообщения
	StreamName string
	// Subjects subjects, которые попадают в stream
	Subjects []string
	// Durable имя durable consumer (очередь обработчиков)
	Durable    string
	AckWait    time.Duration
	MaxDeliver int
	NakDelay   time.Duration
}

// Validate проверяет корректность конфигурации
func (c NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if !strings.HasPrefix(c.URL, "nats://") && !strings.HasPrefix(c.URL, "tls://") {
		return fmt.Errorf("URL must start with nats:// or tls://")
	}
	if c.StreamName == "" {
		return fmt.Errorf("stream name cannot be empty")
	}
	if len(c.Subjects) == 0 {
		return fmt.Errorf("stream subjects cannot be empty")
	}
	return nil
}

// DefaultNATSConfig возвращает конфигурацию NATS по умолчанию
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:               "nats://localhost:4222",
		MaxReconnects:     10,
		ReconnectWait:     2 * time.Second,
		ConnectionTimeout: 5 * time.Second,
		StreamName:        "CORRECTIONS",
		Durable:           "library-gateway",
		AckWait:           30 * time.Second,
		MaxDeliver:        10,
		NakDelay:          time.Second,
	}
}

// NATSAdapter реализация MessageBus через NATS JetStream
type NATSAdapter struct {
	config NATSConfig
	opts   options
	conn   *nats.Conn
	js     nats.JetStreamContext

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSAdapterBuilder построитель для NATS адаптера
type NATSAdapterBuilder struct {
	config NATSConfig
	opts   []Option
}

// NewNATSAdapterBuilder создает новый построитель NATS адаптера
func NewNATSAdapterBuilder() *NATSAdapterBuilder {
	return &NATSAdapterBuilder{config: DefaultNATSConfig()}
}

// WithConfig заменяет конфигурацию целиком
func (b *NATSAdapterBuilder) WithConfig(config NATSConfig) *NATSAdapterBuilder {
	b.config = config
	return b
}

// WithURL устанавливает URL сервера
func (b *NATSAdapterBuilder) WithURL(url string) *NATSAdapterBuilder {
	b.config.URL = url
	return b
}

// WithStream задает stream и его subjects
func (b *NATSAdapterBuilder) WithStream(name string, subjects ...string) *NATSAdapterBuilder {
	b.config.StreamName = name
	b.config.Subjects = subjects
	return b
}

// WithDurable задает имя durable consumer
func (b *NATSAdapterBuilder) WithDurable(durable string) *NATSAdapterBuilder {
	b.config.Durable = durable
	return b
}

// WithCredentials устанавливает логин и пароль
func (b *NATSAdapterBuilder) WithCredentials(username, password string) *NATSAdapterBuilder {
	b.config.Username = username
	b.config.Password = password
	return b
}

// WithOptions добавляет общие опции драйвера
func (b *NATSAdapterBuilder) WithOptions(opts ...Option) *NATSAdapterBuilder {
	b.opts = append(b.opts, opts...)
	return b
}

// Build подключается к серверу и создает stream, если его нет
func (b *NATSAdapterBuilder) Build(ctx context.Context) (*NATSAdapter, error) {
	if err := b.config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid nats config")
	}

	adapter := &NATSAdapter{
		config: b.config,
		opts:   buildOptions("nats", b.opts),
		subs:   make(map[string]*nats.Subscription),
	}
	if err := adapter.connect(ctx); err != nil {
		return nil, err
	}
	return adapter, nil
}

func (n *NATSAdapter) connect(ctx context.Context) error {
	logger := n.opts.logger
	natsOpts := []nats.Option{
		nats.MaxReconnects(n.config.MaxReconnects),
		nats.ReconnectWait(n.config.ReconnectWait),
		nats.Timeout(n.config.ConnectionTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if n.config.Token != "" {
		natsOpts = append(natsOpts, nats.Token(n.config.Token))
	}
	if n.config.Username != "" && n.config.Password != "" {
		natsOpts = append(natsOpts, nats.UserInfo(n.config.Username, n.config.Password))
	}

	conn, err := nats.Connect(n.config.URL, natsOpts...)
	if err != nil {
		return core.Wrap(err, core.ErrConnectionFailed, "failed to connect to NATS")
	}

	js, err := conn.JetStream(nats.Context(ctx))
	if err != nil {
		conn.Close()
		return core.Wrap(err, core.ErrConnectionFailed, "failed to open JetStream context")
	}

	streamCfg := &nats.StreamConfig{
		Name:     n.config.StreamName,
		Subjects: n.config.Subjects,
		Storage:  nats.FileStorage,
	}
	if _, err := js.AddStream(streamCfg, nats.Context(ctx)); err != nil {
		if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			conn.Close()
			return core.Wrapf(err, core.ErrInitializationFailed, "failed to create stream %s", n.config.StreamName)
		}
		if _, err := js.UpdateStream(streamCfg, nats.Context(ctx)); err != nil {
			conn.Close()
			return core.Wrapf(err, core.ErrInitializationFailed, "failed to update stream %s", n.config.StreamName)
		}
	}

	n.conn = conn
	n.js = js
	return nil
}

// Name возвращает имя компонента
func (n *NATSAdapter) Name() string { return "nats-bus" }

// Type возвращает тип компонента
func (n *NATSAdapter) Type() core.ComponentType { return core.ComponentTypeMessageBus }

// Publish публикует сообщение и ждет PubAck от JetStream
func (n *NATSAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()

	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	if id, ok := headers[transport.HeaderMessageID]; ok {
		// дедупликация на стороне JetStream
		msg.Header.Set(nats.MsgIdHdr, id)
	}

	_, err := n.js.PublishMsg(msg, nats.Context(ctx))
	n.opts.metrics.RecordTransport(ctx, "nats", "publish", time.Since(start), err == nil)
	if err != nil {
		return core.Wrapf(err, core.ErrPublishFailed, "nats publish to %s", subject)
	}
	return nil
}

// Subscribe создает durable queue-подписку с ручным подтверждением.
// Ошибка обработчика приводит к Nak с задержкой, JetStream повторяет
// доставку до MaxDeliver раз.
func (n *NATSAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	durable := n.durableName(subject)
	sub, err := n.js.QueueSubscribe(subject, durable, func(m *nats.Msg) {
		n.handle(ctx, fromNATSMsg(m), m, handler)
	},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckWait(n.config.AckWait),
		nats.MaxDeliver(n.config.MaxDeliver),
		nats.BindStream(n.config.StreamName),
	)
	if err != nil {
		return core.Wrapf(err, core.ErrSubscribeFailed, "nats subscribe to %s", subject)
	}

	n.mu.Lock()
	n.subs[subject] = sub
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = n.Unsubscribe(subject)
	}()

	return nil
}

// natsAcker подтверждение сообщения JetStream, реализуется *nats.Msg
type natsAcker interface {
	Ack(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
}

func fromNATSMsg(m *nats.Msg) *transport.Message {
	msg := &transport.Message{
		Subject: m.Subject,
		Data:    m.Data,
		Headers: make(map[string]string, len(m.Header)),
	}
	for k := range m.Header {
		msg.Headers[strings.ToLower(k)] = m.Header.Get(k)
	}
	return msg
}

func (n *NATSAdapter) handle(ctx context.Context, msg *transport.Message, acker natsAcker, handler transport.MessageHandler) {
	start := time.Now()
	err := handler(ctx, msg)
	n.opts.metrics.RecordTransport(ctx, "nats", "consume", time.Since(start), err == nil)
	if err != nil {
		n.opts.logger.Warn("nats handler failed", zap.String("subject", msg.Subject), zap.Error(err))
		if err := acker.NakWithDelay(n.config.NakDelay); err != nil {
			n.opts.logger.Warn("nats nak failed", zap.String("subject", msg.Subject), zap.Error(err))
		}
		return
	}
	if err := acker.Ack(); err != nil {
		n.opts.logger.Warn("nats ack failed", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

func (n *NATSAdapter) durableName(subject string) string {
	// durable name не может содержать точки
	return n.config.Durable + "-" + strings.ReplaceAll(subject, ".", "-")
}

// Unsubscribe отписывается от subject, durable consumer сохраняется
func (n *NATSAdapter) Unsubscribe(subject string) error {
	n.mu.Lock()
	sub, ok := n.subs[subject]
	delete(n.subs, subject)
	n.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("failed to drain subscription %s: %w", subject, err)
	}
	return nil
}

// Close дренирует подписки и закрывает соединение
func (n *NATSAdapter) Close() error {
	if n.conn == nil {
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}

// HealthCheck проверяет состояние соединения с NATS
func (n *NATSAdapter) HealthCheck(_ context.Context) error {
	if status := n.conn.Status(); status != nats.CONNECTED {
		return core.NewError(core.ErrConnectionFailed, "nats connection is "+status.String())
	}
	return nil
}
