package messagebus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/core"
	"github.com/akriventsev/library-gateway/framework/transport"
)

// InMemoryConfig конфигурация для InMemory адаптера
type InMemoryConfig struct {
	// BufferSize емкость очереди одного subject
	BufferSize int
	// Redelivery после исчерпания повторов сообщение отбрасывается
	Redelivery RedeliveryPolicy
}

// DefaultInMemoryConfig возвращает конфигурацию InMemory по умолчанию
func DefaultInMemoryConfig() InMemoryConfig {
	return InMemoryConfig{
		BufferSize: 1000,
		Redelivery: RedeliveryPolicy{MaxRedeliveries: 5, Delay: 100 * time.Millisecond},
	}
}

// InMemoryAdapter очередь в памяти процесса. Сообщения, опубликованные до
// подписки, ждут в буфере subject. Несколько подписчиков одного subject
// конкурируют за сообщения.
//
// Драйвер для тестов и локальной разработки: очередь живет только в памяти
// процесса и теряется при его остановке. Сообщение, доставка которого
// прервана отменой подписки, возвращается в конец буфера, если в нем есть
// место, иначе отбрасывается с ошибкой в журнале.
type InMemoryAdapter struct {
	config InMemoryConfig
	opts   options

	mu     sync.Mutex
	queues map[string]chan *transport.Message
	subs   map[string][]context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewInMemoryAdapter создает новый InMemory адаптер
func NewInMemoryAdapter(config InMemoryConfig, opts ...Option) *InMemoryAdapter {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultInMemoryConfig().BufferSize
	}
	return &InMemoryAdapter{
		config: config,
		opts:   buildOptions("inmemory", opts),
		queues: make(map[string]chan *transport.Message),
		subs:   make(map[string][]context.CancelFunc),
	}
}

// Name возвращает имя компонента
func (i *InMemoryAdapter) Name() string { return "inmemory-bus" }

// Type возвращает тип компонента
func (i *InMemoryAdapter) Type() core.ComponentType { return core.ComponentTypeMessageBus }

func (i *InMemoryAdapter) queue(subject string) (chan *transport.Message, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil, core.NewError(core.ErrNotRunning, "inmemory bus is closed")
	}
	q, ok := i.queues[subject]
	if !ok {
		q = make(chan *transport.Message, i.config.BufferSize)
		i.queues[subject] = q
	}
	return q, nil
}

// Publish помещает сообщение в очередь subject. Блокируется, пока в буфере
// нет места или не истек ctx.
func (i *InMemoryAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()
	q, err := i.queue(subject)
	if err != nil {
		return err
	}

	msg := &transport.Message{
		Subject: subject,
		Data:    append([]byte(nil), data...),
		Headers: transport.CopyHeaders(headers),
	}

	select {
	case q <- msg:
		i.opts.metrics.RecordTransport(ctx, "inmemory", "publish", time.Since(start), true)
		return nil
	case <-ctx.Done():
		i.opts.metrics.RecordTransport(ctx, "inmemory", "publish", time.Since(start), false)
		return core.Wrapf(ctx.Err(), core.ErrPublishFailed, "inmemory publish to %s", subject)
	}
}

// Subscribe запускает обработчик subject до отмены ctx или Unsubscribe
func (i *InMemoryAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	q, err := i.queue(subject)
	if err != nil {
		return err
	}

	subCtx, cancel := context.WithCancel(ctx)
	i.mu.Lock()
	i.subs[subject] = append(i.subs[subject], cancel)
	i.mu.Unlock()

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg := <-q:
				if subCtx.Err() != nil && i.requeue(q, msg) {
					return
				}
				err := i.config.Redelivery.deliver(subCtx, "inmemory", i.opts, msg, handler)
				if err == nil {
					continue
				}
				if subCtx.Err() != nil && i.requeue(q, msg) {
					return
				}
				i.opts.logger.Error("message dropped", zap.String("subject", msg.Subject), zap.Error(err))
			}
		}
	}()

	return nil
}

// requeue возвращает сообщение в буфер без ожидания
func (i *InMemoryAdapter) requeue(q chan *transport.Message, msg *transport.Message) bool {
	select {
	case q <- msg:
		return true
	default:
		return false
	}
}

// Unsubscribe останавливает все обработчики subject. Недоставленные
// сообщения остаются в очереди.
func (i *InMemoryAdapter) Unsubscribe(subject string) error {
	i.mu.Lock()
	cancels := i.subs[subject]
	delete(i.subs, subject)
	i.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

// Pending возвращает количество недоставленных сообщений subject
func (i *InMemoryAdapter) Pending(subject string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.queues[subject])
}

// Close останавливает обработчики и закрывает адаптер
func (i *InMemoryAdapter) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	for subject, cancels := range i.subs {
		for _, cancel := range cancels {
			cancel()
		}
		delete(i.subs, subject)
	}
	i.mu.Unlock()

	i.wg.Wait()
	return nil
}

// HealthCheck сообщает об ошибке после Close
func (i *InMemoryAdapter) HealthCheck(_ context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return core.NewError(core.ErrNotRunning, "in-memory bus is closed")
	}
	return nil
}
