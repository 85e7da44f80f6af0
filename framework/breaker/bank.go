package breaker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/metrics"
)

// Bank реестр именованных breakers. Один экземпляр создается при старте
// и передается потребителям через конструкторы.
type Bank struct {
	defaults  Config
	isFailure func(error) bool
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu        sync.RWMutex
	breakers  map[string]*Breaker
	overrides map[string]Config
}

// Option настраивает Bank
type Option func(*Bank)

// WithLogger задает логгер переходов состояний
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bank) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics задает сборщик метрик
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bank) { b.metrics = m }
}

// WithFailureClassifier задает, какие ошибки считаются отказом.
// По умолчанию отказом считается любая ошибка.
func WithFailureClassifier(isFailure func(error) bool) Option {
	return func(b *Bank) {
		if isFailure != nil {
			b.isFailure = isFailure
		}
	}
}

// WithOverride задает конфигурацию конкретного breaker
func WithOverride(name string, config Config) Option {
	return func(b *Bank) { b.overrides[name] = config }
}

// NewBank создает реестр с конфигурацией по умолчанию для всех breakers
func NewBank(defaults Config, opts ...Option) (*Bank, error) {
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid breaker defaults: %w", err)
	}

	b := &Bank{
		defaults:  defaults,
		isFailure: func(err error) bool { return err != nil },
		logger:    zap.NewNop(),
		breakers:  make(map[string]*Breaker),
		overrides: make(map[string]Config),
	}
	for _, opt := range opts {
		opt(b)
	}
	for name, cfg := range b.overrides {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config for breaker %s: %w", name, err)
		}
	}
	return b, nil
}

// Configure задает конфигурацию breaker до первого обращения к нему.
// Уже созданный breaker не перенастраивается.
func (b *Bank) Configure(name string, config Config) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config for breaker %s: %w", name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.breakers[name]; exists {
		return fmt.Errorf("breaker %s already in use", name)
	}
	b.overrides[name] = config
	return nil
}

// Get возвращает breaker по имени, создавая его при первом обращении
func (b *Bank) Get(name string) *Breaker {
	b.mu.RLock()
	br, ok := b.breakers[name]
	b.mu.RUnlock()
	if ok {
		return br
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if br, ok = b.breakers[name]; ok {
		return br
	}

	cfg, ok := b.overrides[name]
	if !ok {
		cfg = b.defaults
	}
	br = b.newBreaker(name, cfg)
	b.breakers[name] = br

	b.logger.Debug("circuit breaker created",
		zap.String("breaker", name),
		zap.Int("window_size", cfg.WindowSize),
		zap.Float64("failure_rate_threshold", cfg.FailureRateThreshold),
		zap.Duration("wait_in_open", cfg.WaitInOpen))
	return br
}

func (b *Bank) newBreaker(name string, cfg Config) *Breaker {
	br := &Breaker{
		name:      name,
		config:    cfg,
		window:    newWindow(cfg.WindowSize),
		isFailure: b.isFailure,
		bank:      b,
	}
	br.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenCalls,
		Interval:    0,
		Timeout:     cfg.WaitInOpen,
		ReadyToTrip: br.readyToTrip,
		IsSuccessful: func(err error) bool {
			return err == nil || !b.isFailure(err)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			br.window.reset()
			b.stateChanged(name, fromGobreaker(from), fromGobreaker(to))
		},
	})
	return br
}

func (b *Bank) stateChanged(name string, from, to State) {
	fields := []zap.Field{
		zap.String("breaker", name),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	}
	if to == StateOpen {
		b.logger.Warn("circuit breaker opened", fields...)
	} else {
		b.logger.Info("circuit breaker state changed", fields...)
	}
	b.metrics.RecordBreakerTransition(context.Background(), name, string(from), string(to))
}

func (b *Bank) fallbackUsed(ctx context.Context, name, reason string) {
	b.metrics.RecordFallback(ctx, name, reason)
}

// States возвращает состояния всех созданных breakers
func (b *Bank) States() map[string]State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	states := make(map[string]State, len(b.breakers))
	for name, br := range b.breakers {
		states[name] = br.State()
	}
	return states
}

// Names возвращает отсортированные имена созданных breakers
func (b *Bank) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.breakers))
	for name := range b.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
