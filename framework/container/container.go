// Package container предоставляет контейнер зависимостей приложения:
// именованные компоненты, запуск в порядке регистрации и остановку
// в обратном порядке.
package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/core"
)

// Config конфигурация контейнера
type Config struct {
	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{ShutdownTimeout: 30 * time.Second}
}

// Container контейнер зависимостей
type Container struct {
	config Config
	logger *zap.Logger

	mu           sync.RWMutex
	dependencies map[string]interface{}
	order        []string
	started      []string
}

// NewContainer создает новый контейнер
func NewContainer(config Config, logger *zap.Logger) *Container {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Container{
		config:       config,
		logger:       logger,
		dependencies: make(map[string]interface{}),
	}
}

// Set регистрирует зависимость. Компоненты, реализующие core.Lifecycle,
// запускаются в порядке регистрации.
func Set[T any](c *Container, key string, value T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.dependencies[key]; exists {
		return fmt.Errorf("dependency %s already registered", key)
	}
	c.dependencies[key] = value
	c.order = append(c.order, key)
	return nil
}

// Get получает зависимость по ключу и типу
func Get[T any](c *Container, key string) (T, error) {
	var zero T
	c.mu.RLock()
	defer c.mu.RUnlock()

	dep, exists := c.dependencies[key]
	if !exists {
		return zero, fmt.Errorf("dependency %s not found", key)
	}
	typed, ok := dep.(T)
	if !ok {
		return zero, fmt.Errorf("dependency %s has type %T", key, dep)
	}
	return typed, nil
}

// Keys возвращает ключи в порядке регистрации
func (c *Container) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// HealthCheckables возвращает зависимости, умеющие проверять себя
func (c *Container) HealthCheckables() map[string]core.HealthCheckable {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]core.HealthCheckable)
	for key, dep := range c.dependencies {
		if hc, ok := dep.(core.HealthCheckable); ok {
			result[key] = hc
		}
	}
	return result
}

// Start запускает компоненты core.Lifecycle. При ошибке уже запущенные
// компоненты останавливаются в обратном порядке.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	keys := append([]string(nil), c.order...)
	c.mu.Unlock()

	for _, key := range keys {
		lc, ok := c.lifecycle(key)
		if !ok || lc.IsRunning() {
			continue
		}
		if err := lc.Start(ctx); err != nil {
			c.logger.Error("component failed to start", zap.String("component", key), zap.Error(err))
			if rbErr := c.stopStarted(ctx); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			return core.Wrap(err, core.ErrInitializationFailed, "failed to start "+key)
		}
		c.mu.Lock()
		c.started = append(c.started, key)
		c.mu.Unlock()
		c.logger.Info("component started", zap.String("component", key))
	}
	return nil
}

// Shutdown останавливает запущенные компоненты и закрывает io.Closer
// в обратном порядке регистрации
func (c *Container) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ShutdownTimeout)
	defer cancel()

	errs := []error{c.stopStarted(ctx)}

	c.mu.RLock()
	keys := append([]string(nil), c.order...)
	c.mu.RUnlock()

	for i := len(keys) - 1; i >= 0; i-- {
		c.mu.RLock()
		dep := c.dependencies[keys[i]]
		c.mu.RUnlock()

		if _, isLifecycle := dep.(core.Lifecycle); isLifecycle {
			continue
		}
		closer, ok := dep.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			c.logger.Warn("component failed to close", zap.String("component", keys[i]), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", keys[i], err))
		}
	}
	return errors.Join(errs...)
}

// Names возвращает имена зарегистрированных core.Component
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var names []string
	for _, dep := range c.dependencies {
		if comp, ok := dep.(core.Component); ok {
			names = append(names, comp.Name())
		}
	}
	sort.Strings(names)
	return names
}

func (c *Container) lifecycle(key string) (core.Lifecycle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lc, ok := c.dependencies[key].(core.Lifecycle)
	return lc, ok
}

func (c *Container) stopStarted(ctx context.Context) error {
	c.mu.Lock()
	started := c.started
	c.started = nil
	c.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		lc, ok := c.lifecycle(started[i])
		if !ok {
			continue
		}
		if err := lc.Stop(ctx); err != nil {
			c.logger.Warn("component failed to stop", zap.String("component", started[i]), zap.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", started[i], err))
			continue
		}
		c.logger.Info("component stopped", zap.String("component", started[i]))
	}
	return errors.Join(errs...)
}
