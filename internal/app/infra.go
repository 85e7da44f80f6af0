// Package app собирает процессы gateway и correction worker из конфигурации.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/adapters/messagebus"
	"github.com/akriventsev/library-gateway/framework/container"
	"github.com/akriventsev/library-gateway/framework/metrics"
	"github.com/akriventsev/library-gateway/framework/observability"
	"github.com/akriventsev/library-gateway/framework/transport"
	"github.com/akriventsev/library-gateway/internal/config"
)

// Ключи зависимостей в контейнере
const (
	keyMetrics = "metrics"
	keyTracing = "tracing"
	keyBus     = "message-bus"
	keyApplier = "correction-applier"
	keyHTTP    = "http"
)

const healthTimeout = 2 * time.Second

// infra общие для процессов метрики, трассировка и шина сообщений
type infra struct {
	container *container.Container
	metrics   *metrics.Setup
	tracing   *observability.TracingManager
	bus       transport.MessageBus
}

func newInfra(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *infra, err error) {
	c := container.NewContainer(container.Config{ShutdownTimeout: cfg.HTTP.ShutdownTimeout}, logger)
	defer func() {
		if err != nil {
			_ = c.Shutdown(context.Background())
		}
	}()

	ms, err := metrics.SetupMetrics(metrics.MetricsConfig{
		ServiceName: cfg.Tracing.ServiceName,
		ResourceAttrs: map[string]string{
			"service.version": cfg.Tracing.ServiceVersion,
		},
		SetGlobal: true,
	})
	if err != nil {
		return nil, err
	}
	if err = container.Set(c, keyMetrics, closerFunc(func() error {
		return ms.Shutdown(context.Background())
	})); err != nil {
		return nil, err
	}

	tracing, err := observability.NewTracingManager(cfg.Tracing)
	if err != nil {
		return nil, err
	}
	if err = container.Set(c, keyTracing, tracing); err != nil {
		return nil, err
	}

	bus, err := messagebus.NewFactory().Create(ctx, cfg.MessageBus, cfg.Bus,
		messagebus.WithLogger(logger),
		messagebus.WithMetrics(ms.Metrics),
	)
	if err != nil {
		return nil, err
	}
	if err = container.Set(c, keyBus, bus); err != nil {
		_ = bus.Close()
		return nil, err
	}

	logger.Info("infrastructure ready",
		zap.String("message_bus", cfg.MessageBus),
		zap.String("tracing_exporter", cfg.Tracing.Exporter),
	)
	return &infra{container: c, metrics: ms, tracing: tracing, bus: bus}, nil
}

// healthChecker проверяет все зависимости контейнера, умеющие проверять себя
func (i *infra) healthChecker() *observability.HealthChecker {
	checker := observability.NewHealthChecker(healthTimeout)
	for name, component := range i.container.HealthCheckables() {
		checker.RegisterComponent(name, component)
	}
	return checker
}

func healthHandler(checker *observability.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := checker.Check(c.Request.Context())
		status := http.StatusOK
		if !result.Healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, result)
	}
}

// closerFunc адаптирует функцию к io.Closer
type closerFunc func() error

func (f closerFunc) Close() error { return f() }
