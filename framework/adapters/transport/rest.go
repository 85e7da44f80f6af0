// Package transport предоставляет входящий HTTP транспорт на gin:
// жизненный цикл сервера, сквозные middleware и валидацию по OpenAPI.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/core"
	"github.com/akriventsev/library-gateway/framework/metrics"
)

// RESTConfig конфигурация для REST адаптера
type RESTConfig struct {
	Addr            string
	BasePath        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// Mode режим gin: debug, release или test
	Mode string
}

// DefaultRESTConfig возвращает конфигурацию REST по умолчанию
func DefaultRESTConfig() RESTConfig {
	return RESTConfig{
		Addr:            ":8080",
		BasePath:        "/api/v1",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		Mode:            gin.ReleaseMode,
	}
}

// Validate проверяет конфигурацию
func (c RESTConfig) Validate() error {
	if c.Addr == "" {
		return core.NewError(core.ErrInvalidConfig, "rest addr is required")
	}
	if c.ShutdownTimeout <= 0 {
		return core.NewError(core.ErrInvalidConfig, "rest shutdown timeout must be positive")
	}
	switch c.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		return core.NewError(core.ErrInvalidConfig, fmt.Sprintf("unknown gin mode %q", c.Mode))
	}
	return nil
}

// RESTOption настраивает REST адаптер
type RESTOption func(*RESTAdapter)

// WithRESTLogger задает логгер адаптера
func WithRESTLogger(logger *zap.Logger) RESTOption {
	return func(r *RESTAdapter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRESTMetrics задает сборщик метрик входящих запросов
func WithRESTMetrics(m *metrics.Metrics) RESTOption {
	return func(r *RESTAdapter) {
		r.metrics = m
	}
}

// WithMiddleware добавляет middleware, выполняемые после стандартных
func WithMiddleware(handlers ...gin.HandlerFunc) RESTOption {
	return func(r *RESTAdapter) {
		r.extra = append(r.extra, handlers...)
	}
}

// RESTAdapter HTTP сервер на gin с управляемым жизненным циклом
type RESTAdapter struct {
	config  RESTConfig
	engine  *gin.Engine
	group   *gin.RouterGroup
	logger  *zap.Logger
	metrics *metrics.Metrics
	extra   []gin.HandlerFunc

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
	running  bool
	done     chan struct{}
}

// NewRESTAdapter создает новый REST адаптер
func NewRESTAdapter(config RESTConfig, opts ...RESTOption) (*RESTAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	adapter := &RESTAdapter{
		config: config,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(adapter)
	}
	adapter.logger = adapter.logger.With(zap.String("component", adapter.Name()))

	gin.SetMode(config.Mode)
	engine := gin.New()
	engine.Use(
		Recovery(adapter.logger),
		CorrelationID(),
		AccessLog(adapter.logger, adapter.metrics),
	)
	engine.Use(adapter.extra...)

	adapter.engine = engine
	adapter.group = engine.Group(config.BasePath)
	return adapter, nil
}

// Engine возвращает gin engine для регистрации служебных маршрутов
func (r *RESTAdapter) Engine() *gin.Engine {
	return r.engine
}

// Group возвращает группу маршрутов с базовым префиксом API
func (r *RESTAdapter) Group() *gin.RouterGroup {
	return r.group
}

// Handler возвращает http.Handler адаптера
func (r *RESTAdapter) Handler() http.Handler {
	return r.engine
}

// Addr возвращает фактический адрес, на котором слушает сервер
func (r *RESTAdapter) Addr() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Start запускает адаптер (реализация core.Lifecycle)
func (r *RESTAdapter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", r.config.Addr)
	if err != nil {
		return core.Wrap(err, core.ErrInitializationFailed, "failed to listen on "+r.config.Addr)
	}

	r.listener = listener
	r.server = &http.Server{
		Handler:      r.engine,
		ReadTimeout:  r.config.ReadTimeout,
		WriteTimeout: r.config.WriteTimeout,
	}
	r.done = make(chan struct{})
	r.running = true

	server, done := r.server, r.done
	go func() {
		defer close(done)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server stopped", zap.Error(err))
		}
	}()

	r.logger.Info("http server started", zap.String("addr", listener.Addr().String()))
	return nil
}

// Stop останавливает адаптер (реализация core.Lifecycle)
func (r *RESTAdapter) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	server, done := r.server, r.done
	r.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, r.config.ShutdownTimeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	<-done
	r.logger.Info("http server stopped")
	return err
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (r *RESTAdapter) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Name возвращает имя компонента (реализация core.Component)
func (r *RESTAdapter) Name() string {
	return "rest-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (r *RESTAdapter) Type() core.ComponentType {
	return core.ComponentTypeTransport
}

// CorrelationID переносит correlation ID из заголовка запроса в контекст
// и ответ, генерируя новый при отсутствии
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(core.CorrelationIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(core.WithCorrelationID(c.Request.Context(), id))
		c.Header(core.CorrelationIDHeader, id)
		c.Next()
	}
}

// AccessLog пишет журнал запросов и метрики по шаблону маршрута
func AccessLog(logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		duration := time.Since(start)
		m.RecordHTTP(c.Request.Context(), c.Request.Method, route, status, duration)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("correlation_id", core.CorrelationID(c.Request.Context())),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Warn("request failed", fields...)
		default:
			logger.Debug("request served", fields...)
		}
	}
}

// Recovery перехватывает панику обработчика и отвечает 500
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.Error("handler panicked",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
	})
}
