package app

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/adapters/transport"
	"github.com/akriventsev/library-gateway/framework/container"
	"github.com/akriventsev/library-gateway/framework/core"
	bus "github.com/akriventsev/library-gateway/framework/transport"
	"github.com/akriventsev/library-gateway/internal/clients"
	"github.com/akriventsev/library-gateway/internal/compensation"
	"github.com/akriventsev/library-gateway/internal/config"
)

// Worker процесс, применяющий корректирующие сообщения к сервисам
// библиотек и рейтинга
type Worker struct {
	*infra
	rest   *transport.RESTAdapter
	logger *zap.Logger
}

// NewWorker собирает correction worker. HTTP сервер отдает только
// health и метрики.
func NewWorker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Worker, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	inf, err := newInfra(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = inf.container.Shutdown(context.Background())
		}
	}()

	m := inf.metrics.Metrics
	clientOpts := []clients.Option{clients.WithLogger(logger), clients.WithMetrics(m)}

	library, err := clients.NewLibraryClient(cfg.Library, clientOpts...)
	if err != nil {
		return nil, err
	}
	rating, err := clients.NewRatingClient(cfg.Rating, clientOpts...)
	if err != nil {
		return nil, err
	}

	applier, err := compensation.NewApplier(library, rating, cfg.Compensation.Topics,
		compensation.WithLogger(logger),
		compensation.WithMetrics(m),
		compensation.WithTracerProvider(inf.tracing.TracerProvider()),
	)
	if err != nil {
		return nil, err
	}
	if err = container.Set(inf.container, keyApplier, newSubscription(applier, inf.bus)); err != nil {
		return nil, err
	}

	rest, err := transport.NewRESTAdapter(cfg.HTTP,
		transport.WithRESTLogger(logger),
		transport.WithRESTMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	rest.Engine().GET("/manage/health", healthHandler(inf.healthChecker()))
	rest.Engine().GET("/metrics", gin.WrapH(inf.metrics.Handler))
	if err = container.Set(inf.container, keyHTTP, rest); err != nil {
		return nil, err
	}

	return &Worker{infra: inf, rest: rest, logger: logger}, nil
}

// Start подписывается на топики корректировок и запускает HTTP сервер
func (w *Worker) Start(ctx context.Context) error {
	if err := w.container.Start(ctx); err != nil {
		return err
	}
	w.logger.Info("correction worker started", zap.String("addr", w.rest.Addr()))
	return nil
}

// Shutdown отписывается и освобождает соединения
func (w *Worker) Shutdown(ctx context.Context) error {
	return w.container.Shutdown(ctx)
}

// Addr адрес служебного HTTP сервера
func (w *Worker) Addr() string {
	return w.rest.Addr()
}

// subscription представляет подписку Applier как core.Lifecycle
type subscription struct {
	applier    *compensation.Applier
	subscriber bus.Subscriber

	mu      sync.Mutex
	running bool
}

func newSubscription(applier *compensation.Applier, subscriber bus.Subscriber) *subscription {
	return &subscription{applier: applier, subscriber: subscriber}
}

func (s *subscription) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applier.Start(ctx, s.subscriber); err != nil {
		return err
	}
	s.running = true
	return nil
}

func (s *subscription) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applier.Stop(s.subscriber)
	s.running = false
	return nil
}

func (s *subscription) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *subscription) Name() string { return s.applier.Name() }

func (s *subscription) Type() core.ComponentType { return s.applier.Type() }
