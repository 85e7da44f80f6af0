package app

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/adapters/transport"
	"github.com/akriventsev/library-gateway/framework/breaker"
	"github.com/akriventsev/library-gateway/framework/container"
	"github.com/akriventsev/library-gateway/framework/observability"
	"github.com/akriventsev/library-gateway/internal/api"
	"github.com/akriventsev/library-gateway/internal/clients"
	"github.com/akriventsev/library-gateway/internal/compensation"
	"github.com/akriventsev/library-gateway/internal/config"
	"github.com/akriventsev/library-gateway/internal/orchestrator"
)

// Gateway процесс шлюза: HTTP API поверх оркестратора саг
type Gateway struct {
	*infra
	rest   *transport.RESTAdapter
	bank   *breaker.Bank
	logger *zap.Logger
}

// NewGateway собирает шлюз. Компоненты запускаются в Start.
func NewGateway(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Gateway, err error) {
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
	tp := inf.tracing.TracerProvider()
	clientOpts := []clients.Option{clients.WithLogger(logger), clients.WithMetrics(m)}

	library, err := clients.NewLibraryClient(cfg.Library, clientOpts...)
	if err != nil {
		return nil, err
	}
	rating, err := clients.NewRatingClient(cfg.Rating, clientOpts...)
	if err != nil {
		return nil, err
	}
	reservation, err := clients.NewReservationClient(cfg.Reservation, clientOpts...)
	if err != nil {
		return nil, err
	}

	bank, err := orchestrator.NewBreakerBank(cfg.Breaker,
		breaker.WithLogger(logger),
		breaker.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	messenger, err := compensation.NewBusMessenger(inf.bus, cfg.Compensation,
		compensation.WithLogger(logger),
		compensation.WithMetrics(m),
		compensation.WithTracerProvider(tp),
	)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(library, rating, reservation, messenger, bank, cfg.Orchestrator,
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(m),
		orchestrator.WithTracerProvider(tp),
	)
	if err != nil {
		return nil, err
	}

	rest, err := transport.NewRESTAdapter(cfg.HTTP,
		transport.WithRESTLogger(logger),
		transport.WithRESTMetrics(m),
		transport.WithMiddleware(observability.HTTPTracingMiddleware(tp, cfg.Tracing.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	handlerOpts := []api.Option{
		api.WithLogger(logger),
		api.WithHealthChecker(inf.healthChecker()),
	}
	if cfg.OpenAPIValidation {
		validation := transport.DefaultValidationOptions()
		validation.Logger = logger
		validator, err := transport.NewOpenAPIValidator(api.OpenAPIDocument, validation)
		if err != nil {
			return nil, err
		}
		handlerOpts = append(handlerOpts, api.WithMiddleware(validator.Middleware()))
	}
	handler, err := api.NewHandler(orch, bank, handlerOpts...)
	if err != nil {
		return nil, err
	}
	handler.Register(rest.Group())
	handler.RegisterManagement(rest.Engine(), inf.metrics.Handler)

	swagger, err := transport.NewSwaggerUI(transport.DefaultSwaggerUIConfig(), api.OpenAPIDocument)
	if err != nil {
		return nil, err
	}
	swagger.RegisterRoutes(rest.Engine())

	if err = container.Set(inf.container, keyHTTP, rest); err != nil {
		return nil, err
	}

	return &Gateway{infra: inf, rest: rest, bank: bank, logger: logger}, nil
}

// Start запускает трассировку и HTTP сервер
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.container.Start(ctx); err != nil {
		return err
	}
	g.logger.Info("gateway started",
		zap.String("addr", g.rest.Addr()),
		zap.Strings("breakers", orchestrator.BreakerNames()),
	)
	return nil
}

// Shutdown останавливает компоненты в обратном порядке
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.container.Shutdown(ctx)
}

// Addr адрес, на котором слушает HTTP сервер
func (g *Gateway) Addr() string {
	return g.rest.Addr()
}

// Handler HTTP обработчик шлюза
func (g *Gateway) Handler() http.Handler {
	return g.rest.Handler()
}

// Breakers реестр circuit breakers шлюза
func (g *Gateway) Breakers() *breaker.Bank {
	return g.bank
}
