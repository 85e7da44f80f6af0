// Copyright 2024 Potter Framework Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability предоставляет distributed tracing и health checks.
package observability

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/akriventsev/library-gateway/framework/core"
)

// Поддерживаемые exporters
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
	ExporterJaeger = "jaeger"
	ExporterZipkin = "zipkin"
)

// TracingConfig конфигурация для distributed tracing
type TracingConfig struct {
	ServiceName      string
	ServiceVersion   string
	Environment      string
	Exporter         string
	ExporterEndpoint string
	SamplingRate     float64 // 0.0 - 1.0
	// SetGlobal регистрирует провайдер и propagator как глобальные
	SetGlobal bool
}

// DefaultTracingConfig возвращает конфигурацию по умолчанию: tracing выключен
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName:  "library-gateway",
		Environment:  "development",
		Exporter:     ExporterNone,
		SamplingRate: 1.0,
		SetGlobal:    true,
	}
}

// Validate проверяет конфигурацию
func (c TracingConfig) Validate() error {
	switch c.Exporter {
	case ExporterNone, ExporterStdout:
	case ExporterOTLP, ExporterJaeger, ExporterZipkin:
		if c.ExporterEndpoint == "" {
			return core.NewError(core.ErrInvalidConfig, fmt.Sprintf("exporter %s requires an endpoint", c.Exporter))
		}
	default:
		return core.NewError(core.ErrInvalidConfig, fmt.Sprintf("unknown tracing exporter %q", c.Exporter))
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return core.NewError(core.ErrInvalidConfig, "sampling rate must be within [0, 1]")
	}
	if c.ServiceName == "" {
		return core.NewError(core.ErrInvalidConfig, "service name is required")
	}
	return nil
}

// TracingManager владеет TracerProvider и завершает его при остановке
type TracingManager struct {
	config   TracingConfig
	provider trace.TracerProvider
	sdk      *sdktrace.TracerProvider
	running  bool
	mu       sync.RWMutex
}

// NewTracingManager создает TracingManager. При exporter "none" используется
// noop провайдер, и spans никуда не отправляются.
func NewTracingManager(config TracingConfig) (*TracingManager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Exporter == ExporterNone {
		return &TracingManager{config: config, provider: noop.NewTracerProvider()}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", config.ServiceName),
			attribute.String("service.version", config.ServiceVersion),
			attribute.String("deployment.environment", config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := createExporter(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(config.SamplingRate))),
	)

	if config.SetGlobal {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	return &TracingManager{config: config, provider: tp, sdk: tp}, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// createExporter создает exporter на основе конфигурации
func createExporter(config TracingConfig) (sdktrace.SpanExporter, error) {
	switch config.Exporter {
	case ExporterJaeger:
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.ExporterEndpoint)))
	case ExporterZipkin:
		return zipkin.New(config.ExporterEndpoint)
	case ExporterOTLP:
		client := otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(config.ExporterEndpoint),
			otlptracehttp.WithInsecure(),
		)
		return otlptrace.New(context.Background(), client)
	default:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
}

// Start запускает tracing (lifecycle)
func (tm *TracingManager) Start(ctx context.Context) error {
	tm.mu.Lock()
	tm.running = true
	tm.mu.Unlock()
	return nil
}

// Stop сбрасывает накопленные spans и останавливает провайдер
func (tm *TracingManager) Stop(ctx context.Context) error {
	tm.mu.Lock()
	tm.running = false
	tm.mu.Unlock()

	if tm.sdk != nil {
		return tm.sdk.Shutdown(ctx)
	}
	return nil
}

// IsRunning проверяет статус
func (tm *TracingManager) IsRunning() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.running
}

// Name возвращает имя компонента
func (tm *TracingManager) Name() string { return "tracing" }

// Type возвращает тип компонента
func (tm *TracingManager) Type() core.ComponentType { return core.ComponentTypeWorker }

// TracerProvider возвращает провайдер для передачи в компоненты
func (tm *TracingManager) TracerProvider() trace.TracerProvider {
	return tm.provider
}

// HTTPTracingMiddleware Gin middleware для инструментации входящих запросов
func HTTPTracingMiddleware(tp trace.TracerProvider, serviceName string) gin.HandlerFunc {
	tracer := tp.Tracer(serviceName)
	propagator := otel.GetTextMapPropagator()

	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.String("correlation.id", core.CorrelationID(ctx)),
		)

		c.Request = c.Request.WithContext(ctx)
		propagator.Inject(ctx, propagation.HeaderCarrier(c.Writer.Header()))
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last())
		}
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		}
	}
}

// TraceOperation выполняет fn в отдельном span
func TraceOperation(ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
