package metrics

import (
	"context"
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// MetricsConfig конфигурация метрик
type MetricsConfig struct {
	ServiceName   string
	ResourceAttrs map[string]string
	// SetGlobal регистрирует провайдер как глобальный otel MeterProvider
	SetGlobal bool
}

// Setup результат настройки метрик
type Setup struct {
	Provider *sdkmetric.MeterProvider
	Metrics  *Metrics
	// Handler отдает метрики в формате Prometheus
	Handler http.Handler
}

// SetupMetrics настраивает Prometheus exporter на отдельном registry
func SetupMetrics(config MetricsConfig) (*Setup, error) {
	registry := prom.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	attrs := buildResourceAttributes(config.ResourceAttrs)
	if config.ServiceName != "" {
		attrs = append(attrs, attribute.String("service.name", config.ServiceName))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	if config.SetGlobal {
		otel.SetMeterProvider(provider)
	}

	m, err := NewMetricsWithProvider(provider)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}

	return &Setup{
		Provider: provider,
		Metrics:  m,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Shutdown корректно завершает работу метрик
func (s *Setup) Shutdown(ctx context.Context) error {
	if s == nil || s.Provider == nil {
		return nil
	}
	return s.Provider.Shutdown(ctx)
}

func buildResourceAttributes(attrs map[string]string) []attribute.KeyValue {
	result := make([]attribute.KeyValue, 0, len(attrs)+1)
	for k, v := range attrs {
		result = append(result, attribute.String(k, v))
	}
	return result
}
