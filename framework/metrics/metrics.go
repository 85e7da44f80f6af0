// Package metrics предоставляет систему метрик на основе OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "library-gateway"

// Metrics сборщик метрик шлюза. Все методы безопасны для nil-получателя,
// поэтому компоненты могут работать без метрик.
type Metrics struct {
	sagasTotal         metric.Int64Counter
	sagaDuration       metric.Float64Histogram
	sagaStepsTotal     metric.Int64Counter
	breakerTransitions metric.Int64Counter
	breakerFallbacks   metric.Int64Counter
	correctionsTotal   metric.Int64Counter
	rentalLimitHits    metric.Int64Counter
	transportTotal     metric.Int64Counter
	transportDuration  metric.Float64Histogram
	httpRequestsTotal  metric.Int64Counter
	httpDuration       metric.Float64Histogram
}

// NewMetrics создает сборщик метрик на глобальном MeterProvider
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider())
}

// NewMetricsWithProvider создает сборщик метрик на указанном MeterProvider
func NewMetricsWithProvider(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)
	m := &Metrics{}

	var err error
	if m.sagasTotal, err = meter.Int64Counter("sagas_total",
		metric.WithDescription("Total number of finished sagas by outcome")); err != nil {
		return nil, err
	}
	if m.sagaDuration, err = meter.Float64Histogram("saga_duration_seconds",
		metric.WithDescription("Saga execution duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.sagaStepsTotal, err = meter.Int64Counter("saga_steps_total",
		metric.WithDescription("Total number of executed saga steps by outcome")); err != nil {
		return nil, err
	}
	if m.breakerTransitions, err = meter.Int64Counter("breaker_transitions_total",
		metric.WithDescription("Circuit breaker state transitions")); err != nil {
		return nil, err
	}
	if m.breakerFallbacks, err = meter.Int64Counter("breaker_fallbacks_total",
		metric.WithDescription("Calls answered by a fallback instead of the collaborator")); err != nil {
		return nil, err
	}
	if m.correctionsTotal, err = meter.Int64Counter("corrections_total",
		metric.WithDescription("Correction messages by kind and outcome")); err != nil {
		return nil, err
	}
	if m.rentalLimitHits, err = meter.Int64Counter("rental_limit_exceeded_total",
		metric.WithDescription("Take-book requests above the advisory rental limit")); err != nil {
		return nil, err
	}
	if m.transportTotal, err = meter.Int64Counter("transport_operations_total",
		metric.WithDescription("Message bus operations by driver")); err != nil {
		return nil, err
	}
	if m.transportDuration, err = meter.Float64Histogram("transport_operation_duration_seconds",
		metric.WithDescription("Message bus operation duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.httpRequestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Inbound HTTP requests")); err != nil {
		return nil, err
	}
	if m.httpDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("Inbound HTTP request duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordSaga записывает результат саги
func (m *Metrics) RecordSaga(ctx context.Context, saga, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("saga", saga),
		attribute.String("outcome", outcome),
	)
	m.sagasTotal.Add(ctx, 1, attrs)
	m.sagaDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSagaStep записывает результат шага саги
func (m *Metrics) RecordSagaStep(ctx context.Context, saga, step, outcome string) {
	if m == nil {
		return
	}
	m.sagaStepsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("saga", saga),
		attribute.String("step", step),
		attribute.String("outcome", outcome),
	))
}

// RecordBreakerTransition записывает смену состояния breaker
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, from, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordFallback записывает подстановку fallback
func (m *Metrics) RecordFallback(ctx context.Context, breaker, reason string) {
	if m == nil {
		return
	}
	m.breakerFallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("reason", reason),
	))
}

// RecordCorrection записывает отправку или применение корректирующего сообщения
func (m *Metrics) RecordCorrection(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.correctionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// RecordRentalLimitExceeded фиксирует превышение рекомендательного лимита
func (m *Metrics) RecordRentalLimitExceeded(ctx context.Context) {
	if m == nil {
		return
	}
	m.rentalLimitHits.Add(ctx, 1)
}

// RecordTransport записывает метрику операции message bus
func (m *Metrics) RecordTransport(ctx context.Context, transportName, operation string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("transport", transportName),
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	)
	m.transportTotal.Add(ctx, 1, attrs)
	m.transportDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordHTTP записывает метрику входящего HTTP запроса
func (m *Metrics) RecordHTTP(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
}
