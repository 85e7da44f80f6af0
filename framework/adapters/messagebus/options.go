// Package messagebus предоставляет драйверы message bus для доставки
// корректирующих сообщений: Kafka, NATS, Redis Streams, RabbitMQ,
// очередь в PostgreSQL и in-memory.
package messagebus

import (
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/metrics"
)

// Option настраивает общие зависимости драйвера
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// WithLogger задает логгер драйвера
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics задает сборщик метрик драйвера
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(driver string, opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With(zap.String("driver", driver))
	return o
}
