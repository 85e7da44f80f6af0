package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/library-gateway/framework/adapters/messagebus"
	"github.com/akriventsev/library-gateway/framework/core"
	"github.com/akriventsev/library-gateway/framework/observability"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "http://localhost:8060/api/v1", cfg.Library.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Rating.Timeout)
	assert.Equal(t, messagebus.DriverKafka, cfg.MessageBus)
	assert.Equal(t, 3, cfg.Breaker.WindowSize)
	assert.Equal(t, ServiceName, cfg.Bus.Kafka.GroupID)
	assert.Equal(t, []string{"library.corrections", "rating.corrections"}, cfg.Bus.NATS.Subjects)
	assert.Equal(t, observability.ExporterNone, cfg.Tracing.Exporter)
	assert.False(t, cfg.OpenAPIValidation)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("RESERVATION_SERVICE_URL", "http://reservation:8070/api/v1")
	t.Setenv("CLIENT_TIMEOUT", "750ms")
	t.Setenv("BREAKER_WINDOW_SIZE", "10")
	t.Setenv("BREAKER_FAILURE_RATE", "50")
	t.Setenv("BREAKER_OPEN_WAIT", "1m")
	t.Setenv("ENRICH_CONCURRENCY", "2")
	t.Setenv("MESSAGE_BUS", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("WORKER_GROUP", "workers")
	t.Setenv("RATING_CORRECTIONS_TOPIC", "rating.fix")
	t.Setenv("OPENAPI_VALIDATION", "true")
	t.Setenv("TRACING_EXPORTER", "otlp")
	t.Setenv("TRACING_ENDPOINT", "collector:4318")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "http://reservation:8070/api/v1", cfg.Reservation.BaseURL)
	assert.Equal(t, 750*time.Millisecond, cfg.Library.Timeout)
	assert.Equal(t, 10, cfg.Breaker.WindowSize)
	assert.Equal(t, 50.0, cfg.Breaker.FailureRateThreshold)
	assert.Equal(t, time.Minute, cfg.Breaker.WaitInOpen)
	assert.Equal(t, 2, cfg.Orchestrator.EnrichConcurrency)
	assert.Equal(t, "redis:6379", cfg.Bus.Redis.Addr)
	assert.Equal(t, "workers", cfg.Bus.Redis.ConsumerGroup)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Bus.Kafka.Brokers)
	assert.Equal(t, "rating.fix", cfg.Compensation.Topics.Rating)
	assert.Contains(t, cfg.Bus.NATS.Subjects, "rating.fix")
	assert.True(t, cfg.OpenAPIValidation)
	assert.Equal(t, "collector:4318", cfg.Tracing.ExporterEndpoint)
}

func TestLoad_ReportsMalformedValues(t *testing.T) {
	t.Setenv("CLIENT_TIMEOUT", "soon")
	t.Setenv("BREAKER_WINDOW_SIZE", "many")

	_, err := Load()

	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "CLIENT_TIMEOUT")
	assert.Contains(t, err.Error(), "BREAKER_WINDOW_SIZE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		code string
	}{
		{name: "unknown bus", env: map[string]string{"MESSAGE_BUS": "carrier-pigeon"}, code: core.ErrUnknownDriver},
		{name: "bad service url", env: map[string]string{"LIBRARY_SERVICE_URL": "library"}, code: core.ErrInvalidConfig},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}, code: core.ErrInvalidConfig},
		{name: "bad log format", env: map[string]string{"LOG_FORMAT": "xml"}, code: core.ErrInvalidConfig},
		{name: "same topics", env: map[string]string{"RATING_CORRECTIONS_TOPIC": "library.corrections"}, code: core.ErrInvalidConfig},
		{name: "tracing without endpoint", env: map[string]string{"TRACING_EXPORTER": "jaeger"}, code: core.ErrInvalidConfig},
		{name: "breaker threshold", env: map[string]string{"BREAKER_FAILURE_RATE": "150"}, code: core.ErrInvalidConfig},
		{name: "nats url", env: map[string]string{"MESSAGE_BUS": "nats", "NATS_URL": "http://nats"}, code: core.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.True(t, core.HasCode(err, tt.code), err.Error())
		})
	}
}
