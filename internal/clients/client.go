// Package clients содержит HTTP клиенты сервисов библиотеки, рейтинга и
// реестра броней. Каждый вызов ограничен таймаутом; сетевые ошибки и
// истечение таймаута возвращаются как domain.UnreachableError, ответы
// вне 2xx как domain.RemoteRejectedError.
package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/core"
	"github.com/akriventsev/library-gateway/framework/metrics"
	"github.com/akriventsev/library-gateway/internal/domain"
)

// UserHeader заголовок с именем читателя
const UserHeader = "X-User-Name"

const maxErrorBody = 64 << 10

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config конфигурация клиента одного сервиса
type Config struct {
	// BaseURL адрес API сервиса, например http://library:8060/api/v1
	BaseURL string
	// Timeout ограничение на один вызов
	Timeout time.Duration
}

// Validate проверяет конфигурацию
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return core.NewError(core.ErrInvalidConfig, "base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return core.NewError(core.ErrInvalidConfig, fmt.Sprintf("invalid base URL %q", c.BaseURL))
	}
	if c.Timeout <= 0 {
		return core.NewError(core.ErrInvalidConfig, "timeout must be positive")
	}
	return nil
}

// Option настраивает клиент
type Option func(*restClient)

// WithHTTPClient задает http.Client вместо клиента с трассировкой
func WithHTTPClient(client *http.Client) Option {
	return func(c *restClient) {
		if client != nil {
			c.http = client
		}
	}
}

// WithLogger задает логгер
func WithLogger(logger *zap.Logger) Option {
	return func(c *restClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics задает сборщик метрик вызовов
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *restClient) { c.metrics = m }
}

type restClient struct {
	service string
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newRestClient(service string, cfg Config, opts ...Option) (*restClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s client: %w", service, err)
	}
	c := &restClient{
		service: service,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("service", service))
	return c, nil
}

// request описание одного удаленного вызова
type request struct {
	op       string
	method   string
	path     string
	query    url.Values
	username string
	body     interface{}
}

// do выполняет вызов и декодирует тело успешного ответа в out, если out не nil
func (c *restClient) do(ctx context.Context, r request, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.roundTrip(ctx, r, out)
	c.metrics.RecordTransport(ctx, "http."+c.service, r.op, time.Since(start), err == nil)

	if err != nil {
		c.logger.Debug("remote call failed",
			zap.String("op", r.op),
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
	}
	return err
}

func (c *restClient) roundTrip(ctx context.Context, r request, out interface{}) error {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s %s: encode request: %w", c.service, r.op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return fmt.Errorf("%s %s: build request: %w", c.service, r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.username != "" {
		req.Header.Set(UserHeader, r.username)
	}
	if id := core.CorrelationID(ctx); id != "" {
		req.Header.Set(core.CorrelationIDHeader, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.unreachable(r.op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.RemoteRejectedError{
			Service: c.service,
			Op:      r.op,
			Status:  resp.StatusCode,
			Body:    strings.TrimSpace(string(data)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.unreachable(r.op, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &domain.RemoteRejectedError{
			Service: c.service,
			Op:      r.op,
			Status:  http.StatusBadGateway,
			Body:    fmt.Sprintf("invalid response body: %v", err),
		}
	}
	return nil
}

func (c *restClient) unreachable(op string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return &domain.UnreachableError{Service: c.service, Op: op, Err: err}
}

func pathf(format string, ids ...string) string {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = url.PathEscape(id)
	}
	return fmt.Sprintf(format, args...)
}
