package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/internal/compensation"
	"github.com/akriventsev/library-gateway/internal/config"
	"github.com/akriventsev/library-gateway/internal/domain"
)

// upstream фейковые сервисы библиотек, рейтинга и броней на одном сервере
type upstream struct {
	*httptest.Server

	mu       sync.Mutex
	requests []string
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.requests = append(u.requests, r.Method+" "+r.URL.RequestURI()+" "+r.Header.Get("X-User-Name"))
		u.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/libraries":
			_, _ = io.WriteString(w, `[{"libraryUid":"83575e12-7ce0-48ee-9931-51919ff3c9ee","name":"Library","city":"Moscow"}]`)
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/rating":
			_, _ = io.WriteString(w, `{"stars":75}`)
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/rating":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) seen(request string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, r := range u.requests {
		if r == request {
			return true
		}
	}
	return false
}

func loadConfig(t *testing.T, u *upstream) *config.Config {
	t.Helper()
	t.Setenv("HTTP_ADDR", "127.0.0.1:0")
	t.Setenv("MESSAGE_BUS", "inmemory")
	t.Setenv("LIBRARY_SERVICE_URL", u.URL+"/api/v1")
	t.Setenv("RATING_SERVICE_URL", u.URL+"/api/v1")
	t.Setenv("RESERVATION_SERVICE_URL", u.URL+"/api/v1")
	t.Setenv("CLIENT_TIMEOUT", "2s")

	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func get(t *testing.T, url, user string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("X-User-Name", user)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LogConfig{Level: "debug", Format: config.LogFormatConsole}, "test")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = NewLogger(config.LogConfig{Level: "warn", Format: config.LogFormatJSON}, "test")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = NewLogger(config.LogConfig{Level: "loud"}, "test")
	assert.Error(t, err)
}

func TestGateway_ServesAPIAndManagement(t *testing.T) {
	u := newUpstream(t)
	cfg := loadConfig(t, u)
	ctx := context.Background()

	gw, err := NewGateway(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, gw.Start(ctx))
	defer func() { assert.NoError(t, gw.Shutdown(ctx)) }()

	base := "http://" + gw.Addr()

	status, body := get(t, base+"/api/v1/libraries?city=Moscow", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"libraryUid":"83575e12-7ce0-48ee-9931-51919ff3c9ee","name":"Library","city":"Moscow"}]`, body)

	status, body = get(t, base+"/api/v1/rating", "alice")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"stars":75}`, body)

	status, _ = get(t, base+"/api/v1/rating", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = get(t, base+"/manage/health", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":"UP"`)
	assert.Contains(t, body, "message-bus")
	assert.Contains(t, body, "ratingCb")

	status, body = get(t, base+"/metrics", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.Contains(body, "# HELP") || strings.Contains(body, "# TYPE"))

	status, _ = get(t, base+"/swagger/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestGateway_RejectsInvalidConfig(t *testing.T) {
	u := newUpstream(t)
	cfg := loadConfig(t, u)
	cfg.MessageBus = "carrier-pigeon"

	_, err := NewGateway(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestGateway_OpenAPIValidation(t *testing.T) {
	u := newUpstream(t)
	t.Setenv("OPENAPI_VALIDATION", "true")
	cfg := loadConfig(t, u)
	ctx := context.Background()

	gw, err := NewGateway(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, gw.Start(ctx))
	defer func() { assert.NoError(t, gw.Shutdown(ctx)) }()

	status, body := get(t, "http://"+gw.Addr()+"/api/v1/libraries/not-a-uuid/books", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "message")
}

func TestWorker_AppliesCorrections(t *testing.T) {
	u := newUpstream(t)
	cfg := loadConfig(t, u)
	ctx := context.Background()

	w, err := NewWorker(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	defer func() { assert.NoError(t, w.Shutdown(ctx)) }()

	messenger, err := compensation.NewBusMessenger(w.bus, cfg.Compensation)
	require.NoError(t, err)
	require.NoError(t, messenger.Publish(ctx, domain.RatingCorrection{Username: "alice", Delta: -10}))

	assert.Eventually(t, func() bool {
		return u.seen("PUT /api/v1/rating?delta=-10 alice")
	}, 3*time.Second, 20*time.Millisecond)

	status, body := get(t, "http://"+w.Addr()+"/manage/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"healthy":true`)
}
