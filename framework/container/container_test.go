package container

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/library-gateway/framework/core"
)

type journal struct{ events []string }

type lifecycleStub struct {
	name     string
	journal  *journal
	startErr error
	running  bool
}

func (l *lifecycleStub) Start(context.Context) error {
	if l.startErr != nil {
		return l.startErr
	}
	l.running = true
	l.journal.events = append(l.journal.events, "start "+l.name)
	return nil
}

func (l *lifecycleStub) Stop(context.Context) error {
	l.running = false
	l.journal.events = append(l.journal.events, "stop "+l.name)
	return nil
}

func (l *lifecycleStub) IsRunning() bool { return l.running }

type closerStub struct {
	journal *journal
	healthy error
}

func (c *closerStub) Close() error {
	c.journal.events = append(c.journal.events, "close bus")
	return nil
}

func (c *closerStub) HealthCheck(context.Context) error { return c.healthy }

func TestSetGet(t *testing.T) {
	c := NewContainer(DefaultConfig(), nil)

	require.NoError(t, Set(c, "answer", 42))
	assert.Error(t, Set(c, "answer", 43))

	v, err := Get[int](c, "answer")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = Get[string](c, "answer")
	assert.Error(t, err)
	_, err = Get[int](c, "missing")
	assert.Error(t, err)

	assert.Equal(t, []string{"answer"}, c.Keys())
}

func TestStartAndShutdownOrder(t *testing.T) {
	j := &journal{}
	c := NewContainer(DefaultConfig(), nil)
	require.NoError(t, Set(c, "bus", &closerStub{journal: j}))
	require.NoError(t, Set(c, "tracing", &lifecycleStub{name: "tracing", journal: j}))
	require.NoError(t, Set(c, "http", &lifecycleStub{name: "http", journal: j}))

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))

	assert.Equal(t, []string{"start tracing", "start http", "stop http", "stop tracing", "close bus"}, j.events)
}

func TestStartRollsBackOnFailure(t *testing.T) {
	j := &journal{}
	c := NewContainer(DefaultConfig(), nil)
	require.NoError(t, Set(c, "tracing", &lifecycleStub{name: "tracing", journal: j}))
	require.NoError(t, Set(c, "http", &lifecycleStub{name: "http", journal: j, startErr: errors.New("port busy")}))

	err := c.Start(context.Background())

	assert.True(t, core.HasCode(err, core.ErrInitializationFailed))
	assert.Equal(t, []string{"start tracing", "stop tracing"}, j.events)
}

func TestHealthCheckables(t *testing.T) {
	c := NewContainer(DefaultConfig(), nil)
	require.NoError(t, Set(c, "bus", &closerStub{journal: &journal{}}))
	require.NoError(t, Set(c, "answer", 42))

	checks := c.HealthCheckables()
	require.Len(t, checks, 1)
	assert.NoError(t, checks["bus"].HealthCheck(context.Background()))
}
