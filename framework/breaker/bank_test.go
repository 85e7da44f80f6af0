package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBank_RejectsInvalidDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 0
	_, err := NewBank(cfg)
	assert.Error(t, err)
}

func TestNewBank_RejectsInvalidOverride(t *testing.T) {
	bad := DefaultConfig()
	bad.FailureRateThreshold = 150
	_, err := NewBank(DefaultConfig(), WithOverride("ratingCb", bad))
	assert.Error(t, err)
}

func TestBank_GetReturnsSameBreaker(t *testing.T) {
	bank, err := NewBank(DefaultConfig())
	require.NoError(t, err)

	assert.Same(t, bank.Get("bookCb"), bank.Get("bookCb"))
	assert.NotSame(t, bank.Get("bookCb"), bank.Get("libraryCb"))
	assert.Equal(t, []string{"bookCb", "libraryCb"}, bank.Names())
}

func TestBank_OverrideApplies(t *testing.T) {
	override := DefaultConfig()
	override.WaitInOpen = time.Minute
	bank, err := NewBank(DefaultConfig(), WithOverride("ratingCb", override))
	require.NoError(t, err)

	assert.Equal(t, time.Minute, bank.Get("ratingCb").Config().WaitInOpen)
	assert.Equal(t, 15*time.Second, bank.Get("bookCb").Config().WaitInOpen)
}

func TestBank_States(t *testing.T) {
	bank, err := NewBank(DefaultConfig())
	require.NoError(t, err)
	bank.Get("rentedCountCb")

	assert.Equal(t, map[string]State{"rentedCountCb": StateClosed}, bank.States())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"window", func(c *Config) { c.WindowSize = -1 }},
		{"threshold zero", func(c *Config) { c.FailureRateThreshold = 0 }},
		{"minimum calls", func(c *Config) { c.MinimumCalls = 0 }},
		{"wait", func(c *Config) { c.WaitInOpen = 0 }},
		{"half-open", func(c *Config) { c.HalfOpenCalls = 0 }},
	}

	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWindow_Ring(t *testing.T) {
	w := newWindow(3)
	w.record(true)
	w.record(false)
	calls, failures := w.snapshot()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, failures)

	w.record(false)
	w.record(false) // вытесняет первую ошибку
	calls, failures = w.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, failures)

	w.reset()
	calls, failures = w.snapshot()
	assert.Zero(t, calls)
	assert.Zero(t, failures)
}

func TestBank_Configure(t *testing.T) {
	bank, err := NewBank(DefaultConfig())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.WindowSize = 10
	require.NoError(t, bank.Configure("reservationsCb", cfg))
	assert.Equal(t, 10, bank.Get("reservationsCb").Config().WindowSize)

	assert.Error(t, bank.Configure("reservationsCb", cfg), "breaker already created")

	cfg.MinimumCalls = 0
	assert.Error(t, bank.Configure("ratingCb", cfg))
}
