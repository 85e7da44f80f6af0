// Package breaker предоставляет реестр именованных circuit breakers поверх
// sony/gobreaker со скользящим окном последних N вызовов.
package breaker

import (
	"fmt"
	"time"
)

// State состояние breaker
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config конфигурация одного breaker
type Config struct {
	// WindowSize количество последних вызовов, по которым считается доля ошибок
	WindowSize int
	// FailureRateThreshold порог доли ошибок в процентах (0, 100]
	FailureRateThreshold float64
	// MinimumCalls минимальное число вызовов в окне до оценки порога
	MinimumCalls int
	// WaitInOpen время в состоянии open до перехода в half-open
	WaitInOpen time.Duration
	// HalfOpenCalls число пробных вызовов в half-open
	HalfOpenCalls uint32
}

// DefaultConfig окно из 3 вызовов, порог 100%, минимум 1 вызов, 15s в open
func DefaultConfig() Config {
	return Config{
		WindowSize:           3,
		FailureRateThreshold: 100,
		MinimumCalls:         1,
		WaitInOpen:           15 * time.Second,
		HalfOpenCalls:        1,
	}
}

// Validate проверяет корректность конфигурации
func (c Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive")
	}
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 100 {
		return fmt.Errorf("failure rate threshold must be in (0, 100]")
	}
	if c.MinimumCalls <= 0 {
		return fmt.Errorf("minimum calls must be positive")
	}
	if c.WaitInOpen <= 0 {
		return fmt.Errorf("wait in open must be positive")
	}
	if c.HalfOpenCalls == 0 {
		return fmt.Errorf("half-open calls must be positive")
	}
	return nil
}
