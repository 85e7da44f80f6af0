package breaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
)

// ErrOpen возвращается как причина fallback, когда breaker не пропустил вызов
var ErrOpen = errors.New("circuit breaker is open")

// RejectedError вызов отклонен breaker без обращения к сервису
type RejectedError struct {
	Breaker string
	State   State
	cause   error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("circuit breaker %s rejected call in %s state", e.Breaker, e.State)
}

// Unwrap позволяет errors.Is(err, ErrOpen) и проверку на ошибки gobreaker
func (e *RejectedError) Unwrap() []error {
	return []error{ErrOpen, e.cause}
}

// Fallback вычисляет замещающий результат по причине отказа
type Fallback[T any] func(ctx context.Context, cause error) (T, error)

// Breaker именованный circuit breaker
type Breaker struct {
	name      string
	config    Config
	cb        *gobreaker.CircuitBreaker
	window    *window
	isFailure func(error) bool
	bank      *Bank
}

// Name возвращает имя breaker
func (b *Breaker) Name() string { return b.name }

// Config возвращает конфигурацию breaker
func (b *Breaker) Config() Config { return b.config }

// State возвращает текущее состояние. Переход open -> half-open
// происходит по истечении WaitInOpen без внешнего вызова.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

func (b *Breaker) readyToTrip(gobreaker.Counts) bool {
	calls, failures := b.window.snapshot()
	if calls < b.config.MinimumCalls {
		return false
	}
	rate := float64(failures) / float64(calls) * 100
	return rate >= b.config.FailureRateThreshold
}

func (b *Breaker) execute(ctx context.Context, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	return b.cb.Execute(func() (interface{}, error) {
		v, err := fn(ctx)
		b.window.record(err != nil && b.isFailure(err))
		return v, err
	})
}

// Call выполняет fn через breaker. Успех возвращается как есть. Ошибки,
// которые классификатор банка не считает отказом, возвращаются без fallback.
// Отказ или отклонение вызова breaker передаются в fallback.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error), fallback Fallback[T]) (T, error) {
	var zero T

	res, err := b.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return fn(ctx)
	})
	if err == nil {
		v, _ := res.(T)
		return v, nil
	}

	var cause error
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		cause = &RejectedError{Breaker: b.name, State: StateOpen, cause: err}
		b.bank.fallbackUsed(ctx, b.name, "open")
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		cause = &RejectedError{Breaker: b.name, State: StateHalfOpen, cause: err}
		b.bank.fallbackUsed(ctx, b.name, "half_open_limit")
	case b.isFailure(err):
		cause = err
		b.bank.fallbackUsed(ctx, b.name, "failure")
	default:
		return zero, err
	}

	if fallback == nil {
		return zero, cause
	}
	return fallback(ctx, cause)
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
