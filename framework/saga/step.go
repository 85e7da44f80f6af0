package saga

import (
	"context"
	"time"
)

// Step шаг саги над состоянием S
type Step[S any] interface {
	// Name возвращает имя шага
	Name() string
	// Execute выполняет forward action (основное действие)
	Execute(ctx context.Context, state *S) error
	// Compensate выполняет compensating action (откат изменений)
	Compensate(ctx context.Context, state *S) error
	// HasCompensation сообщает, есть ли у шага compensating action
	HasCompensation() bool
	// CanExecute проверяет возможность выполнения шага (guard)
	CanExecute(ctx context.Context, state *S) bool
	// Timeout возвращает таймаут выполнения шага
	Timeout() time.Duration
}

// BaseStep базовая реализация Step
type BaseStep[S any] struct {
	name       string
	execute    func(ctx context.Context, state *S) error
	compensate func(ctx context.Context, state *S) error
	guard      func(ctx context.Context, state *S) bool
	timeout    time.Duration
}

// NewBaseStep создает новый базовый шаг
func NewBaseStep[S any](name string) *BaseStep[S] {
	return &BaseStep[S]{name: name}
}

// WithExecute устанавливает forward action
func (s *BaseStep[S]) WithExecute(fn func(ctx context.Context, state *S) error) *BaseStep[S] {
	s.execute = fn
	return s
}

// WithCompensate устанавливает compensating action
func (s *BaseStep[S]) WithCompensate(fn func(ctx context.Context, state *S) error) *BaseStep[S] {
	s.compensate = fn
	return s
}

// WithGuard устанавливает условие выполнения. Шаг с ложным guard
// пропускается и не компенсируется.
func (s *BaseStep[S]) WithGuard(fn func(ctx context.Context, state *S) bool) *BaseStep[S] {
	s.guard = fn
	return s
}

// WithTimeout устанавливает таймаут forward action
func (s *BaseStep[S]) WithTimeout(timeout time.Duration) *BaseStep[S] {
	s.timeout = timeout
	return s
}

func (s *BaseStep[S]) Name() string {
	return s.name
}

func (s *BaseStep[S]) Execute(ctx context.Context, state *S) error {
	if s.execute == nil {
		return nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.execute(ctx, state)
}

func (s *BaseStep[S]) Compensate(ctx context.Context, state *S) error {
	if s.compensate == nil {
		return nil
	}
	return s.compensate(ctx, state)
}

func (s *BaseStep[S]) HasCompensation() bool {
	return s.compensate != nil
}

func (s *BaseStep[S]) CanExecute(ctx context.Context, state *S) bool {
	if s.guard == nil {
		return true
	}
	return s.guard(ctx, state)
}

func (s *BaseStep[S]) Timeout() time.Duration {
	return s.timeout
}
