package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable сервис не ответил: сетевая ошибка или истек таймаут
	ErrUnreachable = errors.New("service unreachable")
	// ErrSagaAborted сага прервана, побочные эффекты откачены
	ErrSagaAborted = errors.New("saga aborted")
	// ErrUnavailable сервис недоступен и замещающего значения нет
	ErrUnavailable = errors.New("service unavailable")
	// ErrInternal внутренняя ошибка до точки фиксации саги
	ErrInternal = errors.New("internal error")
)

// UnreachableError удаленный вызов не дошел или не дождался ответа.
// Только этот класс ошибок учитывается circuit breaker.
type UnreachableError struct {
	Service string
	Op      string
	Err     error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%s %s: unreachable: %v", e.Service, e.Op, e.Err)
}

func (e *UnreachableError) Unwrap() []error {
	return []error{ErrUnreachable, e.Err}
}

// RemoteRejectedError сервис ответил статусом вне 2xx
type RemoteRejectedError struct {
	Service string
	Op      string
	Status  int
	Body    string
}

func (e *RemoteRejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: rejected with status %d", e.Service, e.Op, e.Status)
	}
	return fmt.Sprintf("%s %s: rejected with status %d: %s", e.Service, e.Op, e.Status, e.Body)
}

// SagaAbortedError сага остановлена на шаге Step
type SagaAbortedError struct {
	Step  string
	Cause error
}

func (e *SagaAbortedError) Error() string {
	return fmt.Sprintf("saga aborted at %s: %v", e.Step, e.Cause)
}

func (e *SagaAbortedError) Unwrap() []error {
	return []error{ErrSagaAborted, e.Cause}
}

// IsUnreachable классификатор отказов для circuit breaker
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// AsRemoteRejected извлекает RemoteRejectedError из цепочки
func AsRemoteRejected(err error) (*RemoteRejectedError, bool) {
	var rejected *RemoteRejectedError
	if errors.As(err, &rejected) {
		return rejected, true
	}
	return nil, false
}
