// Package core предоставляет систему ошибок инфраструктурного слоя.
package core

import (
	"fmt"
	"runtime"
	"strings"
)

// Коды ошибок инфраструктуры
const (
	ErrInvalidConfig        = "INVALID_CONFIG"
	ErrInitializationFailed = "INITIALIZATION_FAILED"
	ErrConnectionFailed     = "CONNECTION_FAILED"
	ErrPublishFailed        = "PUBLISH_FAILED"
	ErrSubscribeFailed      = "SUBSCRIBE_FAILED"
	ErrNotRunning           = "NOT_RUNNING"
	ErrUnknownDriver        = "UNKNOWN_DRIVER"
)

// FrameworkError базовый тип инфраструктурной ошибки
type FrameworkError struct {
	Code       string
	Message    string
	Cause      error
	StackTrace string
}

// Error реализует интерфейс error
func (e *FrameworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap возвращает причину ошибки
func (e *FrameworkError) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду
func (e *FrameworkError) Is(target error) bool {
	if t, ok := target.(*FrameworkError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError создает новую ошибку
func NewError(code, message string) *FrameworkError {
	return &FrameworkError{
		Code:       code,
		Message:    message,
		StackTrace: captureStackTrace(),
	}
}

// Wrap оборачивает существующую ошибку. Для nil возвращает nil.
func Wrap(err error, code, message string) error {
	if err == nil {
		return nil
	}
	return &FrameworkError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// Wrapf как Wrap, но с форматированием сообщения
func Wrapf(err error, code, format string, args ...interface{}) error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// HasCode проверяет, есть ли в цепочке ошибка с указанным кодом
func HasCode(err error, code string) bool {
	for err != nil {
		if fe, ok := err.(*FrameworkError); ok && fe.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)

	// первые строки относятся к самой captureStackTrace
	lines := strings.Split(string(buf[:n]), "\n")
	if len(lines) > 4 {
		lines = lines[4:]
	}
	return strings.Join(lines, "\n")
}
