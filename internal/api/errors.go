package api

import (
	"errors"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/akriventsev/library-gateway/framework/breaker"
	"github.com/akriventsev/library-gateway/internal/domain"
)

const (
	// abortedMessage ответ на прерванную выдачу книги
	abortedMessage     = "Bonus Service unavailable"
	unavailableMessage = "Service unavailable"
	internalMessage    = "Internal server error"
)

// statusFor сопоставляет ошибку оркестратора с HTTP статусом и сообщением.
// Прерванная сага проверяется раньше RemoteRejected: ее причина
// может оказаться отказом сервиса.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrSagaAborted):
		return http.StatusServiceUnavailable, abortedMessage
	case errors.Is(err, domain.ErrInternal):
		return http.StatusInternalServerError, internalMessage
	}

	if rejected, ok := domain.AsRemoteRejected(err); ok {
		status := rejected.Status
		if status < http.StatusBadRequest || status > 599 {
			status = http.StatusBadGateway
		}
		return status, rejectionMessage(rejected)
	}

	switch {
	case errors.Is(err, domain.ErrUnavailable),
		errors.Is(err, domain.ErrUnreachable),
		errors.Is(err, breaker.ErrOpen):
		return http.StatusServiceUnavailable, unavailableMessage
	default:
		return http.StatusInternalServerError, internalMessage
	}
}

// rejectionMessage достает message из JSON тела отказа, иначе отдает тело как есть
func rejectionMessage(rejected *domain.RemoteRejectedError) string {
	body := strings.TrimSpace(rejected.Body)
	if body == "" {
		return http.StatusText(rejected.Status)
	}
	var payload ErrorResponse
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return body
}
