// Package transport предоставляет абстракции для работы с message bus.
package transport

import (
	"context"
)

// Стандартные заголовки сообщений
const (
	HeaderMessageID     = "message-id"
	HeaderCorrelationID = "correlation-id"
	HeaderContentType   = "content-type"

	// HeaderMessageKey ключ партиционирования там, где драйвер его поддерживает
	HeaderMessageKey = "message-key"
)

// Message представляет сообщение в очереди
type Message struct {
	Subject string
	Data    []byte
	Headers map[string]string
}

// Header возвращает значение заголовка или пустую строку
func (m *Message) Header(key string) string {
	if m == nil || m.Headers == nil {
		return ""
	}
	return m.Headers[key]
}

// MessageHandler обработчик сообщений. Ошибка означает, что сообщение
// не подтверждается и будет доставлено повторно, если драйвер это умеет.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscriber подписчик на сообщения
type Subscriber interface {
	// Subscribe подписывается на subject и вызывает handler при получении сообщения
	Subscribe(ctx context.Context, subject string, handler MessageHandler) error
	// Unsubscribe отписывается от subject
	Unsubscribe(subject string) error
}

// Publisher публикатор сообщений
type Publisher interface {
	// Publish публикует сообщение в subject. Успешный возврат означает,
	// что брокер принял сообщение на хранение.
	Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error
}

// MessageBus объединяет возможности публикации и подписки
type MessageBus interface {
	Publisher
	Subscriber
	// Close освобождает соединения драйвера
	Close() error
}

// CopyHeaders возвращает копию заголовков; nil превращается в пустую map
func CopyHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	return out
}
