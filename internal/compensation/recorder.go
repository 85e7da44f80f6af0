package compensation

import (
	"context"
	"sync"

	"github.com/akriventsev/library-gateway/internal/domain"
)

// Recorder Messenger, сохраняющий сообщения в памяти
type Recorder struct {
	mu       sync.Mutex
	messages []domain.Correction
	err      error
}

// NewRecorder создает пустой Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith заставляет последующие Publish возвращать err. nil отменяет отказ.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Publish сохраняет сообщение
func (r *Recorder) Publish(_ context.Context, correction domain.Correction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, correction)
	return nil
}

// Messages возвращает копию сохраненных сообщений
func (r *Recorder) Messages() []domain.Correction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Correction, len(r.messages))
	copy(out, r.messages)
	return out
}

// Reset удаляет сохраненные сообщения
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
