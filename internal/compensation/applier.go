package compensation

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/core"
	"github.com/akriventsev/library-gateway/framework/observability"
	"github.com/akriventsev/library-gateway/framework/transport"
	"github.com/akriventsev/library-gateway/internal/domain"
)

// ErrMalformed сообщение невозможно разобрать
var ErrMalformed = errors.New("malformed correction")

// AvailabilitySetter меняет доступность экземпляра книги
type AvailabilitySetter interface {
	SetLibraryAvailability(ctx context.Context, libraryUID, bookUID string, available bool) error
}

// RatingUpdater применяет изменение рейтинга
type RatingUpdater interface {
	UpdateRating(ctx context.Context, username string, delta int) error
}

// Applier применяет корректирующие сообщения через клиентов сервисов
type Applier struct {
	library AvailabilitySetter
	rating  RatingUpdater
	topics  Topics
	settings

	subscribed []string
}

// NewApplier создает обработчик корректирующих сообщений
func NewApplier(library AvailabilitySetter, rating RatingUpdater, topics Topics, opts ...Option) (*Applier, error) {
	if library == nil || rating == nil {
		return nil, core.NewError(core.ErrInvalidConfig, "library and rating clients are required")
	}
	if err := topics.Validate(); err != nil {
		return nil, err
	}
	return &Applier{
		library:  library,
		rating:   rating,
		topics:   topics,
		settings: buildSettings(opts),
	}, nil
}

// Name возвращает имя компонента
func (a *Applier) Name() string { return "correction-applier" }

// Type возвращает тип компонента
func (a *Applier) Type() core.ComponentType { return core.ComponentTypeWorker }

// Start подписывается на оба топика
func (a *Applier) Start(ctx context.Context, subscriber transport.Subscriber) error {
	for _, topic := range []string{a.topics.LibraryAvailability, a.topics.Rating} {
		if err := subscriber.Subscribe(ctx, topic, a.Handle); err != nil {
			a.Stop(subscriber)
			return core.Wrapf(err, core.ErrSubscribeFailed, "subscribe to %s", topic)
		}
		a.subscribed = append(a.subscribed, topic)
		a.logger.Info("subscribed to corrections", zap.String("topic", topic))
	}
	return nil
}

// Stop отписывается от топиков
func (a *Applier) Stop(subscriber transport.Subscriber) {
	for _, topic := range a.subscribed {
		if err := subscriber.Unsubscribe(topic); err != nil {
			a.logger.Warn("failed to unsubscribe", zap.String("topic", topic), zap.Error(err))
		}
	}
	a.subscribed = nil
}

// Handle обрабатывает одно сообщение. Ошибка возвращается только для
// сообщений, которые стоит доставить повторно.
func (a *Applier) Handle(ctx context.Context, msg *transport.Message) error {
	ctx = core.WithCorrelationID(ctx, msg.Header(transport.HeaderCorrelationID))
	log := a.logger.With(
		zap.String("subject", msg.Subject),
		zap.String("message_id", msg.Header(transport.HeaderMessageID)))

	correction, err := a.Decode(msg)
	if err != nil {
		log.Error("dropping malformed correction", zap.ByteString("payload", msg.Data), zap.Error(err))
		a.metrics.RecordCorrection(ctx, msg.Header(HeaderCorrectionKind), "malformed")
		return nil
	}
	kind := string(correction.Kind())

	err = observability.TraceOperation(ctx, a.tracer, "correction.apply", func(ctx context.Context) error {
		return a.Apply(ctx, correction)
	}, attribute.String("correction.kind", kind), attribute.String("correction.key", correction.Key()))
	if err != nil {
		if permanent(err) {
			log.Error("correction rejected permanently, dropping",
				zap.String("kind", kind), zap.String("key", correction.Key()), zap.Error(err))
			a.metrics.RecordCorrection(ctx, kind, "rejected")
			return nil
		}
		log.Warn("correction not applied, will retry",
			zap.String("kind", kind), zap.String("key", correction.Key()), zap.Error(err))
		a.metrics.RecordCorrection(ctx, kind, "retry")
		return err
	}

	log.Info("correction applied", zap.String("kind", kind), zap.String("key", correction.Key()))
	a.metrics.RecordCorrection(ctx, kind, "applied")
	return nil
}

// Decode определяет вид сообщения по заголовку, а без него по топику
func (a *Applier) Decode(msg *transport.Message) (domain.Correction, error) {
	kind := domain.CorrectionKind(msg.Header(HeaderCorrectionKind))
	if kind == "" {
		switch msg.Subject {
		case a.topics.LibraryAvailability:
			kind = domain.KindLibraryAvailability
		case a.topics.Rating:
			kind = domain.KindRating
		}
	}

	switch kind {
	case domain.KindLibraryAvailability:
		var c domain.LibraryAvailabilityCorrection
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if c.BookUID == "" || c.LibraryUID == "" {
			return nil, fmt.Errorf("%w: bookUid and libraryUid are required", ErrMalformed)
		}
		return c, nil
	case domain.KindRating:
		var c domain.RatingCorrection
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if c.Username == "" {
			return nil, fmt.Errorf("%w: username is required", ErrMalformed)
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q on %s", ErrMalformed, kind, msg.Subject)
}

// Apply применяет сообщение синхронным вызовом сервиса-владельца
func (a *Applier) Apply(ctx context.Context, correction domain.Correction) error {
	switch c := correction.(type) {
	case domain.LibraryAvailabilityCorrection:
		return a.library.SetLibraryAvailability(ctx, c.LibraryUID, c.BookUID, true)
	case domain.RatingCorrection:
		return a.rating.UpdateRating(ctx, c.Username, c.Delta)
	}
	return fmt.Errorf("unsupported correction %T", correction)
}

// permanent сообщает, что повтор не поможет: сервис отклонил запрос как некорректный
func permanent(err error) bool {
	rejected, ok := domain.AsRemoteRejected(err)
	if !ok {
		return false
	}
	switch rejected.Status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return rejected.Status >= 400 && rejected.Status < 500
}
