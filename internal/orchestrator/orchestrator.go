// Package orchestrator проводит саги выдачи и возврата книги через сервисы
// библиотеки, рейтинга и реестра броней, а также собирает обогащенные
// ответы для чтения.
package orchestrator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/breaker"
	"github.com/akriventsev/library-gateway/framework/core"
	"github.com/akriventsev/library-gateway/framework/metrics"
	"github.com/akriventsev/library-gateway/framework/saga"
	"github.com/akriventsev/library-gateway/internal/compensation"
	"github.com/akriventsev/library-gateway/internal/domain"
)

// Имена circuit breakers: один на операцию и сервис
const (
	BreakerRentedCount         = "rentedCountCb"
	BreakerRating              = "ratingCb"
	BreakerCreateReservation   = "createReservationCb"
	BreakerLibraryAvailability = "libraryAvailabilityCb"
	BreakerBook                = "bookCb"
	BreakerLibrary             = "libraryCb"
	BreakerLibraryBook         = "libraryBookCb"
	BreakerReservation         = "reservationCb"
	BreakerCloseReservation    = "closeReservationCb"
	BreakerCancelReservation   = "cancelReservationCb"
	BreakerRatingUpdate        = "ratingUpdateCb"
	BreakerReservations        = "reservationsCb"
	BreakerLibraries           = "librariesCb"
	BreakerLibraryBooks        = "libraryBooksCb"
)

// BreakerNames возвращает имена всех breakers оркестратора
func BreakerNames() []string {
	return []string{
		BreakerRentedCount, BreakerRating, BreakerCreateReservation,
		BreakerLibraryAvailability, BreakerBook, BreakerLibrary,
		BreakerLibraryBook, BreakerReservation, BreakerCloseReservation,
		BreakerCancelReservation, BreakerRatingUpdate, BreakerReservations,
		BreakerLibraries, BreakerLibraryBooks,
	}
}

const tracerName = "github.com/akriventsev/library-gateway/internal/orchestrator"

// LibraryService операции сервиса библиотек
type LibraryService interface {
	GetBook(ctx context.Context, bookUID string) (domain.Book, error)
	GetLibrary(ctx context.Context, libraryUID string) (domain.Library, error)
	GetLibraryBookCondition(ctx context.Context, libraryUID, bookUID string) (domain.Condition, error)
	SetLibraryAvailability(ctx context.Context, libraryUID, bookUID string, available bool) error
	ListLibraries(ctx context.Context, city string) ([]domain.Library, error)
	ListLibraryBooks(ctx context.Context, libraryUID string, showAll bool) ([]domain.LibraryBook, error)
}

// RatingService операции сервиса рейтинга
type RatingService interface {
	GetRating(ctx context.Context, username string) (domain.Rating, error)
	UpdateRating(ctx context.Context, username string, delta int) error
}

// ReservationService операции реестра броней
type ReservationService interface {
	CreateReservation(ctx context.Context, username, bookUID, libraryUID string, tillDate domain.Date) (domain.Reservation, error)
	CloseReservation(ctx context.Context, reservationUID string, expired bool) error
	CancelReservation(ctx context.Context, reservationUID string) error
	GetReservation(ctx context.Context, reservationUID string) (domain.Reservation, error)
	CountActiveRentals(ctx context.Context, username string) (int, error)
	ListReservations(ctx context.Context, username string) ([]domain.Reservation, error)
}

// Config конфигурация оркестратора
type Config struct {
	// EnrichConcurrency число броней, обогащаемых параллельно
	EnrichConcurrency int
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{EnrichConcurrency: 8}
}

// Validate проверяет конфигурацию
func (c Config) Validate() error {
	if c.EnrichConcurrency <= 0 {
		return core.NewError(core.ErrInvalidConfig, "enrich concurrency must be positive")
	}
	return nil
}

// Option настраивает оркестратор
type Option func(*Orchestrator)

// WithLogger задает логгер
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics задает сборщик метрик
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracerProvider задает провайдер трассировки вместо глобального
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// Orchestrator проводит саги и обогащает ответы
type Orchestrator struct {
	library     LibraryService
	rating      RatingService
	reservation ReservationService
	messenger   compensation.Messenger
	bank        *breaker.Bank
	config      Config

	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	takeBook   *saga.Definition[takeBookState]
	returnBook *saga.Definition[returnBookState]
}

// New создает оркестратор. Bank должен классифицировать отказы через
// domain.IsUnreachable, см. NewBreakerBank.
func New(
	library LibraryService,
	rating RatingService,
	reservation ReservationService,
	messenger compensation.Messenger,
	bank *breaker.Bank,
	config Config,
	opts ...Option,
) (*Orchestrator, error) {
	if library == nil || rating == nil || reservation == nil {
		return nil, core.NewError(core.ErrInvalidConfig, "service clients are required")
	}
	if messenger == nil {
		return nil, core.NewError(core.ErrInvalidConfig, "compensation messenger is required")
	}
	if bank == nil {
		return nil, core.NewError(core.ErrInvalidConfig, "breaker bank is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		library:     library,
		rating:      rating,
		reservation: reservation,
		messenger:   messenger,
		bank:        bank,
		config:      config,
		logger:      zap.NewNop(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.takeBook = o.newTakeBookSaga()
	o.returnBook = o.newReturnBookSaga()
	for _, err := range []error{o.takeBook.Validate(), o.returnBook.Validate()} {
		if err != nil {
			return nil, fmt.Errorf("invalid saga definition: %w", err)
		}
	}
	return o, nil
}

// NewBreakerBank создает реестр breakers, в котором отказом считается
// только недоступность сервиса. Отклоненные сервисом запросы breaker
// учитывает как успешные.
func NewBreakerBank(defaults breaker.Config, opts ...breaker.Option) (*breaker.Bank, error) {
	opts = append(opts, breaker.WithFailureClassifier(domain.IsUnreachable))
	return breaker.NewBank(defaults, opts...)
}

// call выполняет fn через именованный breaker
func call[T any](ctx context.Context, o *Orchestrator, name string, fn func(context.Context) (T, error), fallback breaker.Fallback[T]) (T, error) {
	return breaker.Call(ctx, o.bank.Get(name), fn, fallback)
}

// exec выполняет операцию без результата через именованный breaker
func (o *Orchestrator) exec(ctx context.Context, name string, fn func(context.Context) error) error {
	_, err := call(ctx, o, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, nil)
	return err
}

// unavailable fallback для вызовов без замещающего значения
func unavailable[T any](op string) breaker.Fallback[T] {
	return func(_ context.Context, cause error) (T, error) {
		var zero T
		return zero, fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, cause)
	}
}
