package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/saga"
	"github.com/akriventsev/library-gateway/internal/domain"
)

// Шаги саги выдачи книги
const (
	StepCountRentals      = "count_rentals"
	StepGetRating         = "get_rating"
	StepCheckLimit        = "check_limit"
	StepCreateReservation = "create_reservation"
	StepMarkRented        = "mark_rented"
)

// TakeBookRequest запрос на выдачу книги
type TakeBookRequest struct {
	Username   string
	BookUID    string
	LibraryUID string
	TillDate   domain.Date
}

// TakeBookResult подтверждение выдачи
type TakeBookResult struct {
	Reservation domain.Reservation
	Book        domain.Book
	Library     domain.Library
	// Rating фактический рейтинг читателя
	Rating domain.Rating
}

type takeBookState struct {
	req         TakeBookRequest
	rented      int
	rating      domain.Rating
	reservation domain.Reservation
}

func (o *Orchestrator) newTakeBookSaga() *saga.Definition[takeBookState] {
	return saga.NewDefinition[takeBookState]("take_book").
		WithLogger(o.logger).
		WithMetrics(o.metrics).
		AddStep(saga.NewBaseStep[takeBookState](StepCountRentals).
			WithExecute(func(ctx context.Context, st *takeBookState) error {
				rented, err := call(ctx, o, BreakerRentedCount, func(ctx context.Context) (int, error) {
					return o.reservation.CountActiveRentals(ctx, st.req.Username)
				}, nil)
				st.rented = rented
				return err
			})).
		AddStep(saga.NewBaseStep[takeBookState](StepGetRating).
			WithExecute(func(ctx context.Context, st *takeBookState) error {
				rating, err := call(ctx, o, BreakerRating, func(ctx context.Context) (domain.Rating, error) {
					return o.rating.GetRating(ctx, st.req.Username)
				}, nil)
				st.rating = rating
				return err
			})).
		AddStep(saga.NewBaseStep[takeBookState](StepCheckLimit).
			WithExecute(func(ctx context.Context, st *takeBookState) error {
				if domain.LimitExceeded(st.rented, st.rating.Stars) {
					o.metrics.RecordRentalLimitExceeded(ctx)
					o.logger.Warn("rental limit exceeded",
						zap.String("username", st.req.Username),
						zap.Int("rented", st.rented),
						zap.Int("stars", st.rating.Stars))
				}
				return nil
			})).
		AddStep(saga.NewBaseStep[takeBookState](StepCreateReservation).
			WithExecute(func(ctx context.Context, st *takeBookState) error {
				res, err := call(ctx, o, BreakerCreateReservation, func(ctx context.Context) (domain.Reservation, error) {
					return o.reservation.CreateReservation(ctx, st.req.Username, st.req.BookUID, st.req.LibraryUID, st.req.TillDate)
				}, nil)
				st.reservation = res
				return err
			}).
			WithCompensate(func(ctx context.Context, st *takeBookState) error {
				return o.exec(ctx, BreakerCancelReservation, func(ctx context.Context) error {
					return o.reservation.CancelReservation(ctx, st.reservation.ReservationUID)
				})
			})).
		AddStep(saga.NewBaseStep[takeBookState](StepMarkRented).
			WithExecute(func(ctx context.Context, st *takeBookState) error {
				return o.exec(ctx, BreakerLibraryAvailability, func(ctx context.Context) error {
					return o.library.SetLibraryAvailability(ctx, st.req.LibraryUID, st.req.BookUID, false)
				})
			}))
}

// TakeBook выдает книгу читателю. Отказ сервиса до создания брони или
// отказ отметки выдачи возвращает *domain.SagaAbortedError; бронь, созданная
// до отказа, удаляется. Отклонение запроса сервисом до создания брони
// возвращается как *domain.RemoteRejectedError без изменений.
func (o *Orchestrator) TakeBook(ctx context.Context, req TakeBookRequest) (*TakeBookResult, error) {
	// после создания брони сага доходит до конца независимо от клиента
	ctx = context.WithoutCancel(ctx)

	ctx, span := o.tracer.Start(ctx, "TakeBook")
	defer span.End()
	span.SetAttributes(
		attribute.String("book.uid", req.BookUID),
		attribute.String("library.uid", req.LibraryUID))

	log := o.logger.With(
		zap.String("username", req.Username),
		zap.String("book_uid", req.BookUID),
		zap.String("library_uid", req.LibraryUID))

	st := &takeBookState{req: req}
	exec, err := o.takeBook.Execute(ctx, st)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, o.takeBookError(log, exec, st, err)
	}

	book, lib := o.enrich(ctx, st.reservation.BookUID, st.reservation.LibraryUID)
	log.Info("book taken",
		zap.String("reservation_uid", st.reservation.ReservationUID),
		zap.String("saga_id", exec.ID),
		zap.Duration("duration", time.Since(exec.StartedAt)))

	return &TakeBookResult{
		Reservation: st.reservation,
		Book:        book,
		Library:     lib,
		Rating:      st.rating,
	}, nil
}

func (o *Orchestrator) takeBookError(log *zap.Logger, exec *saga.Execution, st *takeBookState, err error) error {
	var stepErr *saga.StepError
	if !errors.As(err, &stepErr) {
		return err
	}

	if exec.Status == saga.StatusFailed {
		log.Error("reservation left without rental, manual cancel required",
			zap.String("reservation_uid", st.reservation.ReservationUID),
			zap.String("saga_id", exec.ID),
			zap.Errors("compensation_errors", exec.CompensationErrors))
	}

	// отметка выдачи прерывает сагу при любом отказе, остальные шаги
	// пропускают отклонение сервиса без изменений
	if stepErr.Step != StepMarkRented {
		if rejected, ok := domain.AsRemoteRejected(stepErr.Err); ok {
			log.Info("take book rejected",
				zap.String("step", stepErr.Step),
				zap.Int("status", rejected.Status))
			return rejected
		}
	}

	log.Warn("take book aborted", zap.String("step", stepErr.Step), zap.Error(stepErr.Err))
	return &domain.SagaAbortedError{Step: stepErr.Step, Cause: stepErr.Err}
}
