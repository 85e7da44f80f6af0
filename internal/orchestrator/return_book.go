package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/akriventsev/library-gateway/framework/saga"
	"github.com/akriventsev/library-gateway/internal/domain"
)

// Шаги саги возврата книги
const (
	StepGetReservation   = "get_reservation"
	StepCheckExpiry      = "check_expiry"
	StepCloseReservation = "close_reservation"
	StepReleaseCopy      = "release_copy"
	StepFetchCondition   = "fetch_condition"
	StepSettleRating     = "settle_rating"
)

// ReturnBookRequest запрос на возврат книги
type ReturnBookRequest struct {
	ReservationUID string
	Username       string
	// Date дата возврата; пустая дата означает сегодня
	Date      domain.Date
	Condition domain.Condition
}

// ReturnResult итог возврата. Возврат после закрытия брони всегда успешен,
// неподтвержденные записи перечислены в Queued.
type ReturnResult struct {
	Expired bool
	Delta   int
	Queued  []domain.CorrectionKind
}

type returnBookState struct {
	req         ReturnBookRequest
	reservation domain.Reservation
	expired     bool
	recorded    domain.Condition
	delta       int
	queued      []domain.CorrectionKind
}

func (o *Orchestrator) newReturnBookSaga() *saga.Definition[returnBookState] {
	return saga.NewDefinition[returnBookState]("return_book").
		WithLogger(o.logger).
		WithMetrics(o.metrics).
		AddStep(saga.NewBaseStep[returnBookState](StepGetReservation).
			WithExecute(func(ctx context.Context, st *returnBookState) error {
				res, err := call(ctx, o, BreakerReservation, func(ctx context.Context) (domain.Reservation, error) {
					return o.reservation.GetReservation(ctx, st.req.ReservationUID)
				}, nil)
				st.reservation = res
				return err
			})).
		AddStep(saga.NewBaseStep[returnBookState](StepCheckExpiry).
			WithExecute(func(ctx context.Context, st *returnBookState) error {
				if st.reservation.TillDate.IsZero() {
					return fmt.Errorf("reservation %s has no due date", st.req.ReservationUID)
				}
				st.expired = domain.IsExpired(st.reservation.TillDate, st.req.Date)
				return nil
			})).
		AddStep(saga.NewBaseStep[returnBookState](StepCloseReservation).
			WithExecute(func(ctx context.Context, st *returnBookState) error {
				return o.exec(ctx, BreakerCloseReservation, func(ctx context.Context) error {
					return o.reservation.CloseReservation(ctx, st.req.ReservationUID, st.expired)
				})
			})).
		AddStep(saga.NewBaseStep[returnBookState](StepReleaseCopy).
			WithExecute(func(ctx context.Context, st *returnBookState) error {
				err := o.exec(ctx, BreakerLibraryAvailability, func(ctx context.Context) error {
					return o.library.SetLibraryAvailability(ctx, st.reservation.LibraryUID, st.reservation.BookUID, true)
				})
				if err != nil {
					o.enqueue(ctx, st, domain.LibraryAvailabilityCorrection{
						BookUID:    st.reservation.BookUID,
						LibraryUID: st.reservation.LibraryUID,
					}, err)
				}
				return nil
			})).
		AddStep(saga.NewBaseStep[returnBookState](StepFetchCondition).
			WithGuard(func(ctx context.Context, st *returnBookState) bool {
				return !st.expired
			}).
			WithExecute(func(ctx context.Context, st *returnBookState) error {
				st.recorded = o.recordedCondition(ctx, st.reservation.LibraryUID, st.reservation.BookUID)
				return nil
			})).
		AddStep(saga.NewBaseStep[returnBookState](StepSettleRating).
			WithExecute(func(ctx context.Context, st *returnBookState) error {
				st.delta = domain.ReturnDelta(st.expired, st.req.Condition, st.recorded)
				err := o.exec(ctx, BreakerRatingUpdate, func(ctx context.Context) error {
					return o.rating.UpdateRating(ctx, st.req.Username, st.delta)
				})
				if err != nil {
					o.enqueue(ctx, st, domain.RatingCorrection{
						Username: st.req.Username,
						Delta:    st.delta,
					}, err)
				}
				return nil
			}))
}

// ReturnBook возвращает книгу. Ошибка возможна только до закрытия брони
// и оборачивает domain.ErrInternal; после закрытия неподтвержденные записи
// уходят в очередь корректирующих сообщений.
func (o *Orchestrator) ReturnBook(ctx context.Context, req ReturnBookRequest) (*ReturnResult, error) {
	ctx = context.WithoutCancel(ctx)
	if req.Date.IsZero() {
		req.Date = domain.Today()
	}

	ctx, span := o.tracer.Start(ctx, "ReturnBook")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.uid", req.ReservationUID))

	log := o.logger.With(
		zap.String("username", req.Username),
		zap.String("reservation_uid", req.ReservationUID))

	st := &returnBookState{req: req}
	exec, err := o.returnBook.Execute(ctx, st)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		step := ""
		var stepErr *saga.StepError
		if errors.As(err, &stepErr) {
			step = stepErr.Step
			err = stepErr.Err
		}
		log.Warn("return book failed before closure", zap.String("step", step), zap.Error(err))
		return nil, fmt.Errorf("%w: return book at %s: %w", domain.ErrInternal, step, err)
	}

	span.SetAttributes(
		attribute.Bool("return.expired", st.expired),
		attribute.Int("return.delta", st.delta))
	log.Info("book returned",
		zap.String("saga_id", exec.ID),
		zap.Bool("expired", st.expired),
		zap.Int("delta", st.delta),
		zap.Int("queued_corrections", len(st.queued)))

	return &ReturnResult{
		Expired: st.expired,
		Delta:   st.delta,
		Queued:  st.queued,
	}, nil
}

// recordedCondition возвращает учтенное состояние экземпляра. При любой
// ошибке считается, что книга была в отличном состоянии.
func (o *Orchestrator) recordedCondition(ctx context.Context, libraryUID, bookUID string) domain.Condition {
	cond, err := call(ctx, o, BreakerLibraryBook, func(ctx context.Context) (domain.Condition, error) {
		return o.library.GetLibraryBookCondition(ctx, libraryUID, bookUID)
	}, func(context.Context, error) (domain.Condition, error) {
		return domain.ConditionExcellent, nil
	})
	if err != nil || !cond.Valid() {
		o.logger.Warn("recorded condition unknown, assuming excellent",
			zap.String("library_uid", libraryUID),
			zap.String("book_uid", bookUID),
			zap.String("condition", string(cond)),
			zap.Error(err))
		return domain.ConditionExcellent
	}
	return cond
}

// enqueue публикует корректирующее сообщение вместо неподтвержденной записи
func (o *Orchestrator) enqueue(ctx context.Context, st *returnBookState, correction domain.Correction, cause error) {
	log := o.logger.With(
		zap.String("reservation_uid", st.req.ReservationUID),
		zap.String("kind", string(correction.Kind())),
		zap.String("key", correction.Key()))

	if err := o.messenger.Publish(ctx, correction); err != nil {
		log.Error("write not confirmed and correction not enqueued",
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	st.queued = append(st.queued, correction.Kind())
	log.Warn("write not confirmed, correction enqueued", zap.Error(cause))
}
