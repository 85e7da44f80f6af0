package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/akriventsev/library-gateway/internal/domain"
)

// ReservationView бронь с данными книги и библиотеки
type ReservationView struct {
	Reservation domain.Reservation
	Book        domain.Book
	Library     domain.Library
}

// ListReservations возвращает брони читателя. Недоступность реестра дает
// domain.ErrInternal: пустой список вместо ошибки вводил бы в заблуждение.
// Данные книги и библиотеки подгружаются параллельно и при отказе
// сводятся к идентификаторам.
func (o *Orchestrator) ListReservations(ctx context.Context, username string) ([]ReservationView, error) {
	list, err := call(ctx, o, BreakerReservations, func(ctx context.Context) ([]domain.Reservation, error) {
		return o.reservation.ListReservations(ctx, username)
	}, func(_ context.Context, cause error) ([]domain.Reservation, error) {
		return nil, fmt.Errorf("%w: list reservations: %w", domain.ErrInternal, cause)
	})
	if err != nil {
		return nil, err
	}

	views := make([]ReservationView, len(list))
	var g errgroup.Group
	g.SetLimit(o.config.EnrichConcurrency)
	for i, res := range list {
		g.Go(func() error {
			book, lib := o.enrich(ctx, res.BookUID, res.LibraryUID)
			views[i] = ReservationView{Reservation: res, Book: book, Library: lib}
			return nil
		})
	}
	_ = g.Wait()
	return views, nil
}

// ListLibraries возвращает библиотеки города
func (o *Orchestrator) ListLibraries(ctx context.Context, city string) ([]domain.Library, error) {
	return call(ctx, o, BreakerLibraries, func(ctx context.Context) ([]domain.Library, error) {
		return o.library.ListLibraries(ctx, city)
	}, unavailable[[]domain.Library]("list libraries"))
}

// ListLibraryBooks возвращает фонд библиотеки
func (o *Orchestrator) ListLibraryBooks(ctx context.Context, libraryUID string, showAll bool) ([]domain.LibraryBook, error) {
	return call(ctx, o, BreakerLibraryBooks, func(ctx context.Context) ([]domain.LibraryBook, error) {
		return o.library.ListLibraryBooks(ctx, libraryUID, showAll)
	}, unavailable[[]domain.LibraryBook]("list library books"))
}

// GetRating возвращает фактический рейтинг читателя
func (o *Orchestrator) GetRating(ctx context.Context, username string) (domain.Rating, error) {
	return call(ctx, o, BreakerRating, func(ctx context.Context) (domain.Rating, error) {
		return o.rating.GetRating(ctx, username)
	}, unavailable[domain.Rating]("get rating"))
}

// enrich параллельно загружает книгу и библиотеку. Не возвращает ошибок.
func (o *Orchestrator) enrich(ctx context.Context, bookUID, libraryUID string) (domain.Book, domain.Library) {
	var (
		g    errgroup.Group
		book domain.Book
		lib  domain.Library
	)
	g.Go(func() error {
		book = o.bookSnapshot(ctx, bookUID)
		return nil
	})
	g.Go(func() error {
		lib = o.librarySnapshot(ctx, libraryUID)
		return nil
	})
	_ = g.Wait()
	return book, lib
}

func (o *Orchestrator) bookSnapshot(ctx context.Context, bookUID string) domain.Book {
	bare := domain.Book{BookUID: bookUID}
	book, err := call(ctx, o, BreakerBook, func(ctx context.Context) (domain.Book, error) {
		return o.library.GetBook(ctx, bookUID)
	}, func(context.Context, error) (domain.Book, error) {
		return bare, nil
	})
	if err != nil {
		o.logger.Debug("book snapshot degraded", zap.String("book_uid", bookUID), zap.Error(err))
		return bare
	}
	if book.BookUID == "" {
		book.BookUID = bookUID
	}
	return book
}

func (o *Orchestrator) librarySnapshot(ctx context.Context, libraryUID string) domain.Library {
	bare := domain.Library{LibraryUID: libraryUID}
	lib, err := call(ctx, o, BreakerLibrary, func(ctx context.Context) (domain.Library, error) {
		return o.library.GetLibrary(ctx, libraryUID)
	}, func(context.Context, error) (domain.Library, error) {
		return bare, nil
	})
	if err != nil {
		o.logger.Debug("library snapshot degraded", zap.String("library_uid", libraryUID), zap.Error(err))
		return bare
	}
	if lib.LibraryUID == "" {
		lib.LibraryUID = libraryUID
	}
	return lib
}
