package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akriventsev/library-gateway/framework/breaker"
	"github.com/akriventsev/library-gateway/internal/compensation"
	"github.com/akriventsev/library-gateway/internal/domain"
)

const (
	bookB1    = "f7cdc58f-2caf-4b15-9727-f89dcc629b27"
	libraryL1 = "83575e12-7ce0-48ee-9931-51919ff3c9ee"
)

func unreachable(service, op string) error {
	return &domain.UnreachableError{Service: service, Op: op, Err: errors.New("connection refused")}
}

func rejected(service, op string, status int) error {
	return &domain.RemoteRejectedError{Service: service, Op: op, Status: status, Body: http.StatusText(status)}
}

// fakeBase журнал вызовов и настраиваемые ошибки по операциям
type fakeBase struct {
	mu    sync.Mutex
	errs  map[string]error
	calls []string
}

func (f *fakeBase) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.errs[op]
}

func (f *fakeBase) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	f.errs[op] = err
}

func (f *fakeBase) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

type fakeLibrary struct {
	fakeBase
	books      map[string]domain.Book
	libraries  map[string]domain.Library
	conditions map[string]domain.Condition
	available  map[string]bool
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		books: map[string]domain.Book{
			bookB1: {BookUID: bookB1, Name: "Краткий курс C++ в 7 томах", Author: "Бьерн Страуструп", Genre: "Научная фантастика"},
		},
		libraries: map[string]domain.Library{
			libraryL1: {LibraryUID: libraryL1, Name: "Библиотека имени 7 Непьющих", Address: "2-я Бауманская ул., д.5, стр.1", City: "Москва"},
		},
		conditions: map[string]domain.Condition{libraryL1 + "/" + bookB1: domain.ConditionGood},
		available:  map[string]bool{libraryL1 + "/" + bookB1: true},
	}
}

func (f *fakeLibrary) GetBook(ctx context.Context, bookUID string) (domain.Book, error) {
	if err := f.enter(ctx, "GetBook"); err != nil {
		return domain.Book{}, err
	}
	return f.books[bookUID], nil
}

func (f *fakeLibrary) GetLibrary(ctx context.Context, libraryUID string) (domain.Library, error) {
	if err := f.enter(ctx, "GetLibrary"); err != nil {
		return domain.Library{}, err
	}
	return f.libraries[libraryUID], nil
}

func (f *fakeLibrary) GetLibraryBookCondition(ctx context.Context, libraryUID, bookUID string) (domain.Condition, error) {
	if err := f.enter(ctx, "GetLibraryBookCondition"); err != nil {
		return "", err
	}
	return f.conditions[libraryUID+"/"+bookUID], nil
}

func (f *fakeLibrary) SetLibraryAvailability(ctx context.Context, libraryUID, bookUID string, available bool) error {
	if err := f.enter(ctx, "SetLibraryAvailability"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available[libraryUID+"/"+bookUID] = available
	return nil
}

func (f *fakeLibrary) isAvailable(libraryUID, bookUID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available[libraryUID+"/"+bookUID]
}

func (f *fakeLibrary) ListLibraries(ctx context.Context, city string) ([]domain.Library, error) {
	if err := f.enter(ctx, "ListLibraries"); err != nil {
		return nil, err
	}
	var out []domain.Library
	for _, lib := range f.libraries {
		if lib.City == city {
			out = append(out, lib)
		}
	}
	return out, nil
}

func (f *fakeLibrary) ListLibraryBooks(ctx context.Context, libraryUID string, showAll bool) ([]domain.LibraryBook, error) {
	if err := f.enter(ctx, "ListLibraryBooks"); err != nil {
		return nil, err
	}
	var out []domain.LibraryBook
	for uid, book := range f.books {
		cond, ok := f.conditions[libraryUID+"/"+uid]
		if !ok {
			continue
		}
		out = append(out, domain.LibraryBook{BookUID: uid, Name: book.Name, Condition: cond, AvailableCount: 1})
	}
	return out, nil
}

type fakeRating struct {
	fakeBase
	stars  map[string]int
	deltas map[string][]int
}

func newFakeRating() *fakeRating {
	return &fakeRating{stars: map[string]int{"alice": 3}, deltas: map[string][]int{}}
}

func (f *fakeRating) GetRating(ctx context.Context, username string) (domain.Rating, error) {
	if err := f.enter(ctx, "GetRating"); err != nil {
		return domain.Rating{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Rating{Stars: f.stars[username]}, nil
}

func (f *fakeRating) UpdateRating(ctx context.Context, username string, delta int) error {
	if err := f.enter(ctx, "UpdateRating"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltas[username] = append(f.deltas[username], delta)
	return nil
}

type closeCall struct {
	uid     string
	expired bool
}

type fakeReservations struct {
	fakeBase
	seq          int
	rented       int
	reservations map[string]domain.Reservation
	closed       []closeCall
	canceled     []string
}

func newFakeReservations() *fakeReservations {
	return &fakeReservations{rented: 1, reservations: map[string]domain.Reservation{}}
}

func (f *fakeReservations) add(res domain.Reservation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reservations[res.ReservationUID] = res
}

func (f *fakeReservations) active(username string) []domain.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Reservation
	for _, res := range f.reservations {
		if res.Username == username && res.Status == domain.StatusRented {
			out = append(out, res)
		}
	}
	return out
}

func (f *fakeReservations) CreateReservation(ctx context.Context, username, bookUID, libraryUID string, tillDate domain.Date) (domain.Reservation, error) {
	if err := f.enter(ctx, "CreateReservation"); err != nil {
		return domain.Reservation{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	res := domain.Reservation{
		ReservationUID: fmt.Sprintf("res-%d", f.seq),
		Status:         domain.StatusRented,
		StartDate:      domain.Today(),
		TillDate:       tillDate,
		BookUID:        bookUID,
		LibraryUID:     libraryUID,
		Username:       username,
	}
	f.reservations[res.ReservationUID] = res
	return res, nil
}

func (f *fakeReservations) CloseReservation(ctx context.Context, reservationUID string, expired bool) error {
	if err := f.enter(ctx, "CloseReservation"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	res := f.reservations[reservationUID]
	res.Status = domain.StatusReturned
	if expired {
		res.Status = domain.StatusExpired
	}
	f.reservations[reservationUID] = res
	f.closed = append(f.closed, closeCall{uid: reservationUID, expired: expired})
	return nil
}

func (f *fakeReservations) CancelReservation(ctx context.Context, reservationUID string) error {
	if err := f.enter(ctx, "CancelReservation"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reservations, reservationUID)
	f.canceled = append(f.canceled, reservationUID)
	return nil
}

func (f *fakeReservations) GetReservation(ctx context.Context, reservationUID string) (domain.Reservation, error) {
	if err := f.enter(ctx, "GetReservation"); err != nil {
		return domain.Reservation{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.reservations[reservationUID]
	if !ok {
		return domain.Reservation{}, rejected(domain.ServiceReservation, "GetReservation", http.StatusNotFound)
	}
	return res, nil
}

func (f *fakeReservations) CountActiveRentals(ctx context.Context, username string) (int, error) {
	if err := f.enter(ctx, "CountActiveRentals"); err != nil {
		return 0, err
	}
	return f.rented, nil
}

func (f *fakeReservations) ListReservations(ctx context.Context, username string) ([]domain.Reservation, error) {
	if err := f.enter(ctx, "ListReservations"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Reservation
	for i := 1; i <= f.seq; i++ {
		if res, ok := f.reservations[fmt.Sprintf("res-%d", i)]; ok && res.Username == username {
			out = append(out, res)
		}
	}
	return out, nil
}

// fixture оркестратор на подделках со свежими breakers
type fixture struct {
	library      *fakeLibrary
	rating       *fakeRating
	reservations *fakeReservations
	recorder     *compensation.Recorder
	bank         *breaker.Bank
	orch         *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		library:      newFakeLibrary(),
		rating:       newFakeRating(),
		reservations: newFakeReservations(),
		recorder:     compensation.NewRecorder(),
	}

	bank, err := NewBreakerBank(breaker.DefaultConfig())
	require.NoError(t, err)
	f.bank = bank

	orch, err := New(f.library, f.rating, f.reservations, f.recorder, bank, DefaultConfig())
	require.NoError(t, err)
	f.orch = orch
	return f
}
