package clients

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/akriventsev/library-gateway/internal/domain"
)

// ReservationClient клиент реестра броней
type ReservationClient struct {
	rest *restClient
}

// NewReservationClient создает клиент реестра броней
func NewReservationClient(cfg Config, opts ...Option) (*ReservationClient, error) {
	rest, err := newRestClient(domain.ServiceReservation, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &ReservationClient{rest: rest}, nil
}

type createReservationBody struct {
	BookUID    string      `json:"bookUid"`
	LibraryUID string      `json:"libraryUid"`
	TillDate   domain.Date `json:"tillDate"`
}

// CreateReservation создает бронь в статусе RENTED
func (c *ReservationClient) CreateReservation(ctx context.Context, username, bookUID, libraryUID string, tillDate domain.Date) (domain.Reservation, error) {
	var res domain.Reservation
	err := c.rest.do(ctx, request{
		op:       "CreateReservation",
		method:   http.MethodPost,
		path:     "/reservations",
		username: username,
		body: createReservationBody{
			BookUID:    bookUID,
			LibraryUID: libraryUID,
			TillDate:   tillDate,
		},
	}, &res)
	return res, err
}

// CloseReservation переводит бронь в RETURNED или EXPIRED
func (c *ReservationClient) CloseReservation(ctx context.Context, reservationUID string, expired bool) error {
	return c.rest.do(ctx, request{
		op:     "CloseReservation",
		method: http.MethodPost,
		path:   pathf("/reservations/%s/return", reservationUID),
		query:  url.Values{"isExpired": {strconv.FormatBool(expired)}},
	}, nil)
}

// CancelReservation удаляет бронь. Используется как компенсация выдачи.
func (c *ReservationClient) CancelReservation(ctx context.Context, reservationUID string) error {
	return c.rest.do(ctx, request{
		op:     "CancelReservation",
		method: http.MethodDelete,
		path:   pathf("/reservations/%s", reservationUID),
	}, nil)
}

// GetReservation возвращает бронь
func (c *ReservationClient) GetReservation(ctx context.Context, reservationUID string) (domain.Reservation, error) {
	var res domain.Reservation
	err := c.rest.do(ctx, request{
		op:     "GetReservation",
		method: http.MethodGet,
		path:   pathf("/reservations/%s", reservationUID),
	}, &res)
	return res, err
}

// CountActiveRentals возвращает число книг на руках у читателя
func (c *ReservationClient) CountActiveRentals(ctx context.Context, username string) (int, error) {
	var count int
	err := c.rest.do(ctx, request{
		op:       "CountActiveRentals",
		method:   http.MethodGet,
		path:     "/reservations/rented",
		username: username,
	}, &count)
	return count, err
}

// ListReservations возвращает брони читателя
func (c *ReservationClient) ListReservations(ctx context.Context, username string) ([]domain.Reservation, error) {
	list := []domain.Reservation{}
	err := c.rest.do(ctx, request{
		op:       "ListReservations",
		method:   http.MethodGet,
		path:     "/reservations",
		username: username,
	}, &list)
	return list, err
}
