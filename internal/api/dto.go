package api

import (
	"github.com/akriventsev/library-gateway/framework/observability"
	"github.com/akriventsev/library-gateway/internal/domain"
	"github.com/akriventsev/library-gateway/internal/orchestrator"
)

// TakeBookRequest тело POST /reservations
type TakeBookRequest struct {
	BookUID    string `json:"bookUid" binding:"required"`
	LibraryUID string `json:"libraryUid" binding:"required"`
	TillDate   string `json:"tillDate" binding:"required"`
}

// ReturnBookRequest тело POST /reservations/{reservationUid}/return
type ReturnBookRequest struct {
	Condition string `json:"condition" binding:"required"`
	Date      string `json:"date"`
}

// BookReservationResponse бронь с данными книги и библиотеки
type BookReservationResponse struct {
	ReservationUID string                   `json:"reservationUid"`
	Status         domain.ReservationStatus `json:"status"`
	StartDate      domain.Date              `json:"startDate"`
	TillDate       domain.Date              `json:"tillDate"`
	Book           domain.Book              `json:"book"`
	Library        domain.Library           `json:"library"`
}

// TakeBookResponse подтверждение выдачи книги
type TakeBookResponse struct {
	BookReservationResponse
	Rating domain.Rating `json:"rating"`
}

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Message string `json:"message"`
}

// HealthResponse состояние шлюза и его circuit breaker
type HealthResponse struct {
	Status   string                                `json:"status"`
	Breakers map[string]string                     `json:"breakers"`
	Checks   map[string]observability.CheckResult `json:"checks,omitempty"`
}

func reservationResponse(r domain.Reservation, book domain.Book, library domain.Library) BookReservationResponse {
	return BookReservationResponse{
		ReservationUID: r.ReservationUID,
		Status:         r.Status,
		StartDate:      r.StartDate,
		TillDate:       r.TillDate,
		Book:           book,
		Library:        library,
	}
}

func takeBookResponse(res *orchestrator.TakeBookResult) TakeBookResponse {
	return TakeBookResponse{
		BookReservationResponse: reservationResponse(res.Reservation, res.Book, res.Library),
		Rating:                  res.Rating,
	}
}

func reservationList(views []orchestrator.ReservationView) []BookReservationResponse {
	out := make([]BookReservationResponse, 0, len(views))
	for _, v := range views {
		out = append(out, reservationResponse(v.Reservation, v.Book, v.Library))
	}
	return out
}
