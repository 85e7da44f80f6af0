// Package domain описывает модели проката книг, правила расчета рейтинга
// и типизированные ошибки обращения к удаленным сервисам.
package domain

import (
	"fmt"
	"strings"
)

// Имена удаленных сервисов
const (
	ServiceLibrary     = "library"
	ServiceRating      = "rating"
	ServiceReservation = "reservation"
)

// ReservationStatus статус брони в реестре
type ReservationStatus string

const (
	StatusRented   ReservationStatus = "RENTED"
	StatusReturned ReservationStatus = "RETURNED"
	StatusExpired  ReservationStatus = "EXPIRED"
)

// Reservation бронь книги. Принадлежит реестру броней, здесь не хранится.
type Reservation struct {
	ReservationUID string            `json:"reservationUid"`
	Status         ReservationStatus `json:"status"`
	StartDate      Date              `json:"startDate"`
	TillDate       Date              `json:"tillDate"`
	BookUID        string            `json:"bookUid"`
	LibraryUID     string            `json:"libraryUid"`
	Username       string            `json:"username,omitempty"`
}

// Book снимок книги. При недоступности каталога содержит только BookUID.
type Book struct {
	BookUID string `json:"bookUid"`
	Name    string `json:"name,omitempty"`
	Author  string `json:"author,omitempty"`
	Genre   string `json:"genre,omitempty"`
}

// Library снимок библиотеки. При недоступности каталога содержит только LibraryUID.
type Library struct {
	LibraryUID string `json:"libraryUid"`
	Name       string `json:"name,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
}

// Condition состояние экземпляра книги
type Condition string

const (
	ConditionExcellent Condition = "EXCELLENT"
	ConditionGood      Condition = "GOOD"
	ConditionBad       Condition = "BAD"
)

// ParseCondition разбирает состояние без учета регистра
func ParseCondition(s string) (Condition, error) {
	c := Condition(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("invalid condition %q: expected EXCELLENT, GOOD or BAD", s)
	}
	return c, nil
}

// Valid проверяет, что состояние известно
func (c Condition) Valid() bool {
	switch c {
	case ConditionExcellent, ConditionGood, ConditionBad:
		return true
	}
	return false
}

// LibraryBook книга в фонде библиотеки
type LibraryBook struct {
	BookUID        string    `json:"bookUid"`
	Name           string    `json:"name,omitempty"`
	Author         string    `json:"author,omitempty"`
	Genre          string    `json:"genre,omitempty"`
	Condition      Condition `json:"condition"`
	AvailableCount int       `json:"availableCount"`
}

// Rating рейтинг читателя
type Rating struct {
	Stars int `json:"stars"`
}
