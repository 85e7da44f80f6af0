package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout формат даты на всех проводах
const DateLayout = "2006-01-02"

// Date календарная дата без времени и часового пояса
type Date struct {
	t time.Time
}

// NewDate создает дату
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf возвращает календарную дату момента t в его часовом поясе
func DateOf(t time.Time) Date {
	return NewDate(t.Date())
}

// Today возвращает текущую дату
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate разбирает дату в формате YYYY-MM-DD. Значения с временем
// (RFC 3339 и "YYYY-MM-DDTHH:MM:SS") усекаются до даты.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
}

// IsZero сообщает, что дата не задана
func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// Before сообщает, что d строго раньше other
func (d Date) Before(other Date) bool {
	return d.t.Before(other.t)
}

// After сообщает, что d строго позже other
func (d Date) After(other Date) bool {
	return d.t.After(other.t)
}

// Equal сообщает, что даты совпадают
func (d Date) Equal(other Date) bool {
	return d.t.Equal(other.t)
}

// AddDays возвращает дату, сдвинутую на n дней
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date %s: expected string", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
