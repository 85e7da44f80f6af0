package domain

// CorrectionKind вид корректирующего сообщения
type CorrectionKind string

const (
	KindLibraryAvailability CorrectionKind = "library_availability"
	KindRating              CorrectionKind = "rating"
)

// Correction сообщение "повторить позже" для сервиса-владельца данных.
// Отправляется, только когда синхронная запись не была подтверждена.
type Correction interface {
	Kind() CorrectionKind
	// Key ключ упорядочивания: сообщения с одним ключом применяются по порядку
	Key() string
}

// LibraryAvailabilityCorrection вернуть экземпляр книги в доступные
type LibraryAvailabilityCorrection struct {
	BookUID    string `json:"bookUid"`
	LibraryUID string `json:"libraryUid"`
}

func (LibraryAvailabilityCorrection) Kind() CorrectionKind { return KindLibraryAvailability }

func (c LibraryAvailabilityCorrection) Key() string { return c.LibraryUID + "/" + c.BookUID }

// RatingCorrection применить изменение рейтинга читателя
type RatingCorrection struct {
	Username string `json:"username"`
	Delta    int    `json:"delta"`
}

func (RatingCorrection) Kind() CorrectionKind { return KindRating }

func (c RatingCorrection) Key() string { return c.Username }
