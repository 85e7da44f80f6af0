package domain

// Изменения рейтинга при возврате книги
const (
	PenaltyDelta = -10
	RewardDelta  = 1
)

// EffectiveStars число звезд для проверки лимита проката. У нового
// читателя ноль звезд, для лимита он считается как одна звезда.
func EffectiveStars(stars int) int {
	if stars == 0 {
		return 1
	}
	return stars
}

// LimitExceeded сообщает, что читатель держит не меньше книг, чем позволяет рейтинг
func LimitExceeded(rented, stars int) bool {
	return rented >= EffectiveStars(stars)
}

// IsExpired сообщает о просрочке: срок строго раньше даты возврата.
// Возврат в день срока просрочкой не считается.
func IsExpired(due, returned Date) bool {
	return due.Before(returned)
}

// ReturnDelta изменение рейтинга за возврат. Просрочка дает штраф
// независимо от состояния книги, иначе несовпадение заявленного и
// учтенного состояния дает штраф, совпадение дает поощрение.
func ReturnDelta(expired bool, reported, recorded Condition) int {
	if expired {
		return PenaltyDelta
	}
	if reported != recorded {
		return PenaltyDelta
	}
	return RewardDelta
}
