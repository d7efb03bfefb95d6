// Package karma реализует учёт кармы: журнал голосов и агрегаты.
// models.go описывает структуры данных — чистые значения без логики БД.
package karma

// Outcome — исход операции над голосом.
// Отказы политики (самоголос, повтор и т.п.) — это исходы, а не ошибки:
// вызывающий сам решает, сообщать ли о них пользователю.
type Outcome int

const (
	// OutcomeCreated — голос записан впервые
	OutcomeCreated Outcome = iota
	// OutcomeUpdated — существующий голос сменил знак
	OutcomeUpdated
	// OutcomeUnchanged — повторный голос с тем же знаком, ничего не изменилось
	OutcomeUnchanged
	// OutcomeDeleted — голос отозван (редактирование/удаление события-источника)
	OutcomeDeleted
	// OutcomeNotFound — событие-источник не порождало голоса
	OutcomeNotFound
	// OutcomeRejectedSelfVote — попытка поднять карму самому себе
	OutcomeRejectedSelfVote
	// OutcomeRejectedVoteOnVote — попытка голосовать за сам голос
	OutcomeRejectedVoteOnVote
	// OutcomeRejectedFiltered — голосующий в списке игнорируемых
	OutcomeRejectedFiltered
)

// String возвращает метку исхода для логов и метрик.
func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeRejectedSelfVote:
		return "rejected_self_vote"
	case OutcomeRejectedVoteOnVote:
		return "rejected_vote_on_vote"
	case OutcomeRejectedFiltered:
		return "rejected_filtered"
	default:
		return "unknown"
	}
}

// Rejected сообщает, является ли исход отказом политики.
func (o Outcome) Rejected() bool {
	switch o {
	case OutcomeRejectedSelfVote, OutcomeRejectedVoteOnVote, OutcomeRejectedFiltered:
		return true
	}
	return false
}

// VoteRecord — один голос одного пользователя за одно событие в одном чате.
// Идентичность записи — составной ключ (GivenTo, GivenBy, GivenIn, GivenFor).
type VoteRecord struct {
	// GivenTo — получатель кармы. nil означает, что получатель скрыт
	// (отказался от публичной кармы); в БД это хранится отдельно от nil.
	GivenTo *string
	// GivenBy — кто голосовал
	GivenBy string
	// GivenIn — чат, в котором голосовали
	GivenIn string
	// GivenFor — оценённое событие
	GivenFor string
	// GivenFrom — событие-источник голоса (реакция или команда).
	// Уникально: одно событие порождает не более одного голоса.
	GivenFrom string
	// GivenAt — момент записи, миллисекунды Unix
	GivenAt int64
	// Value — знак голоса: строго +1 или -1
	Value int
	// Content — фрагмент текста оценённого сообщения (может быть пустым)
	Content string
}

// UserAggregate — сводка кармы пользователя, производная от журнала.
// Инвариант: Total == Positive - Negative.
type UserAggregate struct {
	UserID   string
	Total    int
	Positive int
	Negative int
}

// EventAggregate — сводка кармы одного события.
// Не хранится: вычисляется группировкой по журналу на каждый запрос.
type EventAggregate struct {
	EventID   string
	RoomID    string
	Recipient *string
	Total     int
	Positive  int
	Negative  int
	Content   string
}

// Divergence — расхождение между karma_cache и журналом, найденное аудитом.
type Divergence struct {
	UserID string
	Cached UserAggregate
	Actual UserAggregate
}
