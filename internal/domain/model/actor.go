package model

import "strconv"

// ActorKind — тип субъекта запроса.
type ActorKind string

// Типы субъектов.
const (
	ActorUser  ActorKind = "user"
	ActorGuest ActorKind = "guest"
)

// Actor — субъект действия: пользователь или гость, ровно один из двух.
// Поля закрыты: значение создаётся только через UserActor или GuestActor,
// поэтому состояние «оба сразу» непредставимо. Нулевое значение означает
// «субъект не определён» и отвергается там, где субъект обязателен.
type Actor struct {
	kind ActorKind
	id   int64
}

// UserActor создаёт субъекта-пользователя.
func UserActor(userID int64) Actor {
	return Actor{kind: ActorUser, id: userID}
}

// GuestActor создаёт субъекта-гостя.
func GuestActor(guestID int64) Actor {
	return Actor{kind: ActorGuest, id: guestID}
}

// Kind возвращает тип субъекта ("" для нулевого значения).
func (a Actor) Kind() ActorKind { return a.kind }

// ID возвращает идентификатор пользователя или гостя.
func (a Actor) ID() int64 { return a.id }

// IsZero сообщает, что субъект не определён.
func (a Actor) IsZero() bool { return a.kind == "" }

// UserID возвращает указатель на ID пользователя или nil.
func (a Actor) UserID() *int64 {
	if a.kind != ActorUser {
		return nil
	}
	id := a.id
	return &id
}

// GuestID возвращает указатель на ID гостя или nil.
func (a Actor) GuestID() *int64 {
	if a.kind != ActorGuest {
		return nil
	}
	id := a.id
	return &id
}

// String — для логов: "user:12", "guest:7", "anonymous".
func (a Actor) String() string {
	if a.IsZero() {
		return "anonymous"
	}
	return string(a.kind) + ":" + strconv.FormatInt(a.id, 10)
}

// ActorFromColumns восстанавливает Actor из пары nullable-колонок.
// Возвращает нулевое значение, если заполнено не ровно одно поле.
func ActorFromColumns(userID, guestID *int64) Actor {
	switch {
	case userID != nil && guestID == nil:
		return UserActor(*userID)
	case guestID != nil && userID == nil:
		return GuestActor(*guestID)
	default:
		return Actor{}
	}
}

// RequestMeta — сведения о запросе для аудита.
type RequestMeta struct {
	IP        string
	UserAgent string
}
