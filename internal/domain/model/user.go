// Пакет model — доменные модели ouderschaps-api.
package model

import "time"

// User — локальная запись пользователя (таблица gebruikers).
// Создаётся при первом запросе с валидным JWT; ExternalID — sub из IdP.
type User struct {
	// ID — внутренний идентификатор
	ID int64
	// ExternalID — sub из JWT
	ExternalID string
	// Email — адрес электронной почты из JWT
	Email string
	// Name — отображаемое имя из JWT
	Name string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
