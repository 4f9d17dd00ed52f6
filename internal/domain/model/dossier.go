package model

import "time"

// Статусы dossier.
const (
	DossierStatusActive   = "actief"
	DossierStatusArchived = "gearchiveerd"
)

// Dossier — дело (таблица dossiers). Граница тенантности для всех данных.
// Владелец задаётся при создании и не меняется.
type Dossier struct {
	ID            int64
	DossierNumber string
	// OwnerID — пользователь-владелец (gebruiker_id)
	OwnerID   int64
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DossierShare — постоянный доступ пользователя к чужому dossier.
type DossierShare struct {
	DossierID int64
	UserID    int64
	// UserEmail, UserName — данные пользователя для отображения владельцу
	UserEmail string
	UserName  string
	CreatedAt time.Time
}
