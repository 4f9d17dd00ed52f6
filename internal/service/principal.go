package service

import (
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/rbac"
)

// Principal — аутентифицированный субъект запроса: пользователь или гость.
// Запрос никогда не обрабатывается как оба сразу.
type Principal struct {
	// User — локальная запись пользователя (nil для гостя)
	User *model.User
	// Role — роль пользователя (admin, user)
	Role string
	// Guest — запись гостя (nil для пользователя)
	Guest *model.Guest
}

// UserPrincipal создаёт субъекта-пользователя. Неизвестная роль понижается до user.
func UserPrincipal(u *model.User, role string) *Principal {
	if !rbac.IsValidRole(role) {
		role = rbac.RoleUser
	}
	return &Principal{User: u, Role: role}
}

// GuestPrincipal создаёт субъекта-гостя.
func GuestPrincipal(g *model.Guest) *Principal {
	return &Principal{Guest: g}
}

// IsGuest сообщает, что субъект — гость.
func (p *Principal) IsGuest() bool {
	return p != nil && p.Guest != nil
}

// IsUser сообщает, что субъект — пользователь.
func (p *Principal) IsUser() bool {
	return p != nil && p.User != nil && p.Guest == nil
}

// IsAdmin сообщает, что субъект — пользователь с ролью admin.
func (p *Principal) IsAdmin() bool {
	return p.IsUser() && p.Role == rbac.RoleAdmin
}

// Actor возвращает субъекта для аудита и записи документа.
func (p *Principal) Actor() model.Actor {
	switch {
	case p.IsGuest():
		return model.GuestActor(p.Guest.ID)
	case p.IsUser():
		return model.UserActor(p.User.ID)
	default:
		return model.Actor{}
	}
}
