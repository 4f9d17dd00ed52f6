package model

import "time"

// Permission — уровень прав гостя.
type Permission string

// Уровни прав гостя.
const (
	PermissionUpload     Permission = "upload"
	PermissionView       Permission = "view"
	PermissionUploadView Permission = "upload_view"
)

// Capability — действие, требующее проверки прав гостя.
type Capability string

// Проверяемые действия.
const (
	CapabilityUpload Capability = "upload"
	CapabilityView   Capability = "view"
)

// Valid проверяет, что уровень прав входит в допустимый набор.
func (p Permission) Valid() bool {
	switch p {
	case PermissionUpload, PermissionView, PermissionUploadView:
		return true
	}
	return false
}

// Covers сообщает, разрешает ли уровень прав указанное действие.
// upload_view покрывает оба действия, upload и view — только себя.
func (p Permission) Covers(c Capability) bool {
	switch p {
	case PermissionUploadView:
		return c == CapabilityUpload || c == CapabilityView
	case PermissionUpload:
		return c == CapabilityUpload
	case PermissionView:
		return c == CapabilityView
	}
	return false
}

// Guest — приглашение гостя (таблица dossier_gasten).
// Гость привязан ровно к одному dossier; привязка неизменна.
// Plaintext-токен никогда не хранится, только TokenHash.
type Guest struct {
	ID        int64
	DossierID int64
	// Email — всегда в нижнем регистре
	Email string
	// Name — отображаемое имя (опционально)
	Name       *string
	TokenHash  string
	ExpiresAt  time.Time
	Permission Permission
	// InvitedBy — пользователь, отправивший приглашение
	InvitedBy        int64
	InvitationSentAt *time.Time
	FirstAccessAt    *time.Time
	LastAccessAt     *time.Time
	Revoked          bool
	RevokedAt        *time.Time
	CreatedAt        time.Time
}

// Статусы гостя для отображения владельцу dossier.
const (
	GuestStatusActive  = "actief"
	GuestStatusExpired = "verlopen"
	GuestStatusRevoked = "ingetrokken"
)

// Active сообщает, действует ли приглашение на момент now:
// не отозвано и срок действия ещё не истёк.
func (g *Guest) Active(now time.Time) bool {
	return !g.Revoked && g.ExpiresAt.After(now)
}

// Status возвращает статус приглашения на момент now.
func (g *Guest) Status(now time.Time) string {
	switch {
	case g.Revoked:
		return GuestStatusRevoked
	case !g.ExpiresAt.After(now):
		return GuestStatusExpired
	default:
		return GuestStatusActive
	}
}

// DisplayName возвращает имя гостя, а при его отсутствии — email.
func (g *Guest) DisplayName() string {
	if g.Name != nil && *g.Name != "" {
		return *g.Name
	}
	return g.Email
}
