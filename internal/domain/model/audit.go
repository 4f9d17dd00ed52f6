package model

import "time"

// AuditAction — действие в журнале аудита (закрытый набор).
type AuditAction string

// Действия журнала аудита.
const (
	AuditUpload       AuditAction = "upload"
	AuditDownload     AuditAction = "download"
	AuditDelete       AuditAction = "delete"
	AuditAccessDenied AuditAction = "access_denied"
	AuditGuestInvited AuditAction = "guest_invited"
	AuditGuestRevoked AuditAction = "guest_revoked"
	AuditGuestAccess  AuditAction = "guest_access"
	AuditView         AuditAction = "view"
)

// Valid проверяет, что действие входит в словарь.
func (a AuditAction) Valid() bool {
	switch a {
	case AuditUpload, AuditDownload, AuditDelete, AuditAccessDenied,
		AuditGuestInvited, AuditGuestRevoked, AuditGuestAccess, AuditView:
		return true
	}
	return false
}

// AuditEntry — запись журнала аудита (таблица document_audit_log).
// Записи только добавляются; изменение и удаление не предусмотрены.
type AuditEntry struct {
	ID         int64
	DossierID  *int64
	DocumentID *int64
	// Actor — может быть нулевым для отказов до идентификации
	Actor     Actor
	IP        string
	UserAgent string
	Action    AuditAction
	Details   map[string]any
	CreatedAt time.Time
}
