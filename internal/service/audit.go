// audit.go — журнал аудита доступа к документам и гостевым приглашениям.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/repository"
)

// Причины отказа в доступе (details.reason в access_denied).
const (
	ReasonNoToken                = "no_token"
	ReasonMalformedToken         = "malformed_token"
	ReasonInvalidToken           = "invalid_token"
	ReasonNotOwner               = "not_owner"
	ReasonNoDossierAccess        = "no_dossier_access"
	ReasonGuestDossierMismatch   = "guest_dossier_mismatch"
	ReasonGuestPermissionMissing = "guest_permission_missing"
	ReasonGuestNotAllowed        = "guest_not_allowed"
)

var auditWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "op_audit_writes_total",
	Help: "Количество записей в журнал аудита по действию и результату.",
}, []string{"action", "result"})

// AuditService — запись и чтение журнала аудита.
// Log возвращает ошибку хранилища; обёртки Log* пишут её в лог и
// не прерывают уже выполненную операцию.
type AuditService struct {
	repo   repository.AuditRepository
	logger *slog.Logger
}

// NewAuditService создаёт сервис журнала аудита.
func NewAuditService(repo repository.AuditRepository, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger.With(slog.String("component", "audit_service")),
	}
}

// Log добавляет запись в журнал.
func (s *AuditService) Log(ctx context.Context, e *model.AuditEntry) error {
	if err := s.repo.Insert(ctx, e); err != nil {
		auditWritesTotal.WithLabelValues(string(e.Action), "error").Inc()
		return fmt.Errorf("запись аудита %s: %w", e.Action, fromRepo(err))
	}
	auditWritesTotal.WithLabelValues(string(e.Action), "ok").Inc()
	return nil
}

// record формирует запись и пишет её, ошибку только логирует.
func (s *AuditService) record(
	ctx context.Context,
	action model.AuditAction,
	actor model.Actor,
	meta model.RequestMeta,
	dossierID, documentID *int64,
	details map[string]any,
) {
	e := &model.AuditEntry{
		DossierID:  dossierID,
		DocumentID: documentID,
		Actor:      actor,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		Action:     action,
		Details:    details,
	}
	if err := s.Log(ctx, e); err != nil {
		s.logger.Error("Ошибка записи аудита",
			slog.String("action", string(action)),
			slog.String("actor", actor.String()),
			slog.String("error", err.Error()),
		)
	}
}

// LogUpload — загрузка документа.
func (s *AuditService) LogUpload(ctx context.Context, actor model.Actor, meta model.RequestMeta, dossierID, documentID int64, details map[string]any) {
	s.record(ctx, model.AuditUpload, actor, meta, &dossierID, &documentID, details)
}

// LogDownload — выдача ссылки на скачивание.
func (s *AuditService) LogDownload(ctx context.Context, actor model.Actor, meta model.RequestMeta, dossierID, documentID int64) {
	s.record(ctx, model.AuditDownload, actor, meta, &dossierID, &documentID, nil)
}

// LogDelete — удаление документа.
func (s *AuditService) LogDelete(ctx context.Context, actor model.Actor, meta model.RequestMeta, dossierID, documentID int64) {
	s.record(ctx, model.AuditDelete, actor, meta, &dossierID, &documentID, nil)
}

// LogView — просмотр списка документов.
func (s *AuditService) LogView(ctx context.Context, actor model.Actor, meta model.RequestMeta, dossierID int64, details map[string]any) {
	s.record(ctx, model.AuditView, actor, meta, &dossierID, nil, details)
}

// LogAccessDenied — отказ в доступе. dossierID может быть nil, если
// dossier неизвестен (отказ до идентификации гостя).
func (s *AuditService) LogAccessDenied(ctx context.Context, actor model.Actor, meta model.RequestMeta, dossierID *int64, reason string, details map[string]any) {
	d := map[string]any{"reason": reason}
	for k, v := range details {
		d[k] = v
	}
	s.record(ctx, model.AuditAccessDenied, actor, meta, dossierID, nil, d)
}

// LogGuestInvited — приглашение (или повторное приглашение) гостя.
func (s *AuditService) LogGuestInvited(ctx context.Context, actor model.Actor, meta model.RequestMeta, dossierID, guestID int64, details map[string]any) {
	d := map[string]any{"gastId": guestID}
	for k, v := range details {
		d[k] = v
	}
	s.record(ctx, model.AuditGuestInvited, actor, meta, &dossierID, nil, d)
}

// LogGuestRevoked — отзыв или удаление гостевого доступа.
func (s *AuditService) LogGuestRevoked(ctx context.Context, actor model.Actor, meta model.RequestMeta, dossierID, guestID int64, details map[string]any) {
	d := map[string]any{"gastId": guestID}
	for k, v := range details {
		d[k] = v
	}
	s.record(ctx, model.AuditGuestRevoked, actor, meta, &dossierID, nil, d)
}

// LogGuestAccess — успешная аутентификация гостя.
func (s *AuditService) LogGuestAccess(ctx context.Context, guest *model.Guest, meta model.RequestMeta) {
	dossierID := guest.DossierID
	s.record(ctx, model.AuditGuestAccess, model.GuestActor(guest.ID), meta, &dossierID, nil, nil)
}

// ListByDossier возвращает страницу журнала dossier (новые первыми) и общее количество.
func (s *AuditService) ListByDossier(ctx context.Context, dossierID int64, limit, offset int) ([]*model.AuditEntry, int, error) {
	entries, err := s.repo.ListByDossier(ctx, dossierID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("журнал аудита dossier %d: %w", dossierID, err)
	}
	total, err := s.repo.CountByDossier(ctx, dossierID)
	if err != nil {
		return nil, 0, fmt.Errorf("количество записей аудита dossier %d: %w", dossierID, err)
	}
	return entries, total, nil
}
