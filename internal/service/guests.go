// guests.go — гостевые приглашения: создание с токеном, поиск по токену,
// отзыв, перевыпуск токена и проверка прав.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/guesttoken"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/repository"
)

// Ограничения срока действия приглашения, в днях.
const (
	MinGuestExpiryDays = 1
	MaxGuestExpiryDays = 365
)

// GuestService — хранилище гостевых приглашений поверх GuestRepository.
// Действительность (не отозвано, срок не истёк) вычисляется по часам
// сервиса, а не базы данных.
type GuestService struct {
	repo              repository.GuestRepository
	audit             *AuditService
	portalBaseURL     string
	defaultExpiryDays int
	logger            *slog.Logger
	now               func() time.Time
}

// NewGuestService создаёт сервис гостевых приглашений.
func NewGuestService(
	repo repository.GuestRepository,
	audit *AuditService,
	portalBaseURL string,
	defaultExpiryDays int,
	logger *slog.Logger,
) *GuestService {
	return &GuestService{
		repo:              repo,
		audit:             audit,
		portalBaseURL:     strings.TrimRight(portalBaseURL, "/"),
		defaultExpiryDays: defaultExpiryDays,
		logger:            logger.With(slog.String("component", "guest_service")),
		now:               time.Now,
	}
}

// CreateGuestInput — параметры нового приглашения.
type CreateGuestInput struct {
	DossierID  int64
	Email      string
	Name       *string
	Permission model.Permission
	// ExpiryDays — 0 означает срок по умолчанию
	ExpiryDays int
	InvitedBy  int64
}

// expiryDays проверяет срок и подставляет значение по умолчанию.
func (s *GuestService) expiryDays(days int) (int, error) {
	if days == 0 {
		days = s.defaultExpiryDays
	}
	if days < MinGuestExpiryDays || days > MaxGuestExpiryDays {
		return 0, validationError("verloopDagen moet tussen %d en %d liggen", MinGuestExpiryDays, MaxGuestExpiryDays)
	}
	return days, nil
}

// CreateWithToken создаёт приглашение и возвращает его вместе с plaintext-токеном.
// Токен возвращается один раз и нигде не сохраняется.
func (s *GuestService) CreateWithToken(ctx context.Context, in CreateGuestInput) (*model.Guest, string, error) {
	if !in.Permission.Valid() {
		return nil, "", validationError("rechten moet upload, view of upload_view zijn")
	}
	days, err := s.expiryDays(in.ExpiryDays)
	if err != nil {
		return nil, "", err
	}

	token, err := guesttoken.Generate()
	if err != nil {
		return nil, "", err
	}

	now := s.now()
	g := &model.Guest{
		DossierID:        in.DossierID,
		Email:            strings.ToLower(strings.TrimSpace(in.Email)),
		Name:             in.Name,
		TokenHash:        guesttoken.Hash(token),
		ExpiresAt:        now.AddDate(0, 0, days),
		Permission:       in.Permission,
		InvitedBy:        in.InvitedBy,
		InvitationSentAt: &now,
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, "", fmt.Errorf("создание гостя: %w", fromRepo(err))
	}
	return g, token, nil
}

// FindByToken возвращает гостя по plaintext-токену, только если приглашение
// действует. Неизвестный, истёкший и отозванный токены неразличимы: (nil, nil).
func (s *GuestService) FindByToken(ctx context.Context, token string) (*model.Guest, error) {
	g, err := s.repo.GetByTokenHash(ctx, guesttoken.Hash(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("поиск гостя по токену: %w", err)
	}
	if !g.Active(s.now()) {
		return nil, nil
	}
	return g, nil
}

// ExistsByEmail проверяет, приглашён ли email в dossier (без учёта регистра).
func (s *GuestService) ExistsByEmail(ctx context.Context, dossierID int64, email string) (bool, error) {
	return s.repo.ExistsByEmail(ctx, dossierID, email)
}

// Revoke отзывает приглашение. false — уже отозвано.
func (s *GuestService) Revoke(ctx context.Context, guestID int64) (bool, error) {
	return s.repo.Revoke(ctx, guestID, s.now())
}

// RegenerateToken выпускает новый токен с новым сроком и снимает отзыв.
// Старый токен перестаёт действовать сразу.
func (s *GuestService) RegenerateToken(ctx context.Context, guestID int64, expiryDays int) (*model.Guest, string, error) {
	days, err := s.expiryDays(expiryDays)
	if err != nil {
		return nil, "", err
	}
	token, err := guesttoken.Generate()
	if err != nil {
		return nil, "", err
	}

	now := s.now()
	g, err := s.repo.ReplaceToken(ctx, guestID, guesttoken.Hash(token), now.AddDate(0, 0, days), now)
	if err != nil {
		return nil, "", fmt.Errorf("перевыпуск токена гостя %d: %w", guestID, fromRepo(err))
	}
	return g, token, nil
}

// RecordFirstAccess фиксирует первый доступ (один раз) и последний доступ.
func (s *GuestService) RecordFirstAccess(ctx context.Context, guestID int64) error {
	return s.repo.RecordAccess(ctx, guestID, s.now())
}

// BelongsToDossier проверяет привязку гостя к dossier.
func (s *GuestService) BelongsToDossier(ctx context.Context, guestID, dossierID int64) (bool, error) {
	return s.repo.BelongsToDossier(ctx, guestID, dossierID)
}

// HasPermission перечитывает гостя и проверяет действительность
// приглашения и покрытие действия уровнем прав.
func (s *GuestService) HasPermission(ctx context.Context, guestID int64, c model.Capability) (bool, error) {
	return guestHasPermission(ctx, s.repo, guestID, c, s.now())
}

// guestHasPermission — общая проверка прав гостя для GuestService и AccessGate.
func guestHasPermission(ctx context.Context, repo repository.GuestRepository, guestID int64, c model.Capability, now time.Time) (bool, error) {
	g, err := repo.GetByID(ctx, guestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("проверка прав гостя %d: %w", guestID, err)
	}
	return g.Active(now) && g.Permission.Covers(c), nil
}

// Get возвращает гостя по ID.
func (s *GuestService) Get(ctx context.Context, guestID int64) (*model.Guest, error) {
	g, err := s.repo.GetByID(ctx, guestID)
	if err != nil {
		return nil, fromRepo(err)
	}
	return g, nil
}

// ListByDossier возвращает всех гостей dossier.
func (s *GuestService) ListByDossier(ctx context.Context, dossierID int64) ([]*model.Guest, error) {
	return s.repo.ListByDossier(ctx, dossierID)
}

// AccessURL — ссылка гостевого портала с токеном.
func (s *GuestService) AccessURL(token string) string {
	return s.portalBaseURL + "/documenten/toegang?token=" + url.QueryEscape(token)
}

// Now — текущее время по часам сервиса.
func (s *GuestService) Now() time.Time {
	return s.now()
}

// --- Операции владельца dossier ---

// Invitation — результат приглашения: запись, токен и ссылка для гостя.
type Invitation struct {
	Guest     *model.Guest
	Token     string
	AccessURL string
}

// Invite приглашает гостя в dossier. Повторное приглашение того же email — ErrConflict.
// Проверка прав владельца выполняется вызывающим кодом.
func (s *GuestService) Invite(ctx context.Context, actor model.Actor, meta model.RequestMeta, in CreateGuestInput) (*Invitation, error) {
	exists, err := s.repo.ExistsByEmail(ctx, in.DossierID, in.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s уже приглашён в dossier %d", ErrConflict, in.Email, in.DossierID)
	}

	g, token, err := s.CreateWithToken(ctx, in)
	if err != nil {
		return nil, err
	}

	s.audit.LogGuestInvited(ctx, actor, meta, g.DossierID, g.ID, map[string]any{
		"email":   g.Email,
		"rechten": string(g.Permission),
	})
	s.logger.Info("Гость приглашён",
		slog.Int64("dossier_id", g.DossierID),
		slog.Int64("guest_id", g.ID),
		slog.String("permission", string(g.Permission)),
	)

	return &Invitation{Guest: g, Token: token, AccessURL: s.AccessURL(token)}, nil
}

// RevokeInDossier отзывает гостя dossier. Гость другого dossier — ErrNotFound,
// уже отозванный — ErrConflict.
func (s *GuestService) RevokeInDossier(ctx context.Context, actor model.Actor, meta model.RequestMeta, dossierID, guestID int64) error {
	if err := s.requireBelongs(ctx, guestID, dossierID); err != nil {
		return err
	}
	ok, err := s.Revoke(ctx, guestID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: гость %d уже отозван", ErrConflict, guestID)
	}

	s.audit.LogGuestRevoked(ctx, actor, meta, dossierID, guestID, nil)
	s.logger.Info("Гостевой доступ отозван",
		slog.Int64("dossier_id", dossierID),
		slog.Int64("guest_id", guestID),
	)
	return nil
}

// RegenerateInDossier перевыпускает токен гостя dossier (повторное приглашение).
func (s *GuestService) RegenerateInDossier(ctx context.Context, actor model.Actor, meta model.RequestMeta, dossierID, guestID int64, expiryDays int) (*Invitation, error) {
	if err := s.requireBelongs(ctx, guestID, dossierID); err != nil {
		return nil, err
	}
	g, token, err := s.RegenerateToken(ctx, guestID, expiryDays)
	if err != nil {
		return nil, err
	}

	s.audit.LogGuestInvited(ctx, actor, meta, dossierID, guestID, map[string]any{
		"email":       g.Email,
		"rechten":     string(g.Permission),
		"regenerated": true,
	})
	s.logger.Info("Токен гостя перевыпущен",
		slog.Int64("dossier_id", dossierID),
		slog.Int64("guest_id", guestID),
	)

	return &Invitation{Guest: g, Token: token, AccessURL: s.AccessURL(token)}, nil
}

// HardDelete физически удаляет запись гостя (административная операция).
// Пока на гостя ссылаются документы — ErrConflict.
func (s *GuestService) HardDelete(ctx context.Context, actor model.Actor, meta model.RequestMeta, guestID int64) error {
	g, err := s.repo.GetByID(ctx, guestID)
	if err != nil {
		return fromRepo(err)
	}
	if err := s.repo.Delete(ctx, guestID); err != nil {
		return fmt.Errorf("удаление гостя %d: %w", guestID, fromRepo(err))
	}

	s.audit.LogGuestRevoked(ctx, actor, meta, g.DossierID, guestID, map[string]any{"hardDelete": true})
	s.logger.Warn("Гость удалён администратором",
		slog.Int64("dossier_id", g.DossierID),
		slog.Int64("guest_id", guestID),
		slog.String("actor", actor.String()),
	)
	return nil
}

// requireBelongs возвращает ErrNotFound, если гость не из этого dossier.
func (s *GuestService) requireBelongs(ctx context.Context, guestID, dossierID int64) error {
	ok, err := s.repo.BelongsToDossier(ctx, guestID, dossierID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: гость %d не найден в dossier %d", ErrNotFound, guestID, dossierID)
	}
	return nil
}
