// access.go — шлюз контроля доступа к dossier.
// Каждое решение «нет» записывается в журнал аудита как access_denied.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/repository"
)

// AccessGate решает, может ли субъект выполнить действие с dossier.
//
// Пользователь: владелец или пользователь, с которым dossier разделён.
// Гость: запись привязана к этому dossier, приглашение действует, уровень
// прав покрывает действие. Роль admin доступа к чужим dossier не даёт.
type AccessGate struct {
	dossiers repository.DossierRepository
	guests   repository.GuestRepository
	audit    *AuditService
	logger   *slog.Logger
	now      func() time.Time
}

// NewAccessGate создаёт шлюз доступа.
func NewAccessGate(
	dossiers repository.DossierRepository,
	guests repository.GuestRepository,
	audit *AuditService,
	logger *slog.Logger,
) *AccessGate {
	return &AccessGate{
		dossiers: dossiers,
		guests:   guests,
		audit:    audit,
		logger:   logger.With(slog.String("component", "access_gate")),
		now:      time.Now,
	}
}

// AuthorizeDossier проверяет право субъекта на действие c в dossier.
// Возвращает ErrUnauthorized без субъекта и ErrForbidden при отказе.
func (g *AccessGate) AuthorizeDossier(ctx context.Context, p *Principal, dossierID int64, c model.Capability, meta model.RequestMeta) error {
	switch {
	case p.IsGuest():
		return g.authorizeGuest(ctx, p.Guest, dossierID, c, meta)
	case p.IsUser():
		return g.authorizeUser(ctx, p.User, dossierID, meta)
	default:
		g.deny(ctx, model.Actor{}, meta, &dossierID, ReasonNoToken, nil)
		return ErrUnauthorized
	}
}

// AuthorizeOwner пропускает только владельца dossier. Гости получают отказ всегда.
func (g *AccessGate) AuthorizeOwner(ctx context.Context, p *Principal, dossierID int64, meta model.RequestMeta) error {
	switch {
	case p.IsGuest():
		g.deny(ctx, p.Actor(), meta, &dossierID, ReasonGuestNotAllowed, nil)
		return fmt.Errorf("%w: гость не может выполнять действия владельца", ErrForbidden)
	case p.IsUser():
		owner, err := g.dossiers.IsOwner(ctx, dossierID, p.User.ID)
		if err != nil {
			return fmt.Errorf("проверка владельца dossier %d: %w", dossierID, err)
		}
		if !owner {
			g.deny(ctx, p.Actor(), meta, &dossierID, ReasonNotOwner, nil)
			return fmt.Errorf("%w: пользователь %d не владелец dossier %d", ErrForbidden, p.User.ID, dossierID)
		}
		return nil
	default:
		g.deny(ctx, model.Actor{}, meta, &dossierID, ReasonNoToken, nil)
		return ErrUnauthorized
	}
}

// authorizeUser — владелец или разделённый доступ.
func (g *AccessGate) authorizeUser(ctx context.Context, u *model.User, dossierID int64, meta model.RequestMeta) error {
	owner, err := g.dossiers.IsOwner(ctx, dossierID, u.ID)
	if err != nil {
		return fmt.Errorf("проверка владельца dossier %d: %w", dossierID, err)
	}
	if owner {
		return nil
	}
	shared, err := g.dossiers.IsSharedWith(ctx, dossierID, u.ID)
	if err != nil {
		return fmt.Errorf("проверка доступа к dossier %d: %w", dossierID, err)
	}
	if shared {
		return nil
	}
	g.deny(ctx, model.UserActor(u.ID), meta, &dossierID, ReasonNoDossierAccess, nil)
	return fmt.Errorf("%w: у пользователя %d нет доступа к dossier %d", ErrForbidden, u.ID, dossierID)
}

// authorizeGuest — привязка к dossier, затем права. Запись гостя
// перечитывается: отзыв действует на уже аутентифицированные запросы.
func (g *AccessGate) authorizeGuest(ctx context.Context, guest *model.Guest, dossierID int64, c model.Capability, meta model.RequestMeta) error {
	actor := model.GuestActor(guest.ID)

	if guest.DossierID != dossierID {
		g.deny(ctx, actor, meta, &dossierID, ReasonGuestDossierMismatch, map[string]any{
			"requestedDossierId": dossierID,
			"guestDossierId":     guest.DossierID,
		})
		return fmt.Errorf("%w: гость %d не относится к dossier %d", ErrForbidden, guest.ID, dossierID)
	}

	ok, err := guestHasPermission(ctx, g.guests, guest.ID, c, g.now())
	if err != nil {
		return err
	}
	if !ok {
		g.deny(ctx, actor, meta, &dossierID, ReasonGuestPermissionMissing, map[string]any{
			"required": string(c),
			"rechten":  string(guest.Permission),
		})
		return fmt.Errorf("%w: у гостя %d нет права %s", ErrForbidden, guest.ID, c)
	}
	return nil
}

func (g *AccessGate) deny(ctx context.Context, actor model.Actor, meta model.RequestMeta, dossierID *int64, reason string, details map[string]any) {
	g.logger.Warn("Доступ запрещён",
		slog.String("actor", actor.String()),
		slog.String("reason", reason),
	)
	g.audit.LogAccessDenied(ctx, actor, meta, dossierID, reason, details)
}
