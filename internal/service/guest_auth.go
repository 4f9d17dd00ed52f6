// guest_auth.go — аутентификация гостя по plaintext-токену.
package service

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/guesttoken"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
)

var guestAuthTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "op_guest_auth_total",
	Help: "Количество попыток аутентификации гостей по результату.",
}, []string{"result"})

// GuestAuthenticator проверяет гостевой токен и фиксирует доступ.
// О запрошенном dossier он не знает: привязку проверяет AccessGate.
type GuestAuthenticator struct {
	guests *GuestService
	audit  *AuditService
	logger *slog.Logger
}

// NewGuestAuthenticator создаёт аутентификатор гостей.
func NewGuestAuthenticator(guests *GuestService, audit *AuditService, logger *slog.Logger) *GuestAuthenticator {
	return &GuestAuthenticator{
		guests: guests,
		audit:  audit,
		logger: logger.With(slog.String("component", "guest_auth")),
	}
}

// Authenticate возвращает действующего гостя для токена.
//
// ErrNoToken — токен не передан; ErrInvalidToken — токен неверной формы,
// неизвестен, истёк или отозван. Причина различается только в аудите.
func (a *GuestAuthenticator) Authenticate(ctx context.Context, token string, meta model.RequestMeta) (*model.Guest, error) {
	if token == "" {
		guestAuthTotal.WithLabelValues("no_token").Inc()
		return nil, ErrNoToken
	}

	if !guesttoken.WellFormed(token) {
		guestAuthTotal.WithLabelValues("malformed").Inc()
		a.audit.LogAccessDenied(ctx, model.Actor{}, meta, nil, ReasonMalformedToken, nil)
		return nil, ErrInvalidToken
	}

	g, err := a.guests.FindByToken(ctx, token)
	if err != nil {
		guestAuthTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if g == nil {
		guestAuthTotal.WithLabelValues("invalid").Inc()
		a.audit.LogAccessDenied(ctx, model.Actor{}, meta, nil, ReasonInvalidToken, nil)
		return nil, ErrInvalidToken
	}

	if err := a.guests.RecordFirstAccess(ctx, g.ID); err != nil {
		a.logger.Warn("Не удалось обновить время доступа гостя",
			slog.Int64("guest_id", g.ID),
			slog.String("error", err.Error()),
		)
	} else {
		now := a.guests.Now()
		if g.FirstAccessAt == nil {
			g.FirstAccessAt = &now
		}
		g.LastAccessAt = &now
	}

	a.audit.LogGuestAccess(ctx, g, meta)
	guestAuthTotal.WithLabelValues("ok").Inc()
	return g, nil
}
