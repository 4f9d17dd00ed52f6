// guests.go — обработчики гостевых приглашений.
// /api/v1/dossiers/{dossierId}/gasten — управление гостями (владелец dossier).
// /api/v1/admin/gasten/{gastId} — окончательное удаление (admin).
package handlers

import (
	"net/http"
	"strings"

	apierrors "github.com/HansKurvers/Ouderschaps-api-sub002/internal/api/errors"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/service"
)

var guestMessages = errorMessages{
	notFound: "Gast niet gevonden",
	conflict: "Er is al een gast met dit e-mailadres uitgenodigd",
}

// inviteGuestRequest — тело POST /dossiers/{dossierId}/gasten.
type inviteGuestRequest struct {
	Email        string  `json:"email" validate:"required,email,max=255"`
	Naam         *string `json:"naam" validate:"omitempty,max=255"`
	Rechten      string  `json:"rechten" validate:"required,oneof=upload view upload_view"`
	VerloopDagen *int    `json:"verloopDagen" validate:"omitempty,min=1,max=365"`
}

// regenerateRequest — необязательное тело POST .../gasten/{gastId}/vernieuw.
type regenerateRequest struct {
	VerloopDagen *int `json:"verloopDagen" validate:"omitempty,min=1,max=365"`
}

// ListGuests — GET /api/v1/dossiers/{dossierId}/gasten. Доступ: владелец.
func (h *APIHandler) ListGuests(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := pathID(r, "dossierId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig dossier-ID")
		return
	}
	if err := h.Gate.AuthorizeOwner(r.Context(), principal(r), dossierID, meta(r)); err != nil {
		h.writeError(w, r, err, guestMessages)
		return
	}

	guests, err := h.Guests.ListByDossier(r.Context(), dossierID)
	if err != nil {
		h.writeError(w, r, err, guestMessages)
		return
	}
	now := h.Guests.Now()
	items := make([]guestResponse, len(guests))
	for i, g := range guests {
		items[i] = mapGuest(g, now)
	}
	writeJSON(w, http.StatusOK, items)
}

// InviteGuest — POST /api/v1/dossiers/{dossierId}/gasten. Доступ: владелец.
// Ответ содержит plaintext-токен и ссылку доступа; повторно их получить нельзя.
func (h *APIHandler) InviteGuest(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := pathID(r, "dossierId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig dossier-ID")
		return
	}
	p := principal(r)
	if err := h.Gate.AuthorizeOwner(r.Context(), p, dossierID, meta(r)); err != nil {
		h.writeError(w, r, err, guestMessages)
		return
	}

	var req inviteGuestRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}

	in := service.CreateGuestInput{
		DossierID:  dossierID,
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Name:       trimmedOrNil(req.Naam),
		Permission: model.Permission(req.Rechten),
		InvitedBy:  p.User.ID,
	}
	if req.VerloopDagen != nil {
		in.ExpiryDays = *req.VerloopDagen
	}

	inv, err := h.Guests.Invite(r.Context(), p.Actor(), meta(r), in)
	if err != nil {
		h.writeError(w, r, err, guestMessages)
		return
	}
	writeJSON(w, http.StatusCreated, h.invitationResponse(inv))
}

// RevokeGuest — DELETE /api/v1/dossiers/{dossierId}/gasten/{gastId}. Доступ: владелец.
func (h *APIHandler) RevokeGuest(w http.ResponseWriter, r *http.Request) {
	dossierID, guestID, ok := dossierAndGuestIDs(w, r)
	if !ok {
		return
	}
	p := principal(r)
	if err := h.Gate.AuthorizeOwner(r.Context(), p, dossierID, meta(r)); err != nil {
		h.writeError(w, r, err, guestMessages)
		return
	}

	if err := h.Guests.RevokeInDossier(r.Context(), p.Actor(), meta(r), dossierID, guestID); err != nil {
		h.writeError(w, r, err, errorMessages{
			notFound: "Gast niet gevonden",
			conflict: "Gasttoegang is al ingetrokken",
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegenerateGuestToken — POST /api/v1/dossiers/{dossierId}/gasten/{gastId}/vernieuw.
// Выдаёт новый токен; старый перестаёт действовать. Доступ: владелец.
func (h *APIHandler) RegenerateGuestToken(w http.ResponseWriter, r *http.Request) {
	dossierID, guestID, ok := dossierAndGuestIDs(w, r)
	if !ok {
		return
	}
	p := principal(r)
	if err := h.Gate.AuthorizeOwner(r.Context(), p, dossierID, meta(r)); err != nil {
		h.writeError(w, r, err, guestMessages)
		return
	}

	var req regenerateRequest
	if !h.decodeJSON(w, r, &req, true) {
		return
	}
	days := 0
	if req.VerloopDagen != nil {
		days = *req.VerloopDagen
	}

	inv, err := h.Guests.RegenerateInDossier(r.Context(), p.Actor(), meta(r), dossierID, guestID, days)
	if err != nil {
		h.writeError(w, r, err, guestMessages)
		return
	}
	writeJSON(w, http.StatusOK, h.invitationResponse(inv))
}

// AdminDeleteGuest — DELETE /api/v1/admin/gasten/{gastId}. Доступ: admin.
// Запись удаляется физически; журнал аудита сохраняется.
func (h *APIHandler) AdminDeleteGuest(w http.ResponseWriter, r *http.Request) {
	guestID, ok := pathID(r, "gastId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig gast-ID")
		return
	}
	p := principal(r)
	if err := h.Guests.HardDelete(r.Context(), p.Actor(), meta(r), guestID); err != nil {
		h.writeError(w, r, err, errorMessages{
			notFound: "Gast niet gevonden",
			conflict: "Gast heeft documenten geüpload en kan niet worden verwijderd",
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) invitationResponse(inv *service.Invitation) invitationResponse {
	return invitationResponse{
		Gast:        mapGuest(inv.Guest, h.Guests.Now()),
		Token:       inv.Token,
		ToegangsURL: inv.AccessURL,
	}
}

// dossierAndGuestIDs разбирает {dossierId} и {gastId}; при ошибке отвечает 400.
func dossierAndGuestIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	dossierID, ok := pathID(r, "dossierId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig dossier-ID")
		return 0, 0, false
	}
	guestID, ok := pathID(r, "gastId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig gast-ID")
		return 0, 0, false
	}
	return dossierID, guestID, true
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
