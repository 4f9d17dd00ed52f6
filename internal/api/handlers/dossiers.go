// dossiers.go — обработчики /api/v1/dossiers.
// Создание и просмотр dossier, совместный доступ пользователей.
package handlers

import (
	"net/http"

	apierrors "github.com/HansKurvers/Ouderschaps-api-sub002/internal/api/errors"
)

var dossierMessages = errorMessages{notFound: "Dossier niet gevonden"}

// shareRequest — тело POST /dossiers/{dossierId}/delen.
type shareRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// CreateDossier — POST /api/v1/dossiers. Владелец — текущий пользователь.
func (h *APIHandler) CreateDossier(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	d, err := h.Dossiers.Create(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err, dossierMessages)
		return
	}
	writeJSON(w, http.StatusCreated, mapDossier(d, p.User.ID))
}

// ListDossiers — GET /api/v1/dossiers. Свои и открытые пользователю dossier.
func (h *APIHandler) ListDossiers(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	dossiers, err := h.Dossiers.ListForUser(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err, dossierMessages)
		return
	}
	items := make([]dossierResponse, len(dossiers))
	for i, d := range dossiers {
		items[i] = mapDossier(d, p.User.ID)
	}
	writeJSON(w, http.StatusOK, items)
}

// GetDossier — GET /api/v1/dossiers/{dossierId}. Доступ: владелец или совместный доступ.
func (h *APIHandler) GetDossier(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := pathID(r, "dossierId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig dossier-ID")
		return
	}
	p := principal(r)
	d, err := h.Dossiers.Get(r.Context(), p, meta(r), dossierID)
	if err != nil {
		h.writeError(w, r, err, dossierMessages)
		return
	}
	writeJSON(w, http.StatusOK, mapDossier(d, p.User.ID))
}

// ListShares — GET /api/v1/dossiers/{dossierId}/delen. Доступ: владелец.
func (h *APIHandler) ListShares(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := pathID(r, "dossierId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig dossier-ID")
		return
	}
	shares, err := h.Dossiers.ListShares(r.Context(), principal(r), meta(r), dossierID)
	if err != nil {
		h.writeError(w, r, err, dossierMessages)
		return
	}
	items := make([]shareResponse, len(shares))
	for i, s := range shares {
		items[i] = mapShare(s)
	}
	writeJSON(w, http.StatusOK, items)
}

// ShareDossier — POST /api/v1/dossiers/{dossierId}/delen. Доступ: владелец.
func (h *APIHandler) ShareDossier(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := pathID(r, "dossierId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig dossier-ID")
		return
	}
	var req shareRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}

	u, err := h.Dossiers.Share(r.Context(), principal(r), meta(r), dossierID, req.Email)
	if err != nil {
		h.writeError(w, r, err, errorMessages{
			notFound: "Dossier niet gevonden",
			conflict: "Dossier is al gedeeld met deze gebruiker",
		})
		return
	}
	writeJSON(w, http.StatusCreated, mapUser(u, ""))
}

// UnshareDossier — DELETE /api/v1/dossiers/{dossierId}/delen/{gebruikerId}. Доступ: владелец.
func (h *APIHandler) UnshareDossier(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := pathID(r, "dossierId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig dossier-ID")
		return
	}
	userID, ok := pathID(r, "gebruikerId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig gebruiker-ID")
		return
	}

	if err := h.Dossiers.Unshare(r.Context(), principal(r), meta(r), dossierID, userID); err != nil {
		h.writeError(w, r, err, errorMessages{notFound: "Gedeelde toegang niet gevonden"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
