// session.go — текущий субъект и справочник категорий.
// GET /api/v1/me — текущий пользователь.
// GET /api/v1/gast/sessie — сессия гостя по токену.
// GET /api/v1/document-categorieen — активные категории документов.
package handlers

import (
	"net/http"

	apierrors "github.com/HansKurvers/Ouderschaps-api-sub002/internal/api/errors"
)

// GetMe — GET /api/v1/me. Доступ: пользователь.
func (h *APIHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if !p.IsUser() {
		apierrors.Unauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, mapUser(p.User, p.Role))
}

// GetGuestSession — GET /api/v1/gast/sessie.
// Токен уже проверен middleware; ответ описывает, что гостю доступно.
func (h *APIHandler) GetGuestSession(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if !p.IsGuest() {
		apierrors.Unauthorized(w)
		return
	}
	g := p.Guest
	writeJSON(w, http.StatusOK, guestSessionResponse{
		Authenticated: true,
		DossierID:     g.DossierID,
		Gast: guestSessionInfo{
			ID:    g.ID,
			Email: g.Email,
			Naam:  g.DisplayName(),
		},
		Rechten:    string(g.Permission),
		VerlooptOp: g.ExpiresAt,
	})
}

// ListCategories — GET /api/v1/document-categorieen. Доступ: пользователь или гость.
func (h *APIHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Categories.List(r.Context())
	if err != nil {
		h.writeError(w, r, err, errorMessages{})
		return
	}
	items := make([]categoryResponse, len(cats))
	for i, c := range cats {
		items[i] = mapCategory(c)
	}
	writeJSON(w, http.StatusOK, items)
}
