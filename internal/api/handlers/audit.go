// audit.go — обработчик GET /api/v1/dossiers/{dossierId}/audit-log.
// Журнал доступен только владельцу dossier; записи новые первыми.
package handlers

import (
	"net/http"

	apierrors "github.com/HansKurvers/Ouderschaps-api-sub002/internal/api/errors"
)

// ListAuditLog — GET /api/v1/dossiers/{dossierId}/audit-log?limit=&offset=.
func (h *APIHandler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := pathID(r, "dossierId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig dossier-ID")
		return
	}
	if err := h.Gate.AuthorizeOwner(r.Context(), principal(r), dossierID, meta(r)); err != nil {
		h.writeError(w, r, err, dossierMessages)
		return
	}

	limit, offset := paginationDefaults(r, 50, 500)
	entries, total, err := h.Audit.ListByDossier(r.Context(), dossierID, limit, offset)
	if err != nil {
		h.writeError(w, r, err, dossierMessages)
		return
	}

	items := make([]auditEntryResponse, len(entries))
	for i, e := range entries {
		items[i] = mapAuditEntry(e)
	}
	writeJSON(w, http.StatusOK, listResponse[auditEntryResponse]{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(items) < total,
	})
}
