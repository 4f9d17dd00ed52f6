// blobs.go — отдача файла по подписанной ссылке локального провайдера.
// GET /blobs?obj=..&expiry=..&signature=.. (без аутентификации: доступ даёт подпись).
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/HansKurvers/Ouderschaps-api-sub002/internal/api/errors"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/storage/blobstore"
)

// ServeBlob — GET /blobs.
func (h *APIHandler) ServeBlob(w http.ResponseWriter, r *http.Request) {
	obj, err := h.Blobs.OpenSigned(r.Context(), r.URL)
	if err != nil {
		switch {
		case errors.Is(err, blobstore.ErrInvalidSignature):
			apierrors.Forbidden(w)
		case errors.Is(err, blobstore.ErrNotFound), errors.Is(err, blobstore.ErrUnsupported):
			apierrors.NotFound(w, "Document niet gevonden")
		default:
			h.logger.Error("Ошибка открытия blob по ссылке", slog.String("error", err.Error()))
			apierrors.InternalError(w)
		}
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", obj.ContentType())
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size(), 10))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, no-store")
	if obj.ContentDisposition != "" {
		w.Header().Set("Content-Disposition", obj.ContentDisposition)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj); err != nil {
		h.logger.Warn("Передача blob прервана", slog.String("error", err.Error()))
	}
}
