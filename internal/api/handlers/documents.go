// documents.go — обработчики /api/v1/dossiers/{dossierId}/documenten.
// Загрузка (multipart), список, ссылка на скачивание, soft delete.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	apierrors "github.com/HansKurvers/Ouderschaps-api-sub002/internal/api/errors"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/service"
)

// Поля multipart-формы загрузки.
const (
	formFieldFile     = "bestand"
	formFieldCategory = "categorieId"
)

// multipartMemory — часть формы, удерживаемая в памяти; остальное во временных файлах.
const multipartMemory = 8 << 20

// multipartOverhead — запас на заголовки и служебные поля формы сверх размера файла.
const multipartOverhead = 1 << 20

var documentMessages = errorMessages{notFound: "Document niet gevonden"}

// ListDocuments — GET /api/v1/dossiers/{dossierId}/documenten. Доступ: view.
func (h *APIHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := pathID(r, "dossierId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig dossier-ID")
		return
	}
	docs, err := h.Documents.List(r.Context(), principal(r), meta(r), dossierID)
	if err != nil {
		h.writeError(w, r, err, documentMessages)
		return
	}
	items := make([]documentResponse, len(docs))
	for i, d := range docs {
		items[i] = mapDocumentWithCategory(d)
	}
	writeJSON(w, http.StatusOK, items)
}

// UploadDocument — POST /api/v1/dossiers/{dossierId}/documenten. Доступ: upload.
// Форма: bestand (файл), categorieId (число).
// Право на загрузку проверяется до чтения тела: отказ не буферизует форму.
func (h *APIHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := pathID(r, "dossierId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig dossier-ID")
		return
	}
	if err := h.Gate.AuthorizeDossier(r.Context(), principal(r), dossierID, model.CapabilityUpload, meta(r)); err != nil {
		h.writeError(w, r, err, documentMessages)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.PayloadTooLarge(w, fmt.Sprintf("Bestand is te groot; maximaal %d MB", h.MaxUploadBytes>>20))
			return
		}
		apierrors.ValidationError(w, "Ongeldig multipart-verzoek")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("Не удалось удалить временные файлы формы", slog.String("error", err.Error()))
		}
	}()

	categoryID, err := strconv.ParseInt(strings.TrimSpace(r.FormValue(formFieldCategory)), 10, 64)
	if err != nil || categoryID <= 0 {
		apierrors.ValidationError(w, "Veld categorieId is verplicht")
		return
	}

	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		apierrors.ValidationError(w, "Veld bestand is verplicht")
		return
	}
	defer file.Close()

	doc, err := h.Documents.Upload(r.Context(), principal(r), meta(r), service.UploadInput{
		DossierID:   dossierID,
		CategoryID:  categoryID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.writeError(w, r, err, documentMessages)
		return
	}
	writeJSON(w, http.StatusCreated, mapDocument(doc))
}

// DownloadDocument — GET /api/v1/dossiers/{dossierId}/documenten/{documentId}/download.
// Возвращает ограниченную по времени ссылку. Доступ: view.
func (h *APIHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := pathID(r, "dossierId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig dossier-ID")
		return
	}
	documentID, ok := pathID(r, "documentId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig document-ID")
		return
	}

	link, err := h.Documents.Download(r.Context(), principal(r), meta(r), dossierID, documentID)
	if err != nil {
		h.writeError(w, r, err, documentMessages)
		return
	}
	writeJSON(w, http.StatusOK, downloadResponse{
		DownloadURL:  link.URL,
		VerlooptOp:   link.ExpiresAt,
		Bestandsnaam: link.Document.OriginalFilename,
		MimeType:     link.Document.MimeType,
	})
}

// DeleteDocument — DELETE /api/v1/dossiers/{dossierId}/documenten/{documentId}.
// Soft delete; доступ: владелец dossier.
func (h *APIHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := pathID(r, "dossierId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig dossier-ID")
		return
	}
	documentID, ok := pathID(r, "documentId")
	if !ok {
		apierrors.ValidationError(w, "Ongeldig document-ID")
		return
	}

	if err := h.Documents.Delete(r.Context(), principal(r), meta(r), dossierID, documentID); err != nil {
		h.writeError(w, r, err, documentMessages)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
