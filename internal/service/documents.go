// documents.go — загрузка, список, скачивание и удаление документов dossier.
// Порядок загрузки: проверки категории, затем blob, затем запись в БД,
// затем аудит. Сбой между blob и записью оставляет «осиротевший» blob,
// но не запись без файла.
package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/repository"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/storage/blobstore"
)

// sniffLen — сколько байт читается для определения MIME по содержимому.
const sniffLen = 512

// genericMimeType — тип, который браузеры присылают для «неизвестного» файла.
const genericMimeType = "application/octet-stream"

// extensionMimeTypes — допустимые MIME-типы для известных расширений.
// Расширения вне списка эту проверку проходят; решает список категории.
var extensionMimeTypes = map[string][]string{
	"pdf":  {"application/pdf"},
	"jpg":  {"image/jpeg", "image/pjpeg"},
	"jpeg": {"image/jpeg", "image/pjpeg"},
	"png":  {"image/png"},
	"gif":  {"image/gif"},
	"heic": {"image/heic", "image/heif"},
	"doc":  {"application/msword"},
	"docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	"xls":  {"application/vnd.ms-excel"},
	"xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/zip"},
	"txt":  {"text/plain"},
	"csv":  {"text/csv", "text/plain", "application/vnd.ms-excel"},
}

var (
	documentUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "op_document_uploads_total",
		Help: "Количество загрузок документов по результату.",
	}, []string{"result"})
	documentUploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "op_document_upload_bytes",
		Help:    "Размер загруженных документов в байтах.",
		Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8),
	})
)

// BlobStore — операции blob-хранилища, нужные DocumentService.
type BlobStore interface {
	UploadDocument(ctx context.Context, in blobstore.UploadInput) (*blobstore.UploadResult, error)
	GenerateDownloadURL(ctx context.Context, container, blobPath string, ttl time.Duration) (string, time.Time, error)
	DeleteBlob(ctx context.Context, container, blobPath string) error
}

// DocumentService — конвейер документов. Все методы сами вызывают AccessGate.
type DocumentService struct {
	docs       repository.DocumentRepository
	categories *CategoryService
	blobs      BlobStore
	gate       *AccessGate
	audit      *AuditService
	logger     *slog.Logger
	now        func() time.Time
}

// NewDocumentService создаёт сервис документов.
func NewDocumentService(
	docs repository.DocumentRepository,
	categories *CategoryService,
	blobs BlobStore,
	gate *AccessGate,
	audit *AuditService,
	logger *slog.Logger,
) *DocumentService {
	return &DocumentService{
		docs:       docs,
		categories: categories,
		blobs:      blobs,
		gate:       gate,
		audit:      audit,
		logger:     logger.With(slog.String("component", "document_service")),
		now:        time.Now,
	}
}

// UploadInput — загружаемый файл.
type UploadInput struct {
	DossierID  int64
	CategoryID int64
	// Filename — имя файла от клиента; используется только базовое имя
	Filename string
	// ContentType — заявленный клиентом MIME-тип (может быть пустым)
	ContentType string
	// Size — заявленный размер в байтах
	Size int64
	Body io.Reader
}

// Upload проверяет файл по правилам категории, сохраняет его и создаёт запись.
// Ни одна проверка не пишет в хранилище до полного прохождения.
func (s *DocumentService) Upload(ctx context.Context, p *Principal, meta model.RequestMeta, in UploadInput) (*model.Document, error) {
	if err := s.gate.AuthorizeDossier(ctx, p, in.DossierID, model.CapabilityUpload, meta); err != nil {
		return nil, err
	}

	doc, err := s.upload(ctx, p, meta, in)
	if err != nil {
		result := "error"
		if errors.Is(err, ErrValidation) {
			result = "rejected"
		}
		documentUploadsTotal.WithLabelValues(result).Inc()
		return nil, err
	}
	documentUploadsTotal.WithLabelValues("ok").Inc()
	documentUploadBytes.Observe(float64(doc.Size))
	return doc, nil
}

func (s *DocumentService) upload(ctx context.Context, p *Principal, meta model.RequestMeta, in UploadInput) (*model.Document, error) {
	cat, err := s.categories.Get(ctx, in.CategoryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, validationError("onbekende documentcategorie")
		}
		return nil, err
	}
	if !cat.Active {
		return nil, validationError("documentcategorie %q is niet actief", cat.Name)
	}

	filename := baseFilename(in.Filename)
	if filename == "" {
		return nil, validationError("bestandsnaam ontbreekt")
	}

	ext := blobstore.Extension(filename)
	if !cat.AllowsExtension(ext) {
		return nil, validationError("bestandstype niet toegestaan voor categorie %q; toegestaan: %s",
			cat.Name, strings.Join(cat.Extensions(), ", "))
	}

	maxSize := cat.MaxSizeBytes()
	if in.Size <= 0 {
		return nil, validationError("bestand is leeg")
	}
	if in.Size > maxSize {
		return nil, validationError("bestand is te groot; maximaal %d MB voor categorie %q", cat.MaxSizeMB, cat.Name)
	}

	br := bufio.NewReaderSize(in.Body, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("чтение загружаемого файла: %w", err)
	}
	if len(head) == 0 {
		return nil, validationError("bestand is leeg")
	}

	contentType := resolveMimeType(in.ContentType, head)
	if !mimeMatchesExtension(ext, contentType) {
		return nil, validationError("bestandstype %s komt niet overeen met extensie .%s", contentType, ext)
	}

	res, err := s.blobs.UploadDocument(ctx, blobstore.UploadInput{
		DossierID:        in.DossierID,
		Category:         cat.Name,
		OriginalFilename: filename,
		ContentType:      contentType,
		Body:             io.LimitReader(br, maxSize+1),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if res.Size > maxSize {
		// Заявленный размер оказался меньше фактического
		if derr := s.blobs.DeleteBlob(ctx, res.Container, res.BlobPath); derr != nil {
			s.logger.Warn("Не удалось удалить слишком большой blob",
				slog.String("container", res.Container),
				slog.String("path", res.BlobPath),
				slog.String("error", derr.Error()),
			)
		}
		return nil, validationError("bestand is te groot; maximaal %d MB voor categorie %q", cat.MaxSizeMB, cat.Name)
	}

	doc := &model.Document{
		DossierID:        in.DossierID,
		CategoryID:       cat.ID,
		BlobContainer:    res.Container,
		BlobPath:         res.BlobPath,
		OriginalFilename: filename,
		StoredFilename:   res.StoredFilename,
		Size:             res.Size,
		MimeType:         contentType,
		UploadedBy:       p.Actor(),
		UploadIP:         meta.IP,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		s.logger.Error("Запись документа не создана, blob остаётся",
			slog.String("container", res.Container),
			slog.String("path", res.BlobPath),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("создание записи документа: %w", fromRepo(err))
	}

	s.audit.LogUpload(ctx, doc.UploadedBy, meta, doc.DossierID, doc.ID, map[string]any{
		"bestandsnaam": doc.OriginalFilename,
		"categorie":    cat.Name,
		"grootte":      doc.Size,
		"mimeType":     doc.MimeType,
	})
	s.logger.Info("Документ загружен",
		slog.Int64("dossier_id", doc.DossierID),
		slog.Int64("document_id", doc.ID),
		slog.String("actor", doc.UploadedBy.String()),
		slog.Int64("size", doc.Size),
	)
	return doc, nil
}

// List возвращает активные документы dossier.
func (s *DocumentService) List(ctx context.Context, p *Principal, meta model.RequestMeta, dossierID int64) ([]*model.DocumentWithCategory, error) {
	if err := s.gate.AuthorizeDossier(ctx, p, dossierID, model.CapabilityView, meta); err != nil {
		return nil, err
	}
	docs, err := s.docs.FindByDossierIDWithCategory(ctx, dossierID)
	if err != nil {
		return nil, fmt.Errorf("список документов dossier %d: %w", dossierID, err)
	}
	s.audit.LogView(ctx, p.Actor(), meta, dossierID, map[string]any{"aantal": len(docs)})
	return docs, nil
}

// DownloadLink — подписанная ссылка на скачивание документа.
type DownloadLink struct {
	Document  *model.Document
	URL       string
	ExpiresAt time.Time
}

// Download выдаёт ссылку на скачивание. Документ другого dossier и
// удалённый документ неотличимы: ErrNotFound.
func (s *DocumentService) Download(ctx context.Context, p *Principal, meta model.RequestMeta, dossierID, documentID int64) (*DownloadLink, error) {
	if err := s.gate.AuthorizeDossier(ctx, p, dossierID, model.CapabilityView, meta); err != nil {
		return nil, err
	}
	doc, err := s.activeInDossier(ctx, dossierID, documentID)
	if err != nil {
		return nil, err
	}

	signed, expiresAt, err := s.blobs.GenerateDownloadURL(ctx, doc.BlobContainer, doc.BlobPath, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.audit.LogDownload(ctx, p.Actor(), meta, dossierID, documentID)
	return &DownloadLink{Document: doc, URL: signed, ExpiresAt: expiresAt}, nil
}

// Delete помечает документ удалённым (только владелец dossier). Blob сохраняется.
func (s *DocumentService) Delete(ctx context.Context, p *Principal, meta model.RequestMeta, dossierID, documentID int64) error {
	if err := s.gate.AuthorizeOwner(ctx, p, dossierID, meta); err != nil {
		return err
	}
	belongs, err := s.docs.BelongsToDossier(ctx, documentID, dossierID)
	if err != nil {
		return err
	}
	if !belongs {
		return fmt.Errorf("%w: документ %d", ErrNotFound, documentID)
	}

	deleted, err := s.docs.SoftDelete(ctx, documentID, s.now())
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: документ %d уже удалён", ErrNotFound, documentID)
	}

	s.audit.LogDelete(ctx, p.Actor(), meta, dossierID, documentID)
	s.logger.Info("Документ удалён",
		slog.Int64("dossier_id", dossierID),
		slog.Int64("document_id", documentID),
		slog.String("actor", p.Actor().String()),
	)
	return nil
}

// activeInDossier возвращает неудалённый документ, только если он из dossierID.
func (s *DocumentService) activeInDossier(ctx context.Context, dossierID, documentID int64) (*model.Document, error) {
	belongs, err := s.docs.BelongsToDossier(ctx, documentID, dossierID)
	if err != nil {
		return nil, err
	}
	if !belongs {
		return nil, fmt.Errorf("%w: документ %d", ErrNotFound, documentID)
	}
	doc, err := s.docs.GetActiveByID(ctx, documentID)
	if err != nil {
		return nil, fromRepo(err)
	}
	return doc, nil
}

// baseFilename отбрасывает путь, который некоторые браузеры передают в имени файла.
func baseFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// resolveMimeType — заявленный тип без параметров; если он пустой или
// generic, тип определяется по содержимому.
func resolveMimeType(declared string, head []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != genericMimeType {
		return mt
	}
	mt, _, err := mime.ParseMediaType(mimetype.Detect(head).String())
	if err != nil {
		return genericMimeType
	}
	return mt
}

// mimeMatchesExtension проверяет тип по списку extensionMimeTypes.
// Тип, который не удалось определить, проверку проходит.
func mimeMatchesExtension(ext, contentType string) bool {
	allowed, known := extensionMimeTypes[ext]
	if !known || contentType == genericMimeType {
		return true
	}
	for _, a := range allowed {
		if a == contentType {
			return true
		}
	}
	return false
}
