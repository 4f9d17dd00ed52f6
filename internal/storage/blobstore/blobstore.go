// Пакет blobstore — хранение файлов документов в blob-хранилище
// через gocloud.dev/blob: один контейнер на dossier, подписанные
// ссылки на скачивание вместо проксирования содержимого.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Ключи метаданных blob.
const (
	MetaOriginalFilename = "original-filename"
	MetaDossierID        = "dossier-id"
	MetaCategory         = "category"
)

// Ошибки blob-хранилища.
var (
	// ErrNotFound — blob не найден.
	ErrNotFound = errors.New("blob не найден")
	// ErrInvalidSignature — подпись ссылки неверна или срок истёк.
	ErrInvalidSignature = errors.New("недействительная подписанная ссылка")
	// ErrUnsupported — операция не поддерживается провайдером.
	ErrUnsupported = errors.New("операция не поддерживается провайдером")
)

// Provider — бэкенд blob-хранилища.
type Provider interface {
	// Name — имя провайдера для логов и метрик (local, s3).
	Name() string
	// Locate возвращает bucket и ключ объекта для пути внутри контейнера.
	// При create=true контейнер создаётся, если его ещё нет.
	Locate(ctx context.Context, container, blobPath string, create bool) (*blob.Bucket, string, error)
	// Check проверяет доступность хранилища (для readiness).
	Check(ctx context.Context) error
	// Close освобождает открытые bucket.
	Close() error
}

// SignedURLVerifier — провайдер, который сам обслуживает подписанные ссылки.
type SignedURLVerifier interface {
	// KeyFromURL проверяет подпись и срок и возвращает bucket и ключ объекта.
	KeyFromURL(ctx context.Context, u *url.URL) (*blob.Bucket, string, error)
}

// Store — операции с файлами документов поверх Provider.
type Store struct {
	provider        Provider
	containerPrefix string
	urlTTL          time.Duration
	logger          *slog.Logger
}

// New создаёт Store. urlTTL — срок действия ссылок на скачивание по умолчанию.
func New(provider Provider, containerPrefix string, urlTTL time.Duration, logger *slog.Logger) *Store {
	return &Store{
		provider:        provider,
		containerPrefix: containerPrefix,
		urlTTL:          urlTTL,
		logger:          logger.With(slog.String("component", "blobstore"), slog.String("provider", provider.Name())),
	}
}

// UploadInput — параметры загрузки файла документа.
type UploadInput struct {
	DossierID        int64
	Category         string
	OriginalFilename string
	ContentType      string
	Body             io.Reader
}

// UploadResult — где сохранён файл.
type UploadResult struct {
	Container      string
	BlobPath       string
	StoredFilename string
	Size           int64
}

// ContainerName возвращает контейнер dossier с префиксом этого Store.
func (s *Store) ContainerName(dossierID int64) string {
	return ContainerName(s.containerPrefix, dossierID)
}

// URLTTL — срок действия ссылок на скачивание по умолчанию.
func (s *Store) URLTTL() time.Duration {
	return s.urlTTL
}

// UploadDocument записывает файл в контейнер dossier под случайным именем.
// Контейнер создаётся при первой загрузке.
func (s *Store) UploadDocument(ctx context.Context, in UploadInput) (*UploadResult, error) {
	container := s.ContainerName(in.DossierID)
	stored := StorageFilename(in.OriginalFilename)
	blobPath := BlobPath(in.Category, stored)

	bucket, key, err := s.provider.Locate(ctx, container, blobPath, true)
	if err != nil {
		return nil, fmt.Errorf("ошибка подготовки контейнера %s: %w", container, err)
	}

	writeCtx, cancelWrite := context.WithCancel(ctx)
	defer cancelWrite()

	w, err := bucket.NewWriter(writeCtx, key, &blob.WriterOptions{
		ContentType:        in.ContentType,
		ContentDisposition: ContentDisposition(in.OriginalFilename),
		Metadata: map[string]string{
			MetaOriginalFilename: url.QueryEscape(in.OriginalFilename),
			MetaDossierID:        strconv.FormatInt(in.DossierID, 10),
			MetaCategory:         in.Category,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия записи %s/%s: %w", container, blobPath, err)
	}

	size, err := w.ReadFrom(in.Body)
	if err != nil {
		// Отмена контекста до Close отменяет запись объекта
		cancelWrite()
		_ = w.Close()
		return nil, fmt.Errorf("ошибка записи %s/%s: %w", container, blobPath, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("ошибка завершения записи %s/%s: %w", container, blobPath, err)
	}

	s.logger.Debug("Файл сохранён",
		slog.String("container", container),
		slog.String("path", blobPath),
		slog.Int64("size", size),
	)

	return &UploadResult{
		Container:      container,
		BlobPath:       blobPath,
		StoredFilename: stored,
		Size:           size,
	}, nil
}

// GenerateDownloadURL возвращает подписанную ссылку на чтение blob
// и момент истечения. ttl <= 0 — срок по умолчанию.
func (s *Store) GenerateDownloadURL(ctx context.Context, container, blobPath string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = s.urlTTL
	}
	bucket, key, err := s.provider.Locate(ctx, container, blobPath, false)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("ошибка доступа к контейнеру %s: %w", container, err)
	}

	expiresAt := time.Now().Add(ttl)
	signed, err := bucket.SignedURL(ctx, key, &blob.SignedURLOptions{
		Expiry: ttl,
		Method: http.MethodGet,
	})
	if err != nil {
		if gcerrors.Code(err) == gcerrors.Unimplemented {
			return "", time.Time{}, ErrUnsupported
		}
		return "", time.Time{}, fmt.Errorf("ошибка подписи ссылки %s/%s: %w", container, blobPath, err)
	}
	return signed, expiresAt, nil
}

// DeleteBlob удаляет blob. Отсутствующий blob не считается ошибкой.
func (s *Store) DeleteBlob(ctx context.Context, container, blobPath string) error {
	bucket, key, err := s.provider.Locate(ctx, container, blobPath, false)
	if err != nil {
		return fmt.Errorf("ошибка доступа к контейнеру %s: %w", container, err)
	}
	if err := bucket.Delete(ctx, key); err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil
		}
		return fmt.Errorf("ошибка удаления %s/%s: %w", container, blobPath, err)
	}
	return nil
}

// SignedObject — открытый по подписанной ссылке объект.
type SignedObject struct {
	*blob.Reader
	// ContentDisposition — заголовок для ответа
	ContentDisposition string
}

// OpenSigned проверяет подписанную ссылку и открывает объект на чтение.
// Поддерживается только провайдерами, реализующими SignedURLVerifier.
// Вызывающий код обязан закрыть SignedObject.
func (s *Store) OpenSigned(ctx context.Context, u *url.URL) (*SignedObject, error) {
	verifier, ok := s.provider.(SignedURLVerifier)
	if !ok {
		return nil, ErrUnsupported
	}
	bucket, key, err := verifier.KeyFromURL(ctx, u)
	if err != nil {
		return nil, err
	}

	attrs, err := bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения атрибутов %s: %w", key, err)
	}

	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка открытия %s: %w", key, err)
	}

	disposition := attrs.ContentDisposition
	if disposition == "" {
		if name, err := url.QueryUnescape(attrs.Metadata[MetaOriginalFilename]); err == nil && name != "" {
			disposition = ContentDisposition(name)
		}
	}
	return &SignedObject{Reader: r, ContentDisposition: disposition}, nil
}

// Check проверяет доступность хранилища.
func (s *Store) Check(ctx context.Context) error {
	return s.provider.Check(ctx)
}

// CheckReady — проверка готовности хранилища для health endpoint.
func (s *Store) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.provider.Check(ctx); err != nil {
		return "fail", fmt.Sprintf("хранилище %s недоступно: %v", s.provider.Name(), err)
	}
	return "ok", "хранилище " + s.provider.Name() + " доступно"
}

// Close закрывает провайдер.
func (s *Store) Close() error {
	return s.provider.Close()
}

// ContentDisposition формирует заголовок attachment с именем файла (RFC 6266).
func ContentDisposition(filename string) string {
	if filename == "" {
		return "attachment"
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment; filename*=UTF-8''" + url.PathEscape(filename)
}
