package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
)

// LocalProvider — хранение на локальном диске через fileblob.
// Один bucket в корневом каталоге; контейнер — каталог верхнего уровня,
// поэтому подпись ссылки покрывает и контейнер, и путь.
// Ссылки указывают на GET /blobs самого сервиса.
type LocalProvider struct {
	dir    string
	signer *fileblob.URLSignerHMAC
	bucket *blob.Bucket
}

// NewLocalProvider открывает bucket в dir (создаёт каталог при необходимости).
// signBaseURL — адрес обработчика подписанных ссылок, например
// http://localhost:8080/blobs.
func NewLocalProvider(dir, signBaseURL string, signingKey []byte) (*LocalProvider, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("ключ подписи ссылок не задан")
	}
	base, err := url.Parse(signBaseURL)
	if err != nil {
		return nil, fmt.Errorf("некорректный адрес подписанных ссылок %q: %w", signBaseURL, err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог хранилища %s: %w", dir, err)
	}

	signer := fileblob.NewURLSignerHMAC(base, signingKey)
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{
		URLSigner: signer,
		CreateDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия локального хранилища %s: %w", dir, err)
	}

	return &LocalProvider{dir: dir, signer: signer, bucket: bucket}, nil
}

// Name возвращает имя провайдера.
func (p *LocalProvider) Name() string { return "local" }

// Locate возвращает корневой bucket и ключ <container>/<path>.
func (p *LocalProvider) Locate(_ context.Context, container, blobPath string, _ bool) (*blob.Bucket, string, error) {
	if container == "" || strings.Contains(container, "/") {
		return nil, "", fmt.Errorf("недопустимое имя контейнера %q", container)
	}
	return p.bucket, container + "/" + blobPath, nil
}

// KeyFromURL проверяет HMAC-подпись, срок действия и метод ссылки.
func (p *LocalProvider) KeyFromURL(ctx context.Context, u *url.URL) (*blob.Bucket, string, error) {
	if m := u.Query().Get("method"); m != "" && m != http.MethodGet {
		return nil, "", ErrInvalidSignature
	}
	key, err := p.signer.KeyFromURL(ctx, u)
	if err != nil || key == "" {
		return nil, "", ErrInvalidSignature
	}
	return p.bucket, key, nil
}

// Check проверяет доступность корневого каталога.
func (p *LocalProvider) Check(ctx context.Context) error {
	ok, err := p.bucket.IsAccessible(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("каталог %s недоступен", p.dir)
	}
	return nil
}

// Close закрывает bucket.
func (p *LocalProvider) Close() error {
	return p.bucket.Close()
}
