package blobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"gocloud.dev/blob"
	"gocloud.dev/blob/s3blob"
)

// S3Config — параметры подключения к S3-совместимому хранилищу.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// S3Provider — S3-совместимое хранилище: один бакет на dossier,
// создаётся при первой загрузке. Ссылки — pre-signed GET от S3.
type S3Provider struct {
	client *s3.Client
	region string
	logger *slog.Logger

	mu      sync.Mutex
	buckets map[string]*blob.Bucket
	ensured map[string]bool
}

// NewS3Provider создаёт клиент S3 со статическими учётными данными
// и path-style адресацией (MinIO, Ceph RGW).
func NewS3Provider(cfg S3Config, logger *slog.Logger) *S3Provider {
	s3Config := aws.Config{
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		BaseEndpoint: aws.String(cfg.Endpoint),
		Region:       cfg.Region,
	}

	client := s3.NewFromConfig(s3Config, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &S3Provider{
		client:  client,
		region:  cfg.Region,
		logger:  logger.With(slog.String("component", "s3_provider")),
		buckets: make(map[string]*blob.Bucket),
		ensured: make(map[string]bool),
	}
}

// Name возвращает имя провайдера.
func (p *S3Provider) Name() string { return "s3" }

// Locate возвращает bucket контейнера (открытый один раз) и путь как ключ.
func (p *S3Provider) Locate(ctx context.Context, container, blobPath string, create bool) (*blob.Bucket, string, error) {
	if create {
		if err := p.ensureBucket(ctx, container); err != nil {
			return nil, "", err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if b, ok := p.buckets[container]; ok {
		return b, blobPath, nil
	}
	b, err := s3blob.OpenBucketV2(ctx, p.client, container, nil)
	if err != nil {
		return nil, "", fmt.Errorf("ошибка открытия бакета %s: %w", container, err)
	}
	p.buckets[container] = b
	return b, blobPath, nil
}

// ensureBucket создаёт бакет, если его нет. Гонка двух загрузок
// в новый dossier безопасна: BucketAlreadyOwnedByYou считается успехом.
func (p *S3Provider) ensureBucket(ctx context.Context, name string) error {
	p.mu.Lock()
	done := p.ensured[name]
	p.mu.Unlock()
	if done {
		return nil
	}

	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	if err != nil {
		var notFound *types.NotFound
		if !errors.As(err, &notFound) {
			return fmt.Errorf("ошибка проверки бакета %s: %w", name, err)
		}

		in := &s3.CreateBucketInput{Bucket: aws.String(name)}
		if p.region != "" && p.region != "us-east-1" {
			in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
				LocationConstraint: types.BucketLocationConstraint(p.region),
			}
		}
		if _, err := p.client.CreateBucket(ctx, in); err != nil {
			var owned *types.BucketAlreadyOwnedByYou
			var exists *types.BucketAlreadyExists
			if !errors.As(err, &owned) && !errors.As(err, &exists) {
				return fmt.Errorf("ошибка создания бакета %s: %w", name, err)
			}
		} else {
			p.logger.Info("Бакет dossier создан", slog.String("bucket", name))
		}
	}

	p.mu.Lock()
	p.ensured[name] = true
	p.mu.Unlock()
	return nil
}

// Check проверяет доступность S3 (список бакетов).
func (p *S3Provider) Check(ctx context.Context) error {
	_, err := p.client.ListBuckets(ctx, &s3.ListBucketsInput{MaxBuckets: aws.Int32(1)})
	if err != nil {
		return fmt.Errorf("S3 недоступен: %w", err)
	}
	return nil
}

// Close закрывает открытые bucket.
func (p *S3Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for name, b := range p.buckets {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		delete(p.buckets, name)
	}
	return errors.Join(errs...)
}
