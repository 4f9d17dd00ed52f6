// Точка входа ouderschaps-api — backend документов ouderschapsplan.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// открывает blob-хранилище, создаёт сервисный слой и API handlers,
// запускает topologymetrics и HTTP-сервер с аутентификацией и graceful shutdown.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/api/handlers"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/api/middleware"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/config"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/database"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/repository"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/server"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/service"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/storage/blobstore"
)

func main() {
	// 0. Локальный .env (только для разработки; в кластере переменные задаёт окружение)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Не удалось прочитать .env", slog.String("error", err.Error()))
	}

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("ouderschaps-api запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage", cfg.StorageProvider),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Blob-хранилище
	blobs, err := openBlobStore(cfg, logger)
	if err != nil {
		logger.Error("Ошибка открытия blob-хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer blobs.Close()

	// 6. Repositories
	userRepo := repository.NewUserRepository(pool)
	dossierRepo := repository.NewDossierRepository(pool)
	categoryRepo := repository.NewCategoryRepository(pool)
	guestRepo := repository.NewGuestRepository(pool)
	documentRepo := repository.NewDocumentRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)

	// 7. Services
	auditSvc := service.NewAuditService(auditRepo, logger)
	gate := service.NewAccessGate(dossierRepo, guestRepo, auditSvc, logger)
	usersSvc := service.NewUserService(userRepo, cfg.UserCacheTTL, logger)
	categoriesSvc := service.NewCategoryService(categoryRepo, cfg.CategoryCacheTTL, logger)
	guestsSvc := service.NewGuestService(guestRepo, auditSvc, cfg.PortalBaseURL, cfg.GuestDefaultExpiryDays, logger)
	dossiersSvc := service.NewDossierService(dossierRepo, userRepo, gate, logger)
	documentsSvc := service.NewDocumentService(documentRepo, categoriesSvc, blobs, gate, auditSvc, logger)
	guestAuth := service.NewGuestAuthenticator(guestsSvc, auditSvc, logger)

	// 8. Аутентификация: JWT пользователей и гостевые токены
	limiter := middleware.NewRateLimiter(cfg.GuestRateLimit, cfg.GuestRateBurst)
	auth, err := middleware.NewAuthenticator(
		middleware.JWKSOptions{
			URL:             cfg.JWTJWKSURL,
			CACertPath:      cfg.JWKSCACertPath,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
		},
		middleware.AuthOptions{
			Issuer:      cfg.JWTIssuer,
			Leeway:      cfg.JWTLeeway,
			AdminGroups: cfg.RoleAdminGroups,
			Limiter:     limiter,
		},
		usersSvc,
		guestAuth,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания middleware аутентификации", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Аутентификация инициализирована",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
		slog.Float64("guest_rate_limit", cfg.GuestRateLimit),
	)

	// 9. Readiness checkers (PostgreSQL, IdP, хранилище)
	pgChecker := database.NewReadinessChecker(pool)
	idpChecker, err := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.JWKSCACertPath, cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка создания IdP readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, idpChecker, blobs)

	// 10. API handler
	apiHandler := handlers.NewAPIHandler(handlers.Deps{
		Categories:     categoriesSvc,
		Dossiers:       dossiersSvc,
		Documents:      documentsSvc,
		Guests:         guestsSvc,
		Gate:           gate,
		Audit:          auditSvc,
		Blobs:          blobs,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, logger)

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + IdP)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "ouderschaps-api",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, server.Routes{
		API:        apiHandler,
		Health:     healthHandler,
		Auth:       auth,
		ServeBlobs: cfg.StorageProvider == config.StorageProviderLocal,
	})
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	logger.Info("ouderschaps-api остановлен")
}

// openBlobStore открывает провайдер, выбранный в OP_STORAGE_PROVIDER.
func openBlobStore(cfg *config.Config, logger *slog.Logger) (*blobstore.Store, error) {
	var provider blobstore.Provider
	switch cfg.StorageProvider {
	case config.StorageProviderS3:
		provider = blobstore.NewS3Provider(blobstore.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			SessionToken:    cfg.S3SessionToken,
		}, logger)
		logger.Info("Blob-хранилище: S3",
			slog.String("endpoint", cfg.S3Endpoint),
			slog.String("region", cfg.S3Region),
		)
	default:
		if cfg.StorageSigningKeyGenerated {
			logger.Warn("OP_STORAGE_SIGNING_KEY не задан, ссылки на скачивание не переживут рестарт")
		}
		local, err := blobstore.NewLocalProvider(
			cfg.StorageLocalDir,
			strings.TrimRight(cfg.PublicBaseURL, "/")+"/blobs",
			[]byte(cfg.StorageSigningKey),
		)
		if err != nil {
			return nil, err
		}
		provider = local
		logger.Info("Blob-хранилище: локальный каталог", slog.String("dir", cfg.StorageLocalDir))
	}
	return blobstore.New(provider, cfg.StorageContainerPrefix, cfg.DownloadURLTTL, logger), nil
}
