// Пакет server — HTTP-сервер ouderschaps-api с graceful shutdown.
// Без TLS: TLS termination выполняет reverse proxy.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/api/handlers"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/api/middleware"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/config"
	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/rbac"
)

// Server — HTTP-сервер.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// Routes — обработчики, из которых собирается маршрутизатор.
type Routes struct {
	API    *handlers.APIHandler
	Health *handlers.HealthHandler
	Auth   *middleware.Authenticator
	// ServeBlobs — регистрировать GET /blobs (локальный провайдер)
	ServeBlobs bool
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, routes Routes) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(logger, routes),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршрутизатор API.
// Публичные маршруты: health, metrics, /blobs. Остальное — под /api/v1
// с аутентификацией пользователя (JWT) или гостя (токен).
func NewRouter(logger *slog.Logger, routes Routes) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", routes.Health.HealthLive)
	router.Get("/health/ready", routes.Health.HealthReady)
	router.Get("/metrics", routes.Health.GetMetrics)
	if routes.ServeBlobs {
		router.Get("/blobs", routes.API.ServeBlob)
	}

	api := routes.API
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(routes.Auth.Middleware())

		r.With(middleware.RequireGuest()).Get("/gast/sessie", api.GetGuestSession)
		r.With(middleware.RequireUser()).Get("/me", api.GetMe)
		r.With(middleware.RequireAuthenticated()).Get("/document-categorieen", api.ListCategories)

		r.With(middleware.RequireRole(rbac.RoleAdmin)).Delete("/admin/gasten/{gastId}", api.AdminDeleteGuest)

		r.Route("/dossiers", func(r chi.Router) {
			r.With(middleware.RequireUser()).Post("/", api.CreateDossier)
			r.With(middleware.RequireUser()).Get("/", api.ListDossiers)

			// Доступ к dossier проверяет шлюз в сервисах; отказ попадает в журнал.
			r.Route("/{dossierId}", func(r chi.Router) {
				r.With(middleware.RequireUser()).Get("/", api.GetDossier)

				r.Get("/delen", api.ListShares)
				r.Post("/delen", api.ShareDossier)
				r.Delete("/delen/{gebruikerId}", api.UnshareDossier)

				r.Get("/documenten", api.ListDocuments)
				r.Post("/documenten", api.UploadDocument)
				r.Get("/documenten/{documentId}/download", api.DownloadDocument)
				r.Delete("/documenten/{documentId}", api.DeleteDocument)

				r.Get("/gasten", api.ListGuests)
				r.Post("/gasten", api.InviteGuest)
				r.Delete("/gasten/{gastId}", api.RevokeGuest)
				r.Post("/gasten/{gastId}/vernieuw", api.RegenerateGuestToken)

				r.Get("/audit-log", api.ListAuditLog)
			})
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
