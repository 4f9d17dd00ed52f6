// dephealth.go — метрики состояния зависимостей (topologymetrics SDK).
// PostgreSQL проверяется через пул приложения, IdP — запросом к JWKS.
// Метрики app_dependency_* отдаются вместе с остальными на /metrics.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// Имена зависимостей в метриках.
const (
	DepPostgres = "postgresql"
	DepIdPJWKS  = "idp-jwks"
)

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	ServiceID string
	Group     string
	// DB — *sql.DB поверх pgxpool (stdlib.OpenDBFromPool)
	DB *sql.DB
	// PostgresURL — только для меток host/port, без учётных данных
	PostgresURL   string
	JWKSURL       string
	CheckInterval time.Duration
	TLSSkipVerify bool
	// Registerer — nil означает глобальный реестр Prometheus
	Registerer prometheus.Registerer
}

// DephealthService — периодические проверки зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService регистрирует обе зависимости как критичные.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	idpOpts := []dephealth.DependencyOption{
		dephealth.FromURL(cfg.JWKSURL),
		dephealth.WithHTTPHealthPath(jwksHealthPath(cfg.JWKSURL)),
		dephealth.CheckInterval(cfg.CheckInterval),
		dephealth.Critical(true),
	}
	if cfg.TLSSkipVerify {
		idpOpts = append(idpOpts, dephealth.WithHTTPTLSSkipVerify(true))
	}

	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency(DepPostgres, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PostgresURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP(DepIdPJWKS, idpOpts...),
	}
	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}
	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// jwksHealthPath — IdP проверяется по пути самого JWKS:
// /health у многих IdP доступен только на служебном порту.
func jwksHealthPath(jwksURL string) string {
	u, err := url.Parse(jwksURL)
	if err != nil || u.Path == "" {
		return "/health"
	}
	return u.Path
}

func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Проверки зависимостей запущены",
		slog.Any("dependencies", []string{DepPostgres, DepIdPJWKS}),
	)
	return ds.dh.Start(ctx)
}

func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Проверки зависимостей остановлены")
}

// Health — последнее состояние по ключу "имя:host:port".
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
