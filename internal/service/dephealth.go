// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// EDMS Catalog мониторит:
//   - PostgreSQL (реестр документов) — SQL checker через существующий pgxpool (critical)
//   - EDMS — HTTP checker к endpoint'у IDMSvc (critical)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках (EC_DEPHEALTH_GROUP)
	Group string
	// PgConnURL — URL реестра (для лейблов, не для подключения)
	PgConnURL string
	// EDMSURL — endpoint IDMSvc
	EDMSURL string
	// EDMSHealthPath — путь HTTP-проверки EDMS
	EDMSHealthPath string
	// CheckInterval — интервал проверки (EC_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
	// IsEntry — лейбл isentry=yes для всех зависимостей (EC_DEPHEALTH_ISENTRY)
	IsEntry bool
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// db — *sql.DB, полученный из pgxpool через stdlib.OpenDBFromPool().
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(cfg DephealthConfig, db *sql.DB, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, db, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	cfg DephealthConfig,
	db *sql.DB,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(cfg, db, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	cfg DephealthConfig,
	db *sql.DB,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	pgDepOpts := []dephealth.DependencyOption{
		dephealth.FromURL(cfg.PgConnURL),
		dephealth.CheckInterval(cfg.CheckInterval),
		dephealth.Critical(true),
	}
	edmsDepOpts := []dephealth.DependencyOption{
		dephealth.FromURL(cfg.EDMSURL),
		dephealth.WithHTTPHealthPath(cfg.EDMSHealthPath),
		dephealth.CheckInterval(cfg.CheckInterval),
		dephealth.Critical(true),
	}
	if cfg.IsEntry {
		pgDepOpts = append(pgDepOpts, dephealth.WithLabel("isentry", "yes"))
		edmsDepOpts = append(edmsDepOpts, dephealth.WithLabel("isentry", "yes"))
	}
	if parsed, err := url.Parse(cfg.EDMSURL); err == nil && parsed.Scheme == "https" {
		edmsDepOpts = append(edmsDepOpts, dephealth.WithHTTPTLSSkipVerify(false))
	}

	opts := make([]dephealth.Option, 0, 3+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		// Реестр — connection pool mode через существующий pgxpool
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(db)), pgDepOpts...),
		dephealth.HTTP("edms", edmsDepOpts...),
	)
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL + EDMS)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
