// main.go — точка входа EDMS Catalog.
// Порядок: config → logger → реестр (pgxpool) → EDMS → сервисы →
// мониторинг зависимостей → HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/edms-catalog/internal/api/handlers"
	"github.com/bigkaa/goartstore/edms-catalog/internal/api/middleware"
	"github.com/bigkaa/goartstore/edms-catalog/internal/app"
	"github.com/bigkaa/goartstore/edms-catalog/internal/config"
	"github.com/bigkaa/goartstore/edms-catalog/internal/database"
	"github.com/bigkaa/goartstore/edms-catalog/internal/server"
	"github.com/bigkaa/goartstore/edms-catalog/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("EDMS Catalog запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Подключение к реестру документов
	ctx := context.Background()
	registry, err := app.NewRegistry(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к реестру", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer registry.Close()

	// 3.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(registry.Pool)
	defer pgDB.Close()

	// 4. EDMS: SOAP-клиент, сессия, получение содержимого, кэш миниатюр
	content, err := app.NewContent(cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации EDMS", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Каталог: реестр + миниатюры
	catalog := service.NewCatalogService(
		registry.Service,
		content.Thumbnails,
		cfg.PlaceholderURL,
		cfg.ThumbnailWorkers,
		logger,
	)

	// 6. topologymetrics — мониторинг зависимостей (PostgreSQL + EDMS)
	var deps handlers.DependencyHealth
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:      "edms-catalog",
		Group:          cfg.DephealthGroup,
		PgConnURL:      cfg.DatabaseURL(),
		EDMSURL:        cfg.EDMSURL,
		EDMSHealthPath: cfg.EDMSHealthPath,
		CheckInterval:  cfg.DephealthCheckInterval,
		IsEntry:        cfg.DephealthIsEntry,
	}, pgDB, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
		dephealthSvc = nil
	} else {
		deps = dephealthSvc
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 7. HTTP-обработчики
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(registry.Pool), deps)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		catalog,
		registry.Service,
		content.Retriever,
		content.Thumbnails,
		logger,
	)

	// 8. HTTP-сервер: metrics → logging
	srv := server.New(cfg, logger, apiHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	// 9. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("EDMS Catalog остановлен")
}
