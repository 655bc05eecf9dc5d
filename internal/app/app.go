// Пакет app — сборка компонентов EDMS Catalog из конфигурации.
// Используется HTTP-сервисом (cmd/edms-catalog) и CLI оператора (cmd/edmsctl).
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/edms-catalog/internal/config"
	"github.com/bigkaa/goartstore/edms-catalog/internal/database"
	"github.com/bigkaa/goartstore/edms-catalog/internal/edms"
	"github.com/bigkaa/goartstore/edms-catalog/internal/imaging"
	"github.com/bigkaa/goartstore/edms-catalog/internal/repository"
	"github.com/bigkaa/goartstore/edms-catalog/internal/service"
	"github.com/bigkaa/goartstore/edms-catalog/internal/storage/thumbstore"
)

// Content — компоненты работы с содержимым EDMS и кэшем миниатюр.
type Content struct {
	Client     *edms.Client
	Sessions   *edms.SessionManager
	Retriever  *service.ContentRetriever
	Thumbnails *service.ThumbnailCache
}

// NewContent создаёт SOAP-клиент, менеджер сессии, ContentRetriever и кэш миниатюр.
// Сеть не используется: вход в EDMS выполняется при первом обращении.
func NewContent(cfg *config.Config, logger *slog.Logger) (*Content, error) {
	client, err := edms.New(edms.Options{
		SvcURL:     cfg.EDMSURL,
		ObjURL:     cfg.EDMSObjURL,
		CACertPath: cfg.EDMSCACertPath,
		Timeout:    cfg.EDMSTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("создание клиента EDMS: %w", err)
	}

	sessions := edms.NewSessionManager(client, edms.Credentials{
		Network:      cfg.EDMSNetwork,
		LoginContext: cfg.EDMSLoginContext,
		Username:     cfg.EDMSUser,
		Password:     cfg.EDMSPassword,
	}, logger)

	retriever := service.NewContentRetriever(sessions, client, cfg.EDMSLibrary, cfg.EDMSChunkSize, logger)

	store, err := thumbstore.New(cfg.ThumbnailDir)
	if err != nil {
		return nil, fmt.Errorf("инициализация кэша миниатюр: %w", err)
	}
	thumbnails := service.NewThumbnailCache(store, retriever, imaging.Options{
		MaxSide:   cfg.ThumbnailSize,
		Quality:   cfg.ThumbnailQuality,
		MaxPixels: cfg.ThumbnailMaxPixels,
	}, logger)

	logger.Info("Клиент EDMS инициализирован",
		slog.String("svc_url", cfg.EDMSURL),
		slog.String("obj_url", cfg.EDMSObjURL),
		slog.String("library", cfg.EDMSLibrary),
		slog.String("thumbnail_dir", store.Dir()),
	)

	return &Content{
		Client:     client,
		Sessions:   sessions,
		Retriever:  retriever,
		Thumbnails: thumbnails,
	}, nil
}

// Registry — подключение к реестру и сервис реестра.
type Registry struct {
	Pool    *pgxpool.Pool
	Service *service.RegistryService
}

// NewRegistry подключается к реестру PostgreSQL и создаёт RegistryService.
// Пул закрывается через Close.
func NewRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	repo := repository.NewDocumentRepository(pool, repository.Scope{
		MinDocNumber: cfg.RegistryMinDocNumber,
		FormCode:     cfg.RegistryFormCode,
	})

	return &Registry{
		Pool:    pool,
		Service: service.NewRegistryService(repo, cfg.PageSize, cfg.DBQueryTimeout, logger),
	}, nil
}

// Close закрывает пул подключений к реестру.
func (r *Registry) Close() {
	r.Pool.Close()
}
