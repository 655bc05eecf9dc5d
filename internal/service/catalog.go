// catalog.go — список документов каталога с миниатюрами.
package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/edms-catalog/internal/domain/model"
)

// ThumbnailProvider — источник ссылок на миниатюры. Реализуется *ThumbnailCache.
type ThumbnailProvider interface {
	GetOrCreate(ctx context.Context, docID int64) (string, error)
}

// DocumentSearcher — поиск по реестру. Реализуется *RegistryService.
type DocumentSearcher interface {
	Search(ctx context.Context, q model.SearchQuery) *SearchResult
	PageSize() int
}

// CatalogPage — страница каталога.
type CatalogPage struct {
	Documents  []*model.DocumentRecord
	Page       int
	PageSize   int
	TotalPages int
	Total      int
}

// CatalogService — компоновка реестра и кэша миниатюр.
type CatalogService struct {
	registry       DocumentSearcher
	thumbnails     ThumbnailProvider
	placeholderURL string
	workers        int
	logger         *slog.Logger
}

// NewCatalogService создаёт сервис каталога.
// workers — число параллельных построений миниатюр на страницу.
func NewCatalogService(
	registry DocumentSearcher,
	thumbnails ThumbnailProvider,
	placeholderURL string,
	workers int,
	logger *slog.Logger,
) *CatalogService {
	if workers < 1 {
		workers = 1
	}
	return &CatalogService{
		registry:       registry,
		thumbnails:     thumbnails,
		placeholderURL: placeholderURL,
		workers:        workers,
		logger:         logger.With(slog.String("component", "catalog_service")),
	}
}

// ListDocuments возвращает страницу каталога. Каждой записи назначается
// ссылка на миниатюру или URL заглушки: недоступная миниатюра не
// прерывает формирование страницы.
func (s *CatalogService) ListDocuments(ctx context.Context, q model.SearchQuery) *CatalogPage {
	q = q.Normalize(s.registry.PageSize())
	result := s.registry.Search(ctx, q)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, doc := range result.Documents {
		g.Go(func() error {
			ref, err := s.thumbnails.GetOrCreate(gctx, doc.DocID)
			if err != nil {
				ref = s.placeholderURL
			}
			doc.ThumbnailRef = &ref
			return nil
		})
	}
	_ = g.Wait()

	missing := 0
	for _, doc := range result.Documents {
		if *doc.ThumbnailRef == s.placeholderURL {
			missing++
		}
	}
	if missing > 0 {
		s.logger.Debug("Страница каталога содержит заглушки миниатюр",
			slog.Int("page", q.Page),
			slog.Int("missing", missing),
		)
	}

	return &CatalogPage{
		Documents:  result.Documents,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: model.TotalPages(result.Total, q.PageSize),
		Total:      result.Total,
	}
}
