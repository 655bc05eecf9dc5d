// handler.go — основной обработчик API EDMS Catalog.
// Маршруты: список документов, изображение из EDMS, файлы кэша миниатюр,
// очистка кэша, дописывание VIPs в аннотацию. Health и метрики — через HealthHandler.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/goartstore/edms-catalog/internal/api/errors"
	"github.com/bigkaa/goartstore/edms-catalog/internal/domain/model"
	"github.com/bigkaa/goartstore/edms-catalog/internal/edms"
	"github.com/bigkaa/goartstore/edms-catalog/internal/service"
	"github.com/bigkaa/goartstore/edms-catalog/internal/storage/thumbstore"
)

// Сообщения API, на которые опирается веб-интерфейс каталога.
const (
	msgImageNotFound = "Image not found in EDMS."
	msgCacheCleared  = "Thumbnail cache cleared successfully."
	msgInvalidData   = "Invalid data provided."
)

// CatalogLister — формирование страницы каталога. Реализуется *service.CatalogService.
type CatalogLister interface {
	ListDocuments(ctx context.Context, q model.SearchQuery) *service.CatalogPage
}

// AnnotationUpdater — обновление аннотации. Реализуется *service.RegistryService.
type AnnotationUpdater interface {
	UpdateAnnotation(ctx context.Context, docID int64, names []string) (string, error)
}

// ContentFetcher — полное содержимое документа. Реализуется *service.ContentRetriever.
type ContentFetcher interface {
	Fetch(ctx context.Context, docID int64) ([]byte, error)
}

// ThumbnailFiles — файлы кэша миниатюр. Реализуется *service.ThumbnailCache.
type ThumbnailFiles interface {
	Open(name string) (*os.File, error)
	Clear() error
}

// APIHandler — основной обработчик API EDMS Catalog.
type APIHandler struct {
	health     *HealthHandler
	catalog    CatalogLister
	registry   AnnotationUpdater
	content    ContentFetcher
	thumbnails ThumbnailFiles
	logger     *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	catalog CatalogLister,
	registry AnnotationUpdater,
	content ContentFetcher,
	thumbnails ThumbnailFiles,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:     health,
		catalog:    catalog,
		registry:   registry,
		content:    content,
		thumbnails: thumbnails,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// RegisterRoutes регистрирует все маршруты API в роутере chi.
func (h *APIHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Get("/api/documents", h.ListDocuments)
	r.Get("/api/image/{doc_id}", h.GetImage)
	r.Get("/cache/{filename}", h.GetCachedThumbnail)
	r.Post("/api/clear_cache", h.ClearCache)
	r.Post("/api/update_abstract", h.UpdateAbstract)
}

// --- Список документов ---

// documentItem — запись каталога в ответе.
type documentItem struct {
	DocID        int64  `json:"doc_id"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	Date         string `json:"date"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// documentsResponse — страница каталога.
type documentsResponse struct {
	Documents      []documentItem `json:"documents"`
	Page           int            `json:"page"`
	TotalPages     int            `json:"total_pages"`
	TotalDocuments int            `json:"total_documents"`
}

// listDocumentsParams — параметры запроса GET /api/documents.
type listDocumentsParams struct {
	Page     *int        `json:"page,omitempty"`
	PageSize *int        `json:"page_size,omitempty"`
	Search   *string     `json:"search,omitempty"`
	DateFrom *types.Date `json:"date_from,omitempty"`
	DateTo   *types.Date `json:"date_to,omitempty"`
}

// ListDocuments — GET /api/documents.
func (h *APIHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	var params listDocumentsParams
	query := r.URL.Query()

	if err := runtime.BindQueryParameter("form", true, false, "page", query, &params.Page); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр page: %v", err))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "page_size", query, &params.PageSize); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр page_size: %v", err))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "search", query, &params.Search); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр search: %v", err))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "date_from", query, &params.DateFrom); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр date_from: %v", err))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "date_to", query, &params.DateTo); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр date_to: %v", err))
		return
	}

	q, err := searchQueryFromParams(params)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	page := h.catalog.ListDocuments(r.Context(), q)

	resp := documentsResponse{
		Documents:      make([]documentItem, 0, len(page.Documents)),
		Page:           page.Page,
		TotalPages:     page.TotalPages,
		TotalDocuments: page.Total,
	}
	for _, doc := range page.Documents {
		item := documentItem{
			DocID:  doc.DocID,
			Title:  doc.Title(),
			Author: doc.AuthorName(),
			Date:   doc.Date(),
		}
		if doc.ThumbnailRef != nil {
			item.ThumbnailURL = *doc.ThumbnailRef
		}
		resp.Documents = append(resp.Documents, item)
	}

	writeJSON(w, http.StatusOK, resp)
}

// maxPageSize — верхняя граница page_size из запроса.
const maxPageSize = 100

// searchQueryFromParams преобразует параметры запроса в model.SearchQuery.
// date_to включает весь указанный день.
func searchQueryFromParams(p listDocumentsParams) (model.SearchQuery, error) {
	var q model.SearchQuery

	if p.Page != nil {
		q.Page = *p.Page
	}
	if p.PageSize != nil {
		if *p.PageSize < 1 || *p.PageSize > maxPageSize {
			return q, fmt.Errorf("page_size должен быть в диапазоне 1-%d", maxPageSize)
		}
		q.PageSize = *p.PageSize
	}
	if p.Search != nil {
		q.Terms = model.ParseTerms(*p.Search)
	}
	if p.DateFrom != nil {
		from := p.DateFrom.Time
		q.DateFrom = &from
	}
	if p.DateTo != nil {
		to := p.DateTo.AddDate(0, 0, 1).Add(-time.Microsecond)
		q.DateTo = &to
	}
	if q.DateFrom != nil && q.DateTo != nil && q.DateFrom.After(*q.DateTo) {
		return q, errors.New("date_from не может быть позже date_to")
	}

	return q, nil
}

// --- Изображение документа ---

// GetImage — GET /api/image/{doc_id}. Полное содержимое документа из EDMS.
func (h *APIHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	var docID int64
	err := runtime.BindStyledParameterWithOptions("simple", "doc_id", chi.URLParam(r, "doc_id"), &docID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр doc_id: %v", err))
		return
	}

	data, err := h.content.Fetch(r.Context(), docID)
	switch {
	case err == nil && len(data) > 0:
	case err == nil, errors.Is(err, service.ErrContentNotFound), errors.Is(err, edms.ErrAuth):
		h.logger.Warn("Изображение не получено из EDMS",
			slog.Int64("doc_id", docID),
			slog.Any("error", err),
		)
		apierrors.NotFound(w, msgImageNotFound)
		return
	default:
		h.logger.Error("Ошибка получения изображения из EDMS",
			slog.Int64("doc_id", docID),
			slog.String("error", err.Error()),
		)
		apierrors.EDMSUnavailable(w, "Ошибка получения изображения из EDMS")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// --- Кэш миниатюр ---

// GetCachedThumbnail — GET /cache/{filename}. Файл миниатюры из кэша.
func (h *APIHandler) GetCachedThumbnail(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")

	f, err := h.thumbnails.Open(name)
	if err != nil {
		if errors.Is(err, thumbstore.ErrNotFound) || errors.Is(err, thumbstore.ErrInvalidName) {
			apierrors.NotFound(w, "Миниатюра не найдена")
			return
		}
		h.logger.Error("Ошибка чтения кэша миниатюр",
			slog.String("filename", name),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка чтения кэша миниатюр")
		return
	}
	defer f.Close()

	var modTime time.Time
	if info, statErr := f.Stat(); statErr == nil {
		modTime = info.ModTime()
	}

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeContent(w, r, name, modTime, f)
}

// messageResponse — ответ с текстовым сообщением.
type messageResponse struct {
	Message string `json:"message"`
}

// ClearCache — POST /api/clear_cache.
func (h *APIHandler) ClearCache(w http.ResponseWriter, _ *http.Request) {
	if err := h.thumbnails.Clear(); err != nil {
		apierrors.InternalError(w, fmt.Sprintf("Failed to clear cache: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgCacheCleared})
}

// --- Аннотация ---

// updateAbstractRequest — тело POST /api/update_abstract.
// doc_id принимается числом или строкой с числом.
type updateAbstractRequest struct {
	DocID json.Number `json:"doc_id"`
	Names *[]string   `json:"names"`
}

// UpdateAbstract — POST /api/update_abstract. Дописывает VIPs в аннотацию.
func (h *APIHandler) UpdateAbstract(w http.ResponseWriter, r *http.Request) {
	var req updateAbstractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, msgInvalidData)
		return
	}
	if req.DocID == "" || req.Names == nil {
		apierrors.ValidationError(w, msgInvalidData)
		return
	}
	docID, err := req.DocID.Int64()
	if err != nil || docID <= 0 || len(*req.Names) == 0 {
		apierrors.ValidationError(w, msgInvalidData)
		return
	}

	msg, err := h.registry.UpdateAnnotation(r.Context(), docID, *req.Names)
	if err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			apierrors.NotFound(w, fmt.Sprintf("Document with ID %d not found.", docID))
			return
		}
		h.logger.Error("Ошибка обновления аннотации",
			slog.Int64("doc_id", docID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, fmt.Sprintf("Database error: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
