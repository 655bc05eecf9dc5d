// registry.go — клиент реестра документов: поиск с пагинацией и
// дописывание раздела VIPs в аннотацию.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/edms-catalog/internal/domain/model"
	"github.com/bigkaa/goartstore/edms-catalog/internal/repository"
)

// Ошибки реестра.
var (
	// ErrDocumentNotFound — документа нет в реестре.
	ErrDocumentNotFound = errors.New("документ не найден в реестре")
	// ErrAnnotationConflict — аннотация изменялась конкурентно на всех попытках.
	ErrAnnotationConflict = errors.New("аннотация изменена конкурентно, обновление не выполнено")
)

// annotationAttempts — число попыток чтение→условная запись аннотации.
const annotationAttempts = 3

// AnnotationUpdatedMessage — сообщение об успешном обновлении аннотации.
const AnnotationUpdatedMessage = "Abstract updated successfully."

// Prometheus-метрики реестра.
var (
	searchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ec_registry_search_total",
		Help: "Общее количество поисковых запросов к реестру (по результату).",
	}, []string{"result"})
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ec_registry_search_duration_seconds",
		Help:    "Длительность поисковых запросов к реестру.",
		Buckets: prometheus.DefBuckets,
	})
	annotationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ec_annotation_updates_total",
		Help: "Обновления аннотаций (по результату).",
	}, []string{"result"})
)

// SearchResult — страница документов и общее количество совпадений.
type SearchResult struct {
	Documents []*model.DocumentRecord
	Total     int
}

// RegistryService — поиск документов и обновление аннотаций.
type RegistryService struct {
	repo         repository.DocumentRepository
	pageSize     int
	queryTimeout time.Duration
	logger       *slog.Logger
}

// NewRegistryService создаёт сервис реестра.
// pageSize — размер страницы по умолчанию, queryTimeout — бюджет одного запроса.
func NewRegistryService(
	repo repository.DocumentRepository,
	pageSize int,
	queryTimeout time.Duration,
	logger *slog.Logger,
) *RegistryService {
	return &RegistryService{
		repo:         repo,
		pageSize:     pageSize,
		queryTimeout: queryTimeout,
		logger:       logger.With(slog.String("component", "registry_service")),
	}
}

// PageSize возвращает размер страницы по умолчанию.
func (s *RegistryService) PageSize() int {
	return s.pageSize
}

// Search возвращает страницу документов по убыванию номера.
// Ошибка реестра не возвращается: результат — пустая страница с total=0,
// причина фиксируется в логе и метрике.
func (s *RegistryService) Search(ctx context.Context, q model.SearchQuery) *SearchResult {
	q = q.Normalize(s.pageSize)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	docs, total, err := s.repo.Search(ctx, repository.SearchParams{
		Terms:    q.Terms,
		DateFrom: q.DateFrom,
		DateTo:   q.DateTo,
		Limit:    q.PageSize,
		Offset:   q.Offset(),
	})
	searchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		searchTotal.WithLabelValues("db_error").Inc()
		s.logger.Error("Поиск в реестре не выполнен, возвращается пустая страница",
			slog.Int("page", q.Page),
			slog.Int("terms", len(q.Terms)),
			slog.String("error", err.Error()),
		)
		return &SearchResult{Documents: []*model.DocumentRecord{}}
	}
	searchTotal.WithLabelValues("ok").Inc()

	s.logger.Debug("Поиск выполнен",
		slog.Int("page", q.Page),
		slog.Int("total", total),
		slog.Int("returned", len(docs)),
		slog.Duration("duration", time.Since(start)),
	)
	return &SearchResult{Documents: docs, Total: total}
}

// UpdateAnnotation дописывает к аннотации документа раздел "VIPs : ...".
// Запись условная: если аннотация изменилась после чтения, цикл повторяется.
func (s *RegistryService) UpdateAnnotation(ctx context.Context, docID int64, names []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	for attempt := 1; attempt <= annotationAttempts; attempt++ {
		current, err := s.repo.GetAbstract(ctx, docID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				annotationTotal.WithLabelValues("not_found").Inc()
				return "", fmt.Errorf("%w: документ %d", ErrDocumentNotFound, docID)
			}
			annotationTotal.WithLabelValues("db_error").Inc()
			return "", fmt.Errorf("чтение аннотации документа %d: %w", docID, err)
		}

		var text string
		if current != nil {
			text = *current
		}
		updated := model.AppendVIPs(text, names)

		err = s.repo.CompareAndSetAbstract(ctx, docID, current, updated)
		if err == nil {
			annotationTotal.WithLabelValues("ok").Inc()
			s.logger.Info("Аннотация обновлена",
				slog.Int64("doc_id", docID),
				slog.Int("names", len(names)),
				slog.Int("attempt", attempt),
			)
			return AnnotationUpdatedMessage, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			annotationTotal.WithLabelValues("db_error").Inc()
			return "", fmt.Errorf("запись аннотации документа %d: %w", docID, err)
		}

		s.logger.Warn("Конкурентное изменение аннотации, повтор",
			slog.Int64("doc_id", docID),
			slog.Int("attempt", attempt),
		)
	}

	annotationTotal.WithLabelValues("conflict").Inc()
	return "", fmt.Errorf("%w: документ %d", ErrAnnotationConflict, docID)
}
