// thumbnail.go — дисковый кэш миниатюр документов.
// Попадание — только проверка файла. Промах — получение содержимого,
// построение JPEG и атомарная запись. Отрицательные результаты не кэшируются.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/goartstore/edms-catalog/internal/imaging"
	"github.com/bigkaa/goartstore/edms-catalog/internal/storage/thumbstore"
)

// CacheRefPrefix — префикс ссылки на миниатюру, обслуживается маршрутом /cache/{filename}.
const CacheRefPrefix = "cache/"

// ErrThumbnailUnavailable — миниатюру не удалось получить или построить.
var ErrThumbnailUnavailable = errors.New("миниатюра недоступна")

// Prometheus-метрики кэша миниатюр.
var (
	thumbnailHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ec_thumbnail_cache_hits_total",
		Help: "Общее количество попаданий в кэш миниатюр.",
	})
	thumbnailMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ec_thumbnail_cache_misses_total",
		Help: "Общее количество промахов кэша миниатюр.",
	})
	thumbnailGenerateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ec_thumbnail_generate_total",
		Help: "Построения миниатюр (по результату).",
	}, []string{"result"})
	thumbnailGenerateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ec_thumbnail_generate_duration_seconds",
		Help:    "Длительность построения миниатюры, включая получение содержимого.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
	thumbnailClearsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ec_thumbnail_cache_clears_total",
		Help: "Количество очисток кэша миниатюр.",
	})
)

// ContentFetcher — источник содержимого документа. Реализуется *ContentRetriever.
type ContentFetcher interface {
	Fetch(ctx context.Context, docID int64) ([]byte, error)
}

// ThumbnailCache — кэш миниатюр по doc_id.
// Конкурентные промахи одного doc_id выполняют одно построение (singleflight).
// Clear не атомарен относительно идущих построений: запись, завершившаяся
// после очистки, попадает в новую пустую директорию.
type ThumbnailCache struct {
	store   *thumbstore.Store
	fetcher ContentFetcher
	opts    imaging.Options
	group   singleflight.Group
	logger  *slog.Logger
}

// NewThumbnailCache создаёт кэш миниатюр.
func NewThumbnailCache(
	store *thumbstore.Store,
	fetcher ContentFetcher,
	opts imaging.Options,
	logger *slog.Logger,
) *ThumbnailCache {
	return &ThumbnailCache{
		store:   store,
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.With(slog.String("component", "thumbnail_cache")),
	}
}

// GetOrCreate возвращает ссылку cache/{doc_id}.jpg, строя миниатюру при промахе.
// При неудаче — ErrThumbnailUnavailable, файл в кэше не создаётся.
func (c *ThumbnailCache) GetOrCreate(ctx context.Context, docID int64) (string, error) {
	name := thumbstore.FileName(docID)
	if c.store.Exists(name) {
		thumbnailHitsTotal.Inc()
		return CacheRefPrefix + name, nil
	}
	thumbnailMissesTotal.Inc()

	// Построение разделяется между ожидающими, поэтому не отменяется
	// вместе с первым вызывающим. Вызовы EDMS ограничены таймаутом клиента.
	flightCtx := context.WithoutCancel(ctx)
	_, err, _ := c.group.Do(name, func() (any, error) {
		// Double-check: другое построение могло завершиться до входа в группу
		if c.store.Exists(name) {
			return nil, nil
		}
		return nil, c.generate(flightCtx, docID, name)
	})
	if err != nil {
		return "", err
	}
	return CacheRefPrefix + name, nil
}

// generate получает содержимое и записывает миниатюру.
func (c *ThumbnailCache) generate(ctx context.Context, docID int64, name string) error {
	start := time.Now()
	defer func() {
		thumbnailGenerateDuration.Observe(time.Since(start).Seconds())
	}()

	data, err := c.fetcher.Fetch(ctx, docID)
	if err != nil {
		thumbnailGenerateTotal.WithLabelValues("fetch_error").Inc()
		c.logger.Warn("Содержимое для миниатюры не получено",
			slog.Int64("doc_id", docID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: документ %d: %w", ErrThumbnailUnavailable, docID, err)
	}
	if len(data) == 0 {
		thumbnailGenerateTotal.WithLabelValues("empty").Inc()
		c.logger.Warn("EDMS вернул пустое содержимое", slog.Int64("doc_id", docID))
		return fmt.Errorf("%w: документ %d: пустое содержимое", ErrThumbnailUnavailable, docID)
	}

	err = c.store.Save(name, func(w io.Writer) error {
		return imaging.Thumbnail(w, data, c.opts)
	})
	if err != nil {
		result := "store_error"
		if errors.Is(err, imaging.ErrDecode) || errors.Is(err, imaging.ErrEncode) {
			result = "decode_error"
		}
		thumbnailGenerateTotal.WithLabelValues(result).Inc()
		c.logger.Warn("Миниатюра не построена",
			slog.Int64("doc_id", docID),
			slog.Int("bytes", len(data)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: документ %d: %w", ErrThumbnailUnavailable, docID, err)
	}

	thumbnailGenerateTotal.WithLabelValues("ok").Inc()
	c.logger.Debug("Миниатюра построена",
		slog.Int64("doc_id", docID),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// Open открывает файл кэша по имени для отдачи клиенту.
func (c *ThumbnailCache) Open(name string) (*os.File, error) {
	return c.store.Open(name)
}

// Clear удаляет все миниатюры и пересоздаёт пустую директорию кэша.
func (c *ThumbnailCache) Clear() error {
	if err := c.store.Reset(); err != nil {
		c.logger.Error("Ошибка очистки кэша миниатюр", slog.String("error", err.Error()))
		return fmt.Errorf("очистка кэша миниатюр: %w", err)
	}
	thumbnailClearsTotal.Inc()
	c.logger.Info("Кэш миниатюр очищен", slog.String("dir", c.store.Dir()))
	return nil
}
