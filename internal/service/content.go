// content.go — получение полного содержимого документа из EDMS.
// Протокол: поиск документа → открытие потока → чтение фрагментов →
// освобождение потока, затем содержимого.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/edms-catalog/internal/edms"
)

// Ошибки получения содержимого.
var (
	// ErrContentNotFound — EDMS не нашёл документ или не выдал дескриптор содержимого.
	ErrContentNotFound = errors.New("содержимое документа не найдено в EDMS")
	// ErrStreamOpen — не удалось открыть поток чтения при выделенном дескрипторе.
	ErrStreamOpen = errors.New("не удалось открыть поток чтения EDMS")
)

// releaseTimeout — бюджет одного ReleaseObject после завершения операции.
const releaseTimeout = 10 * time.Second

// Prometheus-метрики получения содержимого.
var (
	contentFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ec_content_fetch_total",
		Help: "Общее количество получений содержимого из EDMS (по результату).",
	}, []string{"result"})

	contentFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ec_content_fetch_duration_seconds",
		Help:    "Длительность получения содержимого (от входа до освобождения дескрипторов).",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	contentBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ec_content_bytes_total",
		Help: "Общее количество байт, прочитанных из потоков EDMS.",
	})

	contentChunks = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ec_content_chunks",
		Help:    "Количество фрагментов ReadStream на один документ.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	releaseFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ec_edms_release_failures_total",
		Help: "Количество неуспешных ReleaseObject (ошибки игнорируются).",
	})
)

// SessionProvider — источник session token EDMS. Реализуется *edms.SessionManager.
type SessionProvider interface {
	EnsureSession(ctx context.Context) (string, error)
}

// DocumentProtocol — операции EDMS для чтения содержимого. Реализуется *edms.Client.
type DocumentProtocol interface {
	GetDocument(ctx context.Context, dst, library string, docNumber int64) (*edms.DocumentReply, error)
	GetReadStream(ctx context.Context, dst, contentID string) (*edms.StreamReply, error)
	ReadStream(ctx context.Context, streamID string, n int) (*edms.ChunkReply, error)
	ReleaseObject(ctx context.Context, objectID string) error
}

// ContentRetriever — получение содержимого документа по номеру.
// Локально ничего не кэширует.
type ContentRetriever struct {
	sessions  SessionProvider
	protocol  DocumentProtocol
	library   string
	chunkSize int
	logger    *slog.Logger
}

// NewContentRetriever создаёт ContentRetriever.
// library — значение критерия %TARGET_LIBRARY, chunkSize — размер ReadStream.
func NewContentRetriever(
	sessions SessionProvider,
	protocol DocumentProtocol,
	library string,
	chunkSize int,
	logger *slog.Logger,
) *ContentRetriever {
	return &ContentRetriever{
		sessions:  sessions,
		protocol:  protocol,
		library:   library,
		chunkSize: chunkSize,
		logger:    logger.With(slog.String("component", "content_retriever")),
	}
}

// Fetch возвращает содержимое документа. Результат может быть пустым,
// если поток завершился без данных.
//
// Ошибки: edms.ErrAuth (нет сессии), ErrContentNotFound (документ не найден),
// ErrStreamOpen (поток не открыт), ошибки транспорта EDMS, ошибка ctx.
// Каждый выделенный дескриптор освобождается ровно один раз:
// сначала поток, затем содержимое.
func (r *ContentRetriever) Fetch(ctx context.Context, docID int64) (data []byte, err error) {
	start := time.Now()
	defer func() {
		contentFetchDuration.Observe(time.Since(start).Seconds())
		contentFetchTotal.WithLabelValues(fetchResult(err)).Inc()
	}()

	dst, err := r.sessions.EnsureSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("сессия EDMS для документа %d: %w", docID, err)
	}

	doc, err := r.protocol.GetDocument(ctx, dst, r.library, docID)
	if err != nil {
		return nil, fmt.Errorf("поиск документа %d в EDMS: %w", docID, err)
	}
	if doc.ResultCode != edms.ResultSuccess || doc.ContentID == "" {
		return nil, fmt.Errorf("%w: документ %d, код результата %d", ErrContentNotFound, docID, doc.ResultCode)
	}
	defer r.release(ctx, docID, "content", doc.ContentID)

	stream, err := r.protocol.GetReadStream(ctx, dst, doc.ContentID)
	if err != nil {
		return nil, fmt.Errorf("%w: документ %d: %w", ErrStreamOpen, docID, err)
	}
	if stream.StreamID != "" {
		defer r.release(ctx, docID, "stream", stream.StreamID)
	}
	if stream.ResultCode != edms.ResultSuccess || stream.StreamID == "" {
		return nil, fmt.Errorf("%w: документ %d, код результата %d", ErrStreamOpen, docID, stream.ResultCode)
	}

	var buf bytes.Buffer
	chunks := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := r.protocol.ReadStream(ctx, stream.StreamID, r.chunkSize)
		if err != nil {
			return nil, fmt.Errorf("чтение потока документа %d (фрагмент %d): %w", docID, chunks+1, err)
		}
		if chunk.ResultCode != edms.ResultSuccess || len(chunk.Data) == 0 {
			break
		}
		buf.Write(chunk.Data)
		chunks++
	}

	contentChunks.Observe(float64(chunks))
	contentBytesTotal.Add(float64(buf.Len()))

	r.logger.Debug("Содержимое документа получено",
		slog.Int64("doc_id", docID),
		slog.Int("chunks", chunks),
		slog.Int("bytes", buf.Len()),
	)
	return buf.Bytes(), nil
}

// release освобождает дескриптор EDMS. Ошибка только логируется.
// Отмена ctx вызывающего не должна мешать освобождению.
func (r *ContentRetriever) release(ctx context.Context, docID int64, kind, objectID string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := r.protocol.ReleaseObject(releaseCtx, objectID); err != nil {
		releaseFailuresTotal.Inc()
		r.logger.Warn("Не удалось освободить объект EDMS",
			slog.Int64("doc_id", docID),
			slog.String("kind", kind),
			slog.String("object_id", objectID),
			slog.String("error", err.Error()),
		)
	}
}

// fetchResult — лейбл результата для метрик.
func fetchResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, edms.ErrAuth):
		return "auth_error"
	case errors.Is(err, ErrContentNotFound):
		return "not_found"
	case errors.Is(err, ErrStreamOpen):
		return "stream_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport_error"
	}
}
