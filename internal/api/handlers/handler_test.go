package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/edms-catalog/internal/domain/model"
	"github.com/bigkaa/goartstore/edms-catalog/internal/edms"
	"github.com/bigkaa/goartstore/edms-catalog/internal/service"
	"github.com/bigkaa/goartstore/edms-catalog/internal/storage/thumbstore"
)

// --- Моки ---

type mockCatalog struct {
	listFn func(ctx context.Context, q model.SearchQuery) *service.CatalogPage
}

func (m *mockCatalog) ListDocuments(ctx context.Context, q model.SearchQuery) *service.CatalogPage {
	return m.listFn(ctx, q)
}

type mockAnnotations struct {
	updateFn func(ctx context.Context, docID int64, names []string) (string, error)
}

func (m *mockAnnotations) UpdateAnnotation(ctx context.Context, docID int64, names []string) (string, error) {
	return m.updateFn(ctx, docID, names)
}

type mockContent struct {
	fetchFn func(ctx context.Context, docID int64) ([]byte, error)
}

func (m *mockContent) Fetch(ctx context.Context, docID int64) ([]byte, error) {
	return m.fetchFn(ctx, docID)
}

type mockThumbnails struct {
	openFn  func(name string) (*os.File, error)
	clearFn func() error
}

func (m *mockThumbnails) Open(name string) (*os.File, error) { return m.openFn(name) }
func (m *mockThumbnails) Clear() error                       { return m.clearFn() }

// --- Хелперы ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRouter собирает роутер с обработчиками; nil-зависимости
// заменяются моками, падающими при вызове.
func newTestRouter(t *testing.T, catalog CatalogLister, registry AnnotationUpdater, content ContentFetcher, thumbs ThumbnailFiles) http.Handler {
	t.Helper()
	if catalog == nil {
		catalog = &mockCatalog{listFn: func(context.Context, model.SearchQuery) *service.CatalogPage {
			t.Error("ListDocuments не должен вызываться")
			return &service.CatalogPage{}
		}}
	}
	if registry == nil {
		registry = &mockAnnotations{updateFn: func(context.Context, int64, []string) (string, error) {
			t.Error("UpdateAnnotation не должен вызываться")
			return "", nil
		}}
	}
	if content == nil {
		content = &mockContent{fetchFn: func(context.Context, int64) ([]byte, error) {
			t.Error("Fetch не должен вызываться")
			return nil, nil
		}}
	}
	if thumbs == nil {
		thumbs = &mockThumbnails{
			openFn: func(string) (*os.File, error) {
				t.Error("Open не должен вызываться")
				return nil, nil
			},
			clearFn: func() error { t.Error("Clear не должен вызываться"); return nil },
		}
	}

	h := NewAPIHandler(NewHealthHandler(nil, nil), catalog, registry, content, thumbs, testLogger())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func strPtr(s string) *string { return &s }

func decodeError(t *testing.T, body io.Reader) (code, message string) {
	t.Helper()
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("ошибка декодирования ответа с ошибкой: %v", err)
	}
	return resp.Error.Code, resp.Error.Message
}

// --- GET /api/documents ---

func TestListDocuments_Success(t *testing.T) {
	created := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	placeholder := "https://placehold.co/100x100"
	var gotQuery model.SearchQuery

	catalog := &mockCatalog{listFn: func(_ context.Context, q model.SearchQuery) *service.CatalogPage {
		gotQuery = q
		return &service.CatalogPage{
			Documents: []*model.DocumentRecord{
				{DocID: 19661460, Abstract: strPtr("Договор поставки"), Author: strPtr("Иванов"), CreatedAt: &created, ThumbnailRef: strPtr("cache/19661460.jpg")},
				{DocID: 19661459, ThumbnailRef: &placeholder},
			},
			Page:       2,
			PageSize:   10,
			TotalPages: 3,
			Total:      22,
		}
	}}
	router := newTestRouter(t, catalog, nil, nil, nil)

	query := url.Values{
		"page":      {"2"},
		"search":    {"Договор поставки"},
		"date_from": {"2024-01-01"},
		"date_to":   {"2024-03-31"},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/documents?"+query.Encode(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200; тело: %s", rec.Code, rec.Body.String())
	}

	if gotQuery.Page != 2 {
		t.Errorf("Page = %d, ожидается 2", gotQuery.Page)
	}
	if strings.Join(gotQuery.Terms, ",") != "договор,поставки" {
		t.Errorf("Terms = %v", gotQuery.Terms)
	}
	if gotQuery.DateFrom == nil || !gotQuery.DateFrom.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DateFrom = %v", gotQuery.DateFrom)
	}
	if gotQuery.DateTo == nil || gotQuery.DateTo.Before(time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)) {
		t.Errorf("DateTo = %v, ожидается конец дня 2024-03-31", gotQuery.DateTo)
	}

	var resp documentsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("ошибка декодирования: %v", err)
	}
	if resp.Page != 2 || resp.TotalPages != 3 || resp.TotalDocuments != 22 {
		t.Errorf("пагинация = %+v", resp)
	}
	if len(resp.Documents) != 2 {
		t.Fatalf("документов = %d, ожидается 2", len(resp.Documents))
	}

	first := resp.Documents[0]
	if first.DocID != 19661460 || first.Title != "Договор поставки" || first.Author != "Иванов" ||
		first.Date != "2024-03-15" || first.ThumbnailURL != "cache/19661460.jpg" {
		t.Errorf("первая запись = %+v", first)
	}

	second := resp.Documents[1]
	if second.Title != model.DefaultTitle || second.Author != model.DefaultAuthor ||
		second.Date != model.DefaultDate || second.ThumbnailURL != placeholder {
		t.Errorf("вторая запись = %+v, ожидаются значения по умолчанию", second)
	}
}

func TestListDocuments_EmptyResult(t *testing.T) {
	catalog := &mockCatalog{listFn: func(_ context.Context, q model.SearchQuery) *service.CatalogPage {
		if q.Terms != nil || q.DateFrom != nil || q.DateTo != nil {
			t.Errorf("без параметров фильтры должны отсутствовать: %+v", q)
		}
		return &service.CatalogPage{Documents: []*model.DocumentRecord{}, Page: 1, PageSize: 10, TotalPages: 1}
	}}
	router := newTestRouter(t, catalog, nil, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"documents":[]`) {
		t.Errorf("тело = %s, ожидается пустой массив documents", body)
	}
	if !strings.Contains(body, `"total_pages":1`) {
		t.Errorf("тело = %s, ожидается total_pages=1", body)
	}
}

func TestListDocuments_InvalidParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"page не число", "page=abc"},
		{"page_size вне диапазона", "page_size=1000"},
		{"некорректная date_from", "date_from=15.03.2024"},
		{"некорректная date_to", "date_to=2024-13-01"},
		{"date_from позже date_to", "date_from=2024-05-01&date_to=2024-04-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, nil, nil, nil, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents?"+tt.query, nil))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("статус = %d, ожидается 400", rec.Code)
			}
			if code, _ := decodeError(t, rec.Body); code != "VALIDATION_ERROR" {
				t.Errorf("code = %q, ожидается VALIDATION_ERROR", code)
			}
		})
	}
}

// --- GET /api/image/{doc_id} ---

func TestGetImage_Success(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	content := &mockContent{fetchFn: func(_ context.Context, docID int64) ([]byte, error) {
		if docID != 19661460 {
			t.Errorf("docID = %d, ожидается 19661460", docID)
		}
		return png, nil
	}}
	router := newTestRouter(t, nil, nil, content, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/image/19661460", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, ожидается image/png", ct)
	}
	if rec.Body.String() != string(png) {
		t.Error("тело ответа не совпадает с содержимым документа")
	}
}

func TestGetImage_Errors(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		err        error
		wantStatus int
		wantCode   string
	}{
		{"документ не найден", nil, fmt.Errorf("документ 1: %w", service.ErrContentNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"нет сессии", nil, fmt.Errorf("вход: %w", edms.ErrAuth), http.StatusNotFound, "NOT_FOUND"},
		{"пустое содержимое", []byte{}, nil, http.StatusNotFound, "NOT_FOUND"},
		{"ошибка транспорта", nil, fmt.Errorf("ReadStream: %w", edms.ErrTransport), http.StatusBadGateway, "EDMS_UNAVAILABLE"},
		{"поток не открыт", nil, service.ErrStreamOpen, http.StatusBadGateway, "EDMS_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := &mockContent{fetchFn: func(context.Context, int64) ([]byte, error) {
				return tt.data, tt.err
			}}
			router := newTestRouter(t, nil, nil, content, nil)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/image/42", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
			code, msg := decodeError(t, rec.Body)
			if code != tt.wantCode {
				t.Errorf("code = %q, ожидается %q", code, tt.wantCode)
			}
			if tt.wantStatus == http.StatusNotFound && msg != msgImageNotFound {
				t.Errorf("message = %q, ожидается %q", msg, msgImageNotFound)
			}
		})
	}
}

func TestGetImage_InvalidDocID(t *testing.T) {
	router := newTestRouter(t, nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/image/abc", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус = %d, ожидается 400", rec.Code)
	}
}

// --- GET /cache/{filename} ---

func TestGetCachedThumbnail(t *testing.T) {
	dir := t.TempDir()
	jpeg := []byte("\xff\xd8\xff\xe0fake-jpeg")
	if err := os.WriteFile(filepath.Join(dir, "19661460.jpg"), jpeg, 0o644); err != nil {
		t.Fatal(err)
	}

	thumbs := &mockThumbnails{
		openFn: func(name string) (*os.File, error) {
			if name == "../secret" || strings.Contains(name, "/") {
				return nil, thumbstore.ErrInvalidName
			}
			f, err := os.Open(filepath.Join(dir, name))
			if errors.Is(err, os.ErrNotExist) {
				return nil, thumbstore.ErrNotFound
			}
			return f, err
		},
		clearFn: func() error { return nil },
	}
	router := newTestRouter(t, nil, nil, nil, thumbs)

	t.Run("файл есть в кэше", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cache/19661460.jpg", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("статус = %d, ожидается 200", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Content-Type = %q, ожидается image/jpeg", ct)
		}
		if rec.Body.String() != string(jpeg) {
			t.Error("тело ответа не совпадает с файлом кэша")
		}
	})

	t.Run("файла нет", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cache/1.jpg", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("статус = %d, ожидается 404", rec.Code)
		}
	})
}

// --- POST /api/clear_cache ---

func TestClearCache(t *testing.T) {
	t.Run("успех", func(t *testing.T) {
		cleared := false
		thumbs := &mockThumbnails{clearFn: func() error { cleared = true; return nil }}
		router := newTestRouter(t, nil, nil, nil, thumbs)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/clear_cache", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("статус = %d, ожидается 200", rec.Code)
		}
		if !cleared {
			t.Error("Clear не вызван")
		}
		var resp messageResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Message != msgCacheCleared {
			t.Errorf("message = %q", resp.Message)
		}
	})

	t.Run("ошибка очистки", func(t *testing.T) {
		thumbs := &mockThumbnails{clearFn: func() error { return errors.New("диск только для чтения") }}
		router := newTestRouter(t, nil, nil, nil, thumbs)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/clear_cache", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("статус = %d, ожидается 500", rec.Code)
		}
		if _, msg := decodeError(t, rec.Body); !strings.HasPrefix(msg, "Failed to clear cache:") {
			t.Errorf("message = %q", msg)
		}
	})
}

// --- POST /api/update_abstract ---

func TestUpdateAbstract_Success(t *testing.T) {
	var gotID int64
	var gotNames []string
	registry := &mockAnnotations{updateFn: func(_ context.Context, docID int64, names []string) (string, error) {
		gotID, gotNames = docID, names
		return service.AnnotationUpdatedMessage, nil
	}}
	router := newTestRouter(t, nil, registry, nil, nil)

	for _, body := range []string{
		`{"doc_id": 19661460, "names": ["Иванов И.И.", "Петров П.П."]}`,
		`{"doc_id": "19661460", "names": ["Иванов И.И.", "Петров П.П."]}`,
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/update_abstract", strings.NewReader(body)))

		if rec.Code != http.StatusOK {
			t.Fatalf("тело %s: статус = %d, ожидается 200", body, rec.Code)
		}
		if gotID != 19661460 || len(gotNames) != 2 || gotNames[1] != "Петров П.П." {
			t.Errorf("UpdateAnnotation(%d, %v)", gotID, gotNames)
		}
		var resp messageResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Message != service.AnnotationUpdatedMessage {
			t.Errorf("message = %q", resp.Message)
		}
	}
}

func TestUpdateAbstract_InvalidData(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"names": ["a"]}`,
		`{"doc_id": 1}`,
		`{"doc_id": 1, "names": "a"}`,
		`{"doc_id": null, "names": ["a"]}`,
		`{"doc_id": "abc", "names": ["a"]}`,
		`{"doc_id": 0, "names": ["a"]}`,
		`{"doc_id": -3, "names": ["a"]}`,
		`{"doc_id": 1, "names": []}`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			router := newTestRouter(t, nil, nil, nil, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/update_abstract", strings.NewReader(body)))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("статус = %d, ожидается 400", rec.Code)
			}
			if _, msg := decodeError(t, rec.Body); msg != msgInvalidData {
				t.Errorf("message = %q, ожидается %q", msg, msgInvalidData)
			}
		})
	}
}

func TestUpdateAbstract_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"документ не найден", fmt.Errorf("%w: документ 7", service.ErrDocumentNotFound), http.StatusNotFound, "Document with ID 7 not found."},
		{"конфликт", service.ErrAnnotationConflict, http.StatusInternalServerError, "Database error:"},
		{"ошибка БД", errors.New("connection refused"), http.StatusInternalServerError, "Database error:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := &mockAnnotations{updateFn: func(context.Context, int64, []string) (string, error) {
				return "", tt.err
			}}
			router := newTestRouter(t, nil, registry, nil, nil)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/update_abstract",
				strings.NewReader(`{"doc_id": 7, "names": ["a"]}`)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
			if _, msg := decodeError(t, rec.Body); !strings.HasPrefix(msg, tt.wantMsg) {
				t.Errorf("message = %q, ожидается префикс %q", msg, tt.wantMsg)
			}
		})
	}
}
