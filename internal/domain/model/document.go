// Пакет model — доменные модели EDMS Catalog.
// DocumentRecord — проекция таблицы profile реестра документов (owned by EDMS).
package model

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// Значения по умолчанию для пустых полей профиля.
const (
	DefaultTitle  = "No Title"
	DefaultAuthor = "N/A"
	DefaultDate   = "N/A"
	// DateLayout — формат даты в ответах каталога.
	DateLayout = "2006-01-02"
)

// DocumentRecord — запись документа из реестра.
// Формируется на каждый запрос, этим сервисом не сохраняется.
type DocumentRecord struct {
	// DocID — номер документа (первичный ключ реестра)
	DocID int64
	// Abstract — аннотация (используется как заголовок), может отсутствовать
	Abstract *string
	// Author — автор, может отсутствовать
	Author *string
	// CreatedAt — дата создания документа
	CreatedAt *time.Time
	// ThumbnailRef — ссылка на миниатюру (путь в кэше или URL заглушки)
	ThumbnailRef *string
}

// Title возвращает аннотацию или заглушку "No Title".
func (d *DocumentRecord) Title() string {
	if d.Abstract == nil || *d.Abstract == "" {
		return DefaultTitle
	}
	return *d.Abstract
}

// AuthorName возвращает автора или "N/A".
func (d *DocumentRecord) AuthorName() string {
	if d.Author == nil || *d.Author == "" {
		return DefaultAuthor
	}
	return *d.Author
}

// Date возвращает дату создания в формате YYYY-MM-DD или "N/A".
func (d *DocumentRecord) Date() string {
	if d.CreatedAt == nil {
		return DefaultDate
	}
	return d.CreatedAt.Format(DateLayout)
}

// SearchQuery — параметры поиска по каталогу.
// Page >= 1, PageSize > 0 (см. Normalize).
type SearchQuery struct {
	// Terms — слова поиска в нижнем регистре, объединяются по AND
	Terms []string
	// DateFrom — нижняя граница даты создания (включительно)
	DateFrom *time.Time
	// DateTo — верхняя граница даты создания (включительно)
	DateTo *time.Time
	// Page — номер страницы, начиная с 1
	Page int
	// PageSize — размер страницы
	PageSize int
}

// Normalize приводит Page и PageSize к допустимым значениям.
func (q SearchQuery) Normalize(defaultPageSize int) SearchQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	return q
}

// Offset возвращает смещение окна пагинации.
// Для страницы, смещение которой не помещается в int, возвращается
// math.MaxInt: такое окно заведомо дальше последней записи и пусто.
func (q SearchQuery) Offset() int {
	if q.Page < 1 || q.PageSize < 1 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.PageSize {
		return math.MaxInt
	}
	return (q.Page - 1) * q.PageSize
}

// termPattern — слово: последовательность букв, цифр и подчёркиваний.
var termPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// ParseTerms разбивает строку поиска на слова по пробелам и пунктуации.
// Пустая строка или строка без слов даёт nil (фильтр не применяется).
func ParseTerms(search string) []string {
	words := termPattern.FindAllString(strings.ToLower(search), -1)
	if len(words) == 0 {
		return nil
	}
	return words
}

// AppendVIPs добавляет к аннотации раздел "VIPs : имя1, имя2".
// Разделяющий пробел ставится только перед непустой аннотацией.
func AppendVIPs(current string, names []string) string {
	section := "VIPs : " + strings.Join(names, ", ")
	if current == "" {
		return section
	}
	return current + " " + section
}

// TotalPages возвращает количество страниц, минимум одна.
func TotalPages(total, pageSize int) int {
	if pageSize < 1 || total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}
