package model

import (
	"math"
	"reflect"
	"testing"
	"time"
)

func TestParseTerms(t *testing.T) {
	tests := []struct {
		name   string
		search string
		want   []string
	}{
		{"пустая строка", "", nil},
		{"только пунктуация", " ,.;- ", nil},
		{"одно слово", "Report", []string{"report"}},
		{"несколько слов", "Annual  report, 2024!", []string{"annual", "report", "2024"}},
		{"кириллица", "Годовой отчёт", []string{"годовой", "отчёт"}},
		{"подчёркивание внутри слова", "doc_type", []string{"doc_type"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTerms(tt.search)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseTerms(%q) = %v, ожидалось %v", tt.search, got, tt.want)
			}
		})
	}
}

func TestAppendVIPs(t *testing.T) {
	names := []string{"Jane Doe", "John Roe"}

	if got := AppendVIPs("Report A", names); got != "Report A VIPs : Jane Doe, John Roe" {
		t.Errorf("AppendVIPs(непустая) = %q", got)
	}
	if got := AppendVIPs("", names); got != "VIPs : Jane Doe, John Roe" {
		t.Errorf("AppendVIPs(пустая) = %q", got)
	}
	if got := AppendVIPs("X", []string{"Solo"}); got != "X VIPs : Solo" {
		t.Errorf("AppendVIPs(одно имя) = %q", got)
	}
}

func TestSearchQuery_NormalizeOffset(t *testing.T) {
	q := SearchQuery{Page: 0, PageSize: 0}.Normalize(10)
	if q.Page != 1 || q.PageSize != 10 {
		t.Errorf("Normalize() = page %d size %d, ожидалось 1/10", q.Page, q.PageSize)
	}
	if q.Offset() != 0 {
		t.Errorf("Offset() = %d, ожидался 0", q.Offset())
	}

	q = SearchQuery{Page: 3, PageSize: 25}
	if q.Offset() != 50 {
		t.Errorf("Offset() = %d, ожидался 50", q.Offset())
	}

	// Огромный номер страницы не должен переполнять смещение
	for _, page := range []int{1844674407370955163, math.MaxInt, math.MaxInt/10 + 2} {
		q = SearchQuery{Page: page, PageSize: 10}.Normalize(10)
		if got := q.Offset(); got != math.MaxInt {
			t.Errorf("Offset(page=%d) = %d, ожидался math.MaxInt (пустая страница)", page, got)
		}
	}
	q = SearchQuery{Page: math.MaxInt/10 + 1, PageSize: 10}
	if got := q.Offset(); got != math.MaxInt/10*10 {
		t.Errorf("Offset(граница) = %d, ожидался %d", got, math.MaxInt/10*10)
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 10, 1},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{95, 10, 10},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.total, tt.size); got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, ожидалось %d", tt.total, tt.size, got, tt.want)
		}
	}
}

func TestDocumentRecord_Defaults(t *testing.T) {
	d := &DocumentRecord{DocID: 1}
	if d.Title() != DefaultTitle || d.AuthorName() != DefaultAuthor || d.Date() != DefaultDate {
		t.Errorf("ожидались значения по умолчанию, получено %q/%q/%q", d.Title(), d.AuthorName(), d.Date())
	}

	abstract, author := "Report A", "Jane"
	created := time.Date(2024, 3, 7, 15, 4, 5, 0, time.UTC)
	d = &DocumentRecord{DocID: 2, Abstract: &abstract, Author: &author, CreatedAt: &created}
	if d.Title() != "Report A" || d.AuthorName() != "Jane" || d.Date() != "2024-03-07" {
		t.Errorf("получено %q/%q/%q", d.Title(), d.AuthorName(), d.Date())
	}
}
