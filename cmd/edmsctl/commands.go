package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/edms-catalog/internal/app"
	"github.com/bigkaa/goartstore/edms-catalog/internal/domain/model"
)

// newFetchCmd — получение полного содержимого документа из EDMS.
func newFetchCmd(e *env) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fetch <doc_id>",
		Short: "Получить содержимое документа из EDMS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID, err := parseDocID(args[0])
			if err != nil {
				return err
			}

			content, err := app.NewContent(e.cfg, e.logger)
			if err != nil {
				return err
			}

			data, err := content.Retriever.Fetch(cmd.Context(), docID)
			if err != nil {
				return fmt.Errorf("документ %d: %w", docID, err)
			}
			if len(data) == 0 {
				return fmt.Errorf("документ %d: EDMS вернул пустое содержимое", docID)
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil { //nolint:gosec // G306: файл оператора
				return fmt.Errorf("запись %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Сохранено %d байт в %s\n", len(data), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Файл для записи (по умолчанию stdout)")
	return cmd
}

// newThumbnailCmd — построение миниатюры документа в кэше.
func newThumbnailCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "thumbnail <doc_id>",
		Short: "Построить миниатюру документа (или вернуть из кэша)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID, err := parseDocID(args[0])
			if err != nil {
				return err
			}

			content, err := app.NewContent(e.cfg, e.logger)
			if err != nil {
				return err
			}

			ref, err := content.Thumbnails.GetOrCreate(cmd.Context(), docID)
			if err != nil {
				return fmt.Errorf("документ %d: %w", docID, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ref)
			return nil
		},
	}
}

// newCacheCmd — операции с кэшем миниатюр.
func newCacheCmd(e *env) *cobra.Command {
	cache := &cobra.Command{
		Use:   "cache",
		Short: "Операции с кэшем миниатюр",
	}

	cache.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Удалить все миниатюры из кэша",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			content, err := app.NewContent(e.cfg, e.logger)
			if err != nil {
				return err
			}
			if err := content.Thumbnails.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Кэш миниатюр очищен")
			return nil
		},
	})
	return cache
}

// searchFlags — параметры команды search.
type searchFlags struct {
	search   string
	from     string
	to       string
	page     int
	pageSize int
}

// query преобразует флаги в model.SearchQuery. --to включает весь день.
func (f searchFlags) query() (model.SearchQuery, error) {
	q := model.SearchQuery{
		Terms:    model.ParseTerms(f.search),
		Page:     f.page,
		PageSize: f.pageSize,
	}
	if f.from != "" {
		from, err := time.Parse(model.DateLayout, f.from)
		if err != nil {
			return q, fmt.Errorf("некорректная дата --from %q: ожидается YYYY-MM-DD", f.from)
		}
		q.DateFrom = &from
	}
	if f.to != "" {
		to, err := time.Parse(model.DateLayout, f.to)
		if err != nil {
			return q, fmt.Errorf("некорректная дата --to %q: ожидается YYYY-MM-DD", f.to)
		}
		to = to.AddDate(0, 0, 1).Add(-time.Microsecond)
		q.DateTo = &to
	}
	if q.DateFrom != nil && q.DateTo != nil && q.DateFrom.After(*q.DateTo) {
		return q, errors.New("--from не может быть позже --to")
	}
	return q, nil
}

// newSearchCmd — поиск по реестру документов.
func newSearchCmd(e *env) *cobra.Command {
	var f searchFlags

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Поиск документов в реестре",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := f.query()
			if err != nil {
				return err
			}

			registry, err := app.NewRegistry(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer registry.Close()

			q = q.Normalize(registry.Service.PageSize())
			result := registry.Service.Search(cmd.Context(), q)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DOC_ID\tDATE\tAUTHOR\tTITLE")
			for _, doc := range result.Documents {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", doc.DocID, doc.Date(), doc.AuthorName(), doc.Title())
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nСтраница %d из %d, всего документов: %d\n",
				q.Page, model.TotalPages(result.Total, q.PageSize), result.Total)
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.search, "search", "s", "", "Слова поиска по аннотации (AND)")
	cmd.Flags().StringVar(&f.from, "from", "", "Дата создания с (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "Дата создания по (YYYY-MM-DD, включительно)")
	cmd.Flags().IntVarP(&f.page, "page", "p", 1, "Номер страницы")
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "Размер страницы (0 — EC_PAGE_SIZE)")
	return cmd
}

// newAnnotateCmd — дописывание раздела VIPs в аннотацию документа.
func newAnnotateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "annotate <doc_id> <name>...",
		Short: "Дописать VIPs в аннотацию документа",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID, err := parseDocID(args[0])
			if err != nil {
				return err
			}

			registry, err := app.NewRegistry(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer registry.Close()

			msg, err := registry.Service.UpdateAnnotation(cmd.Context(), docID, args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}
