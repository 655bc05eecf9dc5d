package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRegistry запускает PostgreSQL в Docker-контейнере и наполняет
// таблицу profile тестовыми профилями.
func setupRegistry(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("edms_test"),
		postgres.WithUsername("edms"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Не удалось получить DSN: %v", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("Не удалось создать пул: %v", err)
	}
	t.Cleanup(pool.Close)

	schema := `
		CREATE TABLE profile (
			docnumber     BIGINT PRIMARY KEY,
			abstract      TEXT,
			author        TEXT,
			creation_date TIMESTAMP,
			form          INTEGER NOT NULL
		);
		INSERT INTO profile VALUES
			(19661456, 'Annual report old', 'A', '2023-01-01', 2740),
			(19661460, 'Annual Report 2024', 'Jane', '2024-02-10', 2740),
			(19661461, 'Quarterly report', NULL, '2024-05-01', 2740),
			(19661462, 'Annual budget', 'John', '2024-07-15', 2740),
			(19661463, 'Annual report other form', 'X', '2024-08-01', 1),
			(19661464, NULL, NULL, NULL, 2740),
			(19661465, '100% coverage', 'Y', '2024-09-01', 2740);`
	if _, err := pool.Exec(ctx, schema); err != nil {
		t.Fatalf("Не удалось создать схему: %v", err)
	}

	return pool
}

func TestDocumentRepository_Integration(t *testing.T) {
	pool := setupRegistry(t)
	repo := NewDocumentRepository(pool, testScope)
	ctx := context.Background()

	t.Run("базовый предикат и сортировка", func(t *testing.T) {
		docs, total, err := repo.Search(ctx, SearchParams{Limit: 10})
		if err != nil {
			t.Fatalf("Search() ошибка: %v", err)
		}
		if total != 5 {
			t.Errorf("total = %d, ожидалось 5", total)
		}
		if len(docs) != 5 || docs[0].DocID != 19661465 || docs[4].DocID != 19661460 {
			t.Errorf("ожидался порядок по убыванию номера, получено %d документов", len(docs))
		}
	})

	t.Run("AND по словам без учёта регистра", func(t *testing.T) {
		docs, total, err := repo.Search(ctx, SearchParams{Terms: []string{"annual", "report"}, Limit: 10})
		if err != nil {
			t.Fatalf("Search() ошибка: %v", err)
		}
		if total != 1 || len(docs) != 1 || docs[0].DocID != 19661460 {
			t.Errorf("total = %d, ожидался только 19661460", total)
		}
	})

	t.Run("литеральный процент", func(t *testing.T) {
		_, total, err := repo.Search(ctx, SearchParams{Terms: []string{"100%"}, Limit: 10})
		if err != nil {
			t.Fatalf("Search() ошибка: %v", err)
		}
		if total != 1 {
			t.Errorf("total = %d, ожидалось 1", total)
		}
	})

	t.Run("диапазон дат и пагинация", func(t *testing.T) {
		from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC)
		docs, total, err := repo.Search(ctx, SearchParams{DateFrom: &from, DateTo: &to, Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("Search() ошибка: %v", err)
		}
		if total != 2 {
			t.Errorf("total = %d, ожидалось 2", total)
		}
		if len(docs) != 1 || docs[0].DocID != 19661461 {
			t.Errorf("ожидалась вторая страница с 19661461")
		}
	})

	t.Run("CAS аннотации", func(t *testing.T) {
		cur, err := repo.GetAbstract(ctx, 19661464)
		if err != nil {
			t.Fatalf("GetAbstract() ошибка: %v", err)
		}
		if cur != nil {
			t.Fatalf("ожидалась NULL-аннотация")
		}
		if err := repo.CompareAndSetAbstract(ctx, 19661464, cur, "VIPs : A"); err != nil {
			t.Fatalf("CompareAndSetAbstract() ошибка: %v", err)
		}
		// Повтор со старым значением — конфликт
		if err := repo.CompareAndSetAbstract(ctx, 19661464, cur, "VIPs : B"); !errors.Is(err, ErrConflict) {
			t.Errorf("err = %v, ожидался ErrConflict", err)
		}
		if _, err := repo.GetAbstract(ctx, 1); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, ожидался ErrNotFound", err)
		}
	})

	t.Run("конкурентные CAS не теряют обновления", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		applied := 0
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				cur, err := repo.GetAbstract(ctx, 19661462)
				if err != nil {
					return
				}
				if repo.CompareAndSetAbstract(ctx, 19661462, cur, *cur+" +") == nil {
					mu.Lock()
					applied++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		cur, _ := repo.GetAbstract(ctx, 19661462)
		want := "Annual budget"
		for i := 0; i < applied; i++ {
			want += " +"
		}
		if *cur != want {
			t.Errorf("abstract = %q, ожидалось %q (применено %d)", *cur, want, applied)
		}
	})
}
