// Пакет database — подключение к реестру документов (PostgreSQL)
// через pgxpool и проверка готовности.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/edms-catalog/internal/config"
)

// Connect создаёт пул подключений к реестру.
// Выполняет ping для проверки доступности.
// Схема реестра принадлежит EDMS, миграции не применяются.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	logger.Info("Подключение к реестру документов установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
	)

	return pool, nil
}

// Pinger — минимальный интерфейс пула для проверки готовности.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessChecker — проверка готовности реестра для health endpoint.
type ReadinessChecker struct {
	db Pinger
}

// NewReadinessChecker создаёт проверку готовности PostgreSQL.
func NewReadinessChecker(db Pinger) *ReadinessChecker {
	return &ReadinessChecker{db: db}
}

// CheckReady проверяет подключение к PostgreSQL через ping.
// Возвращает статус ("ok", "fail") и сообщение.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.db.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	return "ok", "подключение активно"
}
