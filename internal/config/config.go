// Пакет config — загрузка и валидация конфигурации EDMS Catalog
// из переменных окружения.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации EDMS Catalog.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (по умолчанию 8040)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Реестр документов (PostgreSQL) ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Таймаут одного запроса к реестру
	DBQueryTimeout time.Duration
	// Нижняя граница номера документа (базовый предикат выборки)
	RegistryMinDocNumber int64
	// Код формы профиля (базовый предикат выборки)
	RegistryFormCode int
	// Размер страницы каталога по умолчанию
	PageSize int

	// --- EDMS ---

	// Endpoint сервиса IDMSvc (Login, GetDocSvr3)
	EDMSURL string
	// Endpoint сервиса IDMObj (GetReadStream, ReadStream, ReleaseObject)
	EDMSObjURL   string
	EDMSUser     string
	EDMSPassword string //nolint:gosec // G101: поле структуры
	// Контекст входа (loginContext)
	EDMSLoginContext string
	// Идентификатор сети для входа
	EDMSNetwork int
	// Библиотека документов (%TARGET_LIBRARY)
	EDMSLibrary string
	// Размер запрашиваемого фрагмента потока, байт
	EDMSChunkSize int
	// Таймаут одного вызова EDMS (ограничивает и чтение фрагмента)
	EDMSTimeout time.Duration
	// Путь к CA-сертификату EDMS (опционально)
	EDMSCACertPath string
	// Путь health-проверки EDMS для topologymetrics
	EDMSHealthPath string

	// --- Миниатюры ---

	// Директория кэша миниатюр
	ThumbnailDir string
	// Максимальная сторона миниатюры, px
	ThumbnailSize int
	// Качество JPEG (1-100)
	ThumbnailQuality int
	// Предел площади исходного изображения, px (защита от decompression bomb)
	ThumbnailMaxPixels int
	// Количество параллельных построений миниатюр на страницу каталога
	ThumbnailWorkers int
	// URL заглушки, если миниатюра недоступна
	PlaceholderURL string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
	DephealthIsEntry       bool

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
//
//nolint:cyclop,funlen // линейная загрузка большого количества параметров
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// EC_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("EC_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("EC_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("EC_PORT: значение %d вне диапазона 1-65535", cfg.Port)
	}

	// EC_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("EC_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("EC_LOG_LEVEL: %w", err)
	}

	// EC_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("EC_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("EC_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("EC_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EC_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("EC_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EC_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("EC_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EC_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Реестр документов ---

	if cfg.DBHost, err = getEnvRequired("EC_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("EC_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("EC_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("EC_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("EC_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("EC_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("EC_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("EC_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBQueryTimeout, err = getEnvDurationFallback("EC_DB_QUERY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EC_DB_QUERY_TIMEOUT: %w", err)
	}

	cfg.RegistryMinDocNumber, err = getEnvInt64("EC_REGISTRY_MIN_DOC_NUMBER", 19661457)
	if err != nil {
		return nil, fmt.Errorf("EC_REGISTRY_MIN_DOC_NUMBER: %w", err)
	}
	cfg.RegistryFormCode, err = getEnvInt("EC_REGISTRY_FORM_CODE", 2740)
	if err != nil {
		return nil, fmt.Errorf("EC_REGISTRY_FORM_CODE: %w", err)
	}

	cfg.PageSize, err = getEnvInt("EC_PAGE_SIZE", 10)
	if err != nil {
		return nil, fmt.Errorf("EC_PAGE_SIZE: %w", err)
	}
	if cfg.PageSize < 1 || cfg.PageSize > 100 {
		return nil, fmt.Errorf("EC_PAGE_SIZE: значение %d вне допустимого диапазона 1-100", cfg.PageSize)
	}

	// --- EDMS ---

	if cfg.EDMSURL, err = getEnvURL("EC_EDMS_URL"); err != nil {
		return nil, err
	}
	cfg.EDMSObjURL = getEnvDefault("EC_EDMS_OBJ_URL", cfg.EDMSURL)
	if _, err := url.ParseRequestURI(cfg.EDMSObjURL); err != nil {
		return nil, fmt.Errorf("EC_EDMS_OBJ_URL: некорректный URL %q", cfg.EDMSObjURL)
	}
	if cfg.EDMSUser, err = getEnvRequired("EC_EDMS_USER"); err != nil {
		return nil, err
	}
	if cfg.EDMSPassword, err = getEnvRequired("EC_EDMS_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.EDMSLoginContext = getEnvDefault("EC_EDMS_LOGIN_CONTEXT", "RTA_MAIN")
	cfg.EDMSNetwork, err = getEnvInt("EC_EDMS_NETWORK", 0)
	if err != nil {
		return nil, fmt.Errorf("EC_EDMS_NETWORK: %w", err)
	}
	cfg.EDMSLibrary = getEnvDefault("EC_EDMS_LIBRARY", "RTA_MAIN")

	cfg.EDMSChunkSize, err = getEnvInt("EC_EDMS_CHUNK_SIZE", 65536)
	if err != nil {
		return nil, fmt.Errorf("EC_EDMS_CHUNK_SIZE: %w", err)
	}
	if cfg.EDMSChunkSize < 1024 || cfg.EDMSChunkSize > 16*1024*1024 {
		return nil, fmt.Errorf("EC_EDMS_CHUNK_SIZE: значение %d вне допустимого диапазона 1024-16777216", cfg.EDMSChunkSize)
	}

	cfg.EDMSTimeout, err = getEnvDurationFallback("EC_EDMS_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EC_EDMS_TIMEOUT: %w", err)
	}
	cfg.EDMSCACertPath = getEnvDefault("EC_EDMS_CA_CERT_PATH", "")

	// EC_EDMS_HEALTH_PATH — по умолчанию путь endpoint'а IDMSvc
	defaultHealthPath := "/"
	if parsed, perr := url.Parse(cfg.EDMSURL); perr == nil && parsed.Path != "" {
		defaultHealthPath = parsed.Path
	}
	cfg.EDMSHealthPath = getEnvDefault("EC_EDMS_HEALTH_PATH", defaultHealthPath)

	// --- Миниатюры ---

	cfg.ThumbnailDir = getEnvDefault("EC_THUMBNAIL_DIR", "./thumbnail_cache")
	cfg.ThumbnailSize, err = getEnvInt("EC_THUMBNAIL_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("EC_THUMBNAIL_SIZE: %w", err)
	}
	if cfg.ThumbnailSize < 16 || cfg.ThumbnailSize > 1024 {
		return nil, fmt.Errorf("EC_THUMBNAIL_SIZE: значение %d вне допустимого диапазона 16-1024", cfg.ThumbnailSize)
	}
	cfg.ThumbnailQuality, err = getEnvInt("EC_THUMBNAIL_QUALITY", 75)
	if err != nil {
		return nil, fmt.Errorf("EC_THUMBNAIL_QUALITY: %w", err)
	}
	if cfg.ThumbnailQuality < 1 || cfg.ThumbnailQuality > 100 {
		return nil, fmt.Errorf("EC_THUMBNAIL_QUALITY: значение %d вне допустимого диапазона 1-100", cfg.ThumbnailQuality)
	}
	cfg.ThumbnailMaxPixels, err = getEnvInt("EC_THUMBNAIL_MAX_PIXELS", 89478485)
	if err != nil {
		return nil, fmt.Errorf("EC_THUMBNAIL_MAX_PIXELS: %w", err)
	}
	if cfg.ThumbnailMaxPixels < 1 {
		return nil, fmt.Errorf("EC_THUMBNAIL_MAX_PIXELS: значение должно быть >= 1")
	}
	cfg.ThumbnailWorkers, err = getEnvInt("EC_THUMBNAIL_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("EC_THUMBNAIL_WORKERS: %w", err)
	}
	if cfg.ThumbnailWorkers < 1 {
		return nil, fmt.Errorf("EC_THUMBNAIL_WORKERS: значение должно быть >= 1")
	}
	cfg.PlaceholderURL = getEnvDefault("EC_PLACEHOLDER_URL",
		"https://placehold.co/100x100/e9ecef/6c757d?text=No+Image")

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("EC_DEPHEALTH_GROUP", "edms-catalog")
	cfg.DephealthCheckInterval, err = getEnvDuration("EC_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EC_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthIsEntry, err = getEnvBool("EC_DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("EC_DEPHEALTH_ISENTRY: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("EC_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EC_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает DSN для pgxpool в формате key=value.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	return SetupLoggerTo(cfg, os.Stdout)
}

// SetupLoggerTo настраивает логгер с выводом в w (CLI пишет логи в stderr,
// чтобы не смешивать их с данными в stdout).
func SetupLoggerTo(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvURL возвращает обязательный абсолютный URL без trailing slash.
func getEnvURL(key string) (string, error) {
	val, err := getEnvRequired(key)
	if err != nil {
		return "", err
	}
	parsed, err := url.ParseRequestURI(val)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%s: некорректный URL %q", key, val)
	}
	return strings.TrimRight(val, "/"), nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 — то же, что getEnvInt, для 64-битных значений.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvDurationFallback возвращает time.Duration из переменной окружения.
// Если переменная не задана, используется fallbackVal.
// Если задана — парсится и валидируется (> 0).
func getEnvDurationFallback(key string, fallbackVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallbackVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
