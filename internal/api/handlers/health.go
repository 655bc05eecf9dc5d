// health.go — обработчики health endpoints EDMS Catalog.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (реестр PostgreSQL доступен; состояние EDMS
// по данным dephealth влияет только на degraded)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/edms-catalog/internal/config"
)

// serviceName — имя сервиса в ответах health.
const serviceName = "edms-catalog"

// Константы статусов health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// DependencyHealth — состояние зависимостей по данным фонового мониторинга.
// Реализуется *service.DephealthService.
type DependencyHealth interface {
	Health() map[string]bool
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	pgChecker   ReadinessChecker
	deps        DependencyHealth
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// pgChecker — проверка PostgreSQL (может быть nil — readiness вернёт "fail").
// deps — мониторинг зависимостей (может быть nil — EDMS не проверяется).
func NewHealthHandler(pgChecker ReadinessChecker, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{
		pgChecker:   pgChecker,
		deps:        deps,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		PostgreSQL healthCheckResult  `json:"postgresql"`
		EDMS       *healthCheckResult `json:"edms,omitempty"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe. Возвращает 200 (ok/degraded) или 503 (fail).
// Недоступный EDMS не снимает сервис с балансировки: каталог продолжает
// отдавать метаданные с заглушками миниатюр.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}

	if h.pgChecker != nil {
		pgStatus, pgMsg := h.pgChecker.CheckReady()
		resp.Checks.PostgreSQL = healthCheckResult{Status: pgStatus, Message: pgMsg}
	} else {
		resp.Checks.PostgreSQL = healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}

	statuses := []string{resp.Checks.PostgreSQL.Status}
	if edms := h.edmsCheck(); edms != nil {
		resp.Checks.EDMS = edms
		statuses = append(statuses, edms.Status)
	}
	resp.Status = overallStatus(statuses...)

	status := http.StatusOK
	if resp.Status == statusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// edmsCheck возвращает состояние EDMS по данным dephealth или nil,
// если мониторинг не подключён либо ещё не выполнил ни одной проверки.
// Ключи Health() имеют формат "dependency:host:port".
func (h *HealthHandler) edmsCheck() *healthCheckResult {
	if h.deps == nil {
		return nil
	}
	var found, healthy bool
	for key, ok := range h.deps.Health() {
		if strings.HasPrefix(key, "edms:") {
			found = true
			healthy = ok
			break
		}
	}
	if !found {
		return nil
	}
	if healthy {
		return &healthCheckResult{Status: statusOK}
	}
	return &healthCheckResult{Status: statusDegraded, Message: "EDMS недоступен, изображения не загружаются"}
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Хотя бы один fail — fail, хотя бы один degraded — degraded, иначе ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}
