// health.go — обработчики health endpoints для Kubernetes probes.
// /health/live — процесс жив, /health/ready — данные, WAL и PostgreSQL доступны.
package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/document-registry/internal/config"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker — проверка готовности одной зависимости.
type ReadinessChecker interface {
	// Name возвращает ключ проверки в ответе.
	Name() string
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// DirChecker проверяет, что директория доступна на запись.
type DirChecker struct {
	name string
	dir  string
	// critical — при отказе сервис не готов; иначе degraded
	critical bool
}

// NewDirChecker создаёт проверку директории.
func NewDirChecker(name, dir string, critical bool) *DirChecker {
	return &DirChecker{name: name, dir: dir, critical: critical}
}

// Name возвращает имя проверки.
func (c *DirChecker) Name() string { return c.name }

// CheckReady записывает и удаляет пробный файл.
func (c *DirChecker) CheckReady() (string, string) {
	testFile := filepath.Join(c.dir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		status := statusDegraded
		if c.critical {
			status = statusFail
		}
		return status, "Директория недоступна для записи: " + err.Error()
	}
	_ = os.Remove(testFile)
	return statusOK, ""
}

// HealthHandler — обработчик health endpoints и /metrics.
type HealthHandler struct {
	checkers    []ReadinessChecker
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(checkers ...ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		checkers:    checkers,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse — ответ liveness и readiness probe.
type healthResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks,omitempty"`
}

// HealthLive обрабатывает GET /health/live. Зависимости не проверяются.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "document-registry",
	})
}

// HealthReady обрабатывает GET /health/ready.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	checks := make(map[string]healthCheckResult, len(h.checkers))
	statuses := make([]string, 0, len(h.checkers))
	for _, c := range h.checkers {
		status, message := c.CheckReady()
		checks[c.Name()] = healthCheckResult{Status: status, Message: message}
		statuses = append(statuses, status)
	}

	overall := overallStatus(statuses...)
	httpStatus := http.StatusOK
	if overall == statusFail {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "document-registry",
		Checks:    checks,
	})
}

// GetMetrics обрабатывает GET /metrics.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus: хотя бы один fail → fail, хотя бы один degraded → degraded.
func overallStatus(statuses ...string) string {
	result := statusOK
	for _, s := range statuses {
		switch s {
		case statusFail:
			return statusFail
		case statusDegraded:
			result = statusDegraded
		}
	}
	return result
}

// writeJSON сериализует ответ с заданным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
