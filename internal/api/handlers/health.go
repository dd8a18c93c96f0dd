// health.go — обработчики health endpoints Analysis Module.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (MongoDB, blob-хранилище, Neo4j)
// /metrics — Prometheus метрики
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arturkryukov/testgen/analysis-module/internal/config"
)

// ReadinessReporter — источник состояния зависимостей.
type ReadinessReporter interface {
	// Health возвращает состояние зависимостей: имя -> ok.
	Health() map[string]bool
	// Ready возвращает true, если все критичные зависимости доступны.
	Ready() bool
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	readiness   ReadinessReporter
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// readiness — источник состояния (может быть nil — readiness вернёт fail).
func NewHealthHandler(readiness ReadinessReporter) *HealthHandler {
	return &HealthHandler{
		readiness:   readiness,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status string `json:"status"`
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
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks"`
}

// Константы статусов health check.
const (
	statusOK   = "ok"
	statusFail = "fail"
)

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "analysis-module",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady — readiness probe. Проверяет зависимости модуля.
// Возвращает 200 (ok) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "analysis-module",
		Checks:    make(map[string]healthCheckResult),
	}

	ready := false
	if h.readiness != nil {
		ready = h.readiness.Ready()
		for name, ok := range h.readiness.Health() {
			s := statusFail
			if ok {
				s = statusOK
			}
			resp.Checks[name] = healthCheckResult{Status: s}
		}
	}

	resp.Status = statusFail
	code := http.StatusServiceUnavailable
	if ready {
		resp.Status = statusOK
		code = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}
