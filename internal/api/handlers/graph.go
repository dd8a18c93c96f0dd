// graph.go — обработчики графа знаний.
// GET /api/v1/graph/node-relationships?nodeName=&nodeType= — окрестность узла
// GET /api/v1/graph/dump                                  — срез графа (?limit=)
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/arturkryukov/testgen/analysis-module/internal/api/errors"
	"github.com/arturkryukov/testgen/analysis-module/internal/graphdb"
)

// defaultDumpLimit — ограничение размера дампа графа по умолчанию.
const defaultDumpLimit = 300

// GraphQuerier — операции чтения графа знаний.
type GraphQuerier interface {
	GetClassRelationships(ctx context.Context, nodeName string) (*graphdb.ClassNeighborhood, error)
	DumpGraph(ctx context.Context, limit int) (*graphdb.GraphDump, error)
}

// GetNodeRelationships — окрестность узла в графе знаний.
// Единственный поддерживаемый тип узла — class. Отсутствие класса
// в графе — не ошибка: возвращается пустая окрестность.
func (h *APIHandler) GetNodeRelationships(w http.ResponseWriter, r *http.Request) {
	nodeName := r.URL.Query().Get("nodeName")
	nodeType := r.URL.Query().Get("nodeType")
	if nodeName == "" || nodeType == "" {
		errors.ValidationError(w, "Параметры nodeName и nodeType обязательны")
		return
	}
	if nodeType != "class" {
		errors.ValidationError(w, "Неподдерживаемый тип узла: "+nodeType)
		return
	}

	neighborhood, err := h.graph.GetClassRelationships(r.Context(), nodeName)
	if err != nil {
		h.logger.Error("Ошибка запроса графа",
			slog.String("class", nodeName), slog.String("error", err.Error()))
		errors.InternalError(w, "Не удалось выполнить запрос к графу знаний")
		return
	}

	writeJSON(w, http.StatusOK, neighborhood)
}

// DumpGraph — срез графа знаний для отладки и визуализации.
func (h *APIHandler) DumpGraph(w http.ResponseWriter, r *http.Request) {
	limit := defaultDumpLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			errors.ValidationError(w, "Параметр limit должен быть положительным числом")
			return
		}
		limit = parsed
	}

	dump, err := h.graph.DumpGraph(r.Context(), limit)
	if err != nil {
		h.logger.Error("Ошибка дампа графа", slog.String("error", err.Error()))
		errors.InternalError(w, "Не удалось выполнить запрос к графу знаний")
		return
	}
	if dump.Nodes == nil {
		dump.Nodes = []map[string]any{}
	}
	if dump.Relationships == nil {
		dump.Relationships = []map[string]any{}
	}

	writeJSON(w, http.StatusOK, dump)
}
