// outputs.go — обработчики артефактов анализа.
// GET /api/v1/outputs                — листинг артефактов (?prefix=)
// GET /api/v1/outputs/download       — presigned URL по ключу (?key=)
package handlers

import (
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/arturkryukov/testgen/analysis-module/internal/api/errors"
	"github.com/arturkryukov/testgen/analysis-module/internal/service"
)

// ListOutputs — листинг артефактов по префиксу.
func (h *APIHandler) ListOutputs(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	keys, err := h.outputs.List(r.Context(), prefix)
	if err != nil {
		h.logger.Error("Ошибка листинга артефактов",
			slog.String("prefix", prefix), slog.String("error", err.Error()))
		errors.InternalError(w, "Не удалось получить список артефактов")
		return
	}
	if keys == nil {
		keys = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"files": keys,
		"count": len(keys),
	})
}

// DownloadOutput — presigned URL артефакта по ключу.
func (h *APIHandler) DownloadOutput(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		errors.ValidationError(w, "Параметр key обязателен")
		return
	}

	url, err := h.outputs.DownloadURL(r.Context(), key)
	if err != nil {
		if stderrors.Is(err, service.ErrNotFound) {
			errors.NotFound(w, "Артефакт не найден")
			return
		}
		h.logger.Error("Ошибка генерации URL артефакта",
			slog.String("key", key), slog.String("error", err.Error()))
		errors.InternalError(w, "Не удалось сгенерировать ссылку")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"key":         key,
		"downloadUrl": url,
	})
}
