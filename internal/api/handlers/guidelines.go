// guidelines.go — обработчики заданий генерации guideline-документа.
// POST /api/v1/guidelines                — приём задания (multipart), 202 Accepted
// GET  /api/v1/guidelines/{id}           — опрос статуса/результата
// GET  /api/v1/guidelines/latest         — последний завершённый guideline
// GET  /api/v1/guidelines/{id}/download  — presigned URL документа
package handlers

import (
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/testgen/analysis-module/internal/api/errors"
	"github.com/arturkryukov/testgen/analysis-module/internal/repository"
	"github.com/arturkryukov/testgen/analysis-module/internal/service"
)

// SubmitGuideline — приём задания генерации guideline.
//
// Multipart-поля:
//   - provider, modelType — параметры модели
//   - files — образцы кода (обязательно, >= 1)
func (h *APIHandler) SubmitGuideline(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipartForm(w, r, h.limits.MaxUpload); err != nil {
		errors.PayloadTooLarge(w, "Не удалось разобрать multipart-форму: превышен размер или повреждены данные")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := service.SubmitGuidelineRequest{
		Provider:  r.FormValue("provider"),
		ModelType: r.FormValue("modelType"),
	}

	var err error
	req.Files, err = readUploads(r.MultipartForm.File["files"], h.limits.MaxFiles, h.limits.MaxFileSize)
	if err != nil {
		writeUploadError(w, "files", err)
		return
	}

	g, err := h.guidelines.Submit(r.Context(), req)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, g)
}

// GetGuideline — опрос записи guideline-задания.
func (h *APIHandler) GetGuideline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "guidelineId")

	g, err := h.guidelines.Get(r.Context(), id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			errors.NotFound(w, "Задание не найдено")
			return
		}
		h.logger.Error("Ошибка получения задания",
			slog.String("guideline_id", id), slog.String("error", err.Error()))
		errors.InternalError(w, "Не удалось получить задание")
		return
	}

	writeJSON(w, http.StatusOK, g)
}

// GetLatestGuideline — последний завершённый guideline.
func (h *APIHandler) GetLatestGuideline(w http.ResponseWriter, r *http.Request) {
	g, err := h.guidelines.GetMostRecent(r.Context())
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			errors.NotFound(w, "Завершённых guideline нет")
			return
		}
		h.logger.Error("Ошибка получения последнего guideline", slog.String("error", err.Error()))
		errors.InternalError(w, "Не удалось получить последний guideline")
		return
	}

	writeJSON(w, http.StatusOK, g)
}

// DownloadGuideline — presigned URL сгенерированного документа.
func (h *APIHandler) DownloadGuideline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "guidelineId")

	g, err := h.guidelines.Get(r.Context(), id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			errors.NotFound(w, "Задание не найдено")
			return
		}
		errors.InternalError(w, "Не удалось получить задание")
		return
	}
	if g.DocFileID == "" {
		errors.NotFound(w, "Документ ещё не сгенерирован")
		return
	}

	url, err := h.outputs.DownloadURLByID(r.Context(), g.DocFileID)
	if err != nil {
		if stderrors.Is(err, service.ErrNotFound) {
			errors.NotFound(w, "Документ не найден в хранилище")
			return
		}
		h.logger.Error("Ошибка генерации URL документа",
			slog.String("guideline_id", id), slog.String("error", err.Error()))
		errors.InternalError(w, "Не удалось сгенерировать ссылку")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"guidelineId": id,
		"downloadUrl": url,
	})
}
