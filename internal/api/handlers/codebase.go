// codebase.go — обработчики заданий анализа кодовой базы.
// POST /api/v1/reviews/codebase         — приём задания (multipart), 202 Accepted
// GET  /api/v1/reviews/codebase/{id}    — опрос статуса/результата
// GET  /api/v1/reviews/codebase/latest  — последний завершённый анализ
package handlers

import (
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/testgen/analysis-module/internal/api/errors"
	"github.com/arturkryukov/testgen/analysis-module/internal/domain/model"
	"github.com/arturkryukov/testgen/analysis-module/internal/domain/status"
	"github.com/arturkryukov/testgen/analysis-module/internal/repository"
	"github.com/arturkryukov/testgen/analysis-module/internal/service"
)

// SubmitCodebaseReview — приём задания анализа кодовой базы.
//
// Multipart-поля:
//   - provider, modelType — параметры модели
//   - files — файлы кодовой базы (обязательно, >= 1)
//   - complianceFile — файл требований (опционально, один)
func (h *APIHandler) SubmitCodebaseReview(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipartForm(w, r, h.limits.MaxCodebaseUpload); err != nil {
		errors.PayloadTooLarge(w, "Не удалось разобрать multipart-форму: превышен размер или повреждены данные")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := service.SubmitCodebaseRequest{
		Provider:  r.FormValue("provider"),
		ModelType: r.FormValue("modelType"),
	}

	// Размер отдельных файлов кодовой базы не ограничивается:
	// действует только суммарный лимит формы.
	var err error
	req.Files, err = readUploads(r.MultipartForm.File["files"], h.limits.MaxFiles, 0)
	if err != nil {
		writeUploadError(w, "files", err)
		return
	}
	if compliance := r.MultipartForm.File["complianceFile"]; len(compliance) > 0 {
		req.ComplianceFile, err = readUpload(compliance[0], h.limits.MaxFileSize)
		if err != nil {
			writeUploadError(w, "complianceFile", err)
			return
		}
	}

	review, err := h.codebase.Submit(r.Context(), req)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, review)
}

// GetCodebaseReview — опрос записи задания анализа кодовой базы.
// Для завершённого задания к ответу добавляется presigned URL результата.
func (h *APIHandler) GetCodebaseReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reviewId")

	review, err := h.codebase.Get(r.Context(), id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			errors.NotFound(w, "Задание не найдено")
			return
		}
		h.logger.Error("Ошибка получения задания",
			slog.String("review_id", id), slog.String("error", err.Error()))
		errors.InternalError(w, "Не удалось получить задание")
		return
	}

	resp := struct {
		*model.CodebaseReview
		ResultURL string `json:"resultUrl,omitempty"`
	}{CodebaseReview: review}

	if review.Status == status.Completed && review.ResultFileID != "" {
		url, err := h.outputs.DownloadURLByID(r.Context(), review.ResultFileID)
		if err != nil {
			// URL — удобство клиента; запись задания отдаётся и без него.
			h.logger.Warn("Не удалось сформировать URL результата",
				slog.String("review_id", id), slog.String("error", err.Error()))
		} else {
			resp.ResultURL = url
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetLatestCodebaseReview — последний завершённый анализ кодовой базы.
func (h *APIHandler) GetLatestCodebaseReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.codebase.GetMostRecent(r.Context())
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			errors.NotFound(w, "Завершённых анализов кодовой базы нет")
			return
		}
		h.logger.Error("Ошибка получения последнего анализа", slog.String("error", err.Error()))
		errors.InternalError(w, "Не удалось получить последний анализ")
		return
	}

	writeJSON(w, http.StatusOK, review)
}
