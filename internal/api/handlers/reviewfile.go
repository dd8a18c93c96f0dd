// reviewfile.go — обработчики заданий анализа файлов.
// POST /api/v1/reviews/files         — приём задания (multipart), 202 Accepted
// GET  /api/v1/reviews/files/{id}    — опрос статуса/результата
// GET  /api/v1/reviews/files/latest  — последний завершённый анализ
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

// SubmitFileReview — приём задания анализа файлов.
//
// Multipart-поля:
//   - provider, modelType — параметры модели
//   - selectedOptions — виды результатов (повторяющееся поле или через запятую)
//   - mainFiles — основные файлы (обязательно, >= 1)
//   - complianceFile — файл требований (опционально, один)
//   - additionalFiles — дополнительный контекст (опционально)
//
// Ответ: 202 Accepted с записью задания в статусе pending.
func (h *APIHandler) SubmitFileReview(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipartForm(w, r, h.limits.MaxUpload); err != nil {
		errors.PayloadTooLarge(w, "Не удалось разобрать multipart-форму: превышен размер или повреждены данные")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := service.SubmitFileReviewRequest{
		Provider:        r.FormValue("provider"),
		ModelType:       r.FormValue("modelType"),
		SelectedOptions: splitOptions(r.MultipartForm.Value["selectedOptions"]),
	}

	var err error
	req.MainFiles, err = readUploads(r.MultipartForm.File["mainFiles"], h.limits.MaxFiles, h.limits.MaxFileSize)
	if err != nil {
		writeUploadError(w, "mainFiles", err)
		return
	}
	req.AdditionalFiles, err = readUploads(r.MultipartForm.File["additionalFiles"], h.limits.MaxAdditionalFiles, h.limits.MaxFileSize)
	if err != nil {
		writeUploadError(w, "additionalFiles", err)
		return
	}
	if compliance := r.MultipartForm.File["complianceFile"]; len(compliance) > 0 {
		req.ComplianceFile, err = readUpload(compliance[0], h.limits.MaxFileSize)
		if err != nil {
			writeUploadError(w, "complianceFile", err)
			return
		}
	}

	review, err := h.reviewFile.Submit(r.Context(), req)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, review)
}

// GetFileReview — опрос записи задания анализа файлов.
// Ошибочные задания возвращаются как 200 со status=failed:
// сам опрос успешен, ошибка — свойство задания.
func (h *APIHandler) GetFileReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reviewId")

	review, err := h.reviewFile.Get(r.Context(), id)
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

	writeJSON(w, http.StatusOK, review)
}

// GetLatestFileReview — последний завершённый анализ файлов.
func (h *APIHandler) GetLatestFileReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.reviewFile.GetMostRecent(r.Context())
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			errors.NotFound(w, "Завершённых анализов файлов нет")
			return
		}
		h.logger.Error("Ошибка получения последнего анализа", slog.String("error", err.Error()))
		errors.InternalError(w, "Не удалось получить последний анализ")
		return
	}

	writeJSON(w, http.StatusOK, review)
}

// writeSubmitError преобразует ошибки сервисного слоя в HTTP-ответы.
func (h *APIHandler) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, service.ErrBadProvider),
		stderrors.Is(err, service.ErrBadModel),
		stderrors.Is(err, service.ErrBadOption),
		stderrors.Is(err, service.ErrNoFiles):
		errors.ValidationError(w, err.Error())
	default:
		h.logger.Error("Ошибка приёма задания", slog.String("error", err.Error()))
		errors.InternalError(w, "Не удалось принять задание")
	}
}
