// handler.go — основной обработчик API Analysis Module.
// Объединяет health-, job- и graph-обработчики; многочастные формы
// разбираются здесь, бизнес-логика живёт в сервисном слое.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/arturkryukov/testgen/analysis-module/internal/api/errors"
	"github.com/arturkryukov/testgen/analysis-module/internal/service"
)

// Limits — ограничения на принимаемые multipart-запросы.
// Нулевое значение поля означает отсутствие соответствующего лимита.
type Limits struct {
	// MaxUpload — суммарный размер multipart-формы (байты).
	MaxUpload int64
	// MaxCodebaseUpload — суммарный размер формы анализа кодовой базы.
	MaxCodebaseUpload int64
	// MaxFileSize — размер одного файла (байты).
	MaxFileSize int64
	// MaxFiles — число файлов в основном поле формы.
	MaxFiles int
	// MaxAdditionalFiles — число файлов дополнительного контекста.
	MaxAdditionalFiles int
}

// Ошибки разбора multipart-форм.
var (
	errTooManyFiles = fmt.Errorf("слишком много файлов")
	errFileTooLarge = fmt.Errorf("файл превышает допустимый размер")
)

// APIHandler — основной обработчик API Analysis Module.
type APIHandler struct {
	health     *HealthHandler
	reviewFile *service.ReviewFileService
	codebase   *service.CodebaseService
	guidelines *service.GuidelineService
	outputs    *service.OutputsService
	graph      GraphQuerier
	limits     Limits
	logger     *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	reviewFile *service.ReviewFileService,
	codebase *service.CodebaseService,
	guidelines *service.GuidelineService,
	outputs *service.OutputsService,
	graph GraphQuerier,
	limits Limits,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:     health,
		reviewFile: reviewFile,
		codebase:   codebase,
		guidelines: guidelines,
		outputs:    outputs,
		graph:      graph,
		limits:     limits,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// maxMultipartMemory — порог хранения частей формы в памяти,
// превышение уходит во временные файлы.
const maxMultipartMemory int64 = 32 << 20

// parseMultipartForm ограничивает суммарный размер тела запроса
// через MaxBytesReader и разбирает multipart-форму. Превышение
// лимита проявляется как ошибка ParseMultipartForm.
// limit <= 0 — суммарный лимит не применяется.
func parseMultipartForm(w http.ResponseWriter, r *http.Request, limit int64) error {
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	return r.ParseMultipartForm(maxMultipartMemory)
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// readUploads читает все файлы multipart-поля в память.
// maxCount/maxSize <= 0 — соответствующий лимит не применяется.
func readUploads(headers []*multipart.FileHeader, maxCount int, maxSize int64) ([]service.FileUpload, error) {
	if maxCount > 0 && len(headers) > maxCount {
		return nil, fmt.Errorf("%w: %d > %d", errTooManyFiles, len(headers), maxCount)
	}
	uploads := make([]service.FileUpload, 0, len(headers))
	for _, fh := range headers {
		upload, err := readUpload(fh, maxSize)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, *upload)
	}
	return uploads, nil
}

// readUpload читает один файл multipart-поля в память.
func readUpload(fh *multipart.FileHeader, maxSize int64) (*service.FileUpload, error) {
	if maxSize > 0 && fh.Size > maxSize {
		return nil, fmt.Errorf("%w: %s (%d байт)", errFileTooLarge, fh.Filename, fh.Size)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &service.FileUpload{Filename: fh.Filename, Content: content}, nil
}

// writeUploadError преобразует ошибку чтения multipart-файлов в HTTP-ответ.
func writeUploadError(w http.ResponseWriter, field string, err error) {
	switch {
	case stderrors.Is(err, errFileTooLarge):
		errors.PayloadTooLarge(w, err.Error())
	case stderrors.Is(err, errTooManyFiles):
		errors.ValidationError(w, field+": "+err.Error())
	default:
		errors.ValidationError(w, "Не удалось прочитать "+field)
	}
}

// splitOptions разбирает значение selectedOptions: поддерживаются
// повторяющиеся поля формы, перечисление через запятую и
// JSON-массив строк.
func splitOptions(values []string) []string {
	var out []string
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); strings.HasPrefix(trimmed, "[") {
			var parsed []string
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				for _, item := range parsed {
					if item = strings.TrimSpace(item); item != "" {
						out = append(out, item)
					}
				}
				continue
			}
		}
		for _, item := range strings.Split(v, ",") {
			item = strings.TrimSpace(item)
			if item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
