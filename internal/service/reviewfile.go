package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arturkryukov/testgen/analysis-module/internal/domain/model"
	"github.com/arturkryukov/testgen/analysis-module/internal/domain/status"
	"github.com/arturkryukov/testgen/analysis-module/internal/storage/filestore"
)

// Ошибки валидации заданий.
var (
	// ErrNoFiles — задание без файлов.
	ErrNoFiles = fmt.Errorf("задание не содержит файлов")
	// ErrBadProvider — провайдер вне закрытого перечня.
	ErrBadProvider = fmt.Errorf("неизвестный провайдер")
	// ErrBadModel — модель не допустима для провайдера.
	ErrBadModel = fmt.Errorf("модель не поддерживается провайдером")
	// ErrBadOption — неизвестный вид результата.
	ErrBadOption = fmt.Errorf("неизвестный вид результата")
)

// FileUpload — файл, принятый из multipart-запроса.
type FileUpload struct {
	Filename string
	Content  []byte
}

// SubmitFileReviewRequest — параметры задания анализа файлов.
type SubmitFileReviewRequest struct {
	Provider        string
	ModelType       string
	SelectedOptions []string
	MainFiles       []FileUpload
	ComplianceFile  *FileUpload
	AdditionalFiles []FileUpload
}

// BlobStore — операции blob-хранилища, используемые сервисами.
// GetDownloadURL разрешает файл по идентификатору записи метаданных,
// GetDownloadURLForKey — по ключу объекта в бакете.
type BlobStore interface {
	SaveContent(ctx context.Context, subfolder, filename, contentType string, content io.Reader) (*filestore.MetaItem, error)
	GetDownloadURL(ctx context.Context, id string) (string, error)
	GetDownloadURLForKey(ctx context.Context, key string) (string, error)
	ReadText(ctx context.Context, key string) (string, error)
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)
}

// AnalyzerInvoker — запуск анализатора, используемый сервисами.
type AnalyzerInvoker interface {
	InvokeFile(ctx context.Context, payload any, extraArgs ...string) (json.RawMessage, error)
	InvokeStdio(ctx context.Context, payload any, extraArgs ...string) (json.RawMessage, error)
}

// analysisPayloadFile — файл в составе payload для анализатора.
type analysisPayloadFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// ReviewFileService — конвейер анализа файлов:
// приём задания -> staging файлов -> фоновый запуск анализатора ->
// фиксация результата в записи задания и blob-хранилище.
type ReviewFileService struct {
	repo    FileReviewRepo
	store   BlobStore
	invoker AnalyzerInvoker
	runner  *TaskRunner
	logger  *slog.Logger
}

// FileReviewRepo — операции репозитория, используемые сервисом.
type FileReviewRepo interface {
	Create(ctx context.Context, review *model.FileReview) error
	GetByID(ctx context.Context, id string) (*model.FileReview, error)
	GetMostRecent(ctx context.Context) (*model.FileReview, error)
	MarkProcessing(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, results *model.FileReviewResults, resultFileID string) error
	Fail(ctx context.Context, id string, from status.Status, message string) error
}

// NewReviewFileService создаёт ReviewFileService.
func NewReviewFileService(repo FileReviewRepo, store BlobStore, invoker AnalyzerInvoker, runner *TaskRunner, logger *slog.Logger) *ReviewFileService {
	return &ReviewFileService{
		repo:    repo,
		store:   store,
		invoker: invoker,
		runner:  runner,
		logger:  logger.With(slog.String("component", "reviewfile-service")),
	}
}

// Submit валидирует задание, сохраняет файлы, создаёт запись в статусе
// pending и запускает фоновый анализ. Возвращает созданную запись;
// клиент опрашивает её статус по идентификатору.
func (s *ReviewFileService) Submit(ctx context.Context, req SubmitFileReviewRequest) (*model.FileReview, error) {
	if err := validateJobParams(req.Provider, req.ModelType); err != nil {
		return nil, err
	}
	if len(req.MainFiles) == 0 {
		return nil, ErrNoFiles
	}
	options := make([]model.OutputType, 0, len(req.SelectedOptions))
	for _, opt := range req.SelectedOptions {
		if !model.ValidOutputType(opt) {
			return nil, fmt.Errorf("%w: %s", ErrBadOption, opt)
		}
		options = append(options, model.OutputType(opt))
	}
	if len(options) == 0 {
		options = []model.OutputType{model.OutputReview}
	}

	reviewID := uuid.NewString()
	prefix := "reviews/" + reviewID

	// Staging файлов в blob-хранилище.
	review := &model.FileReview{
		ID:              reviewID,
		Provider:        req.Provider,
		ModelType:       req.ModelType,
		SelectedOptions: options,
	}

	g, gctx := errgroup.WithContext(ctx)
	review.MainFiles = make([]model.FileDescriptor, len(req.MainFiles))
	for i, f := range req.MainFiles {
		g.Go(func() error {
			saved, err := s.store.SaveContent(gctx, prefix+"/main", f.Filename, "text/plain", bytes.NewReader(f.Content))
			if err != nil {
				return err
			}
			review.MainFiles[i] = model.FileDescriptor{Filename: f.Filename, StorageKey: saved.S3Key}
			return nil
		})
	}
	if req.ComplianceFile != nil {
		g.Go(func() error {
			saved, err := s.store.SaveContent(gctx, prefix+"/compliance", req.ComplianceFile.Filename, "text/plain", bytes.NewReader(req.ComplianceFile.Content))
			if err != nil {
				return err
			}
			review.ComplianceFile = &model.FileDescriptor{Filename: req.ComplianceFile.Filename, StorageKey: saved.S3Key}
			return nil
		})
	}
	review.AdditionalFiles = make([]model.FileDescriptor, len(req.AdditionalFiles))
	for i, f := range req.AdditionalFiles {
		g.Go(func() error {
			saved, err := s.store.SaveContent(gctx, prefix+"/additional", f.Filename, "text/plain", bytes.NewReader(f.Content))
			if err != nil {
				return err
			}
			review.AdditionalFiles[i] = model.FileDescriptor{Filename: f.Filename, StorageKey: saved.S3Key}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("сохранение файлов задания: %w", err)
	}
	stagedFilesTotal.WithLabelValues("file_review").Add(float64(len(req.MainFiles) + len(req.AdditionalFiles)))

	if err := s.repo.Create(ctx, review); err != nil {
		return nil, err
	}

	if !s.runner.Go("file_review", func(taskCtx context.Context) {
		s.process(taskCtx, review, req)
	}) {
		// Сервис останавливается; запись остаётся pending и будет
		// видна клиенту как незавершённая.
		s.logger.Warn("Фоновая задача не принята: сервис останавливается",
			slog.String("review_id", reviewID))
	}

	s.logger.Info("Задание анализа файлов принято",
		slog.String("review_id", reviewID),
		slog.String("provider", req.Provider),
		slog.Int("main_files", len(req.MainFiles)))
	return review, nil
}

// process выполняет анализ в фоне и фиксирует исход в записи задания.
func (s *ReviewFileService) process(ctx context.Context, review *model.FileReview, req SubmitFileReviewRequest) {
	start := time.Now()
	logger := s.logger.With(slog.String("review_id", review.ID))

	if err := s.repo.MarkProcessing(ctx, review.ID); err != nil {
		logger.Error("Не удалось перевести задание в processing", slog.String("error", err.Error()))
		return
	}

	payload := map[string]any{
		"task":             "file_review",
		"provider":         review.Provider,
		"model":            review.ModelType,
		"selected_options": review.SelectedOptions,
		"main_files":       toPayloadFiles(req.MainFiles),
		"additional_files": toPayloadFiles(req.AdditionalFiles),
	}
	if req.ComplianceFile != nil {
		payload["compliance_file"] = analysisPayloadFile{
			Filename: req.ComplianceFile.Filename,
			Content:  string(req.ComplianceFile.Content),
		}
	}

	raw, err := s.invoker.InvokeFile(ctx, payload)
	if err != nil {
		s.fail(ctx, logger, review.ID, err)
		return
	}

	var results model.FileReviewResults
	if err := json.Unmarshal(raw, &struct {
		Results *model.FileReviewResults `json:"results"`
	}{&results}); err != nil {
		s.fail(ctx, logger, review.ID, fmt.Errorf("разбор результата анализа: %w", err))
		return
	}

	// Результат сохраняется и как blob для последующего скачивания.
	resultMeta, err := s.store.SaveContent(ctx, "reviews/"+review.ID, "result.json", "application/json", bytes.NewReader(raw))
	if err != nil {
		s.fail(ctx, logger, review.ID, fmt.Errorf("сохранение результата: %w", err))
		return
	}

	if err := s.repo.Complete(ctx, review.ID, &results, resultMeta.ID); err != nil {
		logger.Error("Не удалось зафиксировать результат", slog.String("error", err.Error()))
		return
	}

	analysesTotal.WithLabelValues("file_review", "completed").Inc()
	analysisDuration.WithLabelValues("file_review").Observe(time.Since(start).Seconds())
	logger.Info("Анализ файлов завершён", slog.Duration("duration", time.Since(start)))
}

func (s *ReviewFileService) fail(ctx context.Context, logger *slog.Logger, id string, cause error) {
	analysesTotal.WithLabelValues("file_review", "failed").Inc()
	logger.Error("Анализ файлов завершился ошибкой", slog.String("error", cause.Error()))
	if err := s.repo.Fail(ctx, id, status.Processing, cause.Error()); err != nil {
		logger.Error("Не удалось зафиксировать ошибку задания", slog.String("error", err.Error()))
	}
	saveErrorBlob(ctx, s.store, logger, "reviews/"+id, cause)
}

// Get возвращает запись задания по идентификатору.
func (s *ReviewFileService) Get(ctx context.Context, id string) (*model.FileReview, error) {
	return s.repo.GetByID(ctx, id)
}

// GetMostRecent возвращает последний завершённый анализ файлов.
func (s *ReviewFileService) GetMostRecent(ctx context.Context) (*model.FileReview, error) {
	return s.repo.GetMostRecent(ctx)
}

// validateJobParams проверяет провайдера и модель по закрытому перечню.
func validateJobParams(provider, modelType string) error {
	if !model.ValidProvider(provider) {
		return fmt.Errorf("%w: %s", ErrBadProvider, provider)
	}
	if !model.ValidModel(provider, modelType) {
		return fmt.Errorf("%w: %s/%s", ErrBadModel, provider, modelType)
	}
	return nil
}

func toPayloadFiles(files []FileUpload) []analysisPayloadFile {
	out := make([]analysisPayloadFile, 0, len(files))
	for _, f := range files {
		out = append(out, analysisPayloadFile{Filename: f.Filename, Content: string(f.Content)})
	}
	return out
}
