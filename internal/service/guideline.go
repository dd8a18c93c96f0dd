package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arturkryukov/testgen/analysis-module/internal/domain/model"
	"github.com/arturkryukov/testgen/analysis-module/internal/domain/status"
)

// SubmitGuidelineRequest — параметры задания генерации guideline.
type SubmitGuidelineRequest struct {
	Provider  string
	ModelType string
	Files     []FileUpload
}

// GuidelineRepo — операции репозитория, используемые сервисом.
type GuidelineRepo interface {
	Create(ctx context.Context, g *model.Guideline) error
	GetByID(ctx context.Context, id string) (*model.Guideline, error)
	GetMostRecent(ctx context.Context) (*model.Guideline, error)
	MarkProcessing(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, result, docFileID string) error
	Fail(ctx context.Context, id string, from status.Status, message string) error
}

// GuidelineService — конвейер генерации guideline-документа по
// образцам кода. Анализатор работает в потоковом режиме: payload
// на stdin, markdown-документ внутри JSON со stdout.
type GuidelineService struct {
	repo    GuidelineRepo
	store   BlobStore
	invoker AnalyzerInvoker
	runner  *TaskRunner
	logger  *slog.Logger
}

// NewGuidelineService создаёт GuidelineService.
func NewGuidelineService(repo GuidelineRepo, store BlobStore, invoker AnalyzerInvoker, runner *TaskRunner, logger *slog.Logger) *GuidelineService {
	return &GuidelineService{
		repo:    repo,
		store:   store,
		invoker: invoker,
		runner:  runner,
		logger:  logger.With(slog.String("component", "guideline-service")),
	}
}

// Submit валидирует задание, сохраняет исходные файлы и запускает
// фоновую генерацию. Возвращает созданную запись в статусе pending.
func (s *GuidelineService) Submit(ctx context.Context, req SubmitGuidelineRequest) (*model.Guideline, error) {
	if err := validateJobParams(req.Provider, req.ModelType); err != nil {
		return nil, err
	}
	if len(req.Files) == 0 {
		return nil, ErrNoFiles
	}

	guidelineID := uuid.NewString()
	prefix := "guidelines/" + guidelineID

	g := &model.Guideline{
		ID:        guidelineID,
		Provider:  req.Provider,
		ModelType: req.ModelType,
	}

	eg, gctx := errgroup.WithContext(ctx)
	g.Files = make([]model.FileDescriptor, len(req.Files))
	for i, f := range req.Files {
		eg.Go(func() error {
			saved, err := s.store.SaveContent(gctx, prefix+"/sources", f.Filename, "text/plain", bytes.NewReader(f.Content))
			if err != nil {
				return err
			}
			g.Files[i] = model.FileDescriptor{Filename: f.Filename, StorageKey: saved.S3Key}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("сохранение файлов задания: %w", err)
	}
	stagedFilesTotal.WithLabelValues("guideline").Add(float64(len(req.Files)))

	if err := s.repo.Create(ctx, g); err != nil {
		return nil, err
	}

	if !s.runner.Go("guideline", func(taskCtx context.Context) {
		s.process(taskCtx, g, req)
	}) {
		s.logger.Warn("Фоновая задача не принята: сервис останавливается",
			slog.String("guideline_id", guidelineID))
	}

	s.logger.Info("Задание генерации guideline принято",
		slog.String("guideline_id", guidelineID),
		slog.Int("files", len(req.Files)))
	return g, nil
}

func (s *GuidelineService) process(ctx context.Context, g *model.Guideline, req SubmitGuidelineRequest) {
	start := time.Now()
	logger := s.logger.With(slog.String("guideline_id", g.ID))

	if err := s.repo.MarkProcessing(ctx, g.ID); err != nil {
		logger.Error("Не удалось перевести задание в processing", slog.String("error", err.Error()))
		return
	}

	payload := map[string]any{
		"task":     "guideline",
		"provider": g.Provider,
		"model":    g.ModelType,
		"files":    toPayloadFiles(req.Files),
	}

	raw, err := s.invoker.InvokeStdio(ctx, payload)
	if err != nil {
		s.fail(ctx, logger, g.ID, err)
		return
	}

	var parsed struct {
		Guideline string `json:"guideline"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Guideline == "" {
		s.fail(ctx, logger, g.ID, fmt.Errorf("разбор результата генерации: %w", err))
		return
	}

	// Документ сохраняется как markdown-blob для скачивания.
	docMeta, err := s.store.SaveContent(ctx, "guidelines/"+g.ID, "guideline.md", "text/markdown",
		bytes.NewReader([]byte(parsed.Guideline)))
	if err != nil {
		s.fail(ctx, logger, g.ID, fmt.Errorf("сохранение документа: %w", err))
		return
	}

	if err := s.repo.Complete(ctx, g.ID, parsed.Guideline, docMeta.ID); err != nil {
		logger.Error("Не удалось зафиксировать результат", slog.String("error", err.Error()))
		return
	}

	analysesTotal.WithLabelValues("guideline", "completed").Inc()
	analysisDuration.WithLabelValues("guideline").Observe(time.Since(start).Seconds())
	logger.Info("Генерация guideline завершена", slog.Duration("duration", time.Since(start)))
}

func (s *GuidelineService) fail(ctx context.Context, logger *slog.Logger, id string, cause error) {
	analysesTotal.WithLabelValues("guideline", "failed").Inc()
	logger.Error("Генерация guideline завершилась ошибкой", slog.String("error", cause.Error()))
	if err := s.repo.Fail(ctx, id, status.Processing, cause.Error()); err != nil {
		logger.Error("Не удалось зафиксировать ошибку задания", slog.String("error", err.Error()))
	}
	saveErrorBlob(ctx, s.store, logger, "guidelines/"+id, cause)
}

// Get возвращает запись задания по идентификатору.
func (s *GuidelineService) Get(ctx context.Context, id string) (*model.Guideline, error) {
	return s.repo.GetByID(ctx, id)
}

// GetMostRecent возвращает последний завершённый guideline.
func (s *GuidelineService) GetMostRecent(ctx context.Context) (*model.Guideline, error) {
	return s.repo.GetMostRecent(ctx)
}
