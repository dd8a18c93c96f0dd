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

// SubmitCodebaseRequest — параметры задания анализа кодовой базы.
type SubmitCodebaseRequest struct {
	Provider       string
	ModelType      string
	Files          []FileUpload
	ComplianceFile *FileUpload
}

// CodebaseRepo — операции репозитория, используемые сервисом.
type CodebaseRepo interface {
	Create(ctx context.Context, review *model.CodebaseReview) error
	GetByID(ctx context.Context, id string) (*model.CodebaseReview, error)
	GetMostRecent(ctx context.Context) (*model.CodebaseReview, error)
	MarkProcessing(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, result *model.CodebaseResult, resultFileID string) error
	Fail(ctx context.Context, id string, from status.Status, message string) error
}

// CodebaseService — конвейер анализа кодовой базы. Анализатор строит
// описание структуры и граф знаний; граф попадает в Neo4j на стороне
// анализатора, текстовые артефакты — в blob-хранилище.
type CodebaseService struct {
	repo    CodebaseRepo
	store   BlobStore
	invoker AnalyzerInvoker
	runner  *TaskRunner
	logger  *slog.Logger
}

// NewCodebaseService создаёт CodebaseService.
func NewCodebaseService(repo CodebaseRepo, store BlobStore, invoker AnalyzerInvoker, runner *TaskRunner, logger *slog.Logger) *CodebaseService {
	return &CodebaseService{
		repo:    repo,
		store:   store,
		invoker: invoker,
		runner:  runner,
		logger:  logger.With(slog.String("component", "codebase-service")),
	}
}

// Submit валидирует задание, сохраняет файлы кодовой базы и запускает
// фоновый анализ. Возвращает созданную запись в статусе pending.
func (s *CodebaseService) Submit(ctx context.Context, req SubmitCodebaseRequest) (*model.CodebaseReview, error) {
	if err := validateJobParams(req.Provider, req.ModelType); err != nil {
		return nil, err
	}
	if len(req.Files) == 0 {
		return nil, ErrNoFiles
	}

	reviewID := uuid.NewString()
	prefix := "analyses/" + reviewID

	review := &model.CodebaseReview{
		ID:        reviewID,
		Provider:  req.Provider,
		ModelType: req.ModelType,
	}

	g, gctx := errgroup.WithContext(ctx)
	review.Files = make([]model.FileDescriptor, len(req.Files))
	for i, f := range req.Files {
		g.Go(func() error {
			saved, err := s.store.SaveContent(gctx, prefix+"/sources", f.Filename, "text/plain", bytes.NewReader(f.Content))
			if err != nil {
				return err
			}
			review.Files[i] = model.FileDescriptor{Filename: f.Filename, StorageKey: saved.S3Key}
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
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("сохранение файлов кодовой базы: %w", err)
	}
	stagedFilesTotal.WithLabelValues("codebase").Add(float64(len(req.Files)))

	if err := s.repo.Create(ctx, review); err != nil {
		return nil, err
	}

	if !s.runner.Go("codebase", func(taskCtx context.Context) {
		s.process(taskCtx, review, req)
	}) {
		s.logger.Warn("Фоновая задача не принята: сервис останавливается",
			slog.String("review_id", reviewID))
	}

	s.logger.Info("Задание анализа кодовой базы принято",
		slog.String("review_id", reviewID),
		slog.Int("files", len(req.Files)))
	return review, nil
}

func (s *CodebaseService) process(ctx context.Context, review *model.CodebaseReview, req SubmitCodebaseRequest) {
	start := time.Now()
	logger := s.logger.With(slog.String("review_id", review.ID))

	if err := s.repo.MarkProcessing(ctx, review.ID); err != nil {
		logger.Error("Не удалось перевести задание в processing", slog.String("error", err.Error()))
		return
	}

	payload := map[string]any{
		"task":     "codebase_analysis",
		"provider": review.Provider,
		"model":    review.ModelType,
		"files":    toPayloadFiles(req.Files),
	}
	if req.ComplianceFile != nil {
		payload["compliance_file"] = analysisPayloadFile{
			Filename: req.ComplianceFile.Filename,
			Content:  string(req.ComplianceFile.Content),
		}
	}

	raw, err := s.invoker.InvokeStdio(ctx, payload)
	if err != nil {
		s.fail(ctx, logger, review.ID, err)
		return
	}

	var parsed struct {
		Result *model.CodebaseResult `json:"result"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Result == nil {
		s.fail(ctx, logger, review.ID, fmt.Errorf("разбор результата анализа: %w", err))
		return
	}

	// Текстовые артефакты сохраняются как отдельные blob'ы.
	prefix := "analyses/" + review.ID
	result := parsed.Result
	if result.Content.CodebaseStructure != "" {
		saved, err := s.store.SaveContent(ctx, prefix, "codebase_structure.md", "text/markdown",
			bytes.NewReader([]byte(result.Content.CodebaseStructure)))
		if err != nil {
			s.fail(ctx, logger, review.ID, fmt.Errorf("сохранение артефакта: %w", err))
			return
		}
		result.Files = append(result.Files, saved.S3Key)
	}
	if result.Content.KnowledgeGraph != "" {
		saved, err := s.store.SaveContent(ctx, prefix, "knowledge_graph.json", "application/json",
			bytes.NewReader([]byte(result.Content.KnowledgeGraph)))
		if err != nil {
			s.fail(ctx, logger, review.ID, fmt.Errorf("сохранение артефакта: %w", err))
			return
		}
		result.Files = append(result.Files, saved.S3Key)
	}

	resultMeta, err := s.store.SaveContent(ctx, prefix, "result.json", "application/json", bytes.NewReader(raw))
	if err != nil {
		s.fail(ctx, logger, review.ID, fmt.Errorf("сохранение результата: %w", err))
		return
	}

	if err := s.repo.Complete(ctx, review.ID, result, resultMeta.ID); err != nil {
		logger.Error("Не удалось зафиксировать результат", slog.String("error", err.Error()))
		return
	}

	analysesTotal.WithLabelValues("codebase", "completed").Inc()
	analysisDuration.WithLabelValues("codebase").Observe(time.Since(start).Seconds())
	logger.Info("Анализ кодовой базы завершён", slog.Duration("duration", time.Since(start)))
}

func (s *CodebaseService) fail(ctx context.Context, logger *slog.Logger, id string, cause error) {
	analysesTotal.WithLabelValues("codebase", "failed").Inc()
	logger.Error("Анализ кодовой базы завершился ошибкой", slog.String("error", cause.Error()))
	if err := s.repo.Fail(ctx, id, status.Processing, cause.Error()); err != nil {
		logger.Error("Не удалось зафиксировать ошибку задания", slog.String("error", err.Error()))
	}
	saveErrorBlob(ctx, s.store, logger, "analyses/"+id, cause)
}

// Get возвращает запись задания по идентификатору.
func (s *CodebaseService) Get(ctx context.Context, id string) (*model.CodebaseReview, error) {
	return s.repo.GetByID(ctx, id)
}

// GetMostRecent возвращает последний завершённый анализ кодовой базы.
func (s *CodebaseService) GetMostRecent(ctx context.Context) (*model.CodebaseReview, error) {
	return s.repo.GetMostRecent(ctx)
}
