package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/arturkryukov/testgen/analysis-module/internal/domain/model"
	"github.com/arturkryukov/testgen/analysis-module/internal/domain/status"
)

// CodebaseReviewRepository — доступ к записям заданий анализа кодовой базы.
type CodebaseReviewRepository interface {
	// Create сохраняет новую запись задания в статусе pending.
	Create(ctx context.Context, review *model.CodebaseReview) error
	// GetByID возвращает запись по идентификатору или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.CodebaseReview, error)
	// GetMostRecent возвращает последнюю завершённую запись или ErrNotFound.
	GetMostRecent(ctx context.Context) (*model.CodebaseReview, error)
	// MarkProcessing переводит запись pending -> processing.
	MarkProcessing(ctx context.Context, id string) error
	// Complete переводит запись processing -> completed и записывает результат.
	Complete(ctx context.Context, id string, result *model.CodebaseResult, resultFileID string) error
	// Fail переводит запись в failed и записывает сообщение об ошибке.
	Fail(ctx context.Context, id string, from status.Status, message string) error
}

// codebaseReviewRepo — реализация CodebaseReviewRepository поверх MongoDB.
type codebaseReviewRepo struct {
	coll *mongo.Collection
}

// NewCodebaseReviewRepository создаёт репозиторий заданий анализа кодовой базы.
func NewCodebaseReviewRepository(db *mongo.Database) CodebaseReviewRepository {
	return &codebaseReviewRepo{coll: db.Collection(collCodebaseReviews)}
}

func (r *codebaseReviewRepo) Create(ctx context.Context, review *model.CodebaseReview) error {
	now := time.Now().UTC()
	review.Status = status.Pending
	review.CreatedAt = now
	review.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, review); err != nil {
		return fmt.Errorf("создание записи задания: %w", err)
	}
	return nil
}

func (r *codebaseReviewRepo) GetByID(ctx context.Context, id string) (*model.CodebaseReview, error) {
	var review model.CodebaseReview
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&review)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение записи задания: %w", err)
	}
	return &review, nil
}

// GetMostRecent возвращает самую свежую завершённую запись анализа
// кодовой базы. Используется graph-ручками: граф знаний строится
// по последнему успешному анализу.
func (r *codebaseReviewRepo) GetMostRecent(ctx context.Context) (*model.CodebaseReview, error) {
	var review model.CodebaseReview
	err := r.coll.FindOne(ctx,
		bson.M{"status": status.Completed},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&review)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение последнего анализа: %w", err)
	}
	return &review, nil
}

func (r *codebaseReviewRepo) MarkProcessing(ctx context.Context, id string) error {
	return transition(ctx, r.coll, id, status.Pending, status.Processing, bson.M{}, nil)
}

func (r *codebaseReviewRepo) Complete(ctx context.Context, id string, result *model.CodebaseResult, resultFileID string) error {
	set := bson.M{"result": result}
	if resultFileID != "" {
		set["result_file_id"] = resultFileID
	}
	return transition(ctx, r.coll, id, status.Processing, status.Completed, set,
		bson.M{"error": "", "failed_at": ""})
}

func (r *codebaseReviewRepo) Fail(ctx context.Context, id string, from status.Status, message string) error {
	return transition(ctx, r.coll, id, from, status.Failed,
		bson.M{"error": message, "failed_at": time.Now().UTC()},
		bson.M{"result": "", "result_file_id": ""})
}
