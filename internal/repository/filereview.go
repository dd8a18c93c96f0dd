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

// FileReviewRepository — доступ к записям заданий анализа файлов.
type FileReviewRepository interface {
	// Create сохраняет новую запись задания в статусе pending.
	Create(ctx context.Context, review *model.FileReview) error
	// GetByID возвращает запись по идентификатору или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.FileReview, error)
	// GetMostRecent возвращает последнюю завершённую запись или ErrNotFound.
	GetMostRecent(ctx context.Context) (*model.FileReview, error)
	// MarkProcessing переводит запись pending -> processing.
	MarkProcessing(ctx context.Context, id string) error
	// Complete переводит запись processing -> completed и записывает результаты.
	Complete(ctx context.Context, id string, results *model.FileReviewResults, resultFileID string) error
	// Fail переводит запись в failed и записывает сообщение об ошибке.
	Fail(ctx context.Context, id string, from status.Status, message string) error
}

// fileReviewRepo — реализация FileReviewRepository поверх MongoDB.
type fileReviewRepo struct {
	coll *mongo.Collection
}

// NewFileReviewRepository создаёт репозиторий заданий анализа файлов.
func NewFileReviewRepository(db *mongo.Database) FileReviewRepository {
	return &fileReviewRepo{coll: db.Collection(collFileReviews)}
}

func (r *fileReviewRepo) Create(ctx context.Context, review *model.FileReview) error {
	now := time.Now().UTC()
	review.Status = status.Pending
	review.CreatedAt = now
	review.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, review); err != nil {
		return fmt.Errorf("создание записи задания: %w", err)
	}
	return nil
}

func (r *fileReviewRepo) GetByID(ctx context.Context, id string) (*model.FileReview, error) {
	var review model.FileReview
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&review)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение записи задания: %w", err)
	}
	return &review, nil
}

// GetMostRecent возвращает самую свежую завершённую запись анализа файлов.
func (r *fileReviewRepo) GetMostRecent(ctx context.Context) (*model.FileReview, error) {
	var review model.FileReview
	err := r.coll.FindOne(ctx,
		bson.M{"status": status.Completed},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&review)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение последнего анализа файлов: %w", err)
	}
	return &review, nil
}

func (r *fileReviewRepo) MarkProcessing(ctx context.Context, id string) error {
	return transition(ctx, r.coll, id, status.Pending, status.Processing, bson.M{}, nil)
}

func (r *fileReviewRepo) Complete(ctx context.Context, id string, results *model.FileReviewResults, resultFileID string) error {
	set := bson.M{"results": results}
	if resultFileID != "" {
		set["result_file_id"] = resultFileID
	}
	// Результат и ошибка взаимоисключающие.
	return transition(ctx, r.coll, id, status.Processing, status.Completed, set,
		bson.M{"error": "", "failed_at": ""})
}

func (r *fileReviewRepo) Fail(ctx context.Context, id string, from status.Status, message string) error {
	return transition(ctx, r.coll, id, from, status.Failed,
		bson.M{"error": message, "failed_at": time.Now().UTC()},
		bson.M{"results": "", "result_file_id": ""})
}

// transition выполняет переход статуса записи в коллекции.
// Фильтр включает текущий статус: если запись успела перейти в другой
// статус, обновление не находит её, и возвращается *status.TransitionError.
func transition(ctx context.Context, coll *mongo.Collection, id string, from, to status.Status, set, unset bson.M) error {
	if err := status.Transition(from, to); err != nil {
		return err
	}

	if set == nil {
		set = bson.M{}
	}
	set["status"] = to
	set["updated_at"] = time.Now().UTC()

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := coll.UpdateOne(ctx, bson.M{"_id": id, "status": from}, update)
	if err != nil {
		return fmt.Errorf("переход статуса %s -> %s: %w", from, to, err)
	}
	if res.MatchedCount == 0 {
		// Запись отсутствует или её статус уже не from.
		var current struct {
			Status status.Status `bson:"status"`
		}
		err := coll.FindOne(ctx, bson.M{"_id": id},
			options.FindOne().SetProjection(bson.M{"status": 1})).Decode(&current)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return ErrNotFound
			}
			return fmt.Errorf("проверка статуса записи: %w", err)
		}
		return &status.TransitionError{From: current.Status, To: to}
	}
	return nil
}
