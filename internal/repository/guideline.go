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

// GuidelineRepository — доступ к записям заданий генерации guideline.
type GuidelineRepository interface {
	// Create сохраняет новую запись задания в статусе pending.
	Create(ctx context.Context, g *model.Guideline) error
	// GetByID возвращает запись по идентификатору или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.Guideline, error)
	// GetMostRecent возвращает последний завершённый guideline или ErrNotFound.
	GetMostRecent(ctx context.Context) (*model.Guideline, error)
	// MarkProcessing переводит запись pending -> processing.
	MarkProcessing(ctx context.Context, id string) error
	// Complete переводит запись processing -> completed и записывает результат.
	Complete(ctx context.Context, id string, result, docFileID string) error
	// Fail переводит запись в failed и записывает сообщение об ошибке.
	Fail(ctx context.Context, id string, from status.Status, message string) error
}

// guidelineRepo — реализация GuidelineRepository поверх MongoDB.
type guidelineRepo struct {
	coll *mongo.Collection
}

// NewGuidelineRepository создаёт репозиторий guideline-заданий.
func NewGuidelineRepository(db *mongo.Database) GuidelineRepository {
	return &guidelineRepo{coll: db.Collection(collGuidelines)}
}

func (r *guidelineRepo) Create(ctx context.Context, g *model.Guideline) error {
	now := time.Now().UTC()
	g.Status = status.Pending
	g.CreatedAt = now
	g.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, g); err != nil {
		return fmt.Errorf("создание записи задания: %w", err)
	}
	return nil
}

func (r *guidelineRepo) GetByID(ctx context.Context, id string) (*model.Guideline, error) {
	var g model.Guideline
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&g)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение записи задания: %w", err)
	}
	return &g, nil
}

func (r *guidelineRepo) GetMostRecent(ctx context.Context) (*model.Guideline, error) {
	var g model.Guideline
	err := r.coll.FindOne(ctx,
		bson.M{"status": status.Completed},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&g)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение последнего guideline: %w", err)
	}
	return &g, nil
}

func (r *guidelineRepo) MarkProcessing(ctx context.Context, id string) error {
	return transition(ctx, r.coll, id, status.Pending, status.Processing, bson.M{}, nil)
}

func (r *guidelineRepo) Complete(ctx context.Context, id string, result, docFileID string) error {
	set := bson.M{"result": result}
	if docFileID != "" {
		set["doc_file_id"] = docFileID
	}
	return transition(ctx, r.coll, id, status.Processing, status.Completed, set,
		bson.M{"error": "", "failed_at": ""})
}

func (r *guidelineRepo) Fail(ctx context.Context, id string, from status.Status, message string) error {
	return transition(ctx, r.coll, id, from, status.Failed,
		bson.M{"error": message, "failed_at": time.Now().UTC()},
		bson.M{"result": "", "doc_file_id": ""})
}
