// Пакет repository — слой доступа к записям заданий анализа в MongoDB.
// Каждый вид задания (file review, codebase review, guideline) хранится
// в отдельной коллекции. Переходы статусов валидируются машиной
// переходов и выполняются атомарно: фильтр обновления включает
// текущий статус, поэтому конкурирующий переход не затирает результат.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
)

// connectTimeout — таймаут установления соединения с MongoDB.
const connectTimeout = 10 * time.Second

// Имена коллекций.
const (
	collFileReviews     = "filereviews"
	collCodebaseReviews = "codebasereviews"
	collGuidelines      = "guidelines"
)

// Connect устанавливает соединение с MongoDB и проверяет его ping'ом.
// Закрытие соединения — обязанность вызывающего (client.Disconnect).
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("подключение к MongoDB: %w", err)
	}

	if err := client.Ping(connCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("проверка соединения с MongoDB: %w", err)
	}

	return client, client.Database(database), nil
}
