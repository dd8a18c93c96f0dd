// Пакет filestore — слой хранения файлов: содержимое в S3,
// метаданные в DynamoDB. Для каждого сохранённого объекта создаётся
// запись метаданных, позволяющая находить файлы по атрибутам без
// обхода бакета.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// ErrNotFound — объект не найден в хранилище.
var ErrNotFound = errors.New("объект не найден")

// defaultURLExpiry — время жизни presigned URL по умолчанию.
const defaultURLExpiry = 3600 * time.Second

// S3API — операции S3, используемые хранилищем.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// PresignAPI — генерация presigned URL.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// DynamoDBAPI — операции DynamoDB, используемые хранилищем.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// MetaItem — запись метаданных файла в DynamoDB.
type MetaItem struct {
	// ID — уникальный идентификатор записи метаданных
	ID string `dynamodbav:"id"`
	// S3Key — ключ объекта в бакете
	S3Key string `dynamodbav:"s3_key"`
	// Filename — оригинальное имя файла
	Filename string `dynamodbav:"filename"`
	// Timestamp — время сохранения (RFC 3339)
	Timestamp string `dynamodbav:"timestamp"`
	// Bucket — имя бакета
	Bucket string `dynamodbav:"bucket"`
	// Kind — тип записи (всегда "file")
	Kind string `dynamodbav:"type"`
}

// Store — хранилище файлов поверх S3 и DynamoDB.
type Store struct {
	s3      S3API
	presign PresignAPI
	ddb     DynamoDBAPI
	bucket  string
	table   string
	expiry  time.Duration
	logger  *slog.Logger
}

// New создаёт Store. urlExpiry — время жизни presigned URL
// (0 — значение по умолчанию, 1 час).
func New(s3c S3API, presign PresignAPI, ddb DynamoDBAPI, bucket, table string, urlExpiry time.Duration, logger *slog.Logger) *Store {
	if urlExpiry <= 0 {
		urlExpiry = defaultURLExpiry
	}
	return &Store{
		s3:      s3c,
		presign: presign,
		ddb:     ddb,
		bucket:  bucket,
		table:   table,
		expiry:  urlExpiry,
		logger:  logger.With(slog.String("component", "filestore")),
	}
}

// buildKey собирает ключ объекта из подкаталога и имени файла.
// Ведущий слэш отбрасывается: ключи в бакете не начинаются с "/".
func buildKey(subfolder, filename string) string {
	key := subfolder + "/" + filename
	return strings.TrimPrefix(key, "/")
}

// SaveContent сохраняет содержимое в S3 и создаёт запись метаданных.
// Возвращает созданную запись: её ID — идентификатор для
// GetDownloadURL, S3Key — ключ объекта в бакете.
func (s *Store) SaveContent(ctx context.Context, subfolder, filename, contentType string, content io.Reader) (*MetaItem, error) {
	key := buildKey(subfolder, filename)

	_, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        content,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("запись объекта %s: %w", key, err)
	}

	item := MetaItem{
		ID:        uuid.NewString(),
		S3Key:     key,
		Filename:  filename,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Bucket:    s.bucket,
		Kind:      "file",
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("сериализация метаданных: %w", err)
	}
	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		// Объект уже в бакете; запись метаданных не удалась.
		s.logger.Error("Не удалось сохранить метаданные файла",
			slog.String("key", key), slog.String("error", err.Error()))
		return nil, fmt.Errorf("сохранение метаданных %s: %w", key, err)
	}

	s.logger.Debug("Файл сохранён",
		slog.String("id", item.ID), slog.String("key", key),
		slog.String("bucket", s.bucket))
	return &item, nil
}

// GetMetadata возвращает запись метаданных по её идентификатору.
// Если запись отсутствует — ErrNotFound.
func (s *Store) GetMetadata(ctx context.Context, id string) (*MetaItem, error) {
	out, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]ddbtypes.AttributeValue{
			"id": &ddbtypes.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("чтение метаданных %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var item MetaItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("разбор записи метаданных %s: %w", id, err)
	}
	return &item, nil
}

// GetDownloadURL возвращает presigned URL для скачивания файла
// по идентификатору записи метаданных. Если запись отсутствует —
// ErrNotFound.
func (s *Store) GetDownloadURL(ctx context.Context, id string) (string, error) {
	item, err := s.GetMetadata(ctx, id)
	if err != nil {
		return "", err
	}
	return s.presignKey(ctx, item.S3Key)
}

// GetDownloadURLForKey возвращает presigned URL для скачивания объекта
// по его ключу в бакете. Если объект отсутствует — ErrNotFound.
func (s *Store) GetDownloadURLForKey(ctx context.Context, key string) (string, error) {
	_, err := s.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *s3types.NotFound
		if errors.As(err, &nf) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("проверка объекта %s: %w", key, err)
	}
	return s.presignKey(ctx, key)
}

// presignKey генерирует presigned URL для объекта бакета.
func (s *Store) presignKey(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = s.expiry
	})
	if err != nil {
		return "", fmt.Errorf("генерация presigned URL для %s: %w", key, err)
	}
	return req.URL, nil
}

// ReadText читает объект целиком и возвращает его как строку.
func (s *Store) ReadText(ctx context.Context, key string) (string, error) {
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("чтение объекта %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("чтение тела объекта %s: %w", key, err)
	}
	return string(data), nil
}

// ListByPrefix возвращает ключи объектов с указанным префиксом.
func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("листинг префикса %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	return keys, nil
}

// FindByAttribute ищет записи метаданных по значению атрибута.
// Scan постраничный: таблица обходится до исчерпания LastEvaluatedKey,
// результаты накапливаются.
func (s *Store) FindByAttribute(ctx context.Context, attr, value string) ([]MetaItem, error) {
	var items []MetaItem
	var startKey map[string]ddbtypes.AttributeValue

	for {
		out, err := s.ddb.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.table),
			FilterExpression: aws.String("#a = :v"),
			ExpressionAttributeNames: map[string]string{
				"#a": attr,
			},
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":v": &ddbtypes.AttributeValueMemberS{Value: value},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("поиск метаданных по %s: %w", attr, err)
		}

		for _, raw := range out.Items {
			var item MetaItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("разбор записи метаданных: %w", err)
			}
			items = append(items, item)
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	if items == nil {
		items = []MetaItem{}
	}
	return items, nil
}

// Delete удаляет объект из бакета и его запись метаданных по id.
func (s *Store) Delete(ctx context.Context, key, metaID string) error {
	_, err := s.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("удаление объекта %s: %w", key, err)
	}
	if metaID != "" {
		_, err = s.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.table),
			Key: map[string]ddbtypes.AttributeValue{
				"id": &ddbtypes.AttributeValueMemberS{Value: metaID},
			},
		})
		if err != nil {
			return fmt.Errorf("удаление метаданных %s: %w", metaID, err)
		}
	}
	return nil
}
