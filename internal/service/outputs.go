// outputs.go — сервис выдачи артефактов анализа.
// Артефакты лежат в blob-хранилище; клиент получает presigned URL
// и скачивает файл напрямую, минуя модуль. URL кэшируются.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/testgen/analysis-module/internal/storage/filestore"
)

// Prometheus-метрики выдачи артефактов.
var (
	outputRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "an_output_requests_total",
		Help: "Общее количество запросов артефактов (по исходу).",
	}, []string{"outcome"})
)

// MetaLookup — поиск записей метаданных файлов.
type MetaLookup interface {
	FindByAttribute(ctx context.Context, attr, value string) ([]filestore.MetaItem, error)
}

// OutputsService — выдача артефактов анализа по ключу или имени файла.
type OutputsService struct {
	store  BlobStore
	meta   MetaLookup
	cache  *CacheService
	logger *slog.Logger
}

// NewOutputsService создаёт OutputsService.
func NewOutputsService(store BlobStore, meta MetaLookup, cache *CacheService, logger *slog.Logger) *OutputsService {
	return &OutputsService{
		store:  store,
		meta:   meta,
		cache:  cache,
		logger: logger.With(slog.String("component", "outputs-service")),
	}
}

// DownloadURL возвращает presigned URL для скачивания артефакта по
// ключу объекта. URL кэшируется; при отсутствии объекта возвращается
// ErrNotFound.
func (s *OutputsService) DownloadURL(ctx context.Context, key string) (string, error) {
	return s.resolveURL(ctx, key, s.store.GetDownloadURLForKey)
}

// DownloadURLByID возвращает presigned URL по идентификатору записи
// метаданных. URL кэшируется; при отсутствии записи — ErrNotFound.
func (s *OutputsService) DownloadURLByID(ctx context.Context, id string) (string, error) {
	return s.resolveURL(ctx, id, s.store.GetDownloadURL)
}

func (s *OutputsService) resolveURL(ctx context.Context, ref string, lookup func(context.Context, string) (string, error)) (string, error) {
	if url, ok := s.cache.Get(ref); ok {
		outputRequestsTotal.WithLabelValues("cache_hit").Inc()
		return url, nil
	}

	url, err := lookup(ctx, ref)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			outputRequestsTotal.WithLabelValues("not_found").Inc()
			return "", ErrNotFound
		}
		outputRequestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("получение URL артефакта %s: %w", ref, err)
	}

	s.cache.Set(ref, url)
	outputRequestsTotal.WithLabelValues("success").Inc()

	s.logger.Debug("Выдан presigned URL", slog.String("ref", ref))
	return url, nil
}

// List возвращает ключи артефактов с указанным префиксом.
func (s *OutputsService) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.store.ListByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("листинг артефактов: %w", err)
	}
	return keys, nil
}

// FindByFilename ищет артефакты по оригинальному имени файла
// через записи метаданных.
func (s *OutputsService) FindByFilename(ctx context.Context, filename string) ([]filestore.MetaItem, error) {
	items, err := s.meta.FindByAttribute(ctx, "filename", filename)
	if err != nil {
		return nil, fmt.Errorf("поиск артефактов по имени %s: %w", filename, err)
	}
	return items, nil
}

// ErrNotFound — артефакт или запись не найдены.
var ErrNotFound = errors.New("не найдено")
