// Пакет service — бизнес-логика Analysis Module.
// CacheService — LRU-кэш presigned URL с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "an_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш presigned URL.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "an_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша presigned URL.",
	})
)

// CacheService — LRU-кэш presigned URL с автоматическим TTL.
// TTL кэша должен быть заметно меньше срока действия самих URL,
// иначе клиент получит уже истёкшую ссылку.
type CacheService struct {
	cache *expirable.LRU[string, string]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
// maxSize — максимальное количество записей в кэше.
// ttl — время жизни записи после добавления.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	cache := expirable.NewLRU[string, string](maxSize, nil, ttl)
	return &CacheService{cache: cache}
}

// Get возвращает presigned URL из кэша по ключу объекта.
// Возвращает (url, true) при hit или ("", false) при miss.
// Обновляет Prometheus-метрики hit/miss.
func (c *CacheService) Get(key string) (string, bool) {
	val, ok := c.cache.Get(key)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return "", false
}

// Set добавляет или обновляет URL в кэше.
func (c *CacheService) Set(key, url string) {
	c.cache.Add(key, url)
}

// Delete удаляет запись из кэша.
func (c *CacheService) Delete(key string) {
	c.cache.Remove(key)
}
