// Пакет service — бизнес-логика портала документов.
// CacheService — LRU-кэш запросов документов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mkosareva/docportal/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dp_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш запросов документов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dp_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша запросов документов.",
	})
)

// CacheService — LRU-кэш запросов документов с автоматическим TTL.
// Каждый экземпляр портала имеет собственный in-memory кэш (per-instance).
type CacheService struct {
	cache *expirable.LRU[string, *model.DocumentRequest]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
// maxSize — максимальное количество записей в кэше.
// ttl — время жизни записи после добавления.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	cache := expirable.NewLRU[string, *model.DocumentRequest](maxSize, nil, ttl)
	return &CacheService{cache: cache}
}

// Get возвращает DocumentRequest из кэша по requestID.
// Возвращает (запись, true) при hit или (nil, false) при miss.
// Обновляет Prometheus-метрики hit/miss.
func (c *CacheService) Get(requestID string) (*model.DocumentRequest, bool) {
	val, ok := c.cache.Get(requestID)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись в кэше.
func (c *CacheService) Set(requestID string, request *model.DocumentRequest) {
	c.cache.Add(requestID, request)
}

// Delete удаляет запись из кэша (инвалидация после мутации).
func (c *CacheService) Delete(requestID string) {
	c.cache.Remove(requestID)
}
