// cache.go — LRU-кэш с TTL для справочных данных (категории документов,
// локальные пользователи). Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэшей, метка cache — имя кэша.
var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "op_cache_hits_total",
		Help: "Общее количество попаданий в in-memory кэш.",
	}, []string{"cache"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "op_cache_misses_total",
		Help: "Общее количество промахов in-memory кэша.",
	}, []string{"cache"})
)

// TTLCache — LRU-кэш с автоматическим истечением записей.
// Каждый экземпляр сервиса держит собственный кэш; после изменения данных
// в другом экземпляре запись остаётся устаревшей не дольше TTL.
type TTLCache[K comparable, V any] struct {
	name  string
	cache *expirable.LRU[K, V]
}

// NewTTLCache создаёт кэш.
// maxSize — максимальное количество записей, ttl — время жизни записи.
func NewTTLCache[K comparable, V any](name string, maxSize int, ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		name:  name,
		cache: expirable.NewLRU[K, V](maxSize, nil, ttl),
	}
}

// Get возвращает значение и true при hit.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	val, ok := c.cache.Get(key)
	if ok {
		cacheHitsTotal.WithLabelValues(c.name).Inc()
		return val, true
	}
	cacheMissesTotal.WithLabelValues(c.name).Inc()
	var zero V
	return zero, false
}

// Set добавляет или обновляет запись.
func (c *TTLCache[K, V]) Set(key K, val V) {
	c.cache.Add(key, val)
}

// Delete удаляет запись.
func (c *TTLCache[K, V]) Delete(key K) {
	c.cache.Remove(key)
}

// Purge очищает кэш.
func (c *TTLCache[K, V]) Purge() {
	c.cache.Purge()
}

// Len — количество записей (включая ещё не вычищенные истёкшие).
func (c *TTLCache[K, V]) Len() int {
	return c.cache.Len()
}
