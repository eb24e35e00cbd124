package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"poker-quiz-bot/internal/app"
	"poker-quiz-bot/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const catalogKey = "quiz:catalog"

// CatalogCache caches the question catalog in Redis as one JSON document and
// falls back to the wrapped loader on a miss. Concurrent misses share one load.
type CatalogCache struct {
	client *redis.Client
	loader app.CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCatalogCache(client *redis.Client, loader app.CatalogLoader, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CatalogCache) LoadCatalog(ctx context.Context) ([]domain.Question, error) {
	if questions, ok := c.cached(ctx); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(catalogKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := c.cached(ctx); ok {
			return questions, nil
		}

		questions, err := c.loader.LoadCatalog(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(questions); err == nil {
			_ = c.client.Set(ctx, catalogKey, raw, c.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Question(nil), result.([]domain.Question)...), nil
}

// Invalidate drops the cached catalog, e.g. after an import.
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, catalogKey).Err()
}

func (c *CatalogCache) cached(ctx context.Context) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, catalogKey).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil || len(questions) == 0 {
		return nil, false
	}
	return questions, true
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
