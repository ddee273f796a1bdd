package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"qrquest/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches the question catalog from a backing store (Postgres, YAML file).
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) ([]domain.Question, error)
}

// CatalogRepository caches the catalog in Redis and falls back to a loader on cache miss.
// Questions are stored as JSON: HSET {prefix}:catalog {questionID} {question}
type CatalogRepository struct {
	client *redis.Client
	loader CatalogLoader
	key    string
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewCatalogRepository(client *redis.Client, loader CatalogLoader, prefix string, ttl time.Duration) *CatalogRepository {
	if prefix == "" {
		prefix = "quest"
	}
	return &CatalogRepository{
		client: client,
		loader: loader,
		key:    prefix + ":catalog",
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogRepository) Question(ctx context.Context, id string) (domain.Question, error) {
	raw, err := r.client.HGet(ctx, r.key, id).Result()
	if err == nil {
		return decodeQuestion(raw)
	}

	// miss: either the question is unknown or the cache is cold
	entries, err := r.entries(ctx)
	if err != nil {
		return domain.Question{}, err
	}
	q, ok := entries[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (r *CatalogRepository) Count(ctx context.Context) (int, error) {
	entries, err := r.entries(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (r *CatalogRepository) IDs(ctx context.Context) ([]string, error) {
	entries, err := r.entries(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Invalidate drops the cached catalog so the next read reloads it.
func (r *CatalogRepository) Invalidate(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

func (r *CatalogRepository) entries(ctx context.Context) (map[string]domain.Question, error) {
	if raw, err := r.client.HGetAll(ctx, r.key).Result(); err == nil && len(raw) > 0 {
		return decodeCatalog(raw)
	}

	result, err, _ := r.sf.Do(r.key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := r.client.HGetAll(ctx, r.key).Result(); err == nil && len(raw) > 0 {
			return decodeCatalog(raw)
		}

		questions, err := r.loader.LoadCatalog(ctx)
		if err != nil {
			return nil, err
		}

		entries := make(map[string]domain.Question, len(questions))
		pipe := r.client.TxPipeline()
		for _, q := range questions {
			if _, dup := entries[q.ID]; dup {
				continue
			}
			data, err := json.Marshal(q)
			if err != nil {
				return nil, fmt.Errorf("encode question %s: %w", q.ID, err)
			}
			entries[q.ID] = q
			pipe.HSet(ctx, r.key, q.ID, data)
		}
		if ttl := r.ttlWithJitter(); ttl > 0 && len(entries) > 0 {
			pipe.Expire(ctx, r.key, ttl)
		}
		if len(entries) > 0 {
			// cache writes are best-effort; the loaded catalog is still served
			_, _ = pipe.Exec(ctx)
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]domain.Question), nil
}

func decodeCatalog(raw map[string]string) (map[string]domain.Question, error) {
	entries := make(map[string]domain.Question, len(raw))
	for id, data := range raw {
		q, err := decodeQuestion(data)
		if err != nil {
			return nil, err
		}
		entries[id] = q
	}
	return entries, nil
}

func decodeQuestion(data string) (domain.Question, error) {
	var q domain.Question
	if err := json.Unmarshal([]byte(data), &q); err != nil {
		return domain.Question{}, fmt.Errorf("decode cached question: %w", err)
	}
	if q.ID == "" {
		return domain.Question{}, errors.New("decode cached question: missing id")
	}
	return q, nil
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
