package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"qrquest/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches the question catalog from a backing store (Postgres, YAML file).
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) ([]domain.Question, error)
}

// CatalogRepository caches the catalog with TTL to avoid repeated DB hits.
type CatalogRepository struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache *cachedCatalog
}

type cachedCatalog struct {
	byID      map[string]domain.Question
	ids       []string
	expiresAt time.Time
}

// NewCatalogRepository caches loader results; ttl <= 0 caches for the whole run.
func NewCatalogRepository(loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogRepository) Question(ctx context.Context, id string) (domain.Question, error) {
	c, err := r.catalog(ctx)
	if err != nil {
		return domain.Question{}, err
	}
	q, ok := c.byID[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (r *CatalogRepository) Count(ctx context.Context) (int, error) {
	c, err := r.catalog(ctx)
	if err != nil {
		return 0, err
	}
	return len(c.ids), nil
}

func (r *CatalogRepository) IDs(ctx context.Context) ([]string, error) {
	c, err := r.catalog(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out, nil
}

func (r *CatalogRepository) catalog(ctx context.Context) (*cachedCatalog, error) {
	if c := r.fresh(); c != nil {
		return c, nil
	}

	result, err, _ := r.sf.Do("catalog", func() (interface{}, error) {
		if c := r.fresh(); c != nil {
			return c, nil
		}

		questions, err := r.loader.LoadCatalog(ctx)
		if err != nil {
			return nil, err
		}
		c := indexCatalog(questions)
		if r.ttl > 0 {
			c.expiresAt = r.clock().Add(r.ttlWithJitter())
		}

		r.mu.Lock()
		r.cache = c
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*cachedCatalog), nil
}

func (r *CatalogRepository) fresh() *cachedCatalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cache == nil {
		return nil
	}
	if !r.cache.expiresAt.IsZero() && !r.cache.expiresAt.After(r.clock()) {
		return nil
	}
	return r.cache
}

func indexCatalog(questions []domain.Question) *cachedCatalog {
	c := &cachedCatalog{byID: make(map[string]domain.Question, len(questions))}
	for _, q := range questions {
		if _, dup := c.byID[q.ID]; dup {
			continue
		}
		c.byID[q.ID] = q
		c.ids = append(c.ids, q.ID)
	}
	sort.Strings(c.ids)
	return c
}

// StaticCatalogLoader is a simple loader backed by a slice (useful for tests/demos).
type StaticCatalogLoader struct {
	questions []domain.Question
}

func NewStaticCatalogLoader(questions []domain.Question) *StaticCatalogLoader {
	return &StaticCatalogLoader{questions: questions}
}

func (l *StaticCatalogLoader) LoadCatalog(_ context.Context) ([]domain.Question, error) {
	out := make([]domain.Question, len(l.questions))
	copy(out, l.questions)
	return out, nil
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
