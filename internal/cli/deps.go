package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"qrquest/internal/app"
	"qrquest/internal/config"
	"qrquest/internal/events"
	"qrquest/internal/infra/file"
	"qrquest/internal/infra/memory"
	"qrquest/internal/infra/postgres"
	redisstore "qrquest/internal/infra/redis"
)

// deps holds the storage and delivery backends picked from config.
type deps struct {
	store     app.Store
	catalog   app.Catalog
	states    app.StateStore
	notifiers events.Fanout

	closers []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildDeps wires Postgres or memory for the ledger, Redis or memory for state and
// the catalog cache, and the AMQP publisher when a broker is configured.
func buildDeps(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*deps, error) {
	d := &deps{}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	var loader memory.CatalogLoader
	if cfg.Quest.Catalog != "" {
		loader = file.NewCatalogLoader(cfg.Quest.Catalog)
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.closers = append(d.closers, pool.Close)

		pgLoader := postgres.NewCatalogLoader(pool)
		if loader != nil {
			if err := seedCatalog(ctx, loader, pgLoader, logger); err != nil {
				return nil, err
			}
		}
		loader = pgLoader
		d.store = postgres.NewStore(pool)
		logger.Info("ledger: postgres")
	} else {
		if loader == nil {
			return nil, fmt.Errorf("no question catalog: set quest.catalog or postgres.url")
		}
		d.store = memory.NewStore()
		logger.Warn("ledger: in-memory, answers are lost on restart")
	}

	// the catalog is fixed for the run; cache refills only ever see this snapshot
	snapshot, err := snapshotCatalog(ctx, loader)
	if err != nil {
		return nil, err
	}
	catalogTTL := config.TTLDuration(cfg.Quest.CatalogTTL, 0)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		catalog := redisstore.NewCatalogRepository(client, snapshot, cfg.Redis.Prefix, catalogTTL)
		if err := catalog.Invalidate(ctx); err != nil {
			return nil, fmt.Errorf("reset catalog cache: %w", err)
		}
		d.catalog = catalog
		d.states = redisstore.NewSessionStore(client, cfg.Redis.Prefix, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
		logger.Info("conversation state: redis")
	} else {
		d.catalog = memory.NewCatalogRepository(snapshot, catalogTTL)
		d.states = memory.NewSessionStore()
	}

	if cfg.AMQP.URL != "" {
		pub, err := events.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { _ = pub.Close() })
		d.notifiers = append(d.notifiers, pub)
		logger.WithField("exchange", cfg.AMQP.Exchange).Info("publishing quest events")
	}

	ok = true
	return d, nil
}

// snapshotCatalog reads the catalog once so later changes to its source do not affect the run.
func snapshotCatalog(ctx context.Context, src memory.CatalogLoader) (*memory.StaticCatalogLoader, error) {
	questions, err := src.LoadCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("load catalog: no questions")
	}
	return memory.NewStaticCatalogLoader(questions), nil
}

func seedCatalog(ctx context.Context, src memory.CatalogLoader, dst *postgres.CatalogLoader, logger logrus.FieldLogger) error {
	questions, err := src.LoadCatalog(ctx)
	if err != nil {
		return err
	}
	inserted, err := dst.SeedQuestions(ctx, questions)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"questions": len(questions), "inserted": inserted}).Info("catalog seeded")
	return nil
}
