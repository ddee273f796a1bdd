package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"qrquest/internal/app"
	"qrquest/internal/domain"
	pgstore "qrquest/internal/infra/postgres"
	pgmigrations "qrquest/internal/infra/postgres/migrations"
	infraredis "qrquest/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestQuestEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewCatalogLoader(pool)
	if n, err := loader.SeedQuestions(ctx, sampleCatalog()); err != nil || n != 2 {
		t.Fatalf("seed: inserted=%d err=%v", n, err)
	}
	if n, err := loader.SeedQuestions(ctx, sampleCatalog()); err != nil || n != 0 {
		t.Fatalf("reseed should be a no-op: inserted=%d err=%v", n, err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	catalog := infraredis.NewCatalogRepository(redisClient, loader, "it", 5*time.Minute)
	states := infraredis.NewSessionStore(redisClient, "it", time.Hour)
	store := pgstore.NewStore(pool)
	engine := app.NewEngine(store, catalog, states, nil, app.NewQuestClock(time.Now().Add(time.Hour)), app.Options{
		Operators: []string{"admin"},
	})

	if _, err := engine.OnScan(ctx, "u1", "alice_tg", "q1"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	replies, err := engine.OnText(ctx, "u1", "alice_tg", "alice")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if len(replies) != 2 || replies[1].Text != "What is 2 + 2?" {
		t.Fatalf("expected greeting and first question, got %+v", replies)
	}
	if _, err := engine.OnText(ctx, "u1", "", "4"); err != nil {
		t.Fatalf("answer q1: %v", err)
	}
	if _, err := engine.OnScan(ctx, "u1", "", "q2"); err != nil {
		t.Fatalf("scan q2: %v", err)
	}
	if _, err := engine.OnText(ctx, "u1", "", "AI"); err != nil {
		t.Fatalf("answer q2: %v", err)
	}

	p, err := store.Participant(ctx, "u1")
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	if p.CorrectCount != 2 || p.CompletionRank == nil || *p.CompletionRank != 1 {
		t.Fatalf("expected a perfect first finisher, got %+v", p)
	}

	replies, err = engine.OnAdminCommand(ctx, "admin", "/winner")
	if err != nil {
		t.Fatalf("winner: %v", err)
	}
	if !strings.Contains(replies[0].Text, "alice") {
		t.Fatalf("expected alice to win, got %q", replies[0].Text)
	}

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Participants != 1 || st.Finished != 1 || st.Answers != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestLedgerRejectsConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	store := pgstore.NewStore(pool)
	p, created, err := store.Register(ctx, domain.Participant{Identity: "u1", DisplayName: "alice", RegisteredAt: time.Now(), LastActivityAt: time.Now()})
	if err != nil || !created {
		t.Fatalf("register: created=%v err=%v", created, err)
	}
	if _, created, _ := store.Register(ctx, domain.Participant{Identity: "u1", DisplayName: "mallory", RegisteredAt: time.Now(), LastActivityAt: time.Now()}); created {
		t.Fatalf("expected second registration to be a no-op")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RecordAnswer(ctx, domain.Answer{
				ParticipantID: p.ID, QuestionID: "q1", Option: "4", Correct: true, AnsweredAt: time.Now(),
			}, 2)
			switch {
			case err == nil:
				mu.Lock()
				accepted++
				mu.Unlock()
			case errors.Is(err, domain.ErrDuplicate), errors.Is(err, domain.ErrStorageConflict):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one accepted answer, got %d", accepted)
	}
	answers, err := store.Answers(ctx, p.ID)
	if err != nil || len(answers) != 1 {
		t.Fatalf("expected one stored answer, got %d (err=%v)", len(answers), err)
	}
	got, _ := store.Participant(ctx, "u1")
	if got.CorrectCount != 1 {
		t.Fatalf("expected correct count 1, got %d", got.CorrectCount)
	}
}

func TestLedgerAssignsSequentialRanks(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	store := pgstore.NewStore(pool)
	for i := 1; i <= 3; i++ {
		p, _, err := store.Register(ctx, domain.Participant{Identity: fmt.Sprintf("u%d", i), DisplayName: "p", RegisteredAt: time.Now(), LastActivityAt: time.Now()})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		res, err := store.RecordAnswer(ctx, domain.Answer{ParticipantID: p.ID, QuestionID: "q1", Option: "x", AnsweredAt: time.Now()}, 1)
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if !res.Completed || *res.Participant.CompletionRank != i {
			t.Fatalf("expected rank %d, got %+v", i, res)
		}
	}

	eligible, err := store.Eligible(ctx, 1)
	if err != nil || len(eligible) != 3 {
		t.Fatalf("expected 3 eligible, got %d (err=%v)", len(eligible), err)
	}
	if err := store.RecordDraw(ctx, domain.Draw{ID: "6f1c3c53-7cc1-4a0b-9a36-0d2b6f3b9e11", ParticipantID: 999, DrawnAt: time.Now()}); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant not found, got %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quest", "POSTGRES_PASSWORD": "questpass", "POSTGRES_DB": "questdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quest:questpass@%s:%s/questdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

// migrateSchema applies migrations, retrying while postgres finishes its init restart.
func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	var err error
	for attempt := 0; attempt < 20; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("ping postgres: %v", err)
	}

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleCatalog() []domain.Question {
	return []domain.Question{
		{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, Correct: "4"},
		{ID: "q2", Prompt: "Human or AI?", Options: []string{"Human", "AI"}, Correct: "AI", Media: "q2.png"},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
