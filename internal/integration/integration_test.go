package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"poker-quiz-bot/internal/app"
	"poker-quiz-bot/internal/domain"
	"poker-quiz-bot/internal/infra/memory"
	pgstore "poker-quiz-bot/internal/infra/postgres"
	pgmigrations "poker-quiz-bot/internal/infra/postgres/migrations"
	infraredis "poker-quiz-bot/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestAnswerEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	catalog := pgstore.NewCatalogLoader(pool)
	if n, err := catalog.Import(ctx, sampleCatalog()); err != nil || n != 2 {
		t.Fatalf("import catalog: n=%d err=%v", n, err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	cached := infraredis.NewCatalogCache(redisClient, catalog, 5*time.Minute)
	questions, err := cached.LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	bank, err := app.NewQuestionBank(questions)
	if err != nil {
		t.Fatalf("bank: %v", err)
	}

	ledger := pgstore.NewScoreLedger(pool)
	transport := &countingTransport{members: 3}
	service := app.NewQuizService(
		bank,
		infraredis.NewSessionStore(redisClient, 5*time.Minute, zerolog.Nop()),
		ledger,
		transport,
		app.NewPersistenceGateway(infraredis.NewSnapshotStore(redisClient), zerolog.Nop()),
		app.Options{Mode: app.ModeBroadcast, Logger: zerolog.Nop()},
	)

	q, err := service.OpenOrShowSession(ctx, -100)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	wrong := (q.CorrectOption + 1) % len(q.Options)
	if _, err := service.RecordAnswerRequest(ctx, -100, 1, q.ID, wrong); err != nil {
		t.Fatalf("answer u1: %v", err)
	}
	res, err := service.RecordAnswerRequest(ctx, -100, 2, q.ID, q.CorrectOption)
	if err != nil {
		t.Fatalf("answer u2: %v", err)
	}
	if !res.Correct || res.Score.Correct != 1 || res.Score.Streak != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if transport.texts != 1 {
		t.Fatalf("expected early close after both members answered, texts=%d", transport.texts)
	}

	lb, err := service.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb) != 2 || lb[0].UserID != 2 || lb[1].UserID != 1 {
		t.Fatalf("expected user 2 leading, got %+v", lb)
	}

	history, err := ledger.History(ctx, 1)
	if err != nil || len(history) != 1 || history[0].Correct {
		t.Fatalf("unexpected history %+v err=%v", history, err)
	}

	// a restarted process sees the same exhaustion set through the redis snapshot
	restarted := app.NewQuizService(bank, memory.NewSessionStore(), ledger, transport,
		app.NewPersistenceGateway(infraredis.NewSnapshotStore(redisClient), zerolog.Nop()),
		app.Options{Mode: app.ModeBroadcast, Logger: zerolog.Nop()})
	restarted.Restore(ctx)
	if used := restarted.Snapshot().UsedQuestionIDs; len(used) != 1 || used[0] != q.ID {
		t.Fatalf("unexpected restored exhaustion set %v", used)
	}
}

func TestConcurrentAnswersKeepLedgerConsistent(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	ledger := pgstore.NewScoreLedger(pool)

	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			_, err := ledger.RecordAnswer(ctx, domain.AnswerEvent{
				UserID: 42, DisplayName: "Dana", QuestionID: i + 1, Option: 0, Correct: i%2 == 0, At: time.Now(),
			})
			errs <- err
		}()
	}
	for i := 0; i < 20; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	rec, ok, err := ledger.UserStats(ctx, 42)
	if err != nil || !ok {
		t.Fatalf("stats: ok=%v err=%v", ok, err)
	}
	if rec.Total != 20 || rec.Correct != 10 {
		t.Fatalf("lost updates: %+v", rec)
	}
}

type countingTransport struct {
	members int
	texts   int
}

func (c *countingTransport) SendChoicePrompt(_ context.Context, chatID int64, p app.Prompt) (string, error) {
	return fmt.Sprintf("%d-%d", chatID, p.QuestionID), nil
}

func (c *countingTransport) SendText(context.Context, int64, string) error {
	c.texts++
	return nil
}

func (c *countingTransport) DeleteMessage(context.Context, int64, string) error { return nil }

func (c *countingTransport) ParticipantCount(context.Context, int64) (int, error) {
	return c.members, nil
}

func (c *countingTransport) ResolveFriendlyName(_ context.Context, userID int64) (string, error) {
	return fmt.Sprintf("player-%d", userID), nil
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

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
		{
			ID:            1,
			Category:      "preflop",
			Prompt:        "Folds to Hero on the BTN.",
			Hand:          "Q8o",
			Options:       []string{"Fold", "Raise 2.5bb"},
			CorrectOption: 1,
			Explanation:   "Q8o is a profitable button open.",
		},
		{
			ID:            2,
			Category:      "river",
			Prompt:        "Villain triple-barrels a paired board.",
			Options:       []string{"Fold", "Call", "Raise"},
			CorrectOption: 0,
			Explanation:   "Bluff-catchers lose to this line.",
		},
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
