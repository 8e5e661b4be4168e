package redis_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/persistence"
	"github.com/autoflow-io/autoflow/pkg/persistence/redis"
	"github.com/autoflow-io/autoflow/pkg/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var redisContainer testcontainers.Container

func setupTestRedis(t *testing.T) (*redis.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if redisContainer == nil || !redisContainer.IsRunning() {
		var err error

		redisContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForLog("Ready to accept connections"),
			},
			Started: true,
		})
		require.NoError(t, err)
	}

	redisURL, err := redisContainer.PortEndpoint(ctx, "6379/tcp", "redis")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := redis.NewPersistence(ctx, logger, redisURL)
	require.NoError(t, err)

	flush(ctx, t, redisURL)

	t.Cleanup(func() {
		flush(ctx, t, redisURL)

		require.NoError(t, p.Close(ctx))

		cancel()
	})

	return p, ctx, redisURL
}

func flush(ctx context.Context, t *testing.T, redisURL string) {
	t.Helper()

	opts, err := goredis.ParseURL(redisURL)
	require.NoError(t, err)

	client := goredis.NewClient(opts)
	defer client.Close()

	require.NoError(t, client.FlushDB(ctx).Err())
}

func TestNewPersistence_InvalidURL(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	_, err := redis.NewPersistence(context.Background(), logger, "not-a-redis-url")
	require.Error(t, err)
}

func TestPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestRedis(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestExecutionRepository_Contract(t *testing.T) {
	p, _, _ := setupTestRedis(t)

	testutil.RunExecutionRepositorySuite(t, p.ExecutionRepository())
}

func TestWorkflowRepository_Contract(t *testing.T) {
	p, _, _ := setupTestRedis(t)

	testutil.RunWorkflowRepositorySuite(t, p.WorkflowRepository())
}

func TestExecutionRepository_RunDocumentIsJSON(t *testing.T) {
	p, ctx, redisURL := setupTestRedis(t)

	run, _, err := p.ExecutionRepository().CreateRun(ctx, testutil.CreateTestRun("wf"))
	require.NoError(t, err)

	_, err = p.ExecutionRepository().SetStatus(ctx, run.ID, persistence.StatusUpdate{Status: models.ExecutionStatusRunning})
	require.NoError(t, err)

	opts, err := goredis.ParseURL(redisURL)
	require.NoError(t, err)

	client := goredis.NewClient(opts)
	defer client.Close()

	raw, err := client.Get(ctx, "autoflow:run:"+run.ID).Result()
	require.NoError(t, err)
	assert.Contains(t, raw, `"status":"running"`)
	assert.Contains(t, raw, `"execution_id":"`+run.ID+`"`)
}
