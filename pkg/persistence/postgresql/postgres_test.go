package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/courier/pkg/events"
	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/persistence"
	"github.com/dukex/courier/pkg/persistence/postgresql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var (
	containerMu       sync.Mutex
	postgresContainer *postgres.PostgresContainer
)

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"oauth_tokens", "pending_deliveries", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func setupTestDB(t *testing.T) (*postgresql.TokenStore, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	containerMu.Lock()

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("courier_test"),
			postgres.WithUsername("courier"),
			postgres.WithPassword("courier"),
			testcontainers.WithEnv(map[string]string{"TZ": "UTC"}),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			containerMu.Unlock()
			require.NoError(t, err)
		}
	}

	containerMu.Unlock()

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewTokenStore(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		require.NoError(t, store.Close(ctx))

		cancel()
	})

	return store, ctx, databaseURL
}

func TestNewTokenStore_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() { _ = db.Close() }()

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	for _, table := range []string{"oauth_tokens", "pending_deliveries"} {
		var exists bool

		err = db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}
}

func TestNewTokenStore_MigrationsAreIdempotent(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	again, err := postgresql.NewTokenStore(ctx, logger, databaseURL)
	require.NoError(t, err)
	require.NoError(t, again.Close(ctx))
}

func TestTokenStore_SaveGetDelete(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	require.NoError(t, store.Save(ctx, "webhook:client", models.RefreshAccessTokenResult{AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, store.Save(ctx, "webhook:client", models.RefreshAccessTokenResult{AccessToken: "a2"}))

	got, err := store.Get(ctx, "webhook:client")
	require.NoError(t, err)
	assert.Equal(t, "webhook:client", got.Scope)
	assert.Equal(t, models.RefreshAccessTokenResult{AccessToken: "a2", RefreshToken: "r1"}, got.Result())
	assert.WithinDuration(t, time.Now(), got.UpdatedAt, time.Minute)

	require.NoError(t, store.Delete(ctx, "webhook:client"))

	_, err = store.Get(ctx, "webhook:client")
	assert.True(t, persistence.IsTokensNotFound(err))
}

func TestTokenStore_HealthCheck(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	require.NoError(t, store.HealthCheck(ctx))
}

func TestJournal_AppendPendingRemove(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	journal, err := postgresql.NewJournal(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() { _ = journal.Close(ctx) })

	first := events.NewDeliveryRequested("actions-webhook", models.Settings{"url": "https://example.com"}, models.Event{"messageId": "m-1"}, "acct-1")
	second := events.NewDeliveryRequested("actions-webhook", models.Settings{}, models.Event{"messageId": "m-2"}, "acct-1")

	require.NoError(t, journal.Append(ctx, "worker-a", first))
	require.NoError(t, journal.Append(ctx, "worker-a", second))
	require.NoError(t, journal.Append(ctx, "worker-a", first))
	require.NoError(t, journal.Append(ctx, "worker-b", second))

	pending, err := journal.Pending(ctx, "worker-a")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
	assert.Equal(t, "m-1", pending[0].Event["messageId"])
	assert.Equal(t, "acct-1", pending[0].BatchKey)

	require.NoError(t, journal.Remove(ctx, "worker-a", []string{first.ID, "unknown"}))

	pending, err = journal.Pending(ctx, "worker-a")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	pending, err = journal.Pending(ctx, "worker-b")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	assert.ErrorIs(t, journal.Append(ctx, "", first), persistence.ErrInvalidOwner)
}
