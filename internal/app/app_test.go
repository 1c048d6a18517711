package app

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/PatrickalKhouri/ingredient-manager/config"
	"github.com/PatrickalKhouri/ingredient-manager/internal/testutil/containers"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/events"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/logging"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load("testdata/missing.env")
	require.NoError(t, err)
	return cfg
}

func TestServicesNeedDatabase(t *testing.T) {
	a := New(loadConfig(t, nil), logging.Silent())
	_, err := a.Services()
	assert.Equal(t, errkind.Fatal, errkind.Of(err))
	assert.NoError(t, a.Close(context.Background()))
}

func TestOptionalConnectionsAreSkipped(t *testing.T) {
	a := New(loadConfig(t, map[string]string{"REDIS_ENABLED": "false", "KAFKA_BROKERS": ""}), logging.Silent())
	ctx := context.Background()

	require.NoError(t, a.ConnectRedis(ctx))
	require.NoError(t, a.ConnectKafka(ctx))
	assert.Nil(t, a.locker())
	assert.IsType(t, events.NoopPublisher{}, a.publisher())
}

func TestRematchOptionsFromConfig(t *testing.T) {
	a := New(loadConfig(t, map[string]string{
		"REMATCH_CONCURRENCY": "4",
		"REMATCH_RETRIES":     "0",
		"REMATCH_TIMEOUT":     "5s",
		"REMATCH_LOCK_TTL":    "30m",
	}), logging.Silent())

	opts := a.RematchOptions()
	assert.Equal(t, 4, opts.Concurrency)
	assert.Equal(t, 0, opts.Retries)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, 30*time.Minute, opts.LockTTL)
}

func TestMigrateAndResolve(t *testing.T) {
	pg := containers.StartPostgres(t)
	a := New(loadConfig(t, map[string]string{
		"DB_HOST":                  pg.Host,
		"DB_PORT":                  pg.Port,
		"DB_USER_NAME":             pg.User,
		"DB_PASSWORD":              pg.Password,
		"DB_NAME":                  pg.Database,
		"DB_MIGRATION_FOLDER_PATH": containers.MigrationsDir(),
	}), logging.Silent())
	ctx := context.Background()
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	require.NoError(t, a.Migrate(ctx))
	services, err := a.Open(ctx)
	require.NoError(t, err)

	for i, name := range []string{"AQUA", "GLYCERIN"} {
		_, err := a.raw.Exec(`INSERT INTO catalog_entries (id, canonical_name, search_key) VALUES ($1, $2, $2)`, "c"+strconv.Itoa(i), name)
		require.NoError(t, err)
	}
	productID := uuid.New()
	_, err = a.raw.Exec(`INSERT INTO products (id, brand, name, ingredients) VALUES ($1, 'Acme', 'Serum', $2)`,
		productID, pq.StringArray{"Aqua", "Glycerin", "Unknown Thing"})
	require.NoError(t, err)

	resolved, err := services.Matching.ResolveProduct(ctx, productID.String())
	require.NoError(t, err)
	assert.Equal(t, productID.String(), resolved.ProductID)

	summary, err := services.Products.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.TotalProducts)
	assert.Equal(t, int64(0), summary.FullyMatched)

	result, err := services.Rematch.Run(ctx, a.RematchOptions())
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Succeeded)
}
