package containers

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/PatrickalKhouri/ingredient-manager/pkg/database"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/logging"
	"github.com/jmoiron/sqlx"
)

// MigrationsDir is the absolute path of db/pg in this checkout.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "db", "pg")
}

// MigratedDB starts Postgres, applies every migration and returns a connected pool.
func MigratedDB(t *testing.T) (database.DB, *sqlx.DB) {
	t.Helper()
	pg := StartPostgres(t)
	logger := logging.Silent()
	ctx := context.Background()

	db, raw, err := database.Open(ctx, database.ConnectionConfig{
		Host:     pg.Host,
		Port:     pg.Port,
		User:     pg.User,
		Password: pg.Password,
		Name:     pg.Database,
		SSLMode:  "disable",
	}, logger)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: MigrationsDir()})
	if err := migrations.MigratePostgres(raw.DB, pg.Database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db, raw
}
