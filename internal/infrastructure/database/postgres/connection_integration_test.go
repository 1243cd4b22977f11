//go:build integration

// Package postgres_test covers the pool, transactions and migrations against
// a disposable PostgreSQL container.
package postgres_test

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/rid-registry/internal/config"
	"github.com/turtacn/rid-registry/internal/infrastructure/database/postgres"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test helpers
// ─────────────────────────────────────────────────────────────────────────────

func startDatabase(t *testing.T) config.DatabaseConfig {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "ridreg_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	return config.DatabaseConfig{
		Host: host, Port: portNum, User: "test", Password: "test",
		DBName: "ridreg_test", SSLMode: "disable", MaxConns: 4,
	}
}

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	cfg := startDatabase(t)
	pool, err := postgres.NewConnectionPool(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { postgres.Close(pool) })

	_, err = pool.Exec(context.Background(), "CREATE TABLE tx_probe (id INT PRIMARY KEY)")
	require.NoError(t, err)
	return pool
}

func probeCount(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM tx_probe").Scan(&n))
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// WithTransaction
// ─────────────────────────────────────────────────────────────────────────────

func TestWithTransaction(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		err := postgres.WithTransaction(ctx, pool, func(tx pgx.Tx, txCtx context.Context) error {
			_, err := tx.Exec(txCtx, "INSERT INTO tx_probe VALUES (1)")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, probeCount(t, pool))
	})

	t.Run("rolls back on error", func(t *testing.T) {
		err := postgres.WithTransaction(ctx, pool, func(tx pgx.Tx, txCtx context.Context) error {
			_, err := tx.Exec(txCtx, "INSERT INTO tx_probe VALUES (2)")
			require.NoError(t, err)
			return fmt.Errorf("intentional error")
		})
		require.Error(t, err)
		assert.Equal(t, 1, probeCount(t, pool))
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = postgres.WithTransaction(ctx, pool, func(tx pgx.Tx, txCtx context.Context) error {
				_, _ = tx.Exec(txCtx, "INSERT INTO tx_probe VALUES (3)")
				panic("intentional panic")
			})
		})
		assert.Equal(t, 1, probeCount(t, pool))
	})

	t.Run("nested call uses a savepoint", func(t *testing.T) {
		err := postgres.WithTransaction(ctx, pool, func(outer pgx.Tx, outerCtx context.Context) error {
			_, err := outer.Exec(outerCtx, "INSERT INTO tx_probe VALUES (4)")
			require.NoError(t, err)

			innerErr := postgres.WithTransaction(outerCtx, pool, func(inner pgx.Tx, innerCtx context.Context) error {
				_, err := inner.Exec(innerCtx, "INSERT INTO tx_probe VALUES (5)")
				require.NoError(t, err)
				return fmt.Errorf("inner failure")
			})
			assert.Error(t, innerErr)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, probeCount(t, pool))
	})
}

func TestHealthCheck(t *testing.T) {
	pool := setupTestDB(t)
	assert.NoError(t, postgres.HealthCheck(context.Background(), pool))
	assert.Error(t, postgres.HealthCheck(context.Background(), nil))
}

// ─────────────────────────────────────────────────────────────────────────────
// Migrations
// ─────────────────────────────────────────────────────────────────────────────

func TestMigrations(t *testing.T) {
	cfg := startDatabase(t)
	dbURL := cfg.DSN()

	version, dirty, err := postgres.MigrationStatus(dbURL)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)

	require.NoError(t, postgres.RunMigrations(dbURL))
	require.NoError(t, postgres.RunMigrations(dbURL), "re-running is a no-op")

	version, dirty, err = postgres.MigrationStatus(dbURL)
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)
	assert.False(t, dirty)

	require.NoError(t, postgres.RollbackMigration(dbURL, 1))
	version, _, err = postgres.MigrationStatus(dbURL)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)

	require.NoError(t, postgres.ResetDatabase(dbURL))
	version, _, err = postgres.MigrationStatus(dbURL)
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)

	require.NoError(t, postgres.ForceMigrationVersion(dbURL, 1))
	version, dirty, err = postgres.MigrationStatus(dbURL)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
	assert.False(t, dirty)
}
