package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/journiv/internal/config"
	"github.com/xxxsen/journiv/internal/db"
	"github.com/xxxsen/journiv/internal/model"
	"github.com/xxxsen/journiv/internal/repo"
)

// OpenTestDB opens a migrated database for one test. It is a file-backed
// sqlite database unless TEST_DB_HOST points at a postgres server.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "journiv_test.db"),
	}
	if host := os.Getenv("TEST_DB_HOST"); host != "" {
		port, _ := strconv.Atoi(os.Getenv("TEST_DB_PORT"))
		if port == 0 {
			port = 5432
		}
		cfg = config.DatabaseConfig{
			Driver:   "postgres",
			Host:     host,
			Port:     port,
			User:     "journiv",
			Password: "journiv_pass",
			DBName:   "journiv_test",
			SSLMode:  "disable",
		}
	}
	conn, err := db.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(conn))
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// CreateUser inserts a user with a fresh id.
func CreateUser(t *testing.T, conn *sql.DB) *model.User {
	t.Helper()
	id := uuid.NewString()
	user := &model.User{
		ID:       id,
		Email:    id + "@example.com",
		TimeZone: "UTC",
		Ctime:    1700000000,
		Mtime:    1700000000,
	}
	require.NoError(t, repo.NewUserRepo(conn).Create(context.Background(), user))
	return user
}
