package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"port": 9000,
		"jwt_secret": "s",
		"database": {"driver": "sqlite", "dsn": "test.db"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogConfig.Level)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/media", cfg.Storage.MediaRoot)
	assert.Equal(t, 3, cfg.Transfer.MediaConcurrency)
	assert.Equal(t, 50000, cfg.Limits.MaxZipEntries)
	assert.Equal(t, int64(500*1024*1024), cfg.Limits.MaxExtractBytes)
	assert.Equal(t, 2, cfg.RemoteFetch.RetryCount)
	assert.Equal(t, "0 */6 * * *", cfg.Schedule.ExportCleanup)
	assert.Equal(t, "", cfg.ArchiveStore.Type)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing secret": `{"port": 1, "database": {"driver": "sqlite"}}`,
		"missing port":   `{"jwt_secret": "s", "database": {"driver": "sqlite"}}`,
		"bad driver":     `{"port": 1, "jwt_secret": "s", "database": {"driver": "mysql"}}`,
		"no pg target":   `{"port": 1, "jwt_secret": "s", "database": {"driver": "postgres"}}`,
		"bad store":      `{"port": 1, "jwt_secret": "s", "database": {"driver": "sqlite"}, "archive_store": {"type": "ftp"}}`,
		"s3 incomplete":  `{"port": 1, "jwt_secret": "s", "database": {"driver": "sqlite"}, "archive_store": {"type": "s3"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "journiv.db", cfg.Database.DSN)
}
