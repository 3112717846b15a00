package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/journiv/internal/config"
)

func TestNewWithoutTypeDisablesMirror(t *testing.T) {
	store, err := New(config.FileStoreConfig{})
	require.NoError(t, err)
	assert.Nil(t, store)

	_, err = New(config.FileStoreConfig{Type: "ftp"})
	assert.Error(t, err)
}

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := New(config.FileStoreConfig{Type: "local", Dir: filepath.Join(dir, "mirror")})
	require.NoError(t, err)
	assert.Equal(t, "local", store.Type())

	src := filepath.Join(dir, "export.zip")
	require.NoError(t, os.WriteFile(src, []byte("zip-bytes"), 0o644))
	f, err := os.Open(src)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, store.Save(ctx, "export.zip", f, 9))

	r, err := store.Open(ctx, "export.zip")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(data))

	assert.Error(t, store.Save(ctx, "../escape.zip", f, 9))
	_, err = store.Open(ctx, "a/b.zip")
	assert.Error(t, err)
}

func TestS3StoreRequiresCredentials(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "s3", S3: config.S3Config{Endpoint: "localhost:9000"}})
	assert.Error(t, err)
}
