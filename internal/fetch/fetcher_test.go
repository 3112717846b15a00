package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
)

func TestDownloadRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	f := New(Options{Timeout: time.Second, RetryCount: 3, RetryWait: time.Millisecond, RetryMaxWait: 5 * time.Millisecond, MaxBytes: 1024})
	dst := filepath.Join(t.TempDir(), "out", "a.jpg")
	n, err := f.Download(context.Background(), srv.URL+"/a.jpg", dst)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.Equal(t, int32(3), calls.Load())
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
}

func TestDownloadEnforcesSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		// chunked, so the cap is enforced while streaming
		flusher := w.(http.Flusher)
		for i := 0; i < 4; i++ {
			_, _ = w.Write([]byte(strings.Repeat("x", 16)))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(Options{Timeout: time.Second, MaxBytes: 32})
	_, err := f.Download(context.Background(), srv.URL, filepath.Join(dir, "big.bin"))
	assert.ErrorIs(t, err, appErr.ErrFileTooLarge)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadRejectsBadInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Options{Timeout: time.Second})
	_, err := f.Download(context.Background(), "file:///etc/passwd", filepath.Join(t.TempDir(), "x"))
	assert.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = f.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x"))
	assert.Error(t, err)
}

func TestFilenameFromURL(t *testing.T) {
	assert.Equal(t, "photo.jpg", FilenameFromURL("https://cdn.example.com/a/photo.jpg?sig=1"))
	assert.Equal(t, "", FilenameFromURL("https://cdn.example.com/"))
}
