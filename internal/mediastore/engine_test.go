package mediastore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
	"github.com/xxxsen/journiv/internal/pkg/mediautil"
)

type memRefs struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *memRefs) CountByChecksum(ctx context.Context, ownerID, checksum string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[ownerID+"/"+checksum], nil
}

func (m *memRefs) set(owner, checksum string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[owner+"/"+checksum] = n
}

func newEngine(t *testing.T) (*Engine, *memRefs) {
	t.Helper()
	refs := &memRefs{counts: map[string]int{}}
	return New(t.TempDir(), refs), refs
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	require.NoError(t, filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			n++
		}
		return nil
	}))
	return n
}

func TestStoreDeduplicates(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()
	data := []byte("same bytes")

	first, err := engine.Store(ctx, StoreRequest{Reader: bytes.NewReader(data), OwnerID: "u1", MediaType: mediautil.MediaTypeImage, Extension: ".JPG"})
	require.NoError(t, err)
	assert.False(t, first.Deduplicated)
	assert.Equal(t, mediautil.ChecksumBytes(data), first.Checksum)
	assert.Equal(t, "u1/images/"+first.Checksum+".jpg", first.RelativePath)

	second, err := engine.Store(ctx, StoreRequest{Reader: bytes.NewReader(data), OwnerID: "u1", MediaType: mediautil.MediaTypeImage, Extension: "jpg"})
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.RelativePath, second.RelativePath)
	assert.Equal(t, first.Checksum, second.Checksum)
	assert.Equal(t, 1, countFiles(t, engine.Root()))
}

func TestStoreWithKnownChecksumSkipsWrite(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()
	data := []byte("video payload")
	sum := mediautil.ChecksumBytes(data)

	src := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(src, data, 0o644))
	first, err := engine.Store(ctx, StoreRequest{SourcePath: src, OwnerID: "u1", MediaType: mediautil.MediaTypeVideo, Extension: ".mp4", Checksum: sum})
	require.NoError(t, err)
	assert.False(t, first.Deduplicated)

	second, err := engine.Store(ctx, StoreRequest{SourcePath: "/does/not/exist", OwnerID: "u1", MediaType: mediautil.MediaTypeVideo, Extension: ".mp4", Checksum: sum})
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, int64(len(data)), second.Size)
}

func TestStoreIsolatesOwners(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()
	data := []byte("shared content")

	a, err := engine.Store(ctx, StoreRequest{Reader: bytes.NewReader(data), OwnerID: "alice", MediaType: mediautil.MediaTypeImage, Extension: ".png"})
	require.NoError(t, err)
	b, err := engine.Store(ctx, StoreRequest{Reader: bytes.NewReader(data), OwnerID: "bob", MediaType: mediautil.MediaTypeImage, Extension: ".png"})
	require.NoError(t, err)
	assert.False(t, b.Deduplicated)
	assert.Equal(t, a.Checksum, b.Checksum)
	assert.NotEqual(t, a.RelativePath, b.RelativePath)
	assert.Equal(t, 2, countFiles(t, engine.Root()))
}

func TestStoreRejectsClaimedChecksumMismatch(t *testing.T) {
	engine, _ := newEngine(t)
	_, err := engine.Store(context.Background(), StoreRequest{
		Reader:    strings.NewReader("actual"),
		OwnerID:   "u1",
		MediaType: mediautil.MediaTypeImage,
		Extension: ".png",
		Checksum:  mediautil.ChecksumBytes([]byte("claimed")),
	})
	require.ErrorIs(t, err, appErr.ErrChecksumMismatch)
	assert.Equal(t, 0, countFiles(t, engine.Root()))
}

func TestStoreValidatesInput(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()
	_, err := engine.Store(ctx, StoreRequest{Reader: strings.NewReader("x"), OwnerID: "../evil", MediaType: mediautil.MediaTypeImage, Extension: ".png"})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = engine.Store(ctx, StoreRequest{Reader: strings.NewReader("x"), OwnerID: "u1", MediaType: mediautil.MediaTypeUnknown, Extension: ".png"})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = engine.Store(ctx, StoreRequest{Reader: strings.NewReader("x"), OwnerID: "u1", MediaType: mediautil.MediaTypeImage, Extension: "./../x"})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = engine.Store(ctx, StoreRequest{OwnerID: "u1", MediaType: mediautil.MediaTypeImage, Extension: ".png"})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestConcurrentStoreOfSameContent(t *testing.T) {
	engine, _ := newEngine(t)
	data := bytes.Repeat([]byte("abc"), 4096)
	var wg sync.WaitGroup
	results := make([]*StoreResult, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.Store(context.Background(), StoreRequest{
				Reader: bytes.NewReader(data), OwnerID: "u1", MediaType: mediautil.MediaTypeAudio, Extension: ".mp3",
			})
		}(i)
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].RelativePath, results[i].RelativePath)
	}
	assert.Equal(t, 1, countFiles(t, engine.Root()))
	stored, err := os.ReadFile(filepath.Join(engine.Root(), results[0].RelativePath))
	require.NoError(t, err)
	assert.Equal(t, data, stored)
}

func TestDeleteHonoursReferenceCount(t *testing.T) {
	engine, refs := newEngine(t)
	ctx := context.Background()
	res, err := engine.Store(ctx, StoreRequest{Reader: strings.NewReader("photo"), OwnerID: "u1", MediaType: mediautil.MediaTypeImage, Extension: ".jpg"})
	require.NoError(t, err)

	// first attachment record removed, the second still points at the file
	refs.set("u1", res.Checksum, 1)
	deleted, err := engine.Delete(ctx, DeleteRequest{RelativePath: res.RelativePath, Checksum: res.Checksum, OwnerID: "u1"})
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, engine.Exists(res.RelativePath))

	refs.set("u1", res.Checksum, 0)
	deleted, err = engine.Delete(ctx, DeleteRequest{RelativePath: res.RelativePath, Checksum: res.Checksum, OwnerID: "u1"})
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, engine.Exists(res.RelativePath))

	// owner and type directories are pruned, the root survives
	_, err = os.Stat(filepath.Join(engine.Root(), "u1"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(engine.Root())
	require.NoError(t, err)
}

func TestDeleteForceAndLegacy(t *testing.T) {
	engine, refs := newEngine(t)
	ctx := context.Background()
	res, err := engine.Store(ctx, StoreRequest{Reader: strings.NewReader("a"), OwnerID: "u1", MediaType: mediautil.MediaTypeImage, Extension: ".jpg"})
	require.NoError(t, err)
	refs.set("u1", res.Checksum, 3)

	deleted, err := engine.Delete(ctx, DeleteRequest{RelativePath: res.RelativePath, Checksum: res.Checksum, OwnerID: "u1", Force: true})
	require.NoError(t, err)
	assert.True(t, deleted)

	legacy, err := engine.Store(ctx, StoreRequest{Reader: strings.NewReader("b"), OwnerID: "u1", MediaType: mediautil.MediaTypeImage, Extension: ".jpg"})
	require.NoError(t, err)
	refs.set("u1", legacy.Checksum, 5)
	deleted, err = engine.Delete(ctx, DeleteRequest{RelativePath: legacy.RelativePath, OwnerID: "u1"})
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = engine.Delete(ctx, DeleteRequest{RelativePath: legacy.RelativePath, OwnerID: "u1"})
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteWithoutRefSourceIsAnError(t *testing.T) {
	engine := New(t.TempDir(), nil)
	ctx := context.Background()
	res, err := engine.Store(ctx, StoreRequest{Reader: strings.NewReader("a"), OwnerID: "u1", MediaType: mediautil.MediaTypeImage, Extension: ".jpg"})
	require.NoError(t, err)
	_, err = engine.Delete(ctx, DeleteRequest{RelativePath: res.RelativePath, Checksum: res.Checksum, OwnerID: "u1"})
	require.ErrorIs(t, err, appErr.ErrRefCountUnavailable)
	assert.True(t, engine.Exists(res.RelativePath))
}

func TestDeleteRejectsForeignAndEscapingPaths(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()
	res, err := engine.Store(ctx, StoreRequest{Reader: strings.NewReader("a"), OwnerID: "u1", MediaType: mediautil.MediaTypeImage, Extension: ".jpg"})
	require.NoError(t, err)

	_, err = engine.Delete(ctx, DeleteRequest{RelativePath: res.RelativePath, Checksum: res.Checksum, OwnerID: "u2", Force: true})
	require.ErrorIs(t, err, appErr.ErrForbidden)
	_, err = engine.Delete(ctx, DeleteRequest{RelativePath: "../outside.jpg", OwnerID: "u1", Force: true})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = engine.FullPath("/etc/passwd")
	require.ErrorIs(t, err, appErr.ErrInvalid)
	assert.True(t, engine.Exists(res.RelativePath))
}
