package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
)

type zipEntry struct {
	name string
	body string
	mode os.FileMode
}

func writeZip(t *testing.T, entries []zipEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, e := range entries {
		h := &zip.FileHeader{Name: e.name, Method: zip.Store}
		if e.mode != 0 {
			h.SetMode(e.mode)
		}
		w, err := zw.CreateHeader(h)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return len(entries)
}

func TestCreateAndExtractRoundTrip(t *testing.T) {
	ctx := context.Background()
	srcDir := t.TempDir()
	photo := filepath.Join(srcDir, "p.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg-bytes"), 0o644))

	archivePath := filepath.Join(t.TempDir(), "out.zip")
	size, err := Create(ctx, archivePath, map[string]string{"export_version": "1.0"}, map[string]string{
		"entry-1/media-1_p.jpg": photo,
	})
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))

	names, err := ListFiles(archivePath)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"data.json", "media/entry-1/media-1_p.jpg"}, names)

	dst := filepath.Join(t.TempDir(), "x")
	res, err := NewExtractor(Limits{}).Extract(ctx, archivePath, dst)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(res.Root, ManifestName), res.ManifestPath)
	assert.Equal(t, filepath.Join(res.Root, MediaDirName), res.MediaDir)
	assert.Equal(t, 2, res.FileCount)

	raw, err := os.ReadFile(res.ManifestPath)
	require.NoError(t, err)
	var manifest map[string]string
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Equal(t, "1.0", manifest["export_version"])

	body, err := os.ReadFile(filepath.Join(res.MediaDir, "entry-1", "media-1_p.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(body))
}

func TestExtractRejectsUnsafeContainers(t *testing.T) {
	cases := []struct {
		name    string
		entries []zipEntry
		limits  Limits
	}{
		{"parent traversal", []zipEntry{{name: "data.json", body: "{}"}, {name: "../../evil.json", body: "x"}}, Limits{}},
		{"nested traversal", []zipEntry{{name: "media/../../evil.jpg", body: "x"}}, Limits{}},
		{"absolute path", []zipEntry{{name: "/etc/evil.json", body: "x"}}, Limits{}},
		{"backslash absolute", []zipEntry{{name: "\\evil.json", body: "x"}}, Limits{}},
		{"nul byte", []zipEntry{{name: "a\x00.json", body: "x"}}, Limits{}},
		{"symlink", []zipEntry{{name: "data.json", body: "{}"}, {name: "media/link.jpg", body: "/etc/passwd", mode: os.ModeSymlink | 0o777}}, Limits{}},
		{"too many entries", []zipEntry{{name: "a.json", body: "1"}, {name: "b.json", body: "2"}, {name: "c.json", body: "3"}}, Limits{MaxEntries: 2}},
		{"too large", []zipEntry{{name: "data.json", body: "0123456789abcdef"}}, Limits{MaxTotalBytes: 10}},
		{"long name", []zipEntry{{name: string(bytes.Repeat([]byte("a"), 300)) + ".json", body: "x"}}, Limits{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := writeZip(t, tc.entries)
			dst := filepath.Join(t.TempDir(), "dst")
			_, err := NewExtractor(tc.limits).Extract(context.Background(), src, dst)
			require.Error(t, err)
			assert.ErrorIs(t, err, appErr.ErrInvalidArchive)
			assert.Equal(t, "invalid archive", err.Error())
			assert.NotEmpty(t, Reason(err))
			assert.Equal(t, 0, dirEntries(t, dst))
		})
	}
}

func TestExtractRejectsCorruptedEntryBeforeWriting(t *testing.T) {
	src := writeZip(t, []zipEntry{
		{name: "data.json", body: `{"ok":true}`},
		{name: "media/a.jpg", body: "PAYLOAD-PAYLOAD-PAYLOAD"},
	})
	raw, err := os.ReadFile(src)
	require.NoError(t, err)
	idx := bytes.Index(raw, []byte("PAYLOAD-PAYLOAD"))
	require.GreaterOrEqual(t, idx, 0)
	raw[idx] = 'X'
	require.NoError(t, os.WriteFile(src, raw, 0o644))

	dst := filepath.Join(t.TempDir(), "dst")
	_, err = NewExtractor(Limits{}).Extract(context.Background(), src, dst)
	require.ErrorIs(t, err, appErr.ErrInvalidArchive)
	assert.Equal(t, 0, dirEntries(t, dst))
}

func TestExtractSkipsDisallowedExtensions(t *testing.T) {
	src := writeZip(t, []zipEntry{
		{name: "data.json", body: "{}"},
		{name: "media/run.sh", body: "rm -rf /"},
		{name: "media/ok.png", body: "png"},
	})
	res, err := NewExtractor(Limits{}).Extract(context.Background(), src, t.TempDir())
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1)
	assert.Equal(t, []string{"data.json", "media/ok.png"}, res.Files)
	_, err = os.Stat(filepath.Join(res.Root, "media", "run.sh"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractWithoutManifest(t *testing.T) {
	src := writeZip(t, []zipEntry{{name: "Journal.json", body: "{}"}})
	res, err := NewExtractor(Limits{}).Extract(context.Background(), src, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, res.ManifestPath)
	assert.Empty(t, res.MediaDir)
}

func TestExtractRejectsNonZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))
	_, err := NewExtractor(Limits{}).Extract(context.Background(), path, t.TempDir())
	require.ErrorIs(t, err, appErr.ErrInvalidArchive)
}

func TestValidateReportsStructure(t *testing.T) {
	src := writeZip(t, []zipEntry{
		{name: "data.json", body: "{}"},
		{name: "media/e/a.jpg", body: "abc"},
	})
	report, err := NewExtractor(Limits{}).Validate(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, report.HasManifest)
	assert.True(t, report.HasMedia)
	assert.Equal(t, 2, report.FileCount)
	assert.Equal(t, int64(5), report.TotalSize)

	bad := writeZip(t, []zipEntry{{name: "../x.json", body: "{}"}})
	_, err = NewExtractor(Limits{}).Validate(context.Background(), bad)
	require.ErrorIs(t, err, appErr.ErrInvalidArchive)
}
