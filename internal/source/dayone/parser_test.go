package dayone

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/journiv/internal/transfer"
)

const photoMD5 = "e249a0b05c6158a53c1338330f9bece4"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParseDirIsolatesBrokenManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Alpha.json"), `{"metadata":{"version":"1.0"},"entries":[
		{"uuid":"A1","creationDate":"2024-01-01T00:00:00Z","text":"one"},
		{"uuid":"A2","text":"no date"}
	]}`)
	writeFile(t, filepath.Join(dir, "Broken.json"), `{"entries": [`)
	writeFile(t, filepath.Join(dir, "Gamma.json"), `{"entries":[{"uuid":"G1","creationDate":"2024-02-01T00:00:00Z"}]}`)

	parsed, err := NewParser(ParserLimits{}).ParseDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, parsed, 3)

	assert.Equal(t, "Alpha", parsed[0].Name)
	require.NoError(t, parsed[0].Err)
	assert.Len(t, parsed[0].Journal.Entries, 1)
	assert.Len(t, parsed[0].Journal.Skipped, 1)
	assert.Equal(t, 2, parsed[0].Journal.Declared)
	assert.Equal(t, "1.0", parsed[0].Journal.ExportVersion)

	assert.Equal(t, "Broken", parsed[1].Name)
	assert.Error(t, parsed[1].Err)
	assert.Nil(t, parsed[1].Journal)

	require.NoError(t, parsed[2].Err)
	assert.Len(t, parsed[2].Journal.Entries, 1)
}

func TestParseDirBounds(t *testing.T) {
	dir := t.TempDir()
	_, err := NewParser(ParserLimits{}).ParseDir(context.Background(), dir)
	assert.Error(t, err)

	for _, name := range []string{"a", "b", "c"} {
		writeFile(t, filepath.Join(dir, name+".json"), `{"entries":[]}`)
	}
	_, err = NewParser(ParserLimits{MaxJSONFiles: 2}).ParseDir(context.Background(), dir)
	assert.Error(t, err)

	writeFile(t, filepath.Join(dir, "big.json"), `{"entries":[`+strings.Repeat(`{"uuid":"x","creationDate":"2024-01-01"},`, 3)+`{"uuid":"y","creationDate":"2024-01-01"}]}`)
	parsed, err := NewParser(ParserLimits{MaxEntries: 3}).ParseDir(context.Background(), dir)
	require.NoError(t, err)
	var bigErr error
	for _, p := range parsed {
		if p.Name == "big" {
			bigErr = p.Err
		}
	}
	assert.Error(t, bigErr)

	writeFile(t, filepath.Join(dir, "list.json"), `[]`)
	parsed, err = NewParser(ParserLimits{}).ParseDir(context.Background(), dir)
	require.NoError(t, err)
	for _, p := range parsed {
		if p.Name == "list" {
			assert.Error(t, p.Err)
		}
	}
}

func TestFindMedia(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Photos", photoMD5+".JPEG"), "jpeg")
	writeFile(t, filepath.Join(dir, "videos", "ABCD-1234.mov"), "mov")
	writeFile(t, filepath.Join(dir, "Photos", "FFFF-0000.raw"), "raw")
	assert.Equal(t, dir, MediaRoot(dir))

	md5 := strings.ToUpper(photoMD5)
	assert.Equal(t, filepath.Join(dir, "Photos", photoMD5+".JPEG"),
		FindMedia(dir, &Media{Identifier: "P1", MD5: &md5}, KindPhoto))
	assert.Equal(t, filepath.Join(dir, "videos", "ABCD-1234.mov"),
		FindMedia(dir, &Media{Identifier: "ABCD-1234"}, KindVideo))
	assert.Equal(t, filepath.Join(dir, "Photos", "FFFF-0000.raw"),
		FindMedia(dir, &Media{Identifier: "FFFF-0000"}, KindPhoto))
	assert.Equal(t, "", FindMedia(dir, &Media{Identifier: "../../etc/passwd"}, KindPhoto))
	assert.Equal(t, "", FindMedia(dir, &Media{Identifier: "ABCD-1234"}, MediaKind("audio")))
	assert.Equal(t, "", MediaRoot(t.TempDir()))
}

func TestAdapterParse(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "photos", photoMD5+".jpeg"), "jpeg-bytes")
	writeFile(t, filepath.Join(dir, "Travel.json"), `{"entries":[{
		"uuid":"E1",
		"creationDate":"2024-05-01T12:00:00Z",
		"text":"Day at the beach",
		"photos":[
			{"identifier":"P1","md5":"`+photoMD5+`","width":0,"height":600},
			{"identifier":"P2","md5":"00000000000000000000000000000000"}
		]
	}]}`)

	a := NewAdapter(ParserLimits{})
	a.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	res, err := a.Parse(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "dayone", a.Name())
	assert.Equal(t, dir, res.MediaRoot)
	assert.Equal(t, 1, res.MediaSkipped)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, transfer.WarnMediaMissing, res.Warnings[0].Category)

	require.Len(t, res.Journals, 1)
	j := res.Journals[0]
	require.NotNil(t, j.DTO)
	assert.Equal(t, "Travel", j.DTO.Title)
	assert.Equal(t, "Imported from Day One journal 'Travel'", *j.DTO.Description)
	assert.Equal(t, 1, res.EntryCount())
	require.Len(t, j.DTO.Entries, 1)
	media := j.DTO.Entries[0].Media
	require.Len(t, media, 1)
	assert.Equal(t, "photos/"+photoMD5+".jpeg", *media[0].FilePath)
	assert.Equal(t, "image", media[0].MediaType)
	assert.Equal(t, "image/jpeg", media[0].MimeType)
	assert.Equal(t, int64(len("jpeg-bytes")), media[0].FileSize)
	assert.Nil(t, media[0].Width)
	assert.Equal(t, 600, *media[0].Height)
	assert.Equal(t, "P1", *media[0].ExternalID)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), j.DTO.CreatedAt)
}
