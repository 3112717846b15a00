package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

const (
	ManifestName = "data.json"
	MediaDirName = "media"
)

// Create writes manifest as ManifestName plus every media entry
// (archive path -> absolute source path) into a new zip at dst and returns the
// final archive size. Media archive paths are rooted under MediaDirName.
func Create(ctx context.Context, dst string, manifest interface{}, media map[string]string) (int64, error) {
	out, err := os.CreateTemp(filepath.Dir(dst), ".archive-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	tmpPath := out.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	zw := zip.NewWriter(out)
	if err := writeManifest(zw, manifest); err != nil {
		_ = zw.Close()
		_ = out.Close()
		return 0, err
	}
	names := make([]string, 0, len(media))
	for name := range media {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			_ = out.Close()
			return 0, err
		}
		if err := addFile(zw, MediaDirName+"/"+strings.TrimPrefix(name, "/"), media[name]); err != nil {
			_ = zw.Close()
			_ = out.Close()
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("finish archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, fmt.Errorf("commit archive: %w", err)
	}
	committed = true
	info, err := os.Stat(dst)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func writeManifest(zw *zip.Writer, manifest interface{}) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: ManifestName, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("create manifest entry: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, name, source string) error {
	f, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("open media %s: %w", name, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	// already-compressed media gains nothing from deflate
	header.Method = zip.Store
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create media entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write media entry %s: %w", name, err)
	}
	return nil
}
