package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/journiv/internal/fetch"
	"github.com/xxxsen/journiv/internal/mediastore"
	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
	"github.com/xxxsen/journiv/internal/pkg/mediautil"
	"github.com/xxxsen/journiv/internal/transfer"
)

const defaultMediaConcurrency = 3

var uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// MediaImporter copies the files referenced by media DTOs into the media
// store. It never touches the database, so staging can run before or inside
// a transaction.
type MediaImporter struct {
	engine      *mediastore.Engine
	fetcher     *fetch.Fetcher
	concurrency int
	tempDir     string
}

// NewMediaImporter builds an importer. A nil fetcher disables downloading
// media that only carry an external URL.
func NewMediaImporter(engine *mediastore.Engine, fetcher *fetch.Fetcher, concurrency int, tempDir string) *MediaImporter {
	if concurrency <= 0 {
		concurrency = defaultMediaConcurrency
	}
	return &MediaImporter{engine: engine, fetcher: fetcher, concurrency: concurrency, tempDir: tempDir}
}

// stagedMedia is one attachment whose bytes are already in the store, or
// the reason it was skipped.
type stagedMedia struct {
	DTO       *transfer.MediaDTO
	Stored    *mediastore.StoreResult
	MediaType mediautil.MediaType
	MimeType  string
	// SourceKey is the lowercased file stem, which Day One placeholders use.
	SourceKey string
	LegacyID  string

	WarnCategory string
	Warning      string
}

func (s *stagedMedia) Skipped() bool {
	return s.Stored == nil
}

func (s *stagedMedia) skip(category, format string, args ...interface{}) {
	s.WarnCategory = category
	s.Warning = fmt.Sprintf(format, args...)
}

// Stage stores every item with bounded concurrency. Results keep the shape
// of items. Per-item failures are reported on the result; only cancellation
// is returned as an error.
func (m *MediaImporter) Stage(ctx context.Context, ownerID, mediaRoot string, items [][]transfer.MediaDTO) ([][]stagedMedia, error) {
	out := make([][]stagedMedia, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i := range items {
		out[i] = make([]stagedMedia, len(items[i]))
		for k := range items[i] {
			i, k := i, k
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				out[i][k] = m.stageOne(gctx, ownerID, mediaRoot, &items[i][k])
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MediaImporter) stageOne(ctx context.Context, ownerID, mediaRoot string, dto *transfer.MediaDTO) stagedMedia {
	logger := logutil.GetLogger(ctx).With(zap.String("media", dto.Filename))
	st := stagedMedia{DTO: dto, LegacyID: legacyMediaID(dto)}

	path, cleanup, ok := m.resolve(ctx, mediaRoot, dto, &st)
	if !ok {
		return st
	}
	defer cleanup()
	st.SourceKey = strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))

	ext := mediautil.Ext(dto.Filename)
	if ext == "" {
		ext = mediautil.Ext(path)
	}
	if ext == "" {
		ext = mediautil.ExtensionForMIME(dto.MimeType)
	}
	st.MimeType = dto.MimeType
	if st.MimeType == "" || st.MimeType == "application/octet-stream" {
		st.MimeType = mediautil.MIMEForExtension(ext)
	}
	if st.MimeType == "application/octet-stream" {
		if detected, err := mediautil.DetectMIME(path); err == nil {
			st.MimeType = detected
		}
	}
	st.MediaType = mediautil.ParseMediaType(dto.MediaType)
	if st.MediaType == mediautil.MediaTypeUnknown {
		st.MediaType = mediautil.MediaTypeForExtension(ext)
	}
	if st.MediaType == mediautil.MediaTypeUnknown {
		st.MediaType = mediautil.MediaTypeForMIME(st.MimeType)
	}
	if st.MediaType == mediautil.MediaTypeUnknown {
		st.skip(transfer.WarnMediaFailed, "Unsupported media type, skipping media: %s", dto.Filename)
		return st
	}
	if ext == "" {
		ext = mediautil.ExtensionForMIME(st.MimeType)
	}

	claimed := ""
	if dto.Checksum != nil && mediautil.IsChecksum(strings.ToLower(*dto.Checksum)) {
		claimed = strings.ToLower(*dto.Checksum)
	}
	res, err := m.engine.Store(ctx, mediastore.StoreRequest{
		SourcePath: path,
		OwnerID:    ownerID,
		MediaType:  st.MediaType,
		Extension:  ext,
		Checksum:   claimed,
	})
	if err != nil {
		logger.Error("store media failed", zap.Error(err))
		if errors.Is(err, appErr.ErrChecksumMismatch) {
			st.skip(transfer.WarnMediaFailed, "Checksum mismatch, skipping media: %s", dto.Filename)
			return st
		}
		st.skip(transfer.WarnMediaFailed, "Failed to store media %s: %v", dto.Filename, err)
		return st
	}
	st.Stored = res
	return st
}

// resolve finds the bytes of dto: a file below mediaRoot, or a download when
// only an external URL is known.
func (m *MediaImporter) resolve(ctx context.Context, mediaRoot string, dto *transfer.MediaDTO, st *stagedMedia) (string, func(), bool) {
	noop := func() {}
	if dto.FilePath != nil && strings.TrimSpace(*dto.FilePath) != "" {
		rel := strings.TrimSpace(*dto.FilePath)
		if mediaRoot == "" {
			st.skip(transfer.WarnMediaMissing, "No media directory, skipping media: %s", dto.Filename)
			return "", noop, false
		}
		full, ok := resolveUnder(mediaRoot, rel)
		if !ok {
			logutil.GetLogger(ctx).Warn("media path escapes import root", zap.String("path", rel))
			st.skip(transfer.WarnMediaOutsideRoot, "Media path outside import root, skipping media: %s", dto.Filename)
			return "", noop, false
		}
		info, err := os.Stat(full)
		if err != nil || !info.Mode().IsRegular() {
			st.skip(transfer.WarnMediaMissing, "Media file not found: %s", rel)
			return "", noop, false
		}
		return full, noop, true
	}
	if dto.ExternalURL != nil && *dto.ExternalURL != "" && m.fetcher != nil {
		return m.download(ctx, *dto.ExternalURL, dto, st)
	}
	st.skip(transfer.WarnMediaMissing, "Media has no file path, skipping media: %s", dto.Filename)
	return "", noop, false
}

func (m *MediaImporter) download(ctx context.Context, rawURL string, dto *transfer.MediaDTO, st *stagedMedia) (string, func(), bool) {
	noop := func() {}
	dir := filepath.Join(m.tempDir, "remote")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		st.skip(transfer.WarnMediaFailed, "Failed to download media %s: %v", dto.Filename, err)
		return "", noop, false
	}
	name := dto.Filename
	if name == "" {
		name = fetch.FilenameFromURL(rawURL)
	}
	dst := filepath.Join(dir, newID()+"_"+mediautil.SanitizeFilename(name))
	if _, err := m.fetcher.Download(ctx, rawURL, dst); err != nil {
		logutil.GetLogger(ctx).Warn("remote media download failed", zap.String("url", rawURL), zap.Error(err))
		st.skip(transfer.WarnMediaFailed, "Failed to download media %s: %v", dto.Filename, err)
		return "", noop, false
	}
	return dst, func() { _ = os.Remove(dst) }, true
}

// resolveUnder joins a manifest-relative path to root and rejects results
// outside root.
func resolveUnder(root, rel string) (string, bool) {
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", false
	}
	root = filepath.Clean(root)
	full := filepath.Join(root, filepath.FromSlash(rel))
	r, err := filepath.Rel(root, full)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

// legacyMediaID recovers the id a media file had in the system that exported
// it. Native archives name files {media_id}_{filename}.
func legacyMediaID(dto *transfer.MediaDTO) string {
	name := dto.Filename
	if dto.FilePath != nil && *dto.FilePath != "" {
		name = filepath.Base(filepath.FromSlash(*dto.FilePath))
	}
	if prefix, _, ok := strings.Cut(name, "_"); ok {
		if len(prefix) == 36 && uuidPattern.MatchString(prefix) {
			return strings.ToLower(prefix)
		}
	}
	return strings.ToLower(uuidPattern.FindString(name))
}
