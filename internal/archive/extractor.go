package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
	"github.com/xxxsen/journiv/internal/pkg/mediautil"
)

const (
	DefaultMaxTotalBytes int64 = 500 * 1024 * 1024
	DefaultMaxEntries          = 50000
	DefaultMaxNameLength       = 255
)

type Limits struct {
	MaxTotalBytes int64
	MaxEntries    int
	MaxNameLength int
}

func (l Limits) withDefaults() Limits {
	if l.MaxTotalBytes <= 0 {
		l.MaxTotalBytes = DefaultMaxTotalBytes
	}
	if l.MaxEntries <= 0 {
		l.MaxEntries = DefaultMaxEntries
	}
	if l.MaxNameLength <= 0 {
		l.MaxNameLength = DefaultMaxNameLength
	}
	return l
}

// UnsafeArchiveError carries the concrete violation for logs. Its message
// stays generic so callers never echo filesystem layout back to users.
type UnsafeArchiveError struct {
	Reason string
}

func (e *UnsafeArchiveError) Error() string {
	return appErr.ErrInvalidArchive.Error()
}

func (e *UnsafeArchiveError) Unwrap() error {
	return appErr.ErrInvalidArchive
}

func unsafeArchive(format string, args ...interface{}) error {
	return &UnsafeArchiveError{Reason: fmt.Sprintf(format, args...)}
}

// Reason returns the internal violation description of an archive error.
func Reason(err error) string {
	var ue *UnsafeArchiveError
	if errors.As(err, &ue) {
		return ue.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

type Extraction struct {
	Root         string
	ManifestPath string
	MediaDir     string
	Files        []string
	FileCount    int
	TotalSize    int64
	Warnings     []string
}

type Report struct {
	HasManifest bool
	HasMedia    bool
	FileCount   int
	TotalSize   int64
}

type Extractor struct {
	limits Limits
}

func NewExtractor(limits Limits) *Extractor {
	return &Extractor{limits: limits.withDefaults()}
}

// Extract validates the whole container first and only then writes the
// allowed members below dstDir.
func (x *Extractor) Extract(ctx context.Context, src, dstDir string) (*Extraction, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("archive", filepath.Base(src)))
	reader, err := zip.OpenReader(src)
	if err != nil {
		logger.Warn("archive rejected", zap.String("reason", "unreadable zip"), zap.Error(err))
		return nil, unsafeArchive("open zip: %v", err)
	}
	defer reader.Close()

	dstDir, err = filepath.Abs(dstDir)
	if err != nil {
		return nil, err
	}
	members, err := x.inspect(ctx, reader.File, dstDir)
	if err != nil {
		logger.Warn("archive rejected", zap.String("reason", Reason(err)))
		return nil, err
	}

	created := false
	if _, statErr := os.Stat(dstDir); os.IsNotExist(statErr) {
		created = true
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return nil, fmt.Errorf("create extraction dir: %w", err)
	}
	result := &Extraction{Root: dstDir}
	for _, m := range members {
		if m.file.FileInfo().IsDir() {
			if err := os.MkdirAll(m.target, 0o755); err != nil {
				x.cleanup(dstDir, created)
				return nil, fmt.Errorf("create dir: %w", err)
			}
			continue
		}
		if !mediautil.IsAllowedArchiveExtension(mediautil.Ext(m.name)) {
			logger.Warn("archive member skipped", zap.String("name", m.name))
			result.Warnings = append(result.Warnings, fmt.Sprintf("skipped unsupported file: %s", m.name))
			continue
		}
		if err := ctx.Err(); err != nil {
			x.cleanup(dstDir, created)
			return nil, err
		}
		n, err := writeMember(m.file, m.target)
		if err != nil {
			x.cleanup(dstDir, created)
			return nil, fmt.Errorf("extract %s: %w", m.name, err)
		}
		result.Files = append(result.Files, m.name)
		result.TotalSize += n
	}
	result.FileCount = len(result.Files)
	if info, err := os.Stat(filepath.Join(dstDir, ManifestName)); err == nil && info.Mode().IsRegular() {
		result.ManifestPath = filepath.Join(dstDir, ManifestName)
	}
	if info, err := os.Stat(filepath.Join(dstDir, MediaDirName)); err == nil && info.IsDir() {
		result.MediaDir = filepath.Join(dstDir, MediaDirName)
	}
	logger.Info("archive extracted", zap.Int("files", result.FileCount), zap.Int64("bytes", result.TotalSize), zap.Int("skipped", len(result.Warnings)))
	return result, nil
}

// Validate runs every extraction check without writing anything.
func (x *Extractor) Validate(ctx context.Context, src string) (*Report, error) {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return nil, unsafeArchive("open zip: %v", err)
	}
	defer reader.Close()
	members, err := x.inspect(ctx, reader.File, filepath.Join(os.TempDir(), "archive-validate"))
	if err != nil {
		return nil, err
	}
	report := &Report{}
	for _, m := range members {
		if m.file.FileInfo().IsDir() {
			continue
		}
		report.FileCount++
		report.TotalSize += int64(m.file.UncompressedSize64)
		if m.name == ManifestName {
			report.HasManifest = true
		}
		if strings.HasPrefix(m.name, MediaDirName+"/") {
			report.HasMedia = true
		}
	}
	return report, nil
}

func ListFiles(src string) ([]string, error) {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return nil, unsafeArchive("open zip: %v", err)
	}
	defer reader.Close()
	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	return names, nil
}

type member struct {
	file   *zip.File
	name   string
	target string
}

func (x *Extractor) inspect(ctx context.Context, files []*zip.File, dstDir string) ([]member, error) {
	if len(files) > x.limits.MaxEntries {
		return nil, unsafeArchive("too many entries: %d > %d", len(files), x.limits.MaxEntries)
	}
	var declared uint64
	for _, f := range files {
		declared += f.UncompressedSize64
		if declared > uint64(x.limits.MaxTotalBytes) {
			return nil, unsafeArchive("declared size exceeds %d bytes", x.limits.MaxTotalBytes)
		}
	}
	members := make([]member, 0, len(files))
	for _, f := range files {
		name, err := x.checkName(f.Name)
		if err != nil {
			return nil, err
		}
		if f.Mode()&os.ModeSymlink != 0 {
			return nil, unsafeArchive("symlink entry %q", f.Name)
		}
		target := filepath.Join(dstDir, filepath.FromSlash(name))
		rel, err := filepath.Rel(dstDir, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
			return nil, unsafeArchive("entry %q resolves outside destination", f.Name)
		}
		members = append(members, member{file: f, name: name, target: target})
	}
	for _, m := range members {
		if m.file.FileInfo().IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := verifyMember(m.file); err != nil {
			return nil, unsafeArchive("corrupted entry %q: %v", m.name, err)
		}
	}
	return members, nil
}

func (x *Extractor) checkName(raw string) (string, error) {
	if raw == "" {
		return "", unsafeArchive("empty entry name")
	}
	if strings.ContainsRune(raw, 0) {
		return "", unsafeArchive("entry name contains NUL")
	}
	name := strings.ReplaceAll(raw, "\\", "/")
	if strings.HasPrefix(name, "/") {
		return "", unsafeArchive("absolute entry %q", raw)
	}
	if strings.Contains(name, "..") {
		return "", unsafeArchive("parent reference in entry %q", raw)
	}
	if len(name) >= 2 && name[1] == ':' {
		return "", unsafeArchive("drive letter in entry %q", raw)
	}
	for _, part := range strings.Split(strings.TrimSuffix(name, "/"), "/") {
		if len(part) > x.limits.MaxNameLength {
			return "", unsafeArchive("entry name too long: %d", len(part))
		}
	}
	return strings.TrimSuffix(name, "/"), nil
}

// verifyMember reads the entry to the end so the zip reader checks its CRC
// and declared size.
func verifyMember(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	n, err := io.Copy(io.Discard, io.LimitReader(rc, int64(f.UncompressedSize64)+1))
	if err != nil {
		return err
	}
	if uint64(n) != f.UncompressedSize64 {
		return fmt.Errorf("size mismatch")
	}
	return nil
}

func writeMember(f *zip.File, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	n, copyErr := io.Copy(out, io.LimitReader(rc, int64(f.UncompressedSize64)))
	closeErr := out.Close()
	if copyErr != nil {
		return n, copyErr
	}
	return n, closeErr
}

func (x *Extractor) cleanup(dir string, created bool) {
	if created {
		_ = os.RemoveAll(dir)
	}
}
