package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
	"github.com/xxxsen/journiv/internal/pkg/mediautil"
)

const (
	uploadDirName  = "uploads"
	extractDirName = "extracted"
)

// UploadService owns the import temp tree: raw uploads under uploads/ and
// one extraction directory per upload under extracted/.
type UploadService struct {
	root     string
	maxBytes int64
}

func NewUploadService(tempDir string, maxBytes int64) *UploadService {
	return &UploadService{root: filepath.Clean(tempDir), maxBytes: maxBytes}
}

func (s *UploadService) UploadDir() string {
	return filepath.Join(s.root, uploadDirName)
}

// Save streams r to {tmp}/uploads/{uuid}_{name}. Only .zip files are
// accepted and the copy stops as soon as the size limit is crossed.
func (s *UploadService) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	name := mediautil.SanitizeFilename(filename)
	if mediautil.Ext(name) != ".zip" {
		return "", fmt.Errorf("only .zip uploads are accepted: %w", appErr.ErrInvalid)
	}
	if err := os.MkdirAll(s.UploadDir(), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	dst := filepath.Join(s.UploadDir(), newID()+"_"+name)
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if err := multierr.Append(copyErr, closeErr); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		_ = os.Remove(dst)
		logutil.GetLogger(ctx).Warn("upload exceeds size limit",
			zap.String("file", name), zap.Int64("limit", s.maxBytes))
		return "", appErr.ErrFileTooLarge
	}
	logutil.GetLogger(ctx).Info("upload saved", zap.String("path", dst), zap.Int64("size", n))
	return dst, nil
}

// ExtractionDir is where the archive at uploadPath is unpacked.
func (s *UploadService) ExtractionDir(uploadPath string) string {
	base := filepath.Base(uploadPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(s.root, extractDirName, base)
}

// Owns reports whether path is an upload managed by this service. Files
// outside the upload dir, such as a CLI import source, are never removed.
func (s *UploadService) Owns(path string) bool {
	rel, err := filepath.Rel(s.UploadDir(), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !strings.ContainsRune(rel, filepath.Separator)
}

// Cleanup removes the extraction directory and, when owned, the upload.
func (s *UploadService) Cleanup(ctx context.Context, uploadPath string) error {
	var err error
	if s.Owns(uploadPath) {
		if rmErr := os.Remove(uploadPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = multierr.Append(err, rmErr)
		}
	}
	err = multierr.Append(err, os.RemoveAll(s.ExtractionDir(uploadPath)))
	if err != nil {
		logutil.GetLogger(ctx).Error("import cleanup failed", zap.String("path", uploadPath), zap.Error(err))
	}
	return err
}

// CleanupStale removes uploads and extraction directories last modified
// before now-maxAge and returns how many were removed.
func (s *UploadService) CleanupStale(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-maxAge)
	removed := 0
	var err error
	for _, dir := range []string{s.UploadDir(), filepath.Join(s.root, extractDirName)} {
		items, readErr := os.ReadDir(dir)
		if readErr != nil {
			if !errors.Is(readErr, os.ErrNotExist) {
				err = multierr.Append(err, readErr)
			}
			continue
		}
		for _, item := range items {
			info, infoErr := item.Info()
			if infoErr != nil {
				err = multierr.Append(err, infoErr)
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			if rmErr := os.RemoveAll(filepath.Join(dir, item.Name())); rmErr != nil {
				err = multierr.Append(err, rmErr)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("removed stale import files", zap.Int("count", removed))
	}
	return removed, err
}
