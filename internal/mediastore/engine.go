package mediastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
	"github.com/xxxsen/journiv/internal/pkg/mediautil"
)

var (
	ownerPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	extPattern   = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)
)

// RefCounter reports how many attachment records still point at the
// physical file of (owner, checksum).
type RefCounter interface {
	CountByChecksum(ctx context.Context, ownerID, checksum string) (int, error)
}

type Engine struct {
	root string
	refs RefCounter
}

type StoreRequest struct {
	// Exactly one of Reader and SourcePath is used; Reader wins.
	Reader     io.Reader
	SourcePath string
	OwnerID    string
	MediaType  mediautil.MediaType
	Extension  string
	// Checksum is optional. When present it must be the SHA-256 of the source.
	Checksum string
}

type StoreResult struct {
	RelativePath string
	Checksum     string
	Size         int64
	Deduplicated bool
}

type DeleteRequest struct {
	RelativePath string
	// Checksum empty means the record predates hashing and cannot be counted.
	Checksum string
	OwnerID  string
	Force    bool
}

func New(root string, refs RefCounter) *Engine {
	return &Engine{root: filepath.Clean(root), refs: refs}
}

func (e *Engine) Root() string {
	return e.root
}

// RelativePath is the deterministic location of (owner, type, checksum, ext).
func RelativePath(ownerID string, mediaType mediautil.MediaType, checksum, ext string) (string, error) {
	if !ownerPattern.MatchString(ownerID) {
		return "", fmt.Errorf("invalid owner id %q: %w", ownerID, appErr.ErrInvalid)
	}
	if !mediautil.IsChecksum(checksum) {
		return "", fmt.Errorf("invalid checksum %q: %w", checksum, appErr.ErrInvalid)
	}
	dir, err := mediautil.StorageDir(mediaType)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, appErr.ErrInvalid)
	}
	ext, err = normalizeExtension(ext)
	if err != nil {
		return "", err
	}
	return ownerID + "/" + dir + "/" + checksum + ext, nil
}

func (e *Engine) Store(ctx context.Context, req StoreRequest) (*StoreResult, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("owner", req.OwnerID), zap.String("media_type", string(req.MediaType)))
	claimed := strings.ToLower(strings.TrimSpace(req.Checksum))
	if claimed != "" {
		rel, err := RelativePath(req.OwnerID, req.MediaType, claimed, req.Extension)
		if err != nil {
			return nil, err
		}
		full := e.join(rel)
		if info, err := os.Stat(full); err == nil {
			logger.Debug("media deduplicated", zap.String("path", rel))
			return &StoreResult{RelativePath: rel, Checksum: claimed, Size: info.Size(), Deduplicated: true}, nil
		}
	}
	// validate before touching the disk
	if _, err := RelativePath(req.OwnerID, req.MediaType, strings.Repeat("0", 64), req.Extension); err != nil {
		return nil, err
	}

	src, closeFn, err := openSource(req)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	typeDir, _ := mediautil.StorageDir(req.MediaType)
	dir := filepath.Join(e.root, req.OwnerID, typeDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".incoming-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	checksum, size, err := mediautil.ChecksumReader(io.TeeReader(src, tmp))
	if err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("write media: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("sync media: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close media: %w", err)
	}
	if claimed != "" && claimed != checksum {
		logger.Error("media content does not match claimed checksum",
			zap.String("claimed", claimed), zap.String("actual", checksum))
		return nil, appErr.ErrChecksumMismatch
	}

	rel, err := RelativePath(req.OwnerID, req.MediaType, checksum, req.Extension)
	if err != nil {
		return nil, err
	}
	full := e.join(rel)
	if info, err := os.Stat(full); err == nil {
		if info.Size() != size {
			logger.Error("existing media differs from new content under the same checksum",
				zap.String("path", rel), zap.Int64("existing_size", info.Size()), zap.Int64("new_size", size))
			return nil, appErr.ErrChecksumMismatch
		}
		return &StoreResult{RelativePath: rel, Checksum: checksum, Size: size, Deduplicated: true}, nil
	}
	if err := os.Rename(tmpPath, full); err != nil {
		return nil, fmt.Errorf("commit media: %w", err)
	}
	committed = true
	logger.Debug("media stored", zap.String("path", rel), zap.Int64("size", size))
	return &StoreResult{RelativePath: rel, Checksum: checksum, Size: size}, nil
}

// Delete unlinks the physical file unless other records still reference it.
// Record deletion is the caller's business and must happen first.
func (e *Engine) Delete(ctx context.Context, req DeleteRequest) (bool, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("owner", req.OwnerID), zap.String("path", req.RelativePath))
	full, err := e.FullPath(req.RelativePath)
	if err != nil {
		return false, err
	}
	if !strings.HasPrefix(filepath.ToSlash(filepath.Clean(req.RelativePath)), req.OwnerID+"/") {
		return false, fmt.Errorf("path outside owner scope: %w", appErr.ErrForbidden)
	}
	force := req.Force
	if req.Checksum == "" && !force {
		logger.Info("media has no checksum, deleting without reference check")
		force = true
	}
	if !force {
		if e.refs == nil {
			logger.Error("reference counted delete requested without a reference source")
			return false, appErr.ErrRefCountUnavailable
		}
		count, err := e.refs.CountByChecksum(ctx, req.OwnerID, req.Checksum)
		if err != nil {
			return false, fmt.Errorf("count media references: %w", err)
		}
		if count > 0 {
			logger.Debug("media still referenced, keeping file", zap.Int("references", count))
			return false, nil
		}
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("remove media: %w", err)
	}
	e.pruneEmptyParents(filepath.Dir(full))
	return true, nil
}

func (e *Engine) Open(relativePath string) (*os.File, error) {
	full, err := e.FullPath(relativePath)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (e *Engine) Exists(relativePath string) bool {
	full, err := e.FullPath(relativePath)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}

// FullPath resolves a stored relative path, refusing anything that escapes
// the storage root.
func (e *Engine) FullPath(relativePath string) (string, error) {
	if relativePath == "" || filepath.IsAbs(relativePath) || strings.HasPrefix(relativePath, "/") {
		return "", fmt.Errorf("invalid media path %q: %w", relativePath, appErr.ErrInvalid)
	}
	full := filepath.Join(e.root, filepath.FromSlash(relativePath))
	rel, err := filepath.Rel(e.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid media path %q: %w", relativePath, appErr.ErrInvalid)
	}
	return full, nil
}

func (e *Engine) join(rel string) string {
	return filepath.Join(e.root, filepath.FromSlash(rel))
}

func (e *Engine) pruneEmptyParents(dir string) {
	for {
		if dir == e.root || !strings.HasPrefix(dir, e.root+string(filepath.Separator)) {
			return
		}
		// Remove fails on non-empty directories, which ends the walk.
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func openSource(req StoreRequest) (io.Reader, func(), error) {
	if req.Reader != nil {
		return req.Reader, func() {}, nil
	}
	if req.SourcePath == "" {
		return nil, nil, fmt.Errorf("media source is required: %w", appErr.ErrInvalid)
	}
	f, err := os.Open(req.SourcePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open media source: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func normalizeExtension(ext string) (string, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return "", nil
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if !extPattern.MatchString(ext) {
		return "", fmt.Errorf("invalid extension %q: %w", ext, appErr.ErrInvalid)
	}
	return ext, nil
}
