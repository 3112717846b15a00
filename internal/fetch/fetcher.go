// Package fetch downloads remote media referenced by imports.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
)

type Options struct {
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	MaxBytes     int64
}

type Fetcher struct {
	client   *resty.Client
	maxBytes int64
}

func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 200 * time.Millisecond
	}
	if opts.RetryMaxWait <= 0 {
		opts.RetryMaxWait = 2 * time.Second
	}
	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetRetryCount(opts.RetryCount)
	client.SetRetryWaitTime(opts.RetryWait)
	client.SetRetryMaxWaitTime(opts.RetryMaxWait)
	client.AddRetryCondition(func(resp *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		code := resp.StatusCode()
		return code == http.StatusTooManyRequests || code >= 500
	})
	return &Fetcher{client: client, maxBytes: opts.MaxBytes}
}

// Download writes the body of rawURL to dst and returns its size. Bodies
// larger than the configured cap fail with ErrFileTooLarge and leave
// nothing behind.
func (f *Fetcher) Download(ctx context.Context, rawURL, dst string) (int64, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("url", rawURL))
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return 0, fmt.Errorf("unsupported media url %q: %w", rawURL, appErr.ErrInvalid)
	}
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		logger.Warn("remote media fetch failed", zap.Error(err))
		return 0, fmt.Errorf("fetch media: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return 0, fmt.Errorf("fetch media: HTTP %d", resp.StatusCode())
	}
	if f.maxBytes > 0 && resp.RawResponse.ContentLength > f.maxBytes {
		return 0, fmt.Errorf("remote media is %d bytes: %w", resp.RawResponse.ContentLength, appErr.ErrFileTooLarge)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".fetch-*.tmp")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()
	var reader io.Reader = body
	if f.maxBytes > 0 {
		reader = io.LimitReader(body, f.maxBytes+1)
	}
	n, err := io.Copy(tmp, reader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("write media: %w", err)
	}
	if f.maxBytes > 0 && n > f.maxBytes {
		return 0, fmt.Errorf("remote media exceeds %d bytes: %w", f.maxBytes, appErr.ErrFileTooLarge)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, err
	}
	committed = true
	logger.Debug("remote media fetched", zap.Int64("size", n))
	return n, nil
}

// FilenameFromURL picks a local name for a remote asset.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := filepath.Base(u.Path)
	if name == "." || name == "/" || strings.TrimSpace(name) == "" {
		return ""
	}
	return name
}
