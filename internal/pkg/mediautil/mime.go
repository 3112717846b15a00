package mediautil

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type MediaType string

const (
	MediaTypeImage   MediaType = "image"
	MediaTypeVideo   MediaType = "video"
	MediaTypeAudio   MediaType = "audio"
	MediaTypeUnknown MediaType = "unknown"
)

var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".svg":  "image/svg+xml",
	".heic": "image/heic",
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".flv":  "video/x-flv",
	".m4v":  "video/x-m4v",
	".wmv":  "video/x-ms-wmv",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".wma":  "audio/x-ms-wma",
}

var extByMIME = map[string]string{
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"image/bmp":        ".bmp",
	"image/tiff":       ".tiff",
	"image/svg+xml":    ".svg",
	"image/heic":       ".heic",
	"video/mp4":        ".mp4",
	"video/x-msvideo":  ".avi",
	"video/quicktime":  ".mov",
	"video/webm":       ".webm",
	"video/x-matroska": ".mkv",
	"video/x-flv":      ".flv",
	"video/x-m4v":      ".m4v",
	"video/x-ms-wmv":   ".wmv",
	"audio/mpeg":       ".mp3",
	"audio/wav":        ".wav",
	"audio/ogg":        ".ogg",
	"audio/mp4":        ".m4a",
	"audio/aac":        ".aac",
	"audio/flac":       ".flac",
	"audio/x-ms-wma":   ".wma",
}

// archiveExtras are non-media files an import container may carry.
var archiveExtras = map[string]bool{
	".json": true,
}

func MIMEForExtension(ext string) string {
	if mt, ok := mimeByExt[normalizeExt(ext)]; ok {
		return mt
	}
	return "application/octet-stream"
}

func ExtensionForMIME(mt string) string {
	mt = strings.ToLower(strings.TrimSpace(mt))
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = strings.TrimSpace(mt[:idx])
	}
	return extByMIME[mt]
}

func MediaTypeForExtension(ext string) MediaType {
	mt, ok := mimeByExt[normalizeExt(ext)]
	if !ok {
		return MediaTypeUnknown
	}
	return MediaTypeForMIME(mt)
}

func MediaTypeForMIME(mt string) MediaType {
	switch {
	case strings.HasPrefix(mt, "image/"):
		return MediaTypeImage
	case strings.HasPrefix(mt, "video/"):
		return MediaTypeVideo
	case strings.HasPrefix(mt, "audio/"):
		return MediaTypeAudio
	default:
		return MediaTypeUnknown
	}
}

func ParseMediaType(value string) MediaType {
	switch MediaType(strings.ToLower(strings.TrimSpace(value))) {
	case MediaTypeImage:
		return MediaTypeImage
	case MediaTypeVideo:
		return MediaTypeVideo
	case MediaTypeAudio:
		return MediaTypeAudio
	default:
		return MediaTypeUnknown
	}
}

// StorageDir is the per-owner directory name for a media type.
func StorageDir(t MediaType) (string, error) {
	switch t {
	case MediaTypeImage:
		return "images", nil
	case MediaTypeVideo:
		return "videos", nil
	case MediaTypeAudio:
		return "audio", nil
	default:
		return "", fmt.Errorf("unsupported media type %q", t)
	}
}

func IsMediaExtension(ext string) bool {
	_, ok := mimeByExt[normalizeExt(ext)]
	return ok
}

// IsAllowedArchiveExtension reports whether an archive member with this
// extension may be extracted.
func IsAllowedArchiveExtension(ext string) bool {
	ext = normalizeExt(ext)
	return archiveExtras[ext] || IsMediaExtension(ext)
}

// DetectMIME sniffs the file header. The extension table wins when the
// sniffer only recognizes a generic container type.
func DetectMIME(path string) (string, error) {
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect mime %s: %w", path, err)
	}
	mt := detected.String()
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = mt[:idx]
	}
	if mt == "application/octet-stream" || mt == "text/plain" {
		if byExt, ok := mimeByExt[Ext(path)]; ok {
			return byExt, nil
		}
	}
	return mt, nil
}

func ValidateFileSize(size, max int64) error {
	if size < 0 {
		return fmt.Errorf("invalid file size %d", size)
	}
	if max > 0 && size > max {
		return fmt.Errorf("file size %d exceeds limit %d", size, max)
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
