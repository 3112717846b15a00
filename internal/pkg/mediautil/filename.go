package mediautil

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const MaxFilenameLength = 255

var unsafeFilenameChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", "\"", "_", "|", "_",
	"?", "_", "*", "_", "\\", "_", "/", "_", "\x00", "_",
)

// SanitizeFilename reduces name to a single safe path component.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = unsafeFilenameChars.Replace(name)
	name = strings.Trim(name, ". ")
	if name == "" {
		return "unnamed"
	}
	if len(name) <= MaxFilenameLength {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) >= MaxFilenameLength {
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)
	return truncateUTF8(stem, MaxFilenameLength-len(ext)) + ext
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// Ext returns the lowercased extension including the leading dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
