package service

import (
	"regexp"
	"sort"
)

// rewriteLegacyMediaIDs points media references written by an older export
// at the ids created by this import. Video blocks and markdown images that
// mention an old id collapse into a media shortcode; bare API paths keep
// their shape.
func rewriteLegacyMediaIDs(content string, ids map[string]string) string {
	if content == "" || len(ids) == 0 {
		return content
	}
	olds := make([]string, 0, len(ids))
	for old := range ids {
		if old != "" {
			olds = append(olds, old)
		}
	}
	sort.Strings(olds)
	for _, old := range olds {
		id := ids[old]
		q := regexp.QuoteMeta(old)
		shortcode := "![[media:" + id + "]]"
		content = regexp.MustCompile(`(?i)!\[\[media:`+q+`\]\]`).ReplaceAllLiteralString(content, shortcode)
		content = regexp.MustCompile(`(?i):::video\s+\S*`+q+`\S*\s*:::`).ReplaceAllLiteralString(content, shortcode)
		content = regexp.MustCompile(`(?i)!\[[^\]]*\]\(\S*`+q+`\S*\)`).ReplaceAllLiteralString(content, shortcode)
		content = regexp.MustCompile(`(?i)/api/v1/media/`+q+`([^0-9A-Za-z_-]|$)`).ReplaceAllString(content, "/api/v1/media/"+id+"${1}")
	}
	return content
}
