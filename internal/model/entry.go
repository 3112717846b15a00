package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/xxxsen/journiv/internal/delta"
	"github.com/xxxsen/journiv/internal/pkg/timeutil"
)

// Entry stores markdown content. ContentDelta and PlainText are derived on
// every write and never edited directly.
type Entry struct {
	ID             string   `json:"id"`
	JournalID      string   `json:"journal_id"`
	UserID         string   `json:"user_id"`
	Title          *string  `json:"title,omitempty"`
	Content        string   `json:"content"`
	ContentDelta   string   `json:"content_delta"`
	PlainText      string   `json:"content_plain_text"`
	EntryDate      string   `json:"entry_date"`
	EntryDatetime  int64    `json:"entry_datetime_utc"`
	EntryTimezone  string   `json:"entry_timezone"`
	WordCount      int      `json:"word_count"`
	IsPinned       bool     `json:"is_pinned"`
	IsDraft        bool     `json:"is_draft"`
	MediaCount     int      `json:"media_count"`
	Location       string   `json:"location_json,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	Weather        string   `json:"weather_json,omitempty"`
	WeatherSummary *string  `json:"weather_summary,omitempty"`
	ImportMetadata string   `json:"import_metadata,omitempty"`
	Ctime          int64    `json:"ctime"`
	Mtime          int64    `json:"mtime"`
}

var mediaShortcode = regexp.MustCompile(`!\[\[media:[^\]]*\]\]`)

// Derive refreshes the fields computed from content and time: timezone,
// local date, structured document, plain text and word count.
func (e *Entry) Derive() error {
	e.EntryTimezone = timeutil.NormalizeTimezone(e.EntryTimezone)
	e.EntryDate = timeutil.LocalDate(time.Unix(e.EntryDatetime, 0).UTC(), e.EntryTimezone)
	doc := delta.WrapPlainText(e.Content)
	raw, err := doc.Marshal()
	if err != nil {
		return err
	}
	e.ContentDelta = string(raw)
	e.PlainText = MarkdownToPlainText(e.Content)
	e.WordCount = CountWords(e.Content)
	if e.Title != nil {
		t := strings.TrimSpace(*e.Title)
		if t == "" {
			e.Title = nil
		} else {
			e.Title = &t
		}
	}
	return nil
}

func CountWords(content string) int {
	return len(strings.Fields(content))
}

// MarkdownToPlainText renders the text nodes of a markdown document, one line
// per block. Media shortcodes are dropped.
func MarkdownToPlainText(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	source := []byte(mediaShortcode.ReplaceAllString(src, ""))
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))
	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument && n.NextSibling() != nil {
				sb.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteString("\n")
			}
		case *ast.String:
			sb.Write(node.Value)
		case *ast.AutoLink:
			sb.Write(node.URL(source))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	lines := strings.Split(sb.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
