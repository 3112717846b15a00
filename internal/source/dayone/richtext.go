package dayone

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// PlaceholderPrefix marks embedded media in converted markdown until the
// import assigns attachment ids.
const PlaceholderPrefix = "DAYONE_"

const maxTitleLength = 60

var (
	placeholderPattern = regexp.MustCompile(PlaceholderPrefix + `(?:PHOTO|VIDEO|MEDIA):([\w-]+)`)
	blankRunPattern    = regexp.MustCompile(`\n\n\n+`)

	boldStars       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	boldUnderscores = regexp.MustCompile(`__([^_]+)__`)
	italicStar      = regexp.MustCompile(`\*([^*]+)\*`)
	italicUnder     = regexp.MustCompile(`_([^_]+)_`)
	codeTicks       = regexp.MustCompile("`([^`]+)`")
	leadingMarks    = regexp.MustCompile("^[#*_`~\\-]+\\s*")
	trailingMarks   = regexp.MustCompile("\\s*[#*_`~\\-]+$")
)

type RichText struct {
	Contents []Block         `json:"contents"`
	Meta     json.RawMessage `json:"meta,omitempty"`
}

// Block is either a text run or a carrier of embedded objects, occasionally
// both.
type Block struct {
	Text            *string          `json:"text,omitempty"`
	Attributes      Attributes       `json:"attributes"`
	EmbeddedObjects []EmbeddedObject `json:"embeddedObjects,omitempty"`
}

type Attributes struct {
	Line             LineAttributes `json:"line"`
	Bold             bool           `json:"bold,omitempty"`
	Italic           bool           `json:"italic,omitempty"`
	Underline        bool           `json:"underline,omitempty"`
	Strikethrough    bool           `json:"strikethrough,omitempty"`
	InlineCode       bool           `json:"inlineCode,omitempty"`
	HighlightedColor interface{}    `json:"highlightedColor,omitempty"`
}

func (a Attributes) highlighted() bool {
	switch v := a.HighlightedColor.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	default:
		return true
	}
}

type LineAttributes struct {
	Header      int    `json:"header,omitempty"`
	ListStyle   string `json:"listStyle,omitempty"`
	Quote       bool   `json:"quote,omitempty"`
	CodeBlock   bool   `json:"codeBlock,omitempty"`
	IndentLevel int    `json:"indentLevel,omitempty"`
	ListIndex   *int   `json:"listIndex,omitempty"`
	Checked     bool   `json:"checked,omitempty"`
}

type EmbeddedObject struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier,omitempty"`
}

// ParseRichText decodes the richText string. A blank input yields nil.
func ParseRichText(value string) (*RichText, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	rt := &RichText{}
	if err := json.Unmarshal([]byte(value), rt); err != nil {
		return nil, fmt.Errorf("decode richText: %w", err)
	}
	return rt, nil
}

// ExtractTitle returns the first non-blank level 1 header, stripped of
// markdown and capped at 60 characters.
func ExtractTitle(rt *RichText) *string {
	if rt == nil {
		return nil
	}
	for _, block := range rt.Contents {
		if block.Text == nil || block.Attributes.Line.Header != 1 || strings.TrimSpace(*block.Text) == "" {
			continue
		}
		return cleanTitle(*block.Text)
	}
	return nil
}

func cleanTitle(raw string) *string {
	title := strings.TrimSpace(stripMarkdown(strings.TrimRight(raw, "\n")))
	if utf8.RuneCountInString(title) > maxTitleLength {
		title = strings.TrimSpace(string([]rune(title)[:maxTitleLength]))
	}
	if title == "" {
		return nil
	}
	return &title
}

func stripMarkdown(text string) string {
	text = boldStars.ReplaceAllString(text, "$1")
	text = boldUnderscores.ReplaceAllString(text, "$1")
	text = italicStar.ReplaceAllString(text, "$1")
	text = italicUnder.ReplaceAllString(text, "$1")
	text = codeTicks.ReplaceAllString(text, "$1")
	text = leadingMarks.ReplaceAllString(text, "")
	text = trailingMarks.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Conversion is the markdown rendering of a rich text document.
type Conversion struct {
	Markdown string
	// Unresolved lists embedded media identifiers with no matching
	// attachment on the entry.
	Unresolved []string
}

// ConvertToMarkdown renders rich text as markdown. Embedded photos and
// videos become placeholders keyed by the attachment md5, or its identifier
// when the md5 is unknown.
func ConvertToMarkdown(rt *RichText, photos, videos []Media) Conversion {
	var out Conversion
	if rt == nil || len(rt.Contents) == 0 {
		return out
	}
	keys := make(map[string]string, len(photos)+len(videos))
	for i := range photos {
		keys[photos[i].Identifier] = photos[i].PlaceholderKey()
	}
	for i := range videos {
		keys[videos[i].Identifier] = videos[i].PlaceholderKey()
	}

	var (
		lines   []string
		current string
		code    []string
	)
	flush := func() {
		if current != "" {
			lines = append(lines, current)
			current = ""
		}
	}

	for i, block := range rt.Contents {
		if block.Text != nil {
			raw := *block.Text
			text := strings.TrimRight(raw, "\n")
			line := block.Attributes.Line

			if line.CodeBlock {
				if code == nil {
					flush()
					code = []string{}
				}
				code = append(code, text)
				if !nextIsCode(rt.Contents, i) {
					lines = append(lines, "```\n"+strings.Join(code, "\n")+"\n```")
					code = nil
				}
				continue
			}

			if line.Header > 0 {
				flush()
				level := line.Header
				if level > 6 {
					level = 6
				}
				lines = append(lines, strings.Repeat("#", level)+" "+text)
				continue
			}

			prefix := linePrefix(line)
			current += formatRun(text, block.Attributes)
			if strings.HasSuffix(raw, "\n") || prefix != "" {
				lines = append(lines, prefix+current)
				current = ""
			}
		}

		if block.EmbeddedObjects != nil {
			flush()
			for _, obj := range block.EmbeddedObjects {
				switch obj.Type {
				case "horizontalRuleLine":
					lines = append(lines, "---")
				case "photo", "video":
					key, ok := keys[obj.Identifier]
					if !ok {
						out.Unresolved = append(out.Unresolved, obj.Identifier)
						continue
					}
					lines = append(lines, PlaceholderPrefix+strings.ToUpper(obj.Type)+":"+key)
				}
			}
		}
	}
	flush()
	out.Markdown = strings.TrimSpace(strings.Join(lines, "\n\n"))
	return out
}

func nextIsCode(blocks []Block, i int) bool {
	if i+1 >= len(blocks) {
		return false
	}
	next := blocks[i+1]
	return next.Text != nil && next.Attributes.Line.CodeBlock
}

func linePrefix(line LineAttributes) string {
	indent := ""
	if line.IndentLevel > 1 {
		indent = strings.Repeat("  ", line.IndentLevel-1)
	}
	switch line.ListStyle {
	case "bulleted":
		return indent + "- "
	case "numbered":
		idx := 1
		if line.ListIndex != nil {
			idx = *line.ListIndex
		}
		return fmt.Sprintf("%s%d. ", indent, idx)
	case "checkbox":
		if line.Checked {
			return indent + "- [x] "
		}
		return indent + "- [ ] "
	}
	if line.Quote {
		return "> "
	}
	return ""
}

// formatRun applies inline styles. Inline code excludes the other emphasis
// styles; highlight wraps whatever came before.
func formatRun(text string, attrs Attributes) string {
	if attrs.InlineCode {
		text = "`" + text + "`"
	} else {
		if attrs.Bold {
			text = "**" + text + "**"
		}
		if attrs.Italic {
			text = "*" + text + "*"
		}
		if attrs.Underline {
			text = "<u>" + text + "</u>"
		}
		if attrs.Strikethrough {
			text = "~~" + text + "~~"
		}
	}
	if attrs.highlighted() {
		text = "==" + text + "=="
	}
	return text
}

// ReplacePlaceholders swaps media placeholders for attachment shortcodes.
// Placeholders without a mapping are removed.
func ReplacePlaceholders(content string, ids map[string]string) string {
	content = placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		if id, ok := ids[sub[1]]; ok && id != "" {
			return "![[media:" + id + "]]"
		}
		return ""
	})
	content = blankRunPattern.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

func HasPlaceholders(content string) bool {
	return strings.Contains(content, PlaceholderPrefix)
}
