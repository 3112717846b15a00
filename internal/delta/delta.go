// Package delta models the structured rich-text document stored alongside
// entry markdown: an ordered list of insert operations, each either a text
// run or an embedded object.
package delta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

var mediaKeys = []string{"image", "video", "audio"}

type Document struct {
	Ops []Op `json:"ops"`
}

type Op struct {
	Insert     Insert                 `json:"insert"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Insert holds either Text or Embed.
type Insert struct {
	Text  string
	Embed map[string]interface{}
}

func (i Insert) IsEmbed() bool {
	return i.Embed != nil
}

func (i Insert) MarshalJSON() ([]byte, error) {
	if i.Embed != nil {
		return json.Marshal(i.Embed)
	}
	return json.Marshal(i.Text)
}

func (i *Insert) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*i = Insert{}
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &i.Text)
	}
	if data[0] == '{' {
		embed := map[string]interface{}{}
		if err := json.Unmarshal(data, &embed); err != nil {
			return err
		}
		i.Embed = embed
		return nil
	}
	return fmt.Errorf("unsupported insert value %s", string(data))
}

// WrapPlainText wraps text into a single-op document. Every document ends
// with a newline, including the empty one.
func WrapPlainText(text string) Document {
	if text == "" {
		return Document{Ops: []Op{{Insert: Insert{Text: "\n"}}}}
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return Document{Ops: []Op{{Insert: Insert{Text: text}}}}
}

func Parse(data []byte) (*Document, error) {
	doc := &Document{}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse delta: %w", err)
	}
	return doc, nil
}

func (d Document) Marshal() ([]byte, error) {
	if d.Ops == nil {
		d.Ops = []Op{}
	}
	return json.Marshal(d)
}

func ExtractPlainText(doc *Document) string {
	if doc == nil {
		return ""
	}
	var sb strings.Builder
	for _, op := range doc.Ops {
		if !op.Insert.IsEmbed() {
			sb.WriteString(op.Insert.Text)
		}
	}
	return sb.String()
}

func MediaSources(doc *Document) []string {
	if doc == nil {
		return nil
	}
	var sources []string
	for _, op := range doc.Ops {
		if !op.Insert.IsEmbed() {
			continue
		}
		for _, key := range mediaKeys {
			if v, ok := op.Insert.Embed[key].(string); ok {
				sources = append(sources, v)
			}
		}
	}
	return sources
}

// TransformMedia rewrites media embed values with fn. A false second return
// leaves the value untouched. Embeds carrying several media keys are reduced
// to the first of image, video, audio.
func TransformMedia(doc *Document, fn func(key, value string) (string, bool)) Document {
	if doc == nil {
		return Document{Ops: []Op{}}
	}
	out := Document{Ops: make([]Op, 0, len(doc.Ops))}
	for _, op := range doc.Ops {
		if !op.Insert.IsEmbed() {
			out.Ops = append(out.Ops, op)
			continue
		}
		embed := make(map[string]interface{}, len(op.Insert.Embed))
		for k, v := range op.Insert.Embed {
			embed[k] = v
		}
		for _, key := range mediaKeys {
			value, ok := embed[key].(string)
			if !ok {
				continue
			}
			if replaced, ok := fn(key, value); ok {
				embed[key] = replaced
			}
		}
		op.Insert = Insert{Embed: sanitizeEmbed(embed)}
		out.Ops = append(out.Ops, op)
	}
	return out
}

func ReplaceMediaIDs(doc *Document, idMap map[string]string) Document {
	return TransformMedia(doc, func(_, value string) (string, bool) {
		id, ok := idMap[value]
		return id, ok
	})
}

func sanitizeEmbed(embed map[string]interface{}) map[string]interface{} {
	present := 0
	for _, key := range mediaKeys {
		if _, ok := embed[key]; ok {
			present++
		}
	}
	if present <= 1 {
		return embed
	}
	for _, key := range mediaKeys {
		if v, ok := embed[key]; ok {
			return map[string]interface{}{key: v}
		}
	}
	return embed
}
