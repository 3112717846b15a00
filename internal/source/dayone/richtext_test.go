package dayone

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const formattingDoc = `{
  "contents": [
    {"text": "Title\n", "attributes": {"line": {"header": 1}}},
    {"text": "bold", "attributes": {"bold": true, "italic": true}},
    {"text": "code\n", "attributes": {"inlineCode": true, "bold": true}},
    {"text": "item\n", "attributes": {"line": {"listStyle": "bulleted", "indentLevel": 2}}},
    {"text": "step\n", "attributes": {"line": {"listStyle": "numbered", "listIndex": 3}}},
    {"text": "todo\n", "attributes": {"line": {"listStyle": "checkbox", "checked": true}}},
    {"text": "quoted\n", "attributes": {"line": {"quote": true}}},
    {"text": "x := 1\n", "attributes": {"line": {"codeBlock": true}}},
    {"text": "y := 2\n", "attributes": {"line": {"codeBlock": true}}},
    {"embeddedObjects": [
      {"type": "photo", "identifier": "P1"},
      {"type": "horizontalRuleLine"},
      {"type": "video", "identifier": "V1"},
      {"type": "photo", "identifier": "MISSING"}
    ]},
    {"text": "marked\n", "attributes": {"highlightedColor": "#ffee00", "strikethrough": true, "underline": true}},
    {"text": "deep\n", "attributes": {"line": {"header": 9}}}
  ],
  "meta": {"version": 1}
}`

func TestConvertToMarkdown(t *testing.T) {
	rt, err := ParseRichText(formattingDoc)
	require.NoError(t, err)
	md5 := "E249A0B05C6158A53C1338330F9BECE4"
	photos := []Media{{Identifier: "P1", MD5: &md5}}
	videos := []Media{{Identifier: "V1"}}

	conv := ConvertToMarkdown(rt, photos, videos)
	want := strings.Join([]string{
		"# Title",
		"***bold***`code`",
		"  - item",
		"3. step",
		"- [x] todo",
		"> quoted",
		"```\nx := 1\ny := 2\n```",
		"DAYONE_PHOTO:e249a0b05c6158a53c1338330f9bece4",
		"---",
		"DAYONE_VIDEO:V1",
		"==~~<u>marked</u>~~==",
		"###### deep",
	}, "\n\n")
	assert.Equal(t, want, conv.Markdown)
	assert.Equal(t, []string{"MISSING"}, conv.Unresolved)
}

func TestCodeBlockFlushesBeforeEmbed(t *testing.T) {
	rt, err := ParseRichText(`{"contents":[
		{"text":"a\n","attributes":{"line":{"codeBlock":true}}},
		{"embeddedObjects":[{"type":"horizontalRuleLine"}]},
		{"text":"b\n","attributes":{"line":{"codeBlock":true}}}
	]}`)
	require.NoError(t, err)
	assert.Equal(t, "```\na\n```\n\n---\n\n```\nb\n```", ConvertToMarkdown(rt, nil, nil).Markdown)
}

func TestParseRichTextBlankAndInvalid(t *testing.T) {
	rt, err := ParseRichText("   ")
	require.NoError(t, err)
	assert.Nil(t, rt)

	_, err = ParseRichText("{not json")
	assert.Error(t, err)
	assert.Equal(t, "", ConvertToMarkdown(nil, nil, nil).Markdown)
}

func TestExtractTitle(t *testing.T) {
	rt, err := ParseRichText(`{"contents":[
		{"text":"intro\n"},
		{"text":"   \n","attributes":{"line":{"header":1}}},
		{"text":"**Very** important _notes_\n","attributes":{"line":{"header":1}}}
	]}`)
	require.NoError(t, err)
	title := ExtractTitle(rt)
	require.NotNil(t, title)
	assert.Equal(t, "Very important notes", *title)

	long := strings.Repeat("a", 70)
	rt, err = ParseRichText(`{"contents":[{"text":"` + long + `\n","attributes":{"line":{"header":1}}}]}`)
	require.NoError(t, err)
	title = ExtractTitle(rt)
	require.NotNil(t, title)
	assert.Equal(t, strings.Repeat("a", 60), *title)

	rt, err = ParseRichText(`{"contents":[{"text":"Sub\n","attributes":{"line":{"header":2}}}]}`)
	require.NoError(t, err)
	assert.Nil(t, ExtractTitle(rt))
}

func TestReplacePlaceholders(t *testing.T) {
	content := "Before\n\nDAYONE_PHOTO:abc123\n\nDAYONE_VIDEO:gone\n\n\n\nAfter"
	out := ReplacePlaceholders(content, map[string]string{"abc123": "11111111-2222-3333-4444-555555555555"})
	assert.Equal(t, "Before\n\n![[media:11111111-2222-3333-4444-555555555555]]\n\nAfter", out)
	assert.True(t, HasPlaceholders(content))
	assert.False(t, HasPlaceholders(out))
}
