package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/journiv/internal/delta"
)

func TestEntryDerive(t *testing.T) {
	title := "  Morning  "
	e := &Entry{
		Title:         &title,
		Content:       "# Hello World\n\nBody **text** here",
		EntryDatetime: time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC).Unix(),
		EntryTimezone: "America/New_York",
	}
	require.NoError(t, e.Derive())
	assert.Equal(t, "2024-01-14", e.EntryDate)
	assert.Equal(t, "America/New_York", e.EntryTimezone)
	assert.Equal(t, 6, e.WordCount)
	assert.Equal(t, "Hello World\nBody text here", e.PlainText)
	assert.Equal(t, "Morning", *e.Title)

	doc, err := delta.Parse([]byte(e.ContentDelta))
	require.NoError(t, err)
	assert.Equal(t, e.Content+"\n", delta.ExtractPlainText(doc))
}

func TestEntryDeriveInvalidTimezone(t *testing.T) {
	blank := "   "
	e := &Entry{
		Title:         &blank,
		EntryDatetime: time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC).Unix(),
		EntryTimezone: "Mars/Olympus",
	}
	require.NoError(t, e.Derive())
	assert.Equal(t, "UTC", e.EntryTimezone)
	assert.Equal(t, "2024-06-01", e.EntryDate)
	assert.Nil(t, e.Title)
	assert.Equal(t, 0, e.WordCount)
	assert.Equal(t, "", e.PlainText)
}

func TestMarkdownToPlainText(t *testing.T) {
	src := "Intro line\n![[media:abc-123]]\n\n- one\n- two\n\n```\ncode\n```"
	assert.Equal(t, "Intro line\none\ntwo\ncode", MarkdownToPlainText(src))
}
