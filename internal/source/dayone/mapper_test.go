package dayone

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/journiv/internal/delta"
	"github.com/xxxsen/journiv/internal/transfer"
)

func decode(t *testing.T, raw string) *Entry {
	t.Helper()
	e, err := DecodeEntry(json.RawMessage(raw))
	require.NoError(t, err)
	return e
}

func TestMapEntryTitleAndBody(t *testing.T) {
	e := decode(t, `{
		"uuid": "E1",
		"creationDate": "2024-01-15T05:00:00Z",
		"timeZone": "America/Los_Angeles",
		"richText": "{\"contents\":[{\"text\":\"Hello World\\n\",\"attributes\":{\"line\":{\"header\":1}}},{\"text\":\"Body text\\n\"}]}",
		"text": "# Hello World\nBody text"
	}`)
	m := MapEntry(e)
	require.NotNil(t, m.DTO.Title)
	require.NotNil(t, m.DTO.Content)
	assert.Equal(t, "Hello World", *m.DTO.Title)
	assert.Equal(t, "Body text", *m.DTO.Content)
	assert.Equal(t, 2, m.DTO.WordCount)
	assert.Equal(t, "2024-01-14", m.DTO.EntryDate)
	assert.Equal(t, "America/Los_Angeles", m.DTO.EntryTimezone)
	assert.Equal(t, "Body text\n", delta.ExtractPlainText(m.DTO.ContentDelta))
	assert.Equal(t, "E1", *m.DTO.ExternalID)
}

func TestMapEntryPlainTextTitle(t *testing.T) {
	e := decode(t, `{"uuid":"E2","creationDate":"2024-01-15T10:00:00Z","text":"# Hello World\nBody text"}`)
	m := MapEntry(e)
	assert.Equal(t, "Hello World", *m.DTO.Title)
	assert.Equal(t, "Body text", *m.DTO.Content)
	assert.Equal(t, "UTC", m.DTO.EntryTimezone)
}

func TestMapEntryTitleOnly(t *testing.T) {
	e := decode(t, `{
		"uuid": "E3",
		"creationDate": "2024-01-15T10:00:00Z",
		"richText": "{\"contents\":[{\"text\":\"Hello World\\n\",\"attributes\":{\"line\":{\"header\":1}}}]}",
		"text": "# Hello World"
	}`)
	m := MapEntry(e)
	assert.Equal(t, "Hello World", *m.DTO.Title)
	assert.Nil(t, m.DTO.Content)
	assert.Nil(t, m.DTO.ContentPlainText)
	assert.Equal(t, 0, m.DTO.WordCount)
	assert.Equal(t, "\n", delta.ExtractPlainText(m.DTO.ContentDelta))
}

func TestMapEntryTitleWithEmbedKeepsMedia(t *testing.T) {
	e := decode(t, `{
		"uuid": "E4",
		"creationDate": "2024-01-15T10:00:00Z",
		"photos": [{"identifier": "P1", "md5": "e249a0b05c6158a53c1338330f9bece4"}],
		"richText": "{\"contents\":[{\"text\":\"Trip\\n\",\"attributes\":{\"line\":{\"header\":1}}},{\"embeddedObjects\":[{\"type\":\"photo\",\"identifier\":\"P1\"}]}]}"
	}`)
	m := MapEntry(e)
	assert.Equal(t, "Trip", *m.DTO.Title)
	assert.Equal(t, "DAYONE_PHOTO:e249a0b05c6158a53c1338330f9bece4", *m.DTO.Content)
}

func TestMapEntryMetadata(t *testing.T) {
	e := decode(t, `{
		"uuid": "E5",
		"creationDate": "2024-03-01T08:00:00Z",
		"modifiedDate": "2024-03-02T08:00:00Z",
		"text": "Walked to the harbour",
		"starred": true,
		"tags": ["Travel", " travel ", "Food", ""],
		"location": {"latitude": 59.9, "longitude": 10.7, "localityName": "Oslo", "country": "Norway"},
		"weather": {"temperatureCelsius": 21.5, "conditionsDescription": "Sunny", "windBearing": 360},
		"photos": [{"identifier": "P1", "md5": "e249a0b05c6158a53c1338330f9bece4", "cameraMake": "Apple"}]
	}`)
	m := MapEntry(e)
	dto := m.DTO
	assert.True(t, dto.IsPinned)
	assert.Equal(t, []string{"travel", "food"}, dto.Tags)
	require.NotNil(t, dto.Location)
	assert.Equal(t, "Oslo", *dto.Location.Name)
	assert.Equal(t, 59.9, *dto.Latitude)
	assert.Equal(t, 10.7, *dto.Longitude)
	require.NotNil(t, dto.WeatherSummary)
	assert.Equal(t, "21.5°C, Sunny", *dto.WeatherSummary)
	assert.Equal(t, 0, *dto.Weather.WindBearing)
	assert.Equal(t, time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC), dto.UpdatedAt)

	require.NotNil(t, dto.ImportMetadata)
	assert.Equal(t, transfer.SourceDayOne, dto.ImportMetadata.Source)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(dto.ImportMetadata.Raw, &raw))
	assert.NotContains(t, raw, "text")
	assert.Equal(t, []interface{}{map[string]interface{}{
		"identifier": "P1", "md5": "e249a0b05c6158a53c1338330f9bece4",
	}}, raw["photos"])
}

func TestDecodeEntryRejects(t *testing.T) {
	_, err := DecodeEntry(json.RawMessage(`{"creationDate":"2024-01-01T00:00:00Z"}`))
	assert.Error(t, err)
	_, err = DecodeEntry(json.RawMessage(`{"uuid":"X"}`))
	assert.Error(t, err)
	_, err = DecodeEntry(json.RawMessage(`{"uuid":"X","creationDate":"2024-01-01T00:00:00Z","location":{"latitude":91}}`))
	assert.Error(t, err)
	e, err := DecodeEntry(json.RawMessage(`{"uuid":"X","creationDate":"2024-01-01T00:00:00Z","weather":{"windBearing":400}}`))
	require.NoError(t, err)
	assert.Nil(t, e.Weather.WindBearing)
}

func TestMediaHash(t *testing.T) {
	bad := "not-a-hash"
	m := Media{Identifier: "ABC-1", MD5: &bad}
	assert.Equal(t, "", m.Hash())
	assert.Equal(t, "ABC-1", m.PlaceholderKey())
}
