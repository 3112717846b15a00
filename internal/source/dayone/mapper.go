package dayone

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/journiv/internal/delta"
	"github.com/xxxsen/journiv/internal/pkg/mediautil"
	"github.com/xxxsen/journiv/internal/pkg/timeutil"
	"github.com/xxxsen/journiv/internal/transfer"
)

// MappedEntry is an entry DTO plus the warnings produced while converting
// its rich text.
type MappedEntry struct {
	DTO         transfer.EntryDTO
	Unresolved  []string
	RichTextErr error
}

// MapEntry converts a Day One entry. Media is attached separately because it
// needs the extracted container on disk.
func MapEntry(e *Entry) MappedEntry {
	var (
		out     MappedEntry
		title   *string
		content *string
	)

	if e.RichText != nil {
		rt, err := ParseRichText(*e.RichText)
		if err != nil {
			out.RichTextErr = err
		}
		if rt != nil {
			title = ExtractTitle(rt)
			conv := ConvertToMarkdown(rt, e.Photos, e.Videos)
			out.Unresolved = conv.Unresolved
			if strings.TrimSpace(conv.Markdown) != "" {
				content = bodyWithoutTitle(conv.Markdown, title, hasBodyText(rt), hasEmbeds(rt))
			}
		}
	}

	if content == nil && e.Text != nil {
		if text := strings.TrimSpace(*e.Text); text != "" {
			t, body := splitTextTitle(text)
			switch {
			case title == nil:
				title, content = t, body
			case text == *title:
			case t != nil && *t == *title:
				content = body
			default:
				content = &text
			}
		}
	}

	body := ""
	if content != nil {
		body = *content
	}
	created := e.Created()
	tz := ""
	if e.TimeZone != nil {
		tz = *e.TimeZone
	}
	tz = timeutil.NormalizeTimezone(tz)
	doc := delta.WrapPlainText(body)

	dto := transfer.EntryDTO{
		Title:            title,
		Content:          content,
		ContentDelta:     &doc,
		EntryDate:        timeutil.LocalDate(created, tz),
		EntryDatetimeUTC: created,
		EntryTimezone:    tz,
		WordCount:        len(strings.Fields(body)),
		IsPinned:         e.IsPinnedAny(),
		Tags:             mapTags(e.Tags),
		Media:            []transfer.MediaDTO{},
		CreatedAt:        created,
		UpdatedAt:        e.Modified(),
		ImportMetadata:   entryImportMetadata(e, tz),
	}
	if body != "" {
		dto.ContentPlainText = &body
	}
	ext := e.UUID
	dto.ExternalID = &ext
	if e.Location != nil {
		dto.Location, dto.Latitude, dto.Longitude = mapLocation(e.Location)
	}
	if e.Weather != nil {
		dto.Weather, dto.WeatherSummary = mapWeather(e.Weather)
	}
	out.DTO = dto
	return out
}

func hasBodyText(rt *RichText) bool {
	for _, block := range rt.Contents {
		if block.Text != nil && strings.TrimSpace(*block.Text) != "" && block.Attributes.Line.Header != 1 {
			return true
		}
	}
	return false
}

func hasEmbeds(rt *RichText) bool {
	for _, block := range rt.Contents {
		if len(block.EmbeddedObjects) > 0 {
			return true
		}
	}
	return false
}

// bodyWithoutTitle drops the leading title header from converted markdown so
// the title is not stored twice. A document holding only the title has no
// body.
func bodyWithoutTitle(markdown string, title *string, bodyText, embeds bool) *string {
	if title == nil {
		return &markdown
	}
	lines := strings.Split(markdown, "\n")
	first := strings.TrimLeft(lines[0], " \t")
	rest := func() *string {
		s := strings.TrimSpace(strings.Join(lines[1:], "\n"))
		if s == "" {
			return nil
		}
		return &s
	}
	if !bodyText {
		if embeds && strings.HasPrefix(first, "# ") {
			return rest()
		}
		if embeds {
			return &markdown
		}
		return nil
	}
	if strings.HasPrefix(first, "#") && strings.TrimSpace(strings.TrimLeft(first, "#")) == *title {
		return rest()
	}
	return &markdown
}

// splitTextTitle lifts a leading level 1 markdown header out of plain text
// entries that carry no rich text.
func splitTextTitle(text string) (*string, *string) {
	lines := strings.Split(text, "\n")
	first := strings.TrimSpace(lines[0])
	if !strings.HasPrefix(first, "# ") {
		return nil, &text
	}
	title := cleanTitle(strings.TrimPrefix(first, "# "))
	if title == nil {
		return nil, &text
	}
	body := strings.TrimSpace(strings.Join(lines[1:], "\n"))
	if body == "" {
		return title, nil
	}
	return title, &body
}

func mapTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		cleaned := strings.ToLower(strings.TrimSpace(tag))
		if cleaned == "" || seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		out = append(out, cleaned)
	}
	return out
}

func mapLocation(l *Location) (*transfer.Location, *float64, *float64) {
	loc := &transfer.Location{
		Name:      firstNonEmpty(l.PlaceName, l.LocalityName, l.AdministrativeArea, l.Country),
		Street:    l.Street,
		Locality:  l.LocalityName,
		AdminArea: l.AdministrativeArea,
		Country:   l.Country,
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		Timezone:  l.TimeZoneName,
	}
	return loc, l.Latitude, l.Longitude
}

func firstNonEmpty(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}

func mapWeather(w *Weather) (*transfer.Weather, *string) {
	out := &transfer.Weather{
		TempC:       w.TemperatureCelsius,
		Condition:   w.ConditionsDescription,
		Code:        w.WeatherCode,
		Service:     w.WeatherServiceName,
		Humidity:    w.RelativeHumidity,
		WindKPH:     w.WindSpeedKPH,
		WindBearing: w.WindBearing,
		PressureMB:  w.PressureMB,
		VisibilityK: w.VisibilityKM,
	}
	var parts []string
	if w.TemperatureCelsius != nil {
		parts = append(parts, fmt.Sprintf("%.1f°C", *w.TemperatureCelsius))
	}
	if w.ConditionsDescription != nil && *w.ConditionsDescription != "" {
		parts = append(parts, *w.ConditionsDescription)
	}
	if len(parts) == 0 {
		return out, nil
	}
	summary := strings.Join(parts, ", ")
	return out, &summary
}

// entryImportMetadata keeps the source entry minus its text body, with media
// lists pruned to identifier and md5.
func entryImportMetadata(e *Entry, tz string) *transfer.ImportMetadata {
	meta := &transfer.ImportMetadata{Source: transfer.SourceDayOne, NormalizedTimezone: tz}
	if len(e.raw) == 0 {
		return meta
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(e.raw, &raw); err != nil {
		return meta
	}
	delete(raw, "text")
	for key, v := range raw {
		if v == nil {
			delete(raw, key)
		}
	}
	for _, key := range []string{"photos", "videos"} {
		pruned := pruneMediaList(raw[key])
		if len(pruned) == 0 {
			delete(raw, key)
			continue
		}
		raw[key] = pruned
	}
	if data, err := json.Marshal(raw); err == nil {
		meta.Raw = data
	}
	return meta
}

func pruneMediaList(v interface{}) []map[string]interface{} {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []map[string]interface{}
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		kept := map[string]interface{}{}
		for _, key := range []string{"identifier", "md5"} {
			if val, ok := m[key]; ok && val != nil {
				kept[key] = val
			}
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

// MapJournal builds the journal DTO around already mapped entries.
func MapJournal(j *Journal, entries []transfer.EntryDTO, importedAt time.Time) transfer.JournalDTO {
	title := j.Name
	if title == "" {
		title = "Imported from Day One"
	}
	desc := fmt.Sprintf("Imported from Day One journal '%s'", j.Name)
	dto := transfer.JournalDTO{
		Title:       title,
		Description: &desc,
		EntryCount:  len(j.Entries),
		Entries:     entries,
		CreatedAt:   importedAt,
		UpdatedAt:   importedAt,
	}
	var first, last time.Time
	for i, e := range j.Entries {
		c := e.Created()
		if i == 0 || c.Before(first) {
			first = c
		}
		if i == 0 || c.After(last) {
			last = c
		}
	}
	if len(j.Entries) > 0 {
		dto.CreatedAt = first
		dto.LastEntryAt = &last
	}
	extra, _ := json.Marshal(map[string]interface{}{
		"source_version": j.ExportVersion,
		"imported_at":    importedAt.UTC().Format(time.RFC3339),
		"export_file":    j.SourceFile,
	})
	dto.ImportMetadata = &transfer.ImportMetadata{
		Source: transfer.SourceDayOne,
		Raw:    j.ExportMetadata,
		Extra:  extra,
	}
	return dto
}

// MapMedia describes an attachment file found under root. Dimensions of zero
// are treated as unknown.
func MapMedia(m *Media, kind MediaKind, path, root string) (*transfer.MediaDTO, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	dto := &transfer.MediaDTO{
		Filename:     filepath.Base(path),
		FilePath:     &rel,
		FileSize:     st.Size(),
		Width:        positive(m.Width),
		Height:       positive(m.Height),
		UploadStatus: "completed",
	}
	meta := map[string]interface{}{}
	setIf := func(key string, v interface{}) {
		switch val := v.(type) {
		case *string:
			if val != nil {
				meta[key] = *val
			}
		case *int:
			if val != nil {
				meta[key] = *val
			}
		}
	}
	switch kind {
	case KindVideo:
		dto.MediaType = string(mediautil.MediaTypeVideo)
		dto.MimeType = mediautil.MIMEForExtension(ext)
		if dto.MimeType == "application/octet-stream" {
			dto.MimeType = "video/mp4"
		}
	default:
		dto.MediaType = string(mediautil.MediaTypeUnknown)
		if mediautil.MediaTypeForExtension(ext) == mediautil.MediaTypeImage {
			dto.MediaType = string(mediautil.MediaTypeImage)
		}
		dto.MimeType = mediautil.MIMEForExtension(ext)
		setIf("camera_make", m.CameraMake)
		setIf("camera_model", m.CameraModel)
		setIf("focal_length", m.FocalLength)
		setIf("lens_model", m.LensModel)
		setIf("exposure_time", m.ExposureTime)
		setIf("fnumber", m.FNumber)
		setIf("iso", m.ISO)
	}
	setIf("order_in_entry", m.OrderInEntry)
	if m.Duration != nil {
		d := float64(*m.Duration)
		dto.Duration = &d
	}
	if len(meta) > 0 {
		if data, err := json.Marshal(meta); err == nil {
			s := string(data)
			dto.FileMetadata = &s
		}
	}
	created := time.Now().UTC()
	if t, ok := m.CreatedAt(); ok {
		created = t
	}
	dto.CreatedAt, dto.UpdatedAt = created, created
	id := m.Identifier
	dto.ExternalID = &id
	return dto, nil
}

func positive(v *int) *int {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}
