package dayone

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/journiv/internal/pkg/timeutil"
)

const (
	maxTags      = 50
	maxTagLength = 100
)

var md5Pattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// Export is the root object of one per-journal manifest file.
type Export struct {
	Metadata json.RawMessage   `json:"metadata,omitempty"`
	Entries  []json.RawMessage `json:"entries"`
	Version  *string           `json:"version,omitempty"`
}

type Location struct {
	Latitude           *float64               `json:"latitude,omitempty"`
	Longitude          *float64               `json:"longitude,omitempty"`
	PlaceName          *string                `json:"placeName,omitempty"`
	LocalityName       *string                `json:"localityName,omitempty"`
	AdministrativeArea *string                `json:"administrativeArea,omitempty"`
	Country            *string                `json:"country,omitempty"`
	TimeZoneName       *string                `json:"timeZoneName,omitempty"`
	Street             *string                `json:"street,omitempty"`
	Region             map[string]interface{} `json:"region,omitempty"`
}

func (l *Location) validate() error {
	if l.Latitude != nil {
		if math.IsNaN(*l.Latitude) || math.IsInf(*l.Latitude, 0) || *l.Latitude < -90 || *l.Latitude > 90 {
			return fmt.Errorf("latitude out of range: %v", *l.Latitude)
		}
	}
	if l.Longitude != nil {
		if math.IsNaN(*l.Longitude) || math.IsInf(*l.Longitude, 0) || *l.Longitude < -180 || *l.Longitude > 180 {
			return fmt.Errorf("longitude out of range: %v", *l.Longitude)
		}
	}
	return nil
}

type Weather struct {
	TemperatureCelsius    *float64 `json:"temperatureCelsius,omitempty"`
	ConditionsDescription *string  `json:"conditionsDescription,omitempty"`
	WeatherCode           *string  `json:"weatherCode,omitempty"`
	WeatherServiceName    *string  `json:"weatherServiceName,omitempty"`
	RelativeHumidity      *float64 `json:"relativeHumidity,omitempty"`
	VisibilityKM          *float64 `json:"visibilityKM,omitempty"`
	PressureMB            *float64 `json:"pressureMB,omitempty"`
	WindSpeedKPH          *float64 `json:"windSpeedKPH,omitempty"`
	WindBearing           *int     `json:"windBearing,omitempty"`
}

// normalize repairs values Day One is known to emit out of range. A bearing
// of 360 is north; anything else outside [0,359] is dropped.
func (w *Weather) normalize() {
	if w.WindBearing != nil {
		b := *w.WindBearing
		switch {
		case b == 360:
			zero := 0
			w.WindBearing = &zero
		case b < 0 || b > 359:
			w.WindBearing = nil
		}
	}
	if w.RelativeHumidity != nil && (*w.RelativeHumidity < 0 || *w.RelativeHumidity > 100) {
		w.RelativeHumidity = nil
	}
	if w.TemperatureCelsius != nil && (*w.TemperatureCelsius < -100 || *w.TemperatureCelsius > 70) {
		w.TemperatureCelsius = nil
	}
}

// Media is the shared shape of photo and video attachments.
type Media struct {
	Identifier   string  `json:"identifier"`
	MD5          *string `json:"md5,omitempty"`
	Type         *string `json:"type,omitempty"`
	Date         *string `json:"date,omitempty"`
	OrderInEntry *int    `json:"orderInEntry,omitempty"`
	Favorite     *bool   `json:"favorite,omitempty"`
	Width        *int    `json:"width,omitempty"`
	Height       *int    `json:"height,omitempty"`
	Duration     *int    `json:"duration,omitempty"`
	CameraMake   *string `json:"cameraMake,omitempty"`
	CameraModel  *string `json:"cameraModel,omitempty"`
	FocalLength  *string `json:"focalLength,omitempty"`
	LensModel    *string `json:"lensModel,omitempty"`
	ExposureTime *string `json:"exposureTime,omitempty"`
	FNumber      *string `json:"fnumber,omitempty"`
	ISO          *int    `json:"iso,omitempty"`
}

// Hash returns the lowercased md5 when it is well formed.
func (m *Media) Hash() string {
	if m.MD5 == nil || !md5Pattern.MatchString(*m.MD5) {
		return ""
	}
	return strings.ToLower(*m.MD5)
}

// PlaceholderKey is the key embedded media placeholders resolve through.
func (m *Media) PlaceholderKey() string {
	if h := m.Hash(); h != "" {
		return h
	}
	return m.Identifier
}

func (m *Media) CreatedAt() (time.Time, bool) {
	if m.Date == nil {
		return time.Time{}, false
	}
	t, err := timeutil.ParseString(*m.Date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

type Entry struct {
	UUID               string    `json:"uuid"`
	Text               *string   `json:"text,omitempty"`
	RichText           *string   `json:"richText,omitempty"`
	CreationDate       string    `json:"creationDate"`
	ModifiedDate       *string   `json:"modifiedDate,omitempty"`
	CreationDevice     *string   `json:"creationDevice,omitempty"`
	CreationDeviceType *string   `json:"creationDeviceType,omitempty"`
	CreationOSName     *string   `json:"creationOSName,omitempty"`
	CreationOSVersion  *string   `json:"creationOSVersion,omitempty"`
	TimeZone           *string   `json:"timeZone,omitempty"`
	Starred            *bool     `json:"starred,omitempty"`
	Pinned             *bool     `json:"pinned,omitempty"`
	IsPinned           *bool     `json:"isPinned,omitempty"`
	Location           *Location `json:"location,omitempty"`
	Weather            *Weather  `json:"weather,omitempty"`
	Tags               []string  `json:"tags,omitempty"`
	Photos             []Media   `json:"photos,omitempty"`
	Videos             []Media   `json:"videos,omitempty"`
	Duration           *int      `json:"duration,omitempty"`
	EditingTime        *float64  `json:"editingTime,omitempty"`
	IsAllDay           *bool     `json:"isAllDay,omitempty"`

	raw json.RawMessage
}

// DecodeEntry decodes and validates one manifest entry. The raw bytes are
// kept for import metadata.
func DecodeEntry(raw json.RawMessage) (*Entry, error) {
	e := &Entry{}
	if err := json.Unmarshal(raw, e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	e.raw = raw
	if err := e.validate(); err != nil {
		return nil, err
	}
	e.Tags = cleanTags(e.Tags)
	if e.Weather != nil {
		e.Weather.normalize()
	}
	return e, nil
}

func (e *Entry) validate() error {
	if e.UUID == "" || len(e.UUID) > 100 {
		return errors.New("entry uuid is missing or too long")
	}
	if strings.TrimSpace(e.CreationDate) == "" {
		return fmt.Errorf("entry %s: missing creationDate", e.UUID)
	}
	if _, err := timeutil.ParseString(e.CreationDate); err != nil {
		return fmt.Errorf("entry %s: %w", e.UUID, err)
	}
	if e.Location != nil {
		if err := e.Location.validate(); err != nil {
			return fmt.Errorf("entry %s: %w", e.UUID, err)
		}
	}
	for _, m := range append(append([]Media{}, e.Photos...), e.Videos...) {
		if m.Identifier == "" || len(m.Identifier) > 100 {
			return fmt.Errorf("entry %s: media identifier is missing or too long", e.UUID)
		}
	}
	return nil
}

func (e *Entry) Created() time.Time {
	t, _ := timeutil.ParseString(e.CreationDate)
	return timeutil.EnsureUTC(t)
}

func (e *Entry) Modified() time.Time {
	if e.ModifiedDate != nil {
		if t, err := timeutil.ParseString(*e.ModifiedDate); err == nil {
			return timeutil.EnsureUTC(t)
		}
	}
	return e.Created()
}

func (e *Entry) Raw() json.RawMessage {
	return e.raw
}

func (e *Entry) IsPinnedAny() bool {
	for _, b := range []*bool{e.Starred, e.Pinned, e.IsPinned} {
		if b != nil && *b {
			return true
		}
	}
	return false
}

func cleanTags(tags []string) []string {
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		cleaned := strings.TrimSpace(tag)
		if utf8.RuneCountInString(cleaned) > maxTagLength {
			cleaned = strings.TrimSpace(string([]rune(cleaned)[:maxTagLength]))
		}
		if cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

// Journal is one manifest file with its decoded entries.
type Journal struct {
	Name           string
	SourceFile     string
	Entries        []*Entry
	ExportMetadata json.RawMessage
	ExportVersion  string
	// Skipped holds the reasons entries were rejected during decoding.
	Skipped []string
	// Declared is the raw entry count, including rejected entries.
	Declared int
}
