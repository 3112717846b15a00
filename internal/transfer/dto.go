// Package transfer holds the format-agnostic entities exchanged between the
// import/export orchestrators, the archive manifest and source adapters.
package transfer

import (
	"encoding/json"
	"time"

	"github.com/xxxsen/journiv/internal/delta"
)

const (
	ExportVersion = "1.0"
	AppName       = "journiv"
)

const (
	SourceJourniv = "journiv"
	SourceDayOne  = "dayone"
)

// Export progress milestones.
const (
	ExportBuildingData = 10
	ExportCreatingZip  = 50
	ExportFinalizing   = 90
)

// Import progress milestones. Processing interpolates between
// ImportProcessing and ImportFinalizing.
const (
	ImportExtracting = 10
	ImportProcessing = 30
	ImportFinalizing = 90
	ProgressComplete = 100
)

type ExportPayload struct {
	ExportVersion   string              `json:"export_version"`
	ExportDate      time.Time           `json:"export_date"`
	AppVersion      string              `json:"app_version"`
	UserEmail       string              `json:"user_email"`
	UserName        *string             `json:"user_name,omitempty"`
	UserSettings    *UserSettingsDTO    `json:"user_settings,omitempty"`
	Journals        []JournalDTO        `json:"journals"`
	MoodDefinitions []MoodDefinitionDTO `json:"mood_definitions"`
	Stats           *ExportStats        `json:"stats,omitempty"`
}

type UserSettingsDTO struct {
	TimeZone string `json:"time_zone"`
}

type ExportStats struct {
	JournalCount  int        `json:"journal_count"`
	EntryCount    int        `json:"entry_count"`
	MediaCount    int        `json:"media_count"`
	TotalWords    int        `json:"total_words"`
	FirstEntryAt  *time.Time `json:"first_entry_at,omitempty"`
	LatestEntryAt *time.Time `json:"latest_entry_at,omitempty"`
}

type JournalDTO struct {
	Title          string          `json:"title" validate:"required,notblank"`
	Description    *string         `json:"description,omitempty" validate:"omitempty,max=1000"`
	Color          *string         `json:"color,omitempty"`
	Icon           *string         `json:"icon,omitempty" validate:"omitempty,max=50"`
	IsFavorite     bool            `json:"is_favorite"`
	IsArchived     bool            `json:"is_archived"`
	EntryCount     int             `json:"entry_count"`
	LastEntryAt    *time.Time      `json:"last_entry_at,omitempty"`
	ImportMetadata *ImportMetadata `json:"import_metadata,omitempty"`
	Entries        []EntryDTO      `json:"entries" validate:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ExternalID     *string         `json:"external_id,omitempty"`
}

type EntryDTO struct {
	Title            *string         `json:"title,omitempty" validate:"omitempty,max=300"`
	Content          *string         `json:"content,omitempty"`
	ContentDelta     *delta.Document `json:"content_delta,omitempty"`
	ContentPlainText *string         `json:"content_plain_text,omitempty"`
	EntryDate        string          `json:"entry_date" validate:"required"`
	EntryDatetimeUTC time.Time       `json:"entry_datetime_utc"`
	EntryTimezone    string          `json:"entry_timezone"`
	WordCount        int             `json:"word_count" validate:"gte=0"`
	IsPinned         bool            `json:"is_pinned"`
	IsDraft          bool            `json:"is_draft"`
	Location         *Location       `json:"location_json,omitempty"`
	Latitude         *float64        `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude        *float64        `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Weather          *Weather        `json:"weather_json,omitempty"`
	WeatherSummary   *string         `json:"weather_summary,omitempty"`
	ImportMetadata   *ImportMetadata `json:"import_metadata,omitempty"`
	Tags             []string        `json:"tags"`
	MoodLog          *MoodLogDTO     `json:"mood_log,omitempty" validate:"-"`
	Media            []MediaDTO      `json:"media" validate:"-"`
	PromptText       *string         `json:"prompt_text,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	ExternalID       *string         `json:"external_id,omitempty"`
}

// Text resolves the markdown body, preferring the explicit content and
// falling back to plain text and then to the structured document.
func (e *EntryDTO) Text() string {
	switch {
	case e.Content != nil:
		return *e.Content
	case e.ContentPlainText != nil:
		return *e.ContentPlainText
	case e.ContentDelta != nil:
		return delta.ExtractPlainText(e.ContentDelta)
	default:
		return ""
	}
}

type Location struct {
	Name      *string  `json:"name,omitempty"`
	Street    *string  `json:"street,omitempty"`
	Locality  *string  `json:"locality,omitempty"`
	AdminArea *string  `json:"admin_area,omitempty"`
	Country   *string  `json:"country,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Timezone  *string  `json:"timezone,omitempty"`
}

type Weather struct {
	TempC       *float64 `json:"temp_c,omitempty"`
	Condition   *string  `json:"condition,omitempty"`
	Code        *string  `json:"code,omitempty"`
	Service     *string  `json:"service,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	WindKPH     *float64 `json:"wind_kph,omitempty"`
	WindBearing *int     `json:"wind_bearing,omitempty"`
	PressureMB  *float64 `json:"pressure_mb,omitempty"`
	VisibilityK *float64 `json:"visibility_km,omitempty"`
}

// ImportMetadata records where an imported entity came from. Raw keeps the
// source-specific payload verbatim so later versions can re-interpret it.
type ImportMetadata struct {
	Source             string          `json:"source"`
	Raw                json.RawMessage `json:"raw,omitempty"`
	NormalizedTimezone string          `json:"normalized_timezone,omitempty"`
	Extra              json.RawMessage `json:"extra,omitempty"`
}

type MediaDTO struct {
	Filename          string                 `json:"filename" validate:"required,notblank"`
	FilePath          *string                `json:"file_path,omitempty"`
	MediaType         string                 `json:"media_type" validate:"required,notblank"`
	FileSize          int64                  `json:"file_size" validate:"gte=0"`
	MimeType          string                 `json:"mime_type"`
	Checksum          *string                `json:"checksum,omitempty"`
	Width             *int                   `json:"width,omitempty" validate:"omitempty,gte=0"`
	Height            *int                   `json:"height,omitempty" validate:"omitempty,gte=0"`
	Duration          *float64               `json:"duration,omitempty" validate:"omitempty,gte=0"`
	AltText           *string                `json:"alt_text,omitempty"`
	FileMetadata      *string                `json:"file_metadata,omitempty"`
	ThumbnailPath     *string                `json:"thumbnail_path,omitempty"`
	UploadStatus      string                 `json:"upload_status"`
	Caption           *string                `json:"caption,omitempty"`
	ExternalProvider  *string                `json:"external_provider,omitempty"`
	ExternalAssetID   *string                `json:"external_asset_id,omitempty"`
	ExternalURL       *string                `json:"external_url,omitempty"`
	ExternalCreatedAt *time.Time             `json:"external_created_at,omitempty"`
	ExternalMetadata  map[string]interface{} `json:"external_metadata,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	ExternalID        *string                `json:"external_id,omitempty"`
}

type MoodLogDTO struct {
	MoodName          string    `json:"mood_name" validate:"required,notblank"`
	Note              *string   `json:"note,omitempty" validate:"omitempty,max=500"`
	LoggedDate        string    `json:"logged_date"`
	LoggedDatetimeUTC time.Time `json:"logged_datetime_utc"`
	LoggedTimezone    string    `json:"logged_timezone"`
	MoodScore         *int      `json:"mood_score,omitempty" validate:"omitempty,gte=-5,lte=5"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type MoodDefinitionDTO struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Icon     *string `json:"icon,omitempty"`
}

// EntryCount totals the entries across journals.
func (p *ExportPayload) EntryCount() int {
	n := 0
	for i := range p.Journals {
		n += len(p.Journals[i].Entries)
	}
	return n
}
