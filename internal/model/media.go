package model

type UploadStatus string

const (
	UploadPending    UploadStatus = "pending"
	UploadProcessing UploadStatus = "processing"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
)

// EntryMedia is an attachment record. Several records may share one physical
// file through (UserID, Checksum).
type EntryMedia struct {
	ID                string       `json:"id"`
	EntryID           string       `json:"entry_id"`
	UserID            string       `json:"user_id"`
	MediaType         string       `json:"media_type"`
	FilePath          string       `json:"file_path"`
	OriginalFilename  string       `json:"original_filename"`
	FileSize          int64        `json:"file_size"`
	MimeType          string       `json:"mime_type"`
	Checksum          string       `json:"checksum"`
	Width             *int         `json:"width,omitempty"`
	Height            *int         `json:"height,omitempty"`
	Duration          *float64     `json:"duration,omitempty"`
	AltText           *string      `json:"alt_text,omitempty"`
	Caption           *string      `json:"caption,omitempty"`
	FileMetadata      *string      `json:"file_metadata,omitempty"`
	ThumbnailPath     *string      `json:"thumbnail_path,omitempty"`
	UploadStatus      UploadStatus `json:"upload_status"`
	ExternalProvider  *string      `json:"external_provider,omitempty"`
	ExternalAssetID   *string      `json:"external_asset_id,omitempty"`
	ExternalURL       *string      `json:"external_url,omitempty"`
	ExternalCreatedAt int64        `json:"external_created_at,omitempty"`
	ExternalMetadata  string       `json:"external_metadata,omitempty"`
	Ctime             int64        `json:"ctime"`
	Mtime             int64        `json:"mtime"`
}
