package repo

import (
	"context"
	"database/sql"

	"github.com/xxxsen/journiv/internal/model"
	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
)

var mediaFields = []string{
	"id", "entry_id", "user_id", "media_type", "file_path", "original_filename", "file_size",
	"mime_type", "checksum", "width", "height", "duration", "alt_text", "caption", "file_metadata",
	"thumbnail_path", "upload_status", "external_provider", "external_asset_id", "external_url",
	"external_created_at", "external_metadata", "ctime", "mtime",
}

type MediaRepo struct {
	db Queryer
}

func NewMediaRepo(db Queryer) *MediaRepo {
	return &MediaRepo{db: db}
}

func (r *MediaRepo) WithTx(q Queryer) *MediaRepo {
	return &MediaRepo{db: q}
}

func (r *MediaRepo) Create(ctx context.Context, m *model.EntryMedia) error {
	data := map[string]interface{}{
		"id":                  m.ID,
		"entry_id":            m.EntryID,
		"user_id":             m.UserID,
		"media_type":          m.MediaType,
		"file_path":           m.FilePath,
		"original_filename":   m.OriginalFilename,
		"file_size":           m.FileSize,
		"mime_type":           m.MimeType,
		"checksum":            m.Checksum,
		"width":               nullable(m.Width),
		"height":              nullable(m.Height),
		"duration":            nullable(m.Duration),
		"alt_text":            nullable(m.AltText),
		"caption":             nullable(m.Caption),
		"file_metadata":       nullable(m.FileMetadata),
		"thumbnail_path":      nullable(m.ThumbnailPath),
		"upload_status":       string(m.UploadStatus),
		"external_provider":   nullable(m.ExternalProvider),
		"external_asset_id":   nullable(m.ExternalAssetID),
		"external_url":        nullable(m.ExternalURL),
		"external_created_at": m.ExternalCreatedAt,
		"external_metadata":   m.ExternalMetadata,
		"ctime":               m.Ctime,
		"mtime":               m.Mtime,
	}
	return insertRows(ctx, r.db, "entry_media", []map[string]interface{}{data})
}

func (r *MediaRepo) Get(ctx context.Context, userID, mediaID string) (*model.EntryMedia, error) {
	return r.first(ctx, map[string]interface{}{"id": mediaID, "user_id": userID})
}

func (r *MediaRepo) ListByEntry(ctx context.Context, entryID string) ([]*model.EntryMedia, error) {
	rows, err := selectRows(ctx, r.db, "entry_media", map[string]interface{}{"entry_id": entryID, "_orderby": "ctime asc"}, mediaFields)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.EntryMedia, 0)
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// FindByEntryChecksum finds an attachment of the same content already on the
// entry. Imports use it to skip duplicates before touching storage.
func (r *MediaRepo) FindByEntryChecksum(ctx context.Context, entryID, checksum string) (*model.EntryMedia, error) {
	return r.first(ctx, map[string]interface{}{"entry_id": entryID, "checksum": checksum})
}

// FindByUserChecksum returns any record of the user pointing at the stored
// file of checksum, so a deduplicated store can reuse its path and metadata.
func (r *MediaRepo) FindByUserChecksum(ctx context.Context, userID, checksum string) (*model.EntryMedia, error) {
	return r.first(ctx, map[string]interface{}{
		"user_id":       userID,
		"checksum":      checksum,
		"file_path !=":  "",
		"upload_status": string(model.UploadCompleted),
	})
}

func (r *MediaRepo) first(ctx context.Context, where map[string]interface{}) (*model.EntryMedia, error) {
	where["_orderby"] = "ctime asc"
	where["_limit"] = []uint{0, 1}
	row, err := selectRow(ctx, r.db, "entry_media", where, mediaFields)
	if err != nil {
		return nil, err
	}
	m, err := scanMedia(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// CountByChecksum counts the records sharing one physical file. It backs
// the storage engine's reference-counted delete.
func (r *MediaRepo) CountByChecksum(ctx context.Context, userID, checksum string) (int, error) {
	return countRows(ctx, r.db, "SELECT COUNT(*) FROM entry_media WHERE user_id=? AND checksum=?", userID, checksum)
}

func (r *MediaRepo) CountByEntry(ctx context.Context, entryID string) (int, error) {
	return countRows(ctx, r.db, "SELECT COUNT(*) FROM entry_media WHERE entry_id=?", entryID)
}

func (r *MediaRepo) Delete(ctx context.Context, userID, mediaID string) error {
	affected, err := deleteRows(ctx, r.db, "entry_media", map[string]interface{}{"id": mediaID, "user_id": userID})
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func scanMedia(row rowScanner) (*model.EntryMedia, error) {
	var m model.EntryMedia
	var width, height sql.NullInt64
	var duration sql.NullFloat64
	var altText, caption, fileMetadata, thumbnail, provider, assetID, url sql.NullString
	var status string
	if err := row.Scan(
		&m.ID,
		&m.EntryID,
		&m.UserID,
		&m.MediaType,
		&m.FilePath,
		&m.OriginalFilename,
		&m.FileSize,
		&m.MimeType,
		&m.Checksum,
		&width,
		&height,
		&duration,
		&altText,
		&caption,
		&fileMetadata,
		&thumbnail,
		&status,
		&provider,
		&assetID,
		&url,
		&m.ExternalCreatedAt,
		&m.ExternalMetadata,
		&m.Ctime,
		&m.Mtime,
	); err != nil {
		return nil, err
	}
	m.Width = fromNullInt(width)
	m.Height = fromNullInt(height)
	m.Duration = fromNullFloat(duration)
	m.AltText = fromNullString(altText)
	m.Caption = fromNullString(caption)
	m.FileMetadata = fromNullString(fileMetadata)
	m.ThumbnailPath = fromNullString(thumbnail)
	m.UploadStatus = model.UploadStatus(status)
	m.ExternalProvider = fromNullString(provider)
	m.ExternalAssetID = fromNullString(assetID)
	m.ExternalURL = fromNullString(url)
	return &m, nil
}
