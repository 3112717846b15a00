package repo

import (
	"context"
	"database/sql"

	"github.com/xxxsen/journiv/internal/model"
	"github.com/xxxsen/journiv/internal/pkg/dbutil"
	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
)

var entryFields = []string{
	"id", "journal_id", "user_id", "title", "content", "content_delta", "plain_text",
	"entry_date", "entry_datetime", "entry_timezone", "word_count", "is_pinned", "is_draft",
	"media_count", "location_json", "latitude", "longitude", "weather_json", "weather_summary",
	"import_metadata", "ctime", "mtime",
}

type EntryRepo struct {
	db Queryer
}

func NewEntryRepo(db Queryer) *EntryRepo {
	return &EntryRepo{db: db}
}

func (r *EntryRepo) WithTx(q Queryer) *EntryRepo {
	return &EntryRepo{db: q}
}

func (r *EntryRepo) Create(ctx context.Context, e *model.Entry) error {
	data := map[string]interface{}{
		"id":              e.ID,
		"journal_id":      e.JournalID,
		"user_id":         e.UserID,
		"title":           nullable(e.Title),
		"content":         e.Content,
		"content_delta":   e.ContentDelta,
		"plain_text":      e.PlainText,
		"entry_date":      e.EntryDate,
		"entry_datetime":  e.EntryDatetime,
		"entry_timezone":  e.EntryTimezone,
		"word_count":      e.WordCount,
		"is_pinned":       dbutil.BoolToInt(e.IsPinned),
		"is_draft":        dbutil.BoolToInt(e.IsDraft),
		"media_count":     e.MediaCount,
		"location_json":   e.Location,
		"latitude":        nullable(e.Latitude),
		"longitude":       nullable(e.Longitude),
		"weather_json":    e.Weather,
		"weather_summary": nullable(e.WeatherSummary),
		"import_metadata": e.ImportMetadata,
		"ctime":           e.Ctime,
		"mtime":           e.Mtime,
	}
	return insertRows(ctx, r.db, "entries", []map[string]interface{}{data})
}

func (r *EntryRepo) Get(ctx context.Context, userID, entryID string) (*model.Entry, error) {
	row, err := selectRow(ctx, r.db, "entries", map[string]interface{}{"id": entryID, "user_id": userID}, entryFields)
	if err != nil {
		return nil, err
	}
	e, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// ListByJournal returns entries oldest first.
func (r *EntryRepo) ListByJournal(ctx context.Context, journalID string) ([]*model.Entry, error) {
	where := map[string]interface{}{"journal_id": journalID, "_orderby": "entry_datetime asc"}
	rows, err := selectRows(ctx, r.db, "entries", where, entryFields)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateContent writes back content and every field derived from it.
func (r *EntryRepo) UpdateContent(ctx context.Context, e *model.Entry) error {
	affected, err := updateRows(ctx, r.db, "entries", map[string]interface{}{"id": e.ID}, map[string]interface{}{
		"content":       e.Content,
		"content_delta": e.ContentDelta,
		"plain_text":    e.PlainText,
		"word_count":    e.WordCount,
		"media_count":   e.MediaCount,
		"mtime":         e.Mtime,
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *EntryRepo) Delete(ctx context.Context, userID, entryID string) error {
	affected, err := deleteRows(ctx, r.db, "entries", map[string]interface{}{"id": entryID, "user_id": userID})
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func scanEntry(row rowScanner) (*model.Entry, error) {
	var e model.Entry
	var title, weatherSummary sql.NullString
	var lat, lng sql.NullFloat64
	var pinned, draft int
	if err := row.Scan(
		&e.ID,
		&e.JournalID,
		&e.UserID,
		&title,
		&e.Content,
		&e.ContentDelta,
		&e.PlainText,
		&e.EntryDate,
		&e.EntryDatetime,
		&e.EntryTimezone,
		&e.WordCount,
		&pinned,
		&draft,
		&e.MediaCount,
		&e.Location,
		&lat,
		&lng,
		&e.Weather,
		&weatherSummary,
		&e.ImportMetadata,
		&e.Ctime,
		&e.Mtime,
	); err != nil {
		return nil, err
	}
	e.Title = fromNullString(title)
	e.WeatherSummary = fromNullString(weatherSummary)
	e.Latitude = fromNullFloat(lat)
	e.Longitude = fromNullFloat(lng)
	e.IsPinned = pinned == 1
	e.IsDraft = draft == 1
	return &e, nil
}
