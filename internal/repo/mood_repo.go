package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/xxxsen/journiv/internal/model"
	"github.com/xxxsen/journiv/internal/pkg/dbutil"
	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
)

var moodLogFields = []string{
	"id", "user_id", "entry_id", "mood_id", "note", "logged_date", "logged_datetime",
	"logged_timezone", "ctime", "mtime",
}

type MoodRepo struct {
	db Queryer
}

func NewMoodRepo(db Queryer) *MoodRepo {
	return &MoodRepo{db: db}
}

func (r *MoodRepo) WithTx(q Queryer) *MoodRepo {
	return &MoodRepo{db: q}
}

func (r *MoodRepo) Create(ctx context.Context, m *model.Mood) error {
	data := map[string]interface{}{
		"id":       m.ID,
		"name":     m.Name,
		"category": string(m.Category),
		"icon":     nullable(m.Icon),
	}
	if err := insertRows(ctx, r.db, "moods", []map[string]interface{}{data}); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

// GetByName matches mood names case-insensitively.
func (r *MoodRepo) GetByName(ctx context.Context, name string) (*model.Mood, error) {
	sqlStr, args := dbutil.Finalize("SELECT id, name, category, icon FROM moods WHERE LOWER(name) = ?",
		[]interface{}{strings.ToLower(strings.TrimSpace(name))})
	m, err := scanMood(r.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *MoodRepo) GetByID(ctx context.Context, id string) (*model.Mood, error) {
	row, err := selectRow(ctx, r.db, "moods", map[string]interface{}{"id": id}, []string{"id", "name", "category", "icon"})
	if err != nil {
		return nil, err
	}
	m, err := scanMood(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *MoodRepo) List(ctx context.Context) ([]*model.Mood, error) {
	rows, err := selectRows(ctx, r.db, "moods", map[string]interface{}{"_orderby": "name asc"}, []string{"id", "name", "category", "icon"})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.Mood, 0)
	for rows.Next() {
		m, err := scanMood(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MoodRepo) CreateLog(ctx context.Context, l *model.MoodLog) error {
	data := map[string]interface{}{
		"id":              l.ID,
		"user_id":         l.UserID,
		"entry_id":        l.EntryID,
		"mood_id":         l.MoodID,
		"note":            nullable(l.Note),
		"logged_date":     l.LoggedDate,
		"logged_datetime": l.LoggedDatetime,
		"logged_timezone": l.LoggedTimezone,
		"ctime":           l.Ctime,
		"mtime":           l.Mtime,
	}
	return insertRows(ctx, r.db, "mood_logs", []map[string]interface{}{data})
}

func (r *MoodRepo) GetLogByEntry(ctx context.Context, entryID string) (*model.MoodLog, error) {
	where := map[string]interface{}{"entry_id": entryID, "_orderby": "logged_datetime desc", "_limit": []uint{0, 1}}
	row, err := selectRow(ctx, r.db, "mood_logs", where, moodLogFields)
	if err != nil {
		return nil, err
	}
	var l model.MoodLog
	var note sql.NullString
	if err := row.Scan(&l.ID, &l.UserID, &l.EntryID, &l.MoodID, &note, &l.LoggedDate, &l.LoggedDatetime,
		&l.LoggedTimezone, &l.Ctime, &l.Mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	l.Note = fromNullString(note)
	return &l, nil
}

func scanMood(row rowScanner) (*model.Mood, error) {
	var m model.Mood
	var category string
	var icon sql.NullString
	if err := row.Scan(&m.ID, &m.Name, &category, &icon); err != nil {
		return nil, err
	}
	m.Category = model.MoodCategory(category)
	m.Icon = fromNullString(icon)
	return &m, nil
}
