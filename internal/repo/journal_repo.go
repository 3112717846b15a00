package repo

import (
	"context"
	"database/sql"

	"github.com/xxxsen/journiv/internal/model"
	"github.com/xxxsen/journiv/internal/pkg/dbutil"
	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
)

var journalFields = []string{
	"id", "user_id", "title", "description", "color", "icon", "is_favorite", "is_archived",
	"entry_count", "total_words", "last_entry_at", "import_metadata", "ctime", "mtime",
}

type JournalRepo struct {
	db Queryer
}

func NewJournalRepo(db Queryer) *JournalRepo {
	return &JournalRepo{db: db}
}

func (r *JournalRepo) WithTx(q Queryer) *JournalRepo {
	return &JournalRepo{db: q}
}

func (r *JournalRepo) Create(ctx context.Context, j *model.Journal) error {
	data := map[string]interface{}{
		"id":              j.ID,
		"user_id":         j.UserID,
		"title":           j.Title,
		"description":     nullable(j.Description),
		"color":           nullable(j.Color),
		"icon":            nullable(j.Icon),
		"is_favorite":     dbutil.BoolToInt(j.IsFavorite),
		"is_archived":     dbutil.BoolToInt(j.IsArchived),
		"entry_count":     j.EntryCount,
		"total_words":     j.TotalWords,
		"last_entry_at":   j.LastEntryAt,
		"import_metadata": j.ImportMetadata,
		"ctime":           j.Ctime,
		"mtime":           j.Mtime,
	}
	return insertRows(ctx, r.db, "journals", []map[string]interface{}{data})
}

func (r *JournalRepo) Get(ctx context.Context, userID, journalID string) (*model.Journal, error) {
	row, err := selectRow(ctx, r.db, "journals", map[string]interface{}{"id": journalID, "user_id": userID}, journalFields)
	if err != nil {
		return nil, err
	}
	j, err := scanJournal(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return j, nil
}

func (r *JournalRepo) ListByUser(ctx context.Context, userID string) ([]*model.Journal, error) {
	return r.list(ctx, map[string]interface{}{"user_id": userID, "_orderby": "ctime asc"})
}

// ListByIDs returns the user's journals among ids. Foreign ids are silently
// dropped.
func (r *JournalRepo) ListByIDs(ctx context.Context, userID string, ids []string) ([]*model.Journal, error) {
	if len(ids) == 0 {
		return []*model.Journal{}, nil
	}
	return r.list(ctx, map[string]interface{}{"user_id": userID, "id in": ids, "_orderby": "ctime asc"})
}

func (r *JournalRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.Journal, error) {
	rows, err := selectRows(ctx, r.db, "journals", where, journalFields)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.Journal, 0)
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// RecomputeStats refreshes the denormalized counters of a journal from its
// entries and returns them.
func (r *JournalRepo) RecomputeStats(ctx context.Context, journalID string, mtime int64) (*model.JournalStats, error) {
	const query = `SELECT COUNT(*), COALESCE(SUM(word_count), 0), COALESCE(MAX(entry_datetime), 0) FROM entries WHERE journal_id = ?`
	sqlStr, args := dbutil.Finalize(query, []interface{}{journalID})
	var stats model.JournalStats
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&stats.EntryCount, &stats.TotalWords, &stats.LastEntryAt); err != nil {
		return nil, err
	}
	_, err := updateRows(ctx, r.db, "journals", map[string]interface{}{"id": journalID}, map[string]interface{}{
		"entry_count":   stats.EntryCount,
		"total_words":   stats.TotalWords,
		"last_entry_at": stats.LastEntryAt,
		"mtime":         mtime,
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func scanJournal(row rowScanner) (*model.Journal, error) {
	var j model.Journal
	var description, color, icon sql.NullString
	var favorite, archived int
	if err := row.Scan(
		&j.ID,
		&j.UserID,
		&j.Title,
		&description,
		&color,
		&icon,
		&favorite,
		&archived,
		&j.EntryCount,
		&j.TotalWords,
		&j.LastEntryAt,
		&j.ImportMetadata,
		&j.Ctime,
		&j.Mtime,
	); err != nil {
		return nil, err
	}
	j.Description = fromNullString(description)
	j.Color = fromNullString(color)
	j.Icon = fromNullString(icon)
	j.IsFavorite = favorite == 1
	j.IsArchived = archived == 1
	return &j, nil
}
