package repo

import (
	"context"
	"database/sql"

	"github.com/xxxsen/journiv/internal/model"
	"github.com/xxxsen/journiv/internal/pkg/dbutil"
	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
)

var tagFields = []string{"id", "user_id", "name", "usage_count", "ctime", "mtime"}

type TagRepo struct {
	db Queryer
}

func NewTagRepo(db Queryer) *TagRepo {
	return &TagRepo{db: db}
}

func (r *TagRepo) WithTx(q Queryer) *TagRepo {
	return &TagRepo{db: q}
}

func (r *TagRepo) Create(ctx context.Context, tag *model.Tag) error {
	data := map[string]interface{}{
		"id":          tag.ID,
		"user_id":     tag.UserID,
		"name":        tag.Name,
		"usage_count": tag.UsageCount,
		"ctime":       tag.Ctime,
		"mtime":       tag.Mtime,
	}
	if err := insertRows(ctx, r.db, "tags", []map[string]interface{}{data}); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *TagRepo) GetByName(ctx context.Context, userID, name string) (*model.Tag, error) {
	row, err := selectRow(ctx, r.db, "tags", map[string]interface{}{"user_id": userID, "name": name}, tagFields)
	if err != nil {
		return nil, err
	}
	var tag model.Tag
	if err := row.Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.UsageCount, &tag.Ctime, &tag.Mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &tag, nil
}

func (r *TagRepo) List(ctx context.Context, userID string) ([]model.Tag, error) {
	rows, err := selectRows(ctx, r.db, "tags", map[string]interface{}{"user_id": userID, "_orderby": "name asc"}, tagFields)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tags := make([]model.Tag, 0)
	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.UsageCount, &tag.Ctime, &tag.Mtime); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// LinkEntry attaches tag to an entry and bumps its usage counter. Linking
// twice is a no-op.
func (r *TagRepo) LinkEntry(ctx context.Context, entryID, tagID string, now int64) error {
	// postgres aborts the surrounding transaction on a unique violation, so
	// probe before inserting
	linked, err := countRows(ctx, r.db, "SELECT COUNT(*) FROM entry_tags WHERE entry_id=? AND tag_id=?", entryID, tagID)
	if err != nil {
		return err
	}
	if linked > 0 {
		return nil
	}
	err = insertRows(ctx, r.db, "entry_tags", []map[string]interface{}{{
		"entry_id": entryID,
		"tag_id":   tagID,
		"ctime":    now,
	}})
	if err != nil {
		return err
	}
	sqlStr, args := dbutil.Finalize("UPDATE tags SET usage_count = usage_count + 1, mtime = ? WHERE id = ?", []interface{}{now, tagID})
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// NamesByEntry returns the tag names of an entry in alphabetical order.
func (r *TagRepo) NamesByEntry(ctx context.Context, entryID string) ([]string, error) {
	const query = `SELECT t.name FROM entry_tags et JOIN tags t ON t.id = et.tag_id WHERE et.entry_id = ? ORDER BY t.name`
	sqlStr, args := dbutil.Finalize(query, []interface{}{entryID})
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
