package repo

import (
	"context"
	"database/sql"

	"github.com/xxxsen/journiv/internal/model"
	"github.com/xxxsen/journiv/internal/pkg/dbutil"
	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
)

var userFields = []string{"id", "email", "name", "time_zone", "ctime", "mtime"}

type UserRepo struct {
	db Queryer
}

func NewUserRepo(db Queryer) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) WithTx(q Queryer) *UserRepo {
	return &UserRepo{db: q}
}

func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	data := map[string]interface{}{
		"id":        user.ID,
		"email":     user.Email,
		"name":      nullable(user.Name),
		"time_zone": user.TimeZone,
		"ctime":     user.Ctime,
		"mtime":     user.Mtime,
	}
	if err := insertRows(ctx, r.db, "users", []map[string]interface{}{data}); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, map[string]interface{}{"id": id})
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, map[string]interface{}{"email": email})
}

func (r *UserRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.User, error) {
	row, err := selectRow(ctx, r.db, "users", where, userFields)
	if err != nil {
		return nil, err
	}
	var user model.User
	var name sql.NullString
	if err := row.Scan(&user.ID, &user.Email, &name, &user.TimeZone, &user.Ctime, &user.Mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	user.Name = fromNullString(name)
	return &user, nil
}
