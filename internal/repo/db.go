package repo

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/didi/gendry/builder"
	"go.uber.org/multierr"

	"github.com/xxxsen/journiv/internal/pkg/dbutil"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx so a repository can run
// inside or outside a unit of work.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var savepointName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type TxRunner struct {
	db *sql.DB
}

func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db}
}

// InTx runs fn in a transaction, committing when fn returns nil and rolling
// back otherwise.
func (r *TxRunner) InTx(ctx context.Context, fn func(ctx context.Context, q Queryer) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Savepoint runs fn inside a nested savepoint of the open transaction q.
// A failing fn only discards its own writes; the outer transaction stays
// usable, which postgres otherwise refuses after any statement error.
func Savepoint(ctx context.Context, q Queryer, name string, fn func() error) error {
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	if _, err := q.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return multierr.Append(err, rbErr)
		}
		_, _ = q.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
		return err
	}
	if _, err := q.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func insertRows(ctx context.Context, q Queryer, table string, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	sqlStr, args, err := builder.BuildInsert(table, rows)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return err
}

func updateRows(ctx context.Context, q Queryer, table string, where, data map[string]interface{}) (int64, error) {
	sqlStr, args, err := builder.BuildUpdate(table, where, data)
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := q.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func deleteRows(ctx context.Context, q Queryer, table string, where map[string]interface{}) (int64, error) {
	sqlStr, args, err := builder.BuildDelete(table, where)
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := q.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func selectRows(ctx context.Context, q Queryer, table string, where map[string]interface{}, fields []string) (*sql.Rows, error) {
	sqlStr, args, err := builder.BuildSelect(table, where, fields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return q.QueryContext(ctx, sqlStr, args...)
}

func selectRow(ctx context.Context, q Queryer, table string, where map[string]interface{}, fields []string) (*sql.Row, error) {
	sqlStr, args, err := builder.BuildSelect(table, where, fields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return q.QueryRowContext(ctx, sqlStr, args...), nil
}

func countRows(ctx context.Context, q Queryer, query string, args ...interface{}) (int, error) {
	sqlStr, finalArgs := dbutil.Finalize(query, args)
	count := 0
	if err := q.QueryRowContext(ctx, sqlStr, finalArgs...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func fromNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullable[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
