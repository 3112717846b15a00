package dbutil

import (
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var limitRegex = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

var bindType atomic.Int32

func init() {
	bindType.Store(int32(sqlx.DOLLAR))
}

// UseDriver selects the placeholder style used by Finalize. Drivers sqlx
// does not know (modernc "sqlite") keep the "?" form.
func UseDriver(driver string) {
	bindType.Store(int32(sqlx.BindType(driver)))
}

func Finalize(query string, args []interface{}) (string, []interface{}) {
	loc := limitRegex.FindStringIndex(query)
	if loc != nil {
		prefix := query[:loc[0]]
		qCount := strings.Count(prefix, "?")
		if qCount+1 < len(args) {
			args[qCount], args[qCount+1] = args[qCount+1], args[qCount]
			query = limitRegex.ReplaceAllString(query, "LIMIT ? OFFSET ?")
		}
	}
	return sqlx.Rebind(int(bindType.Load()), query), args
}

func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if pgErr, ok := err.(*pq.Error); ok {
		return pgErr.Code == "23505"
	}
	// sqlite reports constraint failures only through the message text
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func BoolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
