package timeutil

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const DateLayout = "2006-01-02"

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	DateLayout,
}

func NowUnix() int64 {
	return time.Now().Unix()
}

func NowUTC() time.Time {
	return time.Now().UTC()
}

// EnsureUTC converts t to UTC. A zero-offset wall clock without location is
// already treated as UTC by the time package.
func EnsureUTC(t time.Time) time.Time {
	return t.UTC()
}

// ParseFlexible accepts an ISO-8601 string, a unix timestamp (seconds, as a
// number or numeric string) and returns the instant in UTC.
func ParseFlexible(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case float64:
		return fromUnixFloat(v), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v.String(), err)
		}
		return fromUnixFloat(f), nil
	case string:
		return ParseString(v)
	case nil:
		return time.Time{}, fmt.Errorf("empty datetime")
	default:
		return time.Time{}, fmt.Errorf("unsupported datetime type %T", value)
	}
}

func ParseString(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty datetime")
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return fromUnixFloat(f), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", value)
}

func fromUnixFloat(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// NormalizeTimezone returns tz when it names a loadable IANA zone, "UTC"
// otherwise.
func NormalizeTimezone(tz string) string {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "UTC"
	}
	return tz
}

// LocalDate is the calendar date of the UTC instant as seen in tz.
func LocalDate(utc time.Time, tz string) string {
	loc, err := time.LoadLocation(NormalizeTimezone(tz))
	if err != nil {
		loc = time.UTC
	}
	return utc.In(loc).Format(DateLayout)
}
