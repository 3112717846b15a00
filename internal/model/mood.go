package model

type MoodCategory string

const (
	MoodPositive MoodCategory = "positive"
	MoodNegative MoodCategory = "negative"
	MoodNeutral  MoodCategory = "neutral"
)

// Mood is a system-wide definition referenced by name from imports.
type Mood struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Category MoodCategory `json:"category"`
	Icon     *string      `json:"icon,omitempty"`
}

type MoodLog struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	EntryID        string  `json:"entry_id"`
	MoodID         string  `json:"mood_id"`
	Note           *string `json:"note,omitempty"`
	LoggedDate     string  `json:"logged_date"`
	LoggedDatetime int64   `json:"logged_datetime"`
	LoggedTimezone string  `json:"logged_timezone"`
	Ctime          int64   `json:"ctime"`
	Mtime          int64   `json:"mtime"`
}
