package model

type Journal struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	Title          string  `json:"title"`
	Description    *string `json:"description,omitempty"`
	Color          *string `json:"color,omitempty"`
	Icon           *string `json:"icon,omitempty"`
	IsFavorite     bool    `json:"is_favorite"`
	IsArchived     bool    `json:"is_archived"`
	EntryCount     int     `json:"entry_count"`
	TotalWords     int     `json:"total_words"`
	LastEntryAt    int64   `json:"last_entry_at"`
	ImportMetadata string  `json:"import_metadata,omitempty"`
	Ctime          int64   `json:"ctime"`
	Mtime          int64   `json:"mtime"`
}

// JournalStats is the denormalized aggregate recomputed after bulk writes.
type JournalStats struct {
	EntryCount  int
	TotalWords  int
	LastEntryAt int64
}
