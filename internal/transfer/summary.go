package transfer

import "sync"

const (
	WarnJournalFailed    = "journal_failed"
	WarnEntryFailed      = "entry_failed"
	WarnMediaMissing     = "media_missing"
	WarnMediaOutsideRoot = "media_outside_root"
	WarnMediaFailed      = "media_failed"
	WarnMoodMissing      = "mood_missing"
	WarnArchiveSkipped   = "archive_skipped"
	WarnSourceParse      = "source_parse"
)

const (
	EntityJournals = "journals"
	EntityEntries  = "entries"
	EntityMedia    = "media"
)

// ImportResultSummary is stored as the import job's result data.
type ImportResultSummary struct {
	JournalsCreated   int `json:"journals_created"`
	EntriesCreated    int `json:"entries_created"`
	MediaImported     int `json:"media_files_imported"`
	TagsCreated       int `json:"tags_created"`
	MoodsCreated      int `json:"moods_created"`
	MoodLogsCreated   int `json:"mood_logs_created"`
	MediaDeduplicated int `json:"media_files_deduplicated"`
	TagsReused        int `json:"tags_reused"`
	MoodsReused       int `json:"moods_reused"`
	EntriesSkipped    int `json:"entries_skipped"`
	MediaSkipped      int `json:"media_files_skipped"`
	JournalsFailed    int `json:"journals_failed"`

	Warnings          []string                     `json:"warnings"`
	WarningCategories map[string]int               `json:"warning_categories"`
	IDMappings        map[string]map[string]string `json:"id_mappings"`

	mu sync.Mutex
}

func NewImportResultSummary() *ImportResultSummary {
	return &ImportResultSummary{
		Warnings:          []string{},
		WarningCategories: map[string]int{},
		IDMappings:        map[string]map[string]string{},
	}
}

func (s *ImportResultSummary) AddWarning(category, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Warnings = append(s.Warnings, msg)
	if s.WarningCategories == nil {
		s.WarningCategories = map[string]int{}
	}
	s.WarningCategories[category]++
}

func (s *ImportResultSummary) RecordMapping(entity string, externalID *string, newID string) {
	if externalID == nil || *externalID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IDMappings == nil {
		s.IDMappings = map[string]map[string]string{}
	}
	group := s.IDMappings[entity]
	if group == nil {
		group = map[string]string{}
		s.IDMappings[entity] = group
	}
	group[*externalID] = newID
}

// Apply adds the counters of a committed journal to the summary.
func (s *ImportResultSummary) Apply(c Counters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.JournalsCreated += c.JournalsCreated
	s.EntriesCreated += c.EntriesCreated
	s.MediaImported += c.MediaImported
	s.MediaDeduplicated += c.MediaDeduplicated
	s.MediaSkipped += c.MediaSkipped
	s.TagsCreated += c.TagsCreated
	s.TagsReused += c.TagsReused
	s.MoodLogsCreated += c.MoodLogsCreated
	s.MoodsReused += c.MoodsReused
	s.EntriesSkipped += c.EntriesSkipped
}

// Counters accumulate inside one journal transaction and reach the summary
// only when it commits.
type Counters struct {
	JournalsCreated   int
	EntriesCreated    int
	EntriesSkipped    int
	MediaImported     int
	MediaDeduplicated int
	MediaSkipped      int
	TagsCreated       int
	TagsReused        int
	MoodLogsCreated   int
	MoodsReused       int
}
