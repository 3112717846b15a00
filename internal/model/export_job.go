package model

type ExportType string

const (
	ExportFull    ExportType = "full"
	ExportJournal ExportType = "journal"
)

func (t ExportType) Valid() bool {
	return t == ExportFull || t == ExportJournal
}

type ExportJob struct {
	Job
	ExportType   ExportType
	JournalIDs   []string
	IncludeMedia bool
	FilePath     string
	FileSize     int64
}
