package model

type ImportSource string

const (
	ImportSourceJourniv ImportSource = "journiv"
	ImportSourceDayOne  ImportSource = "dayone"
)

func (s ImportSource) Valid() bool {
	return s == ImportSourceJourniv || s == ImportSourceDayOne
}

type ImportJob struct {
	Job
	SourceType ImportSource
	FilePath   string
}
