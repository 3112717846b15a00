package service

import (
	"github.com/xxxsen/journiv/internal/repo"
)

// Stores bundles the repositories shared by the transfer services so a whole
// set can be rebound to one transaction.
type Stores struct {
	Users    *repo.UserRepo
	Journals *repo.JournalRepo
	Entries  *repo.EntryRepo
	Media    *repo.MediaRepo
	Tags     *repo.TagRepo
	Moods    *repo.MoodRepo
}

func NewStores(q repo.Queryer) *Stores {
	return &Stores{
		Users:    repo.NewUserRepo(q),
		Journals: repo.NewJournalRepo(q),
		Entries:  repo.NewEntryRepo(q),
		Media:    repo.NewMediaRepo(q),
		Tags:     repo.NewTagRepo(q),
		Moods:    repo.NewMoodRepo(q),
	}
}

func (s *Stores) WithTx(q repo.Queryer) *Stores {
	return &Stores{
		Users:    s.Users.WithTx(q),
		Journals: s.Journals.WithTx(q),
		Entries:  s.Entries.WithTx(q),
		Media:    s.Media.WithTx(q),
		Tags:     s.Tags.WithTx(q),
		Moods:    s.Moods.WithTx(q),
	}
}
