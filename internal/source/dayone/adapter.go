// Package dayone imports Day One JSON exports.
package dayone

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/journiv/internal/source"
	"github.com/xxxsen/journiv/internal/transfer"
)

type Adapter struct {
	parser *Parser
	now    func() time.Time
}

func NewAdapter(limits ParserLimits) *Adapter {
	return &Adapter{parser: NewParser(limits), now: func() time.Time { return time.Now().UTC() }}
}

func (a *Adapter) Name() string {
	return transfer.SourceDayOne
}

func (a *Adapter) Parse(ctx context.Context, dir string) (*source.Result, error) {
	parsed, err := a.parser.ParseDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	res := &source.Result{MediaRoot: MediaRoot(dir)}
	importedAt := a.now()
	for _, pj := range parsed {
		if pj.Err != nil {
			res.AddWarning(transfer.WarnJournalFailed, "Failed to parse Day One journal '%s': %v", pj.Name, pj.Err)
			res.Journals = append(res.Journals, source.Journal{Name: pj.Name, SourceFile: pj.File, Err: pj.Err})
			continue
		}
		res.Journals = append(res.Journals, a.mapJournal(ctx, res, pj.Journal, importedAt))
	}
	return res, nil
}

func (a *Adapter) mapJournal(ctx context.Context, res *source.Result, j *Journal, importedAt time.Time) source.Journal {
	for _, reason := range j.Skipped {
		res.AddWarning(transfer.WarnEntryFailed, "Skipped Day One entry during mapping: %s", reason)
	}
	entries := make([]transfer.EntryDTO, 0, len(j.Entries))
	for _, e := range j.Entries {
		mapped := MapEntry(e)
		if mapped.RichTextErr != nil {
			logutil.GetLogger(ctx).Warn("day one rich text unreadable, using plain text",
				zap.String("entry", e.UUID), zap.Error(mapped.RichTextErr))
		}
		for _, id := range mapped.Unresolved {
			logutil.GetLogger(ctx).Warn("embedded media not found in entry media list",
				zap.String("entry", e.UUID), zap.String("media", id))
		}
		dto := mapped.DTO
		a.attachMedia(res, e, &dto, KindPhoto, e.Photos)
		a.attachMedia(res, e, &dto, KindVideo, e.Videos)
		entries = append(entries, dto)
	}
	dto := MapJournal(j, entries, importedAt)
	return source.Journal{
		Name:           j.Name,
		SourceFile:     j.SourceFile,
		DTO:            &dto,
		EntriesSkipped: len(j.Skipped),
		EntryTotal:     j.Declared,
	}
}

func (a *Adapter) attachMedia(res *source.Result, e *Entry, dto *transfer.EntryDTO, kind MediaKind, items []Media) {
	if res.MediaRoot == "" {
		return
	}
	for i := range items {
		m := &items[i]
		path := FindMedia(res.MediaRoot, m, kind)
		if path == "" {
			res.AddWarning(transfer.WarnMediaMissing, "Media file not found for %s %s", kind, m.Identifier)
			res.MediaSkipped++
			continue
		}
		media, err := MapMedia(m, kind, path, res.MediaRoot)
		if err != nil {
			res.AddWarning(transfer.WarnMediaFailed, "Failed to read %s %s: %v", kind, m.Identifier, err)
			res.MediaSkipped++
			continue
		}
		dto.Media = append(dto.Media, *media)
	}
}
