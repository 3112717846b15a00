package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/journiv/internal/archive"
	"github.com/xxxsen/journiv/internal/cache"
	"github.com/xxxsen/journiv/internal/delta"
	"github.com/xxxsen/journiv/internal/idmap"
	"github.com/xxxsen/journiv/internal/model"
	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
	"github.com/xxxsen/journiv/internal/pkg/timeutil"
	"github.com/xxxsen/journiv/internal/repo"
	"github.com/xxxsen/journiv/internal/source"
	"github.com/xxxsen/journiv/internal/source/dayone"
	"github.com/xxxsen/journiv/internal/transfer"
)

const (
	moodScope        = "moods"
	warnValidation   = "validation"
	entrySavepoint   = "import_entry"
	defaultCacheSize = 256
)

type ImportRequest struct {
	UserID      string
	Source      model.ImportSource
	ArchivePath string
}

// ImportOutcome counts what a run settled. Entries are the unit a partial
// import is judged by; a journal that failed without contributing any entry
// counts as one failed unit of its own.
type ImportOutcome struct {
	Summary           *transfer.ImportResultSummary
	JournalsProcessed int
	JournalsFailed    int
	EntriesProcessed  int
	EntriesFailed     int
	emptyFailures     int
}

// Units returns the processed and failed counts the job is settled on. Runs
// that saw no entries at all fall back to journal counts.
func (o *ImportOutcome) Units() (processed, failed int) {
	processed, failed = o.EntriesProcessed, o.EntriesFailed+o.emptyFailures
	if processed+failed == 0 {
		return o.JournalsProcessed, o.JournalsFailed
	}
	return processed, failed
}

type ImportService struct {
	tx        *repo.TxRunner
	stores    *Stores
	importer  *MediaImporter
	extractor *archive.Extractor
	sources   *source.Registry
	uploads   *UploadService
	ids       *cache.Scoped[string]
}

func NewImportService(tx *repo.TxRunner, stores *Stores, importer *MediaImporter, extractor *archive.Extractor,
	sources *source.Registry, uploads *UploadService, ids *cache.Scoped[string]) *ImportService {
	if ids == nil {
		ids = cache.NewScoped[string](defaultCacheSize, 10*time.Minute)
	}
	return &ImportService{
		tx:        tx,
		stores:    stores,
		importer:  importer,
		extractor: extractor,
		sources:   sources,
		uploads:   uploads,
		ids:       ids,
	}
}

// journalUnit is one journal waiting to be imported. Units with err failed
// before reaching the database.
type journalUnit struct {
	name           string
	dto            *transfer.JournalDTO
	err            error
	entriesSkipped int
	entryTotal     int
}

// importRun buffers everything a transaction produced so it reaches the
// summary only after a commit.
type importRun struct {
	ids      *idmap.Mapper
	counters transfer.Counters
	warnings []source.Warning
	mappings []idMapping
}

type idMapping struct {
	entity     string
	externalID *string
	id         string
}

func (r *importRun) warn(category, format string, args ...interface{}) {
	r.warnings = append(r.warnings, source.Warning{Category: category, Message: fmt.Sprintf(format, args...)})
}

// allocate issues the id of a row created from a record carrying externalID.
// The first record with a given external id owns its mapping; repeats get
// fresh ids so they cannot collide on insert.
func (r *importRun) allocate(entity string, externalID *string) string {
	if r.ids == nil || externalID == nil || *externalID == "" {
		return newID()
	}
	key := mappingKey(entity, *externalID)
	if r.ids.Has(key) {
		return newID()
	}
	return r.ids.MapString(key)
}

// mapID reports id in the summary when it is the one allocated for
// externalID.
func (r *importRun) mapID(entity string, externalID *string, id string) {
	if r.ids != nil && externalID != nil {
		if owner, ok := r.ids.Get(mappingKey(entity, *externalID)); !ok || owner != id {
			return
		}
	}
	r.mappings = append(r.mappings, idMapping{entity: entity, externalID: externalID, id: id})
}

func mappingKey(entity, externalID string) string {
	return entity + "/" + externalID
}

func (r *importRun) merge(o *importRun) {
	c := &r.counters
	c.JournalsCreated += o.counters.JournalsCreated
	c.EntriesCreated += o.counters.EntriesCreated
	c.EntriesSkipped += o.counters.EntriesSkipped
	c.MediaImported += o.counters.MediaImported
	c.MediaDeduplicated += o.counters.MediaDeduplicated
	c.MediaSkipped += o.counters.MediaSkipped
	c.TagsCreated += o.counters.TagsCreated
	c.TagsReused += o.counters.TagsReused
	c.MoodLogsCreated += o.counters.MoodLogsCreated
	c.MoodsReused += o.counters.MoodsReused
	r.warnings = append(r.warnings, o.warnings...)
	r.mappings = append(r.mappings, o.mappings...)
}

func (r *importRun) commit(summary *transfer.ImportResultSummary) {
	summary.Apply(r.counters)
	for _, w := range r.warnings {
		summary.AddWarning(w.Category, w.Message)
	}
	for _, m := range r.mappings {
		summary.RecordMapping(m.entity, m.externalID, m.id)
	}
}

// Import extracts the archive and imports every journal in its own
// transaction. Structural problems with the container fail the whole run;
// a journal that cannot be imported only counts as a failed unit.
func (s *ImportService) Import(ctx context.Context, req ImportRequest, progress *ProgressReporter) (*ImportOutcome, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", req.UserID), zap.String("source", string(req.Source)))
	if err := progress.Milestone(ctx, transfer.ImportExtracting); err != nil {
		return nil, err
	}
	extraction, err := s.extractor.Extract(ctx, req.ArchivePath, s.uploads.ExtractionDir(req.ArchivePath))
	if err != nil {
		return nil, err
	}
	summary := transfer.NewImportResultSummary()
	for _, w := range extraction.Warnings {
		summary.AddWarning(transfer.WarnArchiveSkipped, w)
	}

	var (
		units     []journalUnit
		mediaRoot string
	)
	switch req.Source {
	case model.ImportSourceJourniv:
		payload, err := s.loadManifest(extraction, summary)
		if err != nil {
			return nil, err
		}
		if err := s.importMoodDefinitions(ctx, payload.MoodDefinitions, summary); err != nil {
			return nil, fmt.Errorf("import mood definitions: %w", err)
		}
		for i := range payload.Journals {
			j := &payload.Journals[i]
			units = append(units, journalUnit{name: j.Title, dto: j, entryTotal: len(j.Entries)})
		}
		mediaRoot = extraction.MediaDir
	default:
		adapter, err := s.sources.Get(string(req.Source))
		if err != nil {
			return nil, err
		}
		res, err := adapter.Parse(ctx, extraction.Root)
		if err != nil {
			return nil, err
		}
		for _, w := range res.Warnings {
			summary.AddWarning(w.Category, w.Message)
		}
		summary.MediaSkipped += res.MediaSkipped
		for _, j := range res.Journals {
			units = append(units, journalUnit{
				name:           j.Name,
				dto:            j.DTO,
				err:            j.Err,
				entriesSkipped: j.EntriesSkipped,
				entryTotal:     j.EntryTotal,
			})
		}
		mediaRoot = res.MediaRoot
	}

	total := 0
	for i := range units {
		total += units[i].entryTotal
	}
	progress.Band(transfer.ImportProcessing, transfer.ImportFinalizing)
	progress.SetTotal(total)
	if err := progress.Milestone(ctx, transfer.ImportProcessing); err != nil {
		return nil, err
	}
	logger.Info("importing journals", zap.Int("journals", len(units)), zap.Int("entries", total))

	outcome, err := s.importJournals(ctx, req.UserID, units, mediaRoot, summary, progress, idmap.New())
	if err != nil {
		return outcome, err
	}
	if err := progress.Milestone(ctx, transfer.ImportFinalizing); err != nil {
		return outcome, err
	}
	logger.Info("import finished",
		zap.Int("journals", outcome.JournalsProcessed), zap.Int("journals_failed", outcome.JournalsFailed),
		zap.Int("entries", summary.EntriesCreated), zap.Int("entries_skipped", summary.EntriesSkipped),
		zap.Int("media", summary.MediaImported), zap.Int("media_deduplicated", summary.MediaDeduplicated))
	return outcome, nil
}

func (s *ImportService) loadManifest(extraction *archive.Extraction, summary *transfer.ImportResultSummary) (*transfer.ExportPayload, error) {
	if extraction.ManifestPath == "" {
		return nil, appErr.NewValidationError(fmt.Sprintf("Archive does not contain %s", archive.ManifestName))
	}
	f, err := os.Open(extraction.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	payload := &transfer.ExportPayload{}
	if err := json.NewDecoder(f).Decode(payload); err != nil {
		return nil, appErr.NewValidationError(fmt.Sprintf("Malformed manifest: %v", err))
	}
	if payload.ExportVersion != transfer.ExportVersion {
		return nil, fmt.Errorf("%w: got %q, want %q", appErr.ErrVersionMismatch, payload.ExportVersion, transfer.ExportVersion)
	}
	result := transfer.ValidateImport(payload)
	if err := result.Err(); err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		summary.AddWarning(warnValidation, w)
	}
	return payload, nil
}

// importMoodDefinitions makes sure every mood named by the archive exists in
// the shared catalog.
func (s *ImportService) importMoodDefinitions(ctx context.Context, defs []transfer.MoodDefinitionDTO, summary *transfer.ImportResultSummary) error {
	if len(defs) == 0 {
		return nil
	}
	created, reused := 0, 0
	err := s.tx.InTx(ctx, func(ctx context.Context, q repo.Queryer) error {
		moods := s.stores.Moods.WithTx(q)
		seen := make(map[string]bool, len(defs))
		for _, def := range defs {
			name := strings.TrimSpace(def.Name)
			key := strings.ToLower(name)
			if name == "" || seen[key] {
				continue
			}
			seen[key] = true
			if _, err := moods.GetByName(ctx, name); err == nil {
				reused++
				continue
			} else if !errors.Is(err, appErr.ErrNotFound) {
				return err
			}
			m := &model.Mood{ID: newID(), Name: name, Category: moodCategory(def.Category), Icon: def.Icon}
			if err := moods.Create(ctx, m); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return err
	}
	summary.MoodsCreated += created
	summary.MoodsReused += reused
	return nil
}

func moodCategory(v string) model.MoodCategory {
	switch c := model.MoodCategory(strings.ToLower(strings.TrimSpace(v))); c {
	case model.MoodPositive, model.MoodNegative:
		return c
	default:
		return model.MoodNeutral
	}
}

func (s *ImportService) importJournals(ctx context.Context, userID string, units []journalUnit, mediaRoot string,
	summary *transfer.ImportResultSummary, progress *ProgressReporter, ids *idmap.Mapper) (*ImportOutcome, error) {
	logger := logutil.GetLogger(ctx)
	outcome := &ImportOutcome{Summary: summary}
	doneEntries, failedEntries := 0, 0
	defer func() {
		outcome.EntriesProcessed, outcome.EntriesFailed = doneEntries, failedEntries
	}()
	for i := range units {
		u := &units[i]
		summary.EntriesSkipped += u.entriesSkipped
		failedEntries += u.entriesSkipped
		if u.err != nil || u.dto == nil {
			outcome.JournalsFailed++
			summary.JournalsFailed++
			if u.entriesSkipped == 0 {
				outcome.emptyFailures++
			}
			progress.Advance(doneEntries, failedEntries)
			if err := progress.Checkpoint(ctx); err != nil {
				return outcome, err
			}
			continue
		}

		run := &importRun{ids: ids}
		base, baseFailed := doneEntries, failedEntries
		err := s.tx.InTx(ctx, func(ctx context.Context, q repo.Queryer) error {
			return s.importJournal(ctx, q, userID, u.dto, mediaRoot, run, func(done, failed int) {
				progress.Advance(base+done, baseFailed+failed)
			})
		})
		if err != nil {
			s.ids.InvalidateScope(tagScope(userID))
			if ctxErr := ctx.Err(); ctxErr != nil {
				return outcome, ctxErr
			}
			logger.Error("journal import rolled back", zap.String("journal", u.dto.Title), zap.Error(err))
			summary.AddWarning(transfer.WarnJournalFailed, fmt.Sprintf("Failed to import journal '%s': %v", u.dto.Title, err))
			summary.JournalsFailed++
			summary.EntriesSkipped += len(u.dto.Entries)
			outcome.JournalsFailed++
			failedEntries += len(u.dto.Entries)
			if len(u.dto.Entries)+u.entriesSkipped == 0 {
				outcome.emptyFailures++
			}
		} else {
			run.commit(summary)
			outcome.JournalsProcessed++
			doneEntries += run.counters.EntriesCreated
			failedEntries += run.counters.EntriesSkipped
		}
		progress.Advance(doneEntries, failedEntries)
		if err := progress.Checkpoint(ctx); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

func (s *ImportService) importJournal(ctx context.Context, q repo.Queryer, userID string, dto *transfer.JournalDTO,
	mediaRoot string, run *importRun, advance func(done, failed int)) error {
	st := s.stores.WithTx(q)
	now := timeutil.NowUnix()
	j := &model.Journal{
		ID:             run.allocate(transfer.EntityJournals, dto.ExternalID),
		UserID:         userID,
		Title:          strings.TrimSpace(dto.Title),
		Description:    dto.Description,
		Color:          dto.Color,
		Icon:           dto.Icon,
		IsFavorite:     dto.IsFavorite,
		IsArchived:     dto.IsArchived,
		ImportMetadata: marshalOptional(dto.ImportMetadata),
		Ctime:          unixOr(dto.CreatedAt, now),
		Mtime:          unixOr(dto.UpdatedAt, now),
	}
	if err := st.Journals.Create(ctx, j); err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	run.counters.JournalsCreated++
	run.mapID(transfer.EntityJournals, dto.ExternalID, j.ID)

	media := make([][]transfer.MediaDTO, len(dto.Entries))
	for i := range dto.Entries {
		media[i] = dto.Entries[i].Media
	}
	staged, err := s.importer.Stage(ctx, userID, mediaRoot, media)
	if err != nil {
		return err
	}

	for i := range dto.Entries {
		entryRun := &importRun{ids: run.ids}
		err := repo.Savepoint(ctx, q, entrySavepoint, func() error {
			return s.importEntry(ctx, st, userID, j.ID, &dto.Entries[i], staged[i], entryRun)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.ids.InvalidateScope(tagScope(userID))
			logutil.GetLogger(ctx).Warn("entry import failed", zap.String("journal_id", j.ID), zap.Int("index", i), zap.Error(err))
			run.warn(transfer.WarnEntryFailed, "Skipped entry due to error: %v", err)
			run.counters.EntriesSkipped++
		} else {
			run.merge(entryRun)
		}
		advance(run.counters.EntriesCreated, run.counters.EntriesSkipped)
	}
	if _, err := st.Journals.RecomputeStats(ctx, j.ID, now); err != nil {
		return fmt.Errorf("update journal stats: %w", err)
	}
	return nil
}

func (s *ImportService) importEntry(ctx context.Context, st *Stores, userID, journalID string, dto *transfer.EntryDTO,
	staged []stagedMedia, run *importRun) error {
	now := timeutil.NowUnix()
	e := &model.Entry{
		ID:             run.allocate(transfer.EntityEntries, dto.ExternalID),
		JournalID:      journalID,
		UserID:         userID,
		Title:          dto.Title,
		Content:        dto.Text(),
		EntryDatetime:  entryTimestamp(dto).Unix(),
		EntryTimezone:  dto.EntryTimezone,
		IsPinned:       dto.IsPinned,
		IsDraft:        dto.IsDraft,
		Latitude:       dto.Latitude,
		Longitude:      dto.Longitude,
		WeatherSummary: dto.WeatherSummary,
		Location:       marshalOptional(dto.Location),
		Weather:        marshalOptional(dto.Weather),
		ImportMetadata: marshalOptional(dto.ImportMetadata),
		Ctime:          unixOr(dto.CreatedAt, now),
		Mtime:          unixOr(dto.UpdatedAt, now),
	}
	if dto.Location != nil {
		if e.Latitude == nil {
			e.Latitude = dto.Location.Latitude
		}
		if e.Longitude == nil {
			e.Longitude = dto.Location.Longitude
		}
	}
	if err := e.Derive(); err != nil {
		return fmt.Errorf("derive entry: %w", err)
	}
	if err := applyDelta(e, dto, nil); err != nil {
		return err
	}
	if err := st.Entries.Create(ctx, e); err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	run.mapID(transfer.EntityEntries, dto.ExternalID, e.ID)

	if dto.MoodLog != nil {
		if err := s.importMoodLog(ctx, st, userID, e, dto.MoodLog, run); err != nil {
			return fmt.Errorf("import mood log: %w", err)
		}
	}

	placeholders, legacy, attached, err := s.attachMedia(ctx, st, userID, e.ID, staged, run)
	if err != nil {
		return err
	}
	content := e.Content
	if len(legacy) > 0 {
		content = rewriteLegacyMediaIDs(content, legacy)
	}
	if dayone.HasPlaceholders(content) {
		content = dayone.ReplacePlaceholders(content, placeholders)
	}
	if content != e.Content || attached > 0 || len(legacy) > 0 {
		e.Content = content
		e.MediaCount = attached
		e.Mtime = now
		if err := e.Derive(); err != nil {
			return fmt.Errorf("derive entry: %w", err)
		}
		if err := applyDelta(e, dto, legacy); err != nil {
			return err
		}
		if err := st.Entries.UpdateContent(ctx, e); err != nil {
			return fmt.Errorf("update entry content: %w", err)
		}
	}

	if err := s.linkTags(ctx, st, userID, e.ID, dto.Tags, run, now); err != nil {
		return fmt.Errorf("link tags: %w", err)
	}
	run.counters.EntriesCreated++
	return nil
}

// applyDelta keeps an imported structured document when it carries media
// embeds, remapping them to the new media ids. Text-only documents are
// rebuilt from content by Derive.
func applyDelta(e *model.Entry, dto *transfer.EntryDTO, legacy map[string]string) error {
	if dto.ContentDelta == nil || len(delta.MediaSources(dto.ContentDelta)) == 0 {
		return nil
	}
	doc := delta.ReplaceMediaIDs(dto.ContentDelta, legacy)
	raw, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("encode content delta: %w", err)
	}
	e.ContentDelta = string(raw)
	return nil
}

func (s *ImportService) importMoodLog(ctx context.Context, st *Stores, userID string, e *model.Entry, dto *transfer.MoodLogDTO, run *importRun) error {
	moodID, err := s.moodID(ctx, st, dto.MoodName)
	if err != nil {
		if errors.Is(err, appErr.ErrNotFound) {
			run.warn(transfer.WarnMoodMissing, "Mood not found: '%s', skipping mood log", dto.MoodName)
			return nil
		}
		return err
	}
	logged := dto.LoggedDatetimeUTC.UTC()
	if dto.LoggedDatetimeUTC.IsZero() {
		logged = time.Unix(e.EntryDatetime, 0).UTC()
	}
	tz := dto.LoggedTimezone
	if strings.TrimSpace(tz) == "" {
		tz = e.EntryTimezone
	}
	tz = timeutil.NormalizeTimezone(tz)
	now := timeutil.NowUnix()
	l := &model.MoodLog{
		ID:             newID(),
		UserID:         userID,
		EntryID:        e.ID,
		MoodID:         moodID,
		Note:           dto.Note,
		LoggedDate:     timeutil.LocalDate(logged, tz),
		LoggedDatetime: logged.Unix(),
		LoggedTimezone: tz,
		Ctime:          unixOr(dto.CreatedAt, now),
		Mtime:          unixOr(dto.UpdatedAt, now),
	}
	if err := st.Moods.CreateLog(ctx, l); err != nil {
		return err
	}
	run.counters.MoodLogsCreated++
	return nil
}

func (s *ImportService) moodID(ctx context.Context, st *Stores, name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", appErr.ErrNotFound
	}
	return s.ids.GetOrLoad(moodScope, key, func() (string, error) {
		m, err := st.Moods.GetByName(ctx, key)
		if err != nil {
			return "", err
		}
		return m.ID, nil
	})
}

// attachMedia creates the records for the staged files of one entry in DTO
// order. It returns the lookup tables used to rewrite placeholders and
// legacy references, plus the number of attached records.
func (s *ImportService) attachMedia(ctx context.Context, st *Stores, userID, entryID string, staged []stagedMedia,
	run *importRun) (map[string]string, map[string]string, int, error) {
	placeholders := make(map[string]string)
	legacy := make(map[string]string)
	attached := 0
	for i := range staged {
		sm := &staged[i]
		if sm.Skipped() {
			run.warn(sm.WarnCategory, "%s", sm.Warning)
			run.counters.MediaSkipped++
			continue
		}
		checksum := sm.Stored.Checksum
		var id string
		existing, err := st.Media.FindByEntryChecksum(ctx, entryID, checksum)
		switch {
		case err == nil:
			id = existing.ID
			run.counters.MediaDeduplicated++
		case errors.Is(err, appErr.ErrNotFound):
			rec, err := s.newMediaRecord(ctx, st, userID, entryID, sm, run)
			if err != nil {
				return nil, nil, 0, err
			}
			if err := st.Media.Create(ctx, rec); err != nil {
				return nil, nil, 0, fmt.Errorf("create media record: %w", err)
			}
			id = rec.ID
			attached++
			if sm.Stored.Deduplicated {
				run.counters.MediaDeduplicated++
			} else {
				run.counters.MediaImported++
			}
			run.mapID(transfer.EntityMedia, sm.DTO.ExternalID, id)
		default:
			return nil, nil, 0, err
		}
		if sm.SourceKey != "" {
			placeholders[sm.SourceKey] = id
		}
		if sm.DTO.ExternalID != nil && *sm.DTO.ExternalID != "" {
			placeholders[*sm.DTO.ExternalID] = id
		}
		if sm.LegacyID != "" {
			legacy[sm.LegacyID] = id
		}
	}
	return placeholders, legacy, attached, nil
}

// newMediaRecord builds the attachment row. When the file was already in the
// store the row points at it and inherits what the prior record knew.
func (s *ImportService) newMediaRecord(ctx context.Context, st *Stores, userID, entryID string, sm *stagedMedia, run *importRun) (*model.EntryMedia, error) {
	dto := sm.DTO
	now := timeutil.NowUnix()
	alt := dto.AltText
	if alt == nil || strings.TrimSpace(*alt) == "" {
		alt = dto.Caption
	}
	rec := &model.EntryMedia{
		ID:               run.allocate(transfer.EntityMedia, dto.ExternalID),
		EntryID:          entryID,
		UserID:           userID,
		MediaType:        string(sm.MediaType),
		FilePath:         sm.Stored.RelativePath,
		OriginalFilename: dto.Filename,
		FileSize:         sm.Stored.Size,
		MimeType:         sm.MimeType,
		Checksum:         sm.Stored.Checksum,
		Width:            dto.Width,
		Height:           dto.Height,
		Duration:         dto.Duration,
		AltText:          alt,
		Caption:          dto.Caption,
		FileMetadata:     dto.FileMetadata,
		UploadStatus:     model.UploadCompleted,
		ExternalProvider: dto.ExternalProvider,
		ExternalAssetID:  dto.ExternalAssetID,
		ExternalURL:      dto.ExternalURL,
		ExternalMetadata: marshalOptional(dto.ExternalMetadata),
		Ctime:            unixOr(dto.CreatedAt, now),
		Mtime:            unixOr(dto.UpdatedAt, now),
	}
	if dto.ExternalCreatedAt != nil {
		rec.ExternalCreatedAt = dto.ExternalCreatedAt.Unix()
	}
	if !sm.Stored.Deduplicated {
		return rec, nil
	}
	prior, err := st.Media.FindByUserChecksum(ctx, userID, sm.Stored.Checksum)
	if err != nil {
		if errors.Is(err, appErr.ErrNotFound) {
			return rec, nil
		}
		return nil, err
	}
	rec.FilePath = prior.FilePath
	rec.FileSize = prior.FileSize
	if rec.MimeType == "" {
		rec.MimeType = prior.MimeType
	}
	if rec.Width == nil {
		rec.Width = prior.Width
	}
	if rec.Height == nil {
		rec.Height = prior.Height
	}
	if rec.Duration == nil {
		rec.Duration = prior.Duration
	}
	if rec.FileMetadata == nil {
		rec.FileMetadata = prior.FileMetadata
	}
	if rec.ThumbnailPath == nil {
		rec.ThumbnailPath = prior.ThumbnailPath
	}
	return rec, nil
}

// linkTags normalizes names to lowercase, reusing the user's tags.
func (s *ImportService) linkTags(ctx context.Context, st *Stores, userID, entryID string, names []string, run *importRun, now int64) error {
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tagID, created, err := s.tagID(ctx, st, userID, name, now)
		if err != nil {
			return err
		}
		if created {
			run.counters.TagsCreated++
		} else {
			run.counters.TagsReused++
		}
		if err := st.Tags.LinkEntry(ctx, entryID, tagID, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *ImportService) tagID(ctx context.Context, st *Stores, userID, name string, now int64) (string, bool, error) {
	scope := tagScope(userID)
	if id, ok := s.ids.Get(scope, name); ok {
		return id, false, nil
	}
	tag, err := st.Tags.GetByName(ctx, userID, name)
	if err == nil {
		s.ids.Set(scope, name, tag.ID)
		return tag.ID, false, nil
	}
	if !errors.Is(err, appErr.ErrNotFound) {
		return "", false, err
	}
	tag = &model.Tag{ID: newID(), UserID: userID, Name: name, Ctime: now, Mtime: now}
	if err := st.Tags.Create(ctx, tag); err != nil {
		return "", false, err
	}
	s.ids.Set(scope, name, tag.ID)
	return tag.ID, true, nil
}

func tagScope(userID string) string {
	return "tags:" + userID
}

// entryTimestamp prefers the UTC instant and falls back to the local date at
// midnight in the entry's timezone.
func entryTimestamp(dto *transfer.EntryDTO) time.Time {
	if !dto.EntryDatetimeUTC.IsZero() {
		return dto.EntryDatetimeUTC.UTC()
	}
	loc, err := time.LoadLocation(timeutil.NormalizeTimezone(dto.EntryTimezone))
	if err != nil {
		loc = time.UTC
	}
	if d, err := time.ParseInLocation("2006-01-02", dto.EntryDate, loc); err == nil {
		return d.UTC()
	}
	return timeutil.NowUTC()
}

func unixOr(t time.Time, fallback int64) int64 {
	if t.IsZero() {
		return fallback
	}
	return t.Unix()
}

// marshalOptional encodes v as JSON, mapping nil values to "".
func marshalOptional(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case *transfer.Location:
		if val == nil {
			return ""
		}
	case *transfer.Weather:
		if val == nil {
			return ""
		}
	case *transfer.ImportMetadata:
		if val == nil {
			return ""
		}
	case map[string]interface{}:
		if len(val) == 0 {
			return ""
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
