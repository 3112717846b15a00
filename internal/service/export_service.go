package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/journiv/internal/archive"
	"github.com/xxxsen/journiv/internal/delta"
	"github.com/xxxsen/journiv/internal/filestore"
	"github.com/xxxsen/journiv/internal/mediastore"
	"github.com/xxxsen/journiv/internal/model"
	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
	"github.com/xxxsen/journiv/internal/pkg/mediautil"
	"github.com/xxxsen/journiv/internal/transfer"
)

const exportFilePrefix = "journiv_export_"

type ExportRequest struct {
	// JobID tags the archive name; an empty id gets a random tag.
	JobID        string
	UserID       string
	Type         model.ExportType
	JournalIDs   []string
	IncludeMedia bool
}

type ExportResult struct {
	FilePath string
	FileSize int64
	Stats    transfer.ExportStats
	Warnings []string
}

type ExportService struct {
	stores     *Stores
	engine     *mediastore.Engine
	exportDir  string
	mirror     filestore.Store
	appVersion string
	now        func() time.Time
}

// NewExportService builds the exporter. mirror may be nil.
func NewExportService(stores *Stores, engine *mediastore.Engine, exportDir string, mirror filestore.Store, appVersion string) *ExportService {
	return &ExportService{
		stores:     stores,
		engine:     engine,
		exportDir:  exportDir,
		mirror:     mirror,
		appVersion: appVersion,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *ExportService) ExportDir() string {
	return s.exportDir
}

func (s *ExportService) Export(ctx context.Context, req ExportRequest, progress *ProgressReporter) (*ExportResult, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", req.UserID), zap.String("export_type", string(req.Type)))
	if err := progress.Milestone(ctx, transfer.ExportBuildingData); err != nil {
		return nil, err
	}
	progress.Band(transfer.ExportBuildingData, transfer.ExportCreatingZip)
	payload, media, warnings, err := s.Build(ctx, req, progress)
	if err != nil {
		return nil, err
	}
	if err := progress.Milestone(ctx, transfer.ExportCreatingZip); err != nil {
		return nil, err
	}
	path, size, err := s.Package(ctx, req.UserID, req.JobID, payload, media)
	if err != nil {
		return nil, err
	}
	if err := progress.Milestone(ctx, transfer.ExportFinalizing); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	if err := s.mirrorArchive(ctx, path, size); err != nil {
		logger.Error("mirror export archive failed", zap.String("file", path), zap.Error(err))
		warnings = append(warnings, "Export archive could not be mirrored")
	}
	logger.Info("export finished", zap.String("file", path), zap.Int64("size", size),
		zap.Int("journals", payload.Stats.JournalCount), zap.Int("entries", payload.Stats.EntryCount),
		zap.Int("media", payload.Stats.MediaCount))
	return &ExportResult{FilePath: path, FileSize: size, Stats: *payload.Stats, Warnings: warnings}, nil
}

// Build assembles the manifest and the media files to package, keyed by
// their path below the archive media directory.
func (s *ExportService) Build(ctx context.Context, req ExportRequest, progress *ProgressReporter) (*transfer.ExportPayload, map[string]string, []string, error) {
	user, err := s.stores.Users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load user: %w", err)
	}
	journals, err := s.selectJournals(ctx, req)
	if err != nil {
		return nil, nil, nil, err
	}
	entries := make([][]*model.Entry, len(journals))
	total := 0
	for i, j := range journals {
		list, err := s.stores.Entries.ListByJournal(ctx, j.ID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("list entries: %w", err)
		}
		entries[i] = list
		total += len(list)
	}
	progress.SetTotal(total)

	moods, err := s.stores.Moods.List(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list moods: %w", err)
	}
	moodNames := make(map[string]string, len(moods))
	defs := make([]transfer.MoodDefinitionDTO, 0, len(moods))
	for _, m := range moods {
		moodNames[m.ID] = m.Name
		defs = append(defs, transfer.MoodDefinitionDTO{Name: m.Name, Category: string(m.Category), Icon: m.Icon})
	}

	payload := &transfer.ExportPayload{
		ExportVersion:   transfer.ExportVersion,
		ExportDate:      s.now(),
		AppVersion:      s.appVersion,
		UserEmail:       user.Email,
		UserName:        displayName(user),
		UserSettings:    &transfer.UserSettingsDTO{TimeZone: user.TimeZone},
		Journals:        make([]transfer.JournalDTO, 0, len(journals)),
		MoodDefinitions: defs,
	}
	media := make(map[string]string)
	var warnings []string
	stats := &transfer.ExportStats{}
	done := 0
	for i, j := range journals {
		jd := journalDTO(j)
		jd.Entries = make([]transfer.EntryDTO, 0, len(entries[i]))
		for _, e := range entries[i] {
			ed, err := s.entryDTO(ctx, e, moodNames, req.IncludeMedia, media, &warnings)
			if err != nil {
				return nil, nil, nil, err
			}
			jd.Entries = append(jd.Entries, *ed)
			stats.EntryCount++
			stats.MediaCount += len(ed.Media)
			stats.TotalWords += e.WordCount
			at := ed.EntryDatetimeUTC
			if stats.FirstEntryAt == nil || at.Before(*stats.FirstEntryAt) {
				stats.FirstEntryAt = &at
			}
			if stats.LatestEntryAt == nil || at.After(*stats.LatestEntryAt) {
				stats.LatestEntryAt = &at
			}
			done++
			progress.Advance(done, 0)
			if err := progress.Checkpoint(ctx); err != nil {
				return nil, nil, nil, err
			}
		}
		jd.EntryCount = len(jd.Entries)
		payload.Journals = append(payload.Journals, jd)
		stats.JournalCount++
	}
	payload.Stats = stats

	result := transfer.ValidateExport(payload)
	if err := result.Err(); err != nil {
		return nil, nil, nil, err
	}
	warnings = append(warnings, result.Warnings...)
	return payload, media, warnings, nil
}

func (s *ExportService) selectJournals(ctx context.Context, req ExportRequest) ([]*model.Journal, error) {
	switch req.Type {
	case model.ExportFull:
		return s.stores.Journals.ListByUser(ctx, req.UserID)
	case model.ExportJournal:
		if len(req.JournalIDs) == 0 {
			return nil, appErr.NewValidationError("Journal export requires at least one journal id")
		}
		journals, err := s.stores.Journals.ListByIDs(ctx, req.UserID, req.JournalIDs)
		if err != nil {
			return nil, err
		}
		if len(journals) == 0 {
			return nil, fmt.Errorf("no exportable journal: %w", appErr.ErrNotFound)
		}
		return journals, nil
	default:
		return nil, fmt.Errorf("unknown export type %q: %w", req.Type, appErr.ErrInvalid)
	}
}

func (s *ExportService) entryDTO(ctx context.Context, e *model.Entry, moodNames map[string]string, includeMedia bool,
	files map[string]string, warnings *[]string) (*transfer.EntryDTO, error) {
	content := e.Content
	plain := e.PlainText
	dto := &transfer.EntryDTO{
		Title:            e.Title,
		Content:          &content,
		ContentPlainText: &plain,
		EntryDate:        e.EntryDate,
		EntryDatetimeUTC: time.Unix(e.EntryDatetime, 0).UTC(),
		EntryTimezone:    e.EntryTimezone,
		WordCount:        e.WordCount,
		IsPinned:         e.IsPinned,
		IsDraft:          e.IsDraft,
		Latitude:         e.Latitude,
		Longitude:        e.Longitude,
		WeatherSummary:   e.WeatherSummary,
		CreatedAt:        time.Unix(e.Ctime, 0).UTC(),
		UpdatedAt:        time.Unix(e.Mtime, 0).UTC(),
		ExternalID:       stringPtr(e.ID),
	}
	if e.ContentDelta != "" {
		doc, err := delta.Parse([]byte(e.ContentDelta))
		if err != nil {
			logutil.GetLogger(ctx).Warn("stored content delta unreadable", zap.String("entry_id", e.ID), zap.Error(err))
		} else {
			dto.ContentDelta = doc
		}
	}
	decodeOptional(ctx, e.ID, e.Location, &dto.Location)
	decodeOptional(ctx, e.ID, e.Weather, &dto.Weather)
	decodeOptional(ctx, e.ID, e.ImportMetadata, &dto.ImportMetadata)

	tags, err := s.stores.Tags.NamesByEntry(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	dto.Tags = tags

	mood, err := s.stores.Moods.GetLogByEntry(ctx, e.ID)
	switch {
	case err == nil:
		if name, ok := moodNames[mood.MoodID]; ok {
			dto.MoodLog = &transfer.MoodLogDTO{
				MoodName:          name,
				Note:              mood.Note,
				LoggedDate:        mood.LoggedDate,
				LoggedDatetimeUTC: time.Unix(mood.LoggedDatetime, 0).UTC(),
				LoggedTimezone:    mood.LoggedTimezone,
				CreatedAt:         time.Unix(mood.Ctime, 0).UTC(),
				UpdatedAt:         time.Unix(mood.Mtime, 0).UTC(),
			}
		}
	case errors.Is(err, appErr.ErrNotFound):
	default:
		return nil, fmt.Errorf("load mood log: %w", err)
	}

	records, err := s.stores.Media.ListByEntry(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	dto.Media = make([]transfer.MediaDTO, 0, len(records))
	for _, m := range records {
		md := mediaDTO(m)
		if includeMedia {
			archivePath := e.ID + "/" + m.ID + "_" + mediautil.SanitizeFilename(m.OriginalFilename)
			if full, err := s.engine.FullPath(m.FilePath); err == nil && s.engine.Exists(m.FilePath) {
				files[archivePath] = full
				md.FilePath = &archivePath
			} else {
				*warnings = append(*warnings, fmt.Sprintf("Media file missing, exported without file: %s", m.OriginalFilename))
			}
		}
		dto.Media = append(dto.Media, md)
	}
	return dto, nil
}

// Package writes the archive into the export directory.
func (s *ExportService) Package(ctx context.Context, userID, tag string, payload *transfer.ExportPayload, media map[string]string) (string, int64, error) {
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create export dir: %w", err)
	}
	if tag == "" {
		tag = newID()
	}
	name := ExportFileName(userID, tag, s.now())
	dst := filepath.Join(s.exportDir, name)
	size, err := archive.Create(ctx, dst, payload, media)
	if err != nil {
		return "", 0, err
	}
	return dst, size, nil
}

func (s *ExportService) mirrorArchive(ctx context.Context, path string, size int64) error {
	if s.mirror == nil {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.mirror.Save(ctx, filepath.Base(path), f, size)
}

// RemoveArchive deletes an export file, refusing paths outside the export
// directory.
func (s *ExportService) RemoveArchive(path string) error {
	if path == "" {
		return nil
	}
	if !s.owns(path) {
		return fmt.Errorf("export file outside export dir: %w", appErr.ErrForbidden)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// OpenArchive opens a finished export for download.
func (s *ExportService) OpenArchive(path string) (*os.File, error) {
	if !s.owns(path) {
		return nil, appErr.ErrNotFound
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *ExportService) owns(path string) bool {
	rel, err := filepath.Rel(filepath.Clean(s.exportDir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return strings.HasPrefix(filepath.Base(path), exportFilePrefix) && rel == filepath.Base(path)
}

// ExportFileName is journiv_export_{user}_{YYYYmmdd_HHMMSS}_{tag}.zip. The
// tag keeps archives of the same user apart within one second.
func ExportFileName(userID, tag string, at time.Time) string {
	return exportFilePrefix + mediautil.SanitizeFilename(userID) + "_" + at.UTC().Format("20060102_150405") +
		"_" + mediautil.SanitizeFilename(tag) + ".zip"
}

func displayName(u *model.User) *string {
	if u.Name != nil && strings.TrimSpace(*u.Name) != "" {
		return u.Name
	}
	local, _, _ := strings.Cut(u.Email, "@")
	if local == "" {
		return nil
	}
	return &local
}

func journalDTO(j *model.Journal) transfer.JournalDTO {
	dto := transfer.JournalDTO{
		Title:       j.Title,
		Description: j.Description,
		Color:       j.Color,
		Icon:        j.Icon,
		IsFavorite:  j.IsFavorite,
		IsArchived:  j.IsArchived,
		EntryCount:  j.EntryCount,
		CreatedAt:   time.Unix(j.Ctime, 0).UTC(),
		UpdatedAt:   time.Unix(j.Mtime, 0).UTC(),
		ExternalID:  stringPtr(j.ID),
	}
	if j.LastEntryAt > 0 {
		last := time.Unix(j.LastEntryAt, 0).UTC()
		dto.LastEntryAt = &last
	}
	if j.ImportMetadata != "" {
		meta := &transfer.ImportMetadata{}
		if err := json.Unmarshal([]byte(j.ImportMetadata), meta); err == nil {
			dto.ImportMetadata = meta
		}
	}
	return dto
}

func mediaDTO(m *model.EntryMedia) transfer.MediaDTO {
	checksum := m.Checksum
	dto := transfer.MediaDTO{
		Filename:         m.OriginalFilename,
		MediaType:        m.MediaType,
		FileSize:         m.FileSize,
		MimeType:         m.MimeType,
		Width:            m.Width,
		Height:           m.Height,
		Duration:         m.Duration,
		AltText:          m.AltText,
		Caption:          m.AltText,
		FileMetadata:     m.FileMetadata,
		ThumbnailPath:    m.ThumbnailPath,
		UploadStatus:     string(m.UploadStatus),
		ExternalProvider: m.ExternalProvider,
		ExternalAssetID:  m.ExternalAssetID,
		ExternalURL:      m.ExternalURL,
		CreatedAt:        time.Unix(m.Ctime, 0).UTC(),
		UpdatedAt:        time.Unix(m.Mtime, 0).UTC(),
		ExternalID:       stringPtr(m.ID),
	}
	if dto.Filename == "" {
		dto.Filename = filepath.Base(m.FilePath)
	}
	if checksum != "" {
		dto.Checksum = &checksum
	}
	if m.ExternalCreatedAt > 0 {
		at := time.Unix(m.ExternalCreatedAt, 0).UTC()
		dto.ExternalCreatedAt = &at
	}
	if m.ExternalMetadata != "" {
		meta := map[string]interface{}{}
		if err := json.Unmarshal([]byte(m.ExternalMetadata), &meta); err == nil {
			dto.ExternalMetadata = meta
		}
	}
	return dto
}

// decodeOptional fills dst from a stored JSON column, leaving it nil when the
// column is empty or unreadable.
func decodeOptional[T any](ctx context.Context, entryID, raw string, dst **T) {
	if raw == "" {
		return
	}
	v := new(T)
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		logutil.GetLogger(ctx).Warn("stored json column unreadable", zap.String("entry_id", entryID), zap.Error(err))
		return
	}
	*dst = v
}

func stringPtr(s string) *string {
	return &s
}
