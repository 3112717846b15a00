package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/journiv/internal/model"
	"github.com/xxxsen/journiv/internal/repo"
	"github.com/xxxsen/journiv/internal/testutil"
	"github.com/xxxsen/journiv/internal/transfer"
)

func TestImportOutcomeUnits(t *testing.T) {
	tests := []struct {
		name              string
		outcome           ImportOutcome
		processed, failed int
	}{
		{"entries decide", ImportOutcome{JournalsProcessed: 1, EntriesProcessed: 3, EntriesFailed: 1}, 3, 1},
		{"empty failed journal counts", ImportOutcome{JournalsProcessed: 1, JournalsFailed: 1, EntriesProcessed: 2, emptyFailures: 1}, 2, 1},
		{"no entries falls back to journals", ImportOutcome{JournalsProcessed: 2}, 2, 0},
		{"nothing at all", ImportOutcome{}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processed, failed := tt.outcome.Units()
			assert.Equal(t, tt.processed, processed)
			assert.Equal(t, tt.failed, failed)
		})
	}
}

func TestDayOneImportSettlesOnEntries(t *testing.T) {
	h := newHarness(t)
	user := testutil.CreateUser(t, h.conn)

	mixed := writeZip(t, map[string][]byte{
		"Journal.json": dayOneManifest(t,
			map[string]interface{}{"uuid": "OK1", "creationDate": "2024-05-01T12:00:00Z", "text": "kept"},
			map[string]interface{}{"uuid": "BAD1", "text": "no date"},
		),
	})
	job, summary := h.runImport(t, user.ID, model.ImportSourceDayOne, h.upload(t, mixed))
	require.Equal(t, model.JobPartial, job.Status, "errors: %v", job.Errors)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 1, summary.EntriesCreated)
	assert.Equal(t, 1, summary.EntriesSkipped)
	assert.Equal(t, 0, summary.JournalsFailed)
	assert.Equal(t, 1, summary.WarningCategories[transfer.WarnEntryFailed])

	undated := writeZip(t, map[string][]byte{
		"Journal.json": dayOneManifest(t,
			map[string]interface{}{"uuid": "BAD1", "text": "no date"},
			map[string]interface{}{"uuid": "BAD2", "creationDate": " ", "text": "blank date"},
		),
	})
	job, summary = h.runImport(t, user.ID, model.ImportSourceDayOne, h.upload(t, undated))
	assert.Equal(t, model.JobFailed, job.Status)
	assert.Equal(t, 0, summary.EntriesCreated)
	assert.Equal(t, 2, summary.EntriesSkipped)
}

func TestImportMapsRepeatedExternalIDsToDistinctRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.conn)

	zipPath := writeZip(t, map[string][]byte{
		"Journal.json": dayOneManifest(t,
			map[string]interface{}{"uuid": "DUP", "creationDate": "2024-05-01T12:00:00Z", "text": "first"},
			map[string]interface{}{"uuid": "DUP", "creationDate": "2024-05-02T12:00:00Z", "text": "second"},
		),
	})
	job, summary := h.runImport(t, user.ID, model.ImportSourceDayOne, h.upload(t, zipPath))
	require.Equal(t, model.JobCompleted, job.Status, "errors: %v", job.Errors)
	assert.Equal(t, 2, summary.EntriesCreated)

	journals, err := h.stores.Journals.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, journals, 1)
	entries, err := h.stores.Entries.ListByJournal(ctx, journals[0].ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)

	firstAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Unix()
	var firstID string
	for _, e := range entries {
		if e.EntryDatetime == firstAt {
			firstID = e.ID
		}
	}
	require.NotEmpty(t, firstID)
	assert.Equal(t, map[string]string{"DUP": firstID}, summary.IDMappings[transfer.EntityEntries])
}

func TestHandleFailsJobThatPanics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.conn)
	jobs := NewJobService(repo.NewImportJobRepo(h.conn), repo.NewExportJobRepo(h.conn), nil, nil, h.uploads, 1, 0)

	importJob, err := jobs.CreateImportJob(ctx, user.ID, model.ImportSourceJourniv, h.upload(t, writeZip(t, map[string][]byte{"data.json": []byte("{}")})))
	require.NoError(t, err)
	var handleErr error
	require.NotPanics(t, func() { handleErr = jobs.Handle(ctx, JobKindImport, importJob.ID) })
	require.Error(t, handleErr)
	gotImport, err := jobs.GetImportJob(ctx, user.ID, importJob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, gotImport.Status)
	assert.Equal(t, []string{internalFailure}, gotImport.Errors)
	assert.NotZero(t, gotImport.CompletedAt)

	exportJob, err := jobs.CreateExportJob(ctx, user.ID, model.ExportFull, nil, false)
	require.NoError(t, err)
	require.NotPanics(t, func() { handleErr = jobs.Handle(ctx, JobKindExport, exportJob.ID) })
	require.Error(t, handleErr)
	gotExport, err := jobs.GetExportJob(ctx, user.ID, exportJob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, gotExport.Status)
	assert.Equal(t, []string{internalFailure}, gotExport.Errors)
}

func TestExportFailsOnInvalidPayloadWithoutArchive(t *testing.T) {
	h := newHarness(t)
	user := testutil.CreateUser(t, h.conn)
	seed := h.seedJournal(t, user.ID)
	_, err := h.conn.Exec("UPDATE entries SET latitude = 91 WHERE id = ?", seed.entry.ID)
	require.NoError(t, err)

	job := h.runExport(t, user.ID)
	require.Equal(t, model.JobFailed, job.Status)
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Errors[0], "Invalid latitude (must be -90 to 90)")
	assert.Empty(t, job.FilePath)

	files, err := os.ReadDir(h.exports.ExportDir())
	if !os.IsNotExist(err) {
		require.NoError(t, err)
	}
	assert.Empty(t, files)
}

func TestExportsInTheSameSecondGetDistinctArchives(t *testing.T) {
	h := newHarness(t)
	user := testutil.CreateUser(t, h.conn)
	h.seedJournal(t, user.ID)
	fixed := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)
	h.exports.now = func() time.Time { return fixed }

	first := h.runExport(t, user.ID)
	second := h.runExport(t, user.ID)
	require.Equal(t, model.JobCompleted, first.Status, "errors: %v", first.Errors)
	require.Equal(t, model.JobCompleted, second.Status, "errors: %v", second.Errors)
	assert.NotEqual(t, first.FilePath, second.FilePath)
	assert.FileExists(t, first.FilePath)
	assert.FileExists(t, second.FilePath)
	assert.Equal(t, ExportFileName(user.ID, first.ID, fixed), filepath.Base(first.FilePath))

	assert.NotEqual(t, ExportFileName(user.ID, "a", fixed), ExportFileName(user.ID, "b", fixed))
}
