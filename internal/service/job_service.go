package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/journiv/internal/model"
	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
	"github.com/xxxsen/journiv/internal/pkg/timeutil"
	"github.com/xxxsen/journiv/internal/repo"
)

const (
	JobKindImport = "import"
	JobKindExport = "export"
)

const internalFailure = "Internal error"

// Submitter queues a job id for execution.
type Submitter interface {
	Submit(kind, jobID string) error
}

type JobService struct {
	importJobs *repo.ImportJobRepo
	exportJobs *repo.ExportJobRepo
	imports    *ImportService
	exports    *ExportService
	uploads    *UploadService
	submitter  Submitter

	progressItems    int
	progressInterval time.Duration
}

func NewJobService(importJobs *repo.ImportJobRepo, exportJobs *repo.ExportJobRepo, imports *ImportService, exports *ExportService,
	uploads *UploadService, progressItems int, progressInterval time.Duration) *JobService {
	return &JobService{
		importJobs:       importJobs,
		exportJobs:       exportJobs,
		imports:          imports,
		exports:          exports,
		uploads:          uploads,
		progressItems:    progressItems,
		progressInterval: progressInterval,
	}
}

// SetSubmitter wires the queue. Without one, jobs are created but only run
// when Handle is called directly.
func (s *JobService) SetSubmitter(sub Submitter) {
	s.submitter = sub
}

func (s *JobService) CreateImportJob(ctx context.Context, userID string, source model.ImportSource, archivePath string) (*model.ImportJob, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("%w: %s", appErr.ErrUnsupportedSource, source)
	}
	if archivePath == "" {
		return nil, appErr.ErrInvalid
	}
	now := timeutil.NowUnix()
	job := &model.ImportJob{
		Job:        model.Job{ID: newID(), UserID: userID, Status: model.JobPending, Ctime: now, Mtime: now},
		SourceType: source,
		FilePath:   archivePath,
	}
	if err := s.importJobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.submit(ctx, JobKindImport, job.ID); err != nil {
		job.MarkFailed("Import could not be queued", timeutil.NowUnix())
		_ = s.importJobs.Update(ctx, job)
		return nil, err
	}
	return job, nil
}

func (s *JobService) CreateExportJob(ctx context.Context, userID string, exportType model.ExportType, journalIDs []string, includeMedia bool) (*model.ExportJob, error) {
	if !exportType.Valid() {
		return nil, fmt.Errorf("unknown export type %q: %w", exportType, appErr.ErrInvalid)
	}
	if exportType == model.ExportJournal && len(journalIDs) == 0 {
		return nil, appErr.NewValidationError("Journal export requires at least one journal id")
	}
	now := timeutil.NowUnix()
	job := &model.ExportJob{
		Job:          model.Job{ID: newID(), UserID: userID, Status: model.JobPending, Ctime: now, Mtime: now},
		ExportType:   exportType,
		JournalIDs:   journalIDs,
		IncludeMedia: includeMedia,
	}
	if err := s.exportJobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.submit(ctx, JobKindExport, job.ID); err != nil {
		job.MarkFailed("Export could not be queued", timeutil.NowUnix())
		_ = s.exportJobs.Update(ctx, job)
		return nil, err
	}
	return job, nil
}

func (s *JobService) submit(ctx context.Context, kind, jobID string) error {
	if s.submitter == nil {
		return nil
	}
	if err := s.submitter.Submit(kind, jobID); err != nil {
		logutil.GetLogger(ctx).Error("submit job failed", zap.String("kind", kind), zap.String("job_id", jobID), zap.Error(err))
		return err
	}
	return nil
}

func (s *JobService) GetImportJob(ctx context.Context, userID, jobID string) (*model.ImportJob, error) {
	return s.importJobs.Get(ctx, userID, jobID)
}

func (s *JobService) GetExportJob(ctx context.Context, userID, jobID string) (*model.ExportJob, error) {
	return s.exportJobs.Get(ctx, userID, jobID)
}

func (s *JobService) ListImportJobs(ctx context.Context, userID string, limit uint) ([]*model.ImportJob, error) {
	return s.importJobs.ListByUser(ctx, userID, limit)
}

func (s *JobService) ListExportJobs(ctx context.Context, userID string, limit uint) ([]*model.ExportJob, error) {
	return s.exportJobs.ListByUser(ctx, userID, limit)
}

// CancelImportJob moves a pending or running job to cancelled. The running
// import notices at its next checkpoint.
func (s *JobService) CancelImportJob(ctx context.Context, userID, jobID string) (*model.ImportJob, error) {
	if _, err := s.importJobs.Get(ctx, userID, jobID); err != nil {
		return nil, err
	}
	if err := cancelJob(ctx, userID, jobID, s.importJobs.UpdateStatusIf); err != nil {
		return nil, err
	}
	return s.importJobs.Get(ctx, userID, jobID)
}

func (s *JobService) CancelExportJob(ctx context.Context, userID, jobID string) (*model.ExportJob, error) {
	if _, err := s.exportJobs.Get(ctx, userID, jobID); err != nil {
		return nil, err
	}
	if err := cancelJob(ctx, userID, jobID, s.exportJobs.UpdateStatusIf); err != nil {
		return nil, err
	}
	return s.exportJobs.Get(ctx, userID, jobID)
}

type statusSwitch func(ctx context.Context, userID, jobID string, from, to model.JobStatus, mtime int64) (bool, error)

func cancelJob(ctx context.Context, userID, jobID string, update statusSwitch) error {
	now := timeutil.NowUnix()
	for _, from := range []model.JobStatus{model.JobPending, model.JobRunning} {
		ok, err := update(ctx, userID, jobID, from, model.JobCancelled, now)
		if err != nil {
			return err
		}
		if ok {
			logutil.GetLogger(ctx).Info("job cancelled", zap.String("job_id", jobID), zap.String("from", string(from)))
			return nil
		}
	}
	return appErr.ErrJobTerminal
}

// Handle runs one queued job. It is the dispatcher's handler. A run that
// panics leaves its job failed instead of running.
func (s *JobService) Handle(ctx context.Context, kind, jobID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logutil.GetLogger(ctx).Error("job panicked", zap.String("kind", kind), zap.String("job_id", jobID),
				zap.Any("panic", r), zap.Stack("stack"))
			s.failAbandoned(ctx, kind, jobID)
			err = fmt.Errorf("job %s panicked: %v", jobID, r)
		}
	}()
	switch kind {
	case JobKindImport:
		return s.RunImportJob(ctx, jobID)
	case JobKindExport:
		return s.RunExportJob(ctx, jobID)
	default:
		return fmt.Errorf("unknown job kind %q: %w", kind, appErr.ErrInvalid)
	}
}

// failAbandoned settles a job whose run died before it could. Jobs that
// already reached a terminal state are left alone.
func (s *JobService) failAbandoned(ctx context.Context, kind, jobID string) {
	ctx = context.WithoutCancel(ctx)
	now := timeutil.NowUnix()
	var err error
	switch kind {
	case JobKindImport:
		var job *model.ImportJob
		if job, err = s.importJobs.GetByID(ctx, jobID); err == nil && !job.IsTerminal() {
			job.MarkFailed(internalFailure, now)
			err = s.importJobs.Update(ctx, job)
		}
	case JobKindExport:
		var job *model.ExportJob
		if job, err = s.exportJobs.GetByID(ctx, jobID); err == nil && !job.IsTerminal() {
			job.MarkFailed(internalFailure, now)
			err = s.exportJobs.Update(ctx, job)
		}
	}
	if err != nil && !errors.Is(err, appErr.ErrJobTerminal) {
		logutil.GetLogger(ctx).Error("mark abandoned job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *JobService) RunImportJob(ctx context.Context, jobID string) error {
	job, err := s.importJobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("job_id", job.ID), zap.String("user_id", job.UserID),
		zap.String("source", string(job.SourceType)))
	if !job.MarkRunning(timeutil.NowUnix()) {
		logger.Info("import job already finished, skip", zap.String("status", string(job.Status)))
		return nil
	}
	if err := s.importJobs.Update(ctx, job); err != nil {
		if errors.Is(err, appErr.ErrJobTerminal) {
			logger.Info("import job cancelled before start")
			return nil
		}
		return err
	}
	defer func() {
		_ = s.uploads.Cleanup(context.WithoutCancel(ctx), job.FilePath)
	}()
	logger.Info("import job started")

	reporter := NewProgressReporter(s.progressSink(func(ctx context.Context, p Progress) error {
		now := timeutil.NowUnix()
		job.Track(p.Processed, p.Total, p.Failed, now)
		job.SetProgress(p.Percent, now)
		return s.importJobs.Update(ctx, job)
	}), s.progressItems, s.progressInterval)
	outcome, runErr := s.imports.Import(ctx, ImportRequest{UserID: job.UserID, Source: job.SourceType, ArchivePath: job.FilePath}, reporter)

	now := timeutil.NowUnix()
	switch {
	case errors.Is(runErr, appErr.ErrJobCancelled):
		logger.Info("import job cancelled")
		return nil
	case runErr != nil:
		logger.Error("import job failed", zap.Error(runErr))
		job.MarkFailed(failureMessage(ctx, runErr), now)
	default:
		summary := outcome.Summary
		for _, w := range summary.Warnings {
			job.AddWarning(w)
		}
		result, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("encode import summary: %w", err)
		}
		snap := reporter.Snapshot()
		job.Track(snap.Processed, snap.Total, snap.Failed, now)
		processed, failed := outcome.Units()
		job.Finalize(processed, failed, result, now)
		logger.Info("import job finished", zap.String("status", string(job.Status)),
			zap.Int("journals", outcome.JournalsProcessed), zap.Int("journals_failed", outcome.JournalsFailed),
			zap.Int("entries", outcome.EntriesProcessed), zap.Int("entries_failed", outcome.EntriesFailed))
	}
	err = s.persistFinal(ctx, job.ID, func(ctx context.Context) error { return s.importJobs.Update(ctx, job) })
	if errors.Is(err, appErr.ErrJobTerminal) {
		return nil
	}
	return err
}

func (s *JobService) RunExportJob(ctx context.Context, jobID string) error {
	job, err := s.exportJobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("job_id", job.ID), zap.String("user_id", job.UserID),
		zap.String("export_type", string(job.ExportType)))
	if !job.MarkRunning(timeutil.NowUnix()) {
		logger.Info("export job already finished, skip", zap.String("status", string(job.Status)))
		return nil
	}
	if err := s.exportJobs.Update(ctx, job); err != nil {
		if errors.Is(err, appErr.ErrJobTerminal) {
			logger.Info("export job cancelled before start")
			return nil
		}
		return err
	}
	logger.Info("export job started")

	reporter := NewProgressReporter(s.progressSink(func(ctx context.Context, p Progress) error {
		now := timeutil.NowUnix()
		job.Track(p.Processed, p.Total, p.Failed, now)
		job.SetProgress(p.Percent, now)
		return s.exportJobs.Update(ctx, job)
	}), s.progressItems, s.progressInterval)
	res, runErr := s.exports.Export(ctx, ExportRequest{
		JobID:        job.ID,
		UserID:       job.UserID,
		Type:         job.ExportType,
		JournalIDs:   job.JournalIDs,
		IncludeMedia: job.IncludeMedia,
	}, reporter)

	now := timeutil.NowUnix()
	switch {
	case errors.Is(runErr, appErr.ErrJobCancelled):
		logger.Info("export job cancelled")
		return nil
	case runErr != nil:
		logger.Error("export job failed", zap.Error(runErr))
		job.MarkFailed(failureMessage(ctx, runErr), now)
	default:
		for _, w := range res.Warnings {
			job.AddWarning(w)
		}
		result, err := json.Marshal(res.Stats)
		if err != nil {
			return fmt.Errorf("encode export stats: %w", err)
		}
		job.FilePath = res.FilePath
		job.FileSize = res.FileSize
		job.Track(res.Stats.EntryCount, res.Stats.EntryCount, 0, now)
		job.MarkCompleted(result, now)
		logger.Info("export job finished", zap.String("file", res.FilePath), zap.Int64("size", res.FileSize))
	}
	err = s.persistFinal(ctx, job.ID, func(ctx context.Context) error { return s.exportJobs.Update(ctx, job) })
	if errors.Is(err, appErr.ErrJobTerminal) {
		if res != nil {
			// cancelled while packaging; the archive has no owner
			_ = s.exports.RemoveArchive(res.FilePath)
		}
		return nil
	}
	return err
}

// progressSink maps a terminal row, which only a cancel can produce while
// the run is live, to ErrJobCancelled. Other persistence errors are logged
// and the run continues.
func (s *JobService) progressSink(update ProgressSink) ProgressSink {
	return func(ctx context.Context, p Progress) error {
		err := update(ctx, p)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, appErr.ErrJobTerminal):
			return appErr.ErrJobCancelled
		default:
			logutil.GetLogger(ctx).Warn("persist job progress failed", zap.Int("progress", p.Percent), zap.Error(err))
			return nil
		}
	}
}

func (s *JobService) persistFinal(ctx context.Context, jobID string, update func(ctx context.Context) error) error {
	logger := logutil.GetLogger(ctx).With(zap.String("job_id", jobID))
	err := update(context.WithoutCancel(ctx))
	if errors.Is(err, appErr.ErrJobTerminal) {
		logger.Info("job cancelled before its result was stored")
		return err
	}
	if err != nil {
		logger.Error("persist job result failed", zap.Error(err))
	}
	return err
}

// failureMessage is the user-facing reason of a failed run. Archive
// violations stay generic; the concrete reason is only logged.
func failureMessage(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, appErr.ErrInvalidArchive):
		return "Invalid import file"
	case errors.Is(err, appErr.ErrVersionMismatch), errors.Is(err, appErr.ErrValidation):
		return err.Error()
	case errors.Is(err, appErr.ErrFileTooLarge):
		return "File too large"
	case errors.Is(err, appErr.ErrNotFound):
		return "Requested data not found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return "Job interrupted"
	default:
		return err.Error()
	}
}

// ExportArchive opens the archive of a completed export owned by userID.
func (s *JobService) ExportArchive(ctx context.Context, userID, jobID string) (*model.ExportJob, *os.File, error) {
	job, err := s.exportJobs.Get(ctx, userID, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != model.JobCompleted || job.FilePath == "" {
		return nil, nil, fmt.Errorf("export is %s: %w", job.Status, appErr.ErrConflict)
	}
	f, err := s.exports.OpenArchive(job.FilePath)
	if err != nil {
		return nil, nil, err
	}
	return job, f, nil
}
