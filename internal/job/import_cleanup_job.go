package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xxxsen/journiv/internal/repo"
	"github.com/xxxsen/journiv/internal/service"
)

// ImportCleanupJob removes leftover uploads and extraction directories and
// forgets finished import jobs older than maxAge.
type ImportCleanupJob struct {
	jobRepo *repo.ImportJobRepo
	uploads *service.UploadService
	maxAge  time.Duration
	now     func() time.Time
}

func NewImportCleanupJob(jobRepo *repo.ImportJobRepo, uploads *service.UploadService, maxAge time.Duration) *ImportCleanupJob {
	return &ImportCleanupJob{jobRepo: jobRepo, uploads: uploads, maxAge: maxAge, now: time.Now}
}

func (j *ImportCleanupJob) Name() string {
	return "import_cleanup"
}

func (j *ImportCleanupJob) Run(ctx context.Context) error {
	if j.jobRepo == nil || j.uploads == nil {
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	now := j.now()
	cutoff := now.Add(-maxAge).Unix()

	var err error
	stale, listErr := j.jobRepo.ListStale(ctx, cutoff)
	err = multierr.Append(err, listErr)
	for _, job := range stale {
		if job.FilePath == "" {
			continue
		}
		err = multierr.Append(err, j.uploads.Cleanup(ctx, job.FilePath))
	}
	removed, staleErr := j.uploads.CleanupStale(ctx, maxAge, now)
	err = multierr.Append(err, staleErr)
	deleted, delErr := j.jobRepo.DeleteBefore(ctx, cutoff)
	err = multierr.Append(err, delErr)
	logutil.GetLogger(ctx).Info("import cleanup done",
		zap.Int("files", removed), zap.Int64("jobs", deleted))
	return err
}
