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

// ExportCleanupJob enforces the export retention window. Archive files go
// first; a job row is only dropped once its file is gone.
type ExportCleanupJob struct {
	jobRepo   *repo.ExportJobRepo
	exports   *service.ExportService
	retention time.Duration
	now       func() time.Time
}

func NewExportCleanupJob(jobRepo *repo.ExportJobRepo, exports *service.ExportService, retention time.Duration) *ExportCleanupJob {
	return &ExportCleanupJob{jobRepo: jobRepo, exports: exports, retention: retention, now: time.Now}
}

func (j *ExportCleanupJob) Name() string {
	return "export_cleanup"
}

func (j *ExportCleanupJob) Run(ctx context.Context) error {
	if j.jobRepo == nil || j.exports == nil {
		return nil
	}
	retention := j.retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	cutoff := j.now().Add(-retention).Unix()
	jobs, err := j.jobRepo.ListExpired(ctx, cutoff)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	removed := 0
	for _, job := range jobs {
		if rmErr := j.exports.RemoveArchive(job.FilePath); rmErr != nil {
			logger.Error("remove export archive failed", zap.String("job_id", job.ID), zap.String("file", job.FilePath), zap.Error(rmErr))
			err = multierr.Append(err, rmErr)
			continue
		}
		if delErr := j.jobRepo.Delete(ctx, job.ID); delErr != nil {
			err = multierr.Append(err, delErr)
			continue
		}
		removed++
	}
	logger.Info("export cleanup done", zap.Int("expired", len(jobs)), zap.Int("removed", removed))
	return err
}
