package job

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/journiv/internal/mediastore"
	"github.com/xxxsen/journiv/internal/model"
	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
	"github.com/xxxsen/journiv/internal/repo"
	"github.com/xxxsen/journiv/internal/service"
	"github.com/xxxsen/journiv/internal/testutil"
)

func TestExportCleanupRemovesExpiredArchives(t *testing.T) {
	ctx := context.Background()
	conn := testutil.OpenTestDB(t)
	user := testutil.CreateUser(t, conn)
	root := t.TempDir()
	stores := service.NewStores(conn)
	exports := service.NewExportService(stores, mediastore.New(filepath.Join(root, "media"), stores.Media), filepath.Join(root, "exports"), nil, "test")
	jobs := repo.NewExportJobRepo(conn)
	require.NoError(t, os.MkdirAll(exports.ExportDir(), 0o755))

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	create := func(finished time.Time) *model.ExportJob {
		id := uuid.NewString()
		path := filepath.Join(exports.ExportDir(), service.ExportFileName(user.ID, id, finished))
		require.NoError(t, os.WriteFile(path, []byte("zip"), 0o644))
		job := &model.ExportJob{
			Job: model.Job{
				ID: id, UserID: user.ID, Status: model.JobCompleted, Progress: 100,
				CompletedAt: finished.Unix(), Ctime: finished.Unix(), Mtime: finished.Unix(),
			},
			ExportType: model.ExportFull,
			FilePath:   path,
			FileSize:   3,
		}
		require.NoError(t, jobs.Create(ctx, job))
		return job
	}
	expired := create(now.Add(-8 * 24 * time.Hour))
	recent := create(now.Add(-time.Hour))

	cleanup := NewExportCleanupJob(jobs, exports, 7*24*time.Hour)
	cleanup.now = func() time.Time { return now }
	assert.Equal(t, "export_cleanup", cleanup.Name())
	require.NoError(t, cleanup.Run(ctx))

	_, err := os.Stat(expired.FilePath)
	assert.True(t, os.IsNotExist(err))
	_, err = jobs.GetByID(ctx, expired.ID)
	assert.ErrorIs(t, err, appErr.ErrNotFound)

	_, err = os.Stat(recent.FilePath)
	assert.NoError(t, err)
	_, err = jobs.GetByID(ctx, recent.ID)
	assert.NoError(t, err)
}

func TestImportCleanupRemovesStaleUploads(t *testing.T) {
	ctx := context.Background()
	conn := testutil.OpenTestDB(t)
	user := testutil.CreateUser(t, conn)
	uploads := service.NewUploadService(t.TempDir(), 0)
	jobs := repo.NewImportJobRepo(conn)

	now := time.Now()
	old := now.Add(-48 * time.Hour)
	path, err := uploads.Save(ctx, "old.zip", strings.NewReader("zip"))
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(path, old, old))
	finished := &model.ImportJob{
		Job: model.Job{
			ID: uuid.NewString(), UserID: user.ID, Status: model.JobFailed,
			CompletedAt: old.Unix(), Ctime: old.Unix(), Mtime: old.Unix(),
		},
		SourceType: model.ImportSourceJourniv,
		FilePath:   path,
	}
	require.NoError(t, jobs.Create(ctx, finished))
	pending := &model.ImportJob{
		Job:        model.Job{ID: uuid.NewString(), UserID: user.ID, Status: model.JobPending, Ctime: old.Unix(), Mtime: old.Unix()},
		SourceType: model.ImportSourceJourniv,
		FilePath:   filepath.Join(uploads.UploadDir(), "pending.zip"),
	}
	require.NoError(t, jobs.Create(ctx, pending))
	fresh, err := uploads.Save(ctx, "fresh.zip", strings.NewReader("zip"))
	require.NoError(t, err)

	cleanup := NewImportCleanupJob(jobs, uploads, 24*time.Hour)
	cleanup.now = func() time.Time { return now }
	assert.Equal(t, "import_cleanup", cleanup.Name())
	require.NoError(t, cleanup.Run(ctx))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
	_, err = jobs.GetByID(ctx, finished.ID)
	assert.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = jobs.GetByID(ctx, pending.ID)
	assert.NoError(t, err, "unfinished jobs are kept")
}
