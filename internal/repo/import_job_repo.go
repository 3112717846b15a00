package repo

import (
	"context"
	"database/sql"

	"github.com/xxxsen/journiv/internal/model"
	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
)

var importJobFields = append(append([]string{}, jobBaseFields...), "source_type", "file_path")

type ImportJobRepo struct {
	db Queryer
}

func NewImportJobRepo(db Queryer) *ImportJobRepo {
	return &ImportJobRepo{db: db}
}

func (r *ImportJobRepo) Create(ctx context.Context, job *model.ImportJob) error {
	data, err := jobBaseData(&job.Job)
	if err != nil {
		return err
	}
	data["id"] = job.ID
	data["user_id"] = job.UserID
	data["source_type"] = string(job.SourceType)
	data["file_path"] = job.FilePath
	data["ctime"] = job.Ctime
	return insertRows(ctx, r.db, "import_jobs", []map[string]interface{}{data})
}

func (r *ImportJobRepo) Get(ctx context.Context, userID, jobID string) (*model.ImportJob, error) {
	return r.getOne(ctx, map[string]interface{}{"id": jobID, "user_id": userID})
}

// GetByID loads a job without an owner check. Only workers use it.
func (r *ImportJobRepo) GetByID(ctx context.Context, jobID string) (*model.ImportJob, error) {
	return r.getOne(ctx, map[string]interface{}{"id": jobID})
}

func (r *ImportJobRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.ImportJob, error) {
	row, err := selectRow(ctx, r.db, "import_jobs", where, importJobFields)
	if err != nil {
		return nil, err
	}
	job, err := scanImportJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// Update persists the mutable state of a job. Rows already in a terminal
// status are left untouched so late writers cannot resurrect them.
func (r *ImportJobRepo) Update(ctx context.Context, job *model.ImportJob) error {
	data, err := jobBaseData(&job.Job)
	if err != nil {
		return err
	}
	data["file_path"] = job.FilePath
	where := map[string]interface{}{
		"id":        job.ID,
		"status in": terminalExcluded(),
	}
	affected, err := updateRows(ctx, r.db, "import_jobs", where, data)
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrJobTerminal
	}
	return nil
}

func (r *ImportJobRepo) UpdateStatusIf(ctx context.Context, userID, jobID string, from, to model.JobStatus, mtime int64) (bool, error) {
	where := map[string]interface{}{"id": jobID, "user_id": userID, "status": string(from)}
	data := map[string]interface{}{"status": string(to), "mtime": mtime}
	if to.IsTerminal() {
		data["completed_at"] = mtime
	}
	affected, err := updateRows(ctx, r.db, "import_jobs", where, data)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *ImportJobRepo) ListByUser(ctx context.Context, userID string, limit uint) ([]*model.ImportJob, error) {
	if limit == 0 {
		limit = 50
	}
	where := map[string]interface{}{"user_id": userID, "_orderby": "ctime desc", "_limit": []uint{0, limit}}
	rows, err := selectRows(ctx, r.db, "import_jobs", where, importJobFields)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	jobs := make([]*model.ImportJob, 0)
	for rows.Next() {
		job, err := scanImportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListStale returns terminal jobs created before cutoff that still point at
// an uploaded file.
func (r *ImportJobRepo) ListStale(ctx context.Context, cutoff int64) ([]*model.ImportJob, error) {
	where := map[string]interface{}{
		"ctime <":   cutoff,
		"status in": terminalStatuses(),
	}
	rows, err := selectRows(ctx, r.db, "import_jobs", where, importJobFields)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	jobs := make([]*model.ImportJob, 0)
	for rows.Next() {
		job, err := scanImportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *ImportJobRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	return deleteRows(ctx, r.db, "import_jobs", map[string]interface{}{
		"ctime <":   cutoff,
		"status in": terminalStatuses(),
	})
}

func (r *ImportJobRepo) Delete(ctx context.Context, userID, jobID string) error {
	_, err := deleteRows(ctx, r.db, "import_jobs", map[string]interface{}{"id": jobID, "user_id": userID})
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanImportJob(row rowScanner) (*model.ImportJob, error) {
	var job model.ImportJob
	var scan jobScan
	var source string
	targets := append(scan.targets(&job.Job), &source, &job.FilePath)
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	scan.apply(&job.Job)
	job.SourceType = model.ImportSource(source)
	return &job, nil
}

func terminalStatuses() []string {
	return []string{
		string(model.JobCompleted),
		string(model.JobFailed),
		string(model.JobPartial),
		string(model.JobCancelled),
	}
}

func terminalExcluded() []string {
	return []string{string(model.JobPending), string(model.JobRunning)}
}
