package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/xxxsen/journiv/internal/model"
	"github.com/xxxsen/journiv/internal/pkg/dbutil"
	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
)

var exportJobFields = append(append([]string{}, jobBaseFields...),
	"export_type", "journal_ids_json", "include_media", "file_path", "file_size")

type ExportJobRepo struct {
	db Queryer
}

func NewExportJobRepo(db Queryer) *ExportJobRepo {
	return &ExportJobRepo{db: db}
}

func (r *ExportJobRepo) Create(ctx context.Context, job *model.ExportJob) error {
	data, err := exportJobData(job)
	if err != nil {
		return err
	}
	data["id"] = job.ID
	data["user_id"] = job.UserID
	data["export_type"] = string(job.ExportType)
	data["include_media"] = dbutil.BoolToInt(job.IncludeMedia)
	data["ctime"] = job.Ctime
	ids := job.JournalIDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	data["journal_ids_json"] = string(idsJSON)
	return insertRows(ctx, r.db, "export_jobs", []map[string]interface{}{data})
}

func exportJobData(job *model.ExportJob) (map[string]interface{}, error) {
	data, err := jobBaseData(&job.Job)
	if err != nil {
		return nil, err
	}
	data["file_path"] = job.FilePath
	data["file_size"] = job.FileSize
	return data, nil
}

func (r *ExportJobRepo) Get(ctx context.Context, userID, jobID string) (*model.ExportJob, error) {
	return r.getOne(ctx, map[string]interface{}{"id": jobID, "user_id": userID})
}

func (r *ExportJobRepo) GetByID(ctx context.Context, jobID string) (*model.ExportJob, error) {
	return r.getOne(ctx, map[string]interface{}{"id": jobID})
}

func (r *ExportJobRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.ExportJob, error) {
	row, err := selectRow(ctx, r.db, "export_jobs", where, exportJobFields)
	if err != nil {
		return nil, err
	}
	job, err := scanExportJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *ExportJobRepo) Update(ctx context.Context, job *model.ExportJob) error {
	data, err := exportJobData(job)
	if err != nil {
		return err
	}
	where := map[string]interface{}{
		"id":        job.ID,
		"status in": terminalExcluded(),
	}
	affected, err := updateRows(ctx, r.db, "export_jobs", where, data)
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrJobTerminal
	}
	return nil
}

func (r *ExportJobRepo) UpdateStatusIf(ctx context.Context, userID, jobID string, from, to model.JobStatus, mtime int64) (bool, error) {
	where := map[string]interface{}{"id": jobID, "user_id": userID, "status": string(from)}
	data := map[string]interface{}{"status": string(to), "mtime": mtime}
	if to.IsTerminal() {
		data["completed_at"] = mtime
	}
	affected, err := updateRows(ctx, r.db, "export_jobs", where, data)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *ExportJobRepo) ListByUser(ctx context.Context, userID string, limit uint) ([]*model.ExportJob, error) {
	if limit == 0 {
		limit = 50
	}
	where := map[string]interface{}{"user_id": userID, "_orderby": "ctime desc", "_limit": []uint{0, limit}}
	return r.list(ctx, where)
}

// ListExpired returns finished jobs older than cutoff. Their archives are due
// for removal.
func (r *ExportJobRepo) ListExpired(ctx context.Context, cutoff int64) ([]*model.ExportJob, error) {
	where := map[string]interface{}{
		"completed_at <": cutoff,
		"status in":      terminalStatuses(),
	}
	return r.list(ctx, where)
}

func (r *ExportJobRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.ExportJob, error) {
	rows, err := selectRows(ctx, r.db, "export_jobs", where, exportJobFields)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	jobs := make([]*model.ExportJob, 0)
	for rows.Next() {
		job, err := scanExportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *ExportJobRepo) Delete(ctx context.Context, jobID string) error {
	_, err := deleteRows(ctx, r.db, "export_jobs", map[string]interface{}{"id": jobID})
	return err
}

func scanExportJob(row rowScanner) (*model.ExportJob, error) {
	var job model.ExportJob
	var scan jobScan
	var exportType, idsJSON string
	var includeMedia int
	targets := append(scan.targets(&job.Job), &exportType, &idsJSON, &includeMedia, &job.FilePath, &job.FileSize)
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	scan.apply(&job.Job)
	job.ExportType = model.ExportType(exportType)
	job.IncludeMedia = includeMedia == 1
	if idsJSON != "" {
		_ = json.Unmarshal([]byte(idsJSON), &job.JournalIDs)
	}
	return &job, nil
}
