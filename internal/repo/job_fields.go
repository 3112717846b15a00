package repo

import (
	"encoding/json"

	"github.com/xxxsen/journiv/internal/model"
)

var jobBaseFields = []string{
	"id", "user_id", "status", "progress", "total_items", "processed_items", "failed_items",
	"result_data", "errors_json", "warnings_json", "started_at", "completed_at", "ctime", "mtime",
}

func jobBaseData(job *model.Job) (map[string]interface{}, error) {
	errs := job.Errors
	if errs == nil {
		errs = []string{}
	}
	warnings := job.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return nil, err
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":          string(job.Status),
		"progress":        job.Progress,
		"total_items":     job.TotalItems,
		"processed_items": job.ProcessedItems,
		"failed_items":    job.FailedItems,
		"result_data":     string(job.ResultData),
		"errors_json":     string(errsJSON),
		"warnings_json":   string(warningsJSON),
		"started_at":      job.StartedAt,
		"completed_at":    job.CompletedAt,
		"mtime":           job.Mtime,
	}, nil
}

type jobScan struct {
	status       string
	resultData   string
	errorsJSON   string
	warningsJSON string
}

func (s *jobScan) targets(job *model.Job) []interface{} {
	return []interface{}{
		&job.ID, &job.UserID, &s.status, &job.Progress, &job.TotalItems, &job.ProcessedItems, &job.FailedItems,
		&s.resultData, &s.errorsJSON, &s.warningsJSON, &job.StartedAt, &job.CompletedAt, &job.Ctime, &job.Mtime,
	}
}

func (s *jobScan) apply(job *model.Job) {
	job.Status = model.JobStatus(s.status)
	if s.resultData != "" {
		job.ResultData = json.RawMessage(s.resultData)
	}
	if s.errorsJSON != "" {
		_ = json.Unmarshal([]byte(s.errorsJSON), &job.Errors)
	}
	if s.warningsJSON != "" {
		_ = json.Unmarshal([]byte(s.warningsJSON), &job.Warnings)
	}
}
