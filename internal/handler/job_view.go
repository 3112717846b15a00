package handler

import (
	"encoding/json"

	"github.com/xxxsen/journiv/internal/model"
)

type jobView struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	Progress       int             `json:"progress"`
	TotalItems     int             `json:"total_items"`
	ProcessedItems int             `json:"processed_items"`
	FailedItems    int             `json:"failed_items"`
	ResultData     json.RawMessage `json:"result_data,omitempty"`
	Errors         []string        `json:"errors"`
	Warnings       []string        `json:"warnings"`
	CreatedAt      int64           `json:"created_at"`
	StartedAt      int64           `json:"started_at,omitempty"`
	CompletedAt    int64           `json:"completed_at,omitempty"`
}

type importJobView struct {
	jobView
	SourceType string `json:"source_type"`
}

type exportJobView struct {
	jobView
	ExportType   string   `json:"export_type"`
	JournalIDs   []string `json:"journal_ids"`
	IncludeMedia bool     `json:"include_media"`
	FileSize     int64    `json:"file_size,omitempty"`
	DownloadURL  string   `json:"download_url,omitempty"`
}

func newJobView(j *model.Job) jobView {
	errs := j.Errors
	if errs == nil {
		errs = []string{}
	}
	warnings := j.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return jobView{
		ID:             j.ID,
		Status:         string(j.Status),
		Progress:       j.Progress,
		TotalItems:     j.TotalItems,
		ProcessedItems: j.ProcessedItems,
		FailedItems:    j.FailedItems,
		ResultData:     j.ResultData,
		Errors:         errs,
		Warnings:       warnings,
		CreatedAt:      j.Ctime,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}

func newImportJobView(j *model.ImportJob) importJobView {
	return importJobView{jobView: newJobView(&j.Job), SourceType: string(j.SourceType)}
}

func newExportJobView(j *model.ExportJob) exportJobView {
	ids := j.JournalIDs
	if ids == nil {
		ids = []string{}
	}
	v := exportJobView{
		jobView:      newJobView(&j.Job),
		ExportType:   string(j.ExportType),
		JournalIDs:   ids,
		IncludeMedia: j.IncludeMedia,
		FileSize:     j.FileSize,
	}
	if j.Status == model.JobCompleted && j.FilePath != "" {
		v.DownloadURL = "/api/v1/export/" + j.ID + "/download"
	}
	return v
}
