package model

import (
	"encoding/json"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobPartial   JobStatus = "partial"
	JobCancelled JobStatus = "cancelled"
)

func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobPartial, JobCancelled:
		return true
	}
	return false
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed, JobPartial, JobCancelled:
		return true
	}
	return false
}

// Job is the progress record shared by import and export jobs. Only the
// orchestrator running the job mutates it; terminal jobs are frozen.
type Job struct {
	ID             string
	UserID         string
	Status         JobStatus
	Progress       int
	TotalItems     int
	ProcessedItems int
	FailedItems    int
	ResultData     json.RawMessage
	Errors         []string
	Warnings       []string
	StartedAt      int64
	CompletedAt    int64
	Ctime          int64
	Mtime          int64
}

func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// MarkRunning starts a run and resets progress. It reports false when the
// job already reached a terminal status.
func (j *Job) MarkRunning(now int64) bool {
	if j.IsTerminal() {
		return false
	}
	j.Status = JobRunning
	j.Progress = 0
	j.StartedAt = now
	j.Mtime = now
	return true
}

// SetProgress moves the percentage forward, clamped to [0,100]. Lower values
// and updates on terminal jobs are ignored.
func (j *Job) SetProgress(percent int, now int64) {
	if j.IsTerminal() {
		return
	}
	percent = clampPercent(percent)
	if percent > j.Progress {
		j.Progress = percent
		j.Mtime = now
	}
}

// UpdateProgress records item counters. Once processed+failed reaches total
// the job settles into completed, failed or partial.
func (j *Job) UpdateProgress(processed, total, failed int, now int64) {
	if j.IsTerminal() {
		return
	}
	j.ProcessedItems = processed
	j.TotalItems = total
	j.FailedItems = failed
	j.Mtime = now
	if total > 0 {
		p := clampPercent((processed + failed) * 100 / total)
		if p > j.Progress {
			j.Progress = p
		}
	}
	if total > 0 && processed+failed >= total {
		j.settle(processed, failed, now)
		return
	}
	if processed+failed > 0 {
		j.Status = JobRunning
	}
}

// Track records counters without settling the job. Used while a run is
// still walking its items and the unit of completion is coarser than an item.
func (j *Job) Track(processed, total, failed int, now int64) {
	if j.IsTerminal() {
		return
	}
	if total < 0 {
		total = 0
	}
	if processed+failed > total {
		total = processed + failed
	}
	j.ProcessedItems = processed
	j.TotalItems = total
	j.FailedItems = failed
	j.Mtime = now
}

// Finalize ends a run from unit counters: no failures is completed, no
// successes is failed, anything else is partial.
func (j *Job) Finalize(processed, failed int, result json.RawMessage, now int64) {
	if j.IsTerminal() {
		return
	}
	if result != nil {
		j.ResultData = result
	}
	j.settle(processed, failed, now)
}

func (j *Job) settle(processed, failed int, now int64) {
	switch {
	case failed == 0:
		j.Status = JobCompleted
		j.Progress = 100
	case processed == 0:
		j.Status = JobFailed
	default:
		j.Status = JobPartial
		j.Progress = 100
	}
	j.CompletedAt = now
	j.Mtime = now
}

func (j *Job) MarkCompleted(result json.RawMessage, now int64) {
	if j.IsTerminal() {
		return
	}
	j.Status = JobCompleted
	j.Progress = 100
	if result != nil {
		j.ResultData = result
	}
	j.CompletedAt = now
	j.Mtime = now
}

func (j *Job) MarkFailed(message string, now int64) {
	if j.IsTerminal() {
		return
	}
	j.Status = JobFailed
	j.Errors = append(j.Errors, message)
	j.CompletedAt = now
	j.Mtime = now
}

// MarkCancelled is the external transition. It reports false for jobs that
// already finished.
func (j *Job) MarkCancelled(now int64) bool {
	if j.IsTerminal() {
		return false
	}
	j.Status = JobCancelled
	j.CompletedAt = now
	j.Mtime = now
	return true
}

func (j *Job) AddWarning(warning string) {
	j.Warnings = append(j.Warnings, warning)
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
