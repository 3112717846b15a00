package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/journiv/internal/model"
	"github.com/xxxsen/journiv/internal/pkg/errcode"
	"github.com/xxxsen/journiv/internal/pkg/response"
	"github.com/xxxsen/journiv/internal/service"
)

type ExportHandler struct {
	jobs *service.JobService
}

func NewExportHandler(jobs *service.JobService) *ExportHandler {
	return &ExportHandler{jobs: jobs}
}

type exportRequest struct {
	ExportType   model.ExportType `json:"export_type"`
	JournalIDs   []string         `json:"journal_ids"`
	IncludeMedia *bool            `json:"include_media"`
}

func (h *ExportHandler) Create(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.ExportType == "" {
		req.ExportType = model.ExportFull
	}
	includeMedia := true
	if req.IncludeMedia != nil {
		includeMedia = *req.IncludeMedia
	}
	job, err := h.jobs.CreateExportJob(c.Request.Context(), getUserID(c), req.ExportType, req.JournalIDs, includeMedia)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"job_id": job.ID, "status": job.Status})
}

func (h *ExportHandler) Get(c *gin.Context) {
	job, err := h.jobs.GetExportJob(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, newExportJobView(job))
}

func (h *ExportHandler) List(c *gin.Context) {
	jobs, err := h.jobs.ListExportJobs(c.Request.Context(), getUserID(c), listLimit(c))
	if err != nil {
		handleError(c, err)
		return
	}
	views := make([]exportJobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, newExportJobView(job))
	}
	response.Success(c, views)
}

func (h *ExportHandler) Cancel(c *gin.Context) {
	job, err := h.jobs.CancelExportJob(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, newExportJobView(job))
}

func (h *ExportHandler) Download(c *gin.Context) {
	job, f, err := h.jobs.ExportArchive(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		handleError(c, err)
		return
	}
	name := filepath.Base(job.FilePath)
	c.DataFromReader(http.StatusOK, info.Size(), "application/zip", f, map[string]string{
		"Content-Disposition": `attachment; filename="` + name + `"`,
	})
}
