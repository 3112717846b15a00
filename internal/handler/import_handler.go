package handler

import (
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/journiv/internal/model"
	"github.com/xxxsen/journiv/internal/pkg/errcode"
	"github.com/xxxsen/journiv/internal/pkg/response"
	"github.com/xxxsen/journiv/internal/service"
)

type ImportHandler struct {
	jobs          *service.JobService
	uploads       *service.UploadService
	maxUploadSize int64
}

func NewImportHandler(jobs *service.JobService, uploads *service.UploadService, maxUploadSize int64) *ImportHandler {
	return &ImportHandler{jobs: jobs, uploads: uploads, maxUploadSize: maxUploadSize}
}

// Upload stores the archive and queues an import job. The form field
// "source" selects the format and defaults to journiv.
func (h *ImportHandler) Upload(c *gin.Context) {
	source := model.ImportSource(strings.ToLower(strings.TrimSpace(c.PostForm("source"))))
	if source == "" {
		source = model.ImportSourceJourniv
	}
	if !source.Valid() {
		response.Error(c, errcode.ErrUnsupportedSource, "unsupported import source: "+string(source))
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.maxUploadSize > 0 && file.Size > h.maxUploadSize {
		response.Error(c, errcode.ErrFileTooLarge, "file too large (max "+formatUploadLimit(h.maxUploadSize)+")")
		return
	}
	if strings.ToLower(filepath.Ext(file.Filename)) != ".zip" {
		response.Error(c, errcode.ErrInvalidFile, "zip file required")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()

	ctx := c.Request.Context()
	path, err := h.uploads.Save(ctx, file.Filename, opened)
	if err != nil {
		handleError(c, err)
		return
	}
	job, err := h.jobs.CreateImportJob(ctx, getUserID(c), source, path)
	if err != nil {
		_ = h.uploads.Cleanup(ctx, path)
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"job_id": job.ID, "status": job.Status})
}

func (h *ImportHandler) Get(c *gin.Context) {
	job, err := h.jobs.GetImportJob(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, newImportJobView(job))
}

func (h *ImportHandler) List(c *gin.Context) {
	jobs, err := h.jobs.ListImportJobs(c.Request.Context(), getUserID(c), listLimit(c))
	if err != nil {
		handleError(c, err)
		return
	}
	views := make([]importJobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, newImportJobView(job))
	}
	response.Success(c, views)
}

func (h *ImportHandler) Cancel(c *gin.Context) {
	job, err := h.jobs.CancelImportJob(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, newImportJobView(job))
}
