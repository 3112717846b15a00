package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/journiv/internal/pkg/response"
	"github.com/xxxsen/journiv/internal/service"
)

type MediaHandler struct {
	media *service.MediaService
}

func NewMediaHandler(media *service.MediaService) *MediaHandler {
	return &MediaHandler{media: media}
}

func (h *MediaHandler) Delete(c *gin.Context) {
	removed, err := h.media.Delete(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"id": c.Param("id"), "file_removed": removed})
}
