package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/journiv/internal/middleware"
	"github.com/xxxsen/journiv/internal/pkg/errcode"
	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
	"github.com/xxxsen/journiv/internal/pkg/response"
	"github.com/xxxsen/journiv/internal/schedule"
)

const defaultListLimit = 20

func getUserID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextUserIDKey)
	userID, _ := value.(string)
	return userID
}

func listLimit(c *gin.Context) uint {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > 100 {
		n = 100
	}
	return uint(n)
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	)
	var verr *appErr.ValidationError
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.As(err, &verr):
		response.Error(c, errcode.ErrValidation, verr.Error())
	case errors.Is(err, appErr.ErrValidation):
		response.Error(c, errcode.ErrValidation, err.Error())
	case errors.Is(err, appErr.ErrVersionMismatch):
		response.Error(c, errcode.ErrVersionMismatch, err.Error())
	case errors.Is(err, appErr.ErrInvalidArchive):
		response.Error(c, errcode.ErrInvalidFile, "invalid import file")
	case errors.Is(err, appErr.ErrFileTooLarge):
		response.Error(c, errcode.ErrFileTooLarge, "file too large")
	case errors.Is(err, appErr.ErrUnsupportedSource):
		response.Error(c, errcode.ErrUnsupportedSource, err.Error())
	case errors.Is(err, appErr.ErrJobTerminal):
		response.Error(c, errcode.ErrJobFinished, "job already finished")
	case errors.Is(err, schedule.ErrQueueFull), errors.Is(err, schedule.ErrQueueClosed):
		response.Error(c, errcode.ErrTooMany, "job queue is busy, try again later")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
