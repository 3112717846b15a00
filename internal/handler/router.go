package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/journiv/internal/middleware"
)

type RouterDeps struct {
	Import          *ImportHandler
	Export          *ExportHandler
	Media           *MediaHandler
	JWTSecret       []byte
	JobCreateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	createLimit := middleware.RateLimit(deps.JobCreateWindow)

	authGroup.POST("/import", createLimit, deps.Import.Upload)
	authGroup.GET("/import", deps.Import.List)
	authGroup.GET("/import/:id", deps.Import.Get)
	authGroup.POST("/import/:id/cancel", deps.Import.Cancel)

	authGroup.POST("/export", createLimit, deps.Export.Create)
	authGroup.GET("/export", deps.Export.List)
	authGroup.GET("/export/:id", deps.Export.Get)
	authGroup.GET("/export/:id/download", deps.Export.Download)
	authGroup.POST("/export/:id/cancel", deps.Export.Cancel)

	authGroup.DELETE("/media/:id", deps.Media.Delete)
}
