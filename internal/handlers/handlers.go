// Package handlers exposes the read-only status API.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/smartbin/internal/auth"
	"github.com/example/smartbin/internal/repository"
	"github.com/example/smartbin/internal/usecase"
)

// CycleReader is the history surface the status API needs.
type CycleReader interface {
	GetCycle(ctx context.Context, cycleID string) (*repository.CycleLog, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Everything except
// /health sits behind authMiddleware, and each protected request is logged
// with the operator that made it.
func RegisterRoutes(router *gin.Engine, history CycleReader, authMiddleware gin.HandlerFunc, logger *zap.Logger) {
	logger = logger.Named("status_api")
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/", authMiddleware, func(c *gin.Context) {
		operator, _ := auth.GetOperator(c.Request.Context())
		logger.Info("status request",
			zap.String("operator", operator),
			zap.String("path", c.FullPath()),
			zap.String("cycle_id", c.Param("id")))
		c.Next()
	})

	protected.GET("/cycles/:id", func(c *gin.Context) {
		cycleID := c.Param("id")
		if cycleID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		log, err := history.GetCycle(c.Request.Context(), cycleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "cycle not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load cycle"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"cycle_id":     log.CycleID,
			"photo":        log.PhotoPath,
			"label":        log.Label,
			"source":       log.Source,
			"remote_error": log.RemoteError,
			"archived":     log.Archived,
			"archive_path": log.ArchivePath,
			"duration_ms":  log.DurationMs,
			"created_at":   log.CreatedAt,
		})
	})

	protected.GET("/metrics", func(c *gin.Context) {
		summary, err := history.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}
