package routes

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"visual-search-platform/internal/config"
	"visual-search-platform/internal/descriptor"
	"visual-search-platform/internal/queue"
	"visual-search-platform/internal/store"
	"visual-search-platform/utils"
)

// SetupIngestRoutes registers the ingestion endpoints
func SetupIngestRoutes(router *gin.Engine, cfg *config.Config, asynqClient *asynq.Client, st store.Store) {
	api := router.Group("/api")
	{
		api.POST("/ingest", HandleStartIngest(cfg, asynqClient))
		api.GET("/ingest/:job_id", HandleIngestStatus(st))
	}
}

// IngestRequest is the JSON body of an ingestion job submission. An omitted
// keep_local_copy falls back to the configured default.
type IngestRequest struct {
	JobID         string   `json:"job_id"`
	CatalogPath   string   `json:"catalog_path"`
	Descriptors   []string `json:"descriptors"`
	Offset        int64    `json:"offset"`
	Limit         int64    `json:"limit"`
	Workers       int      `json:"workers"`
	BatchSize     int      `json:"batch_size"`
	Force         bool     `json:"force"`
	KeepLocalCopy *bool    `json:"keep_local_copy"`
}

// HandleStartIngest enqueues a catalog ingestion job. Resubmitting the same
// job_id resumes from its checkpoint unless an explicit offset is given.
func HandleStartIngest(cfg *config.Config, asynqClient *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}

		if _, err := descriptor.ParseSet(req.Descriptors); err != nil {
			utils.RespondWithBadRequest(c, "Unknown descriptor", err.Error())
			return
		}

		jobID := strings.TrimSpace(req.JobID)
		resume := jobID != ""
		if jobID == "" {
			jobID = uuid.New().String()
		}
		offset := req.Offset
		if resume && offset == 0 {
			offset = -1 // pick up from the checkpoint
		}

		task, err := queue.NewIngestTask(queue.IngestPayload{
			JobID:         jobID,
			CatalogPath:   req.CatalogPath,
			Descriptors:   req.Descriptors,
			Offset:        offset,
			Limit:         req.Limit,
			Workers:       req.Workers,
			BatchSize:     req.BatchSize,
			Force:         req.Force,
			KeepLocalCopy: req.KeepLocalCopy,
		})
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to build ingestion task", err.Error())
			return
		}

		info, err := asynqClient.EnqueueContext(c.Request.Context(), task)
		if err != nil {
			utils.RespondWithError(c, http.StatusServiceUnavailable, "queue_unavailable",
				"Failed to enqueue ingestion job", err.Error())
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"job_id":  jobID,
			"task_id": info.ID,
			"queue":   info.Queue,
			"resumed": resume,
		})
	}
}

// HandleIngestStatus reports the checkpoint of an ingestion job
func HandleIngestStatus(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("job_id")

		cp, err := st.LoadCheckpoint(c.Request.Context(), jobID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load job checkpoint", err.Error())
			return
		}
		if cp == nil {
			utils.RespondWithNotFound(c, "No checkpoint recorded for this job yet")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"job_id":     cp.JobID,
			"offset":     cp.Offset,
			"processed":  cp.Processed,
			"skipped":    cp.Skipped,
			"failed":     cp.Failed,
			"updated_at": cp.UpdatedAt,
		})
	}
}
