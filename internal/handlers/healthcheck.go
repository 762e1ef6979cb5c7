package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/adapt-engine/internal/db"
	"github.com/yungbote/adapt-engine/internal/services"
)

func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

type ReadinessHandler struct {
	dbSvc      *db.Service
	checkpoint services.CheckpointService
	pipeline   services.IngestionService
}

func NewReadinessHandler(dbSvc *db.Service, checkpoint services.CheckpointService, pipeline services.IngestionService) *ReadinessHandler {
	return &ReadinessHandler{
		dbSvc:      dbSvc,
		checkpoint: checkpoint,
		pipeline:   pipeline,
	}
}

// GET /readyz
// Ready only once the q-table snapshot is loaded, the database answers
// pings, and the ingestion queue is accepting work.
func (h *ReadinessHandler) Ready(c *gin.Context) {
	dbOK := h.dbSvc.Ping() == nil
	body := gin.H{
		"qtable_loaded":   h.checkpoint.Loaded(),
		"db_ok":           dbOK,
		"queue_accepting": h.pipeline.Accepting(),
	}
	if h.checkpoint.Loaded() && dbOK && h.pipeline.Accepting() {
		c.JSON(http.StatusOK, body)
		return
	}
	c.JSON(http.StatusServiceUnavailable, body)
}
