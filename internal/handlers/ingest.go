package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/services"
)

type IngestHandler struct {
	log      *logger.Logger
	pipeline services.IngestionService
}

func NewIngestHandler(log *logger.Logger, pipeline services.IngestionService) *IngestHandler {
	return &IngestHandler{
		log:      log.With("handler", "IngestHandler"),
		pipeline: pipeline,
	}
}

// POST /api/events/batch
// { idempotency_token, events: [...] }
// Accepted batches get a 202: processing is asynchronous and the learning
// updates land after the response.
func (h *IngestHandler) IngestBatch(c *gin.Context) {
	var in services.BatchInput
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, http.StatusBadRequest, "malformed_body", err)
		return
	}

	ack, err := h.pipeline.Ingest(c.Request.Context(), in)
	switch {
	case errors.Is(err, services.ErrInvalidBatch):
		RespondError(c, http.StatusBadRequest, "invalid_batch", err)
		return
	case errors.Is(err, services.ErrQueueFull):
		RespondError(c, http.StatusServiceUnavailable, "queue_full", err)
		return
	case err != nil:
		h.log.Error("batch ingest failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "ingest_failed", err)
		return
	}

	if ack.Duplicate {
		RespondOK(c, ack)
		return
	}
	c.JSON(http.StatusAccepted, ack)
}

// GET /api/pipeline/stats
func (h *IngestHandler) Stats(c *gin.Context) {
	RespondOK(c, h.pipeline.Stats())
}
