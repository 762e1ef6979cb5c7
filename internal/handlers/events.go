package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/repos"
)

const defaultHistoryLimit = 100

type EventHistoryHandler struct {
	log    *logger.Logger
	events repos.RawEventRepo
}

func NewEventHistoryHandler(log *logger.Logger, events repos.RawEventRepo) *EventHistoryHandler {
	return &EventHistoryHandler{
		log:    log.With("handler", "EventHistoryHandler"),
		events: events,
	}
}

// GET /api/events/:user_id/:module_id?limit=100
// Returns the stored raw history for one (user, module) pair, newest first.
func (h *EventHistoryHandler) History(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_user_id", err)
		return
	}
	moduleID := c.Param("module_id")
	if moduleID == "" {
		RespondError(c, http.StatusBadRequest, "missing_module_id", errors.New("module_id is required"))
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			RespondError(c, http.StatusBadRequest, "bad_limit", errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	rows, err := h.events.GetByUserAndModule(c.Request.Context(), nil, userID, moduleID, limit)
	if err != nil {
		h.log.Error("event history lookup failed", "user_id", userID, "module_id", moduleID, "error", err)
		RespondError(c, http.StatusInternalServerError, "history_failed", err)
		return
	}
	RespondOK(c, gin.H{
		"user_id":   userID,
		"module_id": moduleID,
		"events":    rows,
	})
}

// GET /api/batches/:batch_id
// Reports how many events of an accepted batch have been persisted, so a
// caller can confirm an asynchronous batch landed.
func (h *EventHistoryHandler) BatchStatus(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batch_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_batch_id", err)
		return
	}

	n, err := h.events.CountByBatch(c.Request.Context(), nil, batchID)
	if err != nil {
		h.log.Error("batch status lookup failed", "batch_id", batchID, "error", err)
		RespondError(c, http.StatusInternalServerError, "batch_status_failed", err)
		return
	}
	RespondOK(c, gin.H{
		"batch_id":      batchID,
		"stored_events": n,
	})
}
