package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/adapt-engine/internal/logger"
	"github.com/yungbote/adapt-engine/internal/services"
)

const defaultTopK = 3

type RecommendationHandler struct {
	log  *logger.Logger
	recs services.RecommendationService
}

func NewRecommendationHandler(log *logger.Logger, recs services.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{
		log:  log.With("handler", "RecommendationHandler"),
		recs: recs,
	}
}

// GET /api/recommendations/:user_id/:module_id?k=3&fresh=false
// Serves the persisted record by default; fresh=true recomputes from the
// current state before answering.
func (h *RecommendationHandler) Get(c *gin.Context) {
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

	k := defaultTopK
	if raw := c.Query("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			RespondError(c, http.StatusBadRequest, "bad_k", errors.New("k must be a positive integer"))
			return
		}
		k = parsed
	}

	if c.Query("fresh") == "true" {
		rec, err := h.recs.Recompute(c.Request.Context(), nil, userID, moduleID, k)
		if err != nil {
			h.log.Error("fresh recommendation failed", "user_id", userID, "module_id", moduleID, "error", err)
			RespondError(c, http.StatusInternalServerError, "recommendation_failed", err)
			return
		}
		RespondOK(c, rec)
		return
	}

	rec, err := h.recs.Get(c.Request.Context(), userID, moduleID)
	if err != nil {
		h.log.Error("recommendation lookup failed", "user_id", userID, "module_id", moduleID, "error", err)
		RespondError(c, http.StatusInternalServerError, "recommendation_failed", err)
		return
	}
	if rec == nil {
		RespondError(c, http.StatusNotFound, "no_recommendation", errors.New("no recommendation computed yet; retry with fresh=true"))
		return
	}
	RespondOK(c, rec)
}
