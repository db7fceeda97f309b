package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/experiment-backend/internal/services"
	"github.com/yungbote/experiment-backend/internal/types"
)

// AssignmentHandler carries the public traffic surface: variant assignment,
// event tracking and variant content lookup. These endpoints sit on the page
// render path, so they answer 200 with a null variant instead of erroring
// when a user is not eligible.
type AssignmentHandler struct {
	engine *services.ExperimentEngine
}

func NewAssignmentHandler(engine *services.ExperimentEngine) *AssignmentHandler {
	return &AssignmentHandler{engine: engine}
}

type assignRequest struct {
	ExperimentID uuid.UUID             `json:"experiment_id" binding:"required"`
	UserID       string                `json:"user_id" binding:"required"`
	SessionID    string                `json:"session_id"`
	Context      *types.RequestContext `json:"context,omitempty"`
}

func (h *AssignmentHandler) Assign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	reqCtx := req.Context
	if reqCtx == nil {
		reqCtx = &types.RequestContext{}
	}
	if reqCtx.UserAgent == "" {
		reqCtx.UserAgent = c.Request.UserAgent()
	}
	if reqCtx.IPAddress == "" {
		reqCtx.IPAddress = c.ClientIP()
	}

	variantID := h.engine.AssignVariant(c.Request.Context(), req.ExperimentID, req.UserID, req.SessionID, reqCtx)
	if variantID == uuid.Nil {
		RespondOK(c, gin.H{"variant_id": nil})
		return
	}
	RespondOK(c, gin.H{
		"variant_id": variantID,
		"content":    rawJSON(h.engine.GetVariantContent(req.ExperimentID, variantID)),
	})
}

type trackEventRequest struct {
	ExperimentID uuid.UUID       `json:"experiment_id" binding:"required"`
	VariantID    uuid.UUID       `json:"variant_id" binding:"required"`
	UserID       string          `json:"user_id" binding:"required"`
	SessionID    string          `json:"session_id"`
	Name         string          `json:"name" binding:"required"`
	Value        *float64        `json:"value,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

func (h *AssignmentHandler) Track(c *gin.Context) {
	var req trackEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	h.engine.TrackEvent(c.Request.Context(), &types.TrackedEvent{
		ExperimentID: req.ExperimentID,
		VariantID:    req.VariantID,
		UserID:       req.UserID,
		SessionID:    req.SessionID,
		Name:         req.Name,
		Value:        req.Value,
		Metadata:     datatypes.JSON(req.Metadata),
	})
	c.Status(http.StatusAccepted)
}

func (h *AssignmentHandler) VariantContent(c *gin.Context) {
	experimentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	variantID, err := uuid.Parse(c.Param("variantId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	content := h.engine.GetVariantContent(experimentID, variantID)
	if content == nil {
		RespondOK(c, gin.H{"content": nil})
		return
	}
	RespondOK(c, gin.H{"content": rawJSON(content)})
}

func rawJSON(content datatypes.JSON) json.RawMessage {
	if len(content) == 0 {
		return nil
	}
	return json.RawMessage(content)
}
