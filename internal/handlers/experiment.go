package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/experiment-backend/internal/repos"
	"github.com/yungbote/experiment-backend/internal/services"
	"github.com/yungbote/experiment-backend/internal/types"
)

type ExperimentHandler struct {
	engine *services.ExperimentEngine
}

func NewExperimentHandler(engine *services.ExperimentEngine) *ExperimentHandler {
	return &ExperimentHandler{engine: engine}
}

type createVariantRequest struct {
	Name     string          `json:"name" binding:"required"`
	Weight   float64         `json:"weight"`
	Content  json.RawMessage `json:"content,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type createExperimentRequest struct {
	Name            string                    `json:"name" binding:"required"`
	Description     string                    `json:"description"`
	Status          types.ExperimentStatus    `json:"status"`
	Variants        []createVariantRequest    `json:"variants" binding:"required"`
	TargetingRules  types.TargetingRules      `json:"targeting_rules"`
	Metrics         types.MetricsConfig       `json:"metrics"`
	Settings        types.ExperimentSettings  `json:"settings"`
	StartDate       *time.Time                `json:"start_date,omitempty"`
	EndDate         *time.Time                `json:"end_date,omitempty"`
	MinSampleSize   int                       `json:"min_sample_size"`
	MaxDurationDays int                       `json:"max_duration_days"`
}

func (h *ExperimentHandler) Create(c *gin.Context) {
	var req createExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	experiment := &types.Experiment{
		Name:            req.Name,
		Description:     req.Description,
		Status:          req.Status,
		TargetingRules:  datatypes.NewJSONType(req.TargetingRules),
		Metrics:         datatypes.NewJSONType(req.Metrics),
		Settings:        datatypes.NewJSONType(req.Settings),
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		MinSampleSize:   req.MinSampleSize,
		MaxDurationDays: req.MaxDurationDays,
	}
	for _, variant := range req.Variants {
		experiment.Variants = append(experiment.Variants, &types.Variant{
			Name:     variant.Name,
			Weight:   variant.Weight,
			Content:  datatypes.JSON(variant.Content),
			Metadata: datatypes.JSON(variant.Metadata),
		})
	}

	id, err := h.engine.CreateExperiment(c.Request.Context(), experiment)
	if err != nil {
		var validationErr *services.ValidationError
		if errors.As(err, &validationErr) {
			RespondError(c, http.StatusBadRequest, "validation_error", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *ExperimentHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	experiment, err := h.engine.GetExperiment(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repos.ErrExperimentNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	RespondOK(c, gin.H{"experiment": experiment})
}

func (h *ExperimentHandler) List(c *gin.Context) {
	status := types.ExperimentStatus(c.Query("status"))
	experiments, err := h.engine.ListExperiments(c.Request.Context(), status)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	RespondOK(c, gin.H{"experiments": experiments})
}

func (h *ExperimentHandler) Start(c *gin.Context) {
	h.transition(c, h.engine.StartExperiment)
}

func (h *ExperimentHandler) Pause(c *gin.Context) {
	h.transition(c, h.engine.PauseExperiment)
}

func (h *ExperimentHandler) Complete(c *gin.Context) {
	h.transition(c, h.engine.CompleteExperiment)
}

func (h *ExperimentHandler) transition(c *gin.Context, apply func(ctx context.Context, id uuid.UUID) error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := apply(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, repos.ErrExperimentNotFound):
			RespondError(c, http.StatusNotFound, "not_found", err)
		case errors.Is(err, services.ErrInvalidStateTransition):
			RespondError(c, http.StatusConflict, "invalid_transition", err)
		default:
			RespondError(c, http.StatusInternalServerError, "internal", err)
		}
		return
	}
	RespondOK(c, gin.H{"id": id})
}

func (h *ExperimentHandler) Results(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	results, err := h.engine.GetResults(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repos.ErrExperimentNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	RespondOK(c, gin.H{"results": results})
}
