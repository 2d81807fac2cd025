package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/internal/repository"
	"github.com/stpaulclark/merit-api/internal/service"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
	"github.com/stpaulclark/merit-api/pkg/response"
)

type rewardService interface {
	Progress(ctx context.Context, studentID string) (*models.RewardProgress, error)
	ListPasses(ctx context.Context, studentID string) ([]models.UniformPass, error)
	ListDetentions(ctx context.Context, filter repository.DetentionFilter) ([]models.Detention, *models.Pagination, error)
	ResolveDetention(ctx context.Context, actor service.Actor, detentionID string, status models.DetentionStatus) (*models.Detention, error)
	Rederive(ctx context.Context, actor service.Actor, studentID string) (*models.RederiveResult, error)
}

// RewardHandler exposes derived rewards: uniform passes and detentions.
type RewardHandler struct {
	service rewardService
}

// NewRewardHandler constructs the handler.
func NewRewardHandler(service rewardService) *RewardHandler {
	return &RewardHandler{service: service}
}

// Progress godoc
// @Summary Student reward progress since the last reset
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/progress [get]
func (h *RewardHandler) Progress(c *gin.Context) {
	progress, err := h.service.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// ListPasses godoc
// @Summary Student uniform passes
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/passes [get]
func (h *RewardHandler) ListPasses(c *gin.Context) {
	passes, err := h.service.ListPasses(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, passes, nil)
}

// ListDetentions godoc
// @Summary List detentions
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Param student_id query string false "Filter by student"
// @Param status query string false "pending, served or excused"
// @Param month query string false "Month label YYYY-MM"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /detentions [get]
func (h *RewardHandler) ListDetentions(c *gin.Context) {
	filter := repository.DetentionFilter{
		StudentID: strings.TrimSpace(c.Query("student_id")),
		Month:     strings.TrimSpace(c.Query("month")),
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		ds := models.DetentionStatus(status)
		if !ds.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "status must be pending, served or excused"))
			return
		}
		filter.Status = ds
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))

	detentions, pagination, err := h.service.ListDetentions(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detentions, pagination)
}

type resolveDetentionRequest struct {
	Status string `json:"status" binding:"required"`
}

// ResolveDetention godoc
// @Summary Mark a pending detention served or excused
// @Tags Rewards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Detention ID"
// @Param payload body resolveDetentionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Already resolved"
// @Router /detentions/{id} [patch]
func (h *RewardHandler) ResolveDetention(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req resolveDetentionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	det, err := h.service.ResolveDetention(c.Request.Context(), actor, c.Param("id"), models.DetentionStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, det, nil)
}

// Rederive godoc
// @Summary Backfill missing reward rows for a student
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/rederive [post]
func (h *RewardHandler) Rederive(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Rederive(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
