package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/internal/service"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
	"github.com/stpaulclark/merit-api/pkg/response"
)

type quotaService interface {
	Status(ctx context.Context, teacherID string, role models.UserRole) (*models.QuotaStatus, error)
	SetLimit(ctx context.Context, actor service.Actor, teacherID string, limit int) error
	WeekOverview(ctx context.Context, actor service.Actor) ([]models.WeeklyQuota, error)
}

// QuotaHandler exposes the weekly merit allowance endpoints.
type QuotaHandler struct {
	service quotaService
}

// NewQuotaHandler constructs the handler.
func NewQuotaHandler(service quotaService) *QuotaHandler {
	return &QuotaHandler{service: service}
}

// Status godoc
// @Summary Remaining weekly merit quota for the caller
// @Tags Quota
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /quota [get]
func (h *QuotaHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	status, err := h.service.Status(c.Request.Context(), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

type setQuotaRequest struct {
	Limit int `json:"limit" binding:"required"`
}

// SetLimit godoc
// @Summary Override a teacher's quota for the current week
// @Tags Quota
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Teacher user ID"
// @Param payload body setQuotaRequest true "New limit"
// @Success 204
// @Router /quota/{id} [put]
func (h *QuotaHandler) SetLimit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req setQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	if err := h.service.SetLimit(c.Request.Context(), actor, c.Param("id"), req.Limit); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// WeekOverview godoc
// @Summary Quota rows recorded for the current school week
// @Tags Quota
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /quota/overview [get]
func (h *QuotaHandler) WeekOverview(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	quotas, err := h.service.WeekOverview(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quotas, nil)
}
