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

type dashboardService interface {
	SchoolSummary(ctx context.Context, actor service.Actor) (*models.SchoolSummary, error)
	StudentSummary(ctx context.Context, studentID string) (*models.StudentSummary, error)
	TeacherSummary(ctx context.Context, actor service.Actor) (*models.TeacherSummary, error)
}

// DashboardHandler wires the role-specific overview endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// School godoc
// @Summary School-wide overview since the last reset
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /dashboard/school [get]
func (h *DashboardHandler) School(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.service.SchoolSummary(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Teacher godoc
// @Summary Issuing teacher overview
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /dashboard/teacher [get]
func (h *DashboardHandler) Teacher(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.service.TeacherSummary(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Student godoc
// @Summary Student overview
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /dashboard/students/{id} [get]
func (h *DashboardHandler) Student(c *gin.Context) {
	summary, err := h.service.StudentSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
