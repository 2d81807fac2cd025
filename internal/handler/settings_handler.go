package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stpaulclark/merit-api/internal/service"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
	"github.com/stpaulclark/merit-api/pkg/response"
)

type settingsService interface {
	CurrentPeriod(ctx context.Context) (*service.PeriodInfo, error)
	ResetPeriod(ctx context.Context, actor service.Actor) (*service.PeriodInfo, error)
}

// SettingsHandler exposes the counting-period endpoints.
type SettingsHandler struct {
	service settingsService
}

// NewSettingsHandler constructs the handler.
func NewSettingsHandler(service settingsService) *SettingsHandler {
	return &SettingsHandler{service: service}
}

// CurrentPeriod godoc
// @Summary Active counting period and school week
// @Tags Settings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /period [get]
func (h *SettingsHandler) CurrentPeriod(c *gin.Context) {
	info, err := h.service.CurrentPeriod(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}

// ResetPeriod godoc
// @Summary Restart the counting period from now
// @Tags Settings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /period/reset [post]
func (h *SettingsHandler) ResetPeriod(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	info, err := h.service.ResetPeriod(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}
