package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/pkg/response"
)

type metricsService interface {
	Handler() http.Handler
	Snapshot() models.SystemMetrics
}

// MetricsHandler exposes Prometheus scraping and a JSON snapshot.
type MetricsHandler struct {
	service metricsService
}

// NewMetricsHandler constructs the handler.
func NewMetricsHandler(service metricsService) *MetricsHandler {
	return &MetricsHandler{service: service}
}

// Prometheus serves the scrape endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	h.service.Handler().ServeHTTP(c.Writer, c.Request)
}

// Snapshot godoc
// @Summary Point-in-time system metrics
// @Tags Metrics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /metrics/snapshot [get]
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Snapshot(), nil)
}
