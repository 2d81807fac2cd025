package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/internal/service"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
	"github.com/stpaulclark/merit-api/pkg/response"
)

type raffleService interface {
	CreatePrize(ctx context.Context, actor service.Actor, req service.CreatePrizeRequest) (*models.RafflePrize, error)
	ListPrizes(ctx context.Context, month string) ([]models.RafflePrize, error)
	Draw(ctx context.Context, actor service.Actor, prizeID string) (*models.RafflePrize, error)
	Entries(ctx context.Context, studentID string) (int, error)
}

// RaffleHandler exposes the monthly merit raffle endpoints.
type RaffleHandler struct {
	service raffleService
}

// NewRaffleHandler constructs the handler.
func NewRaffleHandler(service raffleService) *RaffleHandler {
	return &RaffleHandler{service: service}
}

// CreatePrize godoc
// @Summary Register a monthly raffle prize
// @Tags Raffle
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreatePrizeRequest true "Prize"
// @Success 201 {object} response.Envelope
// @Router /raffle/prizes [post]
func (h *RaffleHandler) CreatePrize(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreatePrizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	prize, err := h.service.CreatePrize(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, prize)
}

// ListPrizes godoc
// @Summary List raffle prizes for a month
// @Tags Raffle
// @Produce json
// @Security BearerAuth
// @Param month query string false "Month label YYYY-MM, defaults to the current month"
// @Success 200 {object} response.Envelope
// @Router /raffle/prizes [get]
func (h *RaffleHandler) ListPrizes(c *gin.Context) {
	prizes, err := h.service.ListPrizes(c.Request.Context(), strings.TrimSpace(c.Query("month")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prizes, nil)
}

// Draw godoc
// @Summary Draw an entry-weighted random winner for a prize
// @Tags Raffle
// @Produce json
// @Security BearerAuth
// @Param id path string true "Prize ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Already drawn or no entries"
// @Router /raffle/prizes/{id}/draw [post]
func (h *RaffleHandler) Draw(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	prize, err := h.service.Draw(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prize, nil)
}

// Entries godoc
// @Summary Student raffle entries since the last reset
// @Tags Raffle
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/raffle-entries [get]
func (h *RaffleHandler) Entries(c *gin.Context) {
	entries, err := h.service.Entries(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"entries": entries}, nil)
}
