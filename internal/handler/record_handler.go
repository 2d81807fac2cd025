package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/internal/service"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
	"github.com/stpaulclark/merit-api/pkg/response"
)

type ledgerService interface {
	Issue(ctx context.Context, actor service.Actor, req service.IssueRequest) (*models.IssueResult, error)
	Edit(ctx context.Context, actor service.Actor, recordID string, patch models.RecordPatch) (*models.Record, error)
	SoftDelete(ctx context.Context, actor service.Actor, recordID string) error
	Get(ctx context.Context, actor service.Actor, recordID string) (*models.Record, error)
	List(ctx context.Context, actor service.Actor, filter models.RecordFilter) ([]models.Record, *models.Pagination, error)
	ListForStudent(ctx context.Context, studentID string, filter models.RecordFilter) ([]models.Record, *models.Pagination, error)
}

// RecordHandler exposes the merit/demerit ledger endpoints.
type RecordHandler struct {
	service ledgerService
}

// NewRecordHandler constructs the handler.
func NewRecordHandler(service ledgerService) *RecordHandler {
	return &RecordHandler{service: service}
}

// Issue godoc
// @Summary Issue a merit or demerit record
// @Tags Records
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.IssueRequest true "Record to issue"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Weekly quota exceeded"
// @Router /records [post]
func (h *RecordHandler) Issue(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.service.Issue(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Get godoc
// @Summary Fetch a single record
// @Tags Records
// @Produce json
// @Security BearerAuth
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /records/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	rec, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}

// List godoc
// @Summary List ledger records
// @Tags Records
// @Produce json
// @Security BearerAuth
// @Param student_id query string false "Filter by student"
// @Param teacher_id query string false "Filter by issuer"
// @Param kind query string false "merit or demerit"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param include_deleted query bool false "Admin-only audit view"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /records [get]
func (h *RecordHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter, err := recordFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, pagination, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// ListForStudent godoc
// @Summary List a student's own records
// @Tags Records
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/records [get]
func (h *RecordHandler) ListForStudent(c *gin.Context) {
	filter, err := recordFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, pagination, err := h.service.ListForStudent(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Edit godoc
// @Summary Edit a record inside the edit window
// @Tags Records
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Record ID"
// @Param payload body models.RecordPatch true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Edit window expired"
// @Router /records/{id} [patch]
func (h *RecordHandler) Edit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var patch models.RecordPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	rec, err := h.service.Edit(c.Request.Context(), actor, c.Param("id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}

// Delete godoc
// @Summary Soft-delete a record inside the edit window
// @Tags Records
// @Produce json
// @Security BearerAuth
// @Param id path string true "Record ID"
// @Success 204
// @Failure 409 {object} response.Envelope "Edit window expired"
// @Router /records/{id} [delete]
func (h *RecordHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.SoftDelete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func recordFilterFromQuery(c *gin.Context) (models.RecordFilter, error) {
	filter := models.RecordFilter{
		StudentID: strings.TrimSpace(c.Query("student_id")),
		TeacherID: strings.TrimSpace(c.Query("teacher_id")),
	}
	if kind := strings.TrimSpace(c.Query("kind")); kind != "" {
		rk := models.RecordKind(kind)
		if !rk.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, "kind must be merit or demerit")
		}
		filter.Kind = rk
	}
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "from must be RFC3339")
		}
		filter.From = &ts
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "to must be RFC3339")
		}
		filter.To = &ts
	}
	filter.IncludeDeleted = c.Query("include_deleted") == "true"
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))
	return filter, nil
}
