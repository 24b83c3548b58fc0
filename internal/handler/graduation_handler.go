package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openlms/lms-api/internal/models"
	"github.com/openlms/lms-api/internal/service"
	appErrors "github.com/openlms/lms-api/pkg/errors"
	"github.com/openlms/lms-api/pkg/response"
)

type graduationService interface {
	List(ctx context.Context, filter models.GraduationFilter) ([]models.GraduationDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Graduation, error)
	GraduateStudent(ctx context.Context, req service.GraduateStudentRequest) (*models.Graduation, error)
	GraduateBatch(ctx context.Context, req service.GraduateBatchRequest) (*models.GraduateBatchResult, error)
	Update(ctx context.Context, id string, req service.UpdateGraduationRequest) (*models.Graduation, error)
	Revoke(ctx context.Context, id, revokedBy string) error
	Statistics(ctx context.Context, batchID string) (*models.GraduationStatistics, error)
}

// GraduationHandler exposes graduation endpoints.
type GraduationHandler struct {
	graduations graduationService
	metrics     *service.MetricsService
}

// NewGraduationHandler constructs GraduationHandler.
func NewGraduationHandler(graduations graduationService, metrics *service.MetricsService) *GraduationHandler {
	return &GraduationHandler{graduations: graduations, metrics: metrics}
}

// List godoc
// @Summary List graduations
// @Tags Graduations
// @Produce json
// @Param batchId query string false "Filter by batch"
// @Param studentId query string false "Filter by student"
// @Param awarded query bool false "Filter by award state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /graduations [get]
func (h *GraduationHandler) List(c *gin.Context) {
	var filter models.GraduationFilter
	filter.BatchID = c.Query("batchId")
	filter.StudentID = c.Query("studentId")
	if awarded := c.Query("awarded"); awarded != "" {
		if v, err := strconv.ParseBool(awarded); err == nil {
			filter.IsAwarded = &v
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	graduations, pagination, err := h.graduations.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, graduations, pagination)
}

// Get godoc
// @Summary Get one graduation
// @Tags Graduations
// @Produce json
// @Param id path string true "Graduation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /graduations/{id} [get]
func (h *GraduationHandler) Get(c *gin.Context) {
	graduation, err := h.graduations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, graduation, nil)
}

// GraduateStudent godoc
// @Summary Graduate a single student from a batch
// @Tags Graduations
// @Accept json
// @Produce json
// @Param payload body service.GraduateStudentRequest true "Graduation payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /graduations [post]
func (h *GraduationHandler) GraduateStudent(c *gin.Context) {
	var req service.GraduateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.CreatedBy = actorID(c)
	graduation, err := h.graduations.GraduateStudent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.CountGraduation()
	response.Created(c, graduation)
}

// GraduateBatch godoc
// @Summary Graduate a whole batch
// @Tags Graduations
// @Accept json
// @Produce json
// @Param payload body service.GraduateBatchRequest true "Batch graduation payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /graduations/batch [post]
func (h *GraduationHandler) GraduateBatch(c *gin.Context) {
	var req service.GraduateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.CreatedBy = actorID(c)
	result, err := h.graduations.GraduateBatch(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	for i := 0; i < result.Graduated; i++ {
		h.metrics.CountGraduation()
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Update godoc
// @Summary Update a graduation record
// @Tags Graduations
// @Accept json
// @Produce json
// @Param id path string true "Graduation ID"
// @Param payload body service.UpdateGraduationRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Router /graduations/{id} [put]
func (h *GraduationHandler) Update(c *gin.Context) {
	var req service.UpdateGraduationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	graduation, err := h.graduations.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, graduation, nil)
}

// Revoke godoc
// @Summary Revoke a graduation record
// @Tags Graduations
// @Produce json
// @Param id path string true "Graduation ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /graduations/{id} [delete]
func (h *GraduationHandler) Revoke(c *gin.Context) {
	if err := h.graduations.Revoke(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Statistics godoc
// @Summary Graduation statistics
// @Tags Graduations
// @Produce json
// @Param batchId query string false "Limit to one batch"
// @Success 200 {object} response.Envelope
// @Router /graduations/statistics [get]
func (h *GraduationHandler) Statistics(c *gin.Context) {
	stats, err := h.graduations.Statistics(c.Request.Context(), c.Query("batchId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
