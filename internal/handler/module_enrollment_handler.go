package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openlms/lms-api/internal/models"
	"github.com/openlms/lms-api/internal/service"
	appErrors "github.com/openlms/lms-api/pkg/errors"
	"github.com/openlms/lms-api/pkg/response"
)

// ModuleEnrollmentHandler exposes module enrollment endpoints.
type ModuleEnrollmentHandler struct {
	enrollments *service.ModuleEnrollmentService
	metrics     *service.MetricsService
}

// NewModuleEnrollmentHandler constructs ModuleEnrollmentHandler.
func NewModuleEnrollmentHandler(enrollments *service.ModuleEnrollmentService, metrics *service.MetricsService) *ModuleEnrollmentHandler {
	return &ModuleEnrollmentHandler{enrollments: enrollments, metrics: metrics}
}

// List godoc
// @Summary List module enrollments
// @Tags ModuleEnrollments
// @Produce json
// @Param moduleId query string false "Filter by module"
// @Param studentId query string false "Filter by student"
// @Param active query bool false "Filter by active flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments/modules [get]
func (h *ModuleEnrollmentHandler) List(c *gin.Context) {
	var filter models.ModuleEnrollmentFilter
	filter.ModuleID = c.Query("moduleId")
	filter.StudentID = c.Query("studentId")
	if active := c.Query("active"); active != "" {
		if v, err := strconv.ParseBool(active); err == nil {
			filter.IsActive = &v
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

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Enroll godoc
// @Summary Enroll a student into a module
// @Tags ModuleEnrollments
// @Accept json
// @Produce json
// @Param payload body service.ModuleEnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments/modules [post]
func (h *ModuleEnrollmentHandler) Enroll(c *gin.Context) {
	var req service.ModuleEnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.EnrolledBy = actorID(c)
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.CountEnrollments("module", 1)
	response.Created(c, enrollment)
}

// BulkEnroll godoc
// @Summary Enroll multiple students into a module
// @Tags ModuleEnrollments
// @Accept json
// @Produce json
// @Param payload body service.ModuleBulkEnrollRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /enrollments/modules/bulk [post]
func (h *ModuleEnrollmentHandler) BulkEnroll(c *gin.Context) {
	var req service.ModuleBulkEnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.EnrolledBy = actorID(c)
	result, err := h.enrollments.BulkEnroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.CountEnrollments("module", result.Enrolled)
	response.JSON(c, http.StatusOK, result, nil)
}

// EnrollClass godoc
// @Summary Enroll a class roster into a module
// @Tags ModuleEnrollments
// @Accept json
// @Produce json
// @Param payload body service.ModuleEnrollClassRequest true "Class payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /enrollments/modules/class [post]
func (h *ModuleEnrollmentHandler) EnrollClass(c *gin.Context) {
	var req service.ModuleEnrollClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.EnrolledBy = actorID(c)
	result, err := h.enrollments.EnrollClass(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.CountEnrollments("module", result.Enrolled)
	response.JSON(c, http.StatusOK, result, nil)
}

// Unenroll godoc
// @Summary Remove a module enrollment
// @Tags ModuleEnrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body map[string]string false "Optional reason"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/modules/{id} [delete]
func (h *ModuleEnrollmentHandler) Unenroll(c *gin.Context) {
	var payload struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&payload)

	if err := h.enrollments.Unenroll(c.Request.Context(), c.Param("id"), actorID(c), payload.Reason); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ToggleStatus godoc
// @Summary Toggle the active flag of a module enrollment
// @Tags ModuleEnrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/modules/{id}/toggle [put]
func (h *ModuleEnrollmentHandler) ToggleStatus(c *gin.Context) {
	enrollment, err := h.enrollments.ToggleStatus(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Stats godoc
// @Summary Enrollment statistics for a module
// @Tags ModuleEnrollments
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /modules/{id}/enrollment-stats [get]
func (h *ModuleEnrollmentHandler) Stats(c *gin.Context) {
	stats, err := h.enrollments.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
