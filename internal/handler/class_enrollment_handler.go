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

// ClassEnrollmentHandler exposes class enrollment endpoints.
type ClassEnrollmentHandler struct {
	enrollments *service.ClassEnrollmentService
	metrics     *service.MetricsService
}

// NewClassEnrollmentHandler constructs ClassEnrollmentHandler.
func NewClassEnrollmentHandler(enrollments *service.ClassEnrollmentService, metrics *service.MetricsService) *ClassEnrollmentHandler {
	return &ClassEnrollmentHandler{enrollments: enrollments, metrics: metrics}
}

// List godoc
// @Summary List class enrollments
// @Tags ClassEnrollments
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param classId query string false "Filter by class"
// @Param batchId query string false "Filter by batch"
// @Param active query bool false "Filter by active flag"
// @Param completed query bool false "Filter by completion"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments/classes [get]
func (h *ClassEnrollmentHandler) List(c *gin.Context) {
	var filter models.ClassEnrollmentFilter
	filter.StudentID = c.Query("studentId")
	filter.ClassID = c.Query("classId")
	filter.BatchID = c.Query("batchId")
	if active := c.Query("active"); active != "" {
		if v, err := strconv.ParseBool(active); err == nil {
			filter.IsActive = &v
		}
	}
	if completed := c.Query("completed"); completed != "" {
		if v, err := strconv.ParseBool(completed); err == nil {
			filter.IsCompleted = &v
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

// Get godoc
// @Summary Get one class enrollment
// @Tags ClassEnrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/classes/{id} [get]
func (h *ClassEnrollmentHandler) Get(c *gin.Context) {
	enrollment, err := h.enrollments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Enroll godoc
// @Summary Enroll a student into a class
// @Tags ClassEnrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollStudentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /enrollments/classes [post]
func (h *ClassEnrollmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollStudentRequest
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
	h.metrics.CountEnrollments("class", 1)
	response.Created(c, enrollment)
}

// BulkEnroll godoc
// @Summary Enroll multiple students into a class
// @Tags ClassEnrollments
// @Accept json
// @Produce json
// @Param payload body service.BulkEnrollRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/classes/bulk [post]
func (h *ClassEnrollmentHandler) BulkEnroll(c *gin.Context) {
	var req service.BulkEnrollRequest
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
	h.metrics.CountEnrollments("class", result.Enrolled)
	response.JSON(c, http.StatusOK, result, nil)
}

// EnrollBatch godoc
// @Summary Enroll every active student of a batch into a class
// @Tags ClassEnrollments
// @Accept json
// @Produce json
// @Param payload body map[string]string true "Batch and class ids"
// @Success 200 {object} response.Envelope
// @Router /enrollments/classes/batch [post]
func (h *ClassEnrollmentHandler) EnrollBatch(c *gin.Context) {
	var payload struct {
		BatchID string `json:"batch_id" binding:"required"`
		ClassID string `json:"class_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.EnrollBatch(c.Request.Context(), payload.BatchID, payload.ClassID, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.CountEnrollments("class", result.Enrolled)
	response.JSON(c, http.StatusOK, result, nil)
}

// Update godoc
// @Summary Update a class enrollment
// @Tags ClassEnrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.UpdateEnrollmentRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/classes/{id} [put]
func (h *ClassEnrollmentHandler) Update(c *gin.Context) {
	var req service.UpdateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// MarkCompleted godoc
// @Summary Complete a class enrollment with academic outcome
// @Tags ClassEnrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.AcademicData true "Academic outcome"
// @Success 200 {object} response.Envelope
// @Router /enrollments/classes/{id}/complete [put]
func (h *ClassEnrollmentHandler) MarkCompleted(c *gin.Context) {
	var academic service.AcademicData
	if err := c.ShouldBindJSON(&academic); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.MarkCompleted(c.Request.Context(), c.Param("id"), academic)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Unenroll godoc
// @Summary Remove a class enrollment
// @Tags ClassEnrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/classes/{id} [delete]
func (h *ClassEnrollmentHandler) Unenroll(c *gin.Context) {
	if err := h.enrollments.Unenroll(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Promote godoc
// @Summary Promote a student to the next class of the batch
// @Tags ClassEnrollments
// @Accept json
// @Produce json
// @Param id path string true "Current enrollment ID"
// @Param payload body service.PromoteRequest true "Promotion payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/classes/{id}/promote [post]
func (h *ClassEnrollmentHandler) Promote(c *gin.Context) {
	var req service.PromoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.EnrolledBy = actorID(c)
	enrollment, err := h.enrollments.Promote(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.CountEnrollments("class", 1)
	response.Created(c, enrollment)
}
