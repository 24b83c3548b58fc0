package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openlms/lms-api/internal/models"
	"github.com/openlms/lms-api/internal/service"
	"github.com/openlms/lms-api/pkg/response"
)

// ActivityHandler exposes the audit trail read endpoint.
type ActivityHandler struct {
	activity *service.ActivityService
}

// NewActivityHandler constructs ActivityHandler.
func NewActivityHandler(activity *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// List godoc
// @Summary List activity records
// @Tags Activity
// @Produce json
// @Param actorId query string false "Filter by actor"
// @Param entity query string false "Filter by entity type"
// @Param entityId query string false "Filter by entity id"
// @Param action query string false "Filter by action"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /activity [get]
func (h *ActivityHandler) List(c *gin.Context) {
	var filter models.ActivityFilter
	filter.ActorID = c.Query("actorId")
	filter.Entity = c.Query("entity")
	filter.EntityID = c.Query("entityId")
	filter.Action = strings.ToUpper(c.Query("action"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	logs, pagination, err := h.activity.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}
