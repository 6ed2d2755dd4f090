package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studyhall-attendance/internal/dto"
	"github.com/noah-isme/studyhall-attendance/internal/models"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
	"github.com/noah-isme/studyhall-attendance/pkg/response"
)

type timetableService interface {
	GetTimetable(ctx context.Context, tenantID, studentID string) (*models.Timetable, error)
	UpdateTimetable(ctx context.Context, tenantID, studentID string, req dto.UpdateTimetableRequest) (*dto.TimetableResponse, error)
}

// TimetableHandler edits student timetables.
type TimetableHandler struct {
	service timetableService
}

// NewTimetableHandler builds a timetable handler.
func NewTimetableHandler(service timetableService) *TimetableHandler {
	return &TimetableHandler{service: service}
}

// Get godoc
// @Summary Get a student's weekly timetable
// @Tags Timetables
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/students/{studentId}/timetable [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		return
	}
	tt, err := h.service.GetTimetable(c.Request.Context(), tenantID, c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, tt)
}

// Update godoc
// @Summary Replace a student's weekly timetable
// @Description Stores the schedule and queues propagation to the student's seat assignments.
// @Tags Timetables
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param payload body dto.UpdateTimetableRequest true "Weekly schedule"
// @Success 200 {object} response.Envelope
// @Router /admin/students/{studentId}/timetable [put]
func (h *TimetableHandler) Update(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable payload"))
		return
	}
	result, err := h.service.UpdateTimetable(c.Request.Context(), tenantID, c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if len(result.Warnings) > 0 {
		meta = map[string]interface{}{"warnings": result.Warnings}
	}
	response.JSON(c, http.StatusOK, result.Timetable, meta)
}
