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

type attendanceAdminService interface {
	List(ctx context.Context, tenantID string, query dto.AttendanceListQuery) ([]models.AttendanceRecord, error)
	ListUnclosed(ctx context.Context, tenantID string, query dto.UnclosedQuery) ([]models.AttendanceRecord, error)
	Excuse(ctx context.Context, tenantID, recordID string, req dto.ExcuseRequest) (*models.AttendanceRecord, error)
	Override(ctx context.Context, tenantID, recordID string, req dto.OverrideRequest) (*models.AttendanceRecord, error)
}

// AttendanceHandler exposes operator views and actions on attendance records.
type AttendanceHandler struct {
	service attendanceAdminService
}

// NewAttendanceHandler builds an attendance handler.
func NewAttendanceHandler(service attendanceAdminService) *AttendanceHandler {
	return &AttendanceHandler{service: service}
}

// List godoc
// @Summary List attendance records for a day
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param date query string false "Civil date (YYYY-MM-DD), defaults to today"
// @Param status query string false "Status filter"
// @Param studentId query string false "Student filter"
// @Success 200 {object} response.Envelope
// @Router /admin/attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var query dto.AttendanceListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	records, err := h.service.List(c.Request.Context(), tenantID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, records, map[string]interface{}{"count": len(records)})
}

// Unclosed godoc
// @Summary List checked-in records past their grace deadline
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param date query string false "Latest civil date to include, defaults to today"
// @Success 200 {object} response.Envelope
// @Router /admin/attendance/unclosed [get]
func (h *AttendanceHandler) Unclosed(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var query dto.UnclosedQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	records, err := h.service.ListUnclosed(c.Request.Context(), tenantID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, records, map[string]interface{}{"count": len(records)})
}

// Excuse godoc
// @Summary Mark a record as an excused absence
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param recordId path string true "Record ID"
// @Param payload body dto.ExcuseRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /admin/attendance/{recordId}/excuse [post]
func (h *AttendanceHandler) Excuse(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var req dto.ExcuseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid excuse payload"))
		return
	}
	record, err := h.service.Excuse(c.Request.Context(), tenantID, c.Param("recordId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, record)
}

// Override godoc
// @Summary Force a record into checked_in or checked_out
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param recordId path string true "Record ID"
// @Param payload body dto.OverrideRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /admin/attendance/{recordId}/override [post]
func (h *AttendanceHandler) Override(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var req dto.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid override payload"))
		return
	}
	record, err := h.service.Override(c.Request.Context(), tenantID, c.Param("recordId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, record)
}
